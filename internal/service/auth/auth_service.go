package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gotrip-be/internal/domain"
	"gotrip-be/internal/service"
	"gotrip-be/pkg/errors"
	"gotrip-be/pkg/logger"
)

// Service implements the AuthService interface
type Service struct {
	clientID   string
	jwtSecret  string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewService creates a new auth service
func NewService(clientID, jwtSecret string, logger *logger.Logger) service.AuthService {
	return &Service{
		clientID:  clientID,
		jwtSecret: jwtSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ValidateToken validates a bearer token and returns the user's profile.
// Both Google access tokens and Supabase JWT tokens are accepted.
func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.UserProfile, error) {
	s.logger.Debug("Validating token")

	// Google access tokens start with "ya29."
	if isGoogleAccessToken(token) {
		s.logger.Debug("Token identified as Google access token")
		return s.validateGoogleAccessToken(ctx, token)
	}

	// JWT tokens have 3 segments separated by dots
	if isJWTToken(token) {
		s.logger.Debug("Token identified as JWT, trying Supabase validation")
		return s.validateSupabaseJWT(token)
	}

	s.logger.Error("Unrecognized token format")
	return nil, errors.NewAuthenticationError("Unrecognized token format")
}

// validateGoogleAccessToken validates a Google OAuth access token against
// Google's tokeninfo endpoint
func (s *Service) validateGoogleAccessToken(ctx context.Context, token string) (*domain.UserProfile, error) {
	s.logger.WithField("token_prefix", tokenPrefix(token)).Debug("Validating Google access token")

	url := fmt.Sprintf("https://oauth2.googleapis.com/tokeninfo?access_token=%s", token)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create tokeninfo request")
		return nil, errors.NewInternalError("Failed to create validation request", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WithError(err).Error("Failed to call Google tokeninfo endpoint")
		return nil, errors.NewAuthenticationError("Failed to validate token")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.logger.WithField("status_code", resp.StatusCode).Error("Google access token is invalid or expired")
		return nil, errors.NewAuthenticationError("Invalid or expired Google token")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			s.logger.WithError(err).WithField("status_code", resp.StatusCode).Error("Failed to read error response from Google tokeninfo")
		} else {
			s.logger.WithField("status_code", resp.StatusCode).WithField("response_body", string(body)).Error("Google tokeninfo returned error")
		}
		return nil, errors.NewAuthenticationError("Token validation failed")
	}

	var tokenInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		s.logger.WithError(err).Error("Failed to decode tokeninfo response")
		return nil, errors.NewInternalError("Failed to decode token information", err)
	}

	// Verify the audience when present. Unlike ID tokens, access tokens do
	// not always carry an 'aud' field.
	if aud, ok := tokenInfo["aud"].(string); ok && aud != "" {
		if aud != s.clientID {
			s.logger.WithField("expected_audience", s.clientID).WithField("actual_audience", aud).Error("Token audience mismatch")
			return nil, errors.NewAuthenticationError("Token not intended for this application")
		}
	} else {
		s.logger.Debug("No audience field in token response (normal for access tokens)")
	}

	profile := &domain.UserProfile{
		Sub:           getStringValue(tokenInfo, "sub"),
		Email:         getStringValue(tokenInfo, "email"),
		EmailVerified: getBoolValue(tokenInfo, "email_verified"),
		Picture:       getStringValue(tokenInfo, "picture"),
		Name:          getStringValue(tokenInfo, "name"),
	}

	// Fall back to email as identifier if sub is absent
	if profile.Sub == "" && profile.Email != "" {
		profile.Sub = profile.Email
	}

	if profile.Sub == "" {
		s.logger.Error("No user identifier found in token response")
		return nil, errors.NewAuthenticationError("Invalid token: no user identifier")
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":        profile.Sub,
		"email_verified": profile.EmailVerified,
		"has_picture":    profile.Picture != "",
		"has_name":       profile.Name != "",
	}).Info("Google access token validated successfully")
	return profile, nil
}

// validateSupabaseJWT validates a Supabase JWT token with signature verification
func (s *Service) validateSupabaseJWT(tokenString string) (*domain.UserProfile, error) {
	s.logger.Debug("Validating Supabase JWT token with signature verification")

	if s.jwtSecret == "" {
		s.logger.Error("Supabase JWT secret not configured")
		return nil, errors.NewAuthenticationError("JWT validation not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		s.logger.WithError(err).Error("Failed to parse/validate JWT token")
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	if !token.Valid {
		s.logger.Error("JWT token is not valid")
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		s.logger.Error("Failed to extract JWT claims")
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	if exp, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(exp) {
			s.logger.Error("JWT token has expired")
			return nil, errors.NewAuthenticationError("Token has expired")
		}
	}

	profile := &domain.UserProfile{
		Sub:           getStringValue(claims, "sub"),
		Email:         getStringValue(claims, "email"),
		EmailVerified: getBoolValue(claims, "email_verified"),
	}

	// Supabase carries the display name and avatar in user_metadata
	if userMeta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		profile.Name = getStringValue(userMeta, "name")
		profile.Picture = getStringValue(userMeta, "avatar_url")
	}

	if profile.Sub == "" {
		s.logger.Error("No user identifier found in JWT token")
		return nil, errors.NewAuthenticationError("Invalid JWT token: no user identifier")
	}

	s.logger.WithField("user_id", profile.Sub).Debug("Supabase JWT token validated successfully")
	return profile, nil
}

// Helper functions for token format detection
func isGoogleAccessToken(token string) bool {
	return len(token) > 5 && token[:5] == "ya29."
}

func isJWTToken(token string) bool {
	if len(token) == 0 {
		return false
	}

	dotCount := 0
	for _, char := range token {
		if char == '.' {
			dotCount++
		}
	}
	return dotCount == 2
}

// tokenPrefix returns a short loggable prefix of a token
func tokenPrefix(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}

// Helper functions to safely extract values from claim maps
func getStringValue(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func getBoolValue(m map[string]interface{}, key string) bool {
	if val, ok := m[key].(bool); ok {
		return val
	}
	return false
}
