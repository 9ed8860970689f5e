package handler

import (
	"net/http"

	"gotrip-be/internal/container"
	"gotrip-be/internal/domain"
	"gotrip-be/internal/middleware"
	apperrors "gotrip-be/pkg/errors"
)

// AuthHandler handles authentication related requests
type AuthHandler struct {
	container *container.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *container.Container) *AuthHandler {
	return &AuthHandler{
		container: container,
	}
}

// UserProfileResponse represents the user profile response
type UserProfileResponse struct {
	User    *domain.UserProfile `json:"user"`
	Success bool                `json:"success"`
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		logger.Error("User not found in context")
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	logger.WithField("user_id", user.Sub).Debug("User profile retrieved")

	writeJSON(w, http.StatusOK, UserProfileResponse{
		User:    user,
		Success: true,
	})
}
