package domain

// UserProfile represents the authenticated user's identity as extracted from
// a Supabase JWT or Google access token
type UserProfile struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}
