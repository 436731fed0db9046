// Package auth handles user registration, password and Google login,
// stateless JWT access tokens, and the session cookie that carries them for
// MealBuddy. Every protected endpoint in the API runs RequireAuth, which
// resolves the current user from a bearer header or the cookie.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Password constraints. bcrypt ignores input beyond 72 bytes, so longer
// passwords are rejected instead of silently truncated.
const (
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// User represents a registered MealBuddy account. This is the domain model
// used throughout the application. Database scanning and JSON marshaling use
// this struct directly; credential fields never leave the server.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FullName       *string    `json:"full_name"`
	PasswordHash   *string    `json:"-"` // Never expose in JSON responses.
	OAuthSubjectID *string    `json:"-"`
	IsActive       bool       `json:"is_active"`
	IsSuperuser    bool       `json:"is_superuser"`
	IsVerified     bool       `json:"is_verified"`
	LastLoginAt    *time.Time `json:"last_login"`
	LoginCount     int        `json:"login_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// One-time email token state. Only SHA-256 digests are stored.
	VerificationTokenHash      *string    `json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`
	ResetTokenHash             *string    `json:"-"`
	ResetTokenExpiresAt        *time.Time `json:"-"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the registration body (JSON or form).
type RegisterRequest struct {
	Email           string  `json:"email" form:"email"`
	FullName        *string `json:"full_name" form:"full_name"`
	Password        string  `json:"password" form:"password"`
	PasswordConfirm string  `json:"password_confirm" form:"password_confirm"`
}

// LoginRequest holds the OAuth2 password-grant style form. The email is
// sent in the "username" field.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenRequest carries a one-time email token.
type TokenRequest struct {
	Token string `json:"token" form:"token" query:"token"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token           string `json:"token" form:"token"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the input for creating a new user.
type RegisterInput struct {
	Email           string
	FullName        *string
	Password        string
	PasswordConfirm string
}

// LoginInput is the input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
}

// ResetPasswordInput is the input for completing a password reset.
type ResetPasswordInput struct {
	Token           string
	Password        string
	PasswordConfirm string
}

// --- Responses ---

// TokenResponse is returned by login, refresh and the OAuth callback.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// newTokenResponse wraps a signed token in the bearer response shape.
func newTokenResponse(token string) TokenResponse {
	return TokenResponse{AccessToken: token, TokenType: "bearer"}
}

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
