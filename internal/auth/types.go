package auth

import (
	"errors"
	"regexp"
	"time"
)

// SessionUser is the reserved user name whose secret is a session token.
const SessionUser = "session_id"

// usernamePattern allows alphanumerics, dots, hyphens and underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
// The reserved session user name is never a valid account name.
func IsValidUsername(username string) bool {
	return username != SessionUser && usernamePattern.MatchString(username)
}

// User is an account allowed to log in to the gateway.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // never serialised
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is an authenticated login. It is valid while now < ExpiresAt.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user account is inactive")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrInvalidUsername    = errors.New("auth: invalid username")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrSessionNotFound    = errors.New("auth: session not found")
	ErrSessionExpired     = errors.New("auth: session has expired")
)
