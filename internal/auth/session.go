package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTimeout is the session lifetime when none is configured.
const DefaultSessionTimeout = time.Hour

// sessionClaims is the signed body of a session token. Expiry is kept in
// the session table, not in the token.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// SessionManager issues and checks session tokens.
//
// Thread Safety:
//   - Not safe for concurrent use. The gateway reactor owns it.
type SessionManager struct {
	secret   []byte
	timeout  time.Duration
	now      func() time.Time
	sessions map[string]Session
}

// NewSessionManager creates a session table. A non-positive timeout uses
// DefaultSessionTimeout and a nil now uses time.Now.
func NewSessionManager(secret string, timeout time.Duration, now func() time.Time) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		secret:   []byte(secret),
		timeout:  timeout,
		now:      now,
		sessions: make(map[string]Session),
	}
}

// Create starts a session for username expiring one timeout from now.
func (m *SessionManager) Create(username string) (Session, error) {
	now := m.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  username,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Session{}, fmt.Errorf("signing session token: %w", err)
	}

	s := Session{Token: token, Username: username, ExpiresAt: now.Add(m.timeout)}
	m.sessions[token] = s
	return s, nil
}

// Lookup returns the live session for token.
// Forged tokens fail with ErrTokenInvalid, unknown ones with
// ErrSessionNotFound and stale ones with ErrSessionExpired.
func (m *SessionManager) Lookup(token string) (Session, error) {
	if _, err := m.parse(token); err != nil {
		return Session{}, err
	}

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !m.now().Before(s.ExpiresAt) {
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *SessionManager) Len() int {
	return len(m.sessions)
}

func (m *SessionManager) parse(token string) (*sessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrTokenInvalid)
	}
	return claims, nil
}
