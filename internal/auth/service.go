package auth

import (
	"context"
	"fmt"
)

// Logger defines the logging interface used by the auth package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor runs fn on the goroutine that owns the session table.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Service combines the credential verifier with the session table.
//
// Password checks run on the caller's goroutine; every session table access
// goes through the executor.
type Service struct {
	verifier Verifier
	sessions *SessionManager
	exec     Executor
	logger   Logger
}

// NewService creates an auth service. A nil executor touches the session
// table inline.
func NewService(verifier Verifier, sessions *SessionManager, exec Executor) *Service {
	return &Service{
		verifier: verifier,
		sessions: sessions,
		exec:     exec,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Login verifies the credentials and returns a new session token.
func (s *Service) Login(ctx context.Context, username, secret string) (string, error) {
	if err := s.verify(ctx, username, secret); err != nil {
		s.logger.Warn("login failed", "user", username, "error", err)
		return "", err
	}

	var (
		session Session
		err     error
	)
	if runErr := s.run(ctx, func() { session, err = s.sessions.Create(username) }); runErr != nil {
		return "", fmt.Errorf("creating session: %w", runErr)
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("session created", "user", username, "expires_at", session.ExpiresAt)
	return session.Token, nil
}

// Authenticate checks call credentials and returns the authenticated user.
// With the reserved SessionUser name the secret is a session token.
func (s *Service) Authenticate(ctx context.Context, username, secret string) (string, error) {
	if username != SessionUser {
		if err := s.verify(ctx, username, secret); err != nil {
			return "", err
		}
		return username, nil
	}

	var (
		session Session
		err     error
	)
	if runErr := s.run(ctx, func() { session, err = s.sessions.Lookup(secret) }); runErr != nil {
		return "", fmt.Errorf("checking session: %w", runErr)
	}
	if err != nil {
		return "", err
	}
	return session.Username, nil
}

func (s *Service) verify(ctx context.Context, username, secret string) error {
	ok, err := s.verifier.Verify(ctx, username, secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) run(ctx context.Context, fn func()) error {
	if s.exec == nil {
		fn()
		return nil
	}
	return s.exec.Do(ctx, fn)
}
