package auth

import (
	"context"
	"errors"
	"fmt"
)

// Verifier checks a user name and secret.
//
// Verify returns (false, nil) for wrong or unknown credentials and an error
// only when the check itself could not be performed.
type Verifier interface {
	Verify(ctx context.Context, username, secret string) (bool, error)
}

// StoreVerifier verifies credentials against the account table.
// Verification is deliberately slow (Argon2id); call it off the reactor.
type StoreVerifier struct {
	repo UserRepository
}

// NewVerifier creates a verifier over repo.
func NewVerifier(repo UserRepository) *StoreVerifier {
	return &StoreVerifier{repo: repo}
}

// Verify implements Verifier.
func (v *StoreVerifier) Verify(ctx context.Context, username, secret string) (bool, error) {
	user, err := v.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive {
		return false, nil
	}

	ok, err := VerifyPassword(secret, user.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("verifying password for %s: %w", username, err)
	}
	return ok, nil
}
