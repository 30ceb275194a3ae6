package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// seedPasswordBytes is the number of random bytes in a seeded password.
const seedPasswordBytes = 16

// GeneratePassword returns a random 32-character hex password.
func GeneratePassword() (string, error) {
	raw := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// SeedUser creates the first account when the user table is empty.
// The generated password is logged once and returned; it is empty when
// seeding was skipped.
func SeedUser(ctx context.Context, repo UserRepository, username string, logger Logger) (string, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if username == "" {
		return "", nil
	}

	count, err := repo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping seed", "count", count)
		return "", nil
	}

	password, err := GeneratePassword()
	if err != nil {
		return "", err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	user := &User{
		Username:     username,
		DisplayName:  "Observatory operator",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := repo.Create(ctx, user); err != nil {
		return "", fmt.Errorf("creating seed user: %w", err)
	}

	logger.Warn("seed user created",
		"username", username,
		"password", password,
		"action_required", "change this password immediately",
	)
	return password, nil
}
