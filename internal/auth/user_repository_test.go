package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	repo.now = func() time.Time { return time.Date(2026, 10, 18, 21, 30, 15, 500, time.UTC) }
	ctx := context.Background()

	user := &User{Username: "observer", DisplayName: "Night Observer", PasswordHash: "$argon2id$x", IsActive: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByUsername(ctx, "observer")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.ID != user.ID || got.DisplayName != "Night Observer" || !got.IsActive {
		t.Errorf("GetByUsername() = %+v", got)
	}
	if got.PasswordHash != "$argon2id$x" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}
	if want := time.Date(2026, 10, 18, 21, 30, 15, 0, time.UTC); !got.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want)
	}
}

func TestUserRepository_CreateErrors(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &User{Username: "dup", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"duplicate", "dup", ErrUsernameExists},
		{"empty", "", ErrInvalidUsername},
		{"reserved", SessionUser, ErrInvalidUsername},
		{"spaces", "bad name", ErrInvalidUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, &User{Username: tt.username, PasswordHash: "h"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_UpdatesAndList(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if err := repo.Create(ctx, &User{Username: name, PasswordHash: "old", IsActive: true}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	if err := repo.UpdatePassword(ctx, "alpha", "new"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if err := repo.SetActive(ctx, "zeta", false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if err := repo.SetActive(ctx, "missing", true); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetActive(missing) error = %v, want ErrUserNotFound", err)
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 || users[0].Username != "alpha" || users[1].Username != "zeta" {
		t.Fatalf("List() = %+v", users)
	}
	if users[0].PasswordHash != "new" {
		t.Errorf("alpha hash = %q, want new", users[0].PasswordHash)
	}
	if users[1].IsActive {
		t.Error("zeta should be inactive")
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}

func TestUserRepository_GetMissing(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	if _, err := repo.GetByUsername(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
}

func TestSeedUser(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	password, err := SeedUser(ctx, repo, "observer", nil)
	if err != nil {
		t.Fatalf("SeedUser() error = %v", err)
	}
	if len(password) != 2*seedPasswordBytes {
		t.Errorf("password length = %d, want %d", len(password), 2*seedPasswordBytes)
	}

	ok, err := NewVerifier(repo).Verify(ctx, "observer", password)
	if err != nil || !ok {
		t.Errorf("seeded credentials do not verify: %v, %v", ok, err)
	}

	again, err := SeedUser(ctx, repo, "other", nil)
	if err != nil || again != "" {
		t.Errorf("second SeedUser() = %q, %v, want skipped", again, err)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}
