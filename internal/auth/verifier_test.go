package auth

import (
	"context"
	"testing"
)

func TestStoreVerifier(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	seedTestUser(t, repo, "observer", "s3cret")
	seedTestUser(t, repo, "retired", "s3cret")
	if err := repo.SetActive(ctx, "retired", false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if err := repo.Create(ctx, &User{Username: "broken", PasswordHash: "not-a-hash", IsActive: true}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v := NewVerifier(repo)

	tests := []struct {
		name     string
		username string
		secret   string
		want     bool
		wantErr  bool
	}{
		{"valid", "observer", "s3cret", true, false},
		{"wrong secret", "observer", "guess", false, false},
		{"unknown user", "nobody", "s3cret", false, false},
		{"inactive user", "retired", "s3cret", false, false},
		{"corrupt hash", "broken", "anything", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.Verify(ctx, tt.username, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.want {
				t.Errorf("Verify() = %v, want %v", ok, tt.want)
			}
		})
	}
}
