package auth

import (
	"context"
	"testing"
	"time"
)

func TestTokenRepository_InsertAndSelectAll(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "alice", "password1")
	repo := NewTokenRepository(db)
	ctx := context.Background()

	expiresAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	if err := repo.Insert(ctx, "tok-1", "alice", expiresAt); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	tokens, err := repo.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("SelectAll() returned %d tokens, want 1", len(tokens))
	}

	got := tokens[0]
	if got.Token != "tok-1" {
		t.Errorf("Token = %q, want %q", got.Token, "tok-1")
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q, want %q", got.Username, "alice")
	}
	if !got.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expiresAt)
	}
}

func TestTokenRepository_UpdateExpiry(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "alice", "password1")
	repo := NewTokenRepository(db)
	ctx := context.Background()

	initial := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	if err := repo.Insert(ctx, "tok-1", "alice", initial); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	extended := initial.Add(48 * time.Hour)
	if err := repo.UpdateExpiry(ctx, "tok-1", extended); err != nil {
		t.Fatalf("UpdateExpiry() error = %v", err)
	}

	tokens, err := repo.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	if len(tokens) != 1 || !tokens[0].ExpiresAt.Equal(extended) {
		t.Errorf("ExpiresAt = %v, want %v", tokens[0].ExpiresAt, extended)
	}
}

func TestTokenRepository_Delete(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "alice", "password1")
	repo := NewTokenRepository(db)
	ctx := context.Background()

	if err := repo.Insert(ctx, "tok-1", "alice", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	tokens, err := repo.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("SelectAll() returned %d tokens after delete, want 0", len(tokens))
	}

	// Deleting an unknown token is not an error.
	if err := repo.Delete(ctx, "tok-unknown"); err != nil {
		t.Errorf("Delete(unknown) error = %v, want nil", err)
	}
}

func TestTokenRepository_DeleteCascadesFromUser(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "alice", "password1")
	tokenRepo := NewTokenRepository(db)
	userRepo := NewUserRepository(db)
	ctx := context.Background()

	if err := tokenRepo.Insert(ctx, "tok-1", "alice", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := userRepo.Delete(ctx, "alice"); err != nil {
		t.Fatalf("user Delete() error = %v", err)
	}

	tokens, err := tokenRepo.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("tokens survived user deletion: %d remain", len(tokens))
	}
}
