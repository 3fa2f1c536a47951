package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TokenRepository defines the persistence interface for access tokens.
// Every call is independent; the token store invokes these asynchronously
// and treats failures as durability loss, not request failure.
type TokenRepository interface {
	SelectAll(ctx context.Context) ([]StoredToken, error)
	Insert(ctx context.Context, token, username string, expiresAt time.Time) error
	UpdateExpiry(ctx context.Context, token string, expiresAt time.Time) error
	Delete(ctx context.Context, token string) error
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// SelectAll returns every persisted access token, valid or expired.
// Expiry filtering is the store's responsibility.
func (r *SQLiteTokenRepository) SelectAll(ctx context.Context) ([]StoredToken, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT token, username, expires_at FROM access_tokens")
	if err != nil {
		return nil, fmt.Errorf("selecting access tokens: %w", err)
	}
	defer rows.Close()

	var tokens []StoredToken
	for rows.Next() {
		var t StoredToken
		var expiresAt string
		if err := rows.Scan(&t.Token, &t.Username, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning access token: %w", err)
		}
		t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access tokens: %w", err)
	}
	return tokens, nil
}

// Insert persists a newly issued access token.
func (r *SQLiteTokenRepository) Insert(ctx context.Context, token, username string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO access_tokens (token, username, expires_at) VALUES (?, ?, ?)",
		token, username, expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting access token: %w", err)
	}
	return nil
}

// UpdateExpiry records a new expiry timestamp for a token.
func (r *SQLiteTokenRepository) UpdateExpiry(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE access_tokens SET expires_at = ? WHERE token = ?",
		expiresAt.UTC().Format(time.RFC3339), token)
	if err != nil {
		return fmt.Errorf("updating access token expiry: %w", err)
	}
	return nil
}

// Delete removes a persisted token. Deleting an unknown token is not an error.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM access_tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("deleting access token: %w", err)
	}
	return nil
}
