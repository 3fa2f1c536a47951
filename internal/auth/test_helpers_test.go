package auth

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/config"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			salt          TEXT NOT NULL,
			iterations    INTEGER NOT NULL,
			created_at    TEXT NOT NULL
		) STRICT;

		CREATE TABLE access_tokens (
			token      TEXT PRIMARY KEY,
			username   TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			FOREIGN KEY (username) REFERENCES users (username) ON DELETE CASCADE
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying auth schema: %v", err)
	}

	return db
}

// seedTestUser provisions a user with a known password.
func seedTestUser(t *testing.T, db *sql.DB, username, password string) *User {
	t.Helper()

	cred, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}

	user := &User{
		Username:     username,
		PasswordHash: cred.Hash,
		Salt:         cred.Salt,
		Iterations:   cred.Iterations,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return user
}

// testLogger returns a logger that discards nothing but stays quiet at
// error level unless tests fail loudly anyway.
func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

// memoryTokenRepo is an in-memory TokenRepository that records calls.
type memoryTokenRepo struct {
	mu     sync.Mutex
	rows   map[string]StoredToken
	fail   bool // when true, every call errors
	orders []string
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{rows: make(map[string]StoredToken)}
}

func (r *memoryTokenRepo) SelectAll(context.Context) ([]StoredToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errTestRepo
	}
	var out []StoredToken
	for _, t := range r.rows {
		out = append(out, t)
	}
	return out, nil
}

func (r *memoryTokenRepo) Insert(_ context.Context, token, username string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errTestRepo
	}
	r.rows[token] = StoredToken{Token: token, Username: username, ExpiresAt: expiresAt}
	r.orders = append(r.orders, "insert")
	return nil
}

func (r *memoryTokenRepo) UpdateExpiry(_ context.Context, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errTestRepo
	}
	if row, ok := r.rows[token]; ok {
		row.ExpiresAt = expiresAt
		r.rows[token] = row
	}
	r.orders = append(r.orders, "update")
	return nil
}

func (r *memoryTokenRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errTestRepo
	}
	delete(r.rows, token)
	r.orders = append(r.orders, "delete")
	return nil
}

func (r *memoryTokenRepo) get(token string) (StoredToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[token]
	return t, ok
}

func (r *memoryTokenRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

var errTestRepo = sql.ErrConnDone
