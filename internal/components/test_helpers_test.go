package components

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE components (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			physical_pin INTEGER NOT NULL UNIQUE,
			direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func testComponent(name string, pin int, dir Direction) *Component {
	return &Component{
		ID:          GenerateID(),
		Name:        name,
		Description: "test component",
		PhysicalPin: pin,
		Direction:   dir,
	}
}

// testRegistry wires a registry to a real SQLite repository and the
// in-memory driver.
func testRegistry(t *testing.T) (*Registry, *MemoryDriver) {
	t.Helper()
	driver := NewMemoryDriver()
	repo := NewSQLiteRepository(testDB(t))
	return NewRegistry(repo, driver, 2*time.Second), driver
}

// failingDriver returns errFailingDriver from every operation.
type failingDriver struct{}

var errFailingDriver = errors.New("driver failure")

func (failingDriver) Setup(context.Context, int, Direction) error { return errFailingDriver }
func (failingDriver) Write(context.Context, int, bool) error      { return errFailingDriver }
func (failingDriver) Read(context.Context, int) (int, error)      { return 0, errFailingDriver }
func (failingDriver) Release(context.Context, int) error          { return errFailingDriver }

// captureLogger records warn messages so tests can assert degraded paths.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}
