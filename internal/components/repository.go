package components

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines persistence for components. The SQLite implementation
// is the only production one; tests may substitute their own.
type Repository interface {
	// GetByID retrieves a component by ID.
	// Returns ErrComponentNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Component, error)

	// List retrieves all components ordered by name.
	List(ctx context.Context) ([]Component, error)

	// Create inserts a new component.
	// Returns ErrPinInUse if the physical pin is already claimed.
	Create(ctx context.Context, c *Component) error

	// Update modifies an existing component.
	// Returns ErrComponentNotFound if it does not exist.
	Update(ctx context.Context, c *Component) error

	// Delete removes a component by ID.
	// Returns ErrComponentNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the components table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed component repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Component, error) {
	query := `
		SELECT id, name, description, physical_pin, direction, created_at, updated_at
		FROM components
		WHERE id = ?`

	c, err := scanComponent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrComponentNotFound
		}
		return nil, fmt.Errorf("querying component by id: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Component, error) {
	query := `
		SELECT id, name, description, physical_pin, direction, created_at, updated_at
		FROM components
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing components: %w", err)
	}
	defer rows.Close()

	var out []Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning component: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating components: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, c *Component) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO components (id, name, description, physical_pin, direction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Description, c.PhysicalPin, string(c.Direction),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			if strings.Contains(err.Error(), "physical_pin") {
				return ErrPinInUse
			}
			return ErrComponentExists
		}
		return fmt.Errorf("inserting component: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, c *Component) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE components
		SET name = ?, description = ?, physical_pin = ?, direction = ?, updated_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		c.Name, c.Description, c.PhysicalPin, string(c.Direction),
		c.UpdatedAt.Format(time.RFC3339), c.ID)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrPinInUse
		}
		return fmt.Errorf("updating component: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrComponentNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM components WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting component: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrComponentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (*Component, error) {
	var (
		c                    Component
		direction            string
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.PhysicalPin,
		&direction, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Direction = Direction(direction)

	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
