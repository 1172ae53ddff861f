package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benvon/gtd/internal/models"
)

// ContextRepository handles GTD context database operations
type ContextRepository struct {
	db *DB
}

// NewContextRepository creates a new context repository
func NewContextRepository(db *DB) *ContextRepository {
	return &ContextRepository{db: db}
}

// Create creates a new context. A duplicate name returns ErrConflict.
func (r *ContextRepository) Create(ctx context.Context, c *models.Context) error {
	query := `INSERT INTO contexts (name, color) VALUES ($1, $2) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, c.Name, c.Color).Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("context %q: %w", c.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}
	return nil
}

// GetByID retrieves a context by ID
func (r *ContextRepository) GetByID(ctx context.Context, id int64) (*models.Context, error) {
	c := &models.Context{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name, color, created_at FROM contexts WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Color, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context: %w", err)
	}
	return c, nil
}

// List retrieves all contexts ordered by name
func (r *ContextRepository) List(ctx context.Context) ([]*models.Context, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, created_at FROM contexts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	contexts := []*models.Context{}
	for rows.Next() {
		c := &models.Context{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contexts: %w", err)
	}
	return contexts, nil
}

// Update writes name and color
func (r *ContextRepository) Update(ctx context.Context, c *models.Context) error {
	res, err := r.db.ExecContext(ctx, `UPDATE contexts SET name = $2, color = $3 WHERE id = $1`, c.ID, c.Name, c.Color)
	if isUniqueViolation(err) {
		return fmt.Errorf("context %q: %w", c.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update context: %w", err)
	}
	return expectOneRow(res, "context", c.ID)
}

// Delete removes a context. Tasks using it become uncategorized.
func (r *ContextRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contexts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return expectOneRow(res, "context", id)
}
