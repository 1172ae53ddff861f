package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benvon/gtd/internal/models"
)

// ProjectRepository handles project database operations
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, description, is_active, created_at, updated_at`

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	var description sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	return p, nil
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (name, description, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, p.Name, nullString(p.Description), p.IsActive).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// List retrieves projects, only active ones when activeOnly is set
func (r *ProjectRepository) List(ctx context.Context, activeOnly bool) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC, id ASC`
	return r.query(ctx, query)
}

// ListStalled retrieves active projects that have no next_action task
func (r *ProjectRepository) ListStalled(ctx context.Context) ([]*models.Project, error) {
	query := `
		SELECT ` + projectColumns + ` FROM projects p
		WHERE p.is_active AND NOT EXISTS (
			SELECT 1 FROM tasks t WHERE t.project_id = p.id AND t.status = 'next_action'
		)
		ORDER BY p.name ASC, p.id ASC
	`
	return r.query(ctx, query)
}

func (r *ProjectRepository) query(ctx context.Context, query string, args ...any) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// Update writes name, description and active flag
func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	query := `
		UPDATE projects SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query, p.ID, p.Name, nullString(p.Description), p.IsActive).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("project %d: %w", p.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Delete removes a project. Its tasks become standalone.
func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return expectOneRow(res, "project", id)
}

// CountActive counts active projects
func (r *ProjectRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active projects: %w", err)
	}
	return n, nil
}

// CountActiveWithNextAction counts active projects with at least one next_action task
func (r *ProjectRepository) CountActiveWithNextAction(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM projects p
		WHERE p.is_active AND EXISTS (
			SELECT 1 FROM tasks t WHERE t.project_id = p.id AND t.status = 'next_action'
		)
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count projects with next actions: %w", err)
	}
	return n, nil
}
