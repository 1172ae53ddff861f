package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/gtd/internal/models"
)

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, title, description, status, project_id, context_id, due_date, email_id, defer_count,
	time_estimate, energy_level, waiting_for, waiting_for_follow_up, reference_category, notes,
	created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var (
		description, timeEstimate, energyLevel sql.NullString
		waitingFor, referenceCategory, notes   sql.NullString
		projectID, contextID, emailID          sql.NullInt64
		dueDate, followUp, completedAt         sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.Status,
		&projectID,
		&contextID,
		&dueDate,
		&emailID,
		&task.DeferCount,
		&timeEstimate,
		&energyLevel,
		&waitingFor,
		&followUp,
		&referenceCategory,
		&notes,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = stringPtr(description)
	task.ProjectID = int64Ptr(projectID)
	task.ContextID = int64Ptr(contextID)
	task.DueDate = timePtr(dueDate)
	task.EmailID = int64Ptr(emailID)
	task.WaitingFor = stringPtr(waitingFor)
	task.WaitingForFollowUp = timePtr(followUp)
	task.ReferenceCategory = stringPtr(referenceCategory)
	task.Notes = stringPtr(notes)
	task.CompletedAt = timePtr(completedAt)
	if timeEstimate.Valid {
		te := models.TimeEstimate(timeEstimate.String)
		task.TimeEstimate = &te
	}
	if energyLevel.Valid {
		el := models.EnergyLevel(energyLevel.String)
		task.EnergyLevel = &el
	}

	return task, nil
}

func timeEstimateArg(te *models.TimeEstimate) sql.NullString {
	if te == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*te), Valid: true}
}

func energyLevelArg(el *models.EnergyLevel) sql.NullString {
	if el == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*el), Valid: true}
}

// Create creates a new task and fills in its id and timestamps
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (title, description, status, project_id, context_id, due_date, email_id, defer_count,
			time_estimate, energy_level, waiting_for, waiting_for_follow_up, reference_category, notes,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15, $16)
		RETURNING id, created_at, updated_at
	`

	if task.Status == "" {
		task.Status = models.TaskStatusInbox
	}

	now := time.Now()
	if task.Status == models.TaskStatusDone && task.CompletedAt == nil {
		task.CompletedAt = &now
	}

	err := r.db.QueryRowContext(ctx, query,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullInt64(task.ProjectID),
		nullInt64(task.ContextID),
		nullTime(task.DueDate),
		nullInt64(task.EmailID),
		task.DeferCount,
		timeEstimateArg(task.TimeEstimate),
		energyLevelArg(task.EnergyLevel),
		nullString(task.WaitingFor),
		nullTime(task.WaitingForFollowUp),
		nullString(task.ReferenceCategory),
		nullString(task.Notes),
		now,
		nullTime(task.CompletedAt),
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)

	if isForeignKeyViolation(err) {
		return referenceError("task", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// List retrieves tasks, optionally filtered by status, project and context
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1 = 1`
	args := []any{}
	argIndex := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}

	if filter.ProjectID != nil {
		query += fmt.Sprintf(" AND project_id = $%d", argIndex)
		args = append(args, *filter.ProjectID)
		argIndex++
	}

	if filter.ContextID != nil {
		query += fmt.Sprintf(" AND context_id = $%d", argIndex)
		args = append(args, *filter.ContextID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Update writes every mutable column of the task
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, project_id = $5, context_id = $6, due_date = $7,
			email_id = $8, defer_count = $9, time_estimate = $10, energy_level = $11, waiting_for = $12,
			waiting_for_follow_up = $13, reference_category = $14, notes = $15, completed_at = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullInt64(task.ProjectID),
		nullInt64(task.ContextID),
		nullTime(task.DueDate),
		nullInt64(task.EmailID),
		task.DeferCount,
		timeEstimateArg(task.TimeEstimate),
		energyLevelArg(task.EnergyLevel),
		nullString(task.WaitingFor),
		nullTime(task.WaitingForFollowUp),
		nullString(task.ReferenceCategory),
		nullString(task.Notes),
		nullTime(task.CompletedAt),
	).Scan(&task.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %d: %w", task.ID, ErrNotFound)
	}
	if isForeignKeyViolation(err) {
		return referenceError("task", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// Delete permanently removes a task
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectOneRow(res, "task", id)
}

// IncrementDeferCount bumps defer_count without touching the status
func (r *TaskRepository) IncrementDeferCount(ctx context.Context, id int64) (*models.Task, error) {
	query := `
		UPDATE tasks SET defer_count = defer_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to defer task: %w", err)
	}
	return task, nil
}

// CountByStatus counts tasks in one status
func (r *TaskRepository) CountByStatus(ctx context.Context, status models.TaskStatus) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// CountCompletedSince counts tasks marked done at or after since
func (r *TaskRepository) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM tasks WHERE status = 'done' AND completed_at >= $1`
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count completed tasks: %w", err)
	}
	return n, nil
}

// CountStaleWaiting counts waiting tasks whose follow-up date is before now
func (r *TaskRepository) CountStaleWaiting(ctx context.Context, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM tasks WHERE status = 'waiting' AND waiting_for_follow_up < $1::date`
	if err := r.db.QueryRowContext(ctx, query, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stale waiting tasks: %w", err)
	}
	return n, nil
}

// CountDeferredInbox counts inbox tasks deferred at least once
func (r *TaskRepository) CountDeferredInbox(ctx context.Context) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM tasks WHERE status = 'inbox' AND defer_count > 0`
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count deferred tasks: %w", err)
	}
	return n, nil
}
