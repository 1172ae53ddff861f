package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/gtd/internal/models"
)

// WeeklyReviewRepository stores weekly review snapshots. Rows are never updated.
type WeeklyReviewRepository struct {
	db *DB
}

// NewWeeklyReviewRepository creates a new weekly review repository
func NewWeeklyReviewRepository(db *DB) *WeeklyReviewRepository {
	return &WeeklyReviewRepository{db: db}
}

const reviewColumns = `id, completed_at, projects_reviewed, stalled_projects_found, waiting_for_reviewed,
	someday_reviewed, completed_tasks_count, notes`

func scanReview(row rowScanner) (*models.WeeklyReview, error) {
	wr := &models.WeeklyReview{}
	var notes sql.NullString
	err := row.Scan(&wr.ID, &wr.CompletedAt, &wr.ProjectsReviewed, &wr.StalledProjectsFound,
		&wr.WaitingForReviewed, &wr.SomedayReviewed, &wr.CompletedTasksCount, &notes)
	if err != nil {
		return nil, err
	}
	wr.Notes = stringPtr(notes)
	return wr, nil
}

// Create stores a review snapshot. A zero CompletedAt means now.
func (r *WeeklyReviewRepository) Create(ctx context.Context, wr *models.WeeklyReview) error {
	if wr.CompletedAt.IsZero() {
		wr.CompletedAt = time.Now()
	}
	query := `
		INSERT INTO weekly_reviews (completed_at, projects_reviewed, stalled_projects_found, waiting_for_reviewed,
			someday_reviewed, completed_tasks_count, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, wr.CompletedAt, wr.ProjectsReviewed, wr.StalledProjectsFound,
		wr.WaitingForReviewed, wr.SomedayReviewed, wr.CompletedTasksCount, nullString(wr.Notes)).Scan(&wr.ID)
	if err != nil {
		return fmt.Errorf("failed to create weekly review: %w", err)
	}
	return nil
}

// List retrieves reviews newest first
func (r *WeeklyReviewRepository) List(ctx context.Context) ([]*models.WeeklyReview, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+reviewColumns+` FROM weekly_reviews ORDER BY completed_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*models.WeeklyReview{}
	for rows.Next() {
		wr, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan weekly review: %w", err)
		}
		reviews = append(reviews, wr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate weekly reviews: %w", err)
	}
	return reviews, nil
}

// Latest returns the most recent review or ErrNotFound when none exists
func (r *WeeklyReviewRepository) Latest(ctx context.Context) (*models.WeeklyReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM weekly_reviews ORDER BY completed_at DESC, id DESC LIMIT 1`
	wr, err := scanReview(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("weekly review: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest weekly review: %w", err)
	}
	return wr, nil
}

// CountCompletedSince counts reviews completed at or after since
func (r *WeeklyReviewRepository) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weekly_reviews WHERE completed_at >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count weekly reviews: %w", err)
	}
	return n, nil
}

// CalendarTokenRepository persists the single calendar OAuth grant
type CalendarTokenRepository struct {
	db *DB
}

// NewCalendarTokenRepository creates a new calendar token repository
func NewCalendarTokenRepository(db *DB) *CalendarTokenRepository {
	return &CalendarTokenRepository{db: db}
}

// Get returns the stored token or ErrNotFound
func (r *CalendarTokenRepository) Get(ctx context.Context) (*models.CalendarToken, error) {
	tok := &models.CalendarToken{}
	var expiry sql.NullTime
	query := `SELECT access_token, refresh_token, token_type, expiry, updated_at FROM calendar_tokens WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry, &tok.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calendar token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar token: %w", err)
	}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return tok, nil
}

// Save upserts the token. An empty refresh token keeps the stored one.
func (r *CalendarTokenRepository) Save(ctx context.Context, tok *models.CalendarToken) error {
	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry, Valid: true}
	}
	query := `
		INSERT INTO calendar_tokens (id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), calendar_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
		RETURNING updated_at
	`
	if err := r.db.QueryRowContext(ctx, query, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiry).Scan(&tok.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save calendar token: %w", err)
	}
	return nil
}
