package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/models"
	"go.uber.org/zap"
)

const (
	// pendingEmailAge is how long an unprocessed email may sit before it counts as backlog
	pendingEmailAge = 48 * time.Hour
	completedWindow = 7 * 24 * time.Hour
)

// Inputs are the counts the heuristics are computed from
type Inputs struct {
	InboxCount             int  `json:"inbox_count"`
	PendingCount           int  `json:"pending_count"`
	ActiveProjects         int  `json:"active_projects"`
	ProjectsWithNextAction int  `json:"projects_with_next_action"`
	DaysSinceReview        *int `json:"days_since_review"`
	CompletedThisWeek      int  `json:"completed_this_week"`
	StaleWaiting           int  `json:"stale_waiting"`
}

// Snapshot is the dashboard health view
type Snapshot struct {
	Capture     Score     `json:"capture"`
	Clarify     Score     `json:"clarify"`
	Organize    Score     `json:"organize"`
	Reflect     Score     `json:"reflect"`
	Engage      Score     `json:"engage"`
	Inputs      Inputs    `json:"inputs"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Compute scores every heuristic from in
func Compute(in Inputs, now time.Time) Snapshot {
	return Snapshot{
		Capture:     Capture(in.InboxCount),
		Clarify:     Clarify(in.PendingCount),
		Organize:    Organize(in.ActiveProjects, in.ProjectsWithNextAction),
		Reflect:     Reflect(in.DaysSinceReview),
		Engage:      Engage(in.CompletedThisWeek, in.StaleWaiting),
		Inputs:      in,
		GeneratedAt: now,
	}
}

// DaysBetween counts calendar days from then to now in now's location
func DaysBetween(then, now time.Time) int {
	then = then.In(now.Location())
	y1, m1, d1 := then.Date()
	y2, m2, d2 := now.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Service gathers Inputs from the repositories
type Service struct {
	tasks    database.TaskRepositoryInterface
	projects database.ProjectRepositoryInterface
	emails   database.EmailRepositoryInterface
	reviews  database.WeeklyReviewRepositoryInterface
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new health service
func NewService(
	tasks database.TaskRepositoryInterface,
	projects database.ProjectRepositoryInterface,
	emails database.EmailRepositoryInterface,
	reviews database.WeeklyReviewRepositoryInterface,
	logger *zap.Logger,
) *Service {
	return &Service{
		tasks:    tasks,
		projects: projects,
		emails:   emails,
		reviews:  reviews,
		logger:   logger,
		now:      time.Now,
	}
}

// Inputs collects the current counts
func (s *Service) Inputs(ctx context.Context) (Inputs, error) {
	now := s.now()
	var in Inputs

	inboxTasks, err := s.tasks.CountByStatus(ctx, models.TaskStatusInbox)
	if err != nil {
		return in, err
	}
	inboxEmails, err := s.emails.CountUnprocessedInbox(ctx)
	if err != nil {
		return in, err
	}
	in.InboxCount = inboxTasks + inboxEmails

	deferred, err := s.tasks.CountDeferredInbox(ctx)
	if err != nil {
		return in, err
	}
	oldEmails, err := s.emails.CountUnprocessedOlderThan(ctx, now.Add(-pendingEmailAge))
	if err != nil {
		return in, err
	}
	in.PendingCount = deferred + oldEmails

	if in.ActiveProjects, err = s.projects.CountActive(ctx); err != nil {
		return in, err
	}
	if in.ProjectsWithNextAction, err = s.projects.CountActiveWithNextAction(ctx); err != nil {
		return in, err
	}

	latest, err := s.reviews.Latest(ctx)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return in, err
	default:
		days := DaysBetween(latest.CompletedAt, now)
		in.DaysSinceReview = &days
	}

	if in.CompletedThisWeek, err = s.tasks.CountCompletedSince(ctx, now.Add(-completedWindow)); err != nil {
		return in, err
	}
	if in.StaleWaiting, err = s.tasks.CountStaleWaiting(ctx, now); err != nil {
		return in, err
	}

	return in, nil
}

// Snapshot collects inputs and scores them
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	in, err := s.Inputs(ctx)
	if err != nil {
		s.logger.Error("failed_to_collect_health_inputs", zap.Error(err))
		return Snapshot{}, fmt.Errorf("failed to collect health inputs: %w", err)
	}
	return Compute(in, s.now()), nil
}
