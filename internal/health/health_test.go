package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/gtd/internal/database/memstore"
	"github.com/benvon/gtd/internal/models"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func TestCapture(t *testing.T) {
	t.Parallel()
	tests := []struct {
		count     int
		wantLevel int
	}{
		{0, 1}, {1, 2}, {5, 2}, {6, 3}, {10, 3}, {11, 4}, {15, 4}, {16, 5}, {500, 5},
	}
	for _, tt := range tests {
		if got := Capture(tt.count); got.Level != tt.wantLevel {
			t.Errorf("Capture(%d).Level = %d, want %d", tt.count, got.Level, tt.wantLevel)
		}
	}
	if got := Capture(0).Metric; got != "Inbox zero" {
		t.Errorf("Expected 'Inbox zero', got %q", got)
	}
}

func TestCaptureMonotonic(t *testing.T) {
	t.Parallel()
	prev := Capture(0).Level
	if prev != 1 {
		t.Fatalf("Capture(0) = %d, want 1", prev)
	}
	for n := 1; n <= 100; n++ {
		level := Capture(n).Level
		if level < prev {
			t.Fatalf("Capture(%d) = %d dropped below Capture(%d) = %d", n, level, n-1, prev)
		}
		prev = level
	}
}

func TestClarify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		count      int
		wantLevel  int
		wantMetric string
	}{
		{0, 1, "All clarified"},
		{1, 2, "1 pending"},
		{3, 2, "3 pending"},
		{4, 3, "4 pending"},
		{7, 3, "7 pending"},
		{8, 4, "8 pending"},
		{12, 4, "12 pending"},
		{13, 5, "13 backlog"},
	}
	for _, tt := range tests {
		got := Clarify(tt.count)
		if got.Level != tt.wantLevel || got.Metric != tt.wantMetric {
			t.Errorf("Clarify(%d) = %+v, want level %d metric %q", tt.count, got, tt.wantLevel, tt.wantMetric)
		}
	}
}

func TestOrganize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		active     int
		withNext   int
		wantLevel  int
		wantMetric string
	}{
		{"no projects", 0, 0, 3, "No projects"},
		{"no projects ignores second arg", 0, 7, 3, "No projects"},
		{"all covered", 4, 4, 1, "100% have next actions"},
		{"ninety percent", 10, 9, 2, "90% have next actions"},
		{"just under ninety", 100, 89, 3, "89% have next actions"},
		{"seventy percent", 10, 7, 3, "70% have next actions"},
		{"half", 10, 5, 4, "50% have next actions"},
		{"under half", 10, 4, 5, "40% have next actions"},
		{"none", 3, 0, 5, "0% have next actions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Organize(tt.active, tt.withNext)
			if got.Level != tt.wantLevel || got.Metric != tt.wantMetric {
				t.Errorf("Organize(%d, %d) = %+v, want level %d metric %q", tt.active, tt.withNext, got, tt.wantLevel, tt.wantMetric)
			}
		})
	}
}

func TestReflect(t *testing.T) {
	t.Parallel()
	if got := Reflect(nil); got.Level != 5 || got.Metric != "Never reviewed" {
		t.Errorf("Reflect(nil) = %+v, want level 5 'Never reviewed'", got)
	}
	tests := []struct {
		days      int
		wantLevel int
	}{
		{0, 1}, {1, 1}, {3, 1}, {4, 2}, {5, 2}, {6, 3}, {7, 3}, {8, 4}, {14, 4}, {15, 5}, {90, 5},
	}
	for _, tt := range tests {
		if got := Reflect(intPtr(tt.days)); got.Level != tt.wantLevel {
			t.Errorf("Reflect(%d).Level = %d, want %d", tt.days, got.Level, tt.wantLevel)
		}
	}
	if got := Reflect(intPtr(0)).Metric; got != "Today" {
		t.Errorf("Expected 'Today', got %q", got)
	}
	if got := Reflect(intPtr(9)).Metric; got != "9 days ago" {
		t.Errorf("Expected '9 days ago', got %q", got)
	}
}

func TestEngage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		done      int
		stale     int
		wantLevel int
	}{
		{10, 0, 1},
		{10, 1, 2},
		{5, 1, 2},
		{5, 2, 3},
		{3, 9, 3},
		{2, 0, 4},
		{1, 5, 4},
		{0, 0, 5},
		{0, 3, 5},
	}
	for _, tt := range tests {
		if got := Engage(tt.done, tt.stale); got.Level != tt.wantLevel {
			t.Errorf("Engage(%d, %d).Level = %d, want %d", tt.done, tt.stale, got.Level, tt.wantLevel)
		}
	}
	if got := Engage(0, 0); got.Metric != "No progress" {
		t.Errorf("Engage(0, 0).Metric = %q, want 'No progress'", got.Metric)
	}
	if got := Engage(10, 0); got.Metric != "10 done this week" {
		t.Errorf("Engage(10, 0).Metric = %q", got.Metric)
	}
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		then time.Time
		want int
	}{
		{now, 0},
		{time.Date(2025, 1, 9, 23, 59, 0, 0, time.UTC), 1},
		{time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC), 7},
		{now.Add(48 * time.Hour), 0},
	}
	for _, tt := range tests {
		if got := DaysBetween(tt.then, now); got != tt.want {
			t.Errorf("DaysBetween(%v) = %d, want %d", tt.then, got, tt.want)
		}
	}
	// Calendar days follow now's zone: 03:00 UTC on the 10th is still the 9th at UTC-5
	zone := time.FixedZone("UTC-5", -5*60*60)
	localNow := time.Date(2025, 1, 10, 1, 0, 0, 0, zone)
	if got := DaysBetween(time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC), localNow); got != 1 {
		t.Errorf("Expected 1 day in now's zone, got %d", got)
	}
}

func TestServiceSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	store.SetNow(func() time.Time { return now })

	tasks := store.Tasks()
	projects := store.Projects()
	emails := store.Emails()
	reviews := store.WeeklyReviews()

	// two inbox tasks, one deferred
	mustCreateTask(t, tasks, &models.Task{Title: "a", Status: models.TaskStatusInbox})
	mustCreateTask(t, tasks, &models.Task{Title: "b", Status: models.TaskStatusInbox, DeferCount: 2})

	// one fresh and one old unprocessed email, one processed
	for _, e := range []*models.Email{
		{MessageID: "<1@x>", ReceivedAt: now.Add(-time.Hour)},
		{MessageID: "<2@x>", ReceivedAt: now.Add(-72 * time.Hour)},
		{MessageID: "<3@x>", ReceivedAt: now.Add(-72 * time.Hour), Processed: true},
	} {
		if err := emails.Create(ctx, e); err != nil {
			t.Fatalf("Failed to create email: %v", err)
		}
	}

	p1 := &models.Project{Name: "Alpha", IsActive: true}
	p2 := &models.Project{Name: "Beta", IsActive: true}
	for _, p := range []*models.Project{p1, p2, {Name: "Old", IsActive: false}} {
		if err := projects.Create(ctx, p); err != nil {
			t.Fatalf("Failed to create project: %v", err)
		}
	}
	mustCreateTask(t, tasks, &models.Task{Title: "next", Status: models.TaskStatusNextAction, ProjectID: &p1.ID})

	completed := now.Add(-24 * time.Hour)
	mustCreateTask(t, tasks, &models.Task{Title: "done", Status: models.TaskStatusDone, CompletedAt: &completed})
	old := now.Add(-10 * 24 * time.Hour)
	mustCreateTask(t, tasks, &models.Task{Title: "old done", Status: models.TaskStatusDone, CompletedAt: &old})

	past := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	today := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	waitingFor := "Bob"
	mustCreateTask(t, tasks, &models.Task{Title: "w1", Status: models.TaskStatusWaiting, WaitingFor: &waitingFor, WaitingForFollowUp: &past})
	mustCreateTask(t, tasks, &models.Task{Title: "w2", Status: models.TaskStatusWaiting, WaitingFor: &waitingFor, WaitingForFollowUp: &today})

	if err := reviews.Create(ctx, &models.WeeklyReview{CompletedAt: now.Add(-4 * 24 * time.Hour)}); err != nil {
		t.Fatalf("Failed to create review: %v", err)
	}

	svc := NewService(tasks, projects, emails, reviews, zap.NewNop())
	svc.now = func() time.Time { return now }

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	in := snap.Inputs
	if in.InboxCount != 4 {
		t.Errorf("Expected inbox count 4, got %d", in.InboxCount)
	}
	if in.PendingCount != 2 {
		t.Errorf("Expected pending count 2, got %d", in.PendingCount)
	}
	if in.ActiveProjects != 2 || in.ProjectsWithNextAction != 1 {
		t.Errorf("Expected 2 active / 1 with next action, got %d / %d", in.ActiveProjects, in.ProjectsWithNextAction)
	}
	if in.DaysSinceReview == nil || *in.DaysSinceReview != 4 {
		t.Errorf("Expected 4 days since review, got %v", in.DaysSinceReview)
	}
	if in.CompletedThisWeek != 1 {
		t.Errorf("Expected 1 completed this week, got %d", in.CompletedThisWeek)
	}
	if in.StaleWaiting != 1 {
		t.Errorf("Expected 1 stale waiting, got %d", in.StaleWaiting)
	}

	if snap.Capture.Level != 2 || snap.Clarify.Level != 2 || snap.Organize.Level != 4 || snap.Reflect.Level != 2 || snap.Engage.Level != 4 {
		t.Errorf("Unexpected levels %+v", snap)
	}
}

func TestServiceNeverReviewed(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewService(store.Tasks(), store.Projects(), store.Emails(), store.WeeklyReviews(), zap.NewNop())
	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Inputs.DaysSinceReview != nil {
		t.Errorf("Expected nil days since review, got %d", *snap.Inputs.DaysSinceReview)
	}
	if snap.Reflect.Level != 5 || snap.Capture.Level != 1 || snap.Organize.Level != 3 || snap.Engage.Level != 5 {
		t.Errorf("Unexpected empty-store levels %+v", snap)
	}
}

type failingReviews struct {
	*memstore.WeeklyReviews
}

func (failingReviews) Latest(context.Context) (*models.WeeklyReview, error) {
	return nil, errors.New("connection reset")
}

func TestServiceSnapshotError(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewService(store.Tasks(), store.Projects(), store.Emails(), failingReviews{store.WeeklyReviews()}, zap.NewNop())
	if _, err := svc.Snapshot(context.Background()); err == nil {
		t.Error("Expected error when reviews fail")
	}
}

func mustCreateTask(t *testing.T, repo *memstore.Tasks, task *models.Task) {
	t.Helper()
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
}
