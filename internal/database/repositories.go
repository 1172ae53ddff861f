package database

import (
	"context"
	"time"

	"github.com/benvon/gtd/internal/models"
)

// TxRunner runs fn inside a transaction bound to the context it receives
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskRepositoryInterface defines the interface for task repository operations
// This interface enables better testability by allowing mock implementations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id int64) error
	IncrementDeferCount(ctx context.Context, id int64) (*models.Task, error)
	CountByStatus(ctx context.Context, status models.TaskStatus) (int, error)
	CountCompletedSince(ctx context.Context, since time.Time) (int, error)
	CountStaleWaiting(ctx context.Context, now time.Time) (int, error)
	CountDeferredInbox(ctx context.Context) (int, error)
}

// ProjectRepositoryInterface defines the interface for project repository operations
type ProjectRepositoryInterface interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Project, error)
	ListStalled(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	Delete(ctx context.Context, id int64) error
	CountActive(ctx context.Context) (int, error)
	CountActiveWithNextAction(ctx context.Context) (int, error)
}

// ContextRepositoryInterface defines the interface for context repository operations
type ContextRepositoryInterface interface {
	Create(ctx context.Context, c *models.Context) error
	GetByID(ctx context.Context, id int64) (*models.Context, error)
	List(ctx context.Context) ([]*models.Context, error)
	Update(ctx context.Context, c *models.Context) error
	Delete(ctx context.Context, id int64) error
}

// EmailRepositoryInterface defines the interface for email repository operations
type EmailRepositoryInterface interface {
	Create(ctx context.Context, e *models.Email) error
	InsertIfNew(ctx context.Context, e *models.Email) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Email, error)
	List(ctx context.Context, filter models.EmailFilter) ([]*models.Email, error)
	Update(ctx context.Context, e *models.Email) error
	Delete(ctx context.Context, id int64) error
	SetFolder(ctx context.Context, id int64, folder models.EmailFolder) error
	MarkProcessed(ctx context.Context, id int64) error
	CountUnprocessedInbox(ctx context.Context) (int, error)
	CountUnprocessedOlderThan(ctx context.Context, t time.Time) (int, error)
}

// EmailAccountRepositoryInterface defines the interface for email account operations
type EmailAccountRepositoryInterface interface {
	Create(ctx context.Context, a *models.EmailAccount) error
	GetByID(ctx context.Context, id int64) (*models.EmailAccount, error)
	GetByAddress(ctx context.Context, address string) (*models.EmailAccount, error)
	List(ctx context.Context, activeOnly bool) ([]*models.EmailAccount, error)
	Update(ctx context.Context, a *models.EmailAccount) error
	Delete(ctx context.Context, id int64) error
	TouchLastSync(ctx context.Context, id int64, at time.Time) error
}

// WeeklyReviewRepositoryInterface defines the interface for weekly review operations
type WeeklyReviewRepositoryInterface interface {
	Create(ctx context.Context, wr *models.WeeklyReview) error
	List(ctx context.Context) ([]*models.WeeklyReview, error)
	Latest(ctx context.Context) (*models.WeeklyReview, error)
	CountCompletedSince(ctx context.Context, since time.Time) (int, error)
}

// CalendarTokenRepositoryInterface defines the interface for calendar token storage
type CalendarTokenRepositoryInterface interface {
	Get(ctx context.Context) (*models.CalendarToken, error)
	Save(ctx context.Context, tok *models.CalendarToken) error
}

// Repositories bundles every repository built over one DB
type Repositories struct {
	Tasks          *TaskRepository
	Projects       *ProjectRepository
	Contexts       *ContextRepository
	Emails         *EmailRepository
	EmailAccounts  *EmailAccountRepository
	WeeklyReviews  *WeeklyReviewRepository
	CalendarTokens *CalendarTokenRepository
}

// NewRepositories builds all repositories over db
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Tasks:          NewTaskRepository(db),
		Projects:       NewProjectRepository(db),
		Contexts:       NewContextRepository(db),
		Emails:         NewEmailRepository(db),
		EmailAccounts:  NewEmailAccountRepository(db),
		WeeklyReviews:  NewWeeklyReviewRepository(db),
		CalendarTokens: NewCalendarTokenRepository(db),
	}
}

// Ensure concrete types implement the interfaces
var (
	_ TxRunner                         = (*DB)(nil)
	_ TaskRepositoryInterface          = (*TaskRepository)(nil)
	_ ProjectRepositoryInterface       = (*ProjectRepository)(nil)
	_ ContextRepositoryInterface       = (*ContextRepository)(nil)
	_ EmailRepositoryInterface         = (*EmailRepository)(nil)
	_ EmailAccountRepositoryInterface  = (*EmailAccountRepository)(nil)
	_ WeeklyReviewRepositoryInterface  = (*WeeklyReviewRepository)(nil)
	_ CalendarTokenRepositoryInterface = (*CalendarTokenRepository)(nil)
)
