// Package inbox applies clarification results to the entity store.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/gtd/internal/clarify"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/logger"
	"github.com/benvon/gtd/internal/metrics"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInvalidResult is returned when a result cannot be applied to the item it names
var ErrInvalidResult = errors.New("invalid processing result")

// Outcome describes what Apply wrote
type Outcome struct {
	Action       clarify.Action  `json:"action"`
	Task         *models.Task    `json:"task,omitempty"`
	Project      *models.Project `json:"project,omitempty"`
	Email        *models.Email   `json:"email,omitempty"`
	EmailDeleted bool            `json:"email_deleted,omitempty"`
}

// Processor is the caller side of a clarification run
type Processor struct {
	tx        database.TxRunner
	tasks     database.TaskRepositoryInterface
	projects  database.ProjectRepositoryInterface
	emails    database.EmailRepositoryInterface
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a processor. A nil publisher discards changes.
func NewProcessor(
	tx database.TxRunner,
	tasks database.TaskRepositoryInterface,
	projects database.ProjectRepositoryInterface,
	emails database.EmailRepositoryInterface,
	publisher events.Publisher,
	log *zap.Logger,
) *Processor {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Processor{
		tx:        tx,
		tasks:     tasks,
		projects:  projects,
		emails:    emails,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// Apply writes result for item. Project creation and the task or email write
// share one transaction; the change notification goes out only after commit.
func (p *Processor) Apply(ctx context.Context, item clarify.Item, result clarify.Result) (_ *Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "inbox.apply",
		attribute.String("gtd.action", string(result.Action)),
		attribute.String("gtd.origin", item.Origin()))
	defer func() { telemetry.End(span, err) }()

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}

	var (
		out    *Outcome
		change events.Change
	)
	err = p.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		switch it := item.(type) {
		case clarify.TaskItem:
			out, change, err = p.applyToTask(ctx, it.Task.ID, result)
		case clarify.EmailItem:
			out, change, err = p.applyToEmail(ctx, it.Email.ID, result)
		default:
			err = fmt.Errorf("%w: unsupported item %T", ErrInvalidResult, item)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementProcessingResult(string(result.Action), item.Origin())
	p.logger.Info("processing_result_applied",
		zap.String("action", string(result.Action)),
		zap.String("origin", item.Origin()),
		zap.String("title", logger.SanitizeSubject(item.Title())),
		zap.Strings("lists", change.Lists))

	if err := p.publisher.Publish(ctx, change); err != nil {
		p.logger.Warn("change_publish_failed", zap.Error(err))
	}
	return out, nil
}

// Defer bumps the defer counter of an inbox task
func (p *Processor) Defer(ctx context.Context, task *models.Task) (*models.Task, error) {
	out, err := p.Apply(ctx, clarify.TaskItem{Task: task}, clarify.DeferResult())
	if err != nil {
		return nil, err
	}
	return out.Task, nil
}

func (p *Processor) createProject(ctx context.Context, req *clarify.ProjectRequest) (*models.Project, error) {
	if req == nil {
		return nil, nil
	}
	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
	}
	if err := p.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

func (p *Processor) applyToTask(ctx context.Context, id int64, result clarify.Result) (*Outcome, events.Change, error) {
	task, err := p.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, events.Change{}, err
	}
	oldStatus := task.Status
	oldProject := task.ProjectID
	out := &Outcome{Action: result.Action}

	if result.Action == clarify.ActionDefer {
		task, err = p.tasks.IncrementDeferCount(ctx, id)
		if err != nil {
			return nil, events.Change{}, err
		}
		out.Task = task
		return out, events.NewChange(events.EntityTask, id, events.ActionUpdated,
			events.TaskList(task.Status), events.ListDashboard), nil
	}

	project, err := p.createProject(ctx, result.CreateProject)
	if err != nil {
		return nil, events.Change{}, err
	}

	result.ApplyToTask(task, p.now())
	if project != nil {
		task.ProjectID = &project.ID
	}
	if err := p.tasks.Update(ctx, task); err != nil {
		return nil, events.Change{}, fmt.Errorf("failed to update task: %w", err)
	}
	out.Task = task
	out.Project = project

	lists := []string{events.TaskList(oldStatus), events.TaskList(task.Status), events.ListDashboard}
	if project != nil || !sameID(oldProject, task.ProjectID) {
		lists = append(lists, events.ListProjects)
	}
	return out, events.NewChange(events.EntityTask, id, events.ActionUpdated, lists...), nil
}

func (p *Processor) applyToEmail(ctx context.Context, id int64, result clarify.Result) (*Outcome, events.Change, error) {
	email, err := p.emails.GetByID(ctx, id)
	if err != nil {
		return nil, events.Change{}, err
	}
	out := &Outcome{Action: result.Action}
	folderList := events.EmailList(email.Folder)

	switch result.Action {
	case clarify.ActionTrash:
		if err := p.emails.Delete(ctx, id); err != nil {
			return nil, events.Change{}, fmt.Errorf("failed to delete email: %w", err)
		}
		out.EmailDeleted = true
		return out, events.NewChange(events.EntityEmail, id, events.ActionDeleted, folderList, events.ListDashboard), nil

	case clarify.ActionReference, clarify.ActionSomeday, clarify.ActionDoNow:
		if err := p.markProcessed(ctx, email); err != nil {
			return nil, events.Change{}, err
		}
		out.Email = email
		return out, events.NewChange(events.EntityEmail, id, events.ActionUpdated, folderList, events.ListDashboard), nil

	case clarify.ActionDelegate, clarify.ActionNextAction:
		project, err := p.createProject(ctx, result.CreateProject)
		if err != nil {
			return nil, events.Change{}, err
		}
		task := result.NewTask(p.now())
		task.EmailID = &email.ID
		if project != nil {
			task.ProjectID = &project.ID
		}
		if err := p.tasks.Create(ctx, task); err != nil {
			return nil, events.Change{}, fmt.Errorf("failed to create task: %w", err)
		}
		if err := p.markProcessed(ctx, email); err != nil {
			return nil, events.Change{}, err
		}
		out.Task = task
		out.Project = project
		out.Email = email

		lists := []string{folderList, events.TaskList(task.Status), events.ListDashboard}
		if task.ProjectID != nil {
			lists = append(lists, events.ListProjects)
		}
		return out, events.NewChange(events.EntityEmail, id, events.ActionUpdated, lists...), nil

	default:
		return nil, events.Change{}, fmt.Errorf("%w: %s does not apply to an email", ErrInvalidResult, result.Action)
	}
}

func (p *Processor) markProcessed(ctx context.Context, email *models.Email) error {
	if err := p.emails.MarkProcessed(ctx, email.ID); err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}
	email.Processed = true
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
