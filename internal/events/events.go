// Package events carries narrow change notifications. Each Change names
// exactly which lists a mutation touched so subscribers refetch only those.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/benvon/gtd/internal/models"
	"github.com/google/uuid"
)

// Entity names used in Change.Entity
const (
	EntityTask         = "task"
	EntityProject      = "project"
	EntityContext      = "context"
	EntityEmail        = "email"
	EntityEmailAccount = "email_account"
	EntityWeeklyReview = "weekly_review"
)

// Actions used in Change.Action
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// List keys that are not partitioned by status or folder
const (
	ListProjects      = "projects"
	ListContexts      = "contexts"
	ListEmailAccounts = "email_accounts"
	ListWeeklyReviews = "weekly_reviews"
	ListDashboard     = "dashboard"
)

// Change is one mutation notification
type Change struct {
	ID       uuid.UUID `json:"id"`
	Entity   string    `json:"entity"`
	EntityID *int64    `json:"entity_id,omitempty"`
	Action   string    `json:"action"`
	Lists    []string  `json:"lists"`
	At       time.Time `json:"at"`
}

// NewChange builds a change for entity id. Lists are deduplicated in order.
func NewChange(entity string, id int64, action string, lists ...string) Change {
	c := Change{
		ID:     uuid.New(),
		Entity: entity,
		Action: action,
		Lists:  dedupe(lists),
		At:     time.Now().UTC(),
	}
	if id != 0 {
		c.EntityID = &id
	}
	return c
}

// TaskList is the list key for tasks in status s
func TaskList(s models.TaskStatus) string {
	return "tasks:" + string(s)
}

// EmailList is the list key for emails in folder f
func EmailList(f models.EmailFolder) string {
	return "emails:" + string(f)
}

// Touches reports whether the change names list key
func (c Change) Touches(list string) bool {
	for _, l := range c.Lists {
		if l == list {
			return true
		}
	}
	return false
}

// Validate rejects a change subscribers could not act on
func (c Change) Validate() error {
	if strings.TrimSpace(c.Entity) == "" {
		return errors.New("change entity is required")
	}
	if len(c.Lists) == 0 {
		return errors.New("change must name at least one list")
	}
	return nil
}

func dedupe(lists []string) []string {
	out := make([]string, 0, len(lists))
	seen := make(map[string]struct{}, len(lists))
	for _, l := range lists {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Publisher delivers changes to subscribers
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

// Publish sends c to each publisher in order
func (m Multi) Publish(ctx context.Context, c Change) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every change
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Change) error { return nil }

var (
	_ Publisher = Multi(nil)
	_ Publisher = Nop{}
)
