package clarify

import "github.com/benvon/gtd/internal/models"

// Item is the inbox item being clarified. It is either a TaskItem or an EmailItem.
type Item interface {
	isItem()
	// Origin names the item kind for logs and metrics
	Origin() string
	// Title is what the item is called before it has a next action
	Title() string
	// Description is carried onto the resulting task
	Description() *string
	// EmailID is set only for email-origin items
	EmailID() *int64
}

// TaskItem is a task sitting in the inbox
type TaskItem struct {
	Task *models.Task
}

// EmailItem is an unprocessed inbox email
type EmailItem struct {
	Email *models.Email
}

func (TaskItem) isItem()  {}
func (EmailItem) isItem() {}

func (TaskItem) Origin() string  { return "task" }
func (EmailItem) Origin() string { return "email" }

func (i TaskItem) Title() string { return i.Task.Title }

func (i EmailItem) Title() string {
	if i.Email.Subject == "" {
		return "(no subject)"
	}
	return i.Email.Subject
}

func (i TaskItem) Description() *string { return i.Task.Description }

func (i EmailItem) Description() *string {
	if i.Email.Content == "" {
		return nil
	}
	content := i.Email.Content
	return &content
}

func (TaskItem) EmailID() *int64 { return nil }

func (i EmailItem) EmailID() *int64 {
	id := i.Email.ID
	return &id
}
