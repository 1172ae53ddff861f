package clarify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benvon/gtd/internal/models"
)

// Action discriminates a ProcessingResult
type Action string

const (
	ActionTrash      Action = "trash"
	ActionReference  Action = "reference"
	ActionSomeday    Action = "someday"
	ActionDoNow      Action = "do-now"
	ActionDelegate   Action = "delegate"
	ActionNextAction Action = "next-action"
	ActionDefer      Action = "defer"
)

const (
	minNextActionLen  = 3
	minProjectNameLen = 3
)

// Details is the status-specific payload of a result. Each action that carries a
// task payload has exactly one Details type.
type Details interface {
	action() Action
	// applyTo patches t with the payload. Optional fields left nil keep their
	// saved values; fields that belong to other statuses are cleared.
	applyTo(t *models.Task)
}

// ReferenceDetails files the item as reference material
type ReferenceDetails struct {
	Category *string
}

// SomedayDetails parks the item on the someday/maybe list
type SomedayDetails struct {
	Notes *string
}

// WaitingDetails delegates the item and records when to check back
type WaitingDetails struct {
	Title       string
	WaitingFor  string
	FollowUp    time.Time
	Description *string
	EmailID     *int64
}

// NextActionDetails turns the item into an organized next action
type NextActionDetails struct {
	Title        string
	ProjectID    *int64
	ContextID    *int64
	TimeEstimate *models.TimeEstimate
	EnergyLevel  *models.EnergyLevel
	DueDate      *time.Time
	Description  *string
	EmailID      *int64
}

func (ReferenceDetails) action() Action  { return ActionReference }
func (SomedayDetails) action() Action    { return ActionSomeday }
func (WaitingDetails) action() Action    { return ActionDelegate }
func (NextActionDetails) action() Action { return ActionNextAction }

func clearStatusFields(t *models.Task) {
	t.WaitingFor = nil
	t.WaitingForFollowUp = nil
	t.ReferenceCategory = nil
}

func (d ReferenceDetails) applyTo(t *models.Task) {
	clearStatusFields(t)
	t.Status = models.TaskStatusReference
	t.ReferenceCategory = d.Category
}

func (d SomedayDetails) applyTo(t *models.Task) {
	clearStatusFields(t)
	t.Status = models.TaskStatusSomeday
	if d.Notes != nil {
		t.Notes = d.Notes
	}
}

func (d WaitingDetails) applyTo(t *models.Task) {
	clearStatusFields(t)
	t.Status = models.TaskStatusWaiting
	t.Title = d.Title
	waitingFor := d.WaitingFor
	followUp := d.FollowUp
	t.WaitingFor = &waitingFor
	t.WaitingForFollowUp = &followUp
	if d.Description != nil {
		t.Description = d.Description
	}
	if d.EmailID != nil {
		t.EmailID = d.EmailID
	}
}

func (d NextActionDetails) applyTo(t *models.Task) {
	clearStatusFields(t)
	t.Status = models.TaskStatusNextAction
	t.Title = d.Title
	if d.ProjectID != nil {
		t.ProjectID = d.ProjectID
	}
	if d.ContextID != nil {
		t.ContextID = d.ContextID
	}
	if d.TimeEstimate != nil {
		t.TimeEstimate = d.TimeEstimate
	}
	if d.EnergyLevel != nil {
		t.EnergyLevel = d.EnergyLevel
	}
	if d.DueDate != nil {
		t.DueDate = d.DueDate
	}
	if d.Description != nil {
		t.Description = d.Description
	}
	if d.EmailID != nil {
		t.EmailID = d.EmailID
	}
}

// ProjectRequest asks the caller to create a project before writing the task
type ProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Result is the ProcessingResult emitted when a clarification run ends
type Result struct {
	Action        Action
	Details       Details
	CreateProject *ProjectRequest
}

// DeferResult is the programmatic defer result. It is never emitted by a Workflow.
func DeferResult() Result {
	return Result{Action: ActionDefer}
}

// Validate checks that the details variant matches the action and carries what it must
func (r Result) Validate() error {
	switch r.Action {
	case ActionTrash, ActionDoNow, ActionDefer:
		if r.Details != nil {
			return fmt.Errorf("%w: %s carries no task payload", ErrInvalidInput, r.Action)
		}
		if r.CreateProject != nil {
			return fmt.Errorf("%w: %s cannot create a project", ErrInvalidInput, r.Action)
		}
		return nil
	case ActionReference, ActionSomeday:
		if r.CreateProject != nil {
			return fmt.Errorf("%w: %s cannot create a project", ErrInvalidInput, r.Action)
		}
	case ActionDelegate, ActionNextAction:
		if r.CreateProject != nil {
			if err := validateProjectName(r.CreateProject.Name); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, r.Action)
	}

	if r.Details == nil {
		return fmt.Errorf("%w: %s requires a task payload", ErrInvalidInput, r.Action)
	}
	if r.Details.action() != r.Action {
		return fmt.Errorf("%w: %s payload does not match action %s", ErrInvalidInput, r.Details.action(), r.Action)
	}

	switch d := r.Details.(type) {
	case WaitingDetails:
		if strings.TrimSpace(d.Title) == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		if strings.TrimSpace(d.WaitingFor) == "" {
			return fmt.Errorf("%w: waiting_for is required", ErrInvalidInput)
		}
		if d.FollowUp.IsZero() {
			return fmt.Errorf("%w: waiting_for_follow_up is required", ErrInvalidInput)
		}
	case NextActionDetails:
		if err := validateNextAction(d.Title); err != nil {
			return err
		}
		if d.TimeEstimate != nil && !d.TimeEstimate.Valid() {
			return fmt.Errorf("%w: invalid time_estimate %q", ErrInvalidInput, *d.TimeEstimate)
		}
		if d.EnergyLevel != nil && !d.EnergyLevel.Valid() {
			return fmt.Errorf("%w: invalid energy_level %q", ErrInvalidInput, *d.EnergyLevel)
		}
		if d.ProjectID != nil && r.CreateProject != nil {
			return fmt.Errorf("%w: project_id and create_project are exclusive", ErrInvalidInput)
		}
	}
	return nil
}

// ApplyToTask mutates an existing task the way the result prescribes.
// Defer only bumps the counter and leaves the status alone.
func (r Result) ApplyToTask(t *models.Task, now time.Time) {
	switch r.Action {
	case ActionTrash:
		t.SetStatus(models.TaskStatusTrash, now)
	case ActionDoNow:
		t.SetStatus(models.TaskStatusDone, now)
	case ActionDefer:
		t.DeferCount++
	default:
		if r.Details != nil {
			r.Details.applyTo(t)
			t.SetStatus(t.Status, now)
		}
	}
}

// NewTask builds the task an email-origin result creates. It returns nil for
// actions that create no task.
func (r Result) NewTask(now time.Time) *models.Task {
	if r.Details == nil {
		return nil
	}
	switch r.Action {
	case ActionDelegate, ActionNextAction:
	default:
		return nil
	}
	t := &models.Task{Status: models.TaskStatusInbox}
	r.Details.applyTo(t)
	t.SetStatus(t.Status, now)
	return t
}

// WithProjectID returns a copy whose next action belongs to project id
func (r Result) WithProjectID(id int64) Result {
	if d, ok := r.Details.(NextActionDetails); ok {
		d.ProjectID = &id
		r.Details = d
	}
	return r
}

func validateNextAction(text string) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minNextActionLen {
		return fmt.Errorf("%w: next action must be at least %d characters", ErrInvalidInput, minNextActionLen)
	}
	return nil
}

func validateProjectName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < minProjectNameLen {
		return fmt.Errorf("%w: project name must be at least %d characters", ErrInvalidInput, minProjectNameLen)
	}
	return nil
}

// taskPayload is the JSON form of Details
type taskPayload struct {
	Title              string               `json:"title,omitempty"`
	Status             models.TaskStatus    `json:"status"`
	ProjectID          *int64               `json:"project_id,omitempty"`
	ContextID          *int64               `json:"context_id,omitempty"`
	TimeEstimate       *models.TimeEstimate `json:"time_estimate,omitempty"`
	EnergyLevel        *models.EnergyLevel  `json:"energy_level,omitempty"`
	DueDate            string               `json:"due_date,omitempty"`
	WaitingFor         string               `json:"waiting_for,omitempty"`
	WaitingForFollowUp string               `json:"waiting_for_follow_up,omitempty"`
	ReferenceCategory  *string              `json:"reference_category,omitempty"`
	Notes              *string              `json:"notes,omitempty"`
	Description        *string              `json:"description,omitempty"`
	EmailID            *int64               `json:"email_id,omitempty"`
}

type resultJSON struct {
	Action        Action          `json:"action"`
	Task          *taskPayload    `json:"task,omitempty"`
	CreateProject *ProjectRequest `json:"create_project,omitempty"`
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}

// MarshalJSON renders {"action", "task", "create_project"}
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Action: r.Action, CreateProject: r.CreateProject}
	switch d := r.Details.(type) {
	case nil:
	case ReferenceDetails:
		out.Task = &taskPayload{Status: models.TaskStatusReference, ReferenceCategory: d.Category}
	case SomedayDetails:
		out.Task = &taskPayload{Status: models.TaskStatusSomeday, Notes: d.Notes}
	case WaitingDetails:
		out.Task = &taskPayload{
			Title:              d.Title,
			Status:             models.TaskStatusWaiting,
			WaitingFor:         d.WaitingFor,
			WaitingForFollowUp: formatDate(&d.FollowUp),
			Description:        d.Description,
			EmailID:            d.EmailID,
		}
	case NextActionDetails:
		out.Task = &taskPayload{
			Title:        d.Title,
			Status:       models.TaskStatusNextAction,
			ProjectID:    d.ProjectID,
			ContextID:    d.ContextID,
			TimeEstimate: d.TimeEstimate,
			EnergyLevel:  d.EnergyLevel,
			DueDate:      formatDate(d.DueDate),
			Description:  d.Description,
			EmailID:      d.EmailID,
		}
	default:
		return nil, fmt.Errorf("unknown details type %T", d)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the action and decodes the task payload into the matching Details
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	res := Result{Action: in.Action, CreateProject: in.CreateProject}
	p := in.Task

	switch in.Action {
	case ActionTrash, ActionDoNow, ActionDefer:
	case ActionReference:
		d := ReferenceDetails{}
		if p != nil {
			d.Category = p.ReferenceCategory
		}
		res.Details = d
	case ActionSomeday:
		d := SomedayDetails{}
		if p != nil {
			d.Notes = p.Notes
		}
		res.Details = d
	case ActionDelegate:
		if p == nil {
			return fmt.Errorf("%w: delegate requires a task payload", ErrInvalidInput)
		}
		d := WaitingDetails{Title: p.Title, WaitingFor: p.WaitingFor, Description: p.Description, EmailID: p.EmailID}
		if p.WaitingForFollowUp != "" {
			followUp, err := models.ParseDate(p.WaitingForFollowUp)
			if err != nil {
				return fmt.Errorf("%w: invalid waiting_for_follow_up: %v", ErrInvalidInput, err)
			}
			d.FollowUp = followUp
		}
		res.Details = d
	case ActionNextAction:
		if p == nil {
			return fmt.Errorf("%w: next-action requires a task payload", ErrInvalidInput)
		}
		d := NextActionDetails{
			Title:        p.Title,
			ProjectID:    p.ProjectID,
			ContextID:    p.ContextID,
			TimeEstimate: p.TimeEstimate,
			EnergyLevel:  p.EnergyLevel,
			Description:  p.Description,
			EmailID:      p.EmailID,
		}
		if p.DueDate != "" {
			due, err := models.ParseDate(p.DueDate)
			if err != nil {
				return fmt.Errorf("%w: invalid due_date: %v", ErrInvalidInput, err)
			}
			d.DueDate = &due
		}
		res.Details = d
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, in.Action)
	}

	*r = res
	return nil
}
