package models

import (
	"time"
)

// TaskStatus represents the GTD bucket a task lives in
type TaskStatus string

const (
	TaskStatusInbox      TaskStatus = "inbox"
	TaskStatusNextAction TaskStatus = "next_action"
	TaskStatusWaiting    TaskStatus = "waiting"
	TaskStatusSomeday    TaskStatus = "someday"
	TaskStatusReference  TaskStatus = "reference"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusTrash      TaskStatus = "trash"
)

// TaskStatuses lists every valid status in display order
var TaskStatuses = []TaskStatus{
	TaskStatusInbox,
	TaskStatusNextAction,
	TaskStatusWaiting,
	TaskStatusSomeday,
	TaskStatusReference,
	TaskStatusDone,
	TaskStatusTrash,
}

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// TimeEstimate is a coarse effort bucket for a next action
type TimeEstimate string

const (
	TimeEstimate15Min   TimeEstimate = "15min"
	TimeEstimate30Min   TimeEstimate = "30min"
	TimeEstimate1Hr     TimeEstimate = "1hr"
	TimeEstimate2HrPlus TimeEstimate = "2hr+"
)

// Valid reports whether e is a known estimate
func (e TimeEstimate) Valid() bool {
	switch e {
	case TimeEstimate15Min, TimeEstimate30Min, TimeEstimate1Hr, TimeEstimate2HrPlus:
		return true
	default:
		return false
	}
}

// EnergyLevel is the energy a next action demands
type EnergyLevel string

const (
	EnergyHigh   EnergyLevel = "high"
	EnergyMedium EnergyLevel = "medium"
	EnergyLow    EnergyLevel = "low"
)

// Valid reports whether e is a known energy level
func (e EnergyLevel) Valid() bool {
	switch e {
	case EnergyHigh, EnergyMedium, EnergyLow:
		return true
	default:
		return false
	}
}

// Task represents a captured item and everything the clarify step decided about it.
// Which of the status-specific fields (WaitingFor, ReferenceCategory, Notes) carry meaning
// depends on Status; the clarify package is what keeps them consistent.
type Task struct {
	ID                 int64         `json:"id"`
	Title              string        `json:"title"`
	Description        *string       `json:"description,omitempty"`
	Status             TaskStatus    `json:"status"`
	ProjectID          *int64        `json:"project_id,omitempty"`
	ContextID          *int64        `json:"context_id,omitempty"`
	DueDate            *time.Time    `json:"due_date,omitempty"`
	EmailID            *int64        `json:"email_id,omitempty"`
	DeferCount         int           `json:"defer_count"`
	TimeEstimate       *TimeEstimate `json:"time_estimate,omitempty"`
	EnergyLevel        *EnergyLevel  `json:"energy_level,omitempty"`
	WaitingFor         *string       `json:"waiting_for,omitempty"`
	WaitingForFollowUp *time.Time    `json:"waiting_for_follow_up,omitempty"`
	ReferenceCategory  *string       `json:"reference_category,omitempty"`
	Notes              *string       `json:"notes,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// SetStatus changes the status and keeps CompletedAt in step with it
func (t *Task) SetStatus(status TaskStatus, now time.Time) {
	if status == TaskStatusDone && t.Status != TaskStatusDone {
		t.CompletedAt = &now
	}
	if status != TaskStatusDone {
		t.CompletedAt = nil
	}
	t.Status = status
}

// TaskFilter narrows task listings. Nil fields are ignored.
type TaskFilter struct {
	Status    *TaskStatus
	ProjectID *int64
	ContextID *int64
}

// DateLayout is the wire format of date-only fields (due date, follow-up date)
const DateLayout = "2006-01-02"

// ParseDate accepts a YYYY-MM-DD date or an RFC 3339 timestamp
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
