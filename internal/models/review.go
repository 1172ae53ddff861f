package models

import "time"

// WeeklyReview is a snapshot written once at the end of a review session
type WeeklyReview struct {
	ID                   int64     `json:"id"`
	CompletedAt          time.Time `json:"completed_at"`
	ProjectsReviewed     int       `json:"projects_reviewed"`
	StalledProjectsFound int       `json:"stalled_projects_found"`
	WaitingForReviewed   int       `json:"waiting_for_reviewed"`
	SomedayReviewed      int       `json:"someday_reviewed"`
	CompletedTasksCount  int       `json:"completed_tasks_count"`
	Notes                *string   `json:"notes,omitempty"`
}

// CalendarEvent is an upcoming event from the external calendar
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Link        string    `json:"link,omitempty"`
}

// CalendarToken is the persisted OAuth2 grant for the calendar provider
type CalendarToken struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	UpdatedAt    time.Time `json:"updated_at"`
}
