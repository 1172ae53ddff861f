package models

import "time"

// Project is a multi-step outcome. Inactive means completed or archived.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Context is a place, tool or situation where actions can be performed (@home, @work)
type Context struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultContexts are seeded by the CLI on first use
var DefaultContexts = []Context{
	{Name: "@home", Color: "#4caf50"},
	{Name: "@work", Color: "#2196f3"},
	{Name: "@computer", Color: "#9c27b0"},
	{Name: "@errands", Color: "#ff9800"},
	{Name: "@phone", Color: "#f44336"},
}
