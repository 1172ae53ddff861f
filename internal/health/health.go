// Package health scores the five GTD habits for the dashboard.
// Level 1 is excellent and level 5 needs attention.
package health

import "fmt"

// Score is one heuristic's level and its short display string
type Score struct {
	Level  int    `json:"level"`
	Metric string `json:"metric"`
}

// Capture scores the size of the inbox
func Capture(inboxCount int) Score {
	metric := fmt.Sprintf("%d items", inboxCount)
	switch {
	case inboxCount <= 0:
		return Score{Level: 1, Metric: "Inbox zero"}
	case inboxCount <= 5:
		return Score{Level: 2, Metric: metric}
	case inboxCount <= 10:
		return Score{Level: 3, Metric: metric}
	case inboxCount <= 15:
		return Score{Level: 4, Metric: metric}
	default:
		return Score{Level: 5, Metric: metric}
	}
}

// Clarify scores the backlog of items waiting to be clarified
func Clarify(pendingCount int) Score {
	metric := fmt.Sprintf("%d pending", pendingCount)
	switch {
	case pendingCount <= 0:
		return Score{Level: 1, Metric: "All clarified"}
	case pendingCount <= 3:
		return Score{Level: 2, Metric: metric}
	case pendingCount <= 7:
		return Score{Level: 3, Metric: metric}
	case pendingCount <= 12:
		return Score{Level: 4, Metric: metric}
	default:
		return Score{Level: 5, Metric: fmt.Sprintf("%d backlog", pendingCount)}
	}
}

// Organize scores the share of active projects that have a next action.
// With no active projects the score is a neutral 3.
func Organize(activeProjects, projectsWithNextAction int) Score {
	if activeProjects <= 0 {
		return Score{Level: 3, Metric: "No projects"}
	}
	ratio := float64(projectsWithNextAction) / float64(activeProjects)
	metric := fmt.Sprintf("%d%% have next actions", projectsWithNextAction*100/activeProjects)
	switch {
	case ratio >= 1:
		return Score{Level: 1, Metric: metric}
	case ratio >= 0.9:
		return Score{Level: 2, Metric: metric}
	case ratio >= 0.7:
		return Score{Level: 3, Metric: metric}
	case ratio >= 0.5:
		return Score{Level: 4, Metric: metric}
	default:
		return Score{Level: 5, Metric: metric}
	}
}

// Reflect scores how long ago the last weekly review was. nil means never.
func Reflect(daysSinceReview *int) Score {
	if daysSinceReview == nil {
		return Score{Level: 5, Metric: "Never reviewed"}
	}
	days := *daysSinceReview
	metric := fmt.Sprintf("%d days ago", days)
	switch {
	case days <= 0:
		return Score{Level: 1, Metric: "Today"}
	case days == 1:
		return Score{Level: 1, Metric: "1 day ago"}
	case days <= 3:
		return Score{Level: 1, Metric: metric}
	case days <= 5:
		return Score{Level: 2, Metric: metric}
	case days <= 7:
		return Score{Level: 3, Metric: metric}
	case days <= 14:
		return Score{Level: 4, Metric: metric}
	default:
		return Score{Level: 5, Metric: metric}
	}
}

// Engage scores this week's completions against waiting items past their follow-up
func Engage(completedThisWeek, staleWaitingCount int) Score {
	metric := fmt.Sprintf("%d done this week", completedThisWeek)
	switch {
	case completedThisWeek >= 10 && staleWaitingCount == 0:
		return Score{Level: 1, Metric: metric}
	case completedThisWeek >= 5 && staleWaitingCount <= 1:
		return Score{Level: 2, Metric: metric}
	case completedThisWeek >= 3:
		return Score{Level: 3, Metric: metric}
	case completedThisWeek >= 1:
		return Score{Level: 4, Metric: metric}
	default:
		return Score{Level: 5, Metric: "No progress"}
	}
}
