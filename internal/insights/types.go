// Package insights analyzes tasks into structured recommendations and
// applies the safe ones under a global switch and a confidence threshold.
package insights

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// Analysis thresholds.
const (
	NeglectedTaskDays        = 7
	OverduePriorityBoostDays = 1
	ReminderSuggestionHours  = 24
)

// RecommendationType names what a recommendation proposes.
type RecommendationType string

const (
	TypePriorityChange RecommendationType = "priority_change"
	TypeAddReminder    RecommendationType = "add_reminder"
	TypeTaskOverdue    RecommendationType = "task_overdue"
	TypeTaskNeglected  RecommendationType = "task_neglected"
)

// Confidence is a coarse confidence level.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Value maps the level onto [0,1] for threshold comparison.
func (c Confidence) Value() float64 {
	switch c {
	case ConfidenceLow:
		return 0.3
	case ConfidenceMedium:
		return 0.6
	case ConfidenceHigh:
		return 0.9
	}
	return 0
}

// Action is the typed suggested action carried by a recommendation.
type Action interface {
	isAction()
}

// PriorityAction proposes a new priority.
type PriorityAction struct {
	Field          string          `json:"field"`
	CurrentValue   domain.Priority `json:"current_value"`
	SuggestedValue domain.Priority `json:"suggested_value"`
}

// ReminderAction proposes a reminder time.
type ReminderAction struct {
	RemindAt          time.Time `json:"remind_at"`
	RemindDescription string    `json:"remind_description"`
}

// ReviewAction asks the user to look at a task.
type ReviewAction struct {
	Action string `json:"action"`
}

func (PriorityAction) isAction() {}
func (ReminderAction) isAction() {}
func (ReviewAction) isAction()   {}

// Review actions.
const (
	ActionReviewAndReschedule = "review_and_reschedule"
	ActionReviewOrDelete      = "review_or_delete"
)

// Recommendation is one structured suggestion for a task.
type Recommendation struct {
	Type            RecommendationType `json:"recommendation_type"`
	TaskID          uuid.UUID          `json:"task_id"`
	UserID          uuid.UUID          `json:"user_id"`
	Confidence      Confidence         `json:"confidence"`
	Reason          string             `json:"reason"`
	SuggestedAction Action             `json:"suggested_action"`
	Metadata        map[string]any     `json:"metadata"`
}

// TaskInsights aggregates metrics and recommendations for one task.
type TaskInsights struct {
	TaskID          uuid.UUID         `json:"task_id"`
	IsOverdue       bool              `json:"is_overdue"`
	DaysUntilDue    *int              `json:"days_until_due"`
	HasReminder     bool              `json:"has_reminder"`
	NeglectedDays   int               `json:"neglected_days"`
	Recommendations []*Recommendation `json:"recommendations"`
}

// Summary counts a user's open tasks by state.
type Summary struct {
	TotalPendingTasks  int `json:"total_pending_tasks"`
	OverdueTasks       int `json:"overdue_tasks"`
	TasksWithReminders int `json:"tasks_with_reminders"`
	NeglectedTasks     int `json:"neglected_tasks"`
}

// AIContext is the aggregate handed to an assistant as task context.
type AIContext struct {
	Summary         Summary           `json:"summary"`
	Recommendations []*Recommendation `json:"recommendations"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
