package domain

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the user-assigned importance of a task.
type Priority string

// Priority values
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// RecurrenceType controls whether completing a task spawns a follow-up.
type RecurrenceType string

// Recurrence values
const (
	RecurrenceNone   RecurrenceType = "none"
	RecurrenceDaily  RecurrenceType = "daily"
	RecurrenceWeekly RecurrenceType = "weekly"
	RecurrenceCustom RecurrenceType = "custom"
)

// Valid reports whether r is a known recurrence type.
func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceCustom:
		return true
	}
	return false
}

// Bounds for custom recurrence intervals, in days.
const (
	MinRecurrenceInterval = 1
	MaxRecurrenceInterval = 365
)

// Task is the aggregate root of the lifecycle pipeline. Reminders belong to
// a task; events, notifications and audit rows only reference it.
type Task struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	IsCompleted        bool           `json:"is_completed"`
	Priority           Priority       `json:"priority"`
	RecurrenceType     RecurrenceType `json:"recurrence_type"`
	RecurrenceInterval *int           `json:"recurrence_interval,omitempty"`
	DueAt              *time.Time     `json:"due_at,omitempty"`
	NextOccurrenceAt   *time.Time     `json:"next_occurrence_at,omitempty"`
	ParentTaskID       *uuid.UUID     `json:"parent_task_id,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewTask creates a pending task owned by userID with medium priority and
// no recurrence.
func NewTask(userID uuid.UUID, title string) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          title,
		Priority:       PriorityMedium,
		RecurrenceType: RecurrenceNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks identity, enumerations and recurrence settings.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if t.UserID == uuid.Nil {
		return NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}
	if t.Title == "" {
		return NewValidationError("title", "cannot be empty", nil)
	}
	if !t.Priority.Valid() {
		return NewValidationError("priority", "must be low, medium or high", nil)
	}
	return ValidateRecurrence(t.RecurrenceType, t.RecurrenceInterval)
}

// ValidateRecurrence enforces that a custom recurrence carries an interval
// within [MinRecurrenceInterval, MaxRecurrenceInterval].
func ValidateRecurrence(rt RecurrenceType, interval *int) error {
	if !rt.Valid() {
		return NewValidationError("recurrence_type", "must be none, daily, weekly or custom", nil)
	}
	if rt != RecurrenceCustom {
		return nil
	}
	if interval == nil {
		return NewValidationError(
			"recurrence_interval",
			"is required when recurrence_type is 'custom'",
			nil,
		)
	}
	if *interval < MinRecurrenceInterval || *interval > MaxRecurrenceInterval {
		return NewValidationError("recurrence_interval", "must be between 1 and 365 days", nil)
	}
	return nil
}

// IsRecurring reports whether completing the task produces a next occurrence.
func (t *Task) IsRecurring() bool {
	return t.RecurrenceType != "" && t.RecurrenceType != RecurrenceNone
}

// SyncNextOccurrence keeps NextOccurrenceAt aligned with the due date for
// open recurring tasks and clears it otherwise.
func (t *Task) SyncNextOccurrence() {
	if t.IsRecurring() && t.DueAt != nil {
		if !t.IsCompleted {
			due := *t.DueAt
			t.NextOccurrenceAt = &due
		}
		return
	}
	t.NextOccurrenceAt = nil
}

// NextDueDate computes the due date of the following occurrence. The base is
// the later of the current due date and now, so overdue tasks do not spawn
// occurrences that are already in the past. Returns nil when the task has no
// due date or no usable recurrence.
func (t *Task) NextDueDate(now time.Time) *time.Time {
	if t.DueAt == nil {
		return nil
	}
	base := *t.DueAt
	if base.Before(now) {
		base = now
	}

	var next time.Time
	switch t.RecurrenceType {
	case RecurrenceDaily:
		next = base.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		next = base.AddDate(0, 0, 7)
	case RecurrenceCustom:
		if t.RecurrenceInterval == nil || *t.RecurrenceInterval <= 0 {
			return nil
		}
		next = base.AddDate(0, 0, *t.RecurrenceInterval)
	default:
		return nil
	}
	return &next
}

// NextOccurrence builds the follow-up task for a completed recurring task.
// The new task links to the root of the chain through ParentTaskID.
func (t *Task) NextOccurrence(now time.Time) *Task {
	nextDue := t.NextDueDate(now)
	if nextDue == nil {
		return nil
	}

	parent := t.ID
	if t.ParentTaskID != nil {
		parent = *t.ParentTaskID
	}

	var interval *int
	if t.RecurrenceInterval != nil {
		v := *t.RecurrenceInterval
		interval = &v
	}
	next := *nextDue

	return &Task{
		ID:                 uuid.New(),
		UserID:             t.UserID,
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		RecurrenceType:     t.RecurrenceType,
		RecurrenceInterval: interval,
		DueAt:              nextDue,
		NextOccurrenceAt:   &next,
		ParentTaskID:       &parent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
