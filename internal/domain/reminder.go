package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReminderStatus is the lifecycle state of a reminder. Every status other
// than pending is terminal.
type ReminderStatus string

// Reminder status values
const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusCancelled ReminderStatus = "cancelled"
	ReminderStatusFailed    ReminderStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ReminderStatus) Terminal() bool {
	return s == ReminderStatusSent || s == ReminderStatusCancelled || s == ReminderStatusFailed
}

// CancelReason records why pending reminders were cancelled.
type CancelReason string

// Cancel reasons
const (
	CancelReasonUserCancelled CancelReason = "user_cancelled"
	CancelReasonTaskCompleted CancelReason = "task_completed"
	CancelReasonTaskDeleted   CancelReason = "task_deleted"
	CancelReasonReplaced      CancelReason = "replaced"
)

// Valid reports whether r is a known cancellation reason.
func (r CancelReason) Valid() bool {
	switch r {
	case CancelReasonUserCancelled, CancelReasonTaskCompleted, CancelReasonTaskDeleted, CancelReasonReplaced:
		return true
	}
	return false
}

// Reminder is a single outstanding notification intent for a task.
type Reminder struct {
	ID        uuid.UUID      `json:"id"`
	TaskID    uuid.UUID      `json:"task_id"`
	UserID    uuid.UUID      `json:"user_id"`
	RemindAt  time.Time      `json:"remind_at"`
	Status    ReminderStatus `json:"status"`
	DaprJobID string         `json:"dapr_job_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
}

// NewReminder creates a pending reminder.
func NewReminder(taskID, userID uuid.UUID, remindAt time.Time) (*Reminder, error) {
	if taskID == uuid.Nil {
		return nil, NewValidationError("task_id", "cannot be empty", ErrInvalidID)
	}
	if userID == uuid.Nil {
		return nil, NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}
	if remindAt.IsZero() {
		return nil, NewValidationError("remind_at", "cannot be empty", nil)
	}
	return &Reminder{
		ID:        uuid.New(),
		TaskID:    taskID,
		UserID:    userID,
		RemindAt:  remindAt.UTC(),
		Status:    ReminderStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
