package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the versioned name of a lifecycle event.
type EventType string

// Event types. The set is closed; anything else is rejected on decode.
const (
	EventTaskCreated       EventType = "task.created.v1"
	EventTaskUpdated       EventType = "task.updated.v1"
	EventTaskCompleted     EventType = "task.completed.v1"
	EventTaskDeleted       EventType = "task.deleted.v1"
	EventTaskRecurred      EventType = "task.recurred.v1"
	EventReminderScheduled EventType = "reminder.scheduled.v1"
	EventReminderCancelled EventType = "reminder.cancelled.v1"
	EventReminderSent      EventType = "reminder.sent.v1"
)

// Valid reports whether t belongs to the known event set.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted,
		EventTaskRecurred, EventReminderScheduled, EventReminderCancelled, EventReminderSent:
		return true
	}
	return false
}

// Action strips the version suffix: "task.created.v1" becomes "task.created".
func (t EventType) Action() string {
	s := string(t)
	if i := strings.LastIndex(s, ".v"); i > 0 {
		return s[:i]
	}
	return s
}

// IsReminderEvent reports whether the event concerns a reminder aggregate.
func (t EventType) IsReminderEvent() bool {
	return strings.HasPrefix(string(t), "reminder.")
}

// ProcessingStatus tracks whether in-process consumers have handled an
// outbox row. It is independent of publish state.
type ProcessingStatus string

// Processing status values
const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// StoredEvent is an outbox row. Only the publish and processing bookkeeping
// fields change after insert.
type StoredEvent struct {
	ID               uuid.UUID        `json:"id"`
	EventType        EventType        `json:"event_type"`
	AggregateID      uuid.UUID        `json:"aggregate_id"`
	UserID           uuid.UUID        `json:"user_id"`
	Payload          json.RawMessage  `json:"payload"`
	CreatedAt        time.Time        `json:"created_at"`
	Published        bool             `json:"published"`
	PublishedAt      *time.Time       `json:"published_at,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	RetryCount       int              `json:"retry_count"`
	LastError        string           `json:"last_error,omitempty"`
}
