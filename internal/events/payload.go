package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// Aggregate types carried in envelope data.
const (
	AggregateTask     = "task"
	AggregateReminder = "reminder"
)

// ErrUnknownEventType is returned when decoding a type outside the closed set.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrPayloadMismatch is returned when a payload is used with an event type
// it does not describe.
var ErrPayloadMismatch = errors.New("payload does not match event type")

// Payload is the event-specific part of an envelope's data.
type Payload interface {
	AggregateType() string
	Supports(t domain.EventType) bool
}

// TaskPayload describes a task snapshot for every task.* event.
type TaskPayload struct {
	Title              string                `json:"title"`
	IsCompleted        bool                  `json:"is_completed"`
	Description        string                `json:"description,omitempty"`
	DueAt              *time.Time            `json:"due_at,omitempty"`
	RecurrenceType     domain.RecurrenceType `json:"recurrence_type,omitempty"`
	RecurrenceInterval *int                  `json:"recurrence_interval,omitempty"`
	Priority           domain.Priority       `json:"priority,omitempty"`
	ParentTaskID       *uuid.UUID            `json:"parent_task_id,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
}

// NewTaskPayload snapshots a task.
func NewTaskPayload(t *domain.Task) TaskPayload {
	p := TaskPayload{
		Title:              t.Title,
		IsCompleted:        t.IsCompleted,
		Description:        t.Description,
		DueAt:              t.DueAt,
		RecurrenceInterval: t.RecurrenceInterval,
		Priority:           t.Priority,
		ParentTaskID:       t.ParentTaskID,
		CompletedAt:        t.CompletedAt,
	}
	if t.RecurrenceType != domain.RecurrenceNone {
		p.RecurrenceType = t.RecurrenceType
	}
	return p
}

func (TaskPayload) AggregateType() string { return AggregateTask }

func (TaskPayload) Supports(t domain.EventType) bool { return !t.IsReminderEvent() && t.Valid() }

// ReminderScheduledPayload accompanies reminder.scheduled.
type ReminderScheduledPayload struct {
	ReminderID uuid.UUID `json:"reminder_id"`
	TaskID     uuid.UUID `json:"task_id"`
	RemindAt   time.Time `json:"remind_at"`
}

func (ReminderScheduledPayload) AggregateType() string { return AggregateReminder }

func (ReminderScheduledPayload) Supports(t domain.EventType) bool {
	return t == domain.EventReminderScheduled
}

// ReminderCancelledPayload accompanies reminder.cancelled.
type ReminderCancelledPayload struct {
	ReminderID uuid.UUID           `json:"reminder_id"`
	TaskID     uuid.UUID           `json:"task_id"`
	Reason     domain.CancelReason `json:"reason"`
}

func (ReminderCancelledPayload) AggregateType() string { return AggregateReminder }

func (ReminderCancelledPayload) Supports(t domain.EventType) bool {
	return t == domain.EventReminderCancelled
}

// ReminderSentPayload accompanies reminder.sent.
type ReminderSentPayload struct {
	ReminderID uuid.UUID `json:"reminder_id"`
	TaskID     uuid.UUID `json:"task_id"`
	SentAt     time.Time `json:"sent_at"`
}

func (ReminderSentPayload) AggregateType() string { return AggregateReminder }

func (ReminderSentPayload) Supports(t domain.EventType) bool {
	return t == domain.EventReminderSent
}

// ReminderID extracts the reminder id from reminder payloads.
func ReminderID(p Payload) (uuid.UUID, bool) {
	switch v := p.(type) {
	case ReminderScheduledPayload:
		return v.ReminderID, true
	case ReminderCancelledPayload:
		return v.ReminderID, true
	case ReminderSentPayload:
		return v.ReminderID, true
	}
	return uuid.Nil, false
}

// decodePayload decodes envelope data into the variant for t. Envelope
// header fields in data are ignored.
func decodePayload(t domain.EventType, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskCompleted,
		domain.EventTaskDeleted, domain.EventTaskRecurred:
		var v TaskPayload
		err = json.Unmarshal(data, &v)
		p = v
	case domain.EventReminderScheduled:
		var v ReminderScheduledPayload
		err = json.Unmarshal(data, &v)
		p = v
	case domain.EventReminderCancelled:
		var v ReminderCancelledPayload
		err = json.Unmarshal(data, &v)
		p = v
	case domain.EventReminderSent:
		var v ReminderSentPayload
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return p, nil
}
