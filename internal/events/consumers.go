package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// Consumer names.
const (
	AuditConsumerName        = "audit"
	NotificationConsumerName = "notification"
	RecurrenceConsumerName   = "recurrence"
)

// ActionTaskRecurred is the audit action written when a recurring task is completed.
const ActionTaskRecurred = "task.recurred"

func auditStore(s store.AuditStore, tx *sql.Tx) store.AuditStore {
	if tx == nil {
		return s
	}
	return s.WithTx(tx)
}

// AuditConsumer records one audit row per event. Replays of the same event
// find the existing row and write nothing.
type AuditConsumer struct {
	audit  store.AuditStore
	logger *slog.Logger
}

// NewAuditConsumer creates an AuditConsumer.
func NewAuditConsumer(audit store.AuditStore, logger *slog.Logger) *AuditConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditConsumer{audit: audit, logger: logger.With("component", "audit_consumer")}
}

func (c *AuditConsumer) Name() string { return AuditConsumerName }

func (c *AuditConsumer) Handles(t domain.EventType) bool { return t.Valid() }

func (c *AuditConsumer) Process(
	ctx context.Context,
	tx *sql.Tx,
	env Envelope,
	_ *domain.StoredEvent,
) error {
	action := env.Type.Action()
	entityType := domain.EntityTask
	entityID := env.Data.AggregateID
	if env.Type.IsReminderEvent() {
		entityType = domain.EntityReminder
		if id, ok := ReminderID(env.Data.Payload); ok && id != uuid.Nil {
			entityID = id
		}
	}

	audit := auditStore(c.audit, tx)
	exists, err := audit.ExistsForEvent(ctx, action, entityID, env.ID)
	if err != nil {
		return fmt.Errorf("failed to check audit idempotency: %w", err)
	}
	if exists {
		c.logger.DebugContext(ctx, "audit row already recorded", "event_id", env.ID)
		return nil
	}

	data, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	entry, err := domain.NewAuditLog(env.Data.UserID, action, entityType, entityID, map[string]any{
		"event_id":   env.ID.String(),
		"event_type": string(env.Type),
		"data":       json.RawMessage(data),
	})
	if err != nil {
		return err
	}
	if err := audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit row: %w", err)
	}
	return nil
}

// Notification texts for task events.
const (
	SubjectTaskCreated   = "New Task Created"
	SubjectTaskCompleted = "Task Completed"
)

// NotificationConsumer queues an email notification when a task is created
// or completed.
type NotificationConsumer struct {
	notifications store.NotificationStore
	logger        *slog.Logger
}

// NewNotificationConsumer creates a NotificationConsumer.
func NewNotificationConsumer(notifications store.NotificationStore, logger *slog.Logger) *NotificationConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationConsumer{
		notifications: notifications,
		logger:        logger.With("component", "notification_consumer"),
	}
}

func (c *NotificationConsumer) Name() string { return NotificationConsumerName }

func (c *NotificationConsumer) Handles(t domain.EventType) bool {
	return t == domain.EventTaskCreated || t == domain.EventTaskCompleted
}

func (c *NotificationConsumer) Process(
	ctx context.Context,
	tx *sql.Tx,
	env Envelope,
	_ *domain.StoredEvent,
) error {
	payload, ok := env.Data.Payload.(TaskPayload)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPayloadMismatch, env.Type)
	}

	var subject, message string
	switch env.Type {
	case domain.EventTaskCreated:
		subject = SubjectTaskCreated
		message = fmt.Sprintf("A new task has been created: %s", payload.Title)
	case domain.EventTaskCompleted:
		subject = SubjectTaskCompleted
		message = fmt.Sprintf("Great job! You completed: %s", payload.Title)
	default:
		return nil
	}

	notifications := c.notifications
	if tx != nil {
		notifications = notifications.WithTx(tx)
	}
	exists, err := notifications.ExistsForEvent(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("failed to check notification idempotency: %w", err)
	}
	if exists {
		return nil
	}

	n, err := domain.NewNotificationDelivery(env.Data.UserID, subject, message)
	if err != nil {
		return err
	}
	eventID := env.ID
	n.SourceEventID = &eventID
	if err := notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}

	c.logger.DebugContext(ctx, "notification queued",
		"event_id", env.ID,
		"notification_id", n.ID)
	return nil
}

// RecurrenceConsumer records that a completed recurring task renewed itself.
type RecurrenceConsumer struct {
	audit  store.AuditStore
	logger *slog.Logger
}

// NewRecurrenceConsumer creates a RecurrenceConsumer.
func NewRecurrenceConsumer(audit store.AuditStore, logger *slog.Logger) *RecurrenceConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecurrenceConsumer{audit: audit, logger: logger.With("component", "recurrence_consumer")}
}

func (c *RecurrenceConsumer) Name() string { return RecurrenceConsumerName }

func (c *RecurrenceConsumer) Handles(t domain.EventType) bool {
	return t == domain.EventTaskCompleted
}

func (c *RecurrenceConsumer) Process(
	ctx context.Context,
	tx *sql.Tx,
	env Envelope,
	_ *domain.StoredEvent,
) error {
	payload, ok := env.Data.Payload.(TaskPayload)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPayloadMismatch, env.Type)
	}
	if payload.RecurrenceType == "" || payload.RecurrenceType == domain.RecurrenceNone {
		return nil
	}

	audit := auditStore(c.audit, tx)
	exists, err := audit.ExistsForEvent(ctx, ActionTaskRecurred, env.Data.AggregateID, env.ID)
	if err != nil {
		return fmt.Errorf("failed to check recurrence idempotency: %w", err)
	}
	if exists {
		return nil
	}

	details := map[string]any{
		"event_id":        env.ID.String(),
		"recurrence_type": string(payload.RecurrenceType),
		"completed_at":    nil,
	}
	if payload.CompletedAt != nil {
		details["completed_at"] = payload.CompletedAt.UTC().Format(time.RFC3339)
	}
	entry, err := domain.NewAuditLog(
		env.Data.UserID, ActionTaskRecurred, domain.EntityTask, env.Data.AggregateID, details)
	if err != nil {
		return err
	}
	if err := audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write recurrence audit row: %w", err)
	}
	return nil
}

// RegisterDefaults registers the built-in consumers in their fixed order.
func RegisterDefaults(
	d *Dispatcher,
	audit store.AuditStore,
	notifications store.NotificationStore,
	logger *slog.Logger,
) {
	d.Register(NewAuditConsumer(audit, logger))
	d.Register(NewNotificationConsumer(notifications, logger))
	d.Register(NewRecurrenceConsumer(audit, logger))
}
