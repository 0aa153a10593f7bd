package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// NotificationStore defines persistence for queued notification deliveries.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.NotificationDelivery) error

	// GetByID returns ErrNotificationNotFound if the row does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.NotificationDelivery, error)

	// ExistsForEvent reports whether a notification was already queued for
	// the outbox event.
	ExistsForEvent(ctx context.Context, eventID uuid.UUID) (bool, error)

	// ListByReminder returns notifications created for a reminder.
	ListByReminder(ctx context.Context, reminderID uuid.UUID) ([]*domain.NotificationDelivery, error)

	// FetchPending returns pending rows plus failed rows with retries left
	// whose next_retry_at is unset or not after now, oldest first.
	FetchPending(
		ctx context.Context,
		maxRetries int,
		now time.Time,
		limit int,
	) ([]*domain.NotificationDelivery, error)

	// Claim atomically moves an eligible row to processing.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkFailed increments retry_count, stores the error and sets the next
	// retry time. A nil nextRetryAt makes the failure terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextRetryAt *time.Time) error

	WithTx(tx *sql.Tx) NotificationStore
}

// AuditStore defines the append-only audit trail.
type AuditStore interface {
	Create(ctx context.Context, entry *domain.AuditLog) error

	// ExistsForEvent reports whether an audit row with this action and entity
	// already references the event id in its details.
	ExistsForEvent(ctx context.Context, action string, entityID, eventID uuid.UUID) (bool, error)

	// ListByEntity returns audit rows for an entity, oldest first.
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*domain.AuditLog, error)

	WithTx(tx *sql.Tx) AuditStore
}
