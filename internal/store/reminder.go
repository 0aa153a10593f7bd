package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// ReminderStore defines persistence for task reminders.
// Version: 1.0
type ReminderStore interface {
	// Create inserts a new reminder.
	Create(ctx context.Context, reminder *domain.Reminder) error

	// GetByID returns ErrReminderNotFound if no such reminder exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reminder, error)

	// ListByTask returns every reminder for the task, newest first.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Reminder, error)

	// ListPendingForTask returns the task's pending reminders.
	ListPendingForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Reminder, error)

	// HasPending reports whether the task has a pending reminder.
	HasPending(ctx context.Context, taskID uuid.UUID) (bool, error)

	// Transition moves a reminder from one status to another only if it is
	// still in the from status, and reports whether the row changed.
	// sentAt is written when non-nil.
	Transition(
		ctx context.Context,
		id uuid.UUID,
		from, to domain.ReminderStatus,
		sentAt *time.Time,
	) (bool, error)

	// LockPending acquires a row lock on a pending reminder and reports
	// whether it is still pending. It must run inside a transaction.
	LockPending(ctx context.Context, id uuid.UUID) (bool, error)

	// SetJobID records the external scheduler job id.
	SetJobID(ctx context.Context, id uuid.UUID, jobID string) error

	// ListDue returns pending reminders with remind_at <= asOf, earliest first.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.Reminder, error)

	// ListUpcoming returns a user's pending reminders with from < remind_at <= to,
	// earliest first.
	ListUpcoming(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.Reminder, error)

	// WithTx returns a ReminderStore bound to the given transaction.
	WithTx(tx *sql.Tx) ReminderStore
}
