package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// EventStore is the outbox. Rows are inserted in the caller's transaction and
// only their publish and processing bookkeeping changes afterwards.
// Version: 1.0
type EventStore interface {
	// Insert writes a new outbox row. It never commits on its own.
	Insert(ctx context.Context, event *domain.StoredEvent) error

	// GetByID returns ErrEventNotFound if the row does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StoredEvent, error)

	// MarkPublished records broker acceptance.
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error

	// Claim atomically moves an eligible row (pending or failed) to
	// processing and reports whether this caller won the claim.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkCompleted finishes processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkFailed increments retry_count and records the error and time.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error

	// FetchPending returns pending rows plus failed rows with retries left
	// whose processed_at is before retryBefore, oldest first.
	FetchPending(
		ctx context.Context,
		maxRetries int,
		retryBefore time.Time,
		limit int,
	) ([]*domain.StoredEvent, error)

	// WithTx returns an EventStore bound to the given transaction.
	WithTx(tx *sql.Tx) EventStore
}
