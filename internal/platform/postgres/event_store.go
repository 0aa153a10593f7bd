package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/redact"
	"github.com/phrazzld/taskpulse/internal/store"
)

// task_id holds the aggregate id for every event type, reminders included.
const eventColumns = `id, event_type, task_id, user_id, payload, created_at, published,
	published_at, processing_status, processed_at, retry_count, last_error`

// PostgresEventStore implements store.EventStore over the task_events outbox.
type PostgresEventStore struct {
	db store.DBTX
}

// NewPostgresEventStore creates a new PostgresEventStore.
func NewPostgresEventStore(db store.DBTX) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

var _ store.EventStore = (*PostgresEventStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresEventStore) WithTx(tx *sql.Tx) store.EventStore {
	return &PostgresEventStore{db: tx}
}

func scanEvent(row rowScanner) (*domain.StoredEvent, error) {
	var (
		e       domain.StoredEvent
		payload []byte
	)
	if err := row.Scan(
		&e.ID,
		&e.EventType,
		&e.AggregateID,
		&e.UserID,
		&payload,
		&e.CreatedAt,
		&e.Published,
		&e.PublishedAt,
		&e.ProcessingStatus,
		&e.ProcessedAt,
		&e.RetryCount,
		&e.LastError,
	); err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

// Insert writes a new outbox row.
func (s *PostgresEventStore) Insert(ctx context.Context, e *domain.StoredEvent) error {
	query := `
		INSERT INTO task_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.EventType,
		e.AggregateID,
		e.UserID,
		string(e.Payload),
		e.CreatedAt,
		e.Published,
		e.PublishedAt,
		e.ProcessingStatus,
		e.ProcessedAt,
		e.RetryCount,
		e.LastError,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert outbox event",
			"event_id", e.ID,
			"event_type", e.EventType,
			"error", err)
		return store.NewStoreError("event", "insert", "insert failed", MapError(err))
	}
	return nil
}

// GetByID returns a single outbox row.
func (s *PostgresEventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.StoredEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM task_events WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, store.ErrEventNotFound)
	}
	return e, nil
}

// MarkPublished records broker acceptance.
func (s *PostgresEventStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_events SET published = TRUE, published_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return store.NewStoreError("event", "mark_published", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrEventNotFound)
}

// Claim atomically moves a pending or failed row to processing.
func (s *PostgresEventStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_events
		SET processing_status = 'processing'
		WHERE id = $1 AND processing_status IN ('pending', 'failed')
	`, id)
	if err != nil {
		return false, store.NewStoreError("event", "claim", "update failed", MapError(err))
	}
	return claimed(result)
}

// MarkCompleted finishes processing.
func (s *PostgresEventStore) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_events
		SET processing_status = 'completed', processed_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return store.NewStoreError("event", "mark_completed", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrEventNotFound)
}

// MarkFailed records a processing failure.
func (s *PostgresEventStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_events
		SET processing_status = 'failed',
			retry_count = retry_count + 1,
			last_error = $2,
			processed_at = $3
		WHERE id = $1
	`, id, redact.Truncate(errMsg, redact.EventErrorLimit), at)
	if err != nil {
		return store.NewStoreError("event", "mark_failed", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrEventNotFound)
}

// FetchPending returns work for the event worker, oldest first.
func (s *PostgresEventStore) FetchPending(
	ctx context.Context,
	maxRetries int,
	retryBefore time.Time,
	limit int,
) ([]*domain.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM task_events
		WHERE processing_status = 'pending'
			OR (processing_status = 'failed' AND retry_count < $1 AND processed_at < $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, maxRetries, retryBefore, limit)
	if err != nil {
		logger.FromContext(ctx).Error("failed to fetch pending events", "error", err)
		return nil, fmt.Errorf("failed to fetch pending events: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.StoredEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}
