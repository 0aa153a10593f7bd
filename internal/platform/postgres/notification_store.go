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

const notificationColumns = `id, user_id, reminder_id, source_event_id, channel, recipient,
	subject, message, status, error_message, retry_count, next_retry_at, created_at, sent_at`

// PostgresNotificationStore implements store.NotificationStore.
type PostgresNotificationStore struct {
	db store.DBTX
}

// NewPostgresNotificationStore creates a new PostgresNotificationStore.
func NewPostgresNotificationStore(db store.DBTX) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

var _ store.NotificationStore = (*PostgresNotificationStore)(nil)

func (s *PostgresNotificationStore) WithTx(tx *sql.Tx) store.NotificationStore {
	return &PostgresNotificationStore{db: tx}
}

func scanNotification(row rowScanner) (*domain.NotificationDelivery, error) {
	var n domain.NotificationDelivery
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.ReminderID,
		&n.SourceEventID,
		&n.Channel,
		&n.Recipient,
		&n.Subject,
		&n.Message,
		&n.Status,
		&n.ErrorMessage,
		&n.RetryCount,
		&n.NextRetryAt,
		&n.CreatedAt,
		&n.SentAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *PostgresNotificationStore) list(ctx context.Context, query string, args ...any) ([]*domain.NotificationDelivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.NotificationDelivery
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return out, nil
}

func (s *PostgresNotificationStore) Create(ctx context.Context, n *domain.NotificationDelivery) error {
	query := `
		INSERT INTO notification_deliveries (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.ReminderID,
		n.SourceEventID,
		n.Channel,
		n.Recipient,
		n.Subject,
		n.Message,
		n.Status,
		n.ErrorMessage,
		n.RetryCount,
		n.NextRetryAt,
		n.CreatedAt,
		n.SentAt,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert notification",
			"notification_id", n.ID,
			"error", err)
		return store.NewStoreError("notification", "create", "insert failed", MapError(err))
	}
	return nil
}

func (s *PostgresNotificationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.NotificationDelivery, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notification_deliveries WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, store.ErrNotificationNotFound)
	}
	return n, nil
}

func (s *PostgresNotificationStore) ExistsForEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_deliveries WHERE source_event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

func (s *PostgresNotificationStore) ListByReminder(
	ctx context.Context,
	reminderID uuid.UUID,
) ([]*domain.NotificationDelivery, error) {
	return s.list(ctx,
		`SELECT `+notificationColumns+` FROM notification_deliveries
		WHERE reminder_id = $1 ORDER BY created_at ASC`,
		reminderID)
}

func (s *PostgresNotificationStore) FetchPending(
	ctx context.Context,
	maxRetries int,
	now time.Time,
	limit int,
) ([]*domain.NotificationDelivery, error) {
	return s.list(ctx, `
		SELECT `+notificationColumns+`
		FROM notification_deliveries
		WHERE status = 'pending'
			OR (status = 'failed' AND retry_count < $1
				AND (next_retry_at IS NULL OR next_retry_at <= $2))
		ORDER BY created_at ASC
		LIMIT $3
	`, maxRetries, now, limit)
}

func (s *PostgresNotificationStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = 'processing'
		WHERE id = $1 AND status IN ('pending', 'failed')
	`, id)
	if err != nil {
		return false, store.NewStoreError("notification", "claim", "update failed", MapError(err))
	}
	return claimed(result)
}

func (s *PostgresNotificationStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = 'sent', sent_at = $2, error_message = ''
		WHERE id = $1
	`, id, at)
	if err != nil {
		return store.NewStoreError("notification", "mark_sent", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrNotificationNotFound)
}

func (s *PostgresNotificationStore) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	errMsg string,
	nextRetryAt *time.Time,
) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = 'failed',
			retry_count = retry_count + 1,
			error_message = $2,
			next_retry_at = $3
		WHERE id = $1
	`, id, redact.Truncate(errMsg, redact.WorkItemErrorLimit), nextRetryAt)
	if err != nil {
		return store.NewStoreError("notification", "mark_failed", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrNotificationNotFound)
}
