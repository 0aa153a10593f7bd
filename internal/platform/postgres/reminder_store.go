package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/store"
)

const reminderColumns = `id, task_id, user_id, remind_at, status, dapr_job_id, created_at, sent_at`

// PostgresReminderStore implements store.ReminderStore.
type PostgresReminderStore struct {
	db store.DBTX
}

// NewPostgresReminderStore creates a new PostgresReminderStore.
func NewPostgresReminderStore(db store.DBTX) *PostgresReminderStore {
	return &PostgresReminderStore{db: db}
}

var _ store.ReminderStore = (*PostgresReminderStore)(nil)

func (s *PostgresReminderStore) WithTx(tx *sql.Tx) store.ReminderStore {
	return &PostgresReminderStore{db: tx}
}

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var r domain.Reminder
	if err := row.Scan(
		&r.ID, &r.TaskID, &r.UserID, &r.RemindAt, &r.Status, &r.DaprJobID, &r.CreatedAt, &r.SentAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresReminderStore) queryReminders(ctx context.Context, query string, args ...any) ([]*domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return out, nil
}

func (s *PostgresReminderStore) Create(ctx context.Context, r *domain.Reminder) error {
	query := `
		INSERT INTO task_reminders (` + reminderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.TaskID, r.UserID, r.RemindAt, r.Status, r.DaprJobID, r.CreatedAt, r.SentAt,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert reminder",
			"reminder_id", r.ID,
			"task_id", r.TaskID,
			"error", err)
		return store.NewStoreError("reminder", "create", "insert failed", MapError(err))
	}
	return nil
}

func (s *PostgresReminderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM task_reminders WHERE id = $1`
	r, err := scanReminder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNotFound(err, store.ErrReminderNotFound)
	}
	return r, nil
}

func (s *PostgresReminderStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM task_reminders WHERE task_id = $1 ORDER BY created_at DESC`,
		taskID)
}

func (s *PostgresReminderStore) ListPendingForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM task_reminders
		WHERE task_id = $1 AND status = 'pending' ORDER BY remind_at ASC`,
		taskID)
}

func (s *PostgresReminderStore) HasPending(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_reminders WHERE task_id = $1 AND status = 'pending')`,
		taskID,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

// Transition performs a guarded status change.
func (s *PostgresReminderStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.ReminderStatus,
	sentAt *time.Time,
) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_reminders
		SET status = $3, sent_at = COALESCE($4, sent_at)
		WHERE id = $1 AND status = $2
	`, id, from, to, sentAt)
	if err != nil {
		logger.FromContext(ctx).Error("failed to transition reminder",
			"reminder_id", id,
			"from", from,
			"to", to,
			"error", err)
		return false, store.NewStoreError("reminder", "transition", "update failed", MapError(err))
	}
	return claimed(result)
}

// LockPending takes a row lock and reports whether the reminder is pending.
func (s *PostgresReminderStore) LockPending(ctx context.Context, id uuid.UUID) (bool, error) {
	var status domain.ReminderStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM task_reminders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, MapError(err)
	}
	return status == domain.ReminderStatusPending, nil
}

func (s *PostgresReminderStore) SetJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_reminders SET dapr_job_id = $2 WHERE id = $1`, id, jobID)
	if err != nil {
		return store.NewStoreError("reminder", "set_job_id", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrReminderNotFound)
}

func (s *PostgresReminderStore) ListDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM task_reminders
		WHERE status = 'pending' AND remind_at <= $1
		ORDER BY remind_at ASC
		LIMIT $2`,
		asOf, limit)
}

func (s *PostgresReminderStore) ListUpcoming(
	ctx context.Context,
	userID uuid.UUID,
	from, to time.Time,
) ([]*domain.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM task_reminders
		WHERE user_id = $1 AND status = 'pending' AND remind_at > $2 AND remind_at <= $3
		ORDER BY remind_at ASC`,
		userID, from, to)
}
