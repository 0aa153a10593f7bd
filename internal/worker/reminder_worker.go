package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// Audit actions written by the reminder worker.
const (
	ActionReminderTriggered = "reminder.triggered"
	ActionReminderExpired   = "reminder.expired"
	ActionReminderCancelled = "reminder.cancelled"
	ActionReminderFailed    = "reminder.failed"
)

const reminderSubjectTitleLimit = 50

// ReminderEngine is the part of the reminder engine the worker drives.
type ReminderEngine interface {
	GetDueReminders(ctx context.Context, asOf time.Time, limit int) ([]*domain.Reminder, error)
	MarkSent(ctx context.Context, tx *sql.Tx, reminderID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, tx *sql.Tx, reminderID uuid.UUID) error
}

// ReminderProcessor turns due reminders into notification deliveries.
type ReminderProcessor struct {
	engine        ReminderEngine
	reminders     store.ReminderStore
	tasks         store.TaskStore
	notifications store.NotificationStore
	audit         store.AuditStore
	cfg           Config
	logger        *slog.Logger
	now           func() time.Time
}

var _ Processor[*domain.Reminder] = (*ReminderProcessor)(nil)

// NewReminderProcessor creates a ReminderProcessor.
func NewReminderProcessor(
	engine ReminderEngine,
	reminders store.ReminderStore,
	tasks store.TaskStore,
	notifications store.NotificationStore,
	audit store.AuditStore,
	cfg Config,
	logger *slog.Logger,
) *ReminderProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderProcessor{
		engine:        engine,
		reminders:     reminders,
		tasks:         tasks,
		notifications: notifications,
		audit:         audit,
		cfg:           cfg,
		logger:        logger.With("component", "reminder_worker"),
		now:           time.Now,
	}
}

// NewReminderWorker wraps a ReminderProcessor in a Base.
func NewReminderWorker(db store.TxBeginner, p *ReminderProcessor, logger *slog.Logger, opts ...Option) *Base[*domain.Reminder] {
	return NewBase[*domain.Reminder](p, db, p.cfg.BatchSize, logger, opts...)
}

// SetClock overrides the time source.
func (p *ReminderProcessor) SetClock(now func() time.Time) { p.now = now }

func (p *ReminderProcessor) Name() string { return "reminder_worker" }

func (p *ReminderProcessor) ItemID(r *domain.Reminder) uuid.UUID { return r.ID }

func (p *ReminderProcessor) FetchPending(ctx context.Context, batchSize int) ([]*domain.Reminder, error) {
	return p.engine.GetDueReminders(ctx, p.now().UTC(), batchSize)
}

// MarkProcessing locks the reminder row for the rest of the transaction.
func (p *ReminderProcessor) MarkProcessing(ctx context.Context, tx *sql.Tx, r *domain.Reminder) (bool, error) {
	return p.reminders.WithTx(tx).LockPending(ctx, r.ID)
}

// Process moves the reminder to its terminal state. A reminder whose task is
// gone fails, one whose task is done is cancelled, and any other reminder
// queues a notification and is marked sent.
func (p *ReminderProcessor) Process(ctx context.Context, tx *sql.Tx, r *domain.Reminder) error {
	log := p.logger.With("reminder_id", r.ID, "task_id", r.TaskID)
	audit := p.audit.WithTx(tx)
	now := p.now().UTC()

	task, err := p.tasks.WithTx(tx).GetByID(ctx, r.TaskID)
	if errors.Is(err, store.ErrTaskNotFound) || errors.Is(err, store.ErrNotFound) {
		log.WarnContext(ctx, "reminder references a missing task")
		return p.close(ctx, tx, audit, r, domain.ReminderStatusFailed, ActionReminderExpired, "task_not_found", now)
	}
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if task.IsCompleted {
		log.InfoContext(ctx, "task already completed, cancelling reminder")
		return p.close(ctx, tx, audit, r, domain.ReminderStatusCancelled, ActionReminderCancelled, "task_completed", now)
	}

	n, err := domain.NewNotificationDelivery(r.UserID, reminderSubject(task.Title), reminderMessage(task))
	if err != nil {
		return err
	}
	reminderID := r.ID
	n.ReminderID = &reminderID
	if err := p.notifications.WithTx(tx).Create(ctx, n); err != nil {
		return fmt.Errorf("failed to queue reminder notification: %w", err)
	}

	entry, err := domain.NewAuditLog(r.UserID, ActionReminderTriggered, domain.EntityReminder, r.ID, map[string]any{
		"task_id":         task.ID,
		"task_title":      task.Title,
		"notification_id": n.ID,
		"remind_at":       r.RemindAt.UTC().Format(time.RFC3339),
		"triggered_at":    now.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write reminder audit: %w", err)
	}

	if err := p.engine.MarkSent(ctx, tx, r.ID, now); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	log.InfoContext(ctx, "reminder triggered", "notification_id", n.ID)
	return nil
}

func (p *ReminderProcessor) close(
	ctx context.Context,
	tx *sql.Tx,
	audit store.AuditStore,
	r *domain.Reminder,
	to domain.ReminderStatus,
	action, reason string,
	at time.Time,
) error {
	if _, err := p.reminders.WithTx(tx).Transition(ctx, r.ID, domain.ReminderStatusPending, to, &at); err != nil {
		return fmt.Errorf("failed to move reminder to %s: %w", to, err)
	}
	entry, err := domain.NewAuditLog(r.UserID, action, domain.EntityReminder, r.ID, map[string]any{"reason": reason})
	if err != nil {
		return err
	}
	return audit.Create(ctx, entry)
}

// MarkCompleted is a no-op: Process has already written the terminal state.
func (p *ReminderProcessor) MarkCompleted(context.Context, *sql.Tx, *domain.Reminder) error {
	return nil
}

func (p *ReminderProcessor) MarkFailed(ctx context.Context, tx *sql.Tx, r *domain.Reminder, errMsg string, _ bool) error {
	if err := p.engine.MarkFailed(ctx, tx, r.ID); err != nil {
		return err
	}
	entry, err := domain.NewAuditLog(r.UserID, ActionReminderFailed, domain.EntityReminder, r.ID, map[string]any{"error": errMsg})
	if err != nil {
		return err
	}
	return p.audit.WithTx(tx).Create(ctx, entry)
}

// ShouldRetry is always false. A reminder fires once.
func (p *ReminderProcessor) ShouldRetry(*domain.Reminder) bool { return false }

func reminderSubject(title string) string {
	r := []rune(title)
	if len(r) > reminderSubjectTitleLimit {
		r = r[:reminderSubjectTitleLimit]
	}
	return "Task Reminder: " + string(r)
}

func reminderMessage(t *domain.Task) string {
	if t.DueAt == nil {
		return fmt.Sprintf("Reminder: '%s'", t.Title)
	}
	return fmt.Sprintf("Reminder: '%s' is due at %s", t.Title, t.DueAt.UTC().Format("2006-01-02 15:04"))
}
