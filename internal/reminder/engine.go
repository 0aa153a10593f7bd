package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/store"
)

// Query defaults.
const (
	DefaultDueLimit      = 100
	DefaultUpcomingHours = 24
)

// EventSink receives the events raised by reminder state changes.
type EventSink interface {
	Emit(
		ctx context.Context,
		tx *sql.Tx,
		eventType domain.EventType,
		aggregateID, userID uuid.UUID,
		payload events.Payload,
	) (*domain.StoredEvent, error)
}

// Engine manages the reminder lifecycle.
type Engine struct {
	reminders store.ReminderStore
	tasks     store.TaskStore
	sink      EventSink
	scheduler JobScheduler
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithScheduler mirrors reminders into an external job scheduler.
func WithScheduler(s JobScheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.scheduler = s
		}
	}
}

// NewEngine creates an Engine. A nil sink drops events.
func NewEngine(
	reminders store.ReminderStore,
	tasks store.TaskStore,
	sink EventSink,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		reminders: reminders,
		tasks:     tasks,
		sink:      sink,
		scheduler: NopScheduler{},
		logger:    logger.With("component", "reminder_engine"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) reminderStore(tx *sql.Tx) store.ReminderStore {
	if tx == nil {
		return e.reminders
	}
	return e.reminders.WithTx(tx)
}

func (e *Engine) emit(
	ctx context.Context,
	tx *sql.Tx,
	t domain.EventType,
	r *domain.Reminder,
	payload events.Payload,
) error {
	if e.sink == nil {
		return nil
	}
	if _, err := e.sink.Emit(ctx, tx, t, r.TaskID, r.UserID, payload); err != nil {
		return fmt.Errorf("failed to emit %s: %w", t, err)
	}
	return nil
}

// Candidate proposes a reminder for task using the engine's clock.
func (e *Engine) Candidate(task *domain.Task, leadHours *int) *Candidate {
	return GenerateCandidate(task, leadHours, e.now().UTC())
}

// Create replaces the task's pending reminders with a new one at remindAt.
func (e *Engine) Create(
	ctx context.Context,
	tx *sql.Tx,
	taskID, userID uuid.UUID,
	remindAt time.Time,
) (*domain.Reminder, error) {
	r, err := domain.NewReminder(taskID, userID, remindAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = e.now().UTC()

	if _, err := e.CancelTaskReminders(ctx, tx, taskID, domain.CancelReasonReplaced); err != nil {
		return nil, err
	}

	reminders := e.reminderStore(tx)
	if err := reminders.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	if err := e.emit(ctx, tx, domain.EventReminderScheduled, r, events.ReminderScheduledPayload{
		ReminderID: r.ID,
		TaskID:     r.TaskID,
		RemindAt:   r.RemindAt,
	}); err != nil {
		return nil, err
	}

	e.scheduleJob(ctx, reminders, r)

	e.logger.InfoContext(ctx, "reminder created",
		"reminder_id", r.ID,
		"task_id", taskID,
		"remind_at", r.RemindAt)
	return r, nil
}

// CreateFromCandidate stores a proposed reminder.
func (e *Engine) CreateFromCandidate(ctx context.Context, tx *sql.Tx, c *Candidate) (*domain.Reminder, error) {
	return e.Create(ctx, tx, c.TaskID, c.UserID, c.RemindAt)
}

func (e *Engine) scheduleJob(ctx context.Context, reminders store.ReminderStore, r *domain.Reminder) {
	jobID, err := e.scheduler.Schedule(ctx, r)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to schedule reminder job", "reminder_id", r.ID, "error", err)
		return
	}
	if jobID == "" {
		return
	}
	if err := reminders.SetJobID(ctx, r.ID, jobID); err != nil {
		e.logger.WarnContext(ctx, "failed to record reminder job id", "reminder_id", r.ID, "error", err)
		return
	}
	r.DaprJobID = jobID
}

func (e *Engine) deleteJob(ctx context.Context, r *domain.Reminder) {
	if err := e.scheduler.Delete(ctx, r); err != nil {
		e.logger.WarnContext(ctx, "failed to delete reminder job", "reminder_id", r.ID, "error", err)
	}
}

// CancelTaskReminders cancels every pending reminder of a task and returns
// how many changed.
func (e *Engine) CancelTaskReminders(
	ctx context.Context,
	tx *sql.Tx,
	taskID uuid.UUID,
	reason domain.CancelReason,
) (int, error) {
	if !reason.Valid() {
		return 0, domain.NewValidationError("reason", fmt.Sprintf("unknown cancel reason %q", reason), nil)
	}

	reminders := e.reminderStore(tx)
	pending, err := reminders.ListPendingForTask(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending reminders: %w", err)
	}

	cancelled := 0
	for _, r := range pending {
		ok, err := e.cancel(ctx, tx, reminders, r, reason)
		if err != nil {
			return cancelled, err
		}
		if ok {
			cancelled++
		}
	}

	if cancelled > 0 {
		e.logger.InfoContext(ctx, "reminders cancelled",
			"task_id", taskID,
			"count", cancelled,
			"reason", reason)
	}
	return cancelled, nil
}

func (e *Engine) cancel(
	ctx context.Context,
	tx *sql.Tx,
	reminders store.ReminderStore,
	r *domain.Reminder,
	reason domain.CancelReason,
) (bool, error) {
	ok, err := reminders.Transition(ctx, r.ID, domain.ReminderStatusPending, domain.ReminderStatusCancelled, nil)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reminder %s: %w", r.ID, err)
	}
	if !ok {
		return false, nil
	}
	r.Status = domain.ReminderStatusCancelled

	if err := e.emit(ctx, tx, domain.EventReminderCancelled, r, events.ReminderCancelledPayload{
		ReminderID: r.ID,
		TaskID:     r.TaskID,
		Reason:     reason,
	}); err != nil {
		return false, err
	}
	if r.DaprJobID != "" {
		e.deleteJob(ctx, r)
	}
	return true, nil
}

// CancelReminder cancels one reminder owned by userID. Missing and foreign
// reminders both report store.ErrReminderNotFound.
func (e *Engine) CancelReminder(ctx context.Context, tx *sql.Tx, reminderID, userID uuid.UUID) error {
	reminders := e.reminderStore(tx)
	r, err := reminders.GetByID(ctx, reminderID)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return store.ErrReminderNotFound
	}
	if r.Status != domain.ReminderStatusPending {
		return domain.NewValidationError("status", fmt.Sprintf("reminder is already %s", r.Status), domain.ErrInvalidTransition)
	}
	_, err = e.cancel(ctx, tx, reminders, r, domain.CancelReasonUserCancelled)
	return err
}

// MarkSent records delivery of a pending reminder. A reminder that is no
// longer pending is left alone.
func (e *Engine) MarkSent(ctx context.Context, tx *sql.Tx, reminderID uuid.UUID, at time.Time) error {
	reminders := e.reminderStore(tx)
	r, err := reminders.GetByID(ctx, reminderID)
	if err != nil {
		return err
	}

	at = at.UTC()
	ok, err := reminders.Transition(ctx, reminderID, domain.ReminderStatusPending, domain.ReminderStatusSent, &at)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	if !ok {
		e.logger.WarnContext(ctx, "reminder not pending, not marking sent",
			"reminder_id", reminderID,
			"status", r.Status)
		return nil
	}
	r.Status = domain.ReminderStatusSent
	r.SentAt = &at

	return e.emit(ctx, tx, domain.EventReminderSent, r, events.ReminderSentPayload{
		ReminderID: r.ID,
		TaskID:     r.TaskID,
		SentAt:     at,
	})
}

// MarkFailed moves a pending reminder to the terminal failed state.
func (e *Engine) MarkFailed(ctx context.Context, tx *sql.Tx, reminderID uuid.UUID) error {
	ok, err := e.reminderStore(tx).Transition(
		ctx, reminderID, domain.ReminderStatusPending, domain.ReminderStatusFailed, nil)
	if err != nil {
		return fmt.Errorf("failed to mark reminder failed: %w", err)
	}
	if !ok {
		e.logger.WarnContext(ctx, "reminder not pending, not marking failed", "reminder_id", reminderID)
	}
	return nil
}

// GetDueReminders returns pending reminders due at or before asOf. A
// non-positive limit uses DefaultDueLimit.
func (e *Engine) GetDueReminders(ctx context.Context, asOf time.Time, limit int) ([]*domain.Reminder, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	return e.reminders.ListDue(ctx, asOf.UTC(), limit)
}

// GetUpcomingReminders returns a user's pending reminders firing within the
// next withinHours. A non-positive window uses DefaultUpcomingHours.
func (e *Engine) GetUpcomingReminders(ctx context.Context, userID uuid.UUID, withinHours int) ([]*domain.Reminder, error) {
	if withinHours <= 0 {
		withinHours = DefaultUpcomingHours
	}
	now := e.now().UTC()
	return e.reminders.ListUpcoming(ctx, userID, now, now.Add(time.Duration(withinHours)*time.Hour))
}

// GetTaskReminders lists every reminder of a task the user owns.
func (e *Engine) GetTaskReminders(ctx context.Context, taskID, userID uuid.UUID) ([]*domain.Reminder, error) {
	if _, err := e.tasks.GetForUser(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return e.reminders.ListByTask(ctx, taskID)
}

// HandleTaskCompletion cancels reminders of a completed task.
func (e *Engine) HandleTaskCompletion(ctx context.Context, tx *sql.Tx, taskID uuid.UUID) (int, error) {
	return e.CancelTaskReminders(ctx, tx, taskID, domain.CancelReasonTaskCompleted)
}

// HandleTaskDeletion cancels reminders of a deleted task.
func (e *Engine) HandleTaskDeletion(ctx context.Context, tx *sql.Tx, taskID uuid.UUID) (int, error) {
	return e.CancelTaskReminders(ctx, tx, taskID, domain.CancelReasonTaskDeleted)
}

// UpdateForDueChange keeps reminders in step with a task's due date. It
// returns the replacement reminder, if one was created.
func (e *Engine) UpdateForDueChange(
	ctx context.Context,
	tx *sql.Tx,
	task *domain.Task,
	oldDue *time.Time,
) (*domain.Reminder, error) {
	if task.DueAt == nil {
		if oldDue == nil {
			return nil, nil
		}
		_, err := e.CancelTaskReminders(ctx, tx, task.ID, domain.CancelReasonUserCancelled)
		return nil, err
	}
	if oldDue != nil && oldDue.Equal(*task.DueAt) {
		return nil, nil
	}

	if _, err := e.CancelTaskReminders(ctx, tx, task.ID, domain.CancelReasonReplaced); err != nil {
		return nil, err
	}
	c := e.Candidate(task, nil)
	if c == nil {
		return nil, nil
	}
	return e.CreateFromCandidate(ctx, tx, c)
}

// GenerateAllCandidates proposes reminders for the user's open tasks that
// have a future due date and no pending reminder.
func (e *Engine) GenerateAllCandidates(ctx context.Context, userID uuid.UUID) ([]*Candidate, error) {
	open := false
	now := e.now().UTC()
	tasks, _, err := e.tasks.List(ctx, store.TaskFilter{
		UserID:     userID,
		Completed:  &open,
		RequireDue: true,
		OrderBy:    store.OrderDueAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var out []*Candidate
	for _, t := range tasks {
		if t.DueAt == nil || !t.DueAt.After(now) {
			continue
		}
		has, err := e.reminders.HasPending(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check reminders for task %s: %w", t.ID, err)
		}
		if has {
			continue
		}
		if c := GenerateCandidate(t, nil, now); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}
