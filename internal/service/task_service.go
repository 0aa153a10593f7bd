package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/reminder"
	"github.com/phrazzld/taskpulse/internal/store"
)

// List paging bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// EventEmitter raises outbox events inside a unit of work and publishes
// them after it commits.
type EventEmitter interface {
	Emit(
		ctx context.Context,
		tx *sql.Tx,
		eventType domain.EventType,
		aggregateID, userID uuid.UUID,
		payload events.Payload,
	) (*domain.StoredEvent, error)
	PendingContext(ctx context.Context) context.Context
	PublishPending(ctx context.Context) int
}

// ReminderEngine is the reminder lifecycle used by the services.
type ReminderEngine interface {
	Candidate(task *domain.Task, leadHours *int) *reminder.Candidate
	Create(ctx context.Context, tx *sql.Tx, taskID, userID uuid.UUID, remindAt time.Time) (*domain.Reminder, error)
	CreateFromCandidate(ctx context.Context, tx *sql.Tx, c *reminder.Candidate) (*domain.Reminder, error)
	CancelReminder(ctx context.Context, tx *sql.Tx, reminderID, userID uuid.UUID) error
	HandleTaskCompletion(ctx context.Context, tx *sql.Tx, taskID uuid.UUID) (int, error)
	HandleTaskDeletion(ctx context.Context, tx *sql.Tx, taskID uuid.UUID) (int, error)
	UpdateForDueChange(ctx context.Context, tx *sql.Tx, task *domain.Task, oldDue *time.Time) (*domain.Reminder, error)
	GetUpcomingReminders(ctx context.Context, userID uuid.UUID, withinHours int) ([]*domain.Reminder, error)
	GetTaskReminders(ctx context.Context, taskID, userID uuid.UUID) ([]*domain.Reminder, error)
}

// TaskCreate is the input of CreateTask.
type TaskCreate struct {
	Title              string                `json:"title" validate:"required,min=1,max=200"`
	Description        string                `json:"description" validate:"max=2000"`
	Priority           domain.Priority       `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt              *time.Time            `json:"due_at"`
	RecurrenceType     domain.RecurrenceType `json:"recurrence_type" validate:"omitempty,oneof=none daily weekly custom"`
	RecurrenceInterval *int                  `json:"recurrence_interval"`
}

// TaskUpdate is a partial update. Nil fields are left unchanged; ClearDueAt
// removes the due date.
type TaskUpdate struct {
	Title              *string                `json:"title" validate:"omitempty,min=1,max=200"`
	Description        *string                `json:"description" validate:"omitempty,max=2000"`
	Priority           *domain.Priority       `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt              *time.Time             `json:"due_at"`
	ClearDueAt         bool                   `json:"clear_due_at"`
	RecurrenceType     *domain.RecurrenceType `json:"recurrence_type" validate:"omitempty,oneof=none daily weekly custom"`
	RecurrenceInterval *int                   `json:"recurrence_interval"`
}

// ListOptions filters and pages ListTasks.
type ListOptions struct {
	Completed *bool
	Limit     int
	Offset    int
}

// ToggleResult is the outcome of ToggleCompletion. Next is the follow-up
// occurrence created when a recurring task was completed.
type ToggleResult struct {
	Task *domain.Task
	Next *domain.Task
}

// TaskService manages tasks for their owner.
type TaskService interface {
	CreateTask(ctx context.Context, userID uuid.UUID, in TaskCreate) (*domain.Task, error)
	UpdateTask(ctx context.Context, userID, taskID uuid.UUID, in TaskUpdate) (*domain.Task, error)
	ToggleCompletion(ctx context.Context, userID, taskID uuid.UUID) (*ToggleResult, error)
	DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error
	GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*domain.Task, int, error)
}

type taskServiceImpl struct {
	db        store.TxBeginner
	tasks     store.TaskStore
	reminders ReminderEngine
	events    EventEmitter
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

var _ TaskService = (*taskServiceImpl)(nil)

// NewTaskService creates a TaskService.
func NewTaskService(
	db store.TxBeginner,
	tasks store.TaskStore,
	reminders ReminderEngine,
	emitter EventEmitter,
	logger *slog.Logger,
) (TaskService, error) {
	return newTaskService(db, tasks, reminders, emitter, logger)
}

func newTaskService(
	db store.TxBeginner,
	tasks store.TaskStore,
	reminders ReminderEngine,
	emitter EventEmitter,
	logger *slog.Logger,
) (*taskServiceImpl, error) {
	if db == nil {
		return nil, domain.NewValidationError("db", "cannot be nil", nil)
	}
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", nil)
	}
	if reminders == nil {
		return nil, domain.NewValidationError("reminders", "cannot be nil", nil)
	}
	if emitter == nil {
		return nil, domain.NewValidationError("emitter", "cannot be nil", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &taskServiceImpl{
		db:        db,
		tasks:     tasks,
		reminders: reminders,
		events:    emitter,
		validate:  newValidator(),
		logger:    logger.With(slog.String("component", "task_service")),
		now:       time.Now,
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// unitOfWork runs fn in a transaction and publishes the events it raised
// once the transaction has committed.
func unitOfWork(ctx context.Context, db store.TxBeginner, emitter EventEmitter, fn store.TxFn) error {
	ctx = emitter.PendingContext(ctx)
	if err := store.RunInTransaction(ctx, db, fn); err != nil {
		events.DiscardPending(ctx)
		return err
	}
	emitter.PublishPending(ctx)
	return nil
}

func (s *taskServiceImpl) emitTask(ctx context.Context, tx *sql.Tx, t domain.EventType, task *domain.Task) error {
	if _, err := s.events.Emit(ctx, tx, t, task.ID, task.UserID, events.NewTaskPayload(task)); err != nil {
		return fmt.Errorf("failed to emit %s: %w", t, err)
	}
	return nil
}

func (s *taskServiceImpl) lookup(ctx context.Context, tasks store.TaskStore, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := tasks.GetForUser(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) || errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, userID uuid.UUID, in TaskCreate) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	now := s.now().UTC()
	task := &domain.Task{
		ID:                 uuid.New(),
		UserID:             userID,
		Title:              in.Title,
		Description:        in.Description,
		Priority:           in.Priority,
		RecurrenceType:     in.RecurrenceType,
		RecurrenceInterval: in.RecurrenceInterval,
		DueAt:              utcPtr(in.DueAt),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if task.RecurrenceType == "" {
		task.RecurrenceType = domain.RecurrenceNone
	}
	if task.RecurrenceType != domain.RecurrenceCustom {
		task.RecurrenceInterval = nil
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.SyncNextOccurrence()

	err := unitOfWork(ctx, s.db, s.events, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.tasks.WithTx(tx).Create(ctx, task); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		return s.emitTask(ctx, tx, domain.EventTaskCreated, task)
	})
	if err != nil {
		log.Error("failed to create task", slog.String("error", err.Error()))
		return nil, err
	}

	log.Info("task created", slog.String("task_id", task.ID.String()))
	return task, nil
}

func (s *taskServiceImpl) UpdateTask(
	ctx context.Context,
	userID, taskID uuid.UUID,
	in TaskUpdate,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	var updated *domain.Task
	err := unitOfWork(ctx, s.db, s.events, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		task, err := s.lookup(ctx, tasks, userID, taskID)
		if err != nil {
			return err
		}
		oldDue := task.DueAt

		applyUpdate(task, in)
		if err := task.Validate(); err != nil {
			return err
		}
		task.SyncNextOccurrence()
		task.UpdatedAt = s.now().UTC()

		if err := tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if !task.IsCompleted {
			if _, err := s.reminders.UpdateForDueChange(ctx, tx, task, oldDue); err != nil {
				return fmt.Errorf("failed to update reminders: %w", err)
			}
		}
		if err := s.emitTask(ctx, tx, domain.EventTaskUpdated, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) && !domain.IsValidationError(err) {
			log.Error("failed to update task",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
		}
		return nil, err
	}
	return updated, nil
}

func applyUpdate(task *domain.Task, in TaskUpdate) {
	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.ClearDueAt {
		task.DueAt = nil
	} else if in.DueAt != nil {
		task.DueAt = utcPtr(in.DueAt)
	}
	if in.RecurrenceType != nil {
		task.RecurrenceType = *in.RecurrenceType
	}
	if in.RecurrenceInterval != nil {
		v := *in.RecurrenceInterval
		task.RecurrenceInterval = &v
	}
	if task.RecurrenceType != domain.RecurrenceCustom {
		task.RecurrenceInterval = nil
	}
}

// ToggleCompletion flips the completion flag. Completing a task cancels its
// reminders and, for recurring tasks, creates the next occurrence with a
// reminder of its own.
func (s *taskServiceImpl) ToggleCompletion(ctx context.Context, userID, taskID uuid.UUID) (*ToggleResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result := &ToggleResult{}
	err := unitOfWork(ctx, s.db, s.events, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		task, err := s.lookup(ctx, tasks, userID, taskID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		task.UpdatedAt = now

		if task.IsCompleted {
			task.IsCompleted = false
			task.CompletedAt = nil
			task.SyncNextOccurrence()
			if err := tasks.Update(ctx, task); err != nil {
				return fmt.Errorf("failed to update task: %w", err)
			}
			result.Task = task
			return s.emitTask(ctx, tx, domain.EventTaskUpdated, task)
		}

		if _, err := s.reminders.HandleTaskCompletion(ctx, tx, task.ID); err != nil {
			return fmt.Errorf("failed to cancel reminders: %w", err)
		}
		task.IsCompleted = true
		task.CompletedAt = &now
		task.SyncNextOccurrence()
		if err := tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if err := s.emitTask(ctx, tx, domain.EventTaskCompleted, task); err != nil {
			return err
		}
		result.Task = task

		if !task.IsRecurring() {
			return nil
		}
		next := task.NextOccurrence(now)
		if next == nil {
			return nil
		}
		if err := tasks.Create(ctx, next); err != nil {
			return fmt.Errorf("failed to create next occurrence: %w", err)
		}
		if err := s.emitTask(ctx, tx, domain.EventTaskRecurred, next); err != nil {
			return err
		}
		if c := s.reminders.Candidate(next, nil); c != nil {
			if _, err := s.reminders.CreateFromCandidate(ctx, tx, c); err != nil {
				return fmt.Errorf("failed to schedule next occurrence reminder: %w", err)
			}
		}
		result.Next = next
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			log.Error("failed to toggle task completion",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
		}
		return nil, err
	}

	if result.Next != nil {
		log.Info("recurring task renewed",
			slog.String("task_id", taskID.String()),
			slog.String("next_task_id", result.Next.ID.String()))
	}
	return result, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := unitOfWork(ctx, s.db, s.events, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		task, err := s.lookup(ctx, tasks, userID, taskID)
		if err != nil {
			return err
		}
		if _, err := s.reminders.HandleTaskDeletion(ctx, tx, task.ID); err != nil {
			return fmt.Errorf("failed to cancel reminders: %w", err)
		}
		if err := s.emitTask(ctx, tx, domain.EventTaskDeleted, task); err != nil {
			return err
		}
		if err := tasks.Delete(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			log.Error("failed to delete task",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
		}
		return err
	}

	log.Info("task deleted", slog.String("task_id", taskID.String()))
	return nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	return s.lookup(ctx, s.tasks, userID, taskID)
}

func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	userID uuid.UUID,
	opts ListOptions,
) ([]*domain.Task, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.tasks.List(ctx, store.TaskFilter{
		UserID:    userID,
		Completed: opts.Completed,
		OrderBy:   store.OrderCreatedDesc,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
