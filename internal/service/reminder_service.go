package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/store"
)

// ReminderCreate is the input of CreateReminder. With RemindAt unset the
// time is derived from the task's due date, using LeadHours when given.
type ReminderCreate struct {
	RemindAt  *time.Time `json:"remind_at"`
	LeadHours *int       `json:"lead_hours" validate:"omitempty,min=0,max=720"`
}

// ReminderService exposes reminder operations to task owners.
type ReminderService interface {
	CreateReminder(ctx context.Context, userID, taskID uuid.UUID, in ReminderCreate) (*domain.Reminder, error)
	CancelReminder(ctx context.Context, userID, reminderID uuid.UUID) error
	UpcomingReminders(ctx context.Context, userID uuid.UUID, withinHours int) ([]*domain.Reminder, error)
	TaskReminders(ctx context.Context, userID, taskID uuid.UUID) ([]*domain.Reminder, error)
}

type reminderServiceImpl struct {
	db       store.TxBeginner
	tasks    store.TaskStore
	engine   ReminderEngine
	events   EventEmitter
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
}

var _ ReminderService = (*reminderServiceImpl)(nil)

// NewReminderService creates a ReminderService.
func NewReminderService(
	db store.TxBeginner,
	tasks store.TaskStore,
	engine ReminderEngine,
	emitter EventEmitter,
	logger *slog.Logger,
) (ReminderService, error) {
	return newReminderService(db, tasks, engine, emitter, logger)
}

func newReminderService(
	db store.TxBeginner,
	tasks store.TaskStore,
	engine ReminderEngine,
	emitter EventEmitter,
	logger *slog.Logger,
) (*reminderServiceImpl, error) {
	if db == nil {
		return nil, domain.NewValidationError("db", "cannot be nil", nil)
	}
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", nil)
	}
	if engine == nil {
		return nil, domain.NewValidationError("engine", "cannot be nil", nil)
	}
	if emitter == nil {
		return nil, domain.NewValidationError("emitter", "cannot be nil", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reminderServiceImpl{
		db:       db,
		tasks:    tasks,
		engine:   engine,
		events:   emitter,
		logger:   logger.With(slog.String("component", "reminder_service")),
		now:      time.Now,
		validate: newValidator(),
	}, nil
}

// CreateReminder schedules a reminder for an open task, replacing any
// pending one.
func (s *reminderServiceImpl) CreateReminder(
	ctx context.Context,
	userID, taskID uuid.UUID,
	in ReminderCreate,
) (*domain.Reminder, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	now := s.now().UTC()
	if in.RemindAt != nil && !in.RemindAt.After(now) {
		return nil, domain.NewValidationError("remind_at", "must be in the future", nil)
	}

	var created *domain.Reminder
	err := unitOfWork(ctx, s.db, s.events, func(ctx context.Context, tx *sql.Tx) error {
		task, err := s.tasks.WithTx(tx).GetForUser(ctx, userID, taskID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task: %w", err)
		}
		if task.IsCompleted {
			return domain.NewValidationError("task_id", "task is already completed", nil)
		}

		if in.RemindAt != nil {
			created, err = s.engine.Create(ctx, tx, task.ID, userID, in.RemindAt.UTC())
			return err
		}
		c := s.engine.Candidate(task, in.LeadHours)
		if c == nil {
			return ErrNoReminderCandidate
		}
		created, err = s.engine.CreateFromCandidate(ctx, tx, c)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) && !errors.Is(err, ErrNoReminderCandidate) && !domain.IsValidationError(err) {
			log.Error("failed to create reminder",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
		}
		return nil, err
	}
	return created, nil
}

func (s *reminderServiceImpl) CancelReminder(ctx context.Context, userID, reminderID uuid.UUID) error {
	err := unitOfWork(ctx, s.db, s.events, func(ctx context.Context, tx *sql.Tx) error {
		return s.engine.CancelReminder(ctx, tx, reminderID, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrReminderNotFound
	}
	return err
}

func (s *reminderServiceImpl) UpcomingReminders(
	ctx context.Context,
	userID uuid.UUID,
	withinHours int,
) ([]*domain.Reminder, error) {
	return s.engine.GetUpcomingReminders(ctx, userID, withinHours)
}

func (s *reminderServiceImpl) TaskReminders(
	ctx context.Context,
	userID, taskID uuid.UUID,
) ([]*domain.Reminder, error) {
	out, err := s.engine.GetTaskReminders(ctx, taskID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return out, err
}
