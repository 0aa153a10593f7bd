package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask_AppliesDefaultsAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.expectCommit()
	userID := uuid.New()

	task, err := f.taskSvc.CreateTask(context.Background(), userID, TaskCreate{
		Title: "Renew passport",
		DueAt: at(72 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.Equal(t, domain.RecurrenceNone, task.RecurrenceType)
	assert.Nil(t, task.NextOccurrenceAt)
	assert.True(t, task.CreatedAt.Equal(fixedNow))

	stored, err := f.tasks.GetForUser(context.Background(), userID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renew passport", stored.Title)

	assert.Equal(t, []domain.EventType{domain.EventTaskCreated}, f.broker.published())
	assert.Contains(t, f.audit.Actions(), "task.created")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTask_RecurringTracksNextOccurrence(t *testing.T) {
	f := newFixture(t)
	f.expectCommit()

	task, err := f.taskSvc.CreateTask(context.Background(), uuid.New(), TaskCreate{
		Title:              "Water plants",
		RecurrenceType:     domain.RecurrenceCustom,
		RecurrenceInterval: ptr(3),
		DueAt:              at(time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, task.NextOccurrenceAt)
	assert.True(t, task.NextOccurrenceAt.Equal(*task.DueAt))
}

func TestCreateTask_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    TaskCreate
		field string
	}{
		{"empty title", TaskCreate{Title: ""}, "title"},
		{"long title", TaskCreate{Title: strings.Repeat("x", 201)}, "title"},
		{"long description", TaskCreate{Title: "ok", Description: strings.Repeat("d", 2001)}, "description"},
		{"unknown priority", TaskCreate{Title: "ok", Priority: "urgent"}, "priority"},
		{"custom without interval", TaskCreate{Title: "ok", RecurrenceType: domain.RecurrenceCustom}, "recurrence_interval"},
		{"interval out of range", TaskCreate{
			Title:              "ok",
			RecurrenceType:     domain.RecurrenceCustom,
			RecurrenceInterval: ptr(366),
		}, "recurrence_interval"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.taskSvc.CreateTask(context.Background(), uuid.New(), tc.in)

			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
			assert.Equal(t, tc.field, fieldOf(t, err))
			assert.Empty(t, f.outbox.All())
			require.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestCreateTask_TitleLimitCountsCharacters(t *testing.T) {
	f := newFixture(t)
	f.expectCommit()

	_, err := f.taskSvc.CreateTask(context.Background(), uuid.New(), TaskCreate{
		Title: strings.Repeat("é", 200),
	})
	require.NoError(t, err)
}

func TestUpdateTask_DueChangeReschedulesReminder(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Ship release", at(72*time.Hour))
	f := newFixture(t, task)
	f.expectCommit()

	updated, err := f.taskSvc.UpdateTask(context.Background(), userID, task.ID, TaskUpdate{
		Title: ptr("Ship release 2"),
		DueAt: at(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ship release 2", updated.Title)
	assert.True(t, updated.UpdatedAt.Equal(fixedNow))

	pending, err := f.reminders.ListPendingForTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].RemindAt.Equal(fixedNow.Add(24*time.Hour)))

	assert.ElementsMatch(t,
		[]domain.EventType{domain.EventTaskUpdated, domain.EventReminderScheduled},
		f.broker.published())
}

func TestUpdateTask_ClearDueCancelsReminder(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Dentist", at(72*time.Hour))
	f := newFixture(t, task)
	f.expectCommit()
	f.expectCommit()

	_, err := f.remSvc.CreateReminder(context.Background(), userID, task.ID, ReminderCreate{})
	require.NoError(t, err)

	updated, err := f.taskSvc.UpdateTask(context.Background(), userID, task.ID, TaskUpdate{ClearDueAt: true})
	require.NoError(t, err)
	assert.Nil(t, updated.DueAt)

	has, err := f.reminders.HasPending(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestUpdateTask_ForeignTaskNotFound(t *testing.T) {
	task := openTask(uuid.New(), "Private", nil)
	f := newFixture(t, task)
	f.expectRollback()

	_, err := f.taskSvc.UpdateTask(context.Background(), uuid.New(), task.ID, TaskUpdate{Title: ptr("mine now")})

	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Empty(t, f.broker.published())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateTask_SwitchingAwayFromCustomDropsInterval(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Stretch", nil)
	task.RecurrenceType = domain.RecurrenceCustom
	task.RecurrenceInterval = ptr(2)
	f := newFixture(t, task)
	f.expectCommit()

	weekly := domain.RecurrenceWeekly
	updated, err := f.taskSvc.UpdateTask(context.Background(), userID, task.ID, TaskUpdate{RecurrenceType: &weekly})
	require.NoError(t, err)
	assert.Nil(t, updated.RecurrenceInterval)
}

func TestToggleCompletion_RecurringSpawnsNextOccurrence(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Take out bins", at(2*time.Hour))
	task.RecurrenceType = domain.RecurrenceDaily
	task.SyncNextOccurrence()
	f := newFixture(t, task)
	f.expectCommit()
	f.expectCommit()

	_, err := f.remSvc.CreateReminder(context.Background(), userID, task.ID, ReminderCreate{})
	require.NoError(t, err)

	res, err := f.taskSvc.ToggleCompletion(context.Background(), userID, task.ID)
	require.NoError(t, err)

	assert.True(t, res.Task.IsCompleted)
	require.NotNil(t, res.Task.CompletedAt)
	assert.True(t, res.Task.CompletedAt.Equal(fixedNow))

	require.NotNil(t, res.Next)
	assert.False(t, res.Next.IsCompleted)
	require.NotNil(t, res.Next.ParentTaskID)
	assert.Equal(t, task.ID, *res.Next.ParentTaskID)
	require.NotNil(t, res.Next.DueAt)
	assert.True(t, res.Next.DueAt.Equal(fixedNow.Add(26*time.Hour)))

	has, err := f.reminders.HasPending(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, has, "completed task keeps no pending reminder")

	next, err := f.reminders.ListPendingForTask(context.Background(), res.Next.ID)
	require.NoError(t, err)
	assert.Len(t, next, 1)

	published := f.broker.published()
	assert.Contains(t, published, domain.EventTaskCompleted)
	assert.Contains(t, published, domain.EventTaskRecurred)
	assert.Contains(t, published, domain.EventReminderCancelled)
}

func TestToggleCompletion_UncompleteClearsCompletedAt(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Read book", nil)
	f := newFixture(t, task)
	f.expectCommit()
	f.expectCommit()

	res, err := f.taskSvc.ToggleCompletion(context.Background(), userID, task.ID)
	require.NoError(t, err)
	assert.True(t, res.Task.IsCompleted)
	assert.Nil(t, res.Next)

	res, err = f.taskSvc.ToggleCompletion(context.Background(), userID, task.ID)
	require.NoError(t, err)
	assert.False(t, res.Task.IsCompleted)
	assert.Nil(t, res.Task.CompletedAt)

	assert.Equal(t,
		[]domain.EventType{domain.EventTaskCompleted, domain.EventTaskUpdated},
		f.broker.published())
}

func TestDeleteTask_CancelsRemindersAndEmits(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Old chore", at(72*time.Hour))
	f := newFixture(t, task)
	f.expectCommit()
	f.expectCommit()

	r, err := f.remSvc.CreateReminder(context.Background(), userID, task.ID, ReminderCreate{})
	require.NoError(t, err)

	require.NoError(t, f.taskSvc.DeleteTask(context.Background(), userID, task.ID))

	_, err = f.taskSvc.GetTask(context.Background(), userID, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	stored, err := f.reminders.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReminderStatusCancelled, stored.Status)

	assert.Contains(t, f.broker.published(), domain.EventTaskDeleted)
}

func TestDeleteTask_RollbackPublishesNothing(t *testing.T) {
	userID := uuid.New()
	task := openTask(userID, "Sticky", nil)
	f := newFixture(t, task)
	f.expectRollback()
	f.tasks.FailNext("Delete", errors.New("connection reset"))

	err := f.taskSvc.DeleteTask(context.Background(), userID, task.ID)

	require.Error(t, err)
	assert.Empty(t, f.broker.published())
	_, err = f.taskSvc.GetTask(context.Background(), userID, task.ID)
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListTasks_FiltersByCompletion(t *testing.T) {
	userID := uuid.New()
	open := openTask(userID, "open", nil)
	done := openTask(userID, "done", nil)
	done.IsCompleted = true
	other := openTask(uuid.New(), "someone else", nil)
	f := newFixture(t, open, done, other)

	all, total, err := f.taskSvc.ListTasks(context.Background(), userID, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	completed := true
	only, total, err := f.taskSvc.ListTasks(context.Background(), userID, ListOptions{Completed: &completed, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, only, 1)
	assert.Equal(t, done.ID, only[0].ID)
}

func TestNewTaskService_RequiresDependencies(t *testing.T) {
	f := newFixture(t)

	_, err := NewTaskService(nil, f.tasks, f.engine, nil, nil)
	assert.True(t, domain.IsValidationError(err))
}
