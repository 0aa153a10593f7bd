package insights

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reminderCreatorFunc func(ctx context.Context, tx *sql.Tx, taskID, userID uuid.UUID, at time.Time) (*domain.Reminder, error)

func (f reminderCreatorFunc) Create(ctx context.Context, tx *sql.Tx, taskID, userID uuid.UUID, at time.Time) (*domain.Reminder, error) {
	return f(ctx, tx, taskID, userID, at)
}

type execFixture struct {
	exec      *Executor
	tasks     *mocks.TaskStore
	audit     *mocks.AuditStore
	reminders []*domain.Reminder
	createErr error
}

func newExecFixture(t *testing.T, db *sql.DB, cfg config.AIConfig, seed ...*domain.Task) *execFixture {
	t.Helper()
	f := &execFixture{tasks: mocks.NewTaskStore(seed...), audit: mocks.NewAuditStore()}
	creator := reminderCreatorFunc(func(_ context.Context, _ *sql.Tx, taskID, userID uuid.UUID, at time.Time) (*domain.Reminder, error) {
		if f.createErr != nil {
			return nil, f.createErr
		}
		r, err := domain.NewReminder(taskID, userID, at)
		if err != nil {
			return nil, err
		}
		f.reminders = append(f.reminders, r)
		return r, nil
	})
	analyzer := NewAnalyzer(f.tasks, mocks.NewReminderStore(), discard())
	analyzer.SetClock(func() time.Time { return now })
	f.exec = NewExecutor(db, analyzer, f.tasks, creator, f.audit, nil, cfg, discard())
	f.exec.SetClock(func() time.Time { return now })
	return f
}

var enabled = config.AIConfig{AutomationEnabled: true, ConfidenceThreshold: 0.8}

func priorityRec(task *domain.Task, c Confidence) *Recommendation {
	return &Recommendation{
		Type:       TypePriorityChange,
		TaskID:     task.ID,
		UserID:     task.UserID,
		Confidence: c,
		SuggestedAction: PriorityAction{
			Field:          "priority",
			CurrentValue:   task.Priority,
			SuggestedValue: domain.PriorityHigh,
		},
	}
}

func TestExecute_Gates(t *testing.T) {
	task := newTask(t, uuid.New(), domain.PriorityLow, ptr(-time.Hour))
	tests := []struct {
		name       string
		cfg        config.AIConfig
		rec        *Recommendation
		dryRun     bool
		wantAction string
		wantReason string
	}{
		{
			name:       "disabled",
			cfg:        config.AIConfig{AutomationEnabled: false, ConfidenceThreshold: 0.8},
			rec:        priorityRec(task, ConfidenceHigh),
			wantAction: ActionSkipped,
			wantReason: "AI automation is globally disabled",
		},
		{
			name:       "below threshold",
			cfg:        enabled,
			rec:        priorityRec(task, ConfidenceMedium),
			wantAction: ActionSkipped,
			wantReason: "Confidence medium below threshold 0.8",
		},
		{
			name: "no handler",
			cfg:  enabled,
			rec: &Recommendation{
				Type: TypeTaskOverdue, TaskID: task.ID, UserID: task.UserID,
				Confidence: ConfidenceHigh, SuggestedAction: ReviewAction{Action: ActionReviewAndReschedule},
			},
			wantAction: ActionSkipped,
			wantReason: "No handler for type task_overdue",
		},
		{
			name:       "dry run",
			cfg:        enabled,
			rec:        priorityRec(task, ConfidenceHigh),
			dryRun:     true,
			wantAction: ActionDryRun,
			wantReason: "Dry run - would have applied",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecFixture(t, nil, tt.cfg, task)

			res, err := f.exec.Execute(context.Background(), nil, tt.rec, tt.dryRun)
			require.NoError(t, err)

			assert.False(t, res.Applied)
			assert.Equal(t, tt.wantReason, res.Reason)
			require.Equal(t, []string{tt.wantAction}, f.audit.Actions())
			details := f.audit.Details(0)
			assert.Equal(t, true, details["ai_automated"])
			assert.Equal(t, false, details["applied"])
			assert.Equal(t, tt.wantReason, details["reason"])

			stored, err := f.tasks.GetByID(context.Background(), task.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.PriorityLow, stored.Priority)
		})
	}
}

func TestExecute_AppliesPriorityChange(t *testing.T) {
	task := newTask(t, uuid.New(), domain.PriorityLow, ptr(-time.Hour))
	f := newExecFixture(t, nil, enabled, task)

	res, err := f.exec.Execute(context.Background(), nil, priorityRec(task, ConfidenceHigh), false)
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, map[string]any{
		"field":     "priority",
		"old_value": domain.PriorityLow,
		"new_value": domain.PriorityHigh,
	}, res.Changes)

	stored, err := f.tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, stored.Priority)
	assert.True(t, stored.UpdatedAt.Equal(now))

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionApplied, entries[0].Action)
	assert.Equal(t, task.UserID, entries[0].UserID)
	assert.Equal(t, task.ID, entries[0].EntityID)
	assert.Equal(t, "high", f.audit.Details(0)["confidence"])
}

func TestExecute_AddReminder(t *testing.T) {
	task := newTask(t, uuid.New(), domain.PriorityMedium, ptr(5*time.Hour))
	f := newExecFixture(t, nil, enabled, task)
	rec := SuggestReminder(task, now)

	res, err := f.exec.Execute(context.Background(), nil, rec, false)
	require.NoError(t, err)

	require.True(t, res.Applied)
	require.Len(t, f.reminders, 1)
	changes := res.Changes.(map[string]any)
	assert.Equal(t, "add_reminder", changes["action"])
	assert.Equal(t, f.reminders[0].ID.String(), changes["reminder_id"])
	assert.Equal(t, "2026-07-01T14:00:00Z", changes["remind_at"])
}

func TestExecute_HandlerFailureIsAuditedAsSkipped(t *testing.T) {
	task := newTask(t, uuid.New(), domain.PriorityMedium, ptr(5*time.Hour))
	f := newExecFixture(t, nil, enabled, task)
	f.createErr = errors.New("insert failed for user bob@example.com")

	res, err := f.exec.Execute(context.Background(), nil, SuggestReminder(task, now), false)
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.Contains(t, res.Reason, "Execution failed: insert failed")
	assert.NotContains(t, res.Reason, "bob@example.com")
	assert.Equal(t, []string{ActionSkipped}, f.audit.Actions())
}

func TestExecuteAllForUser_RunsInOneTransactionWithSavepoints(t *testing.T) {
	user := uuid.New()
	task := newTask(t, user, domain.PriorityLow, ptr(-50*time.Hour))
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT ai_recommendation$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^RELEASE SAVEPOINT ai_recommendation$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	f := newExecFixture(t, db, enabled, task)
	results, err := f.exec.ExecuteAllForUser(context.Background(), user, false)
	require.NoError(t, err)

	// priority change applies; task_overdue has no handler
	require.Len(t, results, 2)
	assert.True(t, results[0].Applied)
	assert.False(t, results[1].Applied)
	assert.Equal(t, []string{ActionApplied, ActionSkipped}, f.audit.Actions())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteAllForUser_HandlerErrorRollsBackToSavepoint(t *testing.T) {
	user := uuid.New()
	task := newTask(t, user, domain.PriorityMedium, ptr(5*time.Hour))
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT ai_recommendation$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT ai_recommendation$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	f := newExecFixture(t, db, enabled, task)
	f.createErr = errors.New("constraint violation")

	results, err := f.exec.ExecuteAllForUser(context.Background(), user, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Applied)
	assert.Equal(t, []string{ActionSkipped}, f.audit.Actions())
	assert.NoError(t, mock.ExpectationsWereMet())
}
