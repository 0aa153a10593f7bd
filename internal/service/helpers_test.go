package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/mocks"
	"github.com/phrazzld/taskpulse/internal/reminder"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingBroker struct {
	mu    sync.Mutex
	types []domain.EventType
}

func (b *recordingBroker) Publish(_ context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, env.Type)
	return nil
}

func (b *recordingBroker) published() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.EventType(nil), b.types...)
}

type fixture struct {
	db        *sql.DB
	mock      sqlmock.Sqlmock
	tasks     *mocks.TaskStore
	reminders *mocks.ReminderStore
	outbox    *mocks.EventStore
	audit     *mocks.AuditStore
	broker    *recordingBroker
	engine    *reminder.Engine
	taskSvc   *taskServiceImpl
	remSvc    *reminderServiceImpl
}

func newFixture(t *testing.T, seed ...*domain.Task) *fixture {
	t.Helper()
	f := &fixture{
		tasks:     mocks.NewTaskStore(seed...),
		reminders: mocks.NewReminderStore(),
		outbox:    mocks.NewEventStore(),
		audit:     mocks.NewAuditStore(),
		broker:    &recordingBroker{},
	}
	f.db, f.mock = mocks.NewTxDB(t)

	publisher := events.NewPublisher(f.outbox, f.broker, discardLogger(), events.WithClock(clock))
	// In-memory stores never abort the transaction, so consumers run without savepoints.
	dispatcher := events.NewDispatcher(discardLogger(), events.WithSavepoints(false))
	events.RegisterDefaults(dispatcher, f.audit, mocks.NewNotificationStore(), discardLogger())
	emitter := events.NewEmitter(true, publisher, dispatcher, discardLogger())

	f.engine = reminder.NewEngine(f.reminders, f.tasks, emitter, discardLogger(), reminder.WithClock(clock))

	var err error
	f.taskSvc, err = newTaskService(f.db, f.tasks, f.engine, emitter, discardLogger())
	require.NoError(t, err)
	f.taskSvc.now = clock

	f.remSvc, err = newReminderService(f.db, f.tasks, f.engine, emitter, discardLogger())
	require.NoError(t, err)
	f.remSvc.now = clock
	return f
}

func (f *fixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *fixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func openTask(userID uuid.UUID, title string, due *time.Time) *domain.Task {
	return &domain.Task{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          title,
		Priority:       domain.PriorityMedium,
		RecurrenceType: domain.RecurrenceNone,
		DueAt:          due,
		CreatedAt:      fixedNow.Add(-time.Hour),
		UpdatedAt:      fixedNow.Add(-time.Hour),
	}
}

func at(d time.Duration) *time.Time {
	t := fixedNow.Add(d)
	return &t
}

func ptr[T any](v T) *T { return &v }

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Field
}
