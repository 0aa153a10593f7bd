package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBroker struct {
	mu    sync.Mutex
	types []domain.EventType
	err   error
}

func (b *countingBroker) Publish(_ context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.types = append(b.types, env.Type)
	return nil
}

type eventFixture struct {
	outbox        *mocks.EventStore
	audit         *mocks.AuditStore
	notifications *mocks.NotificationStore
	broker        *countingBroker
	publisher     *events.Publisher
	processor     *EventProcessor
}

func newEventFixture() *eventFixture {
	f := &eventFixture{
		outbox:        mocks.NewEventStore(),
		audit:         mocks.NewAuditStore(),
		notifications: mocks.NewNotificationStore(),
		broker:        &countingBroker{},
	}
	created := fixedNow.Add(-time.Hour)
	f.publisher = events.NewPublisher(f.outbox, f.broker, discardLogger(),
		events.WithClock(func() time.Time { return created }))

	// In-memory stores never abort the transaction, so consumers run without savepoints.
	d := events.NewDispatcher(discardLogger(), events.WithSavepoints(false))
	events.RegisterDefaults(d, f.audit, f.notifications, discardLogger())

	f.processor = NewEventProcessor(f.outbox, d, f.publisher, testConfig(), discardLogger())
	f.processor.SetClock(clock)
	return f
}

func (f *eventFixture) persist(t *testing.T, et domain.EventType, title string) *domain.StoredEvent {
	t.Helper()
	env, err := f.publisher.Create(et, uuid.New(), uuid.New(), events.TaskPayload{Title: title}, nil)
	require.NoError(t, err)
	stored, err := f.publisher.Persist(context.Background(), nil, env)
	require.NoError(t, err)
	return stored
}

func TestEventWorker_DispatchesAndPublishes(t *testing.T) {
	f := newEventFixture()
	created := f.persist(t, domain.EventTaskCreated, "Water the plants")
	completed := f.persist(t, domain.EventTaskCompleted, "File taxes")

	db, mock := mocks.NewTxDB(t)
	mocks.ExpectCommits(mock, 2)

	res := NewEventWorker(db, f.processor, discardLogger()).RunOnce(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Succeeded)
	require.NoError(t, mock.ExpectationsWereMet())

	for _, id := range []uuid.UUID{created.ID, completed.ID} {
		got, err := f.outbox.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.ProcessingCompleted, got.ProcessingStatus)
		assert.True(t, got.Published)
		require.NotNil(t, got.ProcessedAt)
		assert.Equal(t, fixedNow, *got.ProcessedAt)
	}
	assert.ElementsMatch(t, []domain.EventType{domain.EventTaskCreated, domain.EventTaskCompleted}, f.broker.types)
	assert.ElementsMatch(t, []string{"task.created", "task.completed"}, f.audit.Actions())
	assert.Len(t, f.notifications.All(), 2)
}

func TestEventWorker_SkipsPublishWhenAlreadyPublished(t *testing.T) {
	f := newEventFixture()
	stored := f.persist(t, domain.EventTaskUpdated, "Renew passport")
	require.True(t, f.publisher.Publish(context.Background(), stored))
	require.Len(t, f.broker.types, 1)

	db, mock := mocks.NewTxDB(t)
	mocks.ExpectCommits(mock, 1)

	res := NewEventWorker(db, f.processor, discardLogger()).RunOnce(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, f.broker.types, 1)
}

func TestEventWorker_BrokerFailureDoesNotFailItem(t *testing.T) {
	f := newEventFixture()
	f.broker.err = errors.New("sidecar unavailable")
	stored := f.persist(t, domain.EventTaskCreated, "Call the bank")

	db, mock := mocks.NewTxDB(t)
	mocks.ExpectCommits(mock, 1)

	res := NewEventWorker(db, f.processor, discardLogger()).RunOnce(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	got, err := f.outbox.GetByID(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, got.ProcessingStatus)
	assert.False(t, got.Published)
}

func TestEventWorker_UnknownTypeIsCompleted(t *testing.T) {
	f := newEventFixture()
	stray := &domain.StoredEvent{
		ID:               uuid.New(),
		EventType:        "task.archived.v1",
		AggregateID:      uuid.New(),
		UserID:           uuid.New(),
		Payload:          []byte(`{}`),
		CreatedAt:        fixedNow.Add(-time.Minute),
		ProcessingStatus: domain.ProcessingPending,
	}
	require.NoError(t, f.outbox.Insert(context.Background(), stray))

	db, mock := mocks.NewTxDB(t)
	mocks.ExpectCommits(mock, 1)

	res := NewEventWorker(db, f.processor, discardLogger()).RunOnce(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, f.audit.Entries())
	assert.Empty(t, f.broker.types)
	got, err := f.outbox.GetByID(context.Background(), stray.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, got.ProcessingStatus)
}

func TestEventWorker_ClaimFailureMarksFailed(t *testing.T) {
	f := newEventFixture()
	stored := f.persist(t, domain.EventTaskCreated, "Book flights")
	f.outbox.FailNext("Claim", errors.New("lock timeout"))

	db, mock := mocks.NewTxDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	res := NewEventWorker(db, f.processor, discardLogger()).RunOnce(context.Background())

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.True(t, res.Errors[0].CanRetry)

	got, err := f.outbox.GetByID(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingFailed, got.ProcessingStatus)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "lock timeout")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventProcessor_FetchHonoursRetryDelay(t *testing.T) {
	f := newEventFixture()
	recent := f.persist(t, domain.EventTaskCreated, "recent failure")
	old := f.persist(t, domain.EventTaskCreated, "old failure")
	ctx := context.Background()

	require.NoError(t, f.outbox.MarkFailed(ctx, recent.ID, "x", fixedNow.Add(-10*time.Second)))
	require.NoError(t, f.outbox.MarkFailed(ctx, old.ID, "x", fixedNow.Add(-2*time.Minute)))

	got, err := f.processor.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)
}
