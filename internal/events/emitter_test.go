package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmitter(enabled bool, broker Broker) (*Emitter, *mocks.EventStore, *mocks.AuditStore) {
	p, st := newTestPublisher(broker)
	audit := mocks.NewAuditStore()
	d := NewDispatcher(discardLogger())
	RegisterDefaults(d, audit, mocks.NewNotificationStore(), discardLogger())
	return NewEmitter(enabled, p, d, discardLogger()), st, audit
}

func TestEmit_DisabledIsNoop(t *testing.T) {
	e, st, audit := newTestEmitter(false, &recordingBroker{})

	stored, err := e.Emit(context.Background(), nil, domain.EventTaskCreated,
		uuid.New(), uuid.New(), TaskPayload{Title: "quiet"})

	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Empty(t, st.All())
	assert.Empty(t, audit.Entries())
}

func TestEmit_PersistsDispatchesAndDefersPublish(t *testing.T) {
	broker := &recordingBroker{}
	e, st, audit := newTestEmitter(true, broker)
	ctx := WithCorrelationID(WithPending(context.Background()), "req-42")

	stored, err := e.Emit(ctx, nil, domain.EventTaskCreated, uuid.New(), uuid.New(), TaskPayload{Title: "Plan"})
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, []string{"task.created"}, audit.Actions())
	assert.Zero(t, broker.count(), "publish must wait for commit")
	pending, ok := PendingFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, pending.Len())

	assert.Equal(t, 1, e.PublishPending(ctx))
	assert.Equal(t, 0, pending.Len())
	require.Equal(t, 1, broker.count())
	assert.Equal(t, "req-42", broker.envs[0].Data.Metadata["correlation_id"])

	rows := st.All()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Published)
}

func TestEmit_DiscardPendingAfterRollback(t *testing.T) {
	broker := &recordingBroker{}
	e, _, _ := newTestEmitter(true, broker)
	ctx := WithPending(context.Background())

	_, err := e.Emit(ctx, nil, domain.EventTaskDeleted, uuid.New(), uuid.New(), TaskPayload{Title: "Oops"})
	require.NoError(t, err)
	DiscardPending(ctx)

	assert.Zero(t, e.PublishPending(ctx))
	assert.Zero(t, broker.count())
}

func TestPublishPending_WithoutCollector(t *testing.T) {
	e, _, _ := newTestEmitter(true, &recordingBroker{})
	assert.Zero(t, e.PublishPending(context.Background()))
}
