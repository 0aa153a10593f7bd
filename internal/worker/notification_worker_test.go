package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/delivery"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct{ err error }

func (s failingSender) Send(context.Context, *domain.NotificationDelivery) (delivery.Receipt, error) {
	return delivery.Receipt{}, s.err
}

func queued(t *testing.T, recipient string, retryCount int) *domain.NotificationDelivery {
	t.Helper()
	n, err := domain.NewNotificationDelivery(uuid.New(), "Task Completed", "Great job! You completed: Taxes")
	require.NoError(t, err)
	if recipient != "" {
		n.Recipient = recipient
	}
	n.RetryCount = retryCount
	return n
}

func newNotificationProcessor(
	store *mocks.NotificationStore,
	audit *mocks.AuditStore,
	email delivery.Sender,
	cfg Config,
) *NotificationProcessor {
	router := delivery.NewRouter(email, delivery.NewSimulatedSender(discardLogger()))
	p := NewNotificationProcessor(store, audit, router, cfg, discardLogger())
	p.SetClock(clock)
	return p
}

func TestNotificationWorker_SimulatedDelivery(t *testing.T) {
	n := queued(t, "", 0)
	store := mocks.NewNotificationStore(n)
	audit := mocks.NewAuditStore()
	p := newNotificationProcessor(store, audit, nil, testConfig())

	db, mock := mocks.NewTxDB(t)
	mocks.ExpectCommits(mock, 1)

	res := NewNotificationWorker(db, p, discardLogger()).RunOnce(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	got, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, fixedNow, *got.SentAt)

	assert.Equal(t, []string{ActionNotificationDelivered}, audit.Actions())
	details := audit.Details(0)
	assert.Equal(t, "email", details["channel"])
	assert.Equal(t, n.Recipient, details["recipient"])
	assert.Equal(t, true, details["simulated"])
	assert.NotContains(t, details, "error")
}

func TestNotificationWorker_FailureSchedulesBackoff(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		wantDelay  time.Duration
		wantRetry  bool
	}{
		{"first failure", 0, 3, time.Minute, true},
		{"second failure", 1, 3, 2 * time.Minute, true},
		{"last attempt", 2, 3, 0, false},
		{"out of retries", 2, 2, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := queued(t, "ada@example.com", tt.retryCount)
			store := mocks.NewNotificationStore(n)
			audit := mocks.NewAuditStore()
			cfg := testConfig()
			cfg.MaxRetries = tt.maxRetries
			p := newNotificationProcessor(store, audit, failingSender{err: errors.New("mailbox full")}, cfg)

			db, mock := mocks.NewTxDB(t)
			mock.ExpectBegin()
			mock.ExpectRollback()
			mock.ExpectBegin()
			mock.ExpectCommit()

			res := NewNotificationWorker(db, p, discardLogger()).RunOnce(context.Background())

			assert.Equal(t, StatusFailed, res.Status)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.wantRetry, res.Errors[0].CanRetry)

			got, err := store.GetByID(context.Background(), n.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.DeliveryStatusFailed, got.Status)
			assert.Equal(t, tt.retryCount+1, got.RetryCount)
			assert.Contains(t, got.ErrorMessage, "mailbox full")
			if tt.wantRetry {
				require.NotNil(t, got.NextRetryAt)
				assert.Equal(t, fixedNow.Add(tt.wantDelay), *got.NextRetryAt)
			} else {
				assert.Nil(t, got.NextRetryAt)
			}

			assert.Equal(t, []string{ActionNotificationFailed}, audit.Actions())
			details := audit.Details(0)
			assert.Equal(t, false, details["simulated"])
			assert.Contains(t, details["error"], "mailbox full")
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestNotificationWorker_ExhaustsRetries(t *testing.T) {
	n := queued(t, "ada@example.com", 0)
	store := mocks.NewNotificationStore(n)
	audit := mocks.NewAuditStore()
	p := newNotificationProcessor(store, audit, failingSender{err: errors.New("mailbox full")}, testConfig())

	db, mock := mocks.NewTxDB(t)
	now := fixedNow
	p.SetClock(func() time.Time { return now })
	w := NewNotificationWorker(db, p, discardLogger())

	for cycle := 1; cycle <= 3; cycle++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		res := w.RunOnce(context.Background())
		require.Equal(t, StatusFailed, res.Status, "cycle %d", cycle)

		got, err := store.GetByID(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, cycle, got.RetryCount)
		if cycle < 3 {
			require.NotNil(t, got.NextRetryAt, "cycle %d", cycle)
		} else {
			assert.Nil(t, got.NextRetryAt)
			assert.False(t, res.Errors[0].CanRetry)
		}
		now = now.Add(24 * time.Hour)
	}

	res := w.RunOnce(context.Background())
	assert.Equal(t, StatusNoWork, res.Status)

	got, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Nil(t, got.NextRetryAt)
	assert.Len(t, audit.Actions(), 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationProcessor_FetchWaitsForNextRetry(t *testing.T) {
	ready := queued(t, "", 1)
	ready.Status = domain.DeliveryStatusFailed
	due := fixedNow.Add(-time.Second)
	ready.NextRetryAt = &due

	later := queued(t, "", 1)
	later.Status = domain.DeliveryStatusFailed
	notYet := fixedNow.Add(time.Minute)
	later.NextRetryAt = &notYet

	p := newNotificationProcessor(mocks.NewNotificationStore(ready, later), mocks.NewAuditStore(), nil, testConfig())

	got, err := p.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ready.ID, got[0].ID)
}
