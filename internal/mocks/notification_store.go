package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// NotificationStore is an in-memory store.NotificationStore.
type NotificationStore struct {
	Faults
	mu    sync.Mutex
	items map[uuid.UUID]domain.NotificationDelivery
}

// NewNotificationStore creates an empty NotificationStore, optionally seeded.
func NewNotificationStore(seed ...*domain.NotificationDelivery) *NotificationStore {
	s := &NotificationStore{items: make(map[uuid.UUID]domain.NotificationDelivery)}
	for _, n := range seed {
		s.items[n.ID] = *n
	}
	return s
}

var _ store.NotificationStore = (*NotificationStore)(nil)

func (s *NotificationStore) WithTx(*sql.Tx) store.NotificationStore { return s }

func (s *NotificationStore) Create(_ context.Context, n *domain.NotificationDelivery) error {
	if err := s.take("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = *n
	return nil
}

func (s *NotificationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.NotificationDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotificationNotFound
	}
	return &n, nil
}

func (s *NotificationStore) ExistsForEvent(_ context.Context, eventID uuid.UUID) (bool, error) {
	if err := s.take("ExistsForEvent"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.SourceEventID != nil && *n.SourceEventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (s *NotificationStore) ListByReminder(_ context.Context, reminderID uuid.UUID) ([]*domain.NotificationDelivery, error) {
	return s.where(func(n domain.NotificationDelivery) bool {
		return n.ReminderID != nil && *n.ReminderID == reminderID
	}), nil
}

func (s *NotificationStore) where(keep func(domain.NotificationDelivery) bool) []*domain.NotificationDelivery {
	s.mu.Lock()
	var out []*domain.NotificationDelivery
	for _, n := range s.items {
		n := n
		if keep(n) {
			out = append(out, &n)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *NotificationStore) FetchPending(
	_ context.Context,
	maxRetries int,
	now time.Time,
	limit int,
) ([]*domain.NotificationDelivery, error) {
	if err := s.take("FetchPending"); err != nil {
		return nil, err
	}
	out := s.where(func(n domain.NotificationDelivery) bool {
		if n.Status == domain.DeliveryStatusPending {
			return true
		}
		return n.Status == domain.DeliveryStatusFailed && n.RetryCount < maxRetries &&
			(n.NextRetryAt == nil || !n.NextRetryAt.After(now))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NotificationStore) mutate(op string, id uuid.UUID, fn func(*domain.NotificationDelivery) bool) (bool, error) {
	if err := s.take(op); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return false, store.ErrNotificationNotFound
	}
	if !fn(&n) {
		return false, nil
	}
	s.items[id] = n
	return true, nil
}

func (s *NotificationStore) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.mutate("Claim", id, func(n *domain.NotificationDelivery) bool {
		if n.Status != domain.DeliveryStatusPending && n.Status != domain.DeliveryStatusFailed {
			return false
		}
		n.Status = domain.DeliveryStatusProcessing
		return true
	})
	if err == store.ErrNotificationNotFound {
		return false, nil
	}
	return ok, err
}

func (s *NotificationStore) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.mutate("MarkSent", id, func(n *domain.NotificationDelivery) bool {
		n.Status = domain.DeliveryStatusSent
		n.SentAt = &at
		n.ErrorMessage = ""
		return true
	})
	return err
}

func (s *NotificationStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, nextRetryAt *time.Time) error {
	_, err := s.mutate("MarkFailed", id, func(n *domain.NotificationDelivery) bool {
		n.Status = domain.DeliveryStatusFailed
		n.RetryCount++
		n.ErrorMessage = errMsg
		n.NextRetryAt = nextRetryAt
		return true
	})
	return err
}

// All returns every notification ordered by creation time.
func (s *NotificationStore) All() []*domain.NotificationDelivery {
	return s.where(func(domain.NotificationDelivery) bool { return true })
}
