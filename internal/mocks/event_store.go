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

// EventStore is an in-memory outbox.
type EventStore struct {
	Faults
	mu     sync.Mutex
	events map[uuid.UUID]domain.StoredEvent
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[uuid.UUID]domain.StoredEvent)}
}

var _ store.EventStore = (*EventStore)(nil)

func (s *EventStore) WithTx(*sql.Tx) store.EventStore { return s }

func (s *EventStore) Insert(_ context.Context, e *domain.StoredEvent) error {
	if err := s.take("Insert"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return store.ErrDuplicate
	}
	s.events[e.ID] = *e
	return nil
}

func (s *EventStore) GetByID(_ context.Context, id uuid.UUID) (*domain.StoredEvent, error) {
	if err := s.take("GetByID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrEventNotFound
	}
	return &e, nil
}

func (s *EventStore) update(op string, id uuid.UUID, fn func(*domain.StoredEvent) bool) (bool, error) {
	if err := s.take(op); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, store.ErrEventNotFound
	}
	if !fn(&e) {
		return false, nil
	}
	s.events[id] = e
	return true, nil
}

func (s *EventStore) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.update("MarkPublished", id, func(e *domain.StoredEvent) bool {
		e.Published = true
		e.PublishedAt = &at
		return true
	})
	return err
}

func (s *EventStore) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.update("Claim", id, func(e *domain.StoredEvent) bool {
		if e.ProcessingStatus != domain.ProcessingPending && e.ProcessingStatus != domain.ProcessingFailed {
			return false
		}
		e.ProcessingStatus = domain.ProcessingProcessing
		return true
	})
	if err == store.ErrEventNotFound {
		return false, nil
	}
	return ok, err
}

func (s *EventStore) MarkCompleted(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.update("MarkCompleted", id, func(e *domain.StoredEvent) bool {
		e.ProcessingStatus = domain.ProcessingCompleted
		e.ProcessedAt = &at
		return true
	})
	return err
}

func (s *EventStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	_, err := s.update("MarkFailed", id, func(e *domain.StoredEvent) bool {
		e.ProcessingStatus = domain.ProcessingFailed
		e.RetryCount++
		e.LastError = errMsg
		e.ProcessedAt = &at
		return true
	})
	return err
}

func (s *EventStore) FetchPending(
	_ context.Context,
	maxRetries int,
	retryBefore time.Time,
	limit int,
) ([]*domain.StoredEvent, error) {
	if err := s.take("FetchPending"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []*domain.StoredEvent
	for _, e := range s.events {
		e := e
		switch {
		case e.ProcessingStatus == domain.ProcessingPending:
		case e.ProcessingStatus == domain.ProcessingFailed && e.RetryCount < maxRetries &&
			e.ProcessedAt != nil && e.ProcessedAt.Before(retryBefore):
		default:
			continue
		}
		out = append(out, &e)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored event ordered by creation time.
func (s *EventStore) All() []*domain.StoredEvent {
	s.mu.Lock()
	out := make([]*domain.StoredEvent, 0, len(s.events))
	for _, e := range s.events {
		e := e
		out = append(out, &e)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Types returns the event types of All in order.
func (s *EventStore) Types() []domain.EventType {
	all := s.All()
	out := make([]domain.EventType, len(all))
	for i, e := range all {
		out[i] = e.EventType
	}
	return out
}
