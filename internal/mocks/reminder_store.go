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

// ReminderStore is an in-memory store.ReminderStore.
type ReminderStore struct {
	Faults
	mu        sync.Mutex
	reminders map[uuid.UUID]domain.Reminder
}

// NewReminderStore creates an empty ReminderStore, optionally seeded.
func NewReminderStore(seed ...*domain.Reminder) *ReminderStore {
	s := &ReminderStore{reminders: make(map[uuid.UUID]domain.Reminder)}
	for _, r := range seed {
		s.reminders[r.ID] = *r
	}
	return s
}

var _ store.ReminderStore = (*ReminderStore)(nil)

func (s *ReminderStore) WithTx(*sql.Tx) store.ReminderStore { return s }

func (s *ReminderStore) Create(_ context.Context, r *domain.Reminder) error {
	if err := s.take("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = *r
	return nil
}

func (s *ReminderStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Reminder, error) {
	if err := s.take("GetByID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, store.ErrReminderNotFound
	}
	return &r, nil
}

func (s *ReminderStore) filter(keep func(domain.Reminder) bool, less func(a, b *domain.Reminder) bool) []*domain.Reminder {
	s.mu.Lock()
	var out []*domain.Reminder
	for _, r := range s.reminders {
		r := r
		if keep(r) {
			out = append(out, &r)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byRemindAt(a, b *domain.Reminder) bool { return a.RemindAt.Before(b.RemindAt) }

func (s *ReminderStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]*domain.Reminder, error) {
	if err := s.take("ListByTask"); err != nil {
		return nil, err
	}
	return s.filter(
		func(r domain.Reminder) bool { return r.TaskID == taskID },
		func(a, b *domain.Reminder) bool { return a.CreatedAt.After(b.CreatedAt) },
	), nil
}

func (s *ReminderStore) ListPendingForTask(_ context.Context, taskID uuid.UUID) ([]*domain.Reminder, error) {
	if err := s.take("ListPendingForTask"); err != nil {
		return nil, err
	}
	return s.filter(func(r domain.Reminder) bool {
		return r.TaskID == taskID && r.Status == domain.ReminderStatusPending
	}, byRemindAt), nil
}

func (s *ReminderStore) HasPending(ctx context.Context, taskID uuid.UUID) (bool, error) {
	pending, err := s.ListPendingForTask(ctx, taskID)
	return len(pending) > 0, err
}

func (s *ReminderStore) Transition(
	_ context.Context,
	id uuid.UUID,
	from, to domain.ReminderStatus,
	sentAt *time.Time,
) (bool, error) {
	if err := s.take("Transition"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	if sentAt != nil {
		at := *sentAt
		r.SentAt = &at
	}
	s.reminders[id] = r
	return true, nil
}

func (s *ReminderStore) LockPending(_ context.Context, id uuid.UUID) (bool, error) {
	if err := s.take("LockPending"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return ok && r.Status == domain.ReminderStatusPending, nil
}

func (s *ReminderStore) SetJobID(_ context.Context, id uuid.UUID, jobID string) error {
	if err := s.take("SetJobID"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return store.ErrReminderNotFound
	}
	r.DaprJobID = jobID
	s.reminders[id] = r
	return nil
}

func (s *ReminderStore) ListDue(_ context.Context, asOf time.Time, limit int) ([]*domain.Reminder, error) {
	if err := s.take("ListDue"); err != nil {
		return nil, err
	}
	out := s.filter(func(r domain.Reminder) bool {
		return r.Status == domain.ReminderStatusPending && !r.RemindAt.After(asOf)
	}, byRemindAt)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ReminderStore) ListUpcoming(
	_ context.Context,
	userID uuid.UUID,
	from, to time.Time,
) ([]*domain.Reminder, error) {
	if err := s.take("ListUpcoming"); err != nil {
		return nil, err
	}
	return s.filter(func(r domain.Reminder) bool {
		return r.UserID == userID && r.Status == domain.ReminderStatusPending &&
			r.RemindAt.After(from) && !r.RemindAt.After(to)
	}, byRemindAt), nil
}
