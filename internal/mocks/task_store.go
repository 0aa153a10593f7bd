package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// TaskStore is an in-memory store.TaskStore.
type TaskStore struct {
	Faults
	mu    sync.Mutex
	tasks map[uuid.UUID]domain.Task
}

// NewTaskStore creates an empty TaskStore, optionally seeded.
func NewTaskStore(seed ...*domain.Task) *TaskStore {
	s := &TaskStore{tasks: make(map[uuid.UUID]domain.Task)}
	for _, t := range seed {
		s.tasks[t.ID] = *t
	}
	return s
}

var _ store.TaskStore = (*TaskStore)(nil)

func (s *TaskStore) WithTx(*sql.Tx) store.TaskStore { return s }

func (s *TaskStore) Create(_ context.Context, t *domain.Task) error {
	if err := s.take("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return store.ErrDuplicate
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := s.take("GetByID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &t, nil
}

func (s *TaskStore) GetForUser(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

func (s *TaskStore) Update(_ context.Context, t *domain.Task) error {
	if err := s.take("Update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *TaskStore) Delete(_ context.Context, id uuid.UUID) error {
	if err := s.take("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *TaskStore) List(_ context.Context, f store.TaskFilter) ([]*domain.Task, int, error) {
	if err := s.take("List"); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	var matched []*domain.Task
	for _, t := range s.tasks {
		t := t
		if t.UserID != f.UserID {
			continue
		}
		if f.Completed != nil && t.IsCompleted != *f.Completed {
			continue
		}
		if f.RequireDue && t.DueAt == nil {
			continue
		}
		if f.DueBefore != nil && (t.DueAt == nil || !t.DueAt.Before(*f.DueBefore)) {
			continue
		}
		if f.UpdatedBefore != nil && !t.UpdatedAt.Before(*f.UpdatedBefore) {
			continue
		}
		matched = append(matched, &t)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch f.OrderBy {
		case store.OrderDueAsc:
			if a.DueAt == nil || b.DueAt == nil {
				return a.DueAt != nil
			}
			return a.DueAt.Before(*b.DueAt)
		case store.OrderUpdatedAsc:
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// All returns every stored task for a user, in no particular order.
func (s *TaskStore) All(userID uuid.UUID) []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Task
	for _, t := range s.tasks {
		t := t
		if t.UserID == userID {
			out = append(out, &t)
		}
	}
	return out
}
