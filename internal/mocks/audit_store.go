package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// AuditStore is an in-memory, append-only store.AuditStore.
type AuditStore struct {
	Faults
	mu      sync.Mutex
	entries []domain.AuditLog
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

var _ store.AuditStore = (*AuditStore)(nil)

func (s *AuditStore) WithTx(*sql.Tx) store.AuditStore { return s }

func (s *AuditStore) Create(_ context.Context, a *domain.AuditLog) error {
	if err := s.take("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *a)
	return nil
}

func (s *AuditStore) ExistsForEvent(_ context.Context, action string, entityID, eventID uuid.UUID) (bool, error) {
	if err := s.take("ExistsForEvent"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.entries {
		if a.Action != action || a.EntityID != entityID {
			continue
		}
		var details struct {
			EventID string `json:"event_id"`
		}
		if json.Unmarshal(a.Details, &details) == nil && details.EventID == eventID.String() {
			return true, nil
		}
	}
	return false, nil
}

func (s *AuditStore) ListByEntity(_ context.Context, entityID uuid.UUID) ([]*domain.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AuditLog
	for _, a := range s.entries {
		a := a
		if a.EntityID == entityID {
			out = append(out, &a)
		}
	}
	return out, nil
}

// Entries returns all audit rows in insertion order.
func (s *AuditStore) Entries() []domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLog(nil), s.entries...)
}

// Actions returns the action of every row in insertion order.
func (s *AuditStore) Actions() []string {
	entries := s.Entries()
	out := make([]string, len(entries))
	for i, a := range entries {
		out[i] = a.Action
	}
	return out
}

// Details decodes the details of the i-th row into a map.
func (s *AuditStore) Details(i int) map[string]any {
	entries := s.Entries()
	if i < 0 || i >= len(entries) {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(entries[i].Details, &m)
	return m
}
