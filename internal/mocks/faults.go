package mocks

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// Faults queues one-shot errors keyed by operation name.
type Faults struct {
	mu      sync.Mutex
	pending map[string][]error
}

// FailNext makes the next call of op return err.
func (f *Faults) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = make(map[string][]error)
	}
	f.pending[op] = append(f.pending[op], err)
}

func (f *Faults) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.pending[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	f.pending[op] = q[1:]
	return err
}

// NewTxDB returns a sqlmock database for code that opens transactions
// through store.RunInTransaction. Expectations are unordered so a test only
// has to declare how many Begin/Commit/Rollback calls it expects.
func NewTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// ExpectCommits registers n Begin/Commit pairs.
func ExpectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}
