package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// TaskOrder selects the sort order of task listings.
type TaskOrder int

// Task orderings
const (
	OrderCreatedDesc TaskOrder = iota
	OrderDueAsc
	OrderUpdatedAsc
)

// TaskFilter narrows a task listing. Zero values mean "no constraint";
// Limit <= 0 means unlimited.
type TaskFilter struct {
	UserID        uuid.UUID
	Completed     *bool
	DueBefore     *time.Time
	UpdatedBefore *time.Time
	RequireDue    bool
	OrderBy       TaskOrder
	Limit         int
	Offset        int
}

// TaskStore defines persistence for the task aggregate.
// Version: 1.0
type TaskStore interface {
	// Create inserts a new task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task regardless of owner.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForUser retrieves a task only if it is owned by userID.
	// Returns ErrTaskNotFound if the task does not exist or is owned by someone else.
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error)

	// Update writes every mutable field of the task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes the task row. Events, notifications and audit rows that
	// reference it are left in place.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns tasks matching the filter and the total count ignoring
	// Limit and Offset.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, int, error)

	// WithTx returns a TaskStore bound to the given transaction.
	WithTx(tx *sql.Tx) TaskStore
}
