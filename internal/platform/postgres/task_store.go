package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/store"
)

const taskColumns = `id, user_id, title, description, is_completed, priority, recurrence_type,
	recurrence_interval, due_at, next_occurrence_at, parent_task_id, completed_at,
	created_at, updated_at`

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.IsCompleted,
		&t.Priority,
		&t.RecurrenceType,
		&t.RecurrenceInterval,
		&t.DueAt,
		&t.NextOccurrenceAt,
		&t.ParentTaskID,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new task.
func (s *PostgresTaskStore) Create(ctx context.Context, t *domain.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		t.Title,
		t.Description,
		t.IsCompleted,
		t.Priority,
		t.RecurrenceType,
		t.RecurrenceInterval,
		t.DueAt,
		t.NextOccurrenceAt,
		t.ParentTaskID,
		t.CompletedAt,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert task", "task_id", t.ID, "error", err)
		return store.NewStoreError("task", "create", "insert failed", MapError(err))
	}
	return nil
}

// GetByID retrieves a task regardless of owner.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNotFound(err, store.ErrTaskNotFound)
	}
	return t, nil
}

// GetForUser retrieves a task owned by userID.
func (s *PostgresTaskStore) GetForUser(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, mapNotFound(err, store.ErrTaskNotFound)
	}
	return t, nil
}

// Update writes every mutable column of the task.
func (s *PostgresTaskStore) Update(ctx context.Context, t *domain.Task) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET title = $2, description = $3, is_completed = $4, priority = $5,
			recurrence_type = $6, recurrence_interval = $7, due_at = $8,
			next_occurrence_at = $9, parent_task_id = $10, completed_at = $11,
			updated_at = $12
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Title,
		t.Description,
		t.IsCompleted,
		t.Priority,
		t.RecurrenceType,
		t.RecurrenceInterval,
		t.DueAt,
		t.NextOccurrenceAt,
		t.ParentTaskID,
		t.CompletedAt,
		t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update task", "task_id", t.ID, "error", err)
		return store.NewStoreError("task", "update", "update failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// Delete removes the task row.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete task", "task_id", id, "error", err)
		return store.NewStoreError("task", "delete", "delete failed", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// buildTaskWhere renders the filter into a WHERE clause and its arguments.
func buildTaskWhere(f store.TaskFilter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{f.UserID}

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Completed != nil {
		add("is_completed = $%d", *f.Completed)
	}
	if f.DueBefore != nil {
		add("due_at < $%d", *f.DueBefore)
	}
	if f.UpdatedBefore != nil {
		add("updated_at < $%d", *f.UpdatedBefore)
	}
	if f.RequireDue {
		clauses = append(clauses, "due_at IS NOT NULL")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func taskOrderClause(o store.TaskOrder) string {
	switch o {
	case store.OrderDueAsc:
		return " ORDER BY due_at ASC NULLS LAST, id ASC"
	case store.OrderUpdatedAsc:
		return " ORDER BY updated_at ASC, id ASC"
	default:
		return " ORDER BY created_at DESC, id ASC"
	}
}

// List returns a page of tasks and the unpaged total.
func (s *PostgresTaskStore) List(ctx context.Context, f store.TaskFilter) ([]*domain.Task, int, error) {
	log := logger.FromContext(ctx)
	where, args := buildTaskWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", "user_id", f.UserID, "error", err)
		return nil, 0, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where + taskOrderClause(f.OrderBy)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks", "user_id", f.UserID, "error", err)
		return nil, 0, fmt.Errorf("failed to list tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, total, nil
}
