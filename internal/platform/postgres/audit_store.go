package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/store"
)

// PostgresAuditStore implements store.AuditStore.
type PostgresAuditStore struct {
	db store.DBTX
}

// NewPostgresAuditStore creates a new PostgresAuditStore.
func NewPostgresAuditStore(db store.DBTX) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

var _ store.AuditStore = (*PostgresAuditStore)(nil)

func (s *PostgresAuditStore) WithTx(tx *sql.Tx) store.AuditStore {
	return &PostgresAuditStore{db: tx}
}

func (s *PostgresAuditStore) Create(ctx context.Context, a *domain.AuditLog) error {
	details := a.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.UserID, a.Action, a.EntityType, a.EntityID, string(details), a.CreatedAt)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert audit log",
			"action", a.Action,
			"entity_id", a.EntityID,
			"error", err)
		return store.NewStoreError("audit_log", "create", "insert failed", MapError(err))
	}
	return nil
}

func (s *PostgresAuditStore) ExistsForEvent(
	ctx context.Context,
	action string,
	entityID, eventID uuid.UUID,
) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM audit_logs
			WHERE action = $1 AND entity_id = $2 AND details->>'event_id' = $3
		)
	`, action, entityID, eventID.String()).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

func (s *PostgresAuditStore) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, entity_type, entity_id, details, created_at
		FROM audit_logs
		WHERE entity_id = $1
		ORDER BY created_at ASC, id ASC
	`, entityID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a       domain.AuditLog
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.EntityType, &a.EntityID, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		a.Details = details
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return out, nil
}
