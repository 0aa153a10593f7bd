package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entity types recorded on audit rows.
const (
	EntityTask         = "task"
	EntityReminder     = "reminder"
	EntityNotification = "notification"
)

// AuditLog is an append-only activity record. Rows are never updated or
// deleted; consumers also use them as an idempotency marker.
type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewAuditLog marshals details to JSON and builds a new audit row.
func NewAuditLog(userID uuid.UUID, action, entityType string, entityID uuid.UUID, details any) (*AuditLog, error) {
	if action == "" {
		return nil, NewValidationError("action", "cannot be empty", nil)
	}
	if entityType == "" {
		return nil, NewValidationError("entity_type", "cannot be empty", nil)
	}

	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit details: %w", err)
		}
		raw = b
	}

	return &AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    raw,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
