package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of a queued outbound message.
type DeliveryStatus string

// Delivery status values
const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusSent       DeliveryStatus = "sent"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// Channel is the transport a notification is delivered over.
type Channel string

// Notification channels
const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// NotificationDelivery is a queued outbound message. NextRetryAt is only
// meaningful while Status is failed and retries remain.
type NotificationDelivery struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	ReminderID    *uuid.UUID     `json:"reminder_id,omitempty"`
	SourceEventID *uuid.UUID     `json:"source_event_id,omitempty"`
	Channel       Channel        `json:"channel"`
	Recipient     string         `json:"recipient"`
	Subject       string         `json:"subject,omitempty"`
	Message       string         `json:"message"`
	Status        DeliveryStatus `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	RetryCount    int            `json:"retry_count"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
}

// NewNotificationDelivery creates a pending email notification addressed to
// the user's placeholder recipient.
func NewNotificationDelivery(userID uuid.UUID, subject, message string) (*NotificationDelivery, error) {
	if userID == uuid.Nil {
		return nil, NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}
	if message == "" {
		return nil, NewValidationError("message", "cannot be empty", nil)
	}
	return &NotificationDelivery{
		ID:        uuid.New(),
		UserID:    userID,
		Channel:   ChannelEmail,
		Recipient: PlaceholderRecipient(userID),
		Subject:   subject,
		Message:   message,
		Status:    DeliveryStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// PlaceholderRecipient is the address used until user contact details are
// resolvable from this subsystem.
func PlaceholderRecipient(userID uuid.UUID) string {
	return fmt.Sprintf("user_%s@placeholder.local", userID)
}

// IsPlaceholderRecipient reports whether recipient was generated by
// PlaceholderRecipient rather than taken from a real address.
func IsPlaceholderRecipient(recipient string) bool {
	return strings.HasSuffix(recipient, "@placeholder.local")
}

// BackoffDelay returns base * 2^retryCount.
func BackoffDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return base * time.Duration(1<<uint(retryCount))
}
