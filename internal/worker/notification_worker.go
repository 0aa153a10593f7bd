package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/delivery"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// Audit actions written for each delivery attempt.
const (
	ActionNotificationDelivered = "notification.delivered"
	ActionNotificationFailed    = "notification.failed"
)

// NotificationProcessor delivers queued notifications.
type NotificationProcessor struct {
	notifications store.NotificationStore
	audit         store.AuditStore
	router        *delivery.Router
	cfg           Config
	logger        *slog.Logger
	now           func() time.Time
}

var _ Processor[*domain.NotificationDelivery] = (*NotificationProcessor)(nil)

// NewNotificationProcessor creates a NotificationProcessor.
func NewNotificationProcessor(
	notifications store.NotificationStore,
	audit store.AuditStore,
	router *delivery.Router,
	cfg Config,
	logger *slog.Logger,
) *NotificationProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationProcessor{
		notifications: notifications,
		audit:         audit,
		router:        router,
		cfg:           cfg,
		logger:        logger.With("component", "notification_worker"),
		now:           time.Now,
	}
}

// NewNotificationWorker wraps a NotificationProcessor in a Base.
func NewNotificationWorker(
	db store.TxBeginner,
	p *NotificationProcessor,
	logger *slog.Logger,
	opts ...Option,
) *Base[*domain.NotificationDelivery] {
	return NewBase[*domain.NotificationDelivery](p, db, p.cfg.BatchSize, logger, opts...)
}

// SetClock overrides the time source.
func (p *NotificationProcessor) SetClock(now func() time.Time) { p.now = now }

func (p *NotificationProcessor) Name() string { return "notification_worker" }

func (p *NotificationProcessor) ItemID(n *domain.NotificationDelivery) uuid.UUID { return n.ID }

func (p *NotificationProcessor) FetchPending(ctx context.Context, batchSize int) ([]*domain.NotificationDelivery, error) {
	return p.notifications.FetchPending(ctx, p.cfg.MaxRetries, p.now().UTC(), batchSize)
}

func (p *NotificationProcessor) MarkProcessing(ctx context.Context, tx *sql.Tx, n *domain.NotificationDelivery) (bool, error) {
	return p.notifications.WithTx(tx).Claim(ctx, n.ID)
}

func (p *NotificationProcessor) Process(ctx context.Context, tx *sql.Tx, n *domain.NotificationDelivery) error {
	receipt, err := p.router.Send(ctx, n)
	if err != nil {
		return fmt.Errorf("delivery over %s failed: %w", n.Channel, err)
	}

	p.logger.InfoContext(ctx, "notification delivered",
		"notification_id", n.ID,
		"channel", n.Channel,
		"simulated", receipt.Simulated,
		"message_id", receipt.MessageID)

	return p.writeAudit(ctx, p.audit.WithTx(tx), n, ActionNotificationDelivered, receipt.Simulated, "")
}

func (p *NotificationProcessor) MarkCompleted(ctx context.Context, tx *sql.Tx, n *domain.NotificationDelivery) error {
	return p.notifications.WithTx(tx).MarkSent(ctx, n.ID, p.now().UTC())
}

// MarkFailed bumps the retry count and schedules the next attempt with
// exponential backoff on the retry count before this failure. When this
// failure used the last attempt no retry is scheduled.
func (p *NotificationProcessor) MarkFailed(
	ctx context.Context,
	tx *sql.Tx,
	n *domain.NotificationDelivery,
	errMsg string,
	canRetry bool,
) error {
	var next *time.Time
	if canRetry {
		at := p.now().UTC().Add(domain.BackoffDelay(p.cfg.RetryDelay, n.RetryCount))
		next = &at
	}
	if err := p.notifications.WithTx(tx).MarkFailed(ctx, n.ID, errMsg, next); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return p.writeAudit(ctx, p.audit.WithTx(tx), n, ActionNotificationFailed, p.router.Simulated(n), errMsg)
}

// ShouldRetry reports whether another attempt remains once the failure
// being recorded is counted.
func (p *NotificationProcessor) ShouldRetry(n *domain.NotificationDelivery) bool {
	return n.RetryCount+1 < p.cfg.MaxRetries
}

func (p *NotificationProcessor) writeAudit(
	ctx context.Context,
	audit store.AuditStore,
	n *domain.NotificationDelivery,
	action string,
	simulated bool,
	errMsg string,
) error {
	details := map[string]any{
		"channel":   n.Channel,
		"recipient": n.Recipient,
		"subject":   n.Subject,
		"simulated": simulated,
	}
	if errMsg != "" {
		details["error"] = errMsg
	}
	entry, err := domain.NewAuditLog(n.UserID, action, domain.EntityNotification, n.ID, details)
	if err != nil {
		return err
	}
	if err := audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write %s audit: %w", action, err)
	}
	return nil
}
