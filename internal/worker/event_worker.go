package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/redact"
	"github.com/phrazzld/taskpulse/internal/store"
)

// EventDispatcher fans an outbox event out to in-process consumers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, tx *sql.Tx, env events.Envelope, stored *domain.StoredEvent) events.DispatchResult
}

// EventPublisher sends an outbox row to the external broker, marking it
// published through tx.
type EventPublisher interface {
	PublishTx(ctx context.Context, tx *sql.Tx, stored *domain.StoredEvent) bool
}

// EventProcessor drains the event outbox.
type EventProcessor struct {
	outbox     store.EventStore
	dispatcher EventDispatcher
	publisher  EventPublisher
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

var _ Processor[*domain.StoredEvent] = (*EventProcessor)(nil)

// NewEventProcessor creates an EventProcessor. A nil publisher skips
// external publishing.
func NewEventProcessor(
	outbox store.EventStore,
	dispatcher EventDispatcher,
	publisher EventPublisher,
	cfg Config,
	logger *slog.Logger,
) *EventProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventProcessor{
		outbox:     outbox,
		dispatcher: dispatcher,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger.With("component", "event_worker"),
		now:        time.Now,
	}
}

// NewEventWorker wraps an EventProcessor in a Base.
func NewEventWorker(db store.TxBeginner, p *EventProcessor, logger *slog.Logger, opts ...Option) *Base[*domain.StoredEvent] {
	return NewBase[*domain.StoredEvent](p, db, p.cfg.BatchSize, logger, opts...)
}

// SetClock overrides the time source.
func (p *EventProcessor) SetClock(now func() time.Time) { p.now = now }

func (p *EventProcessor) Name() string { return "event_worker" }

func (p *EventProcessor) ItemID(e *domain.StoredEvent) uuid.UUID { return e.ID }

func (p *EventProcessor) FetchPending(ctx context.Context, batchSize int) ([]*domain.StoredEvent, error) {
	retryBefore := p.now().UTC().Add(-p.cfg.RetryDelay)
	return p.outbox.FetchPending(ctx, p.cfg.MaxRetries, retryBefore, batchSize)
}

func (p *EventProcessor) MarkProcessing(ctx context.Context, tx *sql.Tx, e *domain.StoredEvent) (bool, error) {
	return p.outbox.WithTx(tx).Claim(ctx, e.ID)
}

// Process dispatches the event to consumers and then publishes it if no
// earlier attempt did. Consumer and broker failures are logged and do not
// fail the item.
func (p *EventProcessor) Process(ctx context.Context, tx *sql.Tx, e *domain.StoredEvent) error {
	log := p.logger.With("event_id", e.ID, "event_type", e.EventType)

	env, err := events.DecodeEnvelope(e)
	if errors.Is(err, events.ErrUnknownEventType) {
		log.WarnContext(ctx, "unknown event type, completing without dispatch")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	result := p.dispatcher.Dispatch(ctx, tx, env, e)
	if !result.OK() {
		log.WarnContext(ctx, "some consumers failed",
			"handled", result.Handled,
			"failed", result.Failed)
	}

	if p.publisher != nil && !e.Published {
		if p.publisher.PublishTx(ctx, tx, e) {
			log.DebugContext(ctx, "event published from worker")
		}
	}
	return nil
}

func (p *EventProcessor) MarkCompleted(ctx context.Context, tx *sql.Tx, e *domain.StoredEvent) error {
	return p.outbox.WithTx(tx).MarkCompleted(ctx, e.ID, p.now().UTC())
}

func (p *EventProcessor) MarkFailed(ctx context.Context, tx *sql.Tx, e *domain.StoredEvent, errMsg string, _ bool) error {
	return p.outbox.WithTx(tx).MarkFailed(ctx, e.ID, redact.Truncate(errMsg, redact.EventErrorLimit), p.now().UTC())
}

func (p *EventProcessor) ShouldRetry(e *domain.StoredEvent) bool {
	return e.RetryCount < p.cfg.MaxRetries
}
