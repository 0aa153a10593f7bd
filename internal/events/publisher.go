package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPublishTimeout bounds a single broker publish.
const DefaultPublishTimeout = 5 * time.Second

const tracerName = "github.com/phrazzld/taskpulse/internal/events"

// Publisher implements the transactional outbox: envelopes are persisted in
// the caller's transaction and published after commit.
type Publisher struct {
	store   store.EventStore
	broker  Broker
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock overrides the publisher's time source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a Publisher. A nil broker is replaced by NopBroker.
func NewPublisher(events store.EventStore, broker Broker, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	if broker == nil {
		broker = NopBroker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		store:   events,
		broker:  broker,
		timeout: DefaultPublishTimeout,
		logger:  logger.With("component", "event_publisher"),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create builds an envelope with a fresh id and timestamp. It has no side
// effects.
func (p *Publisher) Create(
	eventType domain.EventType,
	aggregateID, userID uuid.UUID,
	payload Payload,
	metadata map[string]any,
) (Envelope, error) {
	if !eventType.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if payload == nil || !payload.Supports(eventType) {
		return Envelope{}, fmt.Errorf("%w: %s", ErrPayloadMismatch, eventType)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Envelope{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          Source,
		ID:              uuid.New(),
		Time:            p.now().UTC(),
		DataContentType: DataContentType,
		Data: Data{
			AggregateType: payload.AggregateType(),
			AggregateID:   aggregateID,
			UserID:        userID,
			Metadata:      metadata,
			Payload:       payload,
		},
	}, nil
}

// Persist writes the envelope to the outbox through tx. It never commits;
// the row becomes visible only when the caller commits.
func (p *Publisher) Persist(ctx context.Context, tx *sql.Tx, env Envelope) (*domain.StoredEvent, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	stored := &domain.StoredEvent{
		ID:               env.ID,
		EventType:        env.Type,
		AggregateID:      env.Data.AggregateID,
		UserID:           env.Data.UserID,
		Payload:          raw,
		CreatedAt:        env.Time,
		ProcessingStatus: domain.ProcessingPending,
	}

	events := p.store
	if tx != nil {
		events = p.store.WithTx(tx)
	}
	if err := events.Insert(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to persist event %s: %w", env.Type, err)
	}
	return stored, nil
}

// Publish sends a committed outbox row to the broker and marks it
// published. It reports whether the broker accepted the event and never
// returns an error: failures are logged and the row stays unpublished.
func (p *Publisher) Publish(ctx context.Context, stored *domain.StoredEvent) bool {
	return p.publish(ctx, stored, p.store)
}

// PublishTx is Publish for a caller that holds a row lock on the outbox row
// in tx. The published mark is written through tx and commits with it.
func (p *Publisher) PublishTx(ctx context.Context, tx *sql.Tx, stored *domain.StoredEvent) bool {
	return p.publish(ctx, stored, p.store.WithTx(tx))
}

func (p *Publisher) publish(ctx context.Context, stored *domain.StoredEvent, events store.EventStore) bool {
	log := p.logger.With("event_id", stored.ID, "event_type", stored.EventType)

	ctx, span := p.tracer.Start(ctx, "events.publish", trace.WithAttributes(
		attribute.String("event.id", stored.ID.String()),
		attribute.String("event.type", string(stored.EventType)),
	))
	defer span.End()

	env, err := DecodeEnvelope(stored)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		log.WarnContext(ctx, "failed to decode outbox event for publish", "error", err)
		return false
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err = p.broker.Publish(pubCtx, env)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		log.WarnContext(ctx, "failed to publish event", "error", err)
		return false
	}

	at := p.now().UTC()
	if err := events.MarkPublished(ctx, stored.ID, at); err != nil {
		log.WarnContext(ctx, "event published but not marked as published", "error", err)
		return true
	}
	stored.Published = true
	stored.PublishedAt = &at

	log.DebugContext(ctx, "event published")
	return true
}
