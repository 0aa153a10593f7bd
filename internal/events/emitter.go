package events

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

type pendingKey struct{}

type correlationKey struct{}

// PendingEvents collects the outbox rows written during one unit of work so
// they can be published once it commits.
type PendingEvents struct {
	mu     sync.Mutex
	events []*domain.StoredEvent
}

func (p *PendingEvents) add(e *domain.StoredEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *PendingEvents) drain() []*domain.StoredEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

// Len returns the number of collected events.
func (p *PendingEvents) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// WithPending returns a context carrying an empty PendingEvents collector.
func WithPending(ctx context.Context) context.Context {
	return context.WithValue(ctx, pendingKey{}, &PendingEvents{})
}

// PendingFromContext returns the collector on ctx, if any.
func PendingFromContext(ctx context.Context) (*PendingEvents, bool) {
	p, ok := ctx.Value(pendingKey{}).(*PendingEvents)
	return p, ok
}

// DiscardPending drops collected events, for use after a rollback.
func DiscardPending(ctx context.Context) {
	if p, ok := PendingFromContext(ctx); ok {
		p.drain()
	}
}

// WithCorrelationID attaches a correlation id that Emit copies into event
// metadata.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Emitter is what business operations call to raise events.
type Emitter struct {
	enabled    bool
	publisher  *Publisher
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewEmitter creates an Emitter. When enabled is false Emit is a no-op.
func NewEmitter(enabled bool, publisher *Publisher, dispatcher *Dispatcher, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		enabled:    enabled,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger.With("component", "event_emitter"),
	}
}

// Enabled reports whether events are produced.
func (e *Emitter) Enabled() bool { return e != nil && e.enabled }

// Emit creates the envelope, persists it through tx, and runs consumers in
// the same transaction. The row is queued for PublishPending when ctx came
// from WithPending; otherwise the event worker publishes it later.
// Returns nil, nil when events are disabled.
func (e *Emitter) Emit(
	ctx context.Context,
	tx *sql.Tx,
	eventType domain.EventType,
	aggregateID, userID uuid.UUID,
	payload Payload,
) (*domain.StoredEvent, error) {
	if !e.Enabled() {
		return nil, nil
	}

	var metadata map[string]any
	if id := CorrelationID(ctx); id != "" {
		metadata = map[string]any{"correlation_id": id}
	}
	env, err := e.publisher.Create(eventType, aggregateID, userID, payload, metadata)
	if err != nil {
		return nil, err
	}
	stored, err := e.publisher.Persist(ctx, tx, env)
	if err != nil {
		return nil, err
	}

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, tx, env, stored)
	}

	if p, ok := PendingFromContext(ctx); ok {
		p.add(stored)
	}

	e.logger.DebugContext(ctx, "event emitted",
		"event_id", stored.ID,
		"event_type", eventType,
		"aggregate_id", aggregateID)
	return stored, nil
}

// PendingContext returns ctx with a fresh collector for one unit of work.
func (e *Emitter) PendingContext(ctx context.Context) context.Context {
	return WithPending(ctx)
}

// PublishPending publishes the events collected on ctx and clears the
// collector. It must only be called after the transaction committed.
// Returns the number the broker accepted.
func (e *Emitter) PublishPending(ctx context.Context) int {
	if e == nil || e.publisher == nil {
		return 0
	}
	p, ok := PendingFromContext(ctx)
	if !ok {
		return 0
	}
	published := 0
	for _, stored := range p.drain() {
		if e.publisher.Publish(ctx, stored) {
			published++
		}
	}
	return published
}
