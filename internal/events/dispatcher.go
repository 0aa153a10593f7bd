package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/phrazzld/taskpulse/internal/domain"
)

// Consumer reacts to events inside the transaction that produced them, or
// inside the worker's transaction when an event is replayed.
type Consumer interface {
	Name() string
	Handles(t domain.EventType) bool
	Process(ctx context.Context, tx *sql.Tx, env Envelope, stored *domain.StoredEvent) error
}

// DispatchResult summarizes one Dispatch call.
type DispatchResult struct {
	Handled int
	Failed  int
	Errors  map[string]error
}

// OK reports whether every handling consumer succeeded.
func (r DispatchResult) OK() bool { return r.Failed == 0 }

// consumerSavepoint scopes one consumer's statements inside the shared
// transaction.
const consumerSavepoint = "event_consumer"

// Dispatcher fans events out to registered consumers.
type Dispatcher struct {
	mu         sync.RWMutex
	consumers  []Consumer
	logger     *slog.Logger
	savepoints bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSavepoints controls whether each consumer runs under its own
// savepoint when a transaction is supplied. It is on by default; a failed
// statement in PostgreSQL otherwise aborts the whole transaction.
func WithSavepoints(on bool) DispatcherOption {
	return func(d *Dispatcher) { d.savepoints = on }
}

// NewDispatcher creates a Dispatcher with no consumers.
func NewDispatcher(logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger.With("component", "event_dispatcher"), savepoints: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a consumer. Consumers run in registration order.
func (d *Dispatcher) Register(c Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumers = append(d.consumers, c)
}

// Consumers returns the registered consumer names.
func (d *Dispatcher) Consumers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.consumers))
	for i, c := range d.consumers {
		names[i] = c.Name()
	}
	return names
}

// Dispatch runs every consumer that handles the event type. A failing or
// panicking consumer is logged and does not stop the others, and nothing is
// returned to the caller as an error. With a transaction, a failing
// consumer's writes are rolled back to its savepoint so the caller's
// transaction stays usable.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tx *sql.Tx,
	env Envelope,
	stored *domain.StoredEvent,
) DispatchResult {
	d.mu.RLock()
	consumers := make([]Consumer, len(d.consumers))
	copy(consumers, d.consumers)
	d.mu.RUnlock()

	result := DispatchResult{Errors: map[string]error{}}
	for _, c := range consumers {
		if !c.Handles(env.Type) {
			continue
		}
		result.Handled++
		if err := d.run(ctx, c, tx, env, stored); err != nil {
			result.Failed++
			result.Errors[c.Name()] = err
			d.logger.ErrorContext(ctx, "consumer failed",
				"consumer", c.Name(),
				"event_id", env.ID,
				"event_type", env.Type,
				"error", err)
		}
	}
	return result
}

func (d *Dispatcher) run(
	ctx context.Context,
	c Consumer,
	tx *sql.Tx,
	env Envelope,
	stored *domain.StoredEvent,
) error {
	if tx == nil || !d.savepoints {
		return d.process(ctx, c, tx, env, stored)
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+consumerSavepoint); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := d.process(ctx, c, tx, env, stored); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+consumerSavepoint); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+consumerSavepoint); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (d *Dispatcher) process(
	ctx context.Context,
	c Consumer,
	tx *sql.Tx,
	env Envelope,
	stored *domain.StoredEvent,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "consumer panicked",
				"consumer", c.Name(),
				"event_id", env.ID,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("consumer %s panicked: %v", c.Name(), r)
		}
	}()
	return c.Process(ctx, tx, env, stored)
}
