package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/phrazzld/taskpulse/internal/redact"
	"github.com/phrazzld/taskpulse/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/phrazzld/taskpulse/internal/worker"

// Status summarizes one processing cycle.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusNoWork  Status = "no_work"
)

// Config holds the knobs shared by every worker.
type Config struct {
	// BatchSize caps the items fetched per cycle.
	BatchSize int

	// MaxRetries is the number of failed attempts after which an item is
	// no longer fetched.
	MaxRetries int

	// RetryDelay is the minimum wait before a failed outbox event is retried,
	// and the base of the notification backoff.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:  50,
		MaxRetries: 3,
		RetryDelay: 60 * time.Second,
	}
}

// ConfigFrom converts the loaded worker settings.
func ConfigFrom(cfg config.WorkerConfig) Config {
	out := DefaultConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.MaxRetries >= 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		out.RetryDelay = cfg.RetryDelay
	}
	return out
}

// Processor supplies the item-level steps Base runs for one kind of work.
// Every method that takes a tx must do its writes through it.
type Processor[T any] interface {
	Name() string
	FetchPending(ctx context.Context, batchSize int) ([]T, error)
	ItemID(item T) uuid.UUID

	// MarkProcessing claims the item. false means another worker got there
	// first and the item is skipped.
	MarkProcessing(ctx context.Context, tx *sql.Tx, item T) (bool, error)
	Process(ctx context.Context, tx *sql.Tx, item T) error
	MarkCompleted(ctx context.Context, tx *sql.Tx, item T) error
	MarkFailed(ctx context.Context, tx *sql.Tx, item T, errMsg string, canRetry bool) error
	ShouldRetry(item T) bool
}

// ItemError records one failed item.
type ItemError struct {
	ItemID   uuid.UUID `json:"item_id"`
	Error    string    `json:"error"`
	CanRetry bool      `json:"can_retry"`
}

// Result is the outcome of one RunOnce call. Processed counts every claimed
// item, so Processed == Succeeded + Failed.
type Result struct {
	Worker      string        `json:"worker"`
	Status      Status        `json:"status"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Errors      []ItemError   `json:"errors,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

func (r Result) status() Status {
	switch {
	case r.Failed == 0 && r.Succeeded > 0:
		return StatusSuccess
	case r.Failed > 0 && r.Succeeded > 0:
		return StatusPartial
	case r.Failed > 0:
		return StatusFailed
	default:
		return StatusNoWork
	}
}

// Option customizes a Base.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *Metrics
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records cycle results on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Base runs a Processor one batch at a time.
type Base[T any] struct {
	proc      Processor[T]
	db        store.TxBeginner
	batchSize int
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	now       func() time.Time
}

// NewBase creates a Base for proc.
func NewBase[T any](proc Processor[T], db store.TxBeginner, batchSize int, logger *slog.Logger, opts ...Option) *Base[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Base[T]{
		proc:      proc,
		db:        db,
		batchSize: batchSize,
		logger:    logger.With("component", "worker", "worker", proc.Name()),
		tracer:    otel.Tracer(instrumentationName),
		metrics:   o.metrics,
		now:       o.now,
	}
}

// Name returns the processor name.
func (b *Base[T]) Name() string { return b.proc.Name() }

// RunOnce fetches one batch and processes every item in it.
func (b *Base[T]) RunOnce(ctx context.Context) Result {
	res := Result{Worker: b.proc.Name(), StartedAt: b.now().UTC()}

	ctx, span := b.tracer.Start(ctx, "worker.run", trace.WithAttributes(
		attribute.String("worker", res.Worker),
	))
	defer span.End()

	items, err := b.proc.FetchPending(ctx, b.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		b.logger.ErrorContext(ctx, "failed to fetch pending items", "error", redact.Error(err))
		res.Errors = append(res.Errors, ItemError{
			Error: redact.ErrorLimit(err, redact.WorkItemErrorLimit),
		})
		res.Status = StatusFailed
		return b.finish(ctx, res)
	}
	if len(items) == 0 {
		b.logger.DebugContext(ctx, "no pending items")
		res.Status = StatusNoWork
		return b.finish(ctx, res)
	}

	b.logger.DebugContext(ctx, "processing batch", "count", len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		b.runItem(ctx, item, &res)
	}

	res.Status = res.status()
	if res.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d items failed", res.Failed))
	}
	return b.finish(ctx, res)
}

func (b *Base[T]) runItem(ctx context.Context, item T, res *Result) {
	id := b.proc.ItemID(item)
	log := b.logger.With("item_id", id)

	claimed := false
	err := store.RunInTransaction(ctx, b.db, func(ctx context.Context, tx *sql.Tx) (err error) {
		defer func() {
			if p := recover(); p != nil {
				log.ErrorContext(ctx, "item processing panicked", "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", p)
			}
		}()

		ok, err := b.proc.MarkProcessing(ctx, tx, item)
		if err != nil {
			return fmt.Errorf("failed to claim item: %w", err)
		}
		if !ok {
			return nil
		}
		claimed = true
		if err := b.proc.Process(ctx, tx, item); err != nil {
			return err
		}
		return b.proc.MarkCompleted(ctx, tx, item)
	})

	if err == nil {
		if !claimed {
			res.Skipped++
			log.DebugContext(ctx, "item already claimed, skipping")
			return
		}
		res.Processed++
		res.Succeeded++
		log.DebugContext(ctx, "item processed")
		return
	}

	res.Processed++
	res.Failed++
	msg := redact.ErrorLimit(err, redact.WorkItemErrorLimit)
	canRetry := b.proc.ShouldRetry(item)
	res.Errors = append(res.Errors, ItemError{ItemID: id, Error: msg, CanRetry: canRetry})

	log.ErrorContext(ctx, "item processing failed", "error", msg, "can_retry", canRetry)

	markErr := store.RunInTransaction(ctx, b.db, func(ctx context.Context, tx *sql.Tx) error {
		return b.proc.MarkFailed(ctx, tx, item, msg, canRetry)
	})
	if markErr != nil {
		log.ErrorContext(ctx, "failed to record item failure", "error", redact.Error(markErr))
	}
}

func (b *Base[T]) finish(ctx context.Context, res Result) Result {
	res.CompletedAt = b.now().UTC()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	b.metrics.Record(ctx, res)

	level := slog.LevelInfo
	if res.Status == StatusNoWork {
		level = slog.LevelDebug
	}
	b.logger.Log(ctx, level, "worker cycle complete",
		"status", res.Status,
		"processed", res.Processed,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration_ms", res.Duration.Milliseconds())
	return res
}
