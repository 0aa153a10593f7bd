package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records worker cycle outcomes.
type Metrics struct {
	processed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics creates the worker instruments on meter. A nil meter uses the
// global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	processed, err := meter.Int64Counter(
		"taskpulse.worker.items.processed",
		metric.WithDescription("Items claimed and run by a worker"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"taskpulse.worker.items.failed",
		metric.WithDescription("Items whose processing failed"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"taskpulse.worker.cycle.duration",
		metric.WithDescription("Duration of one worker cycle in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{processed: processed, failed: failed, duration: duration}, nil
}

// Record adds one cycle result. A nil Metrics records nothing.
func (m *Metrics) Record(ctx context.Context, r Result) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("worker", r.Worker),
		attribute.String("status", string(r.Status)),
	)
	m.processed.Add(ctx, int64(r.Processed), attrs)
	m.failed.Add(ctx, int64(r.Failed), attrs)
	m.duration.Record(ctx, r.Duration.Seconds(), attrs)
}
