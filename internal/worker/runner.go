package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Worker is one schedulable processing cycle.
type Worker interface {
	Name() string
	RunOnce(ctx context.Context) Result
}

// RunnerResult aggregates one pass over every worker.
type RunnerResult struct {
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
	WorkersRun     int               `json:"workers_run"`
	TotalProcessed int               `json:"total_processed"`
	TotalFailed    int               `json:"total_failed"`
	WorkerResults  map[string]Result `json:"worker_results"`
	Errors         []string          `json:"errors,omitempty"`
}

// HasErrors reports whether any worker could not complete its cycle.
func (r RunnerResult) HasErrors() bool { return len(r.Errors) > 0 }

// Runner executes workers sequentially in registration order.
type Runner struct {
	workers []Worker
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner. Workers run in the order given.
func NewRunner(logger *slog.Logger, workers ...Worker) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		workers: workers,
		logger:  logger.With("component", "worker_runner"),
		now:     time.Now,
	}
}

// RunOnce runs every worker once. A worker that panics or fails to fetch
// its batch is recorded in Errors and the remaining workers still run.
func (r *Runner) RunOnce(ctx context.Context) RunnerResult {
	result := RunnerResult{
		StartedAt:     r.now().UTC(),
		WorkerResults: make(map[string]Result, len(r.workers)),
	}

	for _, w := range r.workers {
		if ctx.Err() != nil {
			break
		}
		res, err := r.runWorker(ctx, w)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			r.logger.ErrorContext(ctx, "worker failed", "worker", w.Name(), "error", err)
			continue
		}
		result.WorkersRun++
		result.WorkerResults[w.Name()] = res
		result.TotalProcessed += res.Processed
		result.TotalFailed += res.Failed
		if res.Status == StatusFailed && res.Processed == 0 {
			for _, e := range res.Errors {
				result.Errors = append(result.Errors, fmt.Sprintf("%s failed: %s", w.Name(), e.Error))
			}
		}
	}

	result.CompletedAt = r.now().UTC()
	r.logger.InfoContext(ctx, "worker run completed",
		"workers_run", result.WorkersRun,
		"total_processed", result.TotalProcessed,
		"total_failed", result.TotalFailed,
		"errors", len(result.Errors),
		"duration_ms", result.CompletedAt.Sub(result.StartedAt).Milliseconds())
	return result
}

func (r *Runner) runWorker(ctx context.Context, w Worker) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s failed: panic: %v", w.Name(), p)
		}
	}()
	return w.RunOnce(ctx), nil
}

// RunLoop calls RunOnce every interval until ctx is done or maxIterations
// cycles have run. maxIterations <= 0 means no limit. It returns the number
// of completed cycles.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration, maxIterations int) int {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r.logger.InfoContext(ctx, "starting worker loop",
		"interval", interval.String(),
		"max_iterations", maxIterations)

	iterations := 0
	for {
		if maxIterations > 0 && iterations >= maxIterations {
			r.logger.InfoContext(ctx, "reached max iterations, stopping", "iterations", iterations)
			break
		}
		result := r.RunOnce(ctx)
		if ctx.Err() != nil {
			break
		}
		iterations++
		r.logger.InfoContext(ctx, "iteration complete",
			"iteration", iterations,
			"processed", result.TotalProcessed,
			"failed", result.TotalFailed)

		if maxIterations > 0 && iterations >= maxIterations {
			continue
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.logger.InfoContext(ctx, "worker loop stopped", "total_iterations", iterations)
	return iterations
}
