// Package main runs the taskpulse background workers: the event outbox,
// notification delivery and due reminders.
//
// Usage:
//
//	worker --once
//	worker --loop --interval=5s --max-iterations=0
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/platform/postgres"
	"github.com/phrazzld/taskpulse/internal/platform/telemetry"
)

const serviceName = "taskpulse-worker"

var errWorkersFailed = errors.New("one or more workers failed")

type options struct {
	once          bool
	loop          bool
	interval      time.Duration
	maxIterations int
	batchSize     int
	maxRetries    int
	verbose       bool
	quiet         bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.BoolVar(&opts.once, "once", false, "run every worker once and exit")
	fs.BoolVar(&opts.loop, "loop", false, "run workers continuously")
	fs.DurationVar(&opts.interval, "interval", 0, "delay between loop iterations (default worker.poll_interval)")
	fs.IntVar(&opts.maxIterations, "max-iterations", 0, "stop the loop after this many iterations; 0 means no limit")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "items fetched per worker cycle (default worker.batch_size)")
	fs.IntVar(&opts.maxRetries, "max-retries", -1, "retry limit for failed items (default worker.max_retries)")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	fs.BoolVar(&opts.quiet, "q", false, "only log errors")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.once == opts.loop {
		return opts, errors.New("exactly one of --once or --loop is required")
	}
	if opts.verbose && opts.quiet {
		return opts, errors.New("-v and -q are mutually exclusive")
	}
	if opts.maxIterations < 0 {
		return opts, errors.New("--max-iterations cannot be negative")
	}
	return opts, nil
}

// apply overlays command line overrides on the loaded configuration.
func (o options) apply(cfg *config.Config) {
	if o.batchSize > 0 {
		cfg.Worker.BatchSize = o.batchSize
	}
	if o.maxRetries >= 0 {
		cfg.Worker.MaxRetries = o.maxRetries
	}
	if o.interval > 0 {
		cfg.Worker.PollInterval = o.interval
	}
	switch {
	case o.verbose:
		cfg.Server.LogLevel = "debug"
	case o.quiet:
		cfg.Server.LogLevel = "error"
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	opts.apply(cfg)

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	w, err := newWorkers(ctx, cfg, log, db)
	if err != nil {
		return err
	}
	defer w.close()

	if opts.once {
		result := w.runner.RunOnce(ctx)
		log.Info("worker run finished",
			"processed", result.TotalProcessed,
			"failed", result.TotalFailed,
			"duration", result.CompletedAt.Sub(result.StartedAt).String())
		if result.HasErrors() {
			for _, e := range result.Errors {
				log.Error("worker error", "error", e)
			}
			return errWorkersFailed
		}
		return nil
	}

	w.runner.RunLoop(ctx, cfg.Worker.PollInterval, opts.maxIterations)
	return nil
}
