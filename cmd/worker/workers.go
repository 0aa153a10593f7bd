package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/phrazzld/taskpulse/internal/delivery"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/platform/postgres"
	"github.com/phrazzld/taskpulse/internal/reminder"
	"github.com/phrazzld/taskpulse/internal/worker"
)

type workers struct {
	runner      *worker.Runner
	closeBroker func() error
	logger      *slog.Logger
}

// newWorkers builds the runner with the fixed worker order: events,
// notifications, reminders.
func newWorkers(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*workers, error) {
	tasks := postgres.NewPostgresTaskStore(db)
	reminders := postgres.NewPostgresReminderStore(db)
	outbox := postgres.NewPostgresEventStore(db)
	notifications := postgres.NewPostgresNotificationStore(db)
	audit := postgres.NewPostgresAuditStore(db)

	broker, closeBroker, err := events.NewBrokerFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event broker: %w", err)
	}

	publisher := events.NewPublisher(outbox, broker, logger, events.WithPublishTimeout(cfg.Events.PublishTimeout))
	dispatcher := events.NewDispatcher(logger)
	events.RegisterDefaults(dispatcher, audit, notifications, logger)
	emitter := events.NewEmitter(cfg.Events.Enabled, publisher, dispatcher, logger)
	engine := reminder.NewEngine(reminders, tasks, emitter, logger)

	router, err := newDeliveryRouter(ctx, cfg.Notifications, logger)
	if err != nil {
		_ = closeBroker()
		return nil, err
	}

	metrics, err := worker.NewMetrics(nil)
	if err != nil {
		_ = closeBroker()
		return nil, fmt.Errorf("failed to create worker metrics: %w", err)
	}

	wcfg := worker.ConfigFrom(cfg.Worker)
	runner := worker.NewRunner(logger,
		worker.NewEventWorker(db,
			worker.NewEventProcessor(outbox, dispatcher, publisher, wcfg, logger),
			logger, worker.WithMetrics(metrics)),
		worker.NewNotificationWorker(db,
			worker.NewNotificationProcessor(notifications, audit, router, wcfg, logger),
			logger, worker.WithMetrics(metrics)),
		worker.NewReminderWorker(db,
			worker.NewReminderProcessor(engine, reminders, tasks, notifications, audit, wcfg, logger),
			logger, worker.WithMetrics(metrics)),
	)

	logger.Info("workers initialized",
		"batch_size", wcfg.BatchSize,
		"max_retries", wcfg.MaxRetries,
		"retry_delay", wcfg.RetryDelay.String(),
		"ses_enabled", cfg.Notifications.SESEnabled)

	return &workers{runner: runner, closeBroker: closeBroker, logger: logger}, nil
}

// newDeliveryRouter uses SES for real addresses when enabled and the
// simulated sender for everything else.
func newDeliveryRouter(ctx context.Context, cfg config.NotificationsConfig, logger *slog.Logger) (*delivery.Router, error) {
	simulated := delivery.NewSimulatedSender(logger)
	if !cfg.SESEnabled {
		return delivery.NewRouter(nil, simulated), nil
	}
	ses, err := delivery.NewSESSenderFromEnv(ctx, cfg.AWSRegion, cfg.SESFromEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SES sender: %w", err)
	}
	return delivery.NewRouter(ses, simulated), nil
}

func (w *workers) close() {
	if w.closeBroker == nil {
		return
	}
	if err := w.closeBroker(); err != nil {
		w.logger.Error("error closing event broker", "error", err)
	}
}
