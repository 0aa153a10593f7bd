package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskpulse/internal/api"
	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/insights"
	"github.com/phrazzld/taskpulse/internal/platform/postgres"
	"github.com/phrazzld/taskpulse/internal/reminder"
	"github.com/phrazzld/taskpulse/internal/service"
	"github.com/phrazzld/taskpulse/internal/service/auth"
)

// application holds the shared dependencies of the API process and
// releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	closeBroker func() error
	router      http.Handler
}

// newApplication wires stores, the outbox pipeline, services and the router.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	tasks := postgres.NewPostgresTaskStore(db)
	reminders := postgres.NewPostgresReminderStore(db)
	outbox := postgres.NewPostgresEventStore(db)
	notifications := postgres.NewPostgresNotificationStore(db)
	audit := postgres.NewPostgresAuditStore(db)

	broker, closeBroker, err := events.NewBrokerFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event broker: %w", err)
	}
	app.closeBroker = closeBroker

	publisher := events.NewPublisher(outbox, broker, logger, events.WithPublishTimeout(cfg.Events.PublishTimeout))
	dispatcher := events.NewDispatcher(logger)
	events.RegisterDefaults(dispatcher, audit, notifications, logger)
	emitter := events.NewEmitter(cfg.Events.Enabled, publisher, dispatcher, logger)

	var engineOpts []reminder.Option
	if cfg.Reminders.DaprJobsEnabled {
		engineOpts = append(engineOpts, reminder.WithScheduler(reminder.NewDaprJobsClient(cfg.Dapr.BaseURL, nil)))
	}
	engine := reminder.NewEngine(reminders, tasks, emitter, logger, engineOpts...)

	taskService, err := service.NewTaskService(db, tasks, engine, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	reminderService, err := service.NewReminderService(db, tasks, engine, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder service: %w", err)
	}

	analyzer := insights.NewAnalyzer(tasks, reminders, logger)
	executor := insights.NewExecutor(db, analyzer, tasks, engine, audit, emitter, cfg.AI, logger)

	app.router = api.NewRouter(api.RouterDeps{
		Logger:    logger,
		JWT:       jwtService,
		Tasks:     taskService,
		Reminders: reminderService,
		Analyzer:  analyzer,
		Executor:  executor,
		Health:    db.PingContext,
	})

	logger.Info("application initialized",
		slog.Bool("events_enabled", cfg.Events.Enabled),
		slog.Bool("dapr_jobs_enabled", cfg.Reminders.DaprJobsEnabled),
		slog.Bool("ai_automation_enabled", cfg.AI.AutomationEnabled))
	return app, nil
}

// Run serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.closeBroker != nil {
		if err := app.closeBroker(); err != nil {
			app.logger.Error("error closing event broker", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
