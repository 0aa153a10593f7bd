package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/taskpulse/internal/api/middleware"
	"github.com/phrazzld/taskpulse/internal/api/shared"
	"github.com/phrazzld/taskpulse/internal/service"
	"github.com/phrazzld/taskpulse/internal/service/auth"
)

// HealthTimeout bounds the health probe.
const HealthTimeout = 2 * time.Second

// RouterDeps are the collaborators mounted by NewRouter. Health may be nil.
type RouterDeps struct {
	Logger    *slog.Logger
	JWT       auth.JWTService
	Tasks     service.TaskService
	Reminders service.ReminderService
	Analyzer  ContextPreparer
	Executor  RecommendationRunner
	Health    func(ctx context.Context) error
}

// NewRouter builds the HTTP handler with all routes and middleware.
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(log))

	authMiddleware := apiMiddleware.NewAuthMiddleware(d.JWT)
	taskHandler := NewTaskHandler(d.Tasks, log)
	reminderHandler := NewReminderHandler(d.Reminders, log)
	insightsHandler := NewInsightsHandler(d.Analyzer, d.Executor, log)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.CreateTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/{id}", taskHandler.GetTask)
			r.Patch("/{id}", taskHandler.UpdateTask)
			r.Delete("/{id}", taskHandler.DeleteTask)
			r.Post("/{id}/toggle", taskHandler.ToggleTask)
			r.Post("/{id}/reminders", reminderHandler.CreateReminder)
			r.Get("/{id}/reminders", reminderHandler.ListTaskReminders)
		})

		r.Get("/reminders/upcoming", reminderHandler.Upcoming)
		r.Delete("/reminders/{id}", reminderHandler.CancelReminder)

		r.Get("/insights/context", insightsHandler.Context)
		r.Post("/insights/execute", insightsHandler.Execute)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), HealthTimeout)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "unhealthy", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
