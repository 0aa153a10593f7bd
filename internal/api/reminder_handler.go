package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskpulse/internal/api/shared"
	"github.com/phrazzld/taskpulse/internal/service"
)

// DefaultUpcomingHours is the window of GET /api/reminders/upcoming when
// hours is omitted.
const DefaultUpcomingHours = 24

// ReminderHandler serves reminder routes.
type ReminderHandler struct {
	reminders service.ReminderService
	logger    *slog.Logger
}

// NewReminderHandler creates a ReminderHandler.
func NewReminderHandler(reminders service.ReminderService, logger *slog.Logger) *ReminderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderHandler{
		reminders: reminders,
		logger:    logger.With(slog.String("component", "reminder_handler")),
	}
}

// CreateReminder handles POST /api/tasks/{id}/reminders. An empty body
// derives the time from the task's due date.
func (h *ReminderHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req service.ReminderCreate
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, shared.ErrEmptyBody) {
		invalidBody(w, r, err)
		return
	}

	rem, err := h.reminders.CreateReminder(r.Context(), userID, taskID, req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, reminderToResponse(rem))
}

// ListTaskReminders handles GET /api/tasks/{id}/reminders.
func (h *ReminderHandler) ListTaskReminders(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	rs, err := h.reminders.TaskReminders(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, remindersToResponse(rs))
}

// CancelReminder handles DELETE /api/reminders/{id}.
func (h *ReminderHandler) CancelReminder(w http.ResponseWriter, r *http.Request) {
	userID, reminderID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.reminders.CancelReminder(r.Context(), userID, reminderID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upcoming handles GET /api/reminders/upcoming?hours=N.
func (h *ReminderHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	hours, err := queryInt(r, "hours", DefaultUpcomingHours)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	rs, err := h.reminders.UpcomingReminders(r.Context(), userID, hours)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, remindersToResponse(rs))
}
