package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/taskpulse/internal/api/shared"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/service"
	"github.com/phrazzld/taskpulse/internal/service/auth"
	"github.com/phrazzld/taskpulse/internal/store"
)

// GenericErrorMessage is returned for every failure without a safe message.
const GenericErrorMessage = "could not complete that request"

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their type to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrReminderNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrNoReminderCandidate):
		return http.StatusUnprocessableEntity

	case domain.IsValidationError(err):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Validation
// errors name the failing field; everything else is generic.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return GenericErrorMessage
	}

	var ve *domain.ValidationError
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrReminderNotFound):
		return "Reminder not found"

	case errors.Is(err, service.ErrNoReminderCandidate):
		return "Task has no future due date to derive a reminder from"

	case errors.As(err, &ve):
		if ve.Field == "" {
			return "Invalid request"
		}
		return "Invalid " + ve.Field + ": " + ve.Message

	case domain.IsValidationError(err):
		return "Invalid request"

	default:
		return GenericErrorMessage
	}
}

// HandleAPIError writes the mapped status and message for err and logs the
// redacted detail. A non-empty message overrides the safe message for
// server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	safe := GetSafeErrorMessage(err)
	if message != "" && status == http.StatusInternalServerError {
		safe = message
	}
	shared.RespondWithErrorAndLog(w, r, status, safe, err)
}
