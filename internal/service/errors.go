package service

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// Service errors checked with errors.Is by the API layer.
var (
	// ErrTaskNotFound covers tasks that do not exist and tasks owned by
	// another user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrReminderNotFound covers reminders that do not exist and reminders
	// owned by another user.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrNoReminderCandidate is returned when a reminder was requested
	// without a time and the task has no future due date to derive one from.
	ErrNoReminderCandidate = errors.New("no reminder time could be derived for task")
)

// validationError converts validator output into a domain.ValidationError
// naming the first failing field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Field(), describe(fe), nil)
	}
	return domain.NewValidationError("", err.Error(), nil)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + unit(fe)
	case "max":
		return "must be at most " + fe.Param() + unit(fe)
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}

func unit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return " characters"
	}
	return ""
}
