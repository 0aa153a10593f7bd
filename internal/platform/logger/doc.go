// Package logger configures the process-wide slog logger and carries
// request- and job-scoped loggers through a context.Context.
package logger
