package insights

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/redact"
	"github.com/phrazzld/taskpulse/internal/store"
)

// Audit actions written for every execution attempt.
const (
	ActionApplied = "ai.recommendation.applied"
	ActionDryRun  = "ai.recommendation.dry_run"
	ActionSkipped = "ai.recommendation.skipped"
)

// Gate and outcome reasons.
const (
	ReasonDisabled = "AI automation is globally disabled"
	ReasonDryRun   = "Dry run - would have applied"
	ReasonApplied  = "Successfully applied"
)

const handlerErrorLimit = 200

const savepoint = "ai_recommendation"

// ReminderCreator creates a reminder inside a transaction.
type ReminderCreator interface {
	Create(ctx context.Context, tx *sql.Tx, taskID, userID uuid.UUID, remindAt time.Time) (*domain.Reminder, error)
}

// PendingPublisher publishes events collected during a committed unit of work.
type PendingPublisher interface {
	PendingContext(ctx context.Context) context.Context
	PublishPending(ctx context.Context) int
}

// ExecutionResult reports what happened to one recommendation.
type ExecutionResult struct {
	Recommendation *Recommendation `json:"recommendation"`
	Applied        bool            `json:"applied"`
	Reason         string          `json:"reason"`
	Changes        any             `json:"changes"`
}

// AuditAction returns the audit action matching the outcome.
func (r ExecutionResult) AuditAction() string {
	switch {
	case r.Applied:
		return ActionApplied
	case r.Reason == ReasonDryRun:
		return ActionDryRun
	default:
		return ActionSkipped
	}
}

type handler func(ctx context.Context, tx *sql.Tx, rec *Recommendation) (map[string]any, error)

// Executor applies recommendations that pass its gates and audits every
// attempt.
type Executor struct {
	db        store.TxBeginner
	analyzer  *Analyzer
	tasks     store.TaskStore
	reminders ReminderCreator
	audit     store.AuditStore
	events    PendingPublisher
	enabled   bool
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
	handlers  map[RecommendationType]handler
}

// NewExecutor creates an Executor. events may be nil.
func NewExecutor(
	db store.TxBeginner,
	analyzer *Analyzer,
	tasks store.TaskStore,
	reminders ReminderCreator,
	audit store.AuditStore,
	events PendingPublisher,
	cfg config.AIConfig,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		db:        db,
		analyzer:  analyzer,
		tasks:     tasks,
		reminders: reminders,
		audit:     audit,
		events:    events,
		enabled:   cfg.AutomationEnabled,
		threshold: cfg.ConfidenceThreshold,
		logger:    logger.With("component", "ai_executor"),
		now:       time.Now,
	}
	e.handlers = map[RecommendationType]handler{
		TypePriorityChange: e.applyPriorityChange,
		TypeAddReminder:    e.applyAddReminder,
	}
	return e
}

// SetClock overrides the executor's time source.
func (e *Executor) SetClock(now func() time.Time) { e.now = now }

// Enabled reports whether the global switch is on.
func (e *Executor) Enabled() bool { return e.enabled }

// MeetsThreshold reports whether the recommendation is confident enough.
func (e *Executor) MeetsThreshold(rec *Recommendation) bool {
	return rec.Confidence.Value() >= e.threshold
}

// EvaluateUserTasks returns the recommendations for a user's open tasks
// without applying anything.
func (e *Executor) EvaluateUserTasks(ctx context.Context, userID uuid.UUID) ([]*Recommendation, error) {
	all, err := e.analyzer.AnalyzeUserTasks(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	var out []*Recommendation
	for _, ins := range all {
		out = append(out, ins.Recommendations...)
	}
	return out, nil
}

// Execute runs one recommendation through the gates in order: global
// switch, confidence threshold, handler lookup, dry run, apply. The handler
// runs in tx behind a savepoint so a failed handler leaves tx usable for the
// audit row. Every call writes exactly one audit row; only an audit write
// failure is returned as an error.
func (e *Executor) Execute(ctx context.Context, tx *sql.Tx, rec *Recommendation, dryRun bool) (ExecutionResult, error) {
	result := e.decide(ctx, tx, rec, dryRun)

	if err := e.writeAudit(ctx, tx, result); err != nil {
		return result, err
	}
	e.logger.InfoContext(ctx, "ai recommendation processed",
		"task_id", rec.TaskID,
		"recommendation_type", rec.Type,
		"applied", result.Applied,
		"reason", result.Reason)
	return result, nil
}

func (e *Executor) decide(ctx context.Context, tx *sql.Tx, rec *Recommendation, dryRun bool) ExecutionResult {
	result := ExecutionResult{Recommendation: rec}

	if !e.enabled {
		result.Reason = ReasonDisabled
		return result
	}
	if !e.MeetsThreshold(rec) {
		result.Reason = fmt.Sprintf("Confidence %s below threshold %v", rec.Confidence, e.threshold)
		return result
	}
	h, ok := e.handlers[rec.Type]
	if !ok {
		result.Reason = fmt.Sprintf("No handler for type %s", rec.Type)
		return result
	}
	if dryRun {
		result.Reason = ReasonDryRun
		result.Changes = rec.SuggestedAction
		return result
	}

	changes, err := e.applyGuarded(ctx, tx, h, rec)
	if err != nil {
		e.logger.ErrorContext(ctx, "ai recommendation execution failed",
			"task_id", rec.TaskID,
			"recommendation_type", rec.Type,
			"error", redact.Error(err))
		result.Reason = "Execution failed: " + redact.ErrorLimit(err, handlerErrorLimit)
		return result
	}
	result.Applied = true
	result.Reason = ReasonApplied
	result.Changes = changes
	return result
}

func (e *Executor) applyGuarded(ctx context.Context, tx *sql.Tx, h handler, rec *Recommendation) (map[string]any, error) {
	if tx == nil {
		return h(ctx, nil, rec)
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}
	changes, err := h(ctx, tx, rec)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return nil, fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr)
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return changes, nil
}

func (e *Executor) writeAudit(ctx context.Context, tx *sql.Tx, result ExecutionResult) error {
	rec := result.Recommendation
	entry, err := domain.NewAuditLog(rec.UserID, result.AuditAction(), domain.EntityTask, rec.TaskID, map[string]any{
		"recommendation_type": rec.Type,
		"confidence":          rec.Confidence,
		"applied":             result.Applied,
		"reason":              result.Reason,
		"changes":             result.Changes,
		"ai_automated":        true,
	})
	if err != nil {
		return err
	}
	audit := e.audit
	if tx != nil {
		audit = audit.WithTx(tx)
	}
	if err := audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to audit ai recommendation: %w", err)
	}
	return nil
}

// ExecuteAllForUser evaluates and executes every recommendation for a user
// in one transaction, then publishes any events that raised.
func (e *Executor) ExecuteAllForUser(ctx context.Context, userID uuid.UUID, dryRun bool) ([]ExecutionResult, error) {
	recs, err := e.EvaluateUserTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if e.events != nil {
		ctx = e.events.PendingContext(ctx)
	}

	results := make([]ExecutionResult, 0, len(recs))
	err = store.RunInTransaction(ctx, e.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, rec := range recs {
			res, err := e.Execute(ctx, tx, rec, dryRun)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.events != nil {
		e.events.PublishPending(ctx)
	}
	return results, nil
}

func (e *Executor) taskStore(tx *sql.Tx) store.TaskStore {
	if tx == nil {
		return e.tasks
	}
	return e.tasks.WithTx(tx)
}

func (e *Executor) applyPriorityChange(ctx context.Context, tx *sql.Tx, rec *Recommendation) (map[string]any, error) {
	action, ok := rec.SuggestedAction.(PriorityAction)
	if !ok {
		return nil, fmt.Errorf("expected priority action, got %T", rec.SuggestedAction)
	}
	if !action.SuggestedValue.Valid() {
		return nil, fmt.Errorf("invalid suggested priority %q", action.SuggestedValue)
	}

	tasks := e.taskStore(tx)
	task, err := tasks.GetByID(ctx, rec.TaskID)
	if err != nil {
		return nil, err
	}
	old := task.Priority
	task.Priority = action.SuggestedValue
	task.UpdatedAt = e.now().UTC()
	if err := tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	return map[string]any{
		"field":     "priority",
		"old_value": old,
		"new_value": task.Priority,
	}, nil
}

func (e *Executor) applyAddReminder(ctx context.Context, tx *sql.Tx, rec *Recommendation) (map[string]any, error) {
	action, ok := rec.SuggestedAction.(ReminderAction)
	if !ok {
		return nil, fmt.Errorf("expected reminder action, got %T", rec.SuggestedAction)
	}
	if action.RemindAt.IsZero() {
		return nil, fmt.Errorf("remind_at not specified in recommendation")
	}

	task, err := e.taskStore(tx).GetByID(ctx, rec.TaskID)
	if err != nil {
		return nil, err
	}
	r, err := e.reminders.Create(ctx, tx, task.ID, task.UserID, action.RemindAt)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"action":      "add_reminder",
		"reminder_id": r.ID.String(),
		"remind_at":   r.RemindAt.Format(time.RFC3339),
	}, nil
}
