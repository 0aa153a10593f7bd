package insights

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/store"
)

// ReminderLookup reports whether a task has a pending reminder.
type ReminderLookup interface {
	HasPending(ctx context.Context, taskID uuid.UUID) (bool, error)
}

// Analyzer derives insights from task state. It never modifies data.
type Analyzer struct {
	tasks     store.TaskStore
	reminders ReminderLookup
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(tasks store.TaskStore, reminders ReminderLookup, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		tasks:     tasks,
		reminders: reminders,
		logger:    logger.With("component", "insights_analyzer"),
		now:       time.Now,
	}
}

// SetClock overrides the analyzer's time source.
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

func floorDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

// wholeDaysOverdue counts complete days since due. Every overdue message
// uses it.
func wholeDaysOverdue(due, now time.Time) int {
	return int(now.Sub(due).Hours() / 24)
}

// AnalyzeTask computes due-date metrics and the ordered recommendations
// for one task.
func (a *Analyzer) AnalyzeTask(ctx context.Context, task *domain.Task, now time.Time) (*TaskInsights, error) {
	now = now.UTC()
	ins := &TaskInsights{TaskID: task.ID, Recommendations: []*Recommendation{}}

	if task.DueAt != nil {
		delta := task.DueAt.Sub(now)
		days := floorDays(delta)
		ins.DaysUntilDue = &days
		ins.IsOverdue = delta < 0
	}

	has, err := a.reminders.HasPending(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check reminders for task %s: %w", task.ID, err)
	}
	ins.HasReminder = has
	ins.NeglectedDays = floorDays(now.Sub(task.UpdatedAt))

	if rec := SuggestPriorityChange(task, now); rec != nil {
		ins.Recommendations = append(ins.Recommendations, rec)
	}
	if !has {
		if rec := SuggestReminder(task, now); rec != nil {
			ins.Recommendations = append(ins.Recommendations, rec)
		}
	}
	if ins.IsOverdue {
		overdueDays := wholeDaysOverdue(*task.DueAt, now)
		ins.Recommendations = append(ins.Recommendations, &Recommendation{
			Type:            TypeTaskOverdue,
			TaskID:          task.ID,
			UserID:          task.UserID,
			Confidence:      ConfidenceHigh,
			Reason:          fmt.Sprintf("Task is %d days overdue", overdueDays),
			SuggestedAction: ReviewAction{Action: ActionReviewAndReschedule},
			Metadata:        map[string]any{},
		})
	}
	if ins.NeglectedDays >= NeglectedTaskDays {
		ins.Recommendations = append(ins.Recommendations, &Recommendation{
			Type:            TypeTaskNeglected,
			TaskID:          task.ID,
			UserID:          task.UserID,
			Confidence:      ConfidenceMedium,
			Reason:          fmt.Sprintf("Task hasn't been updated in %d days", ins.NeglectedDays),
			SuggestedAction: ReviewAction{Action: ActionReviewOrDelete},
			Metadata:        map[string]any{},
		})
	}
	return ins, nil
}

func priorityRecommendation(task *domain.Task, c Confidence, reason string, to domain.Priority) *Recommendation {
	return &Recommendation{
		Type:       TypePriorityChange,
		TaskID:     task.ID,
		UserID:     task.UserID,
		Confidence: c,
		Reason:     reason,
		SuggestedAction: PriorityAction{
			Field:          "priority",
			CurrentValue:   task.Priority,
			SuggestedValue: to,
		},
		Metadata: map[string]any{},
	}
}

// SuggestPriorityChange raises the priority of overdue tasks and of
// low-priority tasks due within ReminderSuggestionHours.
func SuggestPriorityChange(task *domain.Task, now time.Time) *Recommendation {
	if task.IsCompleted || task.DueAt == nil {
		return nil
	}
	hoursUntilDue := task.DueAt.Sub(now).Hours()

	if hoursUntilDue < 0 {
		daysOverdue := wholeDaysOverdue(*task.DueAt, now)
		switch {
		case task.Priority == domain.PriorityLow:
			return priorityRecommendation(task, ConfidenceHigh,
				fmt.Sprintf("Task is %d days overdue with low priority", daysOverdue),
				domain.PriorityMedium)
		case task.Priority == domain.PriorityMedium && daysOverdue >= OverduePriorityBoostDays:
			return priorityRecommendation(task, ConfidenceMedium,
				fmt.Sprintf("Task is %d days overdue", daysOverdue),
				domain.PriorityHigh)
		}
	}

	if hoursUntilDue > 0 && hoursUntilDue <= ReminderSuggestionHours && task.Priority == domain.PriorityLow {
		return priorityRecommendation(task, ConfidenceMedium,
			fmt.Sprintf("Task is due within %d hours", int(hoursUntilDue)),
			domain.PriorityMedium)
	}
	return nil
}

// SuggestReminder proposes a reminder for an open, not yet overdue task.
// The caller is responsible for skipping tasks that already have one.
func SuggestReminder(task *domain.Task, now time.Time) *Recommendation {
	if task.IsCompleted || task.DueAt == nil {
		return nil
	}
	untilDue := task.DueAt.Sub(now)
	if untilDue < 0 {
		return nil
	}

	remindAt := task.DueAt.Add(-time.Hour)
	desc := "1 hour before due"
	if untilDue > ReminderSuggestionHours*time.Hour {
		remindAt = task.DueAt.Add(-24 * time.Hour)
		desc = "1 day before due"
	}
	if !remindAt.After(now) {
		remindAt = now.Add(30 * time.Minute)
		desc = "in 30 minutes"
	}

	return &Recommendation{
		Type:       TypeAddReminder,
		TaskID:     task.ID,
		UserID:     task.UserID,
		Confidence: ConfidenceHigh,
		Reason:     "Task has due date but no reminder set",
		SuggestedAction: ReminderAction{
			RemindAt:          remindAt.UTC(),
			RemindDescription: desc,
		},
		Metadata: map[string]any{},
	}
}

// AnalyzeUserTasks analyzes every task of a user, open tasks only unless
// includeCompleted is set.
func (a *Analyzer) AnalyzeUserTasks(ctx context.Context, userID uuid.UUID, includeCompleted bool) ([]*TaskInsights, error) {
	filter := store.TaskFilter{UserID: userID, OrderBy: store.OrderCreatedDesc}
	if !includeCompleted {
		open := false
		filter.Completed = &open
	}
	tasks, _, err := a.tasks.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	now := a.now().UTC()
	out := make([]*TaskInsights, 0, len(tasks))
	for _, t := range tasks {
		ins, err := a.AnalyzeTask(ctx, t, now)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}

// GetOverdueTasks returns open tasks past their due date, earliest first.
func (a *Analyzer) GetOverdueTasks(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	open := false
	now := a.now().UTC()
	tasks, _, err := a.tasks.List(ctx, store.TaskFilter{
		UserID:    userID,
		Completed: &open,
		DueBefore: &now,
		OrderBy:   store.OrderDueAsc,
	})
	return tasks, err
}

// GetNeglectedTasks returns open tasks not updated for thresholdDays,
// least recently updated first. A non-positive threshold uses
// NeglectedTaskDays.
func (a *Analyzer) GetNeglectedTasks(ctx context.Context, userID uuid.UUID, thresholdDays int) ([]*domain.Task, error) {
	if thresholdDays <= 0 {
		thresholdDays = NeglectedTaskDays
	}
	open := false
	cutoff := a.now().UTC().AddDate(0, 0, -thresholdDays)
	tasks, _, err := a.tasks.List(ctx, store.TaskFilter{
		UserID:        userID,
		Completed:     &open,
		UpdatedBefore: &cutoff,
		OrderBy:       store.OrderUpdatedAsc,
	})
	return tasks, err
}

// PrepareAIContext summarizes a user's open tasks together with every
// recommendation for them.
func (a *Analyzer) PrepareAIContext(ctx context.Context, userID uuid.UUID) (*AIContext, error) {
	all, err := a.AnalyzeUserTasks(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	out := &AIContext{
		Recommendations: []*Recommendation{},
		GeneratedAt:     a.now().UTC(),
	}
	out.Summary.TotalPendingTasks = len(all)
	for _, ins := range all {
		if ins.IsOverdue {
			out.Summary.OverdueTasks++
		}
		if ins.HasReminder {
			out.Summary.TasksWithReminders++
		}
		if ins.NeglectedDays >= NeglectedTaskDays {
			out.Summary.NeglectedTasks++
		}
		out.Recommendations = append(out.Recommendations, ins.Recommendations...)
	}
	return out, nil
}
