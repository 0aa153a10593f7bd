package api

import (
	"time"

	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/insights"
)

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	IsCompleted        bool       `json:"is_completed"`
	Priority           string     `json:"priority"`
	RecurrenceType     string     `json:"recurrence_type"`
	RecurrenceInterval *int       `json:"recurrence_interval,omitempty"`
	DueAt              *time.Time `json:"due_at,omitempty"`
	NextOccurrenceAt   *time.Time `json:"next_occurrence_at,omitempty"`
	ParentTaskID       *string    `json:"parent_task_id,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TaskListResponse is a page of tasks.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ToggleResponse reports the toggled task and, for recurring tasks, the
// occurrence created in its place.
type ToggleResponse struct {
	Task           TaskResponse  `json:"task"`
	NextOccurrence *TaskResponse `json:"next_occurrence,omitempty"`
}

// ReminderResponse is the wire form of a reminder.
type ReminderResponse struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	RemindAt  time.Time  `json:"remind_at"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// ReminderListResponse wraps reminder listings.
type ReminderListResponse struct {
	Reminders []ReminderResponse `json:"reminders"`
}

// ExecuteResponse reports a batch of automated recommendation decisions.
type ExecuteResponse struct {
	DryRun  bool                       `json:"dry_run"`
	Applied int                        `json:"applied"`
	Results []insights.ExecutionResult `json:"results"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:                 t.ID.String(),
		Title:              t.Title,
		Description:        t.Description,
		IsCompleted:        t.IsCompleted,
		Priority:           string(t.Priority),
		RecurrenceType:     string(t.RecurrenceType),
		RecurrenceInterval: t.RecurrenceInterval,
		DueAt:              t.DueAt,
		NextOccurrenceAt:   t.NextOccurrenceAt,
		CompletedAt:        t.CompletedAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if t.ParentTaskID != nil {
		parent := t.ParentTaskID.String()
		resp.ParentTaskID = &parent
	}
	return resp
}

func reminderToResponse(r *domain.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:        r.ID.String(),
		TaskID:    r.TaskID.String(),
		RemindAt:  r.RemindAt,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		SentAt:    r.SentAt,
	}
}

func remindersToResponse(rs []*domain.Reminder) ReminderListResponse {
	out := ReminderListResponse{Reminders: make([]ReminderResponse, 0, len(rs))}
	for _, r := range rs {
		out.Reminders = append(out.Reminders, reminderToResponse(r))
	}
	return out
}
