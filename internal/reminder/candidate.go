package reminder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// Lead-time policy.
const (
	DefaultLeadHours = 1
	DefaultLeadDays  = 1
	MinimumLead      = 15 * time.Minute
)

// Candidate is a proposed reminder that has not been stored.
type Candidate struct {
	TaskID   uuid.UUID `json:"task_id"`
	UserID   uuid.UUID `json:"user_id"`
	RemindAt time.Time `json:"remind_at"`
	Reason   string    `json:"reason"`
}

// GenerateCandidate proposes a reminder for an open task with a future due
// date. Tasks due within a day get a one hour lead, later tasks a one day
// lead; leadHours overrides both. A reminder that would land at or before
// now is moved to now plus MinimumLead.
func GenerateCandidate(task *domain.Task, leadHours *int, now time.Time) *Candidate {
	if task == nil || task.IsCompleted || task.DueAt == nil {
		return nil
	}
	due := task.DueAt.UTC()
	if !due.After(now) {
		return nil
	}

	var lead time.Duration
	switch {
	case leadHours != nil:
		lead = time.Duration(*leadHours) * time.Hour
	case due.Sub(now) <= 24*time.Hour:
		lead = DefaultLeadHours * time.Hour
	default:
		lead = DefaultLeadDays * 24 * time.Hour
	}

	remindAt := due.Add(-lead)
	if !remindAt.After(now) {
		remindAt = now.Add(MinimumLead)
	}

	return &Candidate{
		TaskID:   task.ID,
		UserID:   task.UserID,
		RemindAt: remindAt.UTC(),
		Reason:   fmt.Sprintf("Due date reminder for task: %s", task.Title),
	}
}
