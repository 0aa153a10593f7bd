package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditConsumer_TaskEventIsIdempotent(t *testing.T) {
	audit := mocks.NewAuditStore()
	c := NewAuditConsumer(audit, discardLogger())
	p, _ := newTestPublisher(nil)
	env := taskEnvelope(p, domain.EventTaskCreated, "Audit me")

	require.NoError(t, c.Process(context.Background(), nil, env, nil))
	require.NoError(t, c.Process(context.Background(), nil, env, nil))

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "task.created", entries[0].Action)
	assert.Equal(t, domain.EntityTask, entries[0].EntityType)
	assert.Equal(t, env.Data.AggregateID, entries[0].EntityID)
	assert.Equal(t, env.Data.UserID, entries[0].UserID)

	details := audit.Details(0)
	assert.Equal(t, env.ID.String(), details["event_id"])
	assert.Equal(t, "task.created.v1", details["event_type"])
	data := details["data"].(map[string]any)
	assert.Equal(t, "Audit me", data["title"])
}

func TestAuditConsumer_ReminderEventUsesReminderID(t *testing.T) {
	audit := mocks.NewAuditStore()
	c := NewAuditConsumer(audit, discardLogger())
	p, _ := newTestPublisher(nil)
	reminderID, taskID := uuid.New(), uuid.New()
	env, err := p.Create(domain.EventReminderScheduled, taskID, uuid.New(), ReminderScheduledPayload{
		ReminderID: reminderID,
		TaskID:     taskID,
		RemindAt:   fixedNow.Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Process(context.Background(), nil, env, nil))

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "reminder.scheduled", entries[0].Action)
	assert.Equal(t, domain.EntityReminder, entries[0].EntityType)
	assert.Equal(t, reminderID, entries[0].EntityID)
}

func TestNotificationConsumer_Messages(t *testing.T) {
	tests := []struct {
		name        string
		eventType   domain.EventType
		wantSubject string
		wantMessage string
	}{
		{"created", domain.EventTaskCreated, "New Task Created", "A new task has been created: Buy milk"},
		{"completed", domain.EventTaskCompleted, "Task Completed", "Great job! You completed: Buy milk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifications := mocks.NewNotificationStore()
			c := NewNotificationConsumer(notifications, discardLogger())
			p, _ := newTestPublisher(nil)
			env := taskEnvelope(p, tt.eventType, "Buy milk")

			require.True(t, c.Handles(tt.eventType))
			require.NoError(t, c.Process(context.Background(), nil, env, nil))

			all := notifications.All()
			require.Len(t, all, 1)
			n := all[0]
			assert.Equal(t, tt.wantSubject, n.Subject)
			assert.Equal(t, tt.wantMessage, n.Message)
			assert.Equal(t, domain.ChannelEmail, n.Channel)
			assert.Equal(t, domain.DeliveryStatusPending, n.Status)
			assert.Equal(t, "user_"+env.Data.UserID.String()+"@placeholder.local", n.Recipient)
			require.NotNil(t, n.SourceEventID)
			assert.Equal(t, env.ID, *n.SourceEventID)
		})
	}
}

func TestNotificationConsumer_SkipsReplayedEvent(t *testing.T) {
	notifications := mocks.NewNotificationStore()
	c := NewNotificationConsumer(notifications, discardLogger())
	p, _ := newTestPublisher(nil)
	env := taskEnvelope(p, domain.EventTaskCreated, "Once")

	require.NoError(t, c.Process(context.Background(), nil, env, nil))
	require.NoError(t, c.Process(context.Background(), nil, env, nil))

	assert.Len(t, notifications.All(), 1)
	assert.False(t, c.Handles(domain.EventTaskUpdated))
}

func TestRecurrenceConsumer(t *testing.T) {
	audit := mocks.NewAuditStore()
	c := NewRecurrenceConsumer(audit, discardLogger())
	p, _ := newTestPublisher(nil)
	completed := fixedNow

	plain, err := p.Create(domain.EventTaskCompleted, uuid.New(), uuid.New(),
		TaskPayload{Title: "One-off", IsCompleted: true}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Process(context.Background(), nil, plain, nil))
	assert.Empty(t, audit.Entries())

	recurring, err := p.Create(domain.EventTaskCompleted, uuid.New(), uuid.New(), TaskPayload{
		Title:          "Standup",
		IsCompleted:    true,
		RecurrenceType: domain.RecurrenceDaily,
		CompletedAt:    &completed,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Process(context.Background(), nil, recurring, nil))
	require.NoError(t, c.Process(context.Background(), nil, recurring, nil))

	require.Equal(t, []string{ActionTaskRecurred}, audit.Actions())
	details := audit.Details(0)
	assert.Equal(t, "daily", details["recurrence_type"])
	assert.Equal(t, "2026-03-14T09:30:00Z", details["completed_at"])
	assert.Equal(t, recurring.ID.String(), details["event_id"])
}
