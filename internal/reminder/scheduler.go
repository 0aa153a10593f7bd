package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/taskpulse/internal/domain"
)

// JobScheduler mirrors pending reminders into an external scheduler.
type JobScheduler interface {
	// Schedule registers a one-shot job and returns its id.
	Schedule(ctx context.Context, r *domain.Reminder) (string, error)

	// Delete removes the job for a reminder. A missing job is not an error.
	Delete(ctx context.Context, r *domain.Reminder) error
}

// NopScheduler is used when external scheduling is disabled.
type NopScheduler struct{}

func (NopScheduler) Schedule(context.Context, *domain.Reminder) (string, error) { return "", nil }

func (NopScheduler) Delete(context.Context, *domain.Reminder) error { return nil }

// JobTypeReminderDue is the type carried in scheduled job data.
const JobTypeReminderDue = "reminder.due"

// JobName returns the scheduler job name for a reminder.
func JobName(r *domain.Reminder) string {
	return "reminder-" + r.ID.String()
}

// DaprJobsClient talks to the Dapr sidecar's alpha Jobs API.
type DaprJobsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDaprJobsClient creates a client for the sidecar at baseURL.
func NewDaprJobsClient(baseURL string, client *http.Client) *DaprJobsClient {
	if baseURL == "" {
		baseURL = "http://localhost:3500"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DaprJobsClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

type jobSpec struct {
	Schedule string            `json:"schedule"`
	Data     map[string]string `json:"data"`
}

func (c *DaprJobsClient) jobURL(name string) string {
	return fmt.Sprintf("%s/v1.0-alpha1/jobs/%s", c.baseURL, name)
}

// Schedule registers an @once job at the reminder's time.
func (c *DaprJobsClient) Schedule(ctx context.Context, r *domain.Reminder) (string, error) {
	name := JobName(r)
	body, err := json.Marshal(jobSpec{
		Schedule: fmt.Sprintf("@once(%s)", r.RemindAt.UTC().Format(time.RFC3339)),
		Data: map[string]string{
			"reminder_id": r.ID.String(),
			"task_id":     r.TaskID.String(),
			"user_id":     r.UserID.String(),
			"type":        JobTypeReminderDue,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobURL(name), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, false); err != nil {
		return "", fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	return name, nil
}

// Delete removes the reminder's job. A 404 means it already fired or never
// existed.
func (c *DaprJobsClient) Delete(ctx context.Context, r *domain.Reminder) error {
	name := JobName(r)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.jobURL(name), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.do(req, true); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", name, err)
	}
	return nil
}

func (c *DaprJobsClient) do(req *http.Request, allowNotFound bool) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if allowNotFound && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sidecar returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
