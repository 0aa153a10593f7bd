package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/events"
	"github.com/phrazzld/taskpulse/internal/insights"
	"github.com/phrazzld/taskpulse/internal/platform/logger"
	"github.com/phrazzld/taskpulse/internal/service"
	"github.com/phrazzld/taskpulse/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-bytes!!"

type mockTaskService struct{ mock.Mock }

func (m *mockTaskService) CreateTask(ctx context.Context, userID uuid.UUID, in service.TaskCreate) (*domain.Task, error) {
	args := m.Called(ctx, userID, in)
	t, _ := args.Get(0).(*domain.Task)
	return t, args.Error(1)
}

func (m *mockTaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, in service.TaskUpdate) (*domain.Task, error) {
	args := m.Called(ctx, userID, taskID, in)
	t, _ := args.Get(0).(*domain.Task)
	return t, args.Error(1)
}

func (m *mockTaskService) ToggleCompletion(ctx context.Context, userID, taskID uuid.UUID) (*service.ToggleResult, error) {
	args := m.Called(ctx, userID, taskID)
	res, _ := args.Get(0).(*service.ToggleResult)
	return res, args.Error(1)
}

func (m *mockTaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	return m.Called(ctx, userID, taskID).Error(0)
}

func (m *mockTaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	args := m.Called(ctx, userID, taskID)
	t, _ := args.Get(0).(*domain.Task)
	return t, args.Error(1)
}

func (m *mockTaskService) ListTasks(ctx context.Context, userID uuid.UUID, opts service.ListOptions) ([]*domain.Task, int, error) {
	args := m.Called(ctx, userID, opts)
	ts, _ := args.Get(0).([]*domain.Task)
	return ts, args.Int(1), args.Error(2)
}

type mockReminderService struct{ mock.Mock }

func (m *mockReminderService) CreateReminder(ctx context.Context, userID, taskID uuid.UUID, in service.ReminderCreate) (*domain.Reminder, error) {
	args := m.Called(ctx, userID, taskID, in)
	r, _ := args.Get(0).(*domain.Reminder)
	return r, args.Error(1)
}

func (m *mockReminderService) CancelReminder(ctx context.Context, userID, reminderID uuid.UUID) error {
	return m.Called(ctx, userID, reminderID).Error(0)
}

func (m *mockReminderService) UpcomingReminders(ctx context.Context, userID uuid.UUID, withinHours int) ([]*domain.Reminder, error) {
	args := m.Called(ctx, userID, withinHours)
	rs, _ := args.Get(0).([]*domain.Reminder)
	return rs, args.Error(1)
}

func (m *mockReminderService) TaskReminders(ctx context.Context, userID, taskID uuid.UUID) ([]*domain.Reminder, error) {
	args := m.Called(ctx, userID, taskID)
	rs, _ := args.Get(0).([]*domain.Reminder)
	return rs, args.Error(1)
}

type stubInsights struct {
	aiCtx   *insights.AIContext
	results []insights.ExecutionResult
	dryRuns []bool
}

func (s *stubInsights) PrepareAIContext(context.Context, uuid.UUID) (*insights.AIContext, error) {
	return s.aiCtx, nil
}

func (s *stubInsights) ExecuteAllForUser(_ context.Context, _ uuid.UUID, dryRun bool) ([]insights.ExecutionResult, error) {
	s.dryRuns = append(s.dryRuns, dryRun)
	return s.results, nil
}

type apiFixture struct {
	handler   http.Handler
	tasks     *mockTaskService
	reminders *mockReminderService
	insights  *stubInsights
	health    error
	userID    uuid.UUID
	token     string
	logs      *logger.TestLogBuffer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	jwtSvc, err := auth.NewJWTService(testSecret)
	require.NoError(t, err)

	f := &apiFixture{
		tasks:     &mockTaskService{},
		reminders: &mockReminderService{},
		insights:  &stubInsights{},
		userID:    uuid.New(),
	}
	f.token, err = jwtSvc.GenerateToken(context.Background(), f.userID, time.Hour)
	require.NoError(t, err)

	log, buf := logger.NewTestLogger()
	f.logs = buf
	f.handler = NewRouter(RouterDeps{
		Logger:    log,
		JWT:       jwtSvc,
		Tasks:     f.tasks,
		Reminders: f.reminders,
		Analyzer:  f.insights,
		Executor:  f.insights,
		Health:    func(context.Context) error { return f.health },
	})
	t.Cleanup(func() {
		f.tasks.AssertExpectations(t)
		f.reminders.AssertExpectations(t)
	})
	return f
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sampleTask(userID uuid.UUID, title string) *domain.Task {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	return &domain.Task{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          title,
		Priority:       domain.PriorityMedium,
		RecurrenceType: domain.RecurrenceNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.health = errors.New("database unreachable")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestCreateTask_Created(t *testing.T) {
	f := newAPIFixture(t)
	task := sampleTask(f.userID, "Write report")
	f.tasks.On("CreateTask", mock.Anything, f.userID, service.TaskCreate{Title: "Write report", Priority: domain.PriorityHigh}).
		Return(task, nil)

	rec := f.do(http.MethodPost, "/api/tasks", `{"title":"Write report","priority":"high"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, task.ID.String(), resp.ID)
	assert.Equal(t, "Write report", resp.Title)
}

func TestCreateTask_RejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/tasks", `{"title":"x","owner":"someone"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTask_ValidationErrorNamesField(t *testing.T) {
	f := newAPIFixture(t)
	f.tasks.On("CreateTask", mock.Anything, f.userID, mock.Anything).
		Return(nil, domain.NewValidationError("title", "is required", nil))

	rec := f.do(http.MethodPost, "/api/tasks", `{"title":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid title: is required", decodeError(t, rec)["error"])
}

func TestGetTask_NotFoundCarriesTraceID(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.New()
	f.tasks.On("GetTask", mock.Anything, f.userID, id).Return(nil, service.ErrTaskNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+id.String(), nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Task not found", body["error"])
	assert.Equal(t, "req-123", body["trace_id"])
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.New()
	f.tasks.On("DeleteTask", mock.Anything, f.userID, id).
		Return(errors.New("pq: relation \"tasks\" does not exist"))

	rec := f.do(http.MethodDelete, "/api/tasks/"+id.String(), "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, GenericErrorMessage, decodeError(t, rec)["error"])
	assert.NotContains(t, rec.Body.String(), "relation")
	assert.Contains(t, f.logs.String(), "API error response")
}

func TestInvalidPathID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPatch, "/api/tasks/not-a-uuid", `{"title":"x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTask_PassesCorrelationID(t *testing.T) {
	f := newAPIFixture(t)
	task := sampleTask(f.userID, "Renamed")
	title := "Renamed"

	var correlation string
	f.tasks.On("UpdateTask", mock.Anything, f.userID, task.ID, service.TaskUpdate{Title: &title}).
		Run(func(args mock.Arguments) {
			correlation = events.CorrelationID(args.Get(0).(context.Context))
		}).
		Return(task, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/"+task.ID.String(), strings.NewReader(`{"title":"Renamed"}`))
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("X-Request-Id", "corr-9")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-9", correlation)
}

func TestToggleTask_IncludesNextOccurrence(t *testing.T) {
	f := newAPIFixture(t)
	done := sampleTask(f.userID, "Daily standup")
	done.IsCompleted = true
	next := sampleTask(f.userID, "Daily standup")
	next.ParentTaskID = &done.ID
	f.tasks.On("ToggleCompletion", mock.Anything, f.userID, done.ID).
		Return(&service.ToggleResult{Task: done, Next: next}, nil)

	rec := f.do(http.MethodPost, "/api/tasks/"+done.ID.String()+"/toggle", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ToggleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Task.IsCompleted)
	require.NotNil(t, resp.NextOccurrence)
	require.NotNil(t, resp.NextOccurrence.ParentTaskID)
	assert.Equal(t, done.ID.String(), *resp.NextOccurrence.ParentTaskID)
}

func TestListTasks_ParsesQuery(t *testing.T) {
	f := newAPIFixture(t)
	completed := true
	f.tasks.On("ListTasks", mock.Anything, f.userID, service.ListOptions{
		Completed: &completed,
		Limit:     service.MaxListLimit,
		Offset:    10,
	}).Return([]*domain.Task{sampleTask(f.userID, "a")}, 11, nil)

	rec := f.do(http.MethodGet, "/api/tasks?completed=true&limit=1000&offset=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 11, resp.Total)
	assert.Equal(t, service.MaxListLimit, resp.Limit)
	assert.Len(t, resp.Tasks, 1)
}

func TestListTasks_BadQuery(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/tasks?completed=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/tasks?limit=ten", "").Code)
}

func TestCreateReminder_NoCandidateIsUnprocessable(t *testing.T) {
	f := newAPIFixture(t)
	taskID := uuid.New()
	f.reminders.On("CreateReminder", mock.Anything, f.userID, taskID, service.ReminderCreate{}).
		Return(nil, service.ErrNoReminderCandidate)

	rec := f.do(http.MethodPost, "/api/tasks/"+taskID.String()+"/reminders", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateReminder_WithLeadHours(t *testing.T) {
	f := newAPIFixture(t)
	taskID := uuid.New()
	lead := 3
	rem := &domain.Reminder{
		ID:       uuid.New(),
		TaskID:   taskID,
		UserID:   f.userID,
		RemindAt: time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC),
		Status:   domain.ReminderStatusPending,
	}
	f.reminders.On("CreateReminder", mock.Anything, f.userID, taskID, service.ReminderCreate{LeadHours: &lead}).
		Return(rem, nil)

	rec := f.do(http.MethodPost, "/api/tasks/"+taskID.String()+"/reminders", `{"lead_hours":3}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ReminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
}

func TestCancelReminder(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.New()
	missing := uuid.New()
	f.reminders.On("CancelReminder", mock.Anything, f.userID, id).Return(nil)
	f.reminders.On("CancelReminder", mock.Anything, f.userID, missing).Return(service.ErrReminderNotFound)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/reminders/"+id.String(), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/reminders/"+missing.String(), "").Code)
}

func TestUpcomingReminders(t *testing.T) {
	f := newAPIFixture(t)
	f.reminders.On("UpcomingReminders", mock.Anything, f.userID, 48).Return([]*domain.Reminder{}, nil)
	f.reminders.On("UpcomingReminders", mock.Anything, f.userID, DefaultUpcomingHours).Return(nil, nil)

	rec := f.do(http.MethodGet, "/api/reminders/upcoming?hours=48", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reminders":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/reminders/upcoming", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/reminders/upcoming?hours=soon", "").Code)
}

func TestInsights(t *testing.T) {
	f := newAPIFixture(t)
	f.insights.aiCtx = &insights.AIContext{GeneratedAt: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	f.insights.results = []insights.ExecutionResult{{Applied: true}, {Reason: "dry_run"}}

	rec := f.do(http.MethodGet, "/api/insights/context", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/insights/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.DryRun)
	assert.Equal(t, 1, resp.Applied)

	rec = f.do(http.MethodPost, "/api/insights/execute?dry_run=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []bool{true, false}, f.insights.dryRuns)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/insights/execute?dry_run=perhaps", "").Code)
}
