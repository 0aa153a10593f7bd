package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/phrazzld/taskpulse/internal/api/shared"
	"github.com/phrazzld/taskpulse/internal/domain"
	"github.com/phrazzld/taskpulse/internal/insights"
)

// ContextPreparer builds the AI context for a user.
type ContextPreparer interface {
	PrepareAIContext(ctx context.Context, userID uuid.UUID) (*insights.AIContext, error)
}

// RecommendationRunner evaluates and applies recommendations for a user.
type RecommendationRunner interface {
	ExecuteAllForUser(ctx context.Context, userID uuid.UUID, dryRun bool) ([]insights.ExecutionResult, error)
}

// InsightsHandler serves /api/insights.
type InsightsHandler struct {
	analyzer ContextPreparer
	executor RecommendationRunner
	logger   *slog.Logger
}

// NewInsightsHandler creates an InsightsHandler.
func NewInsightsHandler(analyzer ContextPreparer, executor RecommendationRunner, logger *slog.Logger) *InsightsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightsHandler{
		analyzer: analyzer,
		executor: executor,
		logger:   logger.With(slog.String("component", "insights_handler")),
	}
}

// Context handles GET /api/insights/context.
func (h *InsightsHandler) Context(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	aiCtx, err := h.analyzer.PrepareAIContext(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, aiCtx)
}

// Execute handles POST /api/insights/execute?dry_run=. Runs are dry unless
// dry_run=false is passed.
func (h *InsightsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	dryRun := true
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("dry_run", "must be true or false", nil), "")
			return
		}
		dryRun = v
	}

	results, err := h.executor.ExecuteAllForUser(r.Context(), userID, dryRun)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := ExecuteResponse{DryRun: dryRun, Results: results}
	if resp.Results == nil {
		resp.Results = []insights.ExecutionResult{}
	}
	for _, res := range results {
		if res.Applied {
			resp.Applied++
		}
	}
	h.logger.InfoContext(r.Context(), "recommendations executed",
		slog.String("user_id", userID.String()),
		slog.Bool("dry_run", dryRun),
		slog.Int("applied", resp.Applied),
		slog.Int("total", len(results)))
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
