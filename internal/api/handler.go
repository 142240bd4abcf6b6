// Package api serves the ops HTTP API: health, run triggering and run status.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"lake-wap/internal/domain"
	"lake-wap/internal/middleware"
	"lake-wap/internal/service/pipeline"
)

// RunService is the pipeline surface the API needs. Implemented by
// *pipeline.Service.
type RunService interface {
	TriggerRun(ctx context.Context, req domain.TriggerRunRequest) (*domain.PipelineRun, error)
	GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)
	ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error)
	Datasets() []domain.DatasetSpec
}

var _ RunService = (*pipeline.Service)(nil)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the ops API.
type Handler struct {
	runs   RunService
	checks map[string]HealthCheck
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a Handler. checks are run by /readyz.
func NewHandler(runs RunService, checks map[string]HealthCheck, logger *slog.Logger) *Handler {
	return &Handler{runs: runs, checks: checks, logger: logger, now: time.Now}
}

// Router returns the chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/datasets", h.listDatasets)
		r.With(middleware.Throttle(1, 5)).Post("/runs", h.triggerRun)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{runID}", h.getRun)
	})
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, results)
}

func (h *Handler) listDatasets(w http.ResponseWriter, _ *http.Request) {
	specs := h.runs.Datasets()
	out := make([]Dataset, 0, len(specs))
	for _, d := range specs {
		out = append(out, datasetToAPI(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	var body TriggerRunBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, domain.ErrValidation("invalid request body: %v", err))
			return
		}
	}

	date := pipeline.LogicalDateFor(h.now())
	if body.LogicalDate != "" {
		d, err := time.Parse(time.DateOnly, body.LogicalDate)
		if err != nil {
			writeError(w, domain.ErrValidation("logical_date must be YYYY-MM-DD, got %q", body.LogicalDate))
			return
		}
		date = d
	}

	run, err := h.runs.TriggerRun(r.Context(), domain.TriggerRunRequest{
		LogicalDate: date,
		TriggerType: domain.TriggerTypeManual,
		Datasets:    body.Datasets,
		Force:       body.Force,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if run.State == domain.RunStatePublished {
		status = http.StatusOK
	}
	writeJSON(w, status, RunToAPI(*run))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, domain.ErrValidation("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]PipelineRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunToAPI(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := h.runs.ListTaskRuns(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	out := RunToAPI(*run)
	out.Tasks = make([]TaskRun, 0, len(tasks))
	for _, tr := range tasks {
		out.Tasks = append(out.Tasks, TaskRunToAPI(tr))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
