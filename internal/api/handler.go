// Package api provides the HTTP handlers and routing for the cockpit API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"cockpit/internal/apperrors"
	"cockpit/internal/health"
	"cockpit/internal/job"
)

// taskIDParam is the optional query parameter naming a job. Empty means the
// current job.
const taskIDParam = "task_id"

// Coordinator is the job admission surface the handlers serve.
type Coordinator interface {
	Start(ctx context.Context) (*job.Info, error)
	Status(ctx context.Context, id string) (*job.Info, error)
	Output(ctx context.Context, id string) (string, error)
	Error(ctx context.Context, id string) (string, error)
	Cancel(ctx context.Context, id string) (*job.Info, error)
}

// Handler contains HTTP handlers for the cockpit API.
type Handler struct {
	coordinator Coordinator
	health      *health.Checker
}

// NewHandler creates a new API handler.
func NewHandler(coordinator Coordinator, healthChecker *health.Checker) *Handler {
	return &Handler{
		coordinator: coordinator,
		health:      healthChecker,
	}
}

// Start handles GET /start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	info, err := h.coordinator.Start(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Progress handles GET /progress.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	info, err := h.coordinator.Status(r.Context(), taskID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Output handles GET /output.
func (h *Handler) Output(w http.ResponseWriter, r *http.Request) {
	out, err := h.coordinator.Output(r.Context(), taskID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeText(w, out)
}

// Error handles GET /error.
func (h *Handler) Error(w http.ResponseWriter, r *http.Request) {
	detail, err := h.coordinator.Error(r.Context(), taskID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeText(w, detail)
}

// Kill handles GET /kill.
func (h *Handler) Kill(w http.ResponseWriter, r *http.Request) {
	info, err := h.coordinator.Cancel(r.Context(), taskID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Ping handles GET /ping.
func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, "I am alive")
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if the store or the queue is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, response)
}

func taskID(r *http.Request) string {
	return r.URL.Query().Get(taskIDParam)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError writes err with its HTTP status.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.WarnContext(r.Context(), "Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}

// StatusFor maps an error to its HTTP status. Admission refusals are 401 and
// lookup failures are 400, as existing clients expect; everything else
// follows apperrors.HTTPStatus.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, job.ErrJobAlreadyRunning), errors.Is(err, job.ErrLockContention):
		return http.StatusUnauthorized
	case errors.Is(err, job.ErrJobNotFound),
		errors.Is(err, job.ErrNoJobEverRan),
		errors.Is(err, job.ErrOutputNotAvailable):
		return http.StatusBadRequest
	default:
		return apperrors.HTTPStatus(err)
	}
}
