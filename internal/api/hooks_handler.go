package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/api/shared"
	"github.com/phrazzld/taskstate/internal/platform/logger"
	"github.com/phrazzld/taskstate/internal/store"
	"github.com/phrazzld/taskstate/internal/tracker"
)

// HooksHandler exposes the job-queue integration surface over HTTP so an
// external queue's workers can report lifecycle transitions. Each
// endpoint maps to one tracker hook. A callback for an untracked job
// (no correlation bundle) succeeds without recording anything; tracking
// is best-effort and must never make a job fail.
type HooksHandler struct {
	tracker *tracker.Tracker
	logger  *slog.Logger
}

// NewHooksHandler creates a new HooksHandler.
func NewHooksHandler(t *tracker.Tracker, logger *slog.Logger) *HooksHandler {
	return &HooksHandler{
		tracker: t,
		logger:  logger.With("component", "hooks_handler"),
	}
}

// lifecycleRequest is the shared callback body. DelayMS is read by the
// enqueued hook, Error by the finished hook; the rest ignore them.
type lifecycleRequest struct {
	tracker.JobEvent
	DelayMS int64  `json:"delay_ms,omitempty"`
	Error   string `json:"error,omitempty"`
}

// progressRequest is the body of the progress callback.
type progressRequest struct {
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
}

// Enqueued handles POST /internal/queue/enqueued.
func (h *HooksHandler) Enqueued(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLifecycle(w, r)
	if !ok {
		return
	}
	delay := time.Duration(req.DelayMS) * time.Millisecond
	h.respond(w, r, h.tracker.OnEnqueued(r.Context(), req.JobEvent, delay))
}

// Started handles POST /internal/queue/started.
func (h *HooksHandler) Started(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLifecycle(w, r)
	if !ok {
		return
	}
	h.respond(w, r, h.tracker.OnStarted(r.Context(), req.JobEvent))
}

// Finished handles POST /internal/queue/finished.
func (h *HooksHandler) Finished(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLifecycle(w, r)
	if !ok {
		return
	}
	var jobErr error
	if req.Error != "" {
		jobErr = errors.New(req.Error)
	}
	h.respond(w, r, h.tracker.OnFinished(r.Context(), req.JobEvent, jobErr))
}

// Skipped handles POST /internal/queue/skipped.
func (h *HooksHandler) Skipped(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLifecycle(w, r)
	if !ok {
		return
	}
	h.respond(w, r, h.tracker.OnSkipped(r.Context(), req.JobEvent))
}

// Progress handles POST /internal/queue/progress.
func (h *HooksHandler) Progress(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req progressRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxHookBody)).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	jobID, err := parseJobID(req.JobID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job_id")
		return
	}

	if err := h.tracker.ReportProgress(r.Context(), jobID, req.Progress); err != nil {
		if errors.Is(err, store.ErrInvalidEntity) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Progress must be between 0 and 100")
			return
		}
		log.Error("failed to record progress", "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to record progress")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// maxHookBody bounds callback body size; correlation bundles are small.
const maxHookBody = 256 * 1024

func (h *HooksHandler) decodeLifecycle(
	w http.ResponseWriter,
	r *http.Request,
) (lifecycleRequest, bool) {
	var req lifecycleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxHookBody)).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.JobID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "job_id is required")
		return req, false
	}
	return req, true
}

func parseJobID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

func (h *HooksHandler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		log := logger.FromContextOrDefault(r.Context(), h.logger)
		log.Error("failed to record lifecycle transition", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to record transition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
