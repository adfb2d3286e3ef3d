package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskstate/internal/api/shared"
	"github.com/phrazzld/taskstate/internal/domain"
	"github.com/phrazzld/taskstate/internal/platform/logger"
	"github.com/phrazzld/taskstate/internal/store"
)

// defaultSeenWindow is how long an acknowledged task keeps appearing in
// the display list after being marked seen.
const defaultSeenWindow = 30 * time.Second

// TaskHandler serves read-only task listings for status widgets.
type TaskHandler struct {
	store  store.TaskStore
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskStore store.TaskStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		store:  taskStore,
		logger: logger.With("component", "task_handler"),
	}
}

// taskResponse is the REST representation of one task record.
type taskResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Description string     `json:"description,omitempty"`
	ModelName   string     `json:"model_name,omitempty"`
	AppName     string     `json:"app_name,omitempty"`
	Seen        bool       `json:"seen"`
	SeenAt      *time.Time `json:"seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// listTasksResponse wraps the task list.
type listTasksResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

// ListForDisplay handles GET /tasks: the authenticated user's tasks that
// are unseen or were acknowledged within the last few seconds.
func (h *TaskHandler) ListForDisplay(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	records, err := h.store.ListForDisplay(r.Context(), userID, defaultSeenWindow)
	if err != nil {
		log.Error("failed to list tasks for display", "owner_id", userID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	resp := listTasksResponse{Tasks: make([]taskResponse, 0, len(records))}
	for _, record := range records {
		resp.Tasks = append(resp.Tasks, toTaskResponse(record))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

func toTaskResponse(record *domain.TaskRecord) taskResponse {
	return taskResponse{
		ID:          record.JobID.String(),
		Status:      string(record.Status),
		Progress:    record.Progress,
		Description: record.Description,
		ModelName:   record.ModelName,
		AppName:     record.AppName,
		Seen:        record.Seen,
		SeenAt:      record.SeenAt,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
