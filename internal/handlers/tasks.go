package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lifevault/internal/service"
	"lifevault/internal/storage"
)

// TasksHandler handles HTTP requests for tasks.
type TasksHandler struct {
	tasks *service.TaskService
	runs  *storage.RunRepo
}

// NewTasksHandler creates a new TasksHandler.
func NewTasksHandler(tasks *service.TaskService, runs *storage.RunRepo) *TasksHandler {
	return &TasksHandler{tasks: tasks, runs: runs}
}

// List returns current task versions, open-first.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := storage.TaskFilter{
		Status:        r.URL.Query().Get("status"),
		GoalID:        r.URL.Query().Get("goal"),
		SourceEntryID: r.URL.Query().Get("entry"),
		Limit:         queryInt(r, "limit"),
	}
	tasks, err := h.tasks.List(ctx, filter)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// Get returns the current version of a task lineage.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	task, err := h.tasks.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// History returns every version of a task lineage, newest first.
func (h *TasksHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chain, err := h.tasks.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get task history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": chain})
}

// Complete marks a task done by writing a successor version.
func (h *TasksHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := "manual-" + uuid.NewString()
	if err := h.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		handleServiceError(w, ctx, err, "Failed to record run")
		return
	}
	task, err := h.tasks.Complete(ctx, chi.URLParam(r, "id"), runID)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to complete task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// QuickComplete flips a task version to done in place, without a new version.
// The id here is a version row id, not a lineage id.
func (h *TasksHandler) QuickComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.tasks.QuickComplete(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, ctx, err, "Failed to complete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a task lineage entirely.
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.tasks.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, ctx, err, "Failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkProjectRequest represents the payload for linking a task to a project.
type LinkProjectRequest struct {
	ProjectID string `json:"project_id"`
}

// LinkProject attaches a task lineage to a project.
func (h *TasksHandler) LinkProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LinkProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.tasks.LinkProject(ctx, chi.URLParam(r, "id"), req.ProjectID); err != nil {
		handleServiceError(w, ctx, err, "Failed to link project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
