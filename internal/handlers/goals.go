package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/service"
)

// GoalsHandler handles HTTP requests for goals, the dashboard, and reminders.
type GoalsHandler struct {
	goals *service.GoalService
}

// NewGoalsHandler creates a new GoalsHandler.
func NewGoalsHandler(goals *service.GoalService) *GoalsHandler {
	return &GoalsHandler{goals: goals}
}

// List returns goals, optionally filtered by status.
func (h *GoalsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	goals, err := h.goals.List(ctx, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list goals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

// Get returns one goal.
func (h *GoalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	goal, err := h.goals.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get goal")
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// Dashboard returns goal progress and rolling health metrics.
func (h *GoalsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dashboard, err := h.goals.Dashboard(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// Reminders returns what needs the user's attention.
func (h *GoalsHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reminders, err := h.goals.Reminders(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to build reminders")
		return
	}
	writeJSON(w, http.StatusOK, reminders)
}
