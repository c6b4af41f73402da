package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/service"
)

// ConflictsHandler handles HTTP requests for vault/index conflicts.
type ConflictsHandler struct {
	conflicts *service.ConflictService
}

// NewConflictsHandler creates a new ConflictsHandler.
func NewConflictsHandler(conflicts *service.ConflictService) *ConflictsHandler {
	return &ConflictsHandler{conflicts: conflicts}
}

// List returns conflicts, optionally filtered by status.
func (h *ConflictsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conflicts, err := h.conflicts.List(ctx, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// Get returns a conflict with both sides and a unified diff.
func (h *ConflictsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	detail, err := h.conflicts.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get conflict")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Detect sweeps every indexed entry for drift against its vault file.
func (h *ConflictsHandler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	detected, err := h.conflicts.DetectAll(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to detect conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"detected": detected})
}

// ResolveRequest represents the payload for resolving a conflict.
type ResolveRequest struct {
	Strategy string `json:"strategy"`
	Actor    string `json:"actor"`
}

// Resolve applies a resolution strategy to an open conflict.
func (h *ConflictsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "user"
	}
	resolved, err := h.conflicts.Resolve(ctx, chi.URLParam(r, "id"), req.Strategy, actor)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to resolve conflict")
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
