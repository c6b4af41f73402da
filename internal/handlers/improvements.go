package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/service"
)

// ImprovementsHandler handles HTTP requests for improvement proposals.
type ImprovementsHandler struct {
	improvements *service.ImprovementService
}

// NewImprovementsHandler creates a new ImprovementsHandler.
func NewImprovementsHandler(improvements *service.ImprovementService) *ImprovementsHandler {
	return &ImprovementsHandler{improvements: improvements}
}

// List returns current improvement versions, optionally filtered by status.
func (h *ImprovementsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	improvements, err := h.improvements.List(ctx, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list improvements")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"improvements": improvements})
}

// CreateImprovementRequest represents the payload for a new improvement.
type CreateImprovementRequest struct {
	Title         string `json:"title"`
	Rationale     string `json:"rationale"`
	SourceEntryID string `json:"source_entry_id"`
}

// Create records a new improvement proposal.
func (h *ImprovementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateImprovementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	imp, err := h.improvements.Create(ctx, req.Title, req.Rationale, req.SourceEntryID)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to create improvement")
		return
	}
	writeJSON(w, http.StatusCreated, imp)
}

// Get returns the current version of an improvement.
func (h *ImprovementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imp, err := h.improvements.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get improvement")
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

// UpdateStatusRequest represents the payload for an improvement status change.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves an improvement through its lifecycle.
func (h *ImprovementsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	imp, err := h.improvements.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to update improvement status")
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

// Nudge stamps an improvement as surfaced so reminders leave it alone for a week.
func (h *ImprovementsHandler) Nudge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.improvements.Nudge(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, ctx, err, "Failed to nudge improvement")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
