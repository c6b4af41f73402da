package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/service"
)

// IdeasHandler handles HTTP requests for the idea backlog.
type IdeasHandler struct {
	ideas *service.IdeaService
}

// NewIdeasHandler creates a new IdeasHandler.
func NewIdeasHandler(ideas *service.IdeaService) *IdeasHandler {
	return &IdeasHandler{ideas: ideas}
}

// List returns current idea versions, optionally filtered by status.
func (h *IdeasHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ideas, err := h.ideas.List(ctx, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list ideas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ideas": ideas})
}

// CreateIdeaRequest represents the payload for a new idea.
type CreateIdeaRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	SourceEntryID string `json:"source_entry_id"`
}

// Create files a new idea.
func (h *IdeasHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateIdeaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	idea, err := h.ideas.Create(ctx, req.Title, req.Description, req.SourceEntryID)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to create idea")
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

// Get returns the current version of an idea.
func (h *IdeasHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idea, err := h.ideas.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get idea")
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// History returns every version of an idea lineage.
func (h *IdeasHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chain, err := h.ideas.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get idea history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": chain})
}

// UpdateIdeaRequest represents the payload for an idea update. Empty fields
// keep their current value.
type UpdateIdeaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Update writes a successor version of an idea.
func (h *IdeasHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateIdeaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	idea, err := h.ideas.Update(ctx, chi.URLParam(r, "id"), req.Title, req.Description, req.Status)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to update idea")
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// ConvertIdeaRequest names the entity kind a conversion produces.
type ConvertIdeaRequest struct {
	Target string `json:"target"`
}

// Convert graduates an idea version into a goal, project or task. The id in
// the path is a version row id, not a lineage id.
func (h *IdeasHandler) Convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ConvertIdeaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.ideas.Convert(ctx, chi.URLParam(r, "id"), req.Target)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to convert idea")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// LinkEntryRequest represents the payload for linking an entry to an idea.
type LinkEntryRequest struct {
	EntryID  string `json:"entry_id"`
	LinkType string `json:"link_type"`
}

// LinkEntry ties an entry to an idea.
func (h *IdeasHandler) LinkEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LinkEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ideas.LinkEntry(ctx, chi.URLParam(r, "id"), req.EntryID, req.LinkType); err != nil {
		handleServiceError(w, ctx, err, "Failed to link entry to idea")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
