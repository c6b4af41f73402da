package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/service"
	"lifevault/internal/storage"
)

// EntriesHandler handles HTTP requests for indexed entries and inbox processing.
type EntriesHandler struct {
	entries *service.EntryService
}

// NewEntriesHandler creates a new EntriesHandler.
func NewEntriesHandler(entries *service.EntryService) *EntriesHandler {
	return &EntriesHandler{entries: entries}
}

// List returns indexed entries, newest first.
func (h *EntriesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := storage.EntryFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
		GoalID: r.URL.Query().Get("goal"),
		Limit:  queryInt(r, "limit"),
	}
	entries, err := h.entries.List(ctx, filter)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Get returns one indexed entry.
func (h *EntriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.entries.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ProcessInbox distills every inbox entry into structured sections.
func (h *EntriesHandler) ProcessInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.entries.ProcessInbox(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process inbox")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Process distills a single inbox entry.
func (h *EntriesHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome, err := h.entries.ProcessEntry(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process entry")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
