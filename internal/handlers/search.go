package handlers

import (
	"net/http"

	"lifevault/internal/service"
	"lifevault/internal/storage"
)

// SearchHandler handles HTTP requests for full-text search.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// ServeHTTP runs a full-text query over indexed entries.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := storage.SearchFilter{
		Type:   r.URL.Query().Get("type"),
		Tag:    r.URL.Query().Get("tag"),
		GoalID: r.URL.Query().Get("goal"),
		Limit:  queryInt(r, "limit"),
	}
	response, err := h.search.Search(ctx, r.URL.Query().Get("q"), filter)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to search")
		return
	}
	writeJSON(w, http.StatusOK, response)
}
