package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/contextutil"
	"lifevault/internal/indexer"
	"lifevault/internal/storage"
)

// AdminHandler handles HTTP requests for index maintenance and run inspection.
type AdminHandler struct {
	indexer  *indexer.Indexer
	runs     *storage.RunRepo
	insights *storage.InsightRepo
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ix *indexer.Indexer, runs *storage.RunRepo, insights *storage.InsightRepo) *AdminHandler {
	return &AdminHandler{indexer: ix, runs: runs, insights: insights}
}

// Rebuild drops the derived index and reprojects it from the vault.
func (h *AdminHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := h.indexer.Rebuild(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "rebuild failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to rebuild index")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListRuns returns recorded artifact runs, newest first.
func (h *AdminHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runs, err := h.runs.List(ctx, queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns one artifact run.
func (h *AdminHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := h.runs.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListInsights returns current insight versions.
func (h *AdminHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insights, err := h.insights.ListCurrent(ctx, queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list insights")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}
