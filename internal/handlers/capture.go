package handlers

import (
	"net/http"

	"lifevault/internal/service"
)

// CaptureHandler handles HTTP requests for quick capture.
type CaptureHandler struct {
	captures *service.CaptureService
}

// NewCaptureHandler creates a new CaptureHandler.
func NewCaptureHandler(captures *service.CaptureService) *CaptureHandler {
	return &CaptureHandler{captures: captures}
}

// CaptureRequest represents the HTTP request payload for capture.
type CaptureRequest struct {
	Text  string   `json:"text"`
	Type  string   `json:"type"`
	Tags  []string `json:"tags"`
	Goals []string `json:"goals"`
}

// ServeHTTP writes the submitted text into the vault inbox.
func (h *CaptureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CaptureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.captures.Capture(ctx, service.CaptureRequest{
		Text:  req.Text,
		Type:  req.Type,
		Tags:  req.Tags,
		Goals: req.Goals,
	})
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to capture note")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
