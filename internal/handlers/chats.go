package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifevault/internal/service"
)

// ChatsHandler handles HTTP requests for assistant chat threads.
type ChatsHandler struct {
	chats *service.ChatService
}

// NewChatsHandler creates a new ChatsHandler.
func NewChatsHandler(chats *service.ChatService) *ChatsHandler {
	return &ChatsHandler{chats: chats}
}

// StartThreadRequest represents the payload for a new chat thread.
type StartThreadRequest struct {
	Title  string `json:"title"`
	GoalID string `json:"goal_id"`
}

// Start opens a new chat thread, optionally attached to a goal.
func (h *ChatsHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req StartThreadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	thread, err := h.chats.StartThread(ctx, req.Title, req.GoalID)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to start thread")
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

// List returns chat threads, newest first.
func (h *ChatsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threads, err := h.chats.ListThreads(ctx, queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list threads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

// Get returns a thread with its full message history.
func (h *ChatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	thread, err := h.chats.GetThread(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get thread")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// SendMessageRequest represents the payload for a chat message.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// Send appends a user message, asks the assistant for a reply, and syncs
// any checkbox actions in the message into tasks.
func (h *ChatsHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.chats.SendMessage(ctx, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
