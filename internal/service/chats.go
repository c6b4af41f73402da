package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"lifevault/internal/contextutil"
	"lifevault/internal/distill"
	"lifevault/internal/storage"
	"lifevault/internal/vault"
)

// ChatService runs assistant conversations. Messages live app-side in
// SQLite; each thread is mirrored into the vault as a transcript note so the
// conversation survives a database rebuild as readable markdown.
type ChatService struct {
	manager *vault.Manager
	chats   *storage.ChatRepo
	goals   *storage.GoalRepo
	runs    *storage.RunRepo
	llm     LLMClient
	tasks   *TaskService
	indexer Reindexer
}

// NewChatService creates a new ChatService.
func NewChatService(
	manager *vault.Manager,
	chats *storage.ChatRepo,
	goals *storage.GoalRepo,
	runs *storage.RunRepo,
	llmClient LLMClient,
	tasks *TaskService,
	indexer Reindexer,
) *ChatService {
	return &ChatService{
		manager: manager,
		chats:   chats,
		goals:   goals,
		runs:    runs,
		llm:     llmClient,
		tasks:   tasks,
		indexer: indexer,
	}
}

// StartThread opens a new conversation, optionally attached to a goal.
func (s *ChatService) StartThread(ctx context.Context, title, goalID string) (*storage.ChatThreadRecord, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	if goalID != "" {
		ok, err := s.goals.Exists(ctx, goalID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ValidationError{Field: "goal_id", Message: "unknown goal"}
		}
	}

	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		return nil, err
	}

	logicalID := "chat-" + uuid.New().String()
	rec, _, err := s.chats.WriteThreadVersion(ctx, &storage.ChatThreadRecord{
		LogicalID:   logicalID,
		Path:        s.manager.ChatThreadPath(logicalID),
		SourceRunID: runID,
		GoalID:      goalID,
		Title:       strings.TrimSpace(title),
		Status:      "active",
	})
	if err != nil {
		return nil, err
	}
	if err := s.mirrorThread(ctx, rec, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListThreads returns current thread versions, newest first.
func (s *ChatService) ListThreads(ctx context.Context, limit int) ([]*storage.ChatThreadRecord, error) {
	return s.chats.ListThreads(ctx, limit)
}

// Thread is a conversation with its messages.
type Thread struct {
	Record   *storage.ChatThreadRecord    `json:"thread"`
	Messages []*storage.ChatMessageRecord `json:"messages"`
}

// GetThread returns one conversation with its full message history.
func (s *ChatService) GetThread(ctx context.Context, logicalID string) (*Thread, error) {
	rec, err := s.chats.CurrentThread(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.Messages(ctx, logicalID)
	if err != nil {
		return nil, err
	}
	return &Thread{Record: rec, Messages: messages}, nil
}

// SendResult is the assistant's reply plus any tasks spawned by the message.
type SendResult struct {
	Reply    string      `json:"reply"`
	TaskSync *SyncResult `json:"task_sync"`
}

// SendMessage appends the user message, gets the assistant reply, and syncs
// any checkbox actions found in the user message into tasks attributed to
// the thread.
func (s *ChatService) SendMessage(ctx context.Context, logicalID, message string) (*SendResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Field: "message", Message: "cannot be empty"}
	}
	thread, err := s.chats.CurrentThread(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	runID := "llm-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindLLM,
		Actor:   "assistant",
	}); err != nil {
		return nil, err
	}
	if err := s.chats.AppendMessage(ctx, &storage.ChatMessageRecord{
		ThreadLogicalID: logicalID,
		Role:            "user",
		Content:         message,
	}); err != nil {
		return nil, err
	}

	reply, err := s.llm.Chat(ctx, message)
	if err != nil {
		logger.ErrorContext(ctx, "assistant reply failed", "thread_id", logicalID, "error", err)
		return nil, WrapError(err, "failed to get assistant reply")
	}
	if err := s.chats.AppendMessage(ctx, &storage.ChatMessageRecord{
		ThreadLogicalID: logicalID,
		Role:            "assistant",
		Content:         reply,
	}); err != nil {
		return nil, err
	}

	// Checkbox actions typed into chat become tasks, attributed to the
	// thread instead of an entry.
	actionsMD := distill.Distill(message, nil).ActionsMD
	taskSync := &SyncResult{}
	if actionsMD != "" {
		seed := &storage.EntryRecord{ID: thread.LogicalID}
		taskSync, err = s.tasks.SyncFromActions(ctx, seed, actionsMD, runID, "")
		if err != nil {
			return nil, err
		}
	}

	// Refresh the thread summary and the vault transcript mirror.
	draft := *thread
	draft.Summary = captureSummary(message)
	draft.SourceRunID = runID
	updated, _, err := s.chats.WriteThreadVersion(ctx, &draft)
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.Messages(ctx, logicalID)
	if err != nil {
		return nil, err
	}
	if err := s.mirrorThread(ctx, updated, messages); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "chat message processed", "thread_id", logicalID, "run_id", runID)
	return &SendResult{Reply: reply, TaskSync: taskSync}, nil
}

// mirrorThread rewrites the thread's vault transcript note and reindexes it.
func (s *ChatService) mirrorThread(ctx context.Context, rec *storage.ChatThreadRecord, messages []*storage.ChatMessageRecord) error {
	var transcript strings.Builder
	for i, msg := range messages {
		if i > 0 {
			transcript.WriteString("\n\n")
		}
		transcript.WriteString("**" + msg.Role + "**: " + msg.Content)
	}
	body := transcript.String()
	if body == "" {
		body = "(no messages yet)"
	}

	text := vault.RenderEntityNote(map[string]any{
		"entity_type":   "chat_thread",
		"id":            rec.ID,
		"logical_id":    rec.LogicalID,
		"title":         rec.Title,
		"status":        rec.Status,
		"summary":       rec.Summary,
		"goal_id":       rec.GoalID,
		"version_no":    rec.VersionNo,
		"is_current":    rec.IsCurrent,
		"supersedes_id": rec.SupersedesID,
		"payload_hash":  rec.PayloadHash,
		"source_run_id": rec.SourceRunID,
		"created":       rec.CreatedAt,
		"updated":       rec.UpdatedAt,
	}, []string{"Transcript"}, map[string]string{"Transcript": body})

	path := s.manager.ChatThreadPath(rec.LogicalID)
	if err := s.manager.AtomicWriteText(path, text); err != nil {
		return WrapError(err, "failed to mirror chat thread")
	}
	return s.indexer.IndexPaths(ctx, []string{path})
}
