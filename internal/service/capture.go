package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifevault/internal/contextutil"
	"lifevault/internal/storage"
	"lifevault/internal/vault"
)

// CaptureService writes new raw notes into the vault and pushes them into
// the index with inbox status. Capture never interprets the text; that is
// the inbox processor's job.
type CaptureService struct {
	manager *vault.Manager
	runs    *storage.RunRepo
	indexer Reindexer
}

// NewCaptureService creates a new CaptureService.
func NewCaptureService(manager *vault.Manager, runs *storage.RunRepo, indexer Reindexer) *CaptureService {
	return &CaptureService{manager: manager, runs: runs, indexer: indexer}
}

// CaptureRequest is one raw capture.
type CaptureRequest struct {
	Text  string   `json:"text"`
	Type  string   `json:"type"`
	Tags  []string `json:"tags"`
	Goals []string `json:"goals"`
}

// CaptureResult identifies the note a capture produced.
type CaptureResult struct {
	EntryID string `json:"entry_id"`
	Path    string `json:"path"`
	RunID   string `json:"run_id"`
	Summary string `json:"summary"`
}

// captureSummary takes the first line of the text, truncated for frontmatter.
func captureSummary(text string) string {
	line := ""
	for _, candidate := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			line = trimmed
			break
		}
	}
	if line == "" {
		return "Captured note"
	}
	if len(line) > 180 {
		return line[:177] + "..."
	}
	return line
}

// Capture writes the raw text as a new vault note and indexes it.
func (s *CaptureService) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if strings.TrimSpace(req.Text) == "" {
		return nil, &ValidationError{Field: "text", Message: "cannot be empty"}
	}
	entryType := req.Type
	if entryType == "" {
		entryType = "note"
	}

	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	created := now.Format(time.RFC3339)
	entryID := s.manager.NewEntryID()
	summary := captureSummary(req.Text)

	aiText := "Prompt: n/a\nRunId: " + runID + "\nCapturedAt: " + created
	text := vault.RenderEntryNote(vault.EntryFrontmatter{
		ID:          entryID,
		Created:     created,
		Type:        entryType,
		Status:      storage.EntryStatusInbox,
		Goals:       req.Goals,
		Tags:        req.Tags,
		Summary:     summary,
		SourceRunID: runID,
	}, "-", "", req.Text, aiText)

	path := s.manager.EntryPath(now, entryType, vault.Slugify(summary))
	if err := s.manager.AtomicWriteText(path, text); err != nil {
		return nil, WrapError(err, "failed to write captured note")
	}
	if err := s.indexer.IndexPaths(ctx, []string{path}); err != nil {
		return nil, WrapError(err, "failed to index captured note")
	}

	logger.InfoContext(ctx, "captured note", "entry_id", entryID, "type", entryType, "run_id", runID)
	return &CaptureResult{EntryID: entryID, Path: path, RunID: runID, Summary: summary}, nil
}
