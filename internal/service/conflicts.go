package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"lifevault/internal/contextutil"
	"lifevault/internal/hashing"
	"lifevault/internal/storage"
	"lifevault/internal/timeutil"
	"lifevault/internal/vault"
)

// resolutionStatus maps a resolution strategy to the terminal conflict status.
var resolutionStatus = map[string]string{
	"keep_vault": storage.ConflictResolvedKeepVault,
	"keep_app":   storage.ConflictResolvedKeepApp,
	"merge":      storage.ConflictResolvedMerged,
}

// ConflictService detects divergence between a vault file and the app's
// indexed snapshot of it, and applies explicit resolutions. Conflicts are
// never resolved implicitly: an open conflict stays open until a strategy
// is chosen.
type ConflictService struct {
	manager   *vault.Manager
	conflicts *storage.ConflictRepo
	entries   *storage.EntryRepo
	runs      *storage.RunRepo
	indexer   Reindexer
}

// NewConflictService creates a new ConflictService.
func NewConflictService(
	manager *vault.Manager,
	conflicts *storage.ConflictRepo,
	entries *storage.EntryRepo,
	runs *storage.RunRepo,
	indexer Reindexer,
) *ConflictService {
	return &ConflictService{
		manager:   manager,
		conflicts: conflicts,
		entries:   entries,
		runs:      runs,
		indexer:   indexer,
	}
}

// DetectEntry compares the live vault file of an entry against its indexed
// content hash. Returns the conflict and whether this call created it; a
// matching hash returns (nil, false, nil). Detection is idempotent while a
// conflict is open.
func (s *ConflictService) DetectEntry(ctx context.Context, entryID string) (*storage.ConflictRecord, bool, error) {
	logger := contextutil.LoggerFromContext(ctx)
	entry, err := s.entries.Get(ctx, entryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}

	liveText, err := s.manager.ReadText(entry.Path)
	if err != nil {
		return nil, false, err
	}
	liveHash := hashing.ContentHash(liveText)
	if liveHash == entry.ContentHash {
		return nil, false, nil
	}

	if open, err := s.conflicts.OpenForEntity(ctx, "entry", entryID); err == nil {
		return open, false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	rec := &storage.ConflictRecord{
		EntityType:       "entry",
		EntityID:         entryID,
		LogicalID:        entryID,
		Path:             entry.Path,
		AppRunID:         entry.SourceRunID,
		VaultContentHash: liveHash,
		DBContentHash:    entry.ContentHash,
	}
	if err := s.conflicts.Create(ctx, rec); err != nil {
		return nil, false, err
	}
	if err := s.conflicts.AppendEvent(ctx, &storage.ConflictEventRecord{
		ConflictID:  rec.ConflictID,
		Action:      "detected",
		Actor:       "indexer",
		SourceRunID: entry.SourceRunID,
	}); err != nil {
		return nil, false, err
	}

	logger.WarnContext(ctx, "vault drift detected", "entry_id", entryID, "conflict_id", rec.ConflictID)
	return rec, true, nil
}

// DetectAll sweeps every indexed entry for drift and returns the conflicts
// found, newly created or still open.
func (s *ConflictService) DetectAll(ctx context.Context) ([]*storage.ConflictRecord, error) {
	entries, err := s.entries.List(ctx, storage.EntryFilter{})
	if err != nil {
		return nil, err
	}
	var found []*storage.ConflictRecord
	for _, entry := range entries {
		rec, _, err := s.DetectEntry(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			found = append(found, rec)
		}
	}
	return found, nil
}

// List returns conflicts, optionally filtered by status.
func (s *ConflictService) List(ctx context.Context, status string) ([]*storage.ConflictRecord, error) {
	return s.conflicts.List(ctx, status)
}

// ConflictDetail is a conflict with both sides materialized for review.
type ConflictDetail struct {
	Conflict  *storage.ConflictRecord        `json:"conflict"`
	VaultText string                         `json:"vault_text"`
	AppText   string                         `json:"app_text"`
	Diff      string                         `json:"diff"`
	Events    []*storage.ConflictEventRecord `json:"events"`
}

// Get returns a conflict with the live vault text, the app-side snapshot
// reconstructed from the index, and a unified diff between them.
func (s *ConflictService) Get(ctx context.Context, conflictID string) (*ConflictDetail, error) {
	rec, err := s.conflicts.Get(ctx, conflictID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	vaultText, err := s.manager.ReadText(rec.Path)
	if err != nil {
		return nil, err
	}
	appText, err := s.appSnapshot(ctx, rec)
	if err != nil {
		return nil, err
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(appText),
		B:        difflib.SplitLines(vaultText),
		FromFile: "app",
		ToFile:   "vault",
		Context:  3,
	})
	if err != nil {
		return nil, WrapError(err, "failed to diff conflict")
	}
	events, err := s.conflicts.Events(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	return &ConflictDetail{
		Conflict:  rec,
		VaultText: vaultText,
		AppText:   appText,
		Diff:      diff,
		Events:    events,
	}, nil
}

// appSnapshot reconstructs the note text the app believes in, from the
// indexed record. Only entry conflicts carry enough state to re-render.
func (s *ConflictService) appSnapshot(ctx context.Context, rec *storage.ConflictRecord) (string, error) {
	if rec.EntityType != "entry" {
		return "", nil
	}
	entry, err := s.entries.Get(ctx, rec.EntityID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return vault.RenderEntryNote(vault.EntryFrontmatter{
		ID:          entry.ID,
		Created:     entry.CreatedAt,
		Updated:     entry.UpdatedAt,
		Type:        entry.Type,
		Status:      entry.Status,
		Goals:       entry.Goals(),
		Tags:        entry.Tags(),
		Summary:     entry.Summary,
		SourceRunID: entry.SourceRunID,
	}, entry.DetailsMD, entry.ActionsMD, entry.RawText, ""), nil
}

// Resolve applies a resolution strategy to an open conflict. keep_vault
// reindexes the live file, keep_app rewrites the file from the app snapshot,
// merge combines both sides without losing either. Resolving a non-open
// conflict returns ErrInvalidState.
func (s *ConflictService) Resolve(ctx context.Context, conflictID, strategy, actor string) (*storage.ConflictRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)
	status, ok := resolutionStatus[strategy]
	if !ok {
		return nil, &ValidationError{Field: "strategy", Message: "must be keep_vault, keep_app or merge"}
	}

	rec, err := s.conflicts.Get(ctx, conflictID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.ConflictStatus != storage.ConflictOpen {
		return nil, ErrInvalidState
	}

	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   actor,
	}); err != nil {
		return nil, err
	}

	details := map[string]any{"strategy": strategy, "resolved_by": actor}
	switch strategy {
	case "keep_vault":
		// The file is already the truth; pull it back into the index.
		if err := s.indexer.IndexPaths(ctx, []string{rec.Path}); err != nil {
			return nil, err
		}
	case "keep_app":
		appText, err := s.appSnapshot(ctx, rec)
		if err != nil {
			return nil, err
		}
		if appText == "" {
			return nil, ErrInvalidState
		}
		if err := s.manager.AtomicWriteText(rec.Path, appText); err != nil {
			return nil, err
		}
		if err := s.indexer.IndexPaths(ctx, []string{rec.Path}); err != nil {
			return nil, err
		}
	case "merge":
		merged, mergeMeta, err := s.mergeEntry(ctx, rec)
		if err != nil {
			return nil, err
		}
		if err := s.manager.AtomicWriteText(rec.Path, merged); err != nil {
			return nil, err
		}
		if err := s.indexer.IndexPaths(ctx, []string{rec.Path}); err != nil {
			return nil, err
		}
		details["merge_metadata"] = mergeMeta
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	if err := s.conflicts.MarkResolved(ctx, conflictID, status, string(detailsJSON)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	if err := s.conflicts.AppendEvent(ctx, &storage.ConflictEventRecord{
		ConflictID:  conflictID,
		Action:      status,
		Actor:       actor,
		SourceRunID: runID,
	}); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "conflict resolved", "conflict_id", conflictID, "strategy", strategy)
	return s.conflicts.Get(ctx, conflictID)
}

// mergeText combines two texts, keeping both sides verbatim when they
// differ. Trimming is only used to decide equality and emptiness; the
// originals go into the result untouched, so each side survives as an exact
// substring of the merge.
func mergeText(left, right string) string {
	leftTrim := strings.TrimSpace(left)
	rightTrim := strings.TrimSpace(right)
	if leftTrim == rightTrim || rightTrim == "" {
		return left
	}
	if leftTrim == "" {
		return right
	}
	return left + "\n\n--- merged ---\n\n" + right
}

// mergeEntry builds the merged note for an entry conflict: vault text fields
// first, app fields appended where they differ, tag and goal lists unioned.
func (s *ConflictService) mergeEntry(ctx context.Context, rec *storage.ConflictRecord) (string, map[string]any, error) {
	if rec.EntityType != "entry" {
		return "", nil, ErrInvalidState
	}
	entry, err := s.entries.Get(ctx, rec.EntityID)
	if err != nil {
		return "", nil, err
	}
	vaultText, err := s.manager.ReadText(rec.Path)
	if err != nil {
		return "", nil, err
	}
	note, err := vault.ParseNote(vaultText)
	if err != nil {
		return "", nil, WrapError(err, "failed to parse vault side of conflict")
	}

	summary := vault.FrontmatterString(note.Frontmatter, "summary")
	if summary == "" {
		summary = entry.Summary
	}

	now := timeutil.UTCNowISO()
	merged := vault.RenderEntryNote(vault.EntryFrontmatter{
		ID:          entry.ID,
		Created:     entry.CreatedAt,
		Updated:     now,
		Type:        entry.Type,
		Status:      entry.Status,
		Goals:       mergeTags(vault.FrontmatterStringList(note.Frontmatter, "goals"), entry.Goals()),
		Tags:        mergeTags(vault.FrontmatterStringList(note.Frontmatter, "tags"), entry.Tags()),
		Summary:     summary,
		SourceRunID: entry.SourceRunID,
	},
		mergeText(note.Section(vault.SectionDetails), entry.DetailsMD),
		mergeText(note.Section(vault.SectionActions), entry.ActionsMD),
		mergeText(note.Section(vault.SectionRaw), entry.RawText),
		note.Section(vault.SectionAI),
	)

	meta := map[string]any{
		"entity_id": rec.EntityID,
		"merged_at": now,
		"supersedes_id": []string{
			"vault:" + rec.VaultContentHash,
			"app:" + rec.DBContentHash,
		},
	}
	return merged, meta, nil
}
