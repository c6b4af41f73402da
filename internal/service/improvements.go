package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"lifevault/internal/contextutil"
	"lifevault/internal/storage"
)

// improvementStatuses are the allowed lifecycle states of a suggestion.
var improvementStatuses = map[string]bool{
	"open":      true,
	"accepted":  true,
	"dismissed": true,
	"done":      true,
}

// ImprovementService manages improvement suggestions: friction the system
// noticed or the user filed, tracked as version chains so status changes
// keep their history.
type ImprovementService struct {
	improvements *storage.ImprovementRepo
	runs         *storage.RunRepo
}

// NewImprovementService creates a new ImprovementService.
func NewImprovementService(improvements *storage.ImprovementRepo, runs *storage.RunRepo) *ImprovementService {
	return &ImprovementService{improvements: improvements, runs: runs}
}

// Create files a new suggestion.
func (s *ImprovementService) Create(ctx context.Context, title, rationale, sourceEntryID string) (*storage.ImprovementRecord, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		return nil, err
	}

	rec, _, err := s.improvements.WriteVersion(ctx, &storage.ImprovementRecord{
		LogicalID:     "improvement-" + uuid.New().String(),
		SourceEntryID: sourceEntryID,
		SourceRunID:   runID,
		Title:         title,
		Rationale:     rationale,
		Status:        "open",
	})
	if err != nil {
		return nil, err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "improvement filed",
		"improvement_id", rec.LogicalID, "run_id", runID)
	return rec, nil
}

// List returns current suggestion versions, optionally filtered by status.
func (s *ImprovementService) List(ctx context.Context, status string) ([]*storage.ImprovementRecord, error) {
	return s.improvements.ListCurrent(ctx, status)
}

// Get returns the current version of a suggestion.
func (s *ImprovementService) Get(ctx context.Context, logicalID string) (*storage.ImprovementRecord, error) {
	rec, err := s.improvements.Current(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// UpdateStatus writes a successor version with the new status.
func (s *ImprovementService) UpdateStatus(ctx context.Context, logicalID, status string) (*storage.ImprovementRecord, error) {
	if !improvementStatuses[status] {
		return nil, &ValidationError{Field: "status", Message: "unknown status"}
	}
	current, err := s.Get(ctx, logicalID)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}

	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		return nil, err
	}
	draft := *current
	draft.Status = status
	draft.SourceRunID = runID
	rec, _, err := s.improvements.WriteVersion(ctx, &draft)
	return rec, err
}

// Nudge stamps a suggestion as surfaced to the user, so reminders back off
// for a week.
func (s *ImprovementService) Nudge(ctx context.Context, logicalID string) error {
	err := s.improvements.TouchNudge(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
