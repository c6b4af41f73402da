package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"lifevault/internal/contextutil"
	"lifevault/internal/storage"
	"lifevault/internal/timeutil"
	"lifevault/internal/vault"
)

// ideaStatuses are the allowed lifecycle states of an idea.
var ideaStatuses = map[string]bool{
	storage.IdeaStatusRaw:       true,
	storage.IdeaStatusExploring: true,
	storage.IdeaStatusMature:    true,
	storage.IdeaStatusConverted: true,
	storage.IdeaStatusParked:    true,
	storage.IdeaStatusDropped:   true,
}

// IdeaService tracks loose ideas as version chains and graduates them into
// goals, projects or tasks once they firm up. Goal and project conversions
// write a vault note first, so the result survives a full rebuild.
type IdeaService struct {
	ideas   *storage.IdeaRepo
	entries *storage.EntryRepo
	runs    *storage.RunRepo
	tasks   *TaskService
	manager *vault.Manager
	indexer Reindexer
}

// NewIdeaService creates a new IdeaService.
func NewIdeaService(
	ideas *storage.IdeaRepo,
	entries *storage.EntryRepo,
	runs *storage.RunRepo,
	tasks *TaskService,
	manager *vault.Manager,
	indexer Reindexer,
) *IdeaService {
	return &IdeaService{
		ideas:   ideas,
		entries: entries,
		runs:    runs,
		tasks:   tasks,
		manager: manager,
		indexer: indexer,
	}
}

// Create files a new idea in the raw state. An unknown source entry id is
// dropped rather than erroring, matching how task sync treats references.
func (s *IdeaService) Create(ctx context.Context, title, description, sourceEntryID string) (*storage.IdeaRecord, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	if sourceEntryID != "" {
		if _, err := s.entries.Get(ctx, sourceEntryID); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
			sourceEntryID = ""
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

	rec, _, err := s.ideas.WriteVersion(ctx, &storage.IdeaRecord{
		LogicalID:     "idea-" + uuid.New().String(),
		Title:         title,
		Description:   description,
		Status:        storage.IdeaStatusRaw,
		SourceEntryID: sourceEntryID,
		SourceRunID:   runID,
	})
	if err != nil {
		return nil, err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "idea filed",
		"idea_id", rec.LogicalID, "run_id", runID)
	return rec, nil
}

// List returns current idea versions, optionally filtered by status.
func (s *IdeaService) List(ctx context.Context, status string) ([]*storage.IdeaRecord, error) {
	return s.ideas.ListCurrent(ctx, status)
}

// Get returns the current version of an idea.
func (s *IdeaService) Get(ctx context.Context, logicalID string) (*storage.IdeaRecord, error) {
	rec, err := s.ideas.Current(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// History returns every version of an idea lineage, oldest first.
func (s *IdeaService) History(ctx context.Context, logicalID string) ([]*storage.IdeaRecord, error) {
	chain, err := s.ideas.Chain(ctx, logicalID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	return chain, nil
}

// Update writes a successor version with the given fields. Empty fields keep
// their current value. A converted idea is frozen.
func (s *IdeaService) Update(ctx context.Context, logicalID, title, description, status string) (*storage.IdeaRecord, error) {
	if status != "" && !ideaStatuses[status] {
		return nil, &ValidationError{Field: "status", Message: "unknown status"}
	}
	if status == storage.IdeaStatusConverted {
		return nil, &ValidationError{Field: "status", Message: "conversion goes through convert"}
	}
	current, err := s.Get(ctx, logicalID)
	if err != nil {
		return nil, err
	}
	if current.Status == storage.IdeaStatusConverted {
		return nil, ErrInvalidState
	}

	draft := *current
	if title != "" {
		draft.Title = title
	}
	if description != "" {
		draft.Description = description
	}
	if status != "" {
		draft.Status = status
	}

	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		return nil, err
	}
	draft.SourceRunID = runID
	rec, _, err := s.ideas.WriteVersion(ctx, &draft)
	return rec, err
}

// LinkEntry ties an entry to an idea. Both sides must exist.
func (s *IdeaService) LinkEntry(ctx context.Context, logicalID, entryID, linkType string) error {
	if _, err := s.Get(ctx, logicalID); err != nil {
		return err
	}
	if _, err := s.entries.Get(ctx, entryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &ValidationError{Field: "entry_id", Message: "unknown entry"}
		}
		return err
	}
	return s.ideas.LinkEntry(ctx, &storage.IdeaEntryLink{
		IdeaID:   logicalID,
		EntryID:  entryID,
		LinkType: linkType,
	})
}

// ConvertResult reports what a conversion produced.
type ConvertResult struct {
	Idea       *storage.IdeaRecord `json:"idea"`
	TargetType string              `json:"target_type"`
	TargetID   string              `json:"target_id"`
}

// Convert graduates an idea version into a goal, project or task. The id is
// a version row id: converting anything but the current version of a live
// lineage is refused, so a stale client cannot convert over a newer edit.
func (s *IdeaService) Convert(ctx context.Context, ideaVersionID, target string) (*ConvertResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	version, err := s.ideas.GetVersion(ctx, ideaVersionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !version.IsCurrent || version.Status == storage.IdeaStatusConverted {
		return nil, ErrInvalidState
	}

	runID := "manual-" + uuid.New().String()
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindManual,
		Actor:   "user",
	}); err != nil {
		return nil, err
	}

	var targetID string
	switch target {
	case "goal":
		targetID, err = s.convertToGoal(ctx, version, runID)
	case "project":
		targetID, err = s.convertToProject(ctx, version, runID)
	case "task":
		targetID, err = s.convertToTask(ctx, version, runID)
	default:
		return nil, &ValidationError{Field: "target", Message: "must be goal, project or task"}
	}
	if err != nil {
		return nil, err
	}

	draft := *version
	draft.Status = storage.IdeaStatusConverted
	draft.ConvertedToType = target
	draft.ConvertedToID = targetID
	draft.SourceRunID = runID
	rec, _, err := s.ideas.WriteVersion(ctx, &draft)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "idea converted",
		"idea_id", rec.LogicalID, "target_type", target, "target_id", targetID, "run_id", runID)
	return &ConvertResult{Idea: rec, TargetType: target, TargetID: targetID}, nil
}

func (s *IdeaService) convertToGoal(ctx context.Context, idea *storage.IdeaRecord, runID string) (string, error) {
	goalID := "goal-" + uuid.New().String()
	text := vault.RenderEntityNote(map[string]any{
		"id":            goalID,
		"title":         idea.Title,
		"status":        "active",
		"source_run_id": runID,
		"created":       timeutil.UTCNowISO(),
	}, []string{"Description"}, map[string]string{"Description": idea.Description})

	path := s.manager.GoalPath(goalID)
	if err := s.manager.AtomicWriteText(path, text); err != nil {
		return "", WrapError(err, "failed to write goal note")
	}
	if err := s.indexer.IndexPaths(ctx, []string{path}); err != nil {
		return "", WrapError(err, "failed to index goal note")
	}
	return goalID, nil
}

func (s *IdeaService) convertToProject(ctx context.Context, idea *storage.IdeaRecord, runID string) (string, error) {
	projectID := "proj-" + uuid.New().String()
	text := vault.RenderEntityNote(map[string]any{
		"id":            projectID,
		"title":         idea.Title,
		"status":        "active",
		"source_run_id": runID,
		"created":       timeutil.UTCNowISO(),
	}, []string{"Description"}, map[string]string{"Description": idea.Description})

	path := s.manager.ProjectPath(projectID)
	if err := s.manager.AtomicWriteText(path, text); err != nil {
		return "", WrapError(err, "failed to write project note")
	}
	if err := s.indexer.IndexPaths(ctx, []string{path}); err != nil {
		return "", WrapError(err, "failed to index project note")
	}
	return projectID, nil
}

// convertToTask reuses the action sync pipeline with a one-line synthetic
// action, so the task gets the same lineage id it would have gotten had the
// source entry carried the action itself.
func (s *IdeaService) convertToTask(ctx context.Context, idea *storage.IdeaRecord, runID string) (string, error) {
	entryID := idea.SourceEntryID
	if entryID == "" {
		entryID = idea.LogicalID
	}
	seed := &storage.EntryRecord{ID: entryID}
	result, err := s.tasks.SyncFromActions(ctx, seed, "- [ ] "+idea.Title, runID, "")
	if err != nil {
		return "", err
	}
	if len(result.TaskIDs) == 0 {
		return "", &ValidationError{Field: "title", Message: "does not yield a task"}
	}
	return result.TaskIDs[0], nil
}
