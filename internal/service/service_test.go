package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"lifevault/internal/indexer"
	"lifevault/internal/storage"
	"lifevault/internal/vault"
)

// fixture wires the real storage, vault and indexer against a temp
// directory. Only the LLM is mocked in service tests.
type fixture struct {
	db           *sql.DB
	manager      *vault.Manager
	indexer      *indexer.Indexer
	runs         *storage.RunRepo
	entries      *storage.EntryRepo
	goals        *storage.GoalRepo
	projects     *storage.ProjectRepo
	tasks        *storage.TaskRepo
	improvements *storage.ImprovementRepo
	observations *storage.ObservationRepo
	chats        *storage.ChatRepo
	conflicts    *storage.ConflictRepo
	reviews      *storage.ReviewRepo
	metrics      *storage.MetricsRepo
	ideas        *storage.IdeaRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	manager := vault.NewManager(t.TempDir())
	if err := manager.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error = %v", err)
	}

	return &fixture{
		db:           db,
		manager:      manager,
		indexer:      indexer.New(db, manager, nil),
		runs:         storage.NewRunRepo(db),
		entries:      storage.NewEntryRepo(db),
		goals:        storage.NewGoalRepo(db),
		projects:     storage.NewProjectRepo(db),
		tasks:        storage.NewTaskRepo(db),
		improvements: storage.NewImprovementRepo(db),
		observations: storage.NewObservationRepo(db),
		chats:        storage.NewChatRepo(db),
		conflicts:    storage.NewConflictRepo(db),
		reviews:      storage.NewReviewRepo(db),
		metrics:      storage.NewMetricsRepo(db),
		ideas:        storage.NewIdeaRepo(db),
	}
}

func (f *fixture) taskService() *TaskService {
	return NewTaskService(f.tasks, f.goals, f.projects)
}

func (f *fixture) captureService() *CaptureService {
	return NewCaptureService(f.manager, f.runs, f.indexer)
}

func (f *fixture) entryService(llmClient LLMClient) *EntryService {
	return NewEntryService(f.manager, f.entries, f.runs, f.observations,
		f.improvements, f.taskService(), llmClient, f.indexer, "UTC")
}

func (f *fixture) conflictService() *ConflictService {
	return NewConflictService(f.manager, f.conflicts, f.entries, f.runs, f.indexer)
}

func (f *fixture) goalService() *GoalService {
	return NewGoalService(f.goals, f.tasks, f.metrics, f.reviews, f.conflicts, f.improvements, "UTC")
}

func (f *fixture) ideaService() *IdeaService {
	return NewIdeaService(f.ideas, f.entries, f.runs, f.taskService(), f.manager, f.indexer)
}

func (f *fixture) chatService(llmClient LLMClient) *ChatService {
	return NewChatService(f.manager, f.chats, f.goals, f.runs, llmClient, f.taskService(), f.indexer)
}

// seedEntry inserts a minimal indexed entry row for tests that do not need a
// vault file behind it.
func seedEntry(t *testing.T, f *fixture, id string) *storage.EntryRecord {
	t.Helper()
	rec := &storage.EntryRecord{
		ID:                 id,
		Path:               filepath.Join(f.manager.Root(), "entries", id+".md"),
		CreatedAt:          "2026-02-01T08:00:00Z",
		Type:               "note",
		Status:             storage.EntryStatusInbox,
		ContentHash:        "h",
		ContentHashVersion: "sha256-v1",
	}
	if err := f.entries.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return rec
}
