package indexer

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lifevault/internal/storage"
	"lifevault/internal/vault"
)

func newTestIndexer(t *testing.T) (*Indexer, *sql.DB, *vault.Manager) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "index.db"))
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
	return New(db, manager, nil), db, manager
}

func writeNote(t *testing.T, manager *vault.Manager, rel, content string) string {
	t.Helper()
	path := filepath.Join(manager.Root(), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

const goalNote = `---
id: "goal-fit"
status: "active"
horizon: "year"
created: "2026-01-01T00:00:00Z"
---

# Get fit this year

Why this matters.
`

const entryNote = `---
id: "entry-1"
created: "2026-02-01T08:00:00Z"
type: "note"
status: "inbox"
goals: ["goal-fit", "goal-missing"]
tags: ["health"]
summary: "Morning walk"
source_run_id: "manual-abc"
---

## Details
Walked 4km before work.

## Actions
- [ ] Book dentist due:2026-02-10

## Context (Raw)
walked 4km, should book dentist
`

const taskNoteV1 = `---
id: "task-1-v1"
logical_id: "task-1"
entity_type: "task"
title: "Book dentist"
status: "open"
version_no: 1
is_current: false
created: "2026-02-01T09:00:00Z"
source_run_id: "llm-run"
---
`

const taskNoteV2 = `---
id: "task-1-v2"
logical_id: "task-1"
entity_type: "task"
title: "Book dentist"
status: "done"
version_no: 2
is_current: true
supersedes_id: "task-1-v1"
created: "2026-02-01T09:00:00Z"
updated: "2026-02-03T10:00:00Z"
source_run_id: "manual-done"
---
`

const reviewNote = `---
id: "review-2026-W05"
week_start: "2026-01-26"
summary: "Solid week"
created: "2026-02-01T18:00:00Z"
---

## Summary
Solid week overall.
`

func seedVault(t *testing.T, manager *vault.Manager) {
	t.Helper()
	writeNote(t, manager, "goals/get-fit.md", goalNote)
	writeNote(t, manager, "entries/2026/02/entry-1.md", entryNote)
	writeNote(t, manager, "tasks/task-1-v1.md", taskNoteV1)
	writeNote(t, manager, "tasks/task-1-v2.md", taskNoteV2)
	writeNote(t, manager, "reviews/2026-W05.md", reviewNote)
	writeNote(t, manager, "entries/scratch.md", "no frontmatter, not an entity\n")
}

func TestRebuild_ProjectsVault(t *testing.T) {
	ix, db, manager := newTestIndexer(t)
	seedVault(t, manager)
	ctx := context.Background()

	stats, err := ix.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.FilesScanned != 6 {
		t.Errorf("FilesScanned = %d, want 6", stats.FilesScanned)
	}
	if stats.EntriesIndexed != 1 || stats.GoalsIndexed != 1 || stats.TasksIndexed != 2 || stats.ReviewsIndexed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Goal title falls back to the first markdown heading.
	goal, err := storage.NewGoalRepo(db).Get(ctx, "goal-fit")
	if err != nil {
		t.Fatalf("Get(goal) error = %v", err)
	}
	if goal.Title != "Get fit this year" {
		t.Errorf("goal title = %q", goal.Title)
	}

	entry, err := storage.NewEntryRepo(db).Get(ctx, "entry-1")
	if err != nil {
		t.Fatalf("Get(entry) error = %v", err)
	}
	if entry.Summary != "Morning walk" || entry.Status != storage.EntryStatusInbox {
		t.Errorf("entry = %+v", entry)
	}
	if entry.RawText != "walked 4km, should book dentist" {
		t.Errorf("raw text = %q", entry.RawText)
	}

	// Link rows only reference goals that exist, regardless of walk order.
	linked, err := storage.NewGoalRepo(db).LinkedEntryIDs(ctx, "goal-fit")
	if err != nil {
		t.Fatalf("LinkedEntryIDs() error = %v", err)
	}
	if len(linked) != 1 || linked[0] != "entry-1" {
		t.Errorf("linked entries = %v", linked)
	}
	var dangling int
	if err := db.QueryRow("SELECT COUNT(*) FROM goal_links WHERE goal_id = 'goal-missing'").Scan(&dangling); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if dangling != 0 {
		t.Errorf("dangling goal links = %d, want 0", dangling)
	}

	// The version chain projects with exactly one current row.
	task, err := storage.NewTaskRepo(db).Current(ctx, "task-1")
	if err != nil {
		t.Fatalf("Current(task) error = %v", err)
	}
	if task.ID != "task-1-v2" || task.Status != storage.TaskStatusDone || task.VersionNo != 2 {
		t.Errorf("current task = %+v", task)
	}
	chain, err := storage.NewTaskRepo(db).Chain(ctx, "task-1")
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if len(chain) != 2 {
		t.Errorf("chain length = %d, want 2", len(chain))
	}

	review, err := storage.NewReviewRepo(db).Latest(ctx)
	if err != nil {
		t.Fatalf("Latest(review) error = %v", err)
	}
	if review.WeekStart != "2026-01-26" {
		t.Errorf("review week = %q", review.WeekStart)
	}
}

func TestRebuild_Idempotent(t *testing.T) {
	ix, db, manager := newTestIndexer(t)
	seedVault(t, manager)
	ctx := context.Background()

	first, err := ix.Rebuild(ctx)
	if err != nil {
		t.Fatalf("first Rebuild() error = %v", err)
	}
	second, err := ix.Rebuild(ctx)
	if err != nil {
		t.Fatalf("second Rebuild() error = %v", err)
	}
	if *first != *second {
		t.Errorf("stats drifted: first %+v, second %+v", first, second)
	}

	for _, table := range []string{"entries_index", "goals", "tasks", "goal_links", "weekly_reviews"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("count %s error = %v", table, err)
		}
		var want int
		switch table {
		case "tasks":
			want = 2
		default:
			want = 1
		}
		if count != want {
			t.Errorf("%s rows = %d, want %d", table, count, want)
		}
	}

	task, err := storage.NewTaskRepo(db).Current(ctx, "task-1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if task.ID != "task-1-v2" {
		t.Errorf("current after second rebuild = %s", task.ID)
	}
}

func TestRebuild_FallbackRunID(t *testing.T) {
	ix, db, manager := newTestIndexer(t)
	ctx := context.Background()

	// Hand-written file with no source_run_id.
	writeNote(t, manager, "entries/hand.md", `---
id: "entry-hand"
created: "2026-02-01T08:00:00Z"
---

## Context (Raw)
typed straight into the vault
`)

	if _, err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	entry, err := storage.NewEntryRepo(db).Get(ctx, "entry-hand")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(entry.SourceRunID) != len("rebuild-")+16 || entry.SourceRunID[:8] != "rebuild-" {
		t.Errorf("run id = %q, want rebuild-<16 hex>", entry.SourceRunID)
	}

	run, err := storage.NewRunRepo(db).Get(ctx, entry.SourceRunID)
	if err != nil {
		t.Fatalf("Get(run) error = %v", err)
	}
	if run.RunKind != storage.RunKindRebuild || run.Actor != "indexer" {
		t.Errorf("run = %+v", run)
	}

	// Same file, same synthesized run: rebuilding again adds no run rows.
	if _, err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("second Rebuild() error = %v", err)
	}
	var runs int
	if err := db.QueryRow("SELECT COUNT(*) FROM artifact_runs").Scan(&runs); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if runs != 1 {
		t.Errorf("artifact_runs rows = %d, want 1", runs)
	}
}

func TestIndexPaths(t *testing.T) {
	ix, db, manager := newTestIndexer(t)
	ctx := context.Background()

	path := writeNote(t, manager, "entries/one.md", `---
id: "entry-1"
created: "2026-02-01T08:00:00Z"
status: "inbox"
source_run_id: "manual-1"
---

## Context (Raw)
first draft
`)
	if err := ix.IndexPaths(ctx, []string{path}); err != nil {
		t.Fatalf("IndexPaths() error = %v", err)
	}

	// Edit the file and reindex just that path.
	writeNote(t, manager, "entries/one.md", `---
id: "entry-1"
created: "2026-02-01T08:00:00Z"
status: "processed"
source_run_id: "manual-1"
---

## Context (Raw)
first draft
`)
	missing := filepath.Join(manager.Root(), "entries", "never-existed.md")
	if err := ix.IndexPaths(ctx, []string{path, missing}); err != nil {
		t.Fatalf("IndexPaths() with missing path error = %v", err)
	}

	entry, err := storage.NewEntryRepo(db).Get(ctx, "entry-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Status != storage.EntryStatusProcessed {
		t.Errorf("status = %q, want processed", entry.Status)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		fm   map[string]any
		want fileClass
	}{
		{"entity_type wins over folder", "vault/goals/x.md", map[string]any{"entity_type": "task"}, classTask},
		{"improvement", "vault/entries/x.md", map[string]any{"entity_type": "improvement"}, classImprovement},
		{"insight", "vault/entries/x.md", map[string]any{"entity_type": "insight"}, classInsight},
		{"chat thread", "vault/chats/x.md", map[string]any{"entity_type": "chat_thread"}, classChatThread},
		{"weekly review by type", "vault/entries/x.md", map[string]any{"entity_type": "weekly_review"}, classReview},
		{"goals folder", "vault/goals/fit.md", map[string]any{}, classGoal},
		{"projects folder", "vault/projects/p.md", map[string]any{}, classProject},
		{"reviews folder", "vault/reviews/w.md", map[string]any{}, classReview},
		{"default entry", "vault/entries/2026/02/a.md", map[string]any{}, classEntry},
		{"unknown entity_type falls through", "vault/entries/a.md", map[string]any{"entity_type": "widget"}, classEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.path, tt.fm); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRebuild_VaultInsideGoalsDirectory(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The vault root sits under a parent directory named like a vault
	// folder. Only folders inside the vault may steer classification.
	manager := vault.NewManager(filepath.Join(t.TempDir(), "goals", "vault"))
	if err := manager.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error = %v", err)
	}
	ix := New(db, manager, nil)
	writeNote(t, manager, "entries/2026/02/entry-1.md", entryNote)

	stats, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.EntriesIndexed != 1 || stats.GoalsIndexed != 0 {
		t.Errorf("stats = %+v, want the note indexed as an entry", stats)
	}
	if _, err := storage.NewEntryRepo(db).Get(context.Background(), "entry-1"); err != nil {
		t.Errorf("Get(entry) error = %v", err)
	}
}

func TestRebuild_FailureLeavesIndexIntact(t *testing.T) {
	ix, db, manager := newTestIndexer(t)
	seedVault(t, manager)
	ctx := context.Background()

	if _, err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	// A .md name that resolves to a directory fails the projection partway
	// through the walk.
	link := filepath.Join(manager.Root(), "zzz.md")
	if err := os.Symlink(filepath.Join(manager.Root(), "goals"), link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}
	if _, err := ix.Rebuild(ctx); err == nil {
		t.Fatal("Rebuild() should fail on an unreadable file")
	}

	// The failed rebuild rolled back: the previous projection is untouched.
	if _, err := storage.NewEntryRepo(db).Get(ctx, "entry-1"); err != nil {
		t.Errorf("Get(entry) after failed rebuild error = %v", err)
	}
	chain, err := storage.NewTaskRepo(db).Chain(ctx, "task-1")
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if len(chain) != 2 {
		t.Errorf("chain length after failed rebuild = %d, want 2", len(chain))
	}
}

func TestIndexPaths_FailureAppliesNothing(t *testing.T) {
	ix, db, manager := newTestIndexer(t)
	ctx := context.Background()

	path := writeNote(t, manager, "entries/one.md", `---
id: "entry-1"
created: "2026-02-01T08:00:00Z"
status: "inbox"
source_run_id: "manual-1"
---

## Context (Raw)
first draft
`)
	bad := filepath.Join(manager.Root(), "entries", "bad.md")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if err := ix.IndexPaths(ctx, []string{path, bad}); err == nil {
		t.Fatal("IndexPaths() should fail on an unreadable path")
	}
	// The batch is one transaction: the good file was not applied either.
	if _, err := storage.NewEntryRepo(db).Get(ctx, "entry-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
