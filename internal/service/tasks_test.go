package service

import (
	"context"
	"errors"
	"testing"

	"lifevault/internal/storage"
)

func TestParseActions(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want []Action
	}{
		{
			"open and done items",
			"- [ ] Walk dog\n- [x] Buy milk",
			[]Action{{Title: "Walk dog"}, {Title: "Buy milk", Done: true}},
		},
		{
			"due date extracted",
			"- [ ] Book dentist due:2026-02-10",
			[]Action{{Title: "Book dentist", DueDate: "2026-02-10"}},
		},
		{
			"non-checkbox lines ignored",
			"some prose\n* bullet\n- [ ] Real action",
			[]Action{{Title: "Real action"}},
		},
		{
			"empty title skipped",
			"- [ ] due:2026-02-10\n- [ ]   ",
			nil,
		},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseActions(tt.md)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseActions() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("action[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTaskLogicalID(t *testing.T) {
	a := TaskLogicalID("entry-1", "Walk dog")
	b := TaskLogicalID("entry-1", "walk DOG")
	if a != b {
		t.Errorf("logical id should be case-insensitive on title: %s != %s", a, b)
	}
	if a == TaskLogicalID("entry-2", "Walk dog") {
		t.Error("different entries must yield different lineages")
	}
	if a[:5] != "task-" {
		t.Errorf("logical id = %q, want task- prefix", a)
	}
}

func TestSyncFromActions_Idempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	actions := "- [ ] Walk dog\n- [ ] Book dentist due:2026-02-10"
	first, err := svc.SyncFromActions(ctx, entry, actions, "run-1", "")
	if err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	if first.Created != 2 || first.Updated != 0 {
		t.Errorf("first sync = %+v", first)
	}

	second, err := svc.SyncFromActions(ctx, entry, actions, "run-2", "")
	if err != nil {
		t.Fatalf("second SyncFromActions() error = %v", err)
	}
	if second.Created != 0 || second.Updated != 0 || second.Unchanged != 2 {
		t.Errorf("second sync = %+v, want all unchanged", second)
	}
	if len(first.TaskIDs) != 2 || first.TaskIDs[0] != second.TaskIDs[0] || first.TaskIDs[1] != second.TaskIDs[1] {
		t.Errorf("lineages drifted: %v vs %v", first.TaskIDs, second.TaskIDs)
	}
}

func TestSyncFromActions_VersionOnStatusFlip(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-1", ""); err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	result, err := svc.SyncFromActions(ctx, entry, "- [x] Walk dog", "run-2", "")
	if err != nil {
		t.Fatalf("flip SyncFromActions() error = %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("flip sync = %+v, want 1 updated", result)
	}

	logicalID := TaskLogicalID(entry.ID, "Walk dog")
	chain, err := svc.History(ctx, logicalID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].IsCurrent || !chain[1].IsCurrent {
		t.Error("only the successor should be current")
	}
	if chain[1].Status != storage.TaskStatusDone {
		t.Errorf("current status = %q, want done", chain[1].Status)
	}
	if chain[1].SupersedesID != chain[0].ID {
		t.Error("successor should point at the demoted version")
	}
	if chain[1].CreatedAt != chain[0].CreatedAt {
		t.Error("lineage creation time should carry across versions")
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-1", ""); err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	logicalID := TaskLogicalID(entry.ID, "Walk dog")

	done, err := svc.Complete(ctx, logicalID, "run-2")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != storage.TaskStatusDone || done.VersionNo != 2 {
		t.Errorf("completed task = %+v", done)
	}

	// Completing again is a no-op, not a new version.
	again, err := svc.Complete(ctx, logicalID, "run-3")
	if err != nil {
		t.Fatalf("second Complete() error = %v", err)
	}
	if again.VersionNo != 2 {
		t.Errorf("version after repeat complete = %d, want 2", again.VersionNo)
	}

	if _, err := svc.Complete(ctx, "task-missing", "run-4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Complete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestQuickComplete(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-1", ""); err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	logicalID := TaskLogicalID(entry.ID, "Walk dog")
	current, err := svc.Get(ctx, logicalID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if err := svc.QuickComplete(ctx, current.ID); err != nil {
		t.Fatalf("QuickComplete() error = %v", err)
	}

	// The flip happens in place: same version, no successor.
	flipped, err := svc.Get(ctx, logicalID)
	if err != nil {
		t.Fatalf("Get() after flip error = %v", err)
	}
	if flipped.Status != storage.TaskStatusDone || flipped.VersionNo != current.VersionNo {
		t.Errorf("flipped task = %+v, want done at version %d", flipped, current.VersionNo)
	}
	chain, err := svc.History(ctx, logicalID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(chain) != 1 {
		t.Errorf("chain length = %d, want 1", len(chain))
	}

	if err := svc.QuickComplete(ctx, "task-row-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("QuickComplete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-1", ""); err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	logicalID := TaskLogicalID(entry.ID, "Walk dog")

	if err := svc.Delete(ctx, logicalID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, logicalID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, logicalID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestLinkProject(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-1", ""); err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	logicalID := TaskLogicalID(entry.ID, "Walk dog")

	var vErr *ValidationError
	if err := svc.LinkProject(ctx, logicalID, "proj-missing"); !errors.As(err, &vErr) {
		t.Errorf("LinkProject(unknown project) error = %v, want ValidationError", err)
	}

	if err := f.projects.Upsert(ctx, &storage.ProjectRecord{
		ID: "proj-1", Path: "projects/p.md", Title: "Dog care", Status: "active",
	}); err != nil {
		t.Fatalf("Upsert(project) error = %v", err)
	}
	if err := svc.LinkProject(ctx, logicalID, "proj-1"); err != nil {
		t.Fatalf("LinkProject() error = %v", err)
	}
	linked, err := f.tasks.ProjectLink(ctx, logicalID)
	if err != nil {
		t.Fatalf("ProjectLink() error = %v", err)
	}
	if linked != "proj-1" {
		t.Errorf("project link = %q", linked)
	}
}

func TestSyncFromActions_ProjectLink(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()
	entry := seedEntry(t, f, "entry-1")

	if err := f.projects.Upsert(ctx, &storage.ProjectRecord{
		ID: "proj-1", Path: "projects/p.md", Title: "Dog care", Status: "active",
	}); err != nil {
		t.Fatalf("Upsert(project) error = %v", err)
	}

	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-1", ""); err != nil {
		t.Fatalf("SyncFromActions() error = %v", err)
	}
	logicalID := TaskLogicalID(entry.ID, "Walk dog")

	// Resyncing unchanged actions still applies the link.
	result, err := svc.SyncFromActions(ctx, entry, "- [ ] Walk dog", "run-2", "proj-1")
	if err != nil {
		t.Fatalf("SyncFromActions(project) error = %v", err)
	}
	if result.Unchanged != 1 {
		t.Errorf("sync = %+v, want 1 unchanged", result)
	}
	linked, err := f.tasks.ProjectLink(ctx, logicalID)
	if err != nil {
		t.Fatalf("ProjectLink() error = %v", err)
	}
	if linked != "proj-1" {
		t.Errorf("project link = %q, want proj-1", linked)
	}

	// An unknown project id is dropped, not an error.
	if _, err := svc.SyncFromActions(ctx, entry, "- [ ] Feed cat", "run-3", "proj-missing"); err != nil {
		t.Fatalf("SyncFromActions(unknown project) error = %v", err)
	}
	linked, err = f.tasks.ProjectLink(ctx, TaskLogicalID(entry.ID, "Feed cat"))
	if err != nil {
		t.Fatalf("ProjectLink() error = %v", err)
	}
	if linked != "" {
		t.Errorf("project link = %q, want none", linked)
	}
}

func TestProjectFromTags(t *testing.T) {
	f := newFixture(t)
	svc := f.taskService()
	ctx := context.Background()

	if err := f.projects.Upsert(ctx, &storage.ProjectRecord{
		ID: "proj-1", Path: "projects/p.md", Title: "Dog care", Status: "active",
	}); err != nil {
		t.Fatalf("Upsert(project) error = %v", err)
	}

	tests := []struct {
		name string
		tags []string
		want string
	}{
		{"project tag resolves", []string{"health", "project:proj-1"}, "proj-1"},
		{"prefix is case-insensitive", []string{"Project:proj-1"}, "proj-1"},
		{"unknown project ignored", []string{"project:proj-ghost"}, ""},
		{"no project tags", []string{"health", "fitness"}, ""},
		{"blank id ignored", []string{"project: "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ProjectFromTags(ctx, tt.tags)
			if err != nil {
				t.Fatalf("ProjectFromTags() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ProjectFromTags(%v) = %q, want %q", tt.tags, got, tt.want)
			}
		})
	}
}
