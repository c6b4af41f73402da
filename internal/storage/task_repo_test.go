package storage

import (
	"context"
	"testing"
)

func TestTaskRepo_WriteVersionChain(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()

	v1, changed, err := repo.WriteVersion(ctx, &TaskRecord{
		LogicalID:     "task-walk",
		SourceEntryID: "entry-1",
		SourceRunID:   "run-1",
		Title:         "Walk dog",
		Status:        TaskStatusOpen,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if !changed {
		t.Error("first write should create a version")
	}
	if v1.VersionNo != 1 || !v1.IsCurrent || v1.SupersedesID != "" {
		t.Errorf("v1 = version %d current %v supersedes %q", v1.VersionNo, v1.IsCurrent, v1.SupersedesID)
	}

	// Identical payload is a no-op.
	same, changed, err := repo.WriteVersion(ctx, &TaskRecord{
		LogicalID:     "task-walk",
		SourceEntryID: "entry-1",
		SourceRunID:   "run-2",
		Title:         "Walk dog",
		Status:        TaskStatusOpen,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if changed {
		t.Error("unchanged payload should not create a version")
	}
	if same.ID != v1.ID {
		t.Errorf("no-op write returned id %s, want %s", same.ID, v1.ID)
	}

	// Status flip creates version 2 superseding version 1.
	v2, changed, err := repo.WriteVersion(ctx, &TaskRecord{
		LogicalID:     "task-walk",
		SourceEntryID: "entry-1",
		SourceRunID:   "run-3",
		Title:         "Walk dog",
		Status:        TaskStatusDone,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if !changed {
		t.Error("status change should create a version")
	}
	if v2.VersionNo != 2 || v2.SupersedesID != v1.ID {
		t.Errorf("v2 = version %d supersedes %q, want 2 superseding %s", v2.VersionNo, v2.SupersedesID, v1.ID)
	}

	chain, err := repo.Chain(ctx, "task-walk")
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	currentCount := 0
	for i, rec := range chain {
		if rec.VersionNo != i+1 {
			t.Errorf("chain[%d].VersionNo = %d, want %d", i, rec.VersionNo, i+1)
		}
		if rec.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Errorf("current rows = %d, want exactly 1", currentCount)
	}

	current, err := repo.Current(ctx, "task-walk")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.ID != v2.ID || current.Status != TaskStatusDone {
		t.Errorf("current = %s status %s, want %s done", current.ID, current.Status, v2.ID)
	}
}

func TestTaskRepo_Current_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepo(db)

	if _, err := repo.Current(context.Background(), "task-missing"); err != ErrNotFound {
		t.Errorf("Current() error = %v, want ErrNotFound", err)
	}
}

func TestTaskRepo_DeleteChain(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()

	for _, status := range []string{TaskStatusOpen, TaskStatusDone} {
		if _, _, err := repo.WriteVersion(ctx, &TaskRecord{
			LogicalID: "task-ship", SourceRunID: "run-1", Title: "Ship v1", Status: status,
		}); err != nil {
			t.Fatalf("WriteVersion() error = %v", err)
		}
	}
	if err := repo.UpsertProjectLink(ctx, "task-ship", "project-1"); err != nil {
		t.Fatalf("UpsertProjectLink() error = %v", err)
	}

	deleted, err := repo.DeleteChain(ctx, "task-ship")
	if err != nil {
		t.Fatalf("DeleteChain() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2 (entire chain)", deleted)
	}
	if _, err := repo.Current(ctx, "task-ship"); err != ErrNotFound {
		t.Errorf("Current() after delete = %v, want ErrNotFound", err)
	}
	link, err := repo.ProjectLink(ctx, "task-ship")
	if err != nil {
		t.Fatalf("ProjectLink() error = %v", err)
	}
	if link != "" {
		t.Errorf("project link survived delete: %q", link)
	}
}

func TestTaskRepo_SetStatusInPlace(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()

	v1, _, err := repo.WriteVersion(ctx, &TaskRecord{
		LogicalID: "task-docs", SourceRunID: "run-1", Title: "Update docs", Status: TaskStatusOpen,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}

	if err := repo.SetStatusInPlace(ctx, v1.ID, TaskStatusDone); err != nil {
		t.Fatalf("SetStatusInPlace() error = %v", err)
	}

	chain, err := repo.Chain(ctx, "task-docs")
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("in-place update created a version: chain length = %d", len(chain))
	}
	if chain[0].Status != TaskStatusDone {
		t.Errorf("status = %s, want done", chain[0].Status)
	}

	if err := repo.SetStatusInPlace(ctx, "missing-id", TaskStatusDone); err != ErrNotFound {
		t.Errorf("SetStatusInPlace(missing) = %v, want ErrNotFound", err)
	}
}

func TestTaskRepo_DemoteAllBut(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()

	// Simulate a rebuild projecting two rows that both claim is_current,
	// as a stale hand-edited vault file can.
	rows := []*TaskRecord{
		{ID: "row-1", LogicalID: "task-x", SourceRunID: "run-1", Title: "X", Status: TaskStatusOpen,
			PayloadHash: "h1", PayloadHashVersion: "sha256-v1", VersionNo: 1, IsCurrent: true,
			CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"},
		{ID: "row-2", LogicalID: "task-x", SourceRunID: "run-1", Title: "X", Status: TaskStatusDone,
			PayloadHash: "h2", PayloadHashVersion: "sha256-v1", VersionNo: 2, IsCurrent: true,
			CreatedAt: "2026-01-02T00:00:00Z", UpdatedAt: "2026-01-02T00:00:00Z"},
	}
	for _, rec := range rows {
		if err := repo.UpsertRow(ctx, rec); err != nil {
			t.Fatalf("UpsertRow() error = %v", err)
		}
	}

	if err := repo.DemoteAllBut(ctx, "task-x", "row-2"); err != nil {
		t.Fatalf("DemoteAllBut() error = %v", err)
	}

	current, err := repo.Current(ctx, "task-x")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.ID != "row-2" {
		t.Errorf("current = %s, want row-2", current.ID)
	}
	chain, err := repo.Chain(ctx, "task-x")
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	currentCount := 0
	for _, rec := range chain {
		if rec.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Errorf("current rows = %d, want exactly 1", currentCount)
	}
}

func TestTaskRepo_ListCurrentFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()

	seed := []*TaskRecord{
		{LogicalID: "task-a", SourceRunID: "run-1", SourceEntryID: "entry-1", Title: "A", Status: TaskStatusOpen, DueDate: "2026-03-01"},
		{LogicalID: "task-b", SourceRunID: "run-1", SourceEntryID: "entry-1", Title: "B", Status: TaskStatusDone},
		{LogicalID: "task-c", SourceRunID: "run-1", SourceEntryID: "entry-2", Title: "C", Status: TaskStatusOpen, GoalID: "goal-1"},
	}
	for _, rec := range seed {
		if _, _, err := repo.WriteVersion(ctx, rec); err != nil {
			t.Fatalf("WriteVersion() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   int
	}{
		{"all", TaskFilter{}, 3},
		{"open only", TaskFilter{Status: TaskStatusOpen}, 2},
		{"by entry", TaskFilter{SourceEntryID: "entry-1"}, 2},
		{"by goal", TaskFilter{GoalID: "goal-1"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListCurrent(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListCurrent() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListCurrent() = %d tasks, want %d", len(got), tt.want)
			}
		})
	}
}
