package storage

import (
	"context"
	"testing"
)

func TestConflictRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewConflictRepo(db)
	ctx := context.Background()

	rec := &ConflictRecord{
		EntityType:       "entry",
		EntityID:         "entry-1",
		Path:             "entries/a.md",
		VaultContentHash: "vault-hash",
		DBContentHash:    "db-hash",
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ConflictID == "" {
		t.Fatal("Create() should assign a conflict id")
	}

	got, err := repo.Get(ctx, rec.ConflictID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConflictStatus != ConflictOpen {
		t.Errorf("status = %q, want open", got.ConflictStatus)
	}
	if got.ResolvedAt != "" {
		t.Errorf("resolved_at = %q, want empty", got.ResolvedAt)
	}

	open, err := repo.OpenForEntity(ctx, "entry", "entry-1")
	if err != nil {
		t.Fatalf("OpenForEntity() error = %v", err)
	}
	if open.ConflictID != rec.ConflictID {
		t.Errorf("OpenForEntity() = %s, want %s", open.ConflictID, rec.ConflictID)
	}
}

func TestConflictRepo_MarkResolved_OpenOnly(t *testing.T) {
	db := newTestDB(t)
	repo := NewConflictRepo(db)
	ctx := context.Background()

	rec := &ConflictRecord{
		EntityType: "entry", EntityID: "entry-1", Path: "a.md",
		VaultContentHash: "v", DBContentHash: "d",
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MarkResolved(ctx, rec.ConflictID, ConflictResolvedKeepApp, "{}"); err != nil {
		t.Fatalf("MarkResolved() error = %v", err)
	}
	got, err := repo.Get(ctx, rec.ConflictID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConflictStatus != ConflictResolvedKeepApp {
		t.Errorf("status = %q, want resolved_keep_app", got.ConflictStatus)
	}
	if got.ResolvedAt == "" {
		t.Error("resolved_at should be stamped")
	}

	// Terminal states never transition again.
	if err := repo.MarkResolved(ctx, rec.ConflictID, ConflictResolvedKeepVault, "{}"); err != ErrNotFound {
		t.Errorf("second MarkResolved() = %v, want ErrNotFound", err)
	}

	if _, err := repo.OpenForEntity(ctx, "entry", "entry-1"); err != ErrNotFound {
		t.Errorf("OpenForEntity() after resolve = %v, want ErrNotFound", err)
	}
}

func TestConflictRepo_Events(t *testing.T) {
	db := newTestDB(t)
	repo := NewConflictRepo(db)
	ctx := context.Background()

	rec := &ConflictRecord{
		EntityType: "entry", EntityID: "entry-1", Path: "a.md",
		VaultContentHash: "v", DBContentHash: "d",
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.AppendEvent(ctx, &ConflictEventRecord{
		ConflictID: rec.ConflictID,
		Action:     "keep_vault",
		Actor:      "user",
		Notes:      "prefer my edit",
	}); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	events, err := repo.Events(ctx, rec.ConflictID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Action != "keep_vault" || events[0].Actor != "user" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestConflictRepo_ListAndCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewConflictRepo(db)
	ctx := context.Background()

	for _, id := range []string{"entry-1", "entry-2"} {
		if err := repo.Create(ctx, &ConflictRecord{
			EntityType: "entry", EntityID: id, Path: id + ".md",
			VaultContentHash: "v", DBContentHash: "d",
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	open, err := repo.List(ctx, ConflictOpen)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(open) != 2 {
		t.Errorf("open conflicts = %d, want 2", len(open))
	}

	n, err := repo.CountOpen(ctx)
	if err != nil {
		t.Fatalf("CountOpen() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountOpen() = %d, want 2", n)
	}
}
