package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
)

// newTestDB opens a migrated SQLite database in a temp directory.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	// Running migrations again against an up-to-date database is a no-op.
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("schema_migrations rows = %d, want %d", count, len(migrations))
	}
}

func TestMigrate_ChecksumMismatchFatal(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Exec("UPDATE schema_migrations SET checksum = 'drifted' WHERE version = 1"); err != nil {
		t.Fatalf("failed to corrupt checksum: %v", err)
	}

	err := Migrate(db)
	if err == nil {
		t.Fatal("Migrate() should fail on checksum mismatch")
	}
	if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("error = %v, want checksum mismatch", err)
	}
}

func TestClearDerived(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runs := NewRunRepo(db)
	if err := runs.Record(ctx, &RunRecord{RunID: "run-1", RunKind: RunKindManual}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	entries := NewEntryRepo(db)
	if err := entries.Upsert(ctx, &EntryRecord{
		ID: "entry-1", Path: "entries/a.md", ContentHash: "h", ContentHashVersion: "sha256-v1",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := ClearDerived(ctx, tx); err != nil {
		t.Fatalf("ClearDerived() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var entryCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM entries_index").Scan(&entryCount); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if entryCount != 0 {
		t.Errorf("entries_index rows = %d, want 0", entryCount)
	}

	// Provenance survives a rebuild clear.
	if _, err := runs.Get(ctx, "run-1"); err != nil {
		t.Errorf("run should survive ClearDerived, got %v", err)
	}
}
