package storage

import (
	"context"
	"testing"
)

func TestObservationRepo_SupersedesPerEntryAndKind(t *testing.T) {
	db := newTestDB(t)
	repo := NewObservationRepo(db)
	ctx := context.Background()

	v1, changed, err := repo.WriteVersion(ctx, &ObservationRecord{
		EntryID:     "entry-1",
		SourceRunID: "run-1",
		Kind:        ObservationActivity,
		Date:        "2026-02-19",
		Steps:       8000,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if !changed || v1.LogicalID != "obs-activity-entry-1" {
		t.Errorf("v1 changed=%v logical=%s", changed, v1.LogicalID)
	}

	// Re-processing the same entry with a corrected value supersedes.
	v2, changed, err := repo.WriteVersion(ctx, &ObservationRecord{
		EntryID:     "entry-1",
		SourceRunID: "run-2",
		Kind:        ObservationActivity,
		Date:        "2026-02-19",
		Steps:       8500,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if !changed || v2.VersionNo != 2 || v2.SupersedesID != v1.ID {
		t.Errorf("v2 = version %d supersedes %q", v2.VersionNo, v2.SupersedesID)
	}

	// A different kind on the same entry is an independent lineage.
	sleep, _, err := repo.WriteVersion(ctx, &ObservationRecord{
		EntryID:     "entry-1",
		SourceRunID: "run-2",
		Kind:        ObservationSleep,
		Date:        "2026-02-19",
		Minutes:     420,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if sleep.VersionNo != 1 {
		t.Errorf("sleep version = %d, want 1", sleep.VersionNo)
	}

	// Idempotent on identical payloads.
	_, changed, err = repo.WriteVersion(ctx, &ObservationRecord{
		EntryID:     "entry-1",
		SourceRunID: "run-3",
		Kind:        ObservationActivity,
		Date:        "2026-02-19",
		Steps:       8500,
	})
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}
	if changed {
		t.Error("identical observation should be a no-op")
	}

	activity, err := repo.ListCurrentByKind(ctx, ObservationActivity, 0)
	if err != nil {
		t.Fatalf("ListCurrentByKind() error = %v", err)
	}
	if len(activity) != 1 || activity[0].Steps != 8500 {
		t.Errorf("activity = %+v", activity)
	}
}
