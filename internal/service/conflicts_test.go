package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"lifevault/internal/storage"
)

// captureAndDrift captures a note through the real pipeline, then edits the
// vault file behind the app's back so its hash no longer matches the index.
func captureAndDrift(t *testing.T, f *fixture) (entryID, path string) {
	t.Helper()
	ctx := context.Background()

	res, err := f.captureService().Capture(ctx, CaptureRequest{Text: "original capture text"})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	text, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	edited := strings.Replace(string(text), "original capture text", "original capture text\nhand-edited afterwards", 1)
	if err := os.WriteFile(res.Path, []byte(edited), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return res.EntryID, res.Path
}

func TestDetectEntry(t *testing.T) {
	f := newFixture(t)
	svc := f.conflictService()
	ctx := context.Background()
	entryID, _ := captureAndDrift(t, f)

	rec, created, err := svc.DetectEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("DetectEntry() error = %v", err)
	}
	if !created || rec == nil {
		t.Fatal("drift should create a conflict")
	}
	if rec.ConflictStatus != storage.ConflictOpen {
		t.Errorf("status = %q, want open", rec.ConflictStatus)
	}
	if rec.VaultContentHash == rec.DBContentHash {
		t.Error("hashes should differ on a real conflict")
	}

	// Detection is idempotent while the conflict stays open.
	again, created, err := svc.DetectEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("second DetectEntry() error = %v", err)
	}
	if created {
		t.Error("second detection should not create a new conflict")
	}
	if again.ConflictID != rec.ConflictID {
		t.Errorf("conflict id changed: %s -> %s", rec.ConflictID, again.ConflictID)
	}

	if _, _, err := svc.DetectEntry(ctx, "entry-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DetectEntry(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDetectEntry_NoDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.captureService().Capture(ctx, CaptureRequest{Text: "clean capture"})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	rec, created, err := f.conflictService().DetectEntry(ctx, res.EntryID)
	if err != nil {
		t.Fatalf("DetectEntry() error = %v", err)
	}
	if rec != nil || created {
		t.Errorf("matching hashes should not conflict, got %+v", rec)
	}
}

func TestGetConflict_Diff(t *testing.T) {
	f := newFixture(t)
	svc := f.conflictService()
	ctx := context.Background()
	entryID, _ := captureAndDrift(t, f)

	rec, _, err := svc.DetectEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("DetectEntry() error = %v", err)
	}
	detail, err := svc.Get(ctx, rec.ConflictID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if detail.VaultText == detail.AppText {
		t.Error("sides should differ")
	}
	if !strings.Contains(detail.Diff, "hand-edited afterwards") {
		t.Errorf("diff should show the vault-side edit, got:\n%s", detail.Diff)
	}
	if len(detail.Events) == 0 || detail.Events[0].Action != "detected" {
		t.Errorf("events = %+v, want a detected event first", detail.Events)
	}
}

func TestResolve_KeepVault(t *testing.T) {
	f := newFixture(t)
	svc := f.conflictService()
	ctx := context.Background()
	entryID, _ := captureAndDrift(t, f)

	rec, _, err := svc.DetectEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("DetectEntry() error = %v", err)
	}
	resolved, err := svc.Resolve(ctx, rec.ConflictID, "keep_vault", "tester")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.ConflictStatus != storage.ConflictResolvedKeepVault {
		t.Errorf("status = %q", resolved.ConflictStatus)
	}
	if resolved.ResolvedAt == "" {
		t.Error("resolved_at should be stamped")
	}

	// The vault side won: the index now matches the file again.
	if _, created, err := svc.DetectEntry(ctx, entryID); err != nil || created {
		t.Errorf("post-resolve detection = created %v, err %v", created, err)
	}
}

func TestResolve_Terminal(t *testing.T) {
	f := newFixture(t)
	svc := f.conflictService()
	ctx := context.Background()
	entryID, _ := captureAndDrift(t, f)

	rec, _, err := svc.DetectEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("DetectEntry() error = %v", err)
	}
	if _, err := svc.Resolve(ctx, rec.ConflictID, "keep_app", "tester"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// A resolved conflict is terminal.
	if _, err := svc.Resolve(ctx, rec.ConflictID, "keep_vault", "tester"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Resolve() error = %v, want ErrInvalidState", err)
	}
	if _, err := svc.Resolve(ctx, "conflict-missing", "keep_vault", "tester"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}
	var vErr *ValidationError
	if _, err := svc.Resolve(ctx, rec.ConflictID, "flip_coin", "tester"); !errors.As(err, &vErr) {
		t.Errorf("Resolve(bad strategy) error = %v, want ValidationError", err)
	}
}

func TestResolve_MergeKeepsBothSides(t *testing.T) {
	f := newFixture(t)
	svc := f.conflictService()
	ctx := context.Background()
	entryID, path := captureAndDrift(t, f)

	rec, _, err := svc.DetectEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("DetectEntry() error = %v", err)
	}
	resolved, err := svc.Resolve(ctx, rec.ConflictID, "merge", "tester")
	if err != nil {
		t.Fatalf("Resolve(merge) error = %v", err)
	}
	if resolved.ConflictStatus != storage.ConflictResolvedMerged {
		t.Errorf("status = %q", resolved.ConflictStatus)
	}
	if !strings.Contains(resolved.DetailsJSON, "merge_metadata") {
		t.Errorf("details = %s, want merge_metadata", resolved.DetailsJSON)
	}

	// Merge is non-destructive: both sides survive in the merged file.
	merged, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(merged), "original capture text") {
		t.Error("app side lost in merge")
	}
	if !strings.Contains(string(merged), "hand-edited afterwards") {
		t.Error("vault side lost in merge")
	}
}

func TestMergeText(t *testing.T) {
	tests := []struct {
		name  string
		left  string
		right string
		want  string
	}{
		{"both sides differ", "vault line", "app line", "vault line\n\n--- merged ---\n\napp line"},
		{"equal after trim keeps left verbatim", "  same text\n", "same text", "  same text\n"},
		{"blank right keeps left", "vault line", "   \n", "vault line"},
		{"blank left keeps right", "\n\t", "app line", "app line"},
		{
			"indentation survives the merge",
			"    indented code\n",
			"- [ ] trailing task  ",
			"    indented code\n\n\n--- merged ---\n\n- [ ] trailing task  ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeText(tt.left, tt.right)
			if got != tt.want {
				t.Errorf("mergeText() = %q, want %q", got, tt.want)
			}
			// Differing sides must survive as exact substrings.
			if got == tt.want && tt.want != tt.left && tt.want != tt.right {
				if !strings.Contains(got, tt.left) || !strings.Contains(got, tt.right) {
					t.Errorf("merge %q does not contain both originals", got)
				}
			}
		})
	}
}
