package storage

import (
	"context"
	"database/sql"
	"fmt"

	"lifevault/internal/timeutil"
)

// RunRepo provides methods for the append-only artifact_runs provenance log.
type RunRepo struct {
	db DBTX
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

// Record appends a run row. Rows are never updated or deleted.
func (r *RunRepo) Record(ctx context.Context, run *RunRecord) error {
	if run.CreatedAt == "" {
		run.CreatedAt = timeutil.UTCNowISO()
	}
	if run.NotesJSON == "" {
		run.NotesJSON = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifact_runs (run_id, run_kind, actor, parent_run_id, notes_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.RunKind, run.Actor, run.ParentRunID, run.NotesJSON, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Ensure inserts a run row if the id is not already present. Used for the
// deterministic fallback run ids synthesized during reindex, which must map
// to the same row every time the same unedited file is indexed.
func (r *RunRepo) Ensure(ctx context.Context, run *RunRecord) error {
	if run.CreatedAt == "" {
		run.CreatedAt = timeutil.UTCNowISO()
	}
	if run.NotesJSON == "" {
		run.NotesJSON = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifact_runs (run_id, run_kind, actor, parent_run_id, notes_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.RunKind, run.Actor, run.ParentRunID, run.NotesJSON, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure run: %w", err)
	}
	return nil
}

// Get returns a run by id. Returns ErrNotFound if absent.
func (r *RunRepo) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var run RunRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT run_id, run_kind, actor, parent_run_id, notes_json, created_at FROM artifact_runs WHERE run_id = ?",
		runID,
	).Scan(&run.RunID, &run.RunKind, &run.Actor, &run.ParentRunID, &run.NotesJSON, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT run_id, run_kind, actor, parent_run_id, notes_json, created_at FROM artifact_runs ORDER BY created_at DESC, run_id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(&run.RunID, &run.RunKind, &run.Actor, &run.ParentRunID, &run.NotesJSON, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
