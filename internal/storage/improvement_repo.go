package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/hashing"
	"lifevault/internal/timeutil"
)

const improvementColumns = `id, logical_id, path, source_entry_id, source_run_id, title, rationale,
	status, last_nudged_at, payload_hash, payload_hash_version, version_no, is_current, supersedes_id,
	created_at, updated_at`

// ImprovementRepo provides methods for the improvements version-chain table.
type ImprovementRepo struct {
	db DBTX
}

// NewImprovementRepo creates a new ImprovementRepo.
func NewImprovementRepo(db DBTX) *ImprovementRepo {
	return &ImprovementRepo{db: db}
}

func improvementPayload(rec *ImprovementRecord) map[string]any {
	return map[string]any{
		"title":           rec.Title,
		"rationale":       rec.Rationale,
		"status":          rec.Status,
		"source_entry_id": rec.SourceEntryID,
	}
}

// Current returns the single current version of an improvement lineage.
func (r *ImprovementRepo) Current(ctx context.Context, logicalID string) (*ImprovementRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+improvementColumns+" FROM improvements WHERE logical_id = ? AND is_current = 1", logicalID)
	rec, err := scanImprovementFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query improvement: %w", err)
	}
	return rec, nil
}

// ListCurrent returns current improvement versions, optionally by status.
func (r *ImprovementRepo) ListCurrent(ctx context.Context, status string) ([]*ImprovementRecord, error) {
	query := "SELECT " + improvementColumns + " FROM improvements WHERE is_current = 1"
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list improvements: %w", err)
	}
	defer rows.Close()

	var recs []*ImprovementRecord
	for rows.Next() {
		rec, err := scanImprovementFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan improvement: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// WriteVersion applies a versioned write for the draft's lineage; see
// TaskRepo.WriteVersion for the chain semantics.
func (r *ImprovementRepo) WriteVersion(ctx context.Context, draft *ImprovementRecord) (*ImprovementRecord, bool, error) {
	hash, err := hashing.CanonicalPayloadHash(improvementPayload(draft))
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash improvement payload: %w", err)
	}

	current, err := r.Current(ctx, draft.LogicalID)
	if err != nil && err != ErrNotFound {
		return nil, false, err
	}
	if current != nil && current.PayloadHash == hash {
		return current, false, nil
	}

	now := timeutil.UTCNowISO()
	rec := *draft
	rec.ID = uuid.New().String()
	rec.PayloadHash = hash
	rec.PayloadHashVersion = hashing.PayloadHashVersion
	rec.IsCurrent = true
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if current != nil {
		rec.VersionNo = current.VersionNo + 1
		rec.SupersedesID = current.ID
		rec.CreatedAt = current.CreatedAt
		if rec.LastNudgedAt == "" {
			rec.LastNudgedAt = current.LastNudgedAt
		}
	} else {
		rec.VersionNo = 1
		rec.SupersedesID = ""
	}

	tx, commit, rollback, err := beginWrite(ctx, r.db)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin improvement write: %w", err)
	}
	defer rollback()

	if current != nil {
		if err := demoteCurrent(ctx, tx, "improvements", rec.LogicalID, now); err != nil {
			return nil, false, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO improvements ("+improvementColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.LogicalID, rec.Path, rec.SourceEntryID, rec.SourceRunID,
		rec.Title, rec.Rationale, rec.Status, rec.LastNudgedAt,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to insert improvement version: %w", err)
	}
	if err := commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit improvement write: %w", err)
	}
	return &rec, true, nil
}

// UpsertRow inserts or replaces a version row exactly as given; see
// TaskRepo.UpsertRow.
func (r *ImprovementRepo) UpsertRow(ctx context.Context, rec *ImprovementRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO improvements (`+improvementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			logical_id = excluded.logical_id,
			path = excluded.path,
			source_entry_id = excluded.source_entry_id,
			source_run_id = excluded.source_run_id,
			title = excluded.title,
			rationale = excluded.rationale,
			status = excluded.status,
			last_nudged_at = excluded.last_nudged_at,
			payload_hash = excluded.payload_hash,
			payload_hash_version = excluded.payload_hash_version,
			version_no = excluded.version_no,
			is_current = excluded.is_current,
			supersedes_id = excluded.supersedes_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.LogicalID, rec.Path, rec.SourceEntryID, rec.SourceRunID,
		rec.Title, rec.Rationale, rec.Status, rec.LastNudgedAt,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert improvement row: %w", err)
	}
	return nil
}

// DemoteAllBut forces keepID to be the only current row of its lineage.
func (r *ImprovementRepo) DemoteAllBut(ctx context.Context, logicalID, keepID string) error {
	return demoteAllBut(ctx, r.db, "improvements", logicalID, keepID, timeutil.UTCNowISO())
}

// TouchNudge stamps last_nudged_at on the current row in place.
func (r *ImprovementRepo) TouchNudge(ctx context.Context, logicalID string) error {
	now := timeutil.UTCNowISO()
	res, err := r.db.ExecContext(ctx,
		"UPDATE improvements SET last_nudged_at = ?, updated_at = ? WHERE logical_id = ? AND is_current = 1",
		now, now, logicalID,
	)
	if err != nil {
		return fmt.Errorf("failed to nudge improvement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check nudge: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanImprovementFrom(s rowScanner) (*ImprovementRecord, error) {
	var rec ImprovementRecord
	var isCurrent int
	err := s.Scan(
		&rec.ID, &rec.LogicalID, &rec.Path, &rec.SourceEntryID, &rec.SourceRunID,
		&rec.Title, &rec.Rationale, &rec.Status, &rec.LastNudgedAt,
		&rec.PayloadHash, &rec.PayloadHashVersion, &rec.VersionNo, &isCurrent,
		&rec.SupersedesID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsCurrent = isCurrent != 0
	return &rec, nil
}
