package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/hashing"
	"lifevault/internal/timeutil"
)

const insightColumns = `id, logical_id, path, source_entry_id, source_run_id, title, body, kind,
	payload_hash, payload_hash_version, version_no, is_current, supersedes_id, created_at, updated_at`

// InsightRepo provides methods for the insights version-chain table.
type InsightRepo struct {
	db DBTX
}

// NewInsightRepo creates a new InsightRepo.
func NewInsightRepo(db DBTX) *InsightRepo {
	return &InsightRepo{db: db}
}

func insightPayload(rec *InsightRecord) map[string]any {
	return map[string]any{
		"title":           rec.Title,
		"body":            rec.Body,
		"kind":            rec.Kind,
		"source_entry_id": rec.SourceEntryID,
	}
}

// Current returns the single current version of an insight lineage.
func (r *InsightRepo) Current(ctx context.Context, logicalID string) (*InsightRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+insightColumns+" FROM insights WHERE logical_id = ? AND is_current = 1", logicalID)
	rec, err := scanInsightFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query insight: %w", err)
	}
	return rec, nil
}

// ListCurrent returns current insight versions, newest first.
func (r *InsightRepo) ListCurrent(ctx context.Context, limit int) ([]*InsightRecord, error) {
	query := "SELECT " + insightColumns + " FROM insights WHERE is_current = 1 ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var recs []*InsightRecord
	for rows.Next() {
		rec, err := scanInsightFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// WriteVersion applies a versioned write for the draft's lineage; see
// TaskRepo.WriteVersion for the chain semantics.
func (r *InsightRepo) WriteVersion(ctx context.Context, draft *InsightRecord) (*InsightRecord, bool, error) {
	hash, err := hashing.CanonicalPayloadHash(insightPayload(draft))
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash insight payload: %w", err)
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
	} else {
		rec.VersionNo = 1
		rec.SupersedesID = ""
	}

	tx, commit, rollback, err := beginWrite(ctx, r.db)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin insight write: %w", err)
	}
	defer rollback()

	if current != nil {
		if err := demoteCurrent(ctx, tx, "insights", rec.LogicalID, now); err != nil {
			return nil, false, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO insights ("+insightColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.LogicalID, rec.Path, rec.SourceEntryID, rec.SourceRunID,
		rec.Title, rec.Body, rec.Kind,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to insert insight version: %w", err)
	}
	if err := commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit insight write: %w", err)
	}
	return &rec, true, nil
}

// UpsertRow inserts or replaces a version row exactly as given; see
// TaskRepo.UpsertRow.
func (r *InsightRepo) UpsertRow(ctx context.Context, rec *InsightRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO insights (`+insightColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			logical_id = excluded.logical_id,
			path = excluded.path,
			source_entry_id = excluded.source_entry_id,
			source_run_id = excluded.source_run_id,
			title = excluded.title,
			body = excluded.body,
			kind = excluded.kind,
			payload_hash = excluded.payload_hash,
			payload_hash_version = excluded.payload_hash_version,
			version_no = excluded.version_no,
			is_current = excluded.is_current,
			supersedes_id = excluded.supersedes_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.LogicalID, rec.Path, rec.SourceEntryID, rec.SourceRunID,
		rec.Title, rec.Body, rec.Kind,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert insight row: %w", err)
	}
	return nil
}

// DemoteAllBut forces keepID to be the only current row of its lineage.
func (r *InsightRepo) DemoteAllBut(ctx context.Context, logicalID, keepID string) error {
	return demoteAllBut(ctx, r.db, "insights", logicalID, keepID, timeutil.UTCNowISO())
}

func scanInsightFrom(s rowScanner) (*InsightRecord, error) {
	var rec InsightRecord
	var isCurrent int
	err := s.Scan(
		&rec.ID, &rec.LogicalID, &rec.Path, &rec.SourceEntryID, &rec.SourceRunID,
		&rec.Title, &rec.Body, &rec.Kind,
		&rec.PayloadHash, &rec.PayloadHashVersion, &rec.VersionNo, &isCurrent,
		&rec.SupersedesID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsCurrent = isCurrent != 0
	return &rec, nil
}
