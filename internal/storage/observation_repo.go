package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/hashing"
	"lifevault/internal/timeutil"
)

const observationColumns = `id, logical_id, entry_id, source_run_id, kind, date, steps, minutes,
	calories, weight_kg, description, payload_hash, payload_hash_version, version_no, is_current,
	supersedes_id, created_at, updated_at`

// ObservationRepo provides methods for the observations version-chain table.
// One lineage exists per (entry, kind) pair, so re-processing an entry
// supersedes its prior observation instead of duplicating it.
type ObservationRepo struct {
	db DBTX
}

// NewObservationRepo creates a new ObservationRepo.
func NewObservationRepo(db DBTX) *ObservationRepo {
	return &ObservationRepo{db: db}
}

// ObservationLogicalID derives the stable lineage id for an entry's
// observation of a given kind.
func ObservationLogicalID(kind, entryID string) string {
	return "obs-" + kind + "-" + entryID
}

func observationPayload(rec *ObservationRecord) map[string]any {
	return map[string]any{
		"kind":        rec.Kind,
		"entry_id":    rec.EntryID,
		"date":        rec.Date,
		"steps":       rec.Steps,
		"minutes":     rec.Minutes,
		"calories":    rec.Calories,
		"weight_kg":   rec.WeightKg,
		"description": rec.Description,
	}
}

// Current returns the single current version of an observation lineage.
func (r *ObservationRepo) Current(ctx context.Context, logicalID string) (*ObservationRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+observationColumns+" FROM observations WHERE logical_id = ? AND is_current = 1", logicalID)
	rec, err := scanObservationFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query observation: %w", err)
	}
	return rec, nil
}

// WriteVersion applies a versioned write for the draft's lineage; see
// TaskRepo.WriteVersion for the chain semantics.
func (r *ObservationRepo) WriteVersion(ctx context.Context, draft *ObservationRecord) (*ObservationRecord, bool, error) {
	if draft.LogicalID == "" {
		draft.LogicalID = ObservationLogicalID(draft.Kind, draft.EntryID)
	}
	hash, err := hashing.CanonicalPayloadHash(observationPayload(draft))
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash observation payload: %w", err)
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
		return nil, false, fmt.Errorf("failed to begin observation write: %w", err)
	}
	defer rollback()

	if current != nil {
		if err := demoteCurrent(ctx, tx, "observations", rec.LogicalID, now); err != nil {
			return nil, false, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO observations ("+observationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.LogicalID, rec.EntryID, rec.SourceRunID, rec.Kind, rec.Date,
		rec.Steps, rec.Minutes, rec.Calories, rec.WeightKg, rec.Description,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to insert observation version: %w", err)
	}
	if err := commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit observation write: %w", err)
	}
	return &rec, true, nil
}

// ListCurrentByKind returns current observations of one kind, most recent
// date first.
func (r *ObservationRepo) ListCurrentByKind(ctx context.Context, kind string, limit int) ([]*ObservationRecord, error) {
	query := "SELECT " + observationColumns + " FROM observations WHERE is_current = 1 AND kind = ? ORDER BY date DESC, created_at DESC"
	args := []any{kind}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	var recs []*ObservationRecord
	for rows.Next() {
		rec, err := scanObservationFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanObservationFrom(s rowScanner) (*ObservationRecord, error) {
	var rec ObservationRecord
	var isCurrent int
	err := s.Scan(
		&rec.ID, &rec.LogicalID, &rec.EntryID, &rec.SourceRunID, &rec.Kind, &rec.Date,
		&rec.Steps, &rec.Minutes, &rec.Calories, &rec.WeightKg, &rec.Description,
		&rec.PayloadHash, &rec.PayloadHashVersion, &rec.VersionNo, &isCurrent,
		&rec.SupersedesID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsCurrent = isCurrent != 0
	return &rec, nil
}
