package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/hashing"
	"lifevault/internal/timeutil"
)

const ideaColumns = `id, logical_id, title, description, status, converted_to_type, converted_to_id,
	source_entry_id, source_run_id, payload_hash, payload_hash_version, version_no, is_current,
	supersedes_id, created_at, updated_at`

// IdeaRepo provides methods for the ideas version-chain table and its entry
// links.
type IdeaRepo struct {
	db DBTX
}

// NewIdeaRepo creates a new IdeaRepo.
func NewIdeaRepo(db DBTX) *IdeaRepo {
	return &IdeaRepo{db: db}
}

func ideaPayload(rec *IdeaRecord) map[string]any {
	return map[string]any{
		"title":             rec.Title,
		"description":       rec.Description,
		"status":            rec.Status,
		"converted_to_type": rec.ConvertedToType,
		"converted_to_id":   rec.ConvertedToID,
		"source_entry_id":   rec.SourceEntryID,
	}
}

// Current returns the single current version of an idea lineage.
func (r *IdeaRepo) Current(ctx context.Context, logicalID string) (*IdeaRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+ideaColumns+" FROM ideas WHERE logical_id = ? AND is_current = 1", logicalID)
	rec, err := scanIdeaFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query idea: %w", err)
	}
	return rec, nil
}

// GetVersion returns a version row by its physical id, current or not.
func (r *IdeaRepo) GetVersion(ctx context.Context, id string) (*IdeaRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+ideaColumns+" FROM ideas WHERE id = ?", id)
	rec, err := scanIdeaFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query idea version: %w", err)
	}
	return rec, nil
}

// ListCurrent returns current idea versions, optionally by status.
func (r *IdeaRepo) ListCurrent(ctx context.Context, status string) ([]*IdeaRecord, error) {
	query := "SELECT " + ideaColumns + " FROM ideas WHERE is_current = 1"
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideas: %w", err)
	}
	defer rows.Close()

	var recs []*IdeaRecord
	for rows.Next() {
		rec, err := scanIdeaFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan idea: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Chain returns every version of an idea lineage ordered by version_no.
func (r *IdeaRepo) Chain(ctx context.Context, logicalID string) ([]*IdeaRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ideaColumns+" FROM ideas WHERE logical_id = ? ORDER BY version_no", logicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query idea chain: %w", err)
	}
	defer rows.Close()

	var recs []*IdeaRecord
	for rows.Next() {
		rec, err := scanIdeaFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan idea: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// WriteVersion applies a versioned write for the draft's lineage; see
// TaskRepo.WriteVersion for the chain semantics.
func (r *IdeaRepo) WriteVersion(ctx context.Context, draft *IdeaRecord) (*IdeaRecord, bool, error) {
	hash, err := hashing.CanonicalPayloadHash(ideaPayload(draft))
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash idea payload: %w", err)
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
		return nil, false, fmt.Errorf("failed to begin idea write: %w", err)
	}
	defer rollback()

	if current != nil {
		if err := demoteCurrent(ctx, tx, "ideas", rec.LogicalID, now); err != nil {
			return nil, false, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO ideas ("+ideaColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.LogicalID, rec.Title, rec.Description, rec.Status,
		rec.ConvertedToType, rec.ConvertedToID, rec.SourceEntryID, rec.SourceRunID,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to insert idea version: %w", err)
	}
	if err := commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit idea write: %w", err)
	}
	return &rec, true, nil
}

// LinkEntry records that an entry motivates or elaborates an idea. Repeating
// an existing link is a no-op.
func (r *IdeaRepo) LinkEntry(ctx context.Context, link *IdeaEntryLink) error {
	linkType := link.LinkType
	if linkType == "" {
		linkType = "related"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idea_entries (idea_id, entry_id, link_type, source_run_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (idea_id, entry_id, link_type) DO NOTHING`,
		link.IdeaID, link.EntryID, linkType, link.SourceRunID, timeutil.UTCNowISO(),
	)
	if err != nil {
		return fmt.Errorf("failed to link idea entry: %w", err)
	}
	return nil
}

// LinkedEntryIDs returns the entries linked to an idea lineage.
func (r *IdeaRepo) LinkedEntryIDs(ctx context.Context, ideaID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT entry_id FROM idea_entries WHERE idea_id = ? ORDER BY entry_id", ideaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query idea entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan idea entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanIdeaFrom(s rowScanner) (*IdeaRecord, error) {
	var rec IdeaRecord
	var isCurrent int
	err := s.Scan(
		&rec.ID, &rec.LogicalID, &rec.Title, &rec.Description, &rec.Status,
		&rec.ConvertedToType, &rec.ConvertedToID, &rec.SourceEntryID, &rec.SourceRunID,
		&rec.PayloadHash, &rec.PayloadHashVersion, &rec.VersionNo, &isCurrent,
		&rec.SupersedesID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsCurrent = isCurrent != 0
	return &rec, nil
}
