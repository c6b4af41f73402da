package storage

import (
	"context"
	"database/sql"
	"fmt"

	"lifevault/internal/timeutil"
)

const entryColumns = `id, path, created_at, updated_at, type, status, summary, raw_text,
	details_md, actions_md, tags_json, goals_json, source_run_id, content_hash, content_hash_version`

// EntryRepo provides methods for the entries_index projection table.
type EntryRepo struct {
	db DBTX
}

// NewEntryRepo creates a new EntryRepo.
func NewEntryRepo(db DBTX) *EntryRepo {
	return &EntryRepo{db: db}
}

// Upsert inserts or replaces the projection row for an entry, keyed by id.
func (r *EntryRepo) Upsert(ctx context.Context, entry *EntryRecord) error {
	if entry.TagsJSON == "" {
		entry.TagsJSON = "[]"
	}
	if entry.GoalsJSON == "" {
		entry.GoalsJSON = "[]"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries_index (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			type = excluded.type,
			status = excluded.status,
			summary = excluded.summary,
			raw_text = excluded.raw_text,
			details_md = excluded.details_md,
			actions_md = excluded.actions_md,
			tags_json = excluded.tags_json,
			goals_json = excluded.goals_json,
			source_run_id = excluded.source_run_id,
			content_hash = excluded.content_hash,
			content_hash_version = excluded.content_hash_version`,
		entry.ID, entry.Path, entry.CreatedAt, entry.UpdatedAt, entry.Type, entry.Status,
		entry.Summary, entry.RawText, entry.DetailsMD, entry.ActionsMD,
		entry.TagsJSON, entry.GoalsJSON, entry.SourceRunID, entry.ContentHash, entry.ContentHashVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// Get returns an entry by id. Returns ErrNotFound if absent.
func (r *EntryRepo) Get(ctx context.Context, id string) (*EntryRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries_index WHERE id = ?", id)
	return scanEntry(row)
}

// GetByPath returns the entry indexed from the given vault path.
func (r *EntryRepo) GetByPath(ctx context.Context, path string) (*EntryRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries_index WHERE path = ?", path)
	return scanEntry(row)
}

// EntryFilter narrows List results. Zero values mean no filtering.
type EntryFilter struct {
	Status string
	Type   string
	GoalID string
	Limit  int
}

// List returns entries newest first, optionally filtered.
func (r *EntryRepo) List(ctx context.Context, filter EntryFilter) ([]*EntryRecord, error) {
	query := "SELECT " + entryColumns + " FROM entries_index WHERE 1=1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.GoalID != "" {
		query += " AND id IN (SELECT entry_id FROM goal_links WHERE goal_id = ?)"
		args = append(args, filter.GoalID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*EntryRecord
	for rows.Next() {
		entry, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetStatus updates the status of an entry in place.
func (r *EntryRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE entries_index SET status = ?, updated_at = ? WHERE id = ?",
		status, timeutil.UTCNowISO(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceGoalLinks rewrites the goal link rows for an entry. Goal ids that do
// not exist in the goals table are dropped rather than erroring.
func (r *EntryRepo) ReplaceGoalLinks(ctx context.Context, entryID string, goalIDs []string) error {
	tx, commit, rollback, err := beginWrite(ctx, r.db)
	if err != nil {
		return fmt.Errorf("failed to begin goal-link update: %w", err)
	}
	defer rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM goal_links WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("failed to clear goal links: %w", err)
	}
	for _, goalID := range goalIDs {
		// The SELECT filters dangling goal references.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO goal_links (entry_id, goal_id)
			 SELECT ?, id FROM goals WHERE id = ?`,
			entryID, goalID,
		); err != nil {
			return fmt.Errorf("failed to insert goal link: %w", err)
		}
	}
	return commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row *sql.Row) (*EntryRecord, error) {
	entry, err := scanEntryFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	return entry, nil
}

func scanEntryRows(rows *sql.Rows) (*EntryRecord, error) {
	entry, err := scanEntryFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	return entry, nil
}

func scanEntryFrom(s rowScanner) (*EntryRecord, error) {
	var entry EntryRecord
	err := s.Scan(
		&entry.ID, &entry.Path, &entry.CreatedAt, &entry.UpdatedAt, &entry.Type, &entry.Status,
		&entry.Summary, &entry.RawText, &entry.DetailsMD, &entry.ActionsMD,
		&entry.TagsJSON, &entry.GoalsJSON, &entry.SourceRunID, &entry.ContentHash, &entry.ContentHashVersion,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
