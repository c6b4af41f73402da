package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/timeutil"
)

const conflictColumns = `conflict_id, entity_type, entity_id, logical_id, path, app_run_id,
	vault_content_hash, db_content_hash, conflict_status, details_json, created_at, resolved_at`

// ConflictRepo provides methods for sync_conflicts and its append-only
// event log.
type ConflictRepo struct {
	db DBTX
}

// NewConflictRepo creates a new ConflictRepo.
func NewConflictRepo(db DBTX) *ConflictRepo {
	return &ConflictRepo{db: db}
}

// Create inserts a new conflict in the open state.
func (r *ConflictRepo) Create(ctx context.Context, rec *ConflictRecord) error {
	if rec.ConflictID == "" {
		rec.ConflictID = "conflict-" + uuid.New().String()
	}
	if rec.ConflictStatus == "" {
		rec.ConflictStatus = ConflictOpen
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = timeutil.UTCNowISO()
	}
	if rec.DetailsJSON == "" {
		rec.DetailsJSON = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_conflicts (`+conflictColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		rec.ConflictID, rec.EntityType, rec.EntityID, rec.LogicalID, rec.Path, rec.AppRunID,
		rec.VaultContentHash, rec.DBContentHash, rec.ConflictStatus, rec.DetailsJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

// Get returns a conflict by id. Returns ErrNotFound if absent.
func (r *ConflictRepo) Get(ctx context.Context, conflictID string) (*ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+conflictColumns+" FROM sync_conflicts WHERE conflict_id = ?", conflictID)
	rec, err := scanConflictFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict: %w", err)
	}
	return rec, nil
}

// OpenForEntity returns the open conflict for an entity, if any.
func (r *ConflictRepo) OpenForEntity(ctx context.Context, entityType, entityID string) (*ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+conflictColumns+` FROM sync_conflicts
		 WHERE entity_type = ? AND entity_id = ? AND conflict_status = 'open'`,
		entityType, entityID)
	rec, err := scanConflictFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open conflict: %w", err)
	}
	return rec, nil
}

// List returns conflicts, optionally filtered by status, newest first.
func (r *ConflictRepo) List(ctx context.Context, status string) ([]*ConflictRecord, error) {
	query := "SELECT " + conflictColumns + " FROM sync_conflicts"
	var args []any
	if status != "" {
		query += " WHERE conflict_status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var recs []*ConflictRecord
	for rows.Next() {
		rec, err := scanConflictFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountOpen returns the number of unresolved conflicts.
func (r *ConflictRepo) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_conflicts WHERE conflict_status = 'open'").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open conflicts: %w", err)
	}
	return n, nil
}

// MarkResolved flips an open conflict to a terminal status and stamps
// resolved_at, updating details_json in the same statement. The WHERE clause
// guards the open-only transition; callers check state beforehand for the
// proper invalid-state error.
func (r *ConflictRepo) MarkResolved(ctx context.Context, conflictID, status, detailsJSON string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_conflicts SET conflict_status = ?, details_json = ?, resolved_at = ?
		 WHERE conflict_id = ? AND conflict_status = 'open'`,
		status, detailsJSON, timeutil.UTCNowISO(), conflictID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check conflict update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent records a resolution action in the immutable event log.
func (r *ConflictRepo) AppendEvent(ctx context.Context, event *ConflictEventRecord) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt == "" {
		event.CreatedAt = timeutil.UTCNowISO()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_conflict_events (event_id, conflict_id, action, actor, source_run_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.ConflictID, event.Action, event.Actor,
		event.SourceRunID, event.Notes, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append conflict event: %w", err)
	}
	return nil
}

// Events returns a conflict's event log in chronological order.
func (r *ConflictRepo) Events(ctx context.Context, conflictID string) ([]*ConflictEventRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, conflict_id, action, actor, source_run_id, notes, created_at
		 FROM sync_conflict_events WHERE conflict_id = ? ORDER BY created_at, event_id`,
		conflictID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict events: %w", err)
	}
	defer rows.Close()

	var events []*ConflictEventRecord
	for rows.Next() {
		var event ConflictEventRecord
		if err := rows.Scan(&event.EventID, &event.ConflictID, &event.Action, &event.Actor,
			&event.SourceRunID, &event.Notes, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict event: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func scanConflictFrom(s rowScanner) (*ConflictRecord, error) {
	var rec ConflictRecord
	var resolvedAt sql.NullString
	err := s.Scan(
		&rec.ConflictID, &rec.EntityType, &rec.EntityID, &rec.LogicalID, &rec.Path, &rec.AppRunID,
		&rec.VaultContentHash, &rec.DBContentHash, &rec.ConflictStatus, &rec.DetailsJSON,
		&rec.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ResolvedAt = resolvedAt.String
	return &rec, nil
}
