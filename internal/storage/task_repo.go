package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/hashing"
	"lifevault/internal/timeutil"
)

const taskColumns = `id, logical_id, path, source_entry_id, source_run_id, goal_id, title, status,
	priority, due_date, payload_hash, payload_hash_version, version_no, is_current, supersedes_id,
	created_at, updated_at`

// TaskRepo provides methods for the tasks version-chain table and its
// project links.
type TaskRepo struct {
	db DBTX
}

// NewTaskRepo creates a new TaskRepo.
func NewTaskRepo(db DBTX) *TaskRepo {
	return &TaskRepo{db: db}
}

// taskPayload is the set of fields that define a task's meaning. A write
// whose payload hashes identically to the current version is a no-op.
func taskPayload(t *TaskRecord) map[string]any {
	return map[string]any{
		"title":           t.Title,
		"status":          t.Status,
		"priority":        t.Priority,
		"due_date":        t.DueDate,
		"goal_id":         t.GoalID,
		"source_entry_id": t.SourceEntryID,
	}
}

// Current returns the single current version of a task lineage.
// Returns ErrNotFound if the lineage has never been created.
func (r *TaskRepo) Current(ctx context.Context, logicalID string) (*TaskRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE logical_id = ? AND is_current = 1", logicalID)
	return scanTask(row)
}

// GetCurrentByID returns a current version row by its physical id.
func (r *TaskRepo) GetCurrentByID(ctx context.Context, id string) (*TaskRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ? AND is_current = 1", id)
	return scanTask(row)
}

// Chain returns every version of a lineage ordered by version_no ascending.
func (r *TaskRepo) Chain(ctx context.Context, logicalID string) ([]*TaskRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE logical_id = ? ORDER BY version_no", logicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task chain: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TaskFilter narrows ListCurrent results. Zero values mean no filtering.
type TaskFilter struct {
	Status        string
	GoalID        string
	SourceEntryID string
	Limit         int
}

// ListCurrent returns current task versions, open-first then by due date.
func (r *TaskRepo) ListCurrent(ctx context.Context, filter TaskFilter) ([]*TaskRecord, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE is_current = 1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.GoalID != "" {
		query += " AND goal_id = ?"
		args = append(args, filter.GoalID)
	}
	if filter.SourceEntryID != "" {
		query += " AND source_entry_id = ?"
		args = append(args, filter.SourceEntryID)
	}
	query += ` ORDER BY CASE status WHEN 'open' THEN 0 ELSE 1 END,
		CASE WHEN due_date = '' THEN 1 ELSE 0 END, due_date, created_at`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// WriteVersion applies a versioned write for the draft's lineage: if the
// current version's payload hash matches, it is returned unchanged; otherwise
// the current row is demoted and a successor inserted atomically. The bool
// result reports whether a new version was written.
func (r *TaskRepo) WriteVersion(ctx context.Context, draft *TaskRecord) (*TaskRecord, bool, error) {
	hash, err := hashing.CanonicalPayloadHash(taskPayload(draft))
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash task payload: %w", err)
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
		return nil, false, fmt.Errorf("failed to begin task write: %w", err)
	}
	defer rollback()

	if current != nil {
		if err := demoteCurrent(ctx, tx, "tasks", rec.LogicalID, now); err != nil {
			return nil, false, err
		}
	}
	if err := insertTask(ctx, tx, &rec); err != nil {
		return nil, false, err
	}
	if err := commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit task write: %w", err)
	}
	return &rec, true, nil
}

// UpsertRow inserts or replaces a version row exactly as given, keyed by its
// physical id. Used by the reindex pass, which projects rows from vault
// files rather than applying chain writes.
func (r *TaskRepo) UpsertRow(ctx context.Context, rec *TaskRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			logical_id = excluded.logical_id,
			path = excluded.path,
			source_entry_id = excluded.source_entry_id,
			source_run_id = excluded.source_run_id,
			goal_id = excluded.goal_id,
			title = excluded.title,
			status = excluded.status,
			priority = excluded.priority,
			due_date = excluded.due_date,
			payload_hash = excluded.payload_hash,
			payload_hash_version = excluded.payload_hash_version,
			version_no = excluded.version_no,
			is_current = excluded.is_current,
			supersedes_id = excluded.supersedes_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.LogicalID, rec.Path, rec.SourceEntryID, rec.SourceRunID, rec.GoalID,
		rec.Title, rec.Status, rec.Priority, rec.DueDate,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task row: %w", err)
	}
	return nil
}

// DemoteAllBut forces keepID to be the only current row of its lineage.
func (r *TaskRepo) DemoteAllBut(ctx context.Context, logicalID, keepID string) error {
	return demoteAllBut(ctx, r.db, "tasks", logicalID, keepID, timeutil.UTCNowISO())
}

// DeleteChain removes every version of a lineage along with its project
// link. Returns the number of version rows removed.
func (r *TaskRepo) DeleteChain(ctx context.Context, logicalID string) (int64, error) {
	tx, commit, rollback, err := beginWrite(ctx, r.db)
	if err != nil {
		return 0, fmt.Errorf("failed to begin task delete: %w", err)
	}
	defer rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE logical_id = ?", logicalID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete task chain: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM task_project_links WHERE task_logical_id = ?", logicalID); err != nil {
		return 0, fmt.Errorf("failed to delete task project link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted tasks: %w", err)
	}
	if err := commit(); err != nil {
		return 0, fmt.Errorf("failed to commit task delete: %w", err)
	}
	return affected, nil
}

// SetStatusInPlace updates the status of a current version row without
// creating a new version.
func (r *TaskRepo) SetStatusInPlace(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND is_current = 1",
		status, timeutil.UTCNowISO(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check task update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertProjectLink records the one-to-one task lineage to project mapping.
func (r *TaskRepo) UpsertProjectLink(ctx context.Context, taskLogicalID, projectID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO task_project_links (task_logical_id, project_id) VALUES (?, ?)
		 ON CONFLICT (task_logical_id) DO UPDATE SET project_id = excluded.project_id`,
		taskLogicalID, projectID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task project link: %w", err)
	}
	return nil
}

// ProjectLink returns the project id linked to a task lineage, or "" when
// unlinked.
func (r *TaskRepo) ProjectLink(ctx context.Context, taskLogicalID string) (string, error) {
	var projectID string
	err := r.db.QueryRowContext(ctx,
		"SELECT project_id FROM task_project_links WHERE task_logical_id = ?", taskLogicalID,
	).Scan(&projectID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query task project link: %w", err)
	}
	return projectID, nil
}

func insertTask(ctx context.Context, e execer, rec *TaskRecord) error {
	_, err := e.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.LogicalID, rec.Path, rec.SourceEntryID, rec.SourceRunID, rec.GoalID,
		rec.Title, rec.Status, rec.Priority, rec.DueDate,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task version: %w", err)
	}
	return nil
}

func scanTask(row *sql.Row) (*TaskRecord, error) {
	rec, err := scanTaskFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return rec, nil
}

func collectTasks(rows *sql.Rows) ([]*TaskRecord, error) {
	var tasks []*TaskRecord
	for rows.Next() {
		rec, err := scanTaskFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, rec)
	}
	return tasks, rows.Err()
}

func scanTaskFrom(s rowScanner) (*TaskRecord, error) {
	var rec TaskRecord
	var isCurrent int
	err := s.Scan(
		&rec.ID, &rec.LogicalID, &rec.Path, &rec.SourceEntryID, &rec.SourceRunID, &rec.GoalID,
		&rec.Title, &rec.Status, &rec.Priority, &rec.DueDate,
		&rec.PayloadHash, &rec.PayloadHashVersion, &rec.VersionNo, &isCurrent,
		&rec.SupersedesID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsCurrent = isCurrent != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
