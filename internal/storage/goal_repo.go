package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const goalColumns = "id, path, title, status, horizon, target_date, tags_json, created_at, updated_at"

// GoalRepo provides methods for the goals table and its entry links.
type GoalRepo struct {
	db DBTX
}

// NewGoalRepo creates a new GoalRepo.
func NewGoalRepo(db DBTX) *GoalRepo {
	return &GoalRepo{db: db}
}

// Upsert inserts or replaces a goal row, keyed by id.
func (r *GoalRepo) Upsert(ctx context.Context, goal *GoalRecord) error {
	if goal.TagsJSON == "" {
		goal.TagsJSON = "[]"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			status = excluded.status,
			horizon = excluded.horizon,
			target_date = excluded.target_date,
			tags_json = excluded.tags_json,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		goal.ID, goal.Path, goal.Title, goal.Status, goal.Horizon,
		goal.TargetDate, goal.TagsJSON, goal.CreatedAt, goal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert goal: %w", err)
	}
	return nil
}

// Get returns a goal by id. Returns ErrNotFound if absent.
func (r *GoalRepo) Get(ctx context.Context, id string) (*GoalRecord, error) {
	var goal GoalRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE id = ?", id,
	).Scan(&goal.ID, &goal.Path, &goal.Title, &goal.Status, &goal.Horizon,
		&goal.TargetDate, &goal.TagsJSON, &goal.CreatedAt, &goal.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query goal: %w", err)
	}
	return &goal, nil
}

// Exists reports whether a goal id is present.
func (r *GoalRepo) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM goals WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check goal: %w", err)
	}
	return true, nil
}

// List returns all goals ordered by title, optionally filtered by status.
func (r *GoalRepo) List(ctx context.Context, status string) ([]*GoalRecord, error) {
	query := "SELECT " + goalColumns + " FROM goals"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY title"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*GoalRecord
	for rows.Next() {
		var goal GoalRecord
		if err := rows.Scan(&goal.ID, &goal.Path, &goal.Title, &goal.Status, &goal.Horizon,
			&goal.TargetDate, &goal.TagsJSON, &goal.CreatedAt, &goal.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, &goal)
	}
	return goals, rows.Err()
}

// LinkedEntryIDs returns the ids of entries linked to a goal, newest first.
func (r *GoalRepo) LinkedEntryIDs(ctx context.Context, goalID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT gl.entry_id FROM goal_links gl
		 JOIN entries_index e ON e.id = gl.entry_id
		 WHERE gl.goal_id = ?
		 ORDER BY e.created_at DESC`,
		goalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list goal links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan goal link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
