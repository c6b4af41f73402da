package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ProjectRepo provides methods for the projects table.
type ProjectRepo struct {
	db DBTX
}

// NewProjectRepo creates a new ProjectRepo.
func NewProjectRepo(db DBTX) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Upsert inserts or replaces a project row, keyed by id.
func (r *ProjectRepo) Upsert(ctx context.Context, project *ProjectRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, path, title, status, goal_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			status = excluded.status,
			goal_id = excluded.goal_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		project.ID, project.Path, project.Title, project.Status,
		project.GoalID, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// Get returns a project by id. Returns ErrNotFound if absent.
func (r *ProjectRepo) Get(ctx context.Context, id string) (*ProjectRecord, error) {
	var project ProjectRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, path, title, status, goal_id, created_at, updated_at FROM projects WHERE id = ?", id,
	).Scan(&project.ID, &project.Path, &project.Title, &project.Status,
		&project.GoalID, &project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return &project, nil
}

// List returns all projects ordered by title.
func (r *ProjectRepo) List(ctx context.Context) ([]*ProjectRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, path, title, status, goal_id, created_at, updated_at FROM projects ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*ProjectRecord
	for rows.Next() {
		var project ProjectRecord
		if err := rows.Scan(&project.ID, &project.Path, &project.Title, &project.Status,
			&project.GoalID, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}
