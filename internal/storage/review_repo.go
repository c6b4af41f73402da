package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ReviewRepo provides methods for the weekly_reviews table.
type ReviewRepo struct {
	db DBTX
}

// NewReviewRepo creates a new ReviewRepo.
func NewReviewRepo(db DBTX) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// Upsert inserts or replaces a weekly review row, keyed by id.
func (r *ReviewRepo) Upsert(ctx context.Context, review *ReviewRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO weekly_reviews (id, path, week_start, summary, source_run_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			week_start = excluded.week_start,
			summary = excluded.summary,
			source_run_id = excluded.source_run_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		review.ID, review.Path, review.WeekStart, review.Summary,
		review.SourceRunID, review.CreatedAt, review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly review: %w", err)
	}
	return nil
}

// Latest returns the most recent review by week_start. Returns ErrNotFound
// when no review has ever been indexed.
func (r *ReviewRepo) Latest(ctx context.Context) (*ReviewRecord, error) {
	var review ReviewRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, path, week_start, summary, source_run_id, created_at, updated_at
		 FROM weekly_reviews ORDER BY week_start DESC LIMIT 1`,
	).Scan(&review.ID, &review.Path, &review.WeekStart, &review.Summary,
		&review.SourceRunID, &review.CreatedAt, &review.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest review: %w", err)
	}
	return &review, nil
}

// List returns reviews newest first.
func (r *ReviewRepo) List(ctx context.Context, limit int) ([]*ReviewRecord, error) {
	query := `SELECT id, path, week_start, summary, source_run_id, created_at, updated_at
		 FROM weekly_reviews ORDER BY week_start DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*ReviewRecord
	for rows.Next() {
		var review ReviewRecord
		if err := rows.Scan(&review.ID, &review.Path, &review.WeekStart, &review.Summary,
			&review.SourceRunID, &review.CreatedAt, &review.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &review)
	}
	return reviews, rows.Err()
}
