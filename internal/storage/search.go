package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SearchRepo maintains the entries_fts full-text index. The index maps one
// row per non-archived entry and is rebuilt wholesale after every indexing
// pass rather than patched incrementally.
//
// Requires the sqlite_fts5 build tag on github.com/mattn/go-sqlite3.
type SearchRepo struct {
	db *sql.DB
}

// NewSearchRepo creates a new SearchRepo.
func NewSearchRepo(db *sql.DB) *SearchRepo {
	return &SearchRepo{db: db}
}

// EnsureIndex creates the FTS5 virtual table if missing. Kept out of the
// checksummed migration ledger because virtual table availability depends on
// how the SQLite driver was compiled.
func (r *SearchRepo) EnsureIndex(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			entry_id UNINDEXED, summary, raw_text, details, tags, goals
		)`)
	if err != nil {
		return fmt.Errorf("failed to create full-text index: %w", err)
	}
	return nil
}

// RebuildAll clears and repopulates the full-text index from entries_index,
// excluding archived entries.
func (r *SearchRepo) RebuildAll(ctx context.Context) error {
	if err := r.EnsureIndex(ctx); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin search rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts"); err != nil {
		return fmt.Errorf("failed to clear full-text index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries_fts (entry_id, summary, raw_text, details, tags, goals)
		 SELECT id, summary, raw_text, details_md, tags_json, goals_json
		 FROM entries_index WHERE status != 'archived'`,
	); err != nil {
		return fmt.Errorf("failed to populate full-text index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit search rebuild: %w", err)
	}
	return nil
}

// SearchFilter narrows Search results. Zero values mean no filtering.
type SearchFilter struct {
	Type   string
	Tag    string
	GoalID string
	Limit  int
}

// SearchResult is one full-text match joined back to its entry row.
type SearchResult struct {
	EntryID string
	Path    string
	Type    string
	Status  string
	Summary string
	Snippet string
	Rank    float64
}

// Search runs an FTS5 MATCH query ranked by bm25, best matches first.
func (r *SearchRepo) Search(ctx context.Context, query string, filter SearchFilter) ([]*SearchResult, error) {
	sqlQuery := `SELECT e.id, e.path, e.type, e.status, e.summary,
			snippet(entries_fts, -1, '[', ']', '…', 12),
			bm25(entries_fts)
		 FROM entries_fts
		 JOIN entries_index e ON e.id = entries_fts.entry_id
		 WHERE entries_fts MATCH ?`
	args := []any{query}
	if filter.Type != "" {
		sqlQuery += " AND e.type = ?"
		args = append(args, filter.Type)
	}
	if filter.Tag != "" {
		sqlQuery += " AND e.tags_json LIKE ?"
		args = append(args, `%"`+filter.Tag+`"%`)
	}
	if filter.GoalID != "" {
		sqlQuery += " AND e.id IN (SELECT entry_id FROM goal_links WHERE goal_id = ?)"
		args = append(args, filter.GoalID)
	}
	sqlQuery += " ORDER BY bm25(entries_fts)"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	sqlQuery += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(&res.EntryID, &res.Path, &res.Type, &res.Status,
			&res.Summary, &res.Snippet, &res.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// TypeFacets returns the count of matches per entry type for a query.
func (r *SearchRepo) TypeFacets(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.type, COUNT(*)
		 FROM entries_fts
		 JOIN entries_index e ON e.id = entries_fts.entry_id
		 WHERE entries_fts MATCH ?
		 GROUP BY e.type`,
		query,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute search facets: %w", err)
	}
	defer rows.Close()

	facets := map[string]int{}
	for rows.Next() {
		var entryType string
		var count int
		if err := rows.Scan(&entryType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan facet: %w", err)
		}
		facets[entryType] = count
	}
	return facets, rows.Err()
}
