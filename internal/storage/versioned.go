package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Repos hold a DBTX
// so a caller that owns a transaction can scope every repo write to it; the
// indexer uses this to make a whole rebuild atomic.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer is satisfied by *sql.DB and *sql.Tx so chain helpers can run inside
// or outside an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// beginWrite starts a transaction when the repo holds a bare connection, and
// joins the enclosing one otherwise. Commit and rollback are no-ops in the
// joined case: the owner of the outer transaction decides its fate.
func beginWrite(ctx context.Context, db DBTX) (DBTX, func() error, func(), error) {
	b, ok := db.(txBeginner)
	if !ok {
		return db, func() error { return nil }, func() {}, nil
	}
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, tx.Commit, func() { _ = tx.Rollback() }, nil
}

// demoteCurrent clears is_current on the active row of a lineage, ahead of
// inserting its successor. A lineage with no current row is a no-op.
func demoteCurrent(ctx context.Context, e execer, table, logicalID, now string) error {
	_, err := e.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET is_current = 0, updated_at = ? WHERE logical_id = ? AND is_current = 1", table),
		now, logicalID,
	)
	if err != nil {
		return fmt.Errorf("failed to demote current %s row: %w", table, err)
	}
	return nil
}

// demoteAllBut forces exactly one current row per lineage after a rebuild
// pass, in case a stale vault file still claims is_current on an old version.
func demoteAllBut(ctx context.Context, e execer, table, logicalID, keepID, now string) error {
	_, err := e.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET is_current = 0, updated_at = ? WHERE logical_id = ? AND id != ? AND is_current = 1", table),
		now, logicalID, keepID,
	)
	if err != nil {
		return fmt.Errorf("failed to demote stale %s rows: %w", table, err)
	}
	_, err = e.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET is_current = 1 WHERE id = ?", table),
		keepID,
	)
	if err != nil {
		return fmt.Errorf("failed to promote %s row: %w", table, err)
	}
	return nil
}
