package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lifevault/internal/timeutil"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// migration is one ordered schema change. The checksum of its SQL is recorded
// on first application; a later mismatch for an applied version is fatal.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		sql: `
CREATE TABLE artifact_runs (
	run_id TEXT PRIMARY KEY,
	run_kind TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	parent_run_id TEXT NOT NULL DEFAULT '',
	notes_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE TABLE entries_index (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT 'note',
	status TEXT NOT NULL DEFAULT 'inbox',
	summary TEXT NOT NULL DEFAULT '',
	raw_text TEXT NOT NULL DEFAULT '',
	details_md TEXT NOT NULL DEFAULT '',
	actions_md TEXT NOT NULL DEFAULT '',
	tags_json TEXT NOT NULL DEFAULT '[]',
	goals_json TEXT NOT NULL DEFAULT '[]',
	source_run_id TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	content_hash_version TEXT NOT NULL
);
CREATE INDEX idx_entries_status ON entries_index(status);

CREATE TABLE goals (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	horizon TEXT NOT NULL DEFAULT '',
	target_date TEXT NOT NULL DEFAULT '',
	tags_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE goal_links (
	entry_id TEXT NOT NULL,
	goal_id TEXT NOT NULL,
	PRIMARY KEY (entry_id, goal_id)
);

CREATE TABLE projects (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	goal_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE tasks (
	id TEXT PRIMARY KEY,
	logical_id TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	source_entry_id TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL,
	goal_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	priority TEXT NOT NULL DEFAULT '',
	due_date TEXT NOT NULL DEFAULT '',
	payload_hash TEXT NOT NULL,
	payload_hash_version TEXT NOT NULL,
	version_no INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX idx_tasks_logical ON tasks(logical_id, is_current);

CREATE TABLE task_project_links (
	task_logical_id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL
);

CREATE TABLE improvements (
	id TEXT PRIMARY KEY,
	logical_id TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	source_entry_id TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL,
	title TEXT NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	last_nudged_at TEXT NOT NULL DEFAULT '',
	payload_hash TEXT NOT NULL,
	payload_hash_version TEXT NOT NULL,
	version_no INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX idx_improvements_logical ON improvements(logical_id, is_current);

CREATE TABLE insights (
	id TEXT PRIMARY KEY,
	logical_id TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	source_entry_id TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT '',
	payload_hash TEXT NOT NULL,
	payload_hash_version TEXT NOT NULL,
	version_no INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX idx_insights_logical ON insights(logical_id, is_current);

CREATE TABLE chat_threads (
	id TEXT PRIMARY KEY,
	logical_id TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL,
	goal_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	summary TEXT NOT NULL DEFAULT '',
	payload_hash TEXT NOT NULL,
	payload_hash_version TEXT NOT NULL,
	version_no INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX idx_chat_threads_logical ON chat_threads(logical_id, is_current);

CREATE TABLE chat_messages (
	id TEXT PRIMARY KEY,
	thread_logical_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX idx_chat_messages_thread ON chat_messages(thread_logical_id, created_at);

CREATE TABLE observations (
	id TEXT PRIMARY KEY,
	logical_id TEXT NOT NULL,
	entry_id TEXT NOT NULL,
	source_run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	date TEXT NOT NULL DEFAULT '',
	steps INTEGER NOT NULL DEFAULT 0,
	minutes INTEGER NOT NULL DEFAULT 0,
	calories INTEGER NOT NULL DEFAULT 0,
	weight_kg REAL NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	payload_hash TEXT NOT NULL,
	payload_hash_version TEXT NOT NULL,
	version_no INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX idx_observations_logical ON observations(logical_id, is_current);
CREATE INDEX idx_observations_kind_date ON observations(kind, date);

CREATE TABLE weekly_reviews (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '',
	week_start TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE sync_conflicts (
	conflict_id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	logical_id TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	app_run_id TEXT NOT NULL DEFAULT '',
	vault_content_hash TEXT NOT NULL,
	db_content_hash TEXT NOT NULL,
	conflict_status TEXT NOT NULL DEFAULT 'open',
	details_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	resolved_at TEXT
);
CREATE INDEX idx_conflicts_status ON sync_conflicts(conflict_status);

CREATE TABLE sync_conflict_events (
	event_id TEXT PRIMARY KEY,
	conflict_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`,
	},
	{
		version: 2,
		name:    "ideas",
		sql: `
CREATE TABLE ideas (
	id TEXT PRIMARY KEY,
	logical_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'raw',
	converted_to_type TEXT NOT NULL DEFAULT '',
	converted_to_id TEXT NOT NULL DEFAULT '',
	source_entry_id TEXT NOT NULL DEFAULT '',
	source_run_id TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	payload_hash_version TEXT NOT NULL,
	version_no INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX idx_ideas_logical ON ideas(logical_id, is_current);

CREATE TABLE idea_entries (
	idea_id TEXT NOT NULL,
	entry_id TEXT NOT NULL,
	link_type TEXT NOT NULL DEFAULT 'related',
	source_run_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	PRIMARY KEY (idea_id, entry_id, link_type)
);
`,
	},
}

// Migrate applies all pending schema migrations in order, recording each in
// schema_migrations with a checksum of its SQL. A checksum mismatch for an
// already-applied migration means the schema definition drifted after the
// fact and is returned as a fatal error.
func Migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		checksum := migrationChecksum(m.sql)

		var applied string
		err := db.QueryRowContext(ctx,
			"SELECT checksum FROM schema_migrations WHERE version = ?", m.version,
		).Scan(&applied)
		if err == nil {
			if applied != checksum {
				return fmt.Errorf("migration %d (%s) checksum mismatch: recorded %s, computed %s",
					m.version, m.name, applied, checksum)
			}
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to query schema_migrations: %w", err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
			m.version, m.name, checksum, timeutil.UTCNowISO(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

func migrationChecksum(sqlText string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sqlText)))
	return hex.EncodeToString(sum[:])
}

// derivedTables are the tables a full vault rebuild clears and repopulates.
// artifact_runs, conflicts, ideas and their link tables survive a rebuild:
// runs are an append-only log, and conflicts and ideas are app-owned rather
// than projected from files.
var derivedTables = []string{
	"entries_index",
	"goal_links",
	"goals",
	"projects",
	"tasks",
	"task_project_links",
	"improvements",
	"insights",
	"chat_threads",
	"observations",
	"weekly_reviews",
}

// ClearDerived deletes all rows from the derived projection tables inside the
// given transaction, ahead of a full rebuild.
func ClearDerived(ctx context.Context, tx *sql.Tx) error {
	for _, table := range derivedTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
