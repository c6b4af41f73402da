package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lifevault/internal/hashing"
	"lifevault/internal/timeutil"
)

const chatThreadColumns = `id, logical_id, path, source_run_id, goal_id, title, status, summary,
	payload_hash, payload_hash_version, version_no, is_current, supersedes_id, created_at, updated_at`

// ChatRepo provides methods for the chat_threads version-chain table and the
// flat chat_messages table.
type ChatRepo struct {
	db DBTX
}

// NewChatRepo creates a new ChatRepo.
func NewChatRepo(db DBTX) *ChatRepo {
	return &ChatRepo{db: db}
}

func chatThreadPayload(rec *ChatThreadRecord) map[string]any {
	return map[string]any{
		"title":   rec.Title,
		"status":  rec.Status,
		"summary": rec.Summary,
		"goal_id": rec.GoalID,
	}
}

// CurrentThread returns the single current version of a thread lineage.
func (r *ChatRepo) CurrentThread(ctx context.Context, logicalID string) (*ChatThreadRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+chatThreadColumns+" FROM chat_threads WHERE logical_id = ? AND is_current = 1", logicalID)
	rec, err := scanChatThreadFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat thread: %w", err)
	}
	return rec, nil
}

// ListThreads returns current thread versions, newest first.
func (r *ChatRepo) ListThreads(ctx context.Context, limit int) ([]*ChatThreadRecord, error) {
	query := "SELECT " + chatThreadColumns + " FROM chat_threads WHERE is_current = 1 ORDER BY updated_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat threads: %w", err)
	}
	defer rows.Close()

	var recs []*ChatThreadRecord
	for rows.Next() {
		rec, err := scanChatThreadFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat thread: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// WriteThreadVersion applies a versioned write for the draft's lineage; see
// TaskRepo.WriteVersion for the chain semantics.
func (r *ChatRepo) WriteThreadVersion(ctx context.Context, draft *ChatThreadRecord) (*ChatThreadRecord, bool, error) {
	hash, err := hashing.CanonicalPayloadHash(chatThreadPayload(draft))
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash chat thread payload: %w", err)
	}

	current, err := r.CurrentThread(ctx, draft.LogicalID)
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
		return nil, false, fmt.Errorf("failed to begin chat thread write: %w", err)
	}
	defer rollback()

	if current != nil {
		if err := demoteCurrent(ctx, tx, "chat_threads", rec.LogicalID, now); err != nil {
			return nil, false, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chat_threads ("+chatThreadColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.LogicalID, rec.Path, rec.SourceRunID, rec.GoalID,
		rec.Title, rec.Status, rec.Summary,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to insert chat thread version: %w", err)
	}
	if err := commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit chat thread write: %w", err)
	}
	return &rec, true, nil
}

// UpsertThreadRow inserts or replaces a version row exactly as given; see
// TaskRepo.UpsertRow.
func (r *ChatRepo) UpsertThreadRow(ctx context.Context, rec *ChatThreadRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_threads (`+chatThreadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			logical_id = excluded.logical_id,
			path = excluded.path,
			source_run_id = excluded.source_run_id,
			goal_id = excluded.goal_id,
			title = excluded.title,
			status = excluded.status,
			summary = excluded.summary,
			payload_hash = excluded.payload_hash,
			payload_hash_version = excluded.payload_hash_version,
			version_no = excluded.version_no,
			is_current = excluded.is_current,
			supersedes_id = excluded.supersedes_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.LogicalID, rec.Path, rec.SourceRunID, rec.GoalID,
		rec.Title, rec.Status, rec.Summary,
		rec.PayloadHash, rec.PayloadHashVersion, rec.VersionNo, boolToInt(rec.IsCurrent),
		rec.SupersedesID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chat thread row: %w", err)
	}
	return nil
}

// DemoteAllBut forces keepID to be the only current row of its lineage.
func (r *ChatRepo) DemoteAllBut(ctx context.Context, logicalID, keepID string) error {
	return demoteAllBut(ctx, r.db, "chat_threads", logicalID, keepID, timeutil.UTCNowISO())
}

// AppendMessage adds a message to a thread. Messages are append-only.
func (r *ChatRepo) AppendMessage(ctx context.Context, msg *ChatMessageRecord) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = timeutil.UTCNowISO()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, thread_logical_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ThreadLogicalID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// Messages returns a thread's messages in chronological order.
func (r *ChatRepo) Messages(ctx context.Context, threadLogicalID string) ([]*ChatMessageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, thread_logical_id, role, content, created_at FROM chat_messages WHERE thread_logical_id = ? ORDER BY created_at, id",
		threadLogicalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*ChatMessageRecord
	for rows.Next() {
		var msg ChatMessageRecord
		if err := rows.Scan(&msg.ID, &msg.ThreadLogicalID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func scanChatThreadFrom(s rowScanner) (*ChatThreadRecord, error) {
	var rec ChatThreadRecord
	var isCurrent int
	err := s.Scan(
		&rec.ID, &rec.LogicalID, &rec.Path, &rec.SourceRunID, &rec.GoalID,
		&rec.Title, &rec.Status, &rec.Summary,
		&rec.PayloadHash, &rec.PayloadHashVersion, &rec.VersionNo, &isCurrent,
		&rec.SupersedesID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsCurrent = isCurrent != 0
	return &rec, nil
}
