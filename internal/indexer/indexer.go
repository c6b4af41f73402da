package indexer

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lifevault/internal/contextutil"
	"lifevault/internal/hashing"
	"lifevault/internal/storage"
	"lifevault/internal/timeutil"
	"lifevault/internal/vault"
)

// RebuildStats reports what a full rebuild projected out of the vault.
type RebuildStats struct {
	FilesScanned        int `json:"files_scanned"`
	EntriesIndexed      int `json:"entries_indexed"`
	GoalsIndexed        int `json:"goals_indexed"`
	ProjectsIndexed     int `json:"projects_indexed"`
	TasksIndexed        int `json:"tasks_indexed"`
	ImprovementsIndexed int `json:"improvements_indexed"`
	InsightsIndexed     int `json:"insights_indexed"`
	ChatsIndexed        int `json:"chats_indexed"`
	ReviewsIndexed      int `json:"reviews_indexed"`
}

// Indexer projects vault markdown files into the SQLite index. The vault is
// the source of truth: every projection here can be thrown away and rebuilt
// from the files alone.
type Indexer struct {
	db           *sql.DB
	manager      *vault.Manager
	runs         *storage.RunRepo
	entries      *storage.EntryRepo
	goals        *storage.GoalRepo
	projects     *storage.ProjectRepo
	tasks        *storage.TaskRepo
	improvements *storage.ImprovementRepo
	insights     *storage.InsightRepo
	chats        *storage.ChatRepo
	reviews      *storage.ReviewRepo
	search       *storage.SearchRepo
}

// New creates an indexer over the given database and vault. A nil search
// repo disables full-text index maintenance, for builds without the
// sqlite_fts5 tag.
func New(db *sql.DB, manager *vault.Manager, search *storage.SearchRepo) *Indexer {
	return &Indexer{
		db:           db,
		manager:      manager,
		runs:         storage.NewRunRepo(db),
		entries:      storage.NewEntryRepo(db),
		goals:        storage.NewGoalRepo(db),
		projects:     storage.NewProjectRepo(db),
		tasks:        storage.NewTaskRepo(db),
		improvements: storage.NewImprovementRepo(db),
		insights:     storage.NewInsightRepo(db),
		chats:        storage.NewChatRepo(db),
		reviews:      storage.NewReviewRepo(db),
		search:       search,
	}
}

// withTx returns an indexer whose repo writes all run inside the given
// transaction. The search repo is left off: the FTS rebuild stays outside.
func (ix *Indexer) withTx(tx storage.DBTX) *Indexer {
	return &Indexer{
		db:           ix.db,
		manager:      ix.manager,
		runs:         storage.NewRunRepo(tx),
		entries:      storage.NewEntryRepo(tx),
		goals:        storage.NewGoalRepo(tx),
		projects:     storage.NewProjectRepo(tx),
		tasks:        storage.NewTaskRepo(tx),
		improvements: storage.NewImprovementRepo(tx),
		insights:     storage.NewInsightRepo(tx),
		chats:        storage.NewChatRepo(tx),
		reviews:      storage.NewReviewRepo(tx),
	}
}

// pendingLink defers an entry's goal links until every goal file has been
// projected, so link validity does not depend on walk order.
type pendingLink struct {
	entryID string
	goalIDs []string
}

// Rebuild clears every derived table and reprojects the whole vault, all in
// one transaction: a rebuild that fails midway leaves the previous index
// intact instead of a half-cleared one. Deterministic: running it twice over
// an unchanged vault yields identical rows, including version flags and
// fallback run ids.
func (ix *Indexer) Rebuild(ctx context.Context) (*RebuildStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	stats := &RebuildStats{}

	var paths []string
	err := filepath.WalkDir(ix.manager.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault: %w", err)
	}
	sort.Strings(paths)

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	scoped := ix.withTx(tx)

	if err := storage.ClearDerived(ctx, tx); err != nil {
		return nil, err
	}
	var links []pendingLink
	for _, path := range paths {
		if err := scoped.indexFile(ctx, path, stats, &links); err != nil {
			return nil, err
		}
	}
	for _, link := range links {
		if err := scoped.entries.ReplaceGoalLinks(ctx, link.entryID, link.goalIDs); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rebuild: %w", err)
	}

	if err := ix.rebuildSearch(ctx); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "vault rebuild complete",
		"files", stats.FilesScanned, "entries", stats.EntriesIndexed, "tasks", stats.TasksIndexed)
	return stats, nil
}

// IndexPaths reprojects the given files without clearing anything, again as a
// single transaction. Missing files are skipped; the full-text index is
// rebuilt wholesale afterwards.
func (ix *Indexer) IndexPaths(ctx context.Context, paths []string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	scoped := ix.withTx(tx)

	stats := &RebuildStats{}
	var links []pendingLink
	for _, path := range paths {
		if err := scoped.indexFile(ctx, path, stats, &links); err != nil {
			return err
		}
	}
	for _, link := range links {
		if err := scoped.entries.ReplaceGoalLinks(ctx, link.entryID, link.goalIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index update: %w", err)
	}
	return ix.rebuildSearch(ctx)
}

func (ix *Indexer) rebuildSearch(ctx context.Context) error {
	if ix.search == nil {
		return nil
	}
	if err := ix.search.EnsureIndex(ctx); err != nil {
		return err
	}
	return ix.search.RebuildAll(ctx)
}

func (ix *Indexer) indexFile(ctx context.Context, path string, stats *RebuildStats, links *[]pendingLink) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	stats.FilesScanned++

	text := string(raw)
	note, err := vault.ParseNote(text)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "skipping malformed vault file", "path", path, "error", err)
		return nil
	}
	// Files without frontmatter are not entities.
	if !note.HasFrontmatter() {
		return nil
	}

	// Classification looks at folder names, so it must see the path relative
	// to the vault root. An absolute path could pass through a parent
	// directory that happens to be named like a vault folder.
	rel := path
	if r, err := filepath.Rel(ix.manager.Root(), path); err == nil {
		rel = r
	}

	var counter *int
	switch classify(rel, note.Frontmatter) {
	case classGoal:
		err = ix.indexGoal(ctx, path, note)
		counter = &stats.GoalsIndexed
	case classProject:
		err = ix.indexProject(ctx, path, note)
		counter = &stats.ProjectsIndexed
	case classTask:
		err = ix.indexTask(ctx, path, note)
		counter = &stats.TasksIndexed
	case classImprovement:
		err = ix.indexImprovement(ctx, path, note)
		counter = &stats.ImprovementsIndexed
	case classInsight:
		err = ix.indexInsight(ctx, path, note)
		counter = &stats.InsightsIndexed
	case classChatThread:
		err = ix.indexChatThread(ctx, path, note)
		counter = &stats.ChatsIndexed
	case classReview:
		err = ix.indexReview(ctx, path, note)
		counter = &stats.ReviewsIndexed
	case classEntry:
		var goalIDs []string
		goalIDs, err = ix.indexEntry(ctx, path, text, note)
		counter = &stats.EntriesIndexed
		if err == nil {
			*links = append(*links, pendingLink{
				entryID: vault.FrontmatterString(note.Frontmatter, "id"),
				goalIDs: goalIDs,
			})
		}
	}
	if errors.Is(err, errSkipped) {
		return nil
	}
	if err != nil {
		return err
	}
	*counter++
	return nil
}

// errSkipped marks files whose frontmatter lacks the identity the projection
// needs. They are counted as scanned but project nothing.
var errSkipped = errors.New("file skipped")

// ensureRun resolves the provenance run for a file. Hand-created files carry
// no source_run_id, so a deterministic rebuild run id is synthesized from the
// path and entity id; indexing the same unedited file always maps to the same
// run row.
func (ix *Indexer) ensureRun(ctx context.Context, path string, fm map[string]any) (string, error) {
	runID := vault.FrontmatterString(fm, "source_run_id")
	if runID == "" {
		id := vault.FrontmatterString(fm, "id")
		if id == "" {
			id = "unknown"
		}
		sum := sha1.Sum([]byte(filepath.ToSlash(path) + ":" + id))
		runID = "rebuild-" + hex.EncodeToString(sum[:])[:16]
	}
	err := ix.runs.Ensure(ctx, &storage.RunRecord{
		RunID:   runID,
		RunKind: storage.RunKindRebuild,
		Actor:   "indexer",
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

func (ix *Indexer) indexEntry(ctx context.Context, path, text string, note vault.ParsedNote) ([]string, error) {
	fm := note.Frontmatter
	id := vault.FrontmatterString(fm, "id")
	if id == "" {
		return nil, errSkipped
	}

	created := vault.FrontmatterString(fm, "created")
	if created == "" {
		created = timeutil.UTCNowISO()
	}
	updated := vault.FrontmatterString(fm, "updated")
	if updated == "" {
		updated = created
	}
	runID, err := ix.ensureRun(ctx, path, fm)
	if err != nil {
		return nil, err
	}

	entryType := vault.FrontmatterString(fm, "type")
	if entryType == "" {
		entryType = "note"
	}
	status := vault.FrontmatterString(fm, "status")
	if status == "" {
		status = storage.EntryStatusInbox
	}

	goalIDs := vault.FrontmatterStringList(fm, "goals")
	rec := &storage.EntryRecord{
		ID:                 id,
		Path:               path,
		CreatedAt:          created,
		UpdatedAt:          updated,
		Type:               entryType,
		Status:             status,
		Summary:            vault.FrontmatterString(fm, "summary"),
		RawText:            note.Section(vault.SectionRaw),
		DetailsMD:          note.Section(vault.SectionDetails),
		ActionsMD:          note.Section(vault.SectionActions),
		SourceRunID:        runID,
		ContentHash:        hashing.ContentHash(text),
		ContentHashVersion: hashing.ContentHashVersion,
	}
	rec.SetTags(vault.FrontmatterStringList(fm, "tags"))
	rec.SetGoals(goalIDs)
	if err := ix.entries.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	return goalIDs, nil
}

func (ix *Indexer) indexGoal(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	id := vault.FrontmatterString(fm, "goal_id")
	if id == "" {
		id = vault.FrontmatterString(fm, "id")
	}
	if id == "" {
		return errSkipped
	}

	title := vault.FrontmatterString(fm, "title")
	if title == "" {
		title = vault.FrontmatterString(fm, "name")
	}
	if title == "" {
		title = firstHeading(note.Body)
	}
	if title == "" {
		title = id
	}
	status := vault.FrontmatterString(fm, "status")
	if status == "" {
		status = "active"
	}
	created := vault.FrontmatterString(fm, "created")
	updated := vault.FrontmatterString(fm, "updated")
	if updated == "" {
		updated = created
	}

	rec := &storage.GoalRecord{
		ID:         id,
		Path:       path,
		Title:      title,
		Status:     status,
		Horizon:    vault.FrontmatterString(fm, "horizon"),
		TargetDate: vault.FrontmatterString(fm, "target_date"),
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
	rec.SetTags(vault.FrontmatterStringList(fm, "tags"))
	return ix.goals.Upsert(ctx, rec)
}

func (ix *Indexer) indexProject(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	id := vault.FrontmatterString(fm, "project_id")
	if id == "" {
		id = vault.FrontmatterString(fm, "id")
	}
	if id == "" {
		return errSkipped
	}

	title := vault.FrontmatterString(fm, "title")
	if title == "" {
		title = vault.FrontmatterString(fm, "name")
	}
	if title == "" {
		title = id
	}
	status := vault.FrontmatterString(fm, "status")
	if status == "" {
		status = "active"
	}
	return ix.projects.Upsert(ctx, &storage.ProjectRecord{
		ID:        id,
		Path:      path,
		Title:     title,
		Status:    status,
		GoalID:    vault.FrontmatterString(fm, "goal_id"),
		CreatedAt: vault.FrontmatterString(fm, "created"),
		UpdatedAt: vault.FrontmatterString(fm, "updated"),
	})
}

// versionFields pulls the shared version-chain frontmatter out of an entity
// note. The file's claims are projected as-is; repair of double-current
// lineages happens through DemoteAllBut after the upsert.
type versionFields struct {
	id           string
	logicalID    string
	runID        string
	versionNo    int
	isCurrent    bool
	supersedesID string
	createdAt    string
	updatedAt    string
}

func (ix *Indexer) versionFields(ctx context.Context, path string, fm map[string]any) (versionFields, error) {
	id := vault.FrontmatterString(fm, "id")
	if id == "" {
		return versionFields{}, errSkipped
	}
	logicalID := vault.FrontmatterString(fm, "logical_id")
	if logicalID == "" {
		logicalID = id
	}
	runID, err := ix.ensureRun(ctx, path, fm)
	if err != nil {
		return versionFields{}, err
	}
	created := vault.FrontmatterString(fm, "created")
	if created == "" {
		created = timeutil.UTCNowISO()
	}
	updated := vault.FrontmatterString(fm, "updated")
	if updated == "" {
		updated = created
	}
	return versionFields{
		id:           id,
		logicalID:    logicalID,
		runID:        runID,
		versionNo:    vault.FrontmatterInt(fm, "version_no", 1),
		isCurrent:    vault.FrontmatterBool(fm, "is_current", true),
		supersedesID: vault.FrontmatterString(fm, "supersedes_id"),
		createdAt:    created,
		updatedAt:    updated,
	}, nil
}

// payloadHash takes the hash the file claims, or recomputes it from the
// projected payload when absent.
func payloadHash(fm map[string]any, payload map[string]any) (string, error) {
	if claimed := vault.FrontmatterString(fm, "payload_hash"); claimed != "" {
		return claimed, nil
	}
	return hashing.CanonicalPayloadHash(payload)
}

func (ix *Indexer) validGoal(ctx context.Context, goalID string) string {
	if goalID == "" {
		return ""
	}
	ok, err := ix.goals.Exists(ctx, goalID)
	if err != nil || !ok {
		return ""
	}
	return goalID
}

func (ix *Indexer) validEntry(ctx context.Context, entryID string) string {
	if entryID == "" {
		return ""
	}
	if _, err := ix.entries.Get(ctx, entryID); err != nil {
		return ""
	}
	return entryID
}

func (ix *Indexer) indexTask(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	vf, err := ix.versionFields(ctx, path, fm)
	if err != nil {
		return err
	}

	title := vault.FrontmatterString(fm, "title")
	if title == "" {
		title = firstHeading(note.Body)
	}
	if title == "" {
		title = vf.id
	}
	status := vault.FrontmatterString(fm, "status")
	if status == "" {
		status = storage.TaskStatusOpen
	}
	priority := vault.FrontmatterString(fm, "priority")
	if priority == "" {
		priority = "medium"
	}
	goalID := ix.validGoal(ctx, vault.FrontmatterString(fm, "goal_id"))
	sourceEntryID := ix.validEntry(ctx, vault.FrontmatterString(fm, "source_entry_id"))
	dueDate := vault.FrontmatterString(fm, "due_date")

	hash, err := payloadHash(fm, map[string]any{
		"title":           title,
		"status":          status,
		"priority":        priority,
		"due_date":        dueDate,
		"goal_id":         goalID,
		"source_entry_id": sourceEntryID,
	})
	if err != nil {
		return err
	}

	rec := &storage.TaskRecord{
		ID:                 vf.id,
		LogicalID:          vf.logicalID,
		Path:               path,
		SourceEntryID:      sourceEntryID,
		SourceRunID:        vf.runID,
		GoalID:             goalID,
		Title:              title,
		Status:             status,
		Priority:           priority,
		DueDate:            dueDate,
		PayloadHash:        hash,
		PayloadHashVersion: hashing.PayloadHashVersion,
		VersionNo:          vf.versionNo,
		IsCurrent:          vf.isCurrent,
		SupersedesID:       vf.supersedesID,
		CreatedAt:          vf.createdAt,
		UpdatedAt:          vf.updatedAt,
	}
	if err := ix.tasks.UpsertRow(ctx, rec); err != nil {
		return err
	}
	if vf.isCurrent {
		return ix.tasks.DemoteAllBut(ctx, vf.logicalID, vf.id)
	}
	return nil
}

func (ix *Indexer) indexImprovement(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	vf, err := ix.versionFields(ctx, path, fm)
	if err != nil {
		return err
	}

	title := vault.FrontmatterString(fm, "title")
	if title == "" {
		title = firstHeading(note.Body)
	}
	if title == "" {
		title = vf.id
	}
	rationale := note.Section("Rationale")
	if rationale == "" {
		rationale = vault.FrontmatterString(fm, "rationale")
	}
	status := vault.FrontmatterString(fm, "status")
	if status == "" {
		status = "open"
	}
	sourceEntryID := ix.validEntry(ctx, vault.FrontmatterString(fm, "source_entry_id"))

	hash, err := payloadHash(fm, map[string]any{
		"title":           title,
		"rationale":       rationale,
		"status":          status,
		"source_entry_id": sourceEntryID,
	})
	if err != nil {
		return err
	}

	rec := &storage.ImprovementRecord{
		ID:                 vf.id,
		LogicalID:          vf.logicalID,
		Path:               path,
		SourceEntryID:      sourceEntryID,
		SourceRunID:        vf.runID,
		Title:              title,
		Rationale:          rationale,
		Status:             status,
		LastNudgedAt:       vault.FrontmatterString(fm, "last_nudged_at"),
		PayloadHash:        hash,
		PayloadHashVersion: hashing.PayloadHashVersion,
		VersionNo:          vf.versionNo,
		IsCurrent:          vf.isCurrent,
		SupersedesID:       vf.supersedesID,
		CreatedAt:          vf.createdAt,
		UpdatedAt:          vf.updatedAt,
	}
	if err := ix.improvements.UpsertRow(ctx, rec); err != nil {
		return err
	}
	if vf.isCurrent {
		return ix.improvements.DemoteAllBut(ctx, vf.logicalID, vf.id)
	}
	return nil
}

func (ix *Indexer) indexInsight(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	vf, err := ix.versionFields(ctx, path, fm)
	if err != nil {
		return err
	}

	title := vault.FrontmatterString(fm, "title")
	if title == "" {
		title = firstHeading(note.Body)
	}
	if title == "" {
		title = vf.id
	}
	body := note.Section("Body")
	if body == "" {
		body = note.Section("Evidence")
	}
	sourceEntryID := ix.validEntry(ctx, vault.FrontmatterString(fm, "source_entry_id"))
	kind := vault.FrontmatterString(fm, "kind")

	hash, err := payloadHash(fm, map[string]any{
		"title":           title,
		"body":            body,
		"kind":            kind,
		"source_entry_id": sourceEntryID,
	})
	if err != nil {
		return err
	}

	rec := &storage.InsightRecord{
		ID:                 vf.id,
		LogicalID:          vf.logicalID,
		Path:               path,
		SourceEntryID:      sourceEntryID,
		SourceRunID:        vf.runID,
		Title:              title,
		Body:               body,
		Kind:               kind,
		PayloadHash:        hash,
		PayloadHashVersion: hashing.PayloadHashVersion,
		VersionNo:          vf.versionNo,
		IsCurrent:          vf.isCurrent,
		SupersedesID:       vf.supersedesID,
		CreatedAt:          vf.createdAt,
		UpdatedAt:          vf.updatedAt,
	}
	if err := ix.insights.UpsertRow(ctx, rec); err != nil {
		return err
	}
	if vf.isCurrent {
		return ix.insights.DemoteAllBut(ctx, vf.logicalID, vf.id)
	}
	return nil
}

func (ix *Indexer) indexChatThread(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	vf, err := ix.versionFields(ctx, path, fm)
	if err != nil {
		return err
	}

	title := vault.FrontmatterString(fm, "title")
	if title == "" {
		title = firstHeading(note.Body)
	}
	if title == "" {
		title = vf.id
	}
	status := vault.FrontmatterString(fm, "status")
	if status == "" {
		status = "active"
	}
	summary := vault.FrontmatterString(fm, "summary")
	if summary == "" {
		summary = note.Section("Summary")
	}
	goalID := ix.validGoal(ctx, vault.FrontmatterString(fm, "goal_id"))

	hash, err := payloadHash(fm, map[string]any{
		"title":   title,
		"status":  status,
		"summary": summary,
		"goal_id": goalID,
	})
	if err != nil {
		return err
	}

	rec := &storage.ChatThreadRecord{
		ID:                 vf.id,
		LogicalID:          vf.logicalID,
		Path:               path,
		SourceRunID:        vf.runID,
		GoalID:             goalID,
		Title:              title,
		Status:             status,
		Summary:            summary,
		PayloadHash:        hash,
		PayloadHashVersion: hashing.PayloadHashVersion,
		VersionNo:          vf.versionNo,
		IsCurrent:          vf.isCurrent,
		SupersedesID:       vf.supersedesID,
		CreatedAt:          vf.createdAt,
		UpdatedAt:          vf.updatedAt,
	}
	if err := ix.chats.UpsertThreadRow(ctx, rec); err != nil {
		return err
	}
	if vf.isCurrent {
		return ix.chats.DemoteAllBut(ctx, vf.logicalID, vf.id)
	}
	return nil
}

func (ix *Indexer) indexReview(ctx context.Context, path string, note vault.ParsedNote) error {
	fm := note.Frontmatter
	weekStart := vault.FrontmatterString(fm, "week_start")
	if weekStart == "" {
		return errSkipped
	}
	id := vault.FrontmatterString(fm, "id")
	if id == "" {
		id = "review-" + weekStart
	}
	runID, err := ix.ensureRun(ctx, path, fm)
	if err != nil {
		return err
	}
	summary := vault.FrontmatterString(fm, "summary")
	if summary == "" {
		summary = note.Section("Summary")
	}
	created := vault.FrontmatterString(fm, "created")
	updated := vault.FrontmatterString(fm, "updated")
	if updated == "" {
		updated = created
	}
	return ix.reviews.Upsert(ctx, &storage.ReviewRecord{
		ID:          id,
		Path:        path,
		WeekStart:   weekStart,
		Summary:     summary,
		SourceRunID: runID,
		CreatedAt:   created,
		UpdatedAt:   updated,
	})
}
