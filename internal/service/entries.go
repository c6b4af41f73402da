package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifevault/internal/contextutil"
	"lifevault/internal/distill"
	"lifevault/internal/llm"
	"lifevault/internal/storage"
	"lifevault/internal/timeutil"
	"lifevault/internal/vault"
)

// improvementTriggers are phrases in a capture that signal the author wants
// something fixed, which spawns an improvement suggestion.
var improvementTriggers = []string{"improve", "could be better", "need to fix", "blocked"}

// EntryService lists captured entries and runs the inbox distillation
// pipeline: LLM first, local heuristics as the fallback, then the derived
// writes (observations, tasks, improvements).
type EntryService struct {
	manager      *vault.Manager
	entries      *storage.EntryRepo
	runs         *storage.RunRepo
	observations *storage.ObservationRepo
	improvements *storage.ImprovementRepo
	tasks        *TaskService
	llm          LLMClient
	indexer      Reindexer
	timezone     string
}

// NewEntryService creates a new EntryService.
func NewEntryService(
	manager *vault.Manager,
	entries *storage.EntryRepo,
	runs *storage.RunRepo,
	observations *storage.ObservationRepo,
	improvements *storage.ImprovementRepo,
	tasks *TaskService,
	llmClient LLMClient,
	indexer Reindexer,
	timezone string,
) *EntryService {
	return &EntryService{
		manager:      manager,
		entries:      entries,
		runs:         runs,
		observations: observations,
		improvements: improvements,
		tasks:        tasks,
		llm:          llmClient,
		indexer:      indexer,
		timezone:     timezone,
	}
}

// List returns indexed entries matching the filter.
func (s *EntryService) List(ctx context.Context, filter storage.EntryFilter) ([]*storage.EntryRecord, error) {
	return s.entries.List(ctx, filter)
}

// Get returns one indexed entry.
func (s *EntryService) Get(ctx context.Context, id string) (*storage.EntryRecord, error) {
	rec, err := s.entries.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ProcessOutcome reports what processing one entry produced.
type ProcessOutcome struct {
	EntryID      string      `json:"entry_id"`
	RunID        string      `json:"run_id"`
	Mode         string      `json:"mode"`
	Summary      string      `json:"summary"`
	TaskSync     *SyncResult `json:"task_sync"`
	Observations int         `json:"observations"`
	Improvement  string      `json:"improvement,omitempty"`
}

// ProcessResult reports one inbox sweep.
type ProcessResult struct {
	Processed int               `json:"processed"`
	Outcomes  []*ProcessOutcome `json:"outcomes"`
}

// ProcessInbox distills every inbox entry. Entries that fail to process
// abort the sweep; entries already processed are never touched again.
func (s *EntryService) ProcessInbox(ctx context.Context) (*ProcessResult, error) {
	inbox, err := s.entries.List(ctx, storage.EntryFilter{Status: storage.EntryStatusInbox})
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	for _, entry := range inbox {
		outcome, err := s.processEntry(ctx, entry)
		if err != nil {
			return nil, err
		}
		result.Processed++
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

// ProcessEntry distills a single entry by id, regardless of sweep order.
func (s *EntryService) ProcessEntry(ctx context.Context, id string) (*ProcessOutcome, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != storage.EntryStatusInbox {
		return nil, ErrInvalidState
	}
	return s.processEntry(ctx, entry)
}

const distillPromptTemplate = `You are a note distiller. Given a raw personal note, reply with a single JSON object and nothing else, with these fields:
- "summary": one plain sentence, at most 140 characters
- "details_md": 1-3 sentences of markdown prose restating the substance
- "actions_md": markdown checkbox lines ("- [ ] item"), or "" if the note contains no actions; keep any due:YYYY-MM-DD markers
- "tags": a JSON array of lowercase topic tags

Raw note:
%s`

// distillEntry runs the two-stage pipeline: ask the model for a structured
// distillation, validate its shape, and on any failure fall back to local
// heuristics. Returns the result, the mode used and the model error, if any.
func (s *EntryService) distillEntry(ctx context.Context, entry *storage.EntryRecord, rawText string) (distill.Result, string, error) {
	payload, err := s.llm.CompleteJSON(ctx, fmt.Sprintf(distillPromptTemplate, rawText))
	if err == nil {
		err = llm.DistillSchema.Validate(payload)
	}
	if err != nil {
		result := distill.Distill(rawText, entry.Tags())
		result.ActionsMD = inferDueDates(result.ActionsMD, s.timezone)
		return result, "fallback", err
	}

	tags := make([]string, 0)
	for _, item := range payload["tags"].([]any) {
		tags = append(tags, item.(string))
	}
	return distill.Result{
		Summary:   strings.TrimSpace(payload["summary"].(string)),
		DetailsMD: strings.TrimSpace(payload["details_md"].(string)),
		ActionsMD: strings.TrimSpace(payload["actions_md"].(string)),
		Tags:      mergeTags(entry.Tags(), tags),
	}, "llm", nil
}

func (s *EntryService) processEntry(ctx context.Context, entry *storage.EntryRecord) (*ProcessOutcome, error) {
	logger := contextutil.LoggerFromContext(ctx)

	text, err := s.manager.ReadText(entry.Path)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, WrapError(ErrNotFound, "vault note missing for "+entry.ID)
	}
	note, err := vault.ParseNote(text)
	if err != nil {
		return nil, WrapError(err, "failed to parse vault note")
	}
	rawText := note.Section(vault.SectionRaw)

	runID := "llm-" + uuid.New().String()
	result, mode, distillErr := s.distillEntry(ctx, entry, rawText)

	runNotes := map[string]any{"mode": mode, "entry_id": entry.ID}
	if distillErr != nil {
		runNotes["error"] = distillErr.Error()
		logger.WarnContext(ctx, "distillation fell back to heuristics", "entry_id", entry.ID, "error", distillErr)
	}
	notesJSON, err := json.Marshal(runNotes)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Record(ctx, &storage.RunRecord{
		RunID:     runID,
		RunKind:   storage.RunKindLLM,
		Actor:     "assistant",
		NotesJSON: string(notesJSON),
	}); err != nil {
		return nil, err
	}

	// Rewrite the note: the raw capture section is carried over unchanged.
	now := timeutil.UTCNowISO()
	aiText := "Mode: " + mode + "\nRunId: " + runID + "\nProcessedAt: " + now
	updated := vault.RenderEntryNote(vault.EntryFrontmatter{
		ID:          entry.ID,
		Created:     entry.CreatedAt,
		Updated:     now,
		Type:        entry.Type,
		Status:      storage.EntryStatusProcessed,
		Goals:       entry.Goals(),
		Tags:        result.Tags,
		Summary:     result.Summary,
		SourceRunID: runID,
	}, result.DetailsMD, result.ActionsMD, rawText, aiText)
	if err := s.manager.AtomicWriteText(entry.Path, updated); err != nil {
		return nil, WrapError(err, "failed to rewrite note")
	}
	if err := s.indexer.IndexPaths(ctx, []string{entry.Path}); err != nil {
		return nil, WrapError(err, "failed to reindex note")
	}
	indexed, err := s.entries.Get(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	observations, err := s.recordObservations(ctx, indexed, rawText, runID)
	if err != nil {
		return nil, err
	}
	// A "project:<id>" tag routes the entry's actions to that project.
	projectID, err := s.tasks.ProjectFromTags(ctx, indexed.Tags())
	if err != nil {
		return nil, err
	}
	taskSync, err := s.tasks.SyncFromActions(ctx, indexed, result.ActionsMD, runID, projectID)
	if err != nil {
		return nil, err
	}
	improvementID, err := s.maybeCreateImprovement(ctx, indexed, rawText, runID)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "entry processed", "entry_id", entry.ID, "mode", mode, "run_id", runID)
	return &ProcessOutcome{
		EntryID:      entry.ID,
		RunID:        runID,
		Mode:         mode,
		Summary:      result.Summary,
		TaskSync:     taskSync,
		Observations: observations,
		Improvement:  improvementID,
	}, nil
}

// recordObservations extracts health data points from the raw text and
// writes them as observation version chains keyed by kind and entry.
func (s *EntryService) recordObservations(ctx context.Context, entry *storage.EntryRecord, rawText, runID string) (int, error) {
	date := entry.CreatedAt
	if len(date) >= 10 {
		date = date[:10]
	}
	count := 0

	if obs, ok := distill.ExtractActivity(entry.Type, rawText); ok {
		_, _, err := s.observations.WriteVersion(ctx, &storage.ObservationRecord{
			EntryID:     entry.ID,
			SourceRunID: runID,
			Kind:        storage.ObservationActivity,
			Date:        date,
			Steps:       obs.Steps,
			Minutes:     int(obs.DurationMin),
			Calories:    int(obs.Calories),
			Description: obs.Notes,
		})
		if err != nil {
			return 0, err
		}
		count++
	}
	if obs, ok := distill.ExtractSleep(entry.Type, rawText); ok {
		_, _, err := s.observations.WriteVersion(ctx, &storage.ObservationRecord{
			EntryID:     entry.ID,
			SourceRunID: runID,
			Kind:        storage.ObservationSleep,
			Date:        date,
			Minutes:     int(obs.DurationMin),
			Description: obs.Notes,
		})
		if err != nil {
			return 0, err
		}
		count++
	}
	if obs, ok := distill.ExtractFood(entry.Type, rawText); ok {
		_, _, err := s.observations.WriteVersion(ctx, &storage.ObservationRecord{
			EntryID:     entry.ID,
			SourceRunID: runID,
			Kind:        storage.ObservationFood,
			Date:        date,
			Description: obs.MealType + ": " + strings.Join(obs.Items, ", "),
		})
		if err != nil {
			return 0, err
		}
		count++
	}
	if obs, ok := distill.ExtractWeight(entry.Type, rawText); ok {
		_, _, err := s.observations.WriteVersion(ctx, &storage.ObservationRecord{
			EntryID:     entry.ID,
			SourceRunID: runID,
			Kind:        storage.ObservationWeight,
			Date:        date,
			WeightKg:    obs.WeightKg,
			Description: obs.Notes,
		})
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// maybeCreateImprovement spawns an improvement suggestion when the capture
// signals friction. The lineage id is derived from the entry, so reprocessing
// the same entry revises one suggestion instead of accumulating duplicates.
func (s *EntryService) maybeCreateImprovement(ctx context.Context, entry *storage.EntryRecord, rawText, runID string) (string, error) {
	lower := strings.ToLower(rawText)
	triggered := false
	for _, phrase := range improvementTriggers {
		if strings.Contains(lower, phrase) {
			triggered = true
			break
		}
	}
	if !triggered {
		return "", nil
	}

	logicalID := "improvement-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(entry.ID+":improvement")).String()
	rec, _, err := s.improvements.WriteVersion(ctx, &storage.ImprovementRecord{
		LogicalID:     logicalID,
		SourceEntryID: entry.ID,
		SourceRunID:   runID,
		Title:         "Improve: " + entry.Summary,
		Rationale:     "Synced from entry " + entry.ID,
		Status:        "open",
	})
	if err != nil {
		return "", err
	}
	return rec.LogicalID, nil
}

// inferDueDates resolves relative day words in fallback action lines to
// concrete due dates in the user's timezone.
func inferDueDates(actionsMD, tz string) string {
	if actionsMD == "" {
		return actionsMD
	}
	today := timeutil.LocalToday(tz)
	tomorrow := nextDay(today)

	lines := strings.Split(actionsMD, "\n")
	for i, line := range lines {
		if !checkboxRe.MatchString(line) || dueRe.MatchString(line) {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "today"), strings.Contains(lower, "eod"):
			lines[i] = line + " due:" + today
		case strings.Contains(lower, "tomorrow"):
			lines[i] = line + " due:" + tomorrow
		}
	}
	return strings.Join(lines, "\n")
}

func nextDay(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}

func mergeTags(existing, derived []string) []string {
	seen := map[string]bool{}
	var merged []string
	for _, tag := range append(append([]string{}, existing...), derived...) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		merged = append(merged, tag)
	}
	return merged
}
