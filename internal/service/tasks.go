package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"lifevault/internal/contextutil"
	"lifevault/internal/storage"
)

var (
	checkboxRe = regexp.MustCompile(`^\s*-\s*\[([ xX])\]\s*(.+?)\s*$`)
	dueRe      = regexp.MustCompile(`(?i)\bdue:(\d{4}-\d{2}-\d{2})\b`)
)

// TaskService derives tasks from entry action lines and manages their
// version chains.
type TaskService struct {
	tasks    *storage.TaskRepo
	goals    *storage.GoalRepo
	projects *storage.ProjectRepo
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks *storage.TaskRepo, goals *storage.GoalRepo, projects *storage.ProjectRepo) *TaskService {
	return &TaskService{tasks: tasks, goals: goals, projects: projects}
}

// Action is one parsed checkbox line.
type Action struct {
	Title   string
	Done    bool
	DueDate string
}

// ParseActions extracts checkbox actions from an Actions section body.
// Lines that are not "- [ ]" / "- [x]" items are ignored.
func ParseActions(actionsMD string) []Action {
	var actions []Action
	for _, line := range strings.Split(actionsMD, "\n") {
		m := checkboxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		var due string
		if d := dueRe.FindStringSubmatch(title); d != nil {
			due = d[1]
			title = strings.TrimSpace(dueRe.ReplaceAllString(title, ""))
		}
		if title == "" {
			continue
		}
		actions = append(actions, Action{
			Title:   title,
			Done:    strings.TrimSpace(m[1]) != "",
			DueDate: due,
		})
	}
	return actions
}

// TaskLogicalID derives the stable lineage id for an action: the same entry
// plus the same (case-folded) title always syncs to the same task, which is
// what makes reprocessing idempotent.
func TaskLogicalID(entryID, title string) string {
	seed := entryID + ":" + strings.ToLower(strings.TrimSpace(title))
	return "task-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

// SyncResult reports the outcome of one action sync.
type SyncResult struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	TaskIDs   []string `json:"task_ids"`
}

// SyncFromActions projects an entry's checkbox actions into task version
// chains. Unchanged actions are no-ops; a flipped checkbox or edited due date
// writes a successor version of the same lineage. A non-empty projectID links
// every synced task to that project, whether or not a new version was
// written; an unknown project id is dropped rather than erroring.
func (s *TaskService) SyncFromActions(ctx context.Context, entry *storage.EntryRecord, actionsMD, runID, projectID string) (*SyncResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	result := &SyncResult{}

	goalID := ""
	for _, candidate := range entry.Goals() {
		ok, err := s.goals.Exists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if ok {
			goalID = candidate
			break
		}
	}
	if projectID != "" {
		if _, err := s.projects.Get(ctx, projectID); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
			projectID = ""
		}
	}

	for _, action := range ParseActions(actionsMD) {
		status := storage.TaskStatusOpen
		if action.Done {
			status = storage.TaskStatusDone
		}
		logicalID := TaskLogicalID(entry.ID, action.Title)
		existed := true
		if _, err := s.tasks.Current(ctx, logicalID); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
			existed = false
		}

		rec, changed, err := s.tasks.WriteVersion(ctx, &storage.TaskRecord{
			LogicalID:     logicalID,
			SourceEntryID: entry.ID,
			SourceRunID:   runID,
			GoalID:        goalID,
			Title:         action.Title,
			Status:        status,
			Priority:      "medium",
			DueDate:       action.DueDate,
		})
		if err != nil {
			return nil, WrapError(err, "failed to sync task")
		}
		if projectID != "" {
			if err := s.tasks.UpsertProjectLink(ctx, logicalID, projectID); err != nil {
				return nil, err
			}
		}
		result.TaskIDs = append(result.TaskIDs, rec.LogicalID)
		switch {
		case !existed:
			result.Created++
		case changed:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	logger.InfoContext(ctx, "task sync complete", "entry_id", entry.ID,
		"created", result.Created, "updated", result.Updated, "unchanged", result.Unchanged)
	return result, nil
}

// ProjectFromTags infers a project from entry tags of the form
// "project:<id>". The first tag naming a known project wins; tags naming
// unknown projects are ignored.
func (s *TaskService) ProjectFromTags(ctx context.Context, tags []string) (string, error) {
	const prefix = "project:"
	for _, tag := range tags {
		if len(tag) <= len(prefix) || !strings.EqualFold(tag[:len(prefix)], prefix) {
			continue
		}
		id := strings.TrimSpace(tag[len(prefix):])
		if id == "" {
			continue
		}
		_, err := s.projects.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return "", nil
}

// List returns current task versions matching the filter.
func (s *TaskService) List(ctx context.Context, filter storage.TaskFilter) ([]*storage.TaskRecord, error) {
	return s.tasks.ListCurrent(ctx, filter)
}

// Get returns the current version of a task lineage.
func (s *TaskService) Get(ctx context.Context, logicalID string) (*storage.TaskRecord, error) {
	rec, err := s.tasks.Current(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// History returns every version of a task lineage, oldest first.
func (s *TaskService) History(ctx context.Context, logicalID string) ([]*storage.TaskRecord, error) {
	chain, err := s.tasks.Chain(ctx, logicalID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	return chain, nil
}

// Complete marks a task done by writing a successor version.
func (s *TaskService) Complete(ctx context.Context, logicalID, runID string) (*storage.TaskRecord, error) {
	current, err := s.tasks.Current(ctx, logicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if current.Status == storage.TaskStatusDone {
		return current, nil
	}
	draft := *current
	draft.Status = storage.TaskStatusDone
	draft.SourceRunID = runID
	rec, _, err := s.tasks.WriteVersion(ctx, &draft)
	return rec, err
}

// QuickComplete flips the current version to done in place, without writing
// a successor. Trades version-history completeness for a low-friction toggle.
func (s *TaskService) QuickComplete(ctx context.Context, id string) error {
	err := s.tasks.SetStatusInPlace(ctx, id, storage.TaskStatusDone)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Delete removes a task lineage entirely, including its project link.
func (s *TaskService) Delete(ctx context.Context, logicalID string) error {
	deleted, err := s.tasks.DeleteChain(ctx, logicalID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkProject attaches a task lineage to a project.
func (s *TaskService) LinkProject(ctx context.Context, taskLogicalID, projectID string) error {
	if _, err := s.tasks.Current(ctx, taskLogicalID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &ValidationError{Field: "project_id", Message: "unknown project"}
		}
		return err
	}
	return s.tasks.UpsertProjectLink(ctx, taskLogicalID, projectID)
}
