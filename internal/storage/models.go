package storage

import "encoding/json"

// RunRecord is one row of the append-only artifact_runs provenance log.
type RunRecord struct {
	RunID       string
	RunKind     string
	Actor       string
	ParentRunID string
	NotesJSON   string
	CreatedAt   string
}

// Run kinds recorded in artifact_runs.
const (
	RunKindManual  = "manual"
	RunKindLLM     = "llm"
	RunKindRebuild = "rebuild"
	RunKindImport  = "import"
)

// EntryRecord is the relational projection of one captured note.
type EntryRecord struct {
	ID                 string
	Path               string
	CreatedAt          string
	UpdatedAt          string
	Type               string
	Status             string
	Summary            string
	RawText            string
	DetailsMD          string
	ActionsMD          string
	TagsJSON           string
	GoalsJSON          string
	SourceRunID        string
	ContentHash        string
	ContentHashVersion string
}

// Entry statuses.
const (
	EntryStatusInbox     = "inbox"
	EntryStatusProcessed = "processed"
	EntryStatusArchived  = "archived"
)

// Tags decodes the tags_json column.
func (e *EntryRecord) Tags() []string {
	return decodeStringList(e.TagsJSON)
}

// Goals decodes the goals_json column.
func (e *EntryRecord) Goals() []string {
	return decodeStringList(e.GoalsJSON)
}

// SetTags encodes tags into tags_json.
func (e *EntryRecord) SetTags(tags []string) {
	e.TagsJSON = encodeStringList(tags)
}

// SetGoals encodes goal ids into goals_json.
func (e *EntryRecord) SetGoals(goals []string) {
	e.GoalsJSON = encodeStringList(goals)
}

// GoalRecord is one row of the goals table.
type GoalRecord struct {
	ID         string
	Path       string
	Title      string
	Status     string
	Horizon    string
	TargetDate string
	TagsJSON   string
	CreatedAt  string
	UpdatedAt  string
}

// Tags decodes the tags_json column.
func (g *GoalRecord) Tags() []string {
	return decodeStringList(g.TagsJSON)
}

// SetTags encodes tags into tags_json.
func (g *GoalRecord) SetTags(tags []string) {
	g.TagsJSON = encodeStringList(tags)
}

// ProjectRecord is one row of the projects table.
type ProjectRecord struct {
	ID        string
	Path      string
	Title     string
	Status    string
	GoalID    string
	CreatedAt string
	UpdatedAt string
}

// TaskRecord is one version row of a task lineage.
type TaskRecord struct {
	ID                 string
	LogicalID          string
	Path               string
	SourceEntryID      string
	SourceRunID        string
	GoalID             string
	Title              string
	Status             string
	Priority           string
	DueDate            string
	PayloadHash        string
	PayloadHashVersion string
	VersionNo          int
	IsCurrent          bool
	SupersedesID       string
	CreatedAt          string
	UpdatedAt          string
}

// Task statuses.
const (
	TaskStatusOpen = "open"
	TaskStatusDone = "done"
)

// ImprovementRecord is one version row of an improvement lineage.
type ImprovementRecord struct {
	ID                 string
	LogicalID          string
	Path               string
	SourceEntryID      string
	SourceRunID        string
	Title              string
	Rationale          string
	Status             string
	LastNudgedAt       string
	PayloadHash        string
	PayloadHashVersion string
	VersionNo          int
	IsCurrent          bool
	SupersedesID       string
	CreatedAt          string
	UpdatedAt          string
}

// InsightRecord is one version row of an insight lineage.
type InsightRecord struct {
	ID                 string
	LogicalID          string
	Path               string
	SourceEntryID      string
	SourceRunID        string
	Title              string
	Body               string
	Kind               string
	PayloadHash        string
	PayloadHashVersion string
	VersionNo          int
	IsCurrent          bool
	SupersedesID       string
	CreatedAt          string
	UpdatedAt          string
}

// ChatThreadRecord is one version row of a chat thread lineage.
type ChatThreadRecord struct {
	ID                 string
	LogicalID          string
	Path               string
	SourceRunID        string
	GoalID             string
	Title              string
	Status             string
	Summary            string
	PayloadHash        string
	PayloadHashVersion string
	VersionNo          int
	IsCurrent          bool
	SupersedesID       string
	CreatedAt          string
	UpdatedAt          string
}

// ChatMessageRecord is one message in a chat thread. Messages are app-side
// only and are not version-chained.
type ChatMessageRecord struct {
	ID              string
	ThreadLogicalID string
	Role            string
	Content         string
	CreatedAt       string
}

// ObservationRecord is one version row of an observation lineage. The kind
// column selects which value columns are meaningful.
type ObservationRecord struct {
	ID                 string
	LogicalID          string
	EntryID            string
	SourceRunID        string
	Kind               string
	Date               string
	Steps              int
	Minutes            int
	Calories           int
	WeightKg           float64
	Description        string
	PayloadHash        string
	PayloadHashVersion string
	VersionNo          int
	IsCurrent          bool
	SupersedesID       string
	CreatedAt          string
	UpdatedAt          string
}

// Observation kinds.
const (
	ObservationActivity = "activity"
	ObservationSleep    = "sleep"
	ObservationFood     = "food"
	ObservationWeight   = "weight"
)

// ReviewRecord is one row of the weekly_reviews table.
type ReviewRecord struct {
	ID          string
	Path        string
	WeekStart   string
	Summary     string
	SourceRunID string
	CreatedAt   string
	UpdatedAt   string
}

// ConflictRecord is one row of sync_conflicts.
type ConflictRecord struct {
	ConflictID       string
	EntityType       string
	EntityID         string
	LogicalID        string
	Path             string
	AppRunID         string
	VaultContentHash string
	DBContentHash    string
	ConflictStatus   string
	DetailsJSON      string
	CreatedAt        string
	ResolvedAt       string
}

// Conflict statuses. open is the only non-terminal state.
const (
	ConflictOpen              = "open"
	ConflictResolvedKeepVault = "resolved_keep_vault"
	ConflictResolvedKeepApp   = "resolved_keep_app"
	ConflictResolvedMerged    = "resolved_merged"
)

// ConflictEventRecord is one row of the append-only conflict event log.
type ConflictEventRecord struct {
	EventID     string
	ConflictID  string
	Action      string
	Actor       string
	SourceRunID string
	Notes       string
	CreatedAt   string
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeStringList(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// IdeaRecord is one version row of an idea lineage. Ideas live only in the
// index: they are created through the API, not projected from vault files.
type IdeaRecord struct {
	ID                 string
	LogicalID          string
	Title              string
	Description        string
	Status             string
	ConvertedToType    string
	ConvertedToID      string
	SourceEntryID      string
	SourceRunID        string
	PayloadHash        string
	PayloadHashVersion string
	VersionNo          int
	IsCurrent          bool
	SupersedesID       string
	CreatedAt          string
	UpdatedAt          string
}

// Idea status lifecycle. Converted and dropped are terminal.
const (
	IdeaStatusRaw       = "raw"
	IdeaStatusExploring = "exploring"
	IdeaStatusMature    = "mature"
	IdeaStatusConverted = "converted"
	IdeaStatusParked    = "parked"
	IdeaStatusDropped   = "dropped"
)

// IdeaEntryLink ties an idea to an entry that motivated or elaborates it.
type IdeaEntryLink struct {
	IdeaID      string
	EntryID     string
	LinkType    string
	SourceRunID string
	CreatedAt   string
}
