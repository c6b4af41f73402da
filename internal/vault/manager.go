package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slugCleanRe = regexp.MustCompile(`[^a-z0-9]+`)

// Manager owns the vault directory tree: layout creation, path construction
// and atomic file writes.
type Manager struct {
	root string
}

// NewManager creates a vault manager rooted at the given directory.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the vault root directory.
func (m *Manager) Root() string {
	return m.root
}

// EnsureLayout creates the vault folder skeleton if missing.
func (m *Manager) EnsureLayout() error {
	for _, dir := range []string{"entries", "goals", "projects", "tasks", "reviews", "chats"} {
		if err := os.MkdirAll(filepath.Join(m.root, dir), 0755); err != nil {
			return fmt.Errorf("failed to create vault directory %s: %w", dir, err)
		}
	}
	return nil
}

// NewEntryID returns a fresh entry id.
func (m *Manager) NewEntryID() string {
	return "entry-" + uuid.New().String()
}

// EntryPath builds the canonical path for an entry note:
// entries/YYYY/YYYY-MM/YYYY-MM-DD_HH-MM_<type>_<slug>.md
func (m *Manager) EntryPath(created time.Time, entryType, slug string) string {
	created = created.UTC()
	year := created.Format("2006")
	month := created.Format("2006-01")
	stamp := created.Format("2006-01-02_15-04")
	name := fmt.Sprintf("%s_%s_%s.md", stamp, entryType, slug)
	return filepath.Join(m.root, "entries", year, month, name)
}

// GoalPath builds the path for a goal note.
func (m *Manager) GoalPath(goalID string) string {
	return filepath.Join(m.root, "goals", goalID+".md")
}

// ProjectPath builds the path for a project note.
func (m *Manager) ProjectPath(projectID string) string {
	return filepath.Join(m.root, "projects", projectID+".md")
}

// ChatThreadPath builds the path for a chat thread mirror note.
func (m *Manager) ChatThreadPath(threadID string) string {
	return filepath.Join(m.root, "chats", threadID+".md")
}

// AtomicWriteText writes text to path via a temp file and rename so a crash
// mid-write never leaves a half-written note for the indexer to misparse.
func (m *Manager) AtomicWriteText(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".lifevault-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadText reads a vault file, returning "" for a missing file.
func (m *Manager) ReadText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(content), nil
}

// Slugify lowercases text and collapses non-alphanumeric runs to hyphens,
// truncated for filename use.
func Slugify(text string) string {
	slug := slugCleanRe.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "note"
	}
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return slug
}
