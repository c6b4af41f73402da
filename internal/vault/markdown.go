package vault

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Section names used by entry notes. The raw-capture section is always
// rendered last so its content can be preserved byte-for-byte.
const (
	SectionDetails = "Details"
	SectionActions = "Actions"
	SectionAI      = "AI"
	SectionRaw     = "Context (Raw)"
)

// ParsedNote is the result of splitting a vault markdown file into its
// frontmatter block and named "## Section" bodies.
type ParsedNote struct {
	Frontmatter map[string]any
	Sections    map[string]string
	// Body is the markdown after the frontmatter block.
	Body string
	// RawText is the raw-capture section body, if present.
	RawText string
}

// HasFrontmatter reports whether the file carried a parseable frontmatter
// block. Files without one are not entities and are skipped by the indexer.
func (p ParsedNote) HasFrontmatter() bool {
	return len(p.Frontmatter) > 0
}

// Section returns the named section body, or "" if absent.
func (p ParsedNote) Section(name string) string {
	return p.Sections[name]
}

// ParseNote splits a note into frontmatter, sections and raw text.
// The frontmatter is a leading YAML block delimited by "---" lines; the body
// is a sequence of "## Name" headed blocks. The content of the final section
// runs to end-of-file with exactly one trailing newline stripped, which is
// what preserves the raw-capture section byte-for-byte across round trips.
func ParseNote(text string) (ParsedNote, error) {
	note := ParsedNote{
		Frontmatter: map[string]any{},
		Sections:    map[string]string{},
	}

	body := text
	if strings.HasPrefix(text, "---\n") || text == "---" {
		rest := strings.TrimPrefix(text, "---\n")
		end := strings.Index(rest, "\n---\n")
		if end < 0 {
			// Unterminated frontmatter block: treat the whole file as body.
			body = text
		} else {
			block := rest[:end]
			body = rest[end+len("\n---\n"):]
			if err := yaml.Unmarshal([]byte(block), &note.Frontmatter); err != nil {
				return ParsedNote{}, fmt.Errorf("failed to parse frontmatter: %w", err)
			}
		}
	}

	note.Body = body

	type section struct {
		name    string
		content strings.Builder
	}
	var sections []*section
	var current *section

	for _, line := range strings.SplitAfter(body, "\n") {
		if line == "" {
			continue
		}
		if name, ok := sectionHeading(line); ok {
			current = &section{name: name}
			sections = append(sections, current)
			continue
		}
		if current != nil {
			current.content.WriteString(line)
		}
	}

	for i, sec := range sections {
		content := sec.content.String()
		if i == len(sections)-1 {
			content = strings.TrimSuffix(content, "\n")
		} else {
			content = strings.TrimRight(content, "\n")
		}
		note.Sections[sec.name] = content
	}
	note.RawText = note.Sections[SectionRaw]
	return note, nil
}

// sectionHeading reports whether a line is a "## Name" heading.
func sectionHeading(line string) (string, bool) {
	trimmed := strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(trimmed, "## ") {
		return "", false
	}
	return strings.TrimSpace(trimmed[3:]), true
}

// EntryFrontmatter is the typed frontmatter of a captured entry note.
// Fields are rendered in declaration order so re-serializing unchanged data
// produces byte-identical output.
type EntryFrontmatter struct {
	ID          string
	Created     string
	Updated     string
	Type        string
	Status      string
	Goals       []string
	Tags        []string
	Summary     string
	SourceRunID string
}

// RenderEntryNote produces the canonical markdown layout for an entry:
// frontmatter, Details, Actions, optional AI provenance, and the raw capture
// section last. The inverse of ParseNote for this layout.
func RenderEntryNote(fm EntryFrontmatter, details, actions, rawText, aiText string) string {
	var b strings.Builder
	b.WriteString("---\n")
	writeFrontmatterLine(&b, "id", fm.ID)
	writeFrontmatterLine(&b, "created", fm.Created)
	if fm.Updated != "" {
		writeFrontmatterLine(&b, "updated", fm.Updated)
	}
	writeFrontmatterLine(&b, "type", fm.Type)
	writeFrontmatterLine(&b, "status", fm.Status)
	writeFrontmatterList(&b, "goals", fm.Goals)
	writeFrontmatterList(&b, "tags", fm.Tags)
	writeFrontmatterLine(&b, "summary", fm.Summary)
	writeFrontmatterLine(&b, "source_run_id", fm.SourceRunID)
	b.WriteString("---\n\n")

	b.WriteString("## " + SectionDetails + "\n")
	b.WriteString(details + "\n\n")
	b.WriteString("## " + SectionActions + "\n")
	b.WriteString(actions + "\n\n")
	if aiText != "" {
		b.WriteString("## " + SectionAI + "\n")
		b.WriteString(aiText + "\n\n")
	}
	b.WriteString("## " + SectionRaw + "\n")
	b.WriteString(rawText + "\n")
	return b.String()
}

// RenderEntityNote produces a versioned-entity note (task, improvement,
// insight, chat thread): arbitrary frontmatter in sorted key order followed
// by the given sections in the given order.
func RenderEntityNote(frontmatter map[string]any, sectionOrder []string, sections map[string]string) string {
	keys := make([]string, 0, len(frontmatter))
	for k := range frontmatter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keys {
		b.WriteString(k + ": " + scalarYAML(frontmatter[k]) + "\n")
	}
	b.WriteString("---\n")
	for i, name := range sectionOrder {
		b.WriteString("\n## " + name + "\n")
		content := sections[name]
		if i == len(sectionOrder)-1 {
			b.WriteString(content + "\n")
		} else {
			b.WriteString(content + "\n")
		}
	}
	return b.String()
}

func writeFrontmatterLine(b *strings.Builder, key, value string) {
	b.WriteString(key + ": " + scalarYAML(value) + "\n")
}

func writeFrontmatterList(b *strings.Builder, key string, values []string) {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = scalarYAML(v)
	}
	b.WriteString(key + ": [" + strings.Join(quoted, ", ") + "]\n")
}

// scalarYAML renders a frontmatter value as a YAML scalar. Strings are always
// double-quoted so yaml.v3 parses them back as strings rather than resolving
// timestamps or numbers.
func scalarYAML(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return strconv.Quote(v.Format(time.RFC3339))
	default:
		return strconv.Quote(fmt.Sprintf("%v", v))
	}
}

// FrontmatterString coerces a frontmatter value to a string. yaml.v3 resolves
// timestamp-shaped scalars in hand-edited files to time.Time, so those are
// formatted back to RFC3339.
func FrontmatterString(fm map[string]any, key string) string {
	value, ok := fm[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// FrontmatterStringList coerces a frontmatter value to a list of strings.
func FrontmatterStringList(fm map[string]any, key string) []string {
	raw, ok := fm[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s := strings.TrimSpace(fmt.Sprintf("%v", item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FrontmatterBool coerces a frontmatter value to a bool with a default.
func FrontmatterBool(fm map[string]any, key string, def bool) bool {
	value, ok := fm[key]
	if !ok || value == nil {
		return def
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		}
		return false
	default:
		return def
	}
}

// FrontmatterInt coerces a frontmatter value to an int with a default.
func FrontmatterInt(fm map[string]any, key string, def int) int {
	value, ok := fm[key]
	if !ok || value == nil {
		return def
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
