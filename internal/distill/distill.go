// Package distill derives structured entry content from raw captured text
// without calling a model. It is the deterministic fallback used whenever
// the LLM stage fails or is unavailable.
package distill

import (
	"regexp"
	"strings"
)

var (
	checkboxLineRe = regexp.MustCompile(`^\s*-\s*\[\s*[xX ]\s*\]\s*(.+?)\s*$`)
	inlineTaskRe   = regexp.MustCompile(`(?i)\b(?:todo|action)\s*:\s*([^.;\n]+(?:\s+due:\d{4}-\d{2}-\d{2})?)`)

	intentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:i\s+)?need\s+to\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:i\s+)?want\s+to\s+(.+)$`),
		regexp.MustCompile(`(?i)^would\s+like\s+to\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:i\s+)?plan\s+to\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:i\s+)?must\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:i\s+)?have\s+to\s+(.+)$`),
	}
)

// Result is the distilled projection of a raw capture.
type Result struct {
	Summary   string
	DetailsMD string
	ActionsMD string
	Tags      []string
}

// Distill produces summary, details, actions and tags from raw text using
// local heuristics only.
func Distill(rawText string, existingTags []string) Result {
	return Result{
		Summary:   summarize(rawText, 140),
		DetailsMD: detailsFrom(rawText),
		ActionsMD: actionsFrom(rawText),
		Tags:      tagsFrom(rawText, existingTags),
	}
}

func compact(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func summarize(rawText string, maxLen int) string {
	cleaned := compact(rawText)
	if cleaned == "" {
		return "Processed note"
	}
	if len(cleaned) <= maxLen {
		return cleaned
	}
	return cleaned[:maxLen-3] + "..."
}

func detailsFrom(rawText string) string {
	cleaned := compact(rawText)
	if cleaned == "" {
		return "-"
	}
	sentences := splitSentences(cleaned)
	if len(sentences) == 0 {
		sentences = []string{cleaned}
	}
	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	var b strings.Builder
	for i, sentence := range sentences {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + sentence)
	}
	return b.String()
}

func actionsFrom(rawText string) string {
	var explicit []string
	for _, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := checkboxLineRe.FindStringSubmatch(line); m != nil {
			explicit = append(explicit, strings.TrimSpace(m[1]))
		}
		for _, m := range inlineTaskRe.FindAllStringSubmatch(line, -1) {
			explicit = append(explicit, strings.TrimSpace(m[1]))
		}
	}

	for _, sentence := range splitSentences(compact(rawText)) {
		for _, pattern := range intentPatterns {
			if m := pattern.FindStringSubmatch(sentence); m != nil {
				explicit = append(explicit, strings.TrimSpace(m[1]))
				break
			}
		}
	}

	seen := map[string]bool{}
	var deduped []string
	for _, item := range explicit {
		cleaned := cleanAction(item)
		key := strings.ToLower(cleaned)
		if cleaned == "" || seen[key] {
			continue
		}
		deduped = append(deduped, cleaned)
		seen[key] = true
	}
	if len(deduped) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, item := range deduped {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- [ ] " + item)
	}
	return b.String()
}

func cleanAction(value string) string {
	item := strings.Trim(compact(value), " .-")
	if strings.HasPrefix(strings.ToLower(item), "to ") {
		item = strings.TrimSpace(item[3:])
	}
	if len(item) > 200 {
		item = item[:197] + "..."
	}
	return item
}

func tagsFrom(rawText string, existing []string) []string {
	text := strings.ToLower(rawText)
	var derived []string
	if strings.Contains(text, "sleep") {
		derived = append(derived, "sleep")
	}
	if strings.Contains(text, "workout") || strings.Contains(text, "exercise") || strings.Contains(text, "run ") {
		derived = append(derived, "fitness")
	}
	if strings.Contains(text, "project") || strings.Contains(text, "code") {
		derived = append(derived, "project")
	}

	var merged []string
	seen := map[string]bool{}
	for _, value := range append(append([]string{}, existing...), derived...) {
		tag := strings.TrimSpace(value)
		if tag == "" || seen[tag] {
			continue
		}
		merged = append(merged, tag)
		seen[tag] = true
	}
	return merged
}

// splitSentences splits compacted text on sentence-ending punctuation
// followed by whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n') {
			if seg := strings.TrimSpace(text[start : i+1]); seg != "" {
				out = append(out, seg)
			}
			start = i + 1
		}
	}
	if seg := strings.TrimSpace(text[start:]); seg != "" {
		out = append(out, seg)
	}
	return out
}
