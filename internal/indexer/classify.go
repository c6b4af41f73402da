package indexer

import (
	"path/filepath"
	"strings"

	"lifevault/internal/vault"
)

// fileClass is the kind of entity a vault markdown file projects into.
type fileClass int

const (
	classEntry fileClass = iota
	classGoal
	classProject
	classTask
	classImprovement
	classInsight
	classChatThread
	classReview
)

// classify decides a file's class. An explicit entity_type frontmatter key
// wins; otherwise the folder the file lives in decides; everything else is a
// captured entry. The path must be relative to the vault root, so folders
// above the vault never influence the decision.
func classify(path string, fm map[string]any) fileClass {
	switch strings.ToLower(vault.FrontmatterString(fm, "entity_type")) {
	case "task":
		return classTask
	case "improvement":
		return classImprovement
	case "insight":
		return classInsight
	case "chat_thread":
		return classChatThread
	case "weekly_review":
		return classReview
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		switch part {
		case "goals":
			return classGoal
		case "projects":
			return classProject
		case "reviews":
			return classReview
		}
	}
	return classEntry
}
