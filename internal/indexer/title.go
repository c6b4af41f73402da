package indexer

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var titleParser = goldmark.New()

// firstHeading returns the text of the first level-1 or level-2 heading in a
// markdown document, preferring level 1. Used as a title fallback for entity
// notes whose frontmatter carries no title.
func firstHeading(markdown string) string {
	content := []byte(markdown)
	doc := titleParser.Parser().Parse(text.NewReader(content))

	var firstH1, firstH2 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headingText := nodeText(heading, content)
		switch {
		case heading.Level == 1 && firstH1 == "":
			firstH1 = headingText
			return ast.WalkStop, nil
		case heading.Level == 2 && firstH2 == "":
			firstH2 = headingText
		}
		return ast.WalkContinue, nil
	})

	if firstH1 != "" {
		return firstH1
	}
	return firstH2
}

func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
