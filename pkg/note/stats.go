package note

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type Stats struct {
	Headings    int `json:"headings"`
	Blockquotes int `json:"blockquotes"`
	Links       int `json:"links"`
	Paragraphs  int `json:"paragraphs"`
	Words       int `json:"words"`
}

// ComputeStats parses markdown and counts its elements.
func ComputeStats(markdown string) Stats {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	stats := Stats{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			stats.Headings++
		case ast.KindBlockquote:
			stats.Blockquotes++
		case ast.KindLink, ast.KindAutoLink:
			stats.Links++
		case ast.KindParagraph:
			stats.Paragraphs++
		case ast.KindText:
			stats.Words += len(strings.Fields(string(n.(*ast.Text).Segment.Value(source))))
		}
		return ast.WalkContinue, nil
	})
	return stats
}
