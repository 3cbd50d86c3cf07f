package annotation

import (
	"fmt"
	"regexp"
	"strings"
)

type Options struct {
	// Link turns the citation into a zotero://open-pdf link
	Link bool
	// Callout renders an obsidian callout of this type instead of a plain quote
	Callout string
	// Colors prefixes the quote with the highlight color
	Colors bool
}

var escapeReplacer = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
)

var blockStartRegexp = regexp.MustCompile(`^(\s*)([#>+-]|\d+[.)])(\s|$)`)

// EscapeInline escapes the characters that carry inline markdown meaning.
func EscapeInline(text string) string {
	return escapeReplacer.Replace(text)
}

// EscapeBlockStart escapes a heading, quote or list marker at the start of
// the line: "# x" -> "\# x", "1. x" -> "1\. x".
func EscapeBlockStart(line string) string {
	m := blockStartRegexp.FindStringSubmatchIndex(line)
	if m == nil {
		return line
	}
	pos := m[5] - 1
	if m[5]-m[4] == 1 {
		pos = m[4]
	}
	return line[:pos] + `\` + line[pos:]
}

// EscapeMarkdown escapes text so it renders literally inside a markdown block.
func EscapeMarkdown(text string) string {
	lines := strings.Split(EscapeInline(text), "\n")
	for i, line := range lines {
		lines[i] = EscapeBlockStart(line)
	}
	return strings.Join(lines, "\n")
}

func quoteLines(b *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// Markdown renders the annotation as blockquote followed by the comment.
// The result ends with a newline.
func (a *Annotation) Markdown(opts Options) string {
	var b strings.Builder
	if opts.Callout != "" {
		title := ""
		if opts.Colors && a.Color != "" {
			title = " " + a.Color
		}
		b.WriteString(fmt.Sprintf("> [!%s]%s\n", opts.Callout, title))
	} else if opts.Colors && a.Color != "" {
		b.WriteString(fmt.Sprintf("> %s\n>\n", a.Color))
	}

	text := EscapeMarkdown(a.Text)
	if a.Kind == KindImage {
		text = "*(image)*"
	}
	if text != "" {
		quoteLines(&b, text)
	}

	if a.Citation != "" {
		citation := EscapeMarkdown(a.Citation)
		if opts.Link {
			if uri := a.OpenURI(); uri != "" {
				citation = fmt.Sprintf("[%s](%s)", citation, uri)
			}
		}
		if text != "" {
			b.WriteString(">\n")
		}
		b.WriteString("> — ")
		b.WriteString(citation)
		b.WriteString("\n")
	}

	if a.Comment != "" {
		b.WriteString("\n")
		b.WriteString(EscapeMarkdown(a.Comment))
		b.WriteString("\n")
	}
	return b.String()
}

// Markdown renders a list of annotations separated by blank lines.
func Markdown(annotations []Annotation, opts Options) string {
	parts := make([]string, 0, len(annotations))
	for _, a := range annotations {
		parts = append(parts, a.Markdown(opts))
	}
	return strings.Join(parts, "\n")
}
