package convert

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/je4/zotvault/pkg/annotation"
	"golang.org/x/net/html"
)

var spaceRegexp = regexp.MustCompile(`[ \t\r\n\f]+`)

var blankLinesRegexp = regexp.MustCompile(`\n{3,}`)

// Builtin converts html to markdown by walking the DOM. Lines are never
// wrapped. Paragraphs holding pdf annotations are rendered by the
// annotation package.
type Builtin struct {
	opts annotation.Options
}

func NewBuiltin(opts annotation.Options) *Builtin {
	return &Builtin{opts: opts}
}

func (b *Builtin) Name() string { return "builtin" }

func (b *Builtin) Convert(ctx context.Context, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return "", errors.Wrap(err, "cannot parse html")
	}
	blocks, err := b.blocks(doc)
	if err != nil {
		return "", err
	}
	md := strings.Join(blocks, "\n\n")
	md = blankLinesRegexp.ReplaceAllString(md, "\n\n")
	md = strings.TrimSpace(md)
	if md == "" {
		return "", nil
	}
	return md + "\n", nil
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"blockquote", "pre", "hr", "table", "section", "article", "header",
		"footer", "main", "aside", "nav", "figure", "figcaption", "body", "html",
		"dl", "dt", "dd":
		return true
	}
	return false
}

// blocks renders the children of n as a list of markdown blocks.
// Runs of inline children form a paragraph.
func (b *Builtin) blocks(n *html.Node) ([]string, error) {
	result := []string{}
	var inline []*html.Node
	flush := func() {
		if len(inline) == 0 {
			return
		}
		var sb strings.Builder
		for _, c := range inline {
			sb.WriteString(b.inline(c))
		}
		inline = nil
		if para := paragraph(sb.String()); para != "" {
			result = append(result, para)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.CommentNode || c.Type == html.DoctypeNode {
			continue
		}
		if c.Type == html.ElementNode && (c.Data == "head" || c.Data == "script" || c.Data == "style") {
			continue
		}
		if !isBlock(c) {
			inline = append(inline, c)
			continue
		}
		flush()
		block, err := b.block(c)
		if err != nil {
			return nil, err
		}
		result = append(result, block...)
	}
	flush()
	return result, nil
}

// paragraph cleans up whitespace of rendered inline content. Line breaks
// become hard breaks.
func paragraph(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, annotation.EscapeBlockStart(line))
	}
	return strings.Join(out, "\\\n")
}

func prefixLines(text, first, rest string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		p := rest
		if i == 0 {
			p = first
		}
		if line == "" {
			lines[i] = strings.TrimRight(p, " ")
		} else {
			lines[i] = p + line
		}
	}
	return strings.Join(lines, "\n")
}

func (b *Builtin) block(n *html.Node) ([]string, error) {
	switch n.Data {
	case "p":
		if annotation.IsAnnotationParagraph(n) {
			anno, ok, err := annotation.FromParagraph(n)
			if err != nil {
				return nil, errors.Wrap(err, "cannot read annotation")
			}
			if ok {
				return []string{strings.TrimRight(anno.Markdown(b.opts), "\n")}, nil
			}
		}
		if para := paragraph(b.inlineChildren(n)); para != "" {
			return []string{para}, nil
		}
		return nil, nil
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(n.Data[1:])
		text := strings.TrimSpace(spaceRegexp.ReplaceAllString(b.inlineChildren(n), " "))
		if text == "" {
			return nil, nil
		}
		return []string{strings.Repeat("#", level) + " " + text}, nil
	case "hr":
		return []string{"---"}, nil
	case "pre":
		return []string{codeBlock(n)}, nil
	case "blockquote":
		inner, err := b.blocks(n)
		if err != nil {
			return nil, err
		}
		if len(inner) == 0 {
			return nil, nil
		}
		return []string{prefixLines(strings.Join(inner, "\n\n"), "> ", "> ")}, nil
	case "ul", "ol":
		list, err := b.list(n)
		if err != nil {
			return nil, err
		}
		if list == "" {
			return nil, nil
		}
		return []string{list}, nil
	case "table":
		if table := b.table(n); table != "" {
			return []string{table}, nil
		}
		return nil, nil
	case "dt":
		if text := paragraph(b.inlineChildren(n)); text != "" {
			return []string{"**" + text + "**"}, nil
		}
		return nil, nil
	default:
		// containers
		return b.blocks(n)
	}
}

func (b *Builtin) list(n *html.Node) (string, error) {
	ordered := n.Data == "ol"
	num := 1
	if start := attr(n, "start"); start != "" && ordered {
		if i, err := strconv.Atoi(start); err == nil {
			num = i
		}
	}
	items := []string{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		content, err := b.blocks(c)
		if err != nil {
			return "", err
		}
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		text := strings.Join(content, "\n")
		items = append(items, prefixLines(text, marker, strings.Repeat(" ", len(marker))))
	}
	return strings.Join(items, "\n"), nil
}

func (b *Builtin) table(n *html.Node) string {
	rows := [][]string{}
	header := -1
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "tr" {
			row := []string{}
			isHeader := true
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
					continue
				}
				if c.Data == "td" {
					isHeader = false
				}
				cell := strings.TrimSpace(spaceRegexp.ReplaceAllString(b.inlineChildren(c), " "))
				row = append(row, strings.ReplaceAll(cell, "|", `\|`))
			}
			if len(row) > 0 {
				if isHeader && header < 0 {
					header = len(rows)
				}
				rows = append(rows, row)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	if len(rows) == 0 {
		return ""
	}
	if header < 0 {
		header = 0
	}
	if header > 0 {
		rows = append([][]string{rows[header]}, append(rows[:header], rows[header+1:]...)...)
	}
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	lines := []string{}
	for i, row := range rows {
		for len(row) < cols {
			row = append(row, "")
		}
		lines = append(lines, "| "+strings.Join(row, " | ")+" |")
		if i == 0 {
			sep := make([]string, cols)
			for j := range sep {
				sep[j] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}

func codeBlock(n *html.Node) string {
	lang := ""
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		if node.Type == html.ElementNode && node.Data == "code" && lang == "" {
			for _, class := range strings.Fields(attr(node, "class")) {
				if strings.HasPrefix(class, "language-") {
					lang = strings.TrimPrefix(class, "language-")
				}
			}
		}
		if node.Type == html.ElementNode && node.Data == "br" {
			sb.WriteString("\n")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	code := strings.TrimRight(sb.String(), "\n")
	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	return fence + lang + "\n" + code + "\n" + fence
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func (b *Builtin) inlineChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(b.inline(c))
	}
	return sb.String()
}

// wrap puts a delimiter around content, keeping outer whitespace outside.
func wrap(content, delim string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return content
	}
	lead := content[:strings.Index(content, trimmed)]
	trail := content[len(lead)+len(trimmed):]
	return lead + delim + trimmed + delim + trail
}

func (b *Builtin) inline(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return annotation.EscapeInline(spaceRegexp.ReplaceAllString(n.Data, " "))
	case html.ElementNode:
	default:
		return ""
	}
	switch n.Data {
	case "br":
		return "\n"
	case "strong", "b":
		return wrap(b.inlineChildren(n), "**")
	case "em", "i", "cite":
		return wrap(b.inlineChildren(n), "*")
	case "s", "del", "strike":
		return wrap(b.inlineChildren(n), "~~")
	case "mark":
		return wrap(b.inlineChildren(n), "==")
	case "span":
		if hasClass(n, "highlight") || hasClass(n, "underline") {
			return wrap(annotation.EscapeInline(annotation.Unquote(annotation.TextContent(n))), "==")
		}
		return b.inlineChildren(n)
	case "code":
		text := annotation.TextContent(n)
		fence := "`"
		if strings.Contains(text, "`") {
			fence = "``"
			text = " " + text + " "
		}
		return fence + text + fence
	case "a":
		text := strings.TrimSpace(b.inlineChildren(n))
		href := attr(n, "href")
		if href == "" {
			return text
		}
		href = strings.ReplaceAll(href, " ", "%20")
		if text == "" || text == annotation.EscapeInline(href) {
			return "<" + href + ">"
		}
		return fmt.Sprintf("[%s](%s)", text, href)
	case "img":
		src := attr(n, "src")
		if src == "" {
			return ""
		}
		return fmt.Sprintf("![%s](%s)", annotation.EscapeInline(attr(n, "alt")), strings.ReplaceAll(src, " ", "%20"))
	case "script", "style":
		return ""
	default:
		if isBlock(n) {
			// block inside inline context, e.g. a list in a table cell
			return " " + b.inlineChildren(n) + " "
		}
		return b.inlineChildren(n)
	}
}
