// Package annotation reads the html zotero writes when a note is created from
// pdf annotations and renders each annotation as a citation blockquote.
package annotation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"emperror.dev/errors"
	"golang.org/x/net/html"
)

type Kind string

const (
	KindHighlight Kind = "highlight"
	KindUnderline Kind = "underline"
	KindImage     Kind = "image"
)

type Annotation struct {
	Kind          Kind   `json:"kind"`
	Text          string `json:"text,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Citation      string `json:"citation,omitempty"`
	PageLabel     string `json:"pageLabel,omitempty"`
	Color         string `json:"color,omitempty"`
	AnnotationKey string `json:"annotationKey,omitempty"`
	AttachmentURI string `json:"attachmentURI,omitempty"`
}

// content of the data-annotation attribute
type annotationData struct {
	AttachmentURI string `json:"attachmentURI"`
	AnnotationKey string `json:"annotationKey"`
	Color         string `json:"color"`
	PageLabel     string `json:"pageLabel"`
	Text          string `json:"text"`
	Comment       string `json:"comment"`
}

var attachmentURIRegexp = regexp.MustCompile(`/(users|groups)/([^/]+)/items/([A-Z0-9]+)$`)

var whitespaceRegexp = regexp.MustCompile(`\s+`)

// quote pairs zotero (and its locales) wraps highlights in
var quotes = [][2]string{
	{"\"", "\""},
	{"“", "”"},
	{"„", "“"},
	{"«", "»"},
	{"‘", "’"},
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// TextContent returns the text of a subtree with collapsed whitespace.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		switch {
		case node.Type == html.TextNode:
			b.WriteString(node.Data)
		case node.Type == html.ElementNode && node.Data == "br":
			b.WriteString("\n")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRegexp.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Unquote removes one pair of quotes around a highlight.
func Unquote(text string) string {
	text = strings.TrimSpace(text)
	for _, q := range quotes {
		if len(text) >= len(q[0])+len(q[1]) && strings.HasPrefix(text, q[0]) && strings.HasSuffix(text, q[1]) {
			return strings.TrimSpace(text[len(q[0]) : len(text)-len(q[1])])
		}
	}
	return text
}

func decodeData(raw string) (*annotationData, error) {
	if raw == "" {
		return &annotationData{}, nil
	}
	// data-annotation is encodeURIComponent'ed json, "+" is literal
	str, err := url.PathUnescape(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot unescape annotation data %s", raw)
	}
	data := &annotationData{}
	if err := json.Unmarshal([]byte(str), data); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal annotation data %s", str)
	}
	return data, nil
}

func isAnnotationNode(n *html.Node) (Kind, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	switch {
	case n.Data == "span" && hasClass(n, "highlight"):
		return KindHighlight, true
	case n.Data == "span" && hasClass(n, "underline"):
		return KindUnderline, true
	case n.Data == "img" && attr(n, "data-annotation") != "":
		return KindImage, true
	case n.Data == "span" && hasClass(n, "image"):
		return KindImage, true
	}
	return "", false
}

// IsAnnotationParagraph reports whether p carries an annotation.
func IsAnnotationParagraph(p *html.Node) bool {
	found := false
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if found {
			return
		}
		if _, ok := isAnnotationNode(n); ok {
			found = true
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(p)
	return found
}

// FromParagraph extracts the annotation of a <p> element. The second return
// value is false if the paragraph does not hold one.
func FromParagraph(p *html.Node) (*Annotation, bool, error) {
	var anno *Annotation
	var citation *html.Node
	var rest []string
	var traverse func(*html.Node) error
	traverse = func(n *html.Node) error {
		if kind, ok := isAnnotationNode(n); ok && anno == nil {
			data, err := decodeData(attr(n, "data-annotation"))
			if err != nil {
				return err
			}
			anno = &Annotation{
				Kind:          kind,
				PageLabel:     data.PageLabel,
				Color:         data.Color,
				AnnotationKey: data.AnnotationKey,
				AttachmentURI: data.AttachmentURI,
			}
			if kind != KindImage {
				anno.Text = Unquote(TextContent(n))
			}
			return nil
		}
		if n.Type == html.ElementNode && n.Data == "span" && hasClass(n, "citation") && citation == nil {
			citation = n
			return nil
		}
		if n.Type == html.TextNode {
			rest = append(rest, n.Data)
			return nil
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			rest = append(rest, "\n")
			return nil
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := traverse(c); err != nil {
				return err
			}
		}
		return nil
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if err := traverse(c); err != nil {
			return nil, false, err
		}
	}
	if anno == nil {
		return nil, false, nil
	}
	if citation != nil {
		anno.Citation = TextContent(citation)
	}
	lines := strings.Split(strings.Join(rest, ""), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRegexp.ReplaceAllString(line, " "))
	}
	anno.Comment = strings.TrimSpace(strings.Join(lines, "\n"))
	return anno, true, nil
}

// Parse extracts all annotations of a note.
func Parse(note string) ([]Annotation, error) {
	doc, err := html.Parse(strings.NewReader(note))
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse note html")
	}
	result := []Annotation{}
	var traverse func(*html.Node) error
	traverse = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.Data == "p" {
			anno, ok, err := FromParagraph(n)
			if err != nil {
				return err
			}
			if ok {
				result = append(result, *anno)
			}
			return nil
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := traverse(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := traverse(doc); err != nil {
		return nil, err
	}
	return result, nil
}

// HasAnnotations is a cheap check whether a note was created from annotations.
func HasAnnotations(note string) bool {
	return strings.Contains(note, "data-annotation") ||
		strings.Contains(note, `class="highlight"`) ||
		strings.Contains(note, `class="underline"`) ||
		strings.Contains(note, `class="image"`)
}

// OpenURI is the zotero:// link that opens the pdf at the annotation.
func (a *Annotation) OpenURI() string {
	m := attachmentURIRegexp.FindStringSubmatch(a.AttachmentURI)
	if m == nil {
		return ""
	}
	var uri string
	if m[1] == "groups" {
		uri = fmt.Sprintf("zotero://open-pdf/groups/%s/items/%s", m[2], m[3])
	} else {
		uri = fmt.Sprintf("zotero://open-pdf/library/items/%s", m[3])
	}
	params := url.Values{}
	if a.PageLabel != "" {
		params.Set("page", a.PageLabel)
	}
	if a.AnnotationKey != "" {
		params.Set("annotation", a.AnnotationKey)
	}
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}
	return uri
}

// AttachmentKey is the key of the pdf the annotation belongs to.
func (a *Annotation) AttachmentKey() string {
	m := attachmentURIRegexp.FindStringSubmatch(a.AttachmentURI)
	if m == nil {
		return ""
	}
	return m[3]
}
