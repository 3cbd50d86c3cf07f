package annotation

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func loadNote(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/note.html")
	require.NoError(t, err)
	return string(data)
}

func TestParse(t *testing.T) {
	annotations, err := Parse(loadNote(t))
	require.NoError(t, err)

	want := []Annotation{
		{
			Kind:          KindHighlight,
			Text:          "Deep learning allows computational models to learn representations.",
			Comment:       "Key definition",
			Citation:      "(Smith and Jones, 2020, p. 3)",
			PageLabel:     "3",
			Color:         "#ffd400",
			AnnotationKey: "ANN00001",
			AttachmentURI: "http://zotero.org/users/475425/items/PDF00001",
		},
		{
			Kind:          KindUnderline,
			Text:          "Use 1+1 *carefully*",
			Citation:      "(Smith and Jones, 2020, p. 12)",
			PageLabel:     "12",
			Color:         "#ff6666",
			AnnotationKey: "ANN00002",
			AttachmentURI: "http://zotero.org/groups/42/items/PDF00002",
		},
		{
			Kind:          KindImage,
			Citation:      "(Smith and Jones, 2020, p. 5)",
			PageLabel:     "5",
			AnnotationKey: "ANN00003",
			AttachmentURI: "http://zotero.org/users/475425/items/PDF00001",
		},
	}
	if diff := cmp.Diff(want, annotations); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestParseImageSpan(t *testing.T) {
	note := `<p><span class="image" data-annotation="%7B%22attachmentURI%22%3A%22http%3A%2F%2Fzotero.org%2Fusers%2F475425%2Fitems%2FPDF00001%22%2C%22annotationKey%22%3A%22ANN00004%22%2C%22pageLabel%22%3A%227%22%7D">figure</span> ` +
		`<span class="citation">(<span class="citation-item">Smith and Jones, 2020, p. 7</span>)</span> chart</p>`
	assert.True(t, HasAnnotations(note))
	annotations, err := Parse(note)
	require.NoError(t, err)
	want := []Annotation{{
		Kind:          KindImage,
		Comment:       "chart",
		Citation:      "(Smith and Jones, 2020, p. 7)",
		PageLabel:     "7",
		AnnotationKey: "ANN00004",
		AttachmentURI: "http://zotero.org/users/475425/items/PDF00001",
	}}
	if diff := cmp.Diff(want, annotations); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInvalidData(t *testing.T) {
	_, err := Parse(`<p><span class="highlight" data-annotation="%7Bbroken">x</span></p>`)
	assert.Error(t, err)
}

func TestParseWithoutAnnotations(t *testing.T) {
	annotations, err := Parse("<p>hello <b>world</b></p>")
	require.NoError(t, err)
	assert.Empty(t, annotations)
	assert.False(t, HasAnnotations("<p>hello <b>world</b></p>"))
	assert.True(t, HasAnnotations(loadNote(t)))
}

func TestIsAnnotationParagraph(t *testing.T) {
	nodes, err := html.ParseFragment(strings.NewReader(`<p>a <em><span class="highlight">b</span></em></p><p>c</p>`), &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.True(t, IsAnnotationParagraph(nodes[0]))
	assert.False(t, IsAnnotationParagraph(nodes[1]))
}

func TestUnquote(t *testing.T) {
	cases := map[string]string{
		`"plain"`:      "plain",
		"“curly”":      "curly",
		"„german“":     "german",
		"«french»":     "french",
		"no quotes":    "no quotes",
		`"unbalanced`:  `"unbalanced`,
		`  " spaced " `: "spaced",
		`"`:            `"`,
	}
	for in, want := range cases {
		assert.Equal(t, want, Unquote(in), in)
	}
}

func TestOpenURI(t *testing.T) {
	a := Annotation{AttachmentURI: "http://zotero.org/users/475425/items/PDF00001", PageLabel: "3", AnnotationKey: "ANN00001"}
	assert.Equal(t, "zotero://open-pdf/library/items/PDF00001?annotation=ANN00001&page=3", a.OpenURI())
	assert.Equal(t, "PDF00001", a.AttachmentKey())

	g := Annotation{AttachmentURI: "http://zotero.org/groups/42/items/PDF00002"}
	assert.Equal(t, "zotero://open-pdf/groups/42/items/PDF00002", g.OpenURI())

	none := Annotation{}
	assert.Empty(t, none.OpenURI())
	assert.Empty(t, none.AttachmentKey())
}

func TestMarkdown(t *testing.T) {
	annotations, err := Parse(loadNote(t))
	require.NoError(t, err)
	require.Len(t, annotations, 3)

	assert.Equal(t,
		"> Deep learning allows computational models to learn representations.\n"+
			">\n"+
			"> — [(Smith and Jones, 2020, p. 3)](zotero://open-pdf/library/items/PDF00001?annotation=ANN00001&page=3)\n"+
			"\n"+
			"Key definition\n",
		annotations[0].Markdown(Options{Link: true}))

	assert.Equal(t,
		"> Use 1+1 \\*carefully\\*\n"+
			">\n"+
			"> — (Smith and Jones, 2020, p. 12)\n",
		annotations[1].Markdown(Options{}))

	assert.Equal(t,
		"> [!quote]\n"+
			"> *(image)*\n"+
			">\n"+
			"> — (Smith and Jones, 2020, p. 5)\n",
		annotations[2].Markdown(Options{Callout: "quote"}))

	colored := annotations[1].Markdown(Options{Callout: "quote", Colors: true})
	assert.True(t, strings.HasPrefix(colored, "> [!quote] #ff6666\n"), colored)

	all := Markdown(annotations[:2], Options{})
	assert.Contains(t, all, "Key definition\n\n> Use 1+1")
}

func TestMarkdownMultiline(t *testing.T) {
	a := Annotation{Kind: KindHighlight, Text: "first\n\nsecond"}
	assert.Equal(t, "> first\n>\n> second\n", a.Markdown(Options{}))
}

func TestEscapeMarkdown(t *testing.T) {
	cases := map[string]string{
		"# not a heading": `\# not a heading`,
		"1. not a list":   `1\. not a list`,
		"- dash":          `\- dash`,
		"> quote":         `\> quote`,
		"snake_case":      `snake\_case`,
		"[link](x)":       `\[link\](x)`,
		"a <b> c":         `a \<b> c`,
		"2020 was a year": "2020 was a year",
		"line\n# two":     "line\n\\# two",
	}
	for in, want := range cases {
		assert.Equal(t, want, EscapeMarkdown(in), in)
	}
}
