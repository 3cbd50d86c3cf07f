package convert

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/je4/zotvault/pkg/annotation"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "heading and emphasis",
			html: `<h2>Title</h2><p>Some <strong>bold</strong> and <em>italic </em>text.</p>`,
			want: "## Title\n\nSome **bold** and *italic* text.\n",
		},
		{
			name: "links",
			html: `<p><a href="https://example.org">Example</a> and <a href="https://x.org/a_b">https://x.org/a_b</a></p>`,
			want: "[Example](https://example.org) and <https://x.org/a_b>\n",
		},
		{
			name: "lists",
			html: `<ul><li>one</li><li>two<ul><li>nested</li></ul></li></ul><ol start="3"><li>three</li><li>four</li></ol>`,
			want: "- one\n- two\n  - nested\n\n3. three\n4. four\n",
		},
		{
			name: "blockquote",
			html: `<blockquote><p>quoted</p><p>second</p></blockquote>`,
			want: "> quoted\n>\n> second\n",
		},
		{
			name: "code block",
			html: "<pre><code class=\"language-go\">fmt.Println(\"hi\")\n</code></pre>",
			want: "```go\nfmt.Println(\"hi\")\n```\n",
		},
		{
			name: "line breaks and escaping",
			html: `<p>line one<br>1. not a list * star</p>`,
			want: "line one\\\n1\\. not a list \\* star\n",
		},
		{
			name: "hard line breaks",
			html: `<p>line one<br>line two<br><br>line three<br></p>`,
			want: "line one\\\nline two\\\nline three\n",
		},
		{
			name: "table",
			html: `<table><tr><th>A</th><th>B</th></tr><tr><td>1</td><td>x|y</td></tr></table>`,
			want: "| A | B |\n| --- | --- |\n| 1 | x\\|y |\n",
		},
		{
			name: "image",
			html: `<p><img src="a b.png" alt="x_y"></p>`,
			want: "![x\\_y](a%20b.png)\n",
		},
		{
			name: "highlight outside annotation paragraph",
			html: `<ul><li><span class="highlight">“marked”</span></li></ul>`,
			want: "- ==marked==\n",
		},
		{
			name: "inline code and rule",
			html: `<p>use <code>go  test</code></p><hr><p>after</p>`,
			want: "use `go test`\n\n---\n\nafter\n",
		},
		{
			name: "empty",
			html: ``,
			want: "",
		},
	}
	conv := NewBuiltin(annotation.Options{})
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := conv.Convert(context.Background(), c.html)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestBuiltinAnnotationNote(t *testing.T) {
	data, err := os.ReadFile("testdata/note.html")
	require.NoError(t, err)
	got, err := NewBuiltin(annotation.Options{}).Convert(context.Background(), string(data))
	require.NoError(t, err)
	want := "# Annotations (01/03/2022, 10:00:00)\n" +
		"\n" +
		"> Deep learning allows computational models to learn representations.\n" +
		">\n" +
		"> — (Smith and Jones, 2020, p. 3)\n" +
		"\n" +
		"Key definition\n" +
		"\n" +
		"> Use 1+1 \\*carefully\\*\n" +
		">\n" +
		"> — (Smith and Jones, 2020, p. 12)\n" +
		"\n" +
		"> *(image)*\n" +
		">\n" +
		"> — (Smith and Jones, 2020, p. 5)\n" +
		"\n" +
		"A plain paragraph without annotation.\n"
	assert.Equal(t, want, got)
}

func TestBuiltinLinks(t *testing.T) {
	data, err := os.ReadFile("testdata/note.html")
	require.NoError(t, err)
	got, err := NewBuiltin(annotation.Options{Link: true, Callout: "quote"}).Convert(context.Background(), string(data))
	require.NoError(t, err)
	assert.Contains(t, got, "> [!quote]\n> Deep learning")
	assert.Contains(t, got, "[(Smith and Jones, 2020, p. 12)](zotero://open-pdf/groups/42/items/PDF00002?annotation=ANN00002&page=12)")
}

func TestBuiltinCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuiltin(annotation.Options{}).Convert(ctx, "<p>x</p>")
	assert.Error(t, err)
}

func TestFixQuotes(t *testing.T) {
	in := "# Annotations\n\n\\\"Some text\\\" (Smith, 2020, p. 1)\n\nplain \"quoted\" text\n"
	want := "# Annotations\n\n> Some text (Smith, 2020, p. 1)\n\nplain \"quoted\" text\n"
	assert.Equal(t, want, FixQuotes(in))
}

func TestNew(t *testing.T) {
	logger := logging.MustGetLogger("test")
	conv, err := New(Options{}, logger)
	require.NoError(t, err)
	assert.Equal(t, "builtin", conv.Name())

	_, err = New(Options{Kind: "word"}, logger)
	assert.Error(t, err)

	_, err = New(Options{Kind: KindPandoc, PandocPath: "/nonexistent/pandoc"}, logger)
	assert.Error(t, err)
}

func TestPandoc(t *testing.T) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		t.Skip("pandoc not installed")
	}
	conv, err := New(Options{Kind: KindPandoc}, logging.MustGetLogger("test"))
	require.NoError(t, err)
	got, err := conv.Convert(context.Background(), `<p>hello <strong>world</strong></p>`)
	require.NoError(t, err)
	assert.Contains(t, got, "hello **world**")
}
