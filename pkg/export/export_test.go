package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/je4/zotvault/pkg/convert"
	"github.com/je4/zotvault/pkg/filesystem"
	"github.com/je4/zotvault/pkg/ledger"
	"github.com/je4/zotvault/pkg/note"
	"github.com/je4/zotvault/pkg/picker"
	"github.com/je4/zotvault/pkg/zotero"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = logging.MustGetLogger("export_test")

func loadItems(t *testing.T, name string) []zotero.Item {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	items := []zotero.Item{}
	require.NoError(t, json.Unmarshal(data, &items))
	return items
}

// fakeZotero serves top level items and children like the web api.
type fakeZotero struct {
	items    []zotero.Item
	children map[string][]zotero.Item
	searches int32
	listings int32
}

func (f *fakeZotero) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/users/475425/items"
	path := strings.TrimPrefix(r.URL.Path, prefix)
	write := func(v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	switch {
	case path == "/top":
		result := []zotero.Item{}
		if q := r.URL.Query().Get("q"); q != "" {
			atomic.AddInt32(&f.searches, 1)
			for _, item := range f.items {
				if strings.Contains(strings.ToLower(item.Data.DOI+" "+item.Data.Title), q) {
					result = append(result, item)
				}
			}
		} else {
			atomic.AddInt32(&f.listings, 1)
			result = f.items
		}
		w.Header().Set("Total-Results", strconv.Itoa(len(result)))
		write(result)
	case strings.HasSuffix(path, "/children"):
		key := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/children")
		children := f.children[key]
		if children == nil {
			children = []zotero.Item{}
		}
		write(children)
	default:
		key := strings.TrimPrefix(path, "/")
		for _, item := range f.items {
			if item.Key == key {
				write(item)
				return
			}
		}
		for _, children := range f.children {
			for _, item := range children {
				if item.Key == key {
					write(item)
					return
				}
			}
		}
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func newFake(t *testing.T) *fakeZotero {
	return &fakeZotero{
		items:    loadItems(t, "items.json"),
		children: map[string][]zotero.Item{"ABCD2345": loadItems(t, "children.json")},
	}
}

type fixture struct {
	fake *fakeZotero
	dir  string
	fs   filesystem.FileSystem
	exp  *Exporter
}

func newFixture(t *testing.T, fake *fakeZotero, opts Options, ldg *ledger.Ledger, chooser picker.Chooser) *fixture {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	zot, err := zotero.NewZotero(srv.URL, "secret", zotero.LibraryUser, "475425", time.Minute, 50, testLogger)
	require.NoError(t, err)
	dir := t.TempDir()
	fs, err := filesystem.NewLocalFs(dir, testLogger)
	require.NoError(t, err)
	tmpl, err := note.LoadTemplate("")
	require.NoError(t, err)
	conv, err := convert.New(convert.Options{Kind: convert.KindBuiltin}, testLogger)
	require.NoError(t, err)
	if opts.Folder == "" {
		opts.Folder = "Zotero"
	}
	return &fixture{
		fake: fake,
		dir:  dir,
		fs:   fs,
		exp:  NewExporter(zot, conv, tmpl, fs, ldg, chooser, opts, testLogger),
	}
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, "Zotero", name))
	require.NoError(t, err)
	return string(data)
}

func TestExportDOI(t *testing.T) {
	f := newFixture(t, newFake(t), Options{}, nil, nil)
	ctx := context.Background()

	result, err := f.exp.ExportDOI(ctx, "https://doi.org/10.1000/xyz123")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, "ABCD2345", result.Key)
	assert.Equal(t, "Zotero/Deep Learning - A Survey.md", result.Path)
	assert.Equal(t, []string{"NOTE0001"}, result.NoteKeys)
	assert.Equal(t, 1, result.Stats.Headings)
	assert.Equal(t, 1, result.Stats.Blockquotes)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.fake.searches))
	assert.EqualValues(t, 0, atomic.LoadInt32(&f.fake.listings))

	doc := f.read(t, "Deep Learning - A Survey.md")
	assert.True(t, strings.HasSuffix(doc, "---\n\n# Annotations\n\n> A quote\n"), doc)
	assert.True(t, note.BelongsTo([]byte(doc), "ABCD2345"))

	_, err = f.exp.ExportDOI(ctx, "10.1000/XYZ123")
	assert.ErrorIs(t, err, ErrExists)
	assert.Equal(t, doc, f.read(t, "Deep Learning - A Survey.md"))
}

func TestExportOverwriteAllNotes(t *testing.T) {
	f := newFixture(t, newFake(t), Options{Overwrite: true, AllNotes: true}, nil, nil)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "Zotero"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "Zotero", "Deep Learning - A Survey.md"), []byte("old"), 0644))

	result, err := f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusOverwritten, result.Status)
	assert.Equal(t, []string{"NOTE0001", "NOTE0002"}, result.NoteKeys)
	doc := f.read(t, "Deep Learning - A Survey.md")
	assert.Contains(t, doc, "> A quote\n\nsecond note\n")
}

func TestExportDryRun(t *testing.T) {
	f := newFixture(t, newFake(t), Options{DryRun: true}, nil, nil)
	result, err := f.exp.ExportKey(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusDryRun, result.Status)
	assert.Contains(t, result.Content, "zoterokey: ABCD2345")
	ok, err := f.fs.FolderExists("Zotero")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExportKeyResolvesParent(t *testing.T) {
	f := newFixture(t, newFake(t), Options{}, nil, nil)
	result, err := f.exp.ExportKey(context.Background(), "NOTE0002")
	require.NoError(t, err)
	assert.Equal(t, "ABCD2345", result.Key)

	_, err = f.exp.ExportKey(context.Background(), "MISSING1")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestExportDOIFallback(t *testing.T) {
	f := newFixture(t, newFake(t), Options{}, nil, nil)
	ctx := context.Background()

	items, err := f.exp.FindDOI(ctx, "doi:10.2000/BOOK.42")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "EFGH6789", items[0].Key)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.fake.listings))

	_, err = f.exp.ExportDOI(ctx, "10.2000/book.42")
	assert.ErrorIs(t, err, ErrNoNote)
	// listing is memoized
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.fake.listings))

	_, err = f.exp.ExportDOI(ctx, "10.9999/none")
	assert.ErrorIs(t, err, ErrNoMatch)
	_, err = f.exp.ExportDOI(ctx, "  ")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestExportAmbiguous(t *testing.T) {
	fake := newFake(t)
	dup := fake.items[0]
	dup.Key = "DUPL0001"
	dup.Data.Key = "DUPL0001"
	dup.Data.Title = "Deep Learning: A Survey (preprint)"
	fake.items = append(fake.items, dup)
	fake.children["DUPL0001"] = []zotero.Item{}

	f := newFixture(t, fake, Options{}, nil, picker.Strict{})
	_, err := f.exp.ExportDOI(context.Background(), "10.1000/xyz123")
	assert.ErrorIs(t, err, picker.ErrAmbiguous)
	assert.Contains(t, err.Error(), "DUPL0001")

	result, err := f.exp.WithChooser(picker.First{}).ExportDOI(context.Background(), "10.1000/xyz123")
	require.NoError(t, err)
	assert.Equal(t, "ABCD2345", result.Key)
}

func TestExportChoosesNote(t *testing.T) {
	fake := newFake(t)
	for i := range fake.children["ABCD2345"] {
		if fake.children["ABCD2345"][i].Key == "NOTE0001" {
			fake.children["ABCD2345"][i].Data.Note = "<p>first note</p>"
		}
	}
	f := newFixture(t, fake, Options{}, nil, nil)
	_, err := f.exp.ExportKey(context.Background(), "ABCD2345")
	assert.ErrorIs(t, err, picker.ErrAmbiguous)

	result, err := f.exp.WithChooser(picker.First{}).ExportKey(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, []string{"NOTE0001"}, result.NoteKeys)
	assert.Contains(t, f.read(t, "Deep Learning - A Survey.md"), "first note")
}

func TestExportLedger(t *testing.T) {
	ldg, err := ledger.Open(ledger.DriverSQLite, filepath.Join(t.TempDir(), "ledger.sqlite"), testLogger)
	require.NoError(t, err)
	defer ldg.Close()
	require.NoError(t, ldg.Init(context.Background()))

	fake := newFake(t)
	f := newFixture(t, fake, Options{}, ldg, nil)
	ctx := context.Background()

	result, err := f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)

	entry, err := ldg.Get(ctx, "users/475425", "ABCD2345")
	require.NoError(t, err)
	// NOTE0001 is newer than its parent
	assert.Equal(t, int64(11), entry.Version)
	assert.Equal(t, "Zotero/Deep Learning - A Survey.md", entry.Path)

	result, err = f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, result.Status)
	assert.Equal(t, []string{"NOTE0001"}, result.NoteKeys)

	forced := f.exp
	forced.opts.Force = true
	_, err = forced.ExportKey(ctx, "ABCD2345")
	assert.ErrorIs(t, err, ErrExists)

	forced.opts.Overwrite = true
	result, err = forced.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusOverwritten, result.Status)
}

func TestExportLedgerNoteEdited(t *testing.T) {
	ldg, err := ledger.Open(ledger.DriverSQLite, filepath.Join(t.TempDir(), "ledger.sqlite"), testLogger)
	require.NoError(t, err)
	defer ldg.Close()
	require.NoError(t, ldg.Init(context.Background()))

	fake := newFake(t)
	f := newFixture(t, fake, Options{}, ldg, nil)
	ctx := context.Background()

	result, err := f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)

	// highlights added in zotero bump the note version only
	for i, child := range fake.children["ABCD2345"] {
		if child.Key == "NOTE0001" {
			child.Version = 13
			child.Data.Version = 13
			child.Data.Note = `<div data-schema-version="8"><h1>Annotations</h1>` +
				`<p><span class="highlight">“A quote”</span></p>` +
				`<p><span class="highlight">“NEW HIGHLIGHT”</span></p></div>`
			fake.children["ABCD2345"][i] = child
		}
	}
	_, err = f.exp.ExportKey(ctx, "ABCD2345")
	assert.ErrorIs(t, err, ErrExists)

	f.exp.opts.Overwrite = true
	result, err = f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusOverwritten, result.Status)
	assert.Contains(t, f.read(t, "Deep Learning - A Survey.md"), "NEW HIGHLIGHT")
	entry, err := ldg.Get(ctx, "users/475425", "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, int64(13), entry.Version)

	result, err = f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, result.Status)

	// a vault file deleted by the user is written again
	require.NoError(t, os.Remove(filepath.Join(f.dir, "Zotero", "Deep Learning - A Survey.md")))
	result, err = f.exp.ExportKey(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)
	assert.Contains(t, f.read(t, "Deep Learning - A Survey.md"), "NEW HIGHLIGHT")
}

func TestExportGit(t *testing.T) {
	f := newFixture(t, newFake(t), Options{CommitMessage: "import %s"}, nil, nil)
	gitFs, err := filesystem.NewGitFs(f.dir, true, "Test", "test@example.org", testLogger)
	require.NoError(t, err)
	f.exp.fs = gitFs

	result, err := f.exp.ExportKey(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Len(t, result.Commit, 40)
}

func TestExportGitConcurrent(t *testing.T) {
	f := newFixture(t, newFake(t), Options{Overwrite: true}, nil, nil)
	gitFs, err := filesystem.NewGitFs(f.dir, true, "Test", "test@example.org", testLogger)
	require.NoError(t, err)
	f.exp.fs = gitFs

	var wg sync.WaitGroup
	results := make(chan *Result, 8)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.exp.ExportKey(context.Background(), "ABCD2345")
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	commits := 0
	created := 0
	for result := range results {
		if result.Commit != "" {
			commits++
		}
		if result.Status == StatusCreated {
			created++
		}
	}
	// identical rewrites leave nothing to commit
	assert.Equal(t, 1, commits)
	assert.Equal(t, 1, created)
}

func TestCommitMessage(t *testing.T) {
	exp := NewExporter(nil, nil, nil, nil, nil, nil, Options{}, testLogger)
	assert.Equal(t, "zotvault: Deep Learning", exp.commitMessage("Deep Learning"))
	exp.opts.CommitMessage = "add note"
	assert.Equal(t, "add note Deep Learning", exp.commitMessage("Deep Learning"))
	exp.opts.CommitMessage = "import %s (100%)"
	assert.Equal(t, "import Deep Learning (100%)", exp.commitMessage("Deep Learning"))
}

func TestRender(t *testing.T) {
	f := newFixture(t, newFake(t), Options{FilenameStyle: note.FilenameKey, NoteType: "paper"}, nil, nil)
	item, err := f.exp.Lookup(context.Background(), "ABCD2345")
	require.NoError(t, err)
	doc, err := f.exp.Render(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "ABCD2345.md", doc.Filename)
	assert.Len(t, doc.Annotations, 1)
	assert.Equal(t, "A quote", doc.Annotations[0].Text)
	fm, _, err := note.ParseFrontMatter([]byte(doc.Content))
	require.NoError(t, err)
	assert.Equal(t, "paper", fm.Type)
}
