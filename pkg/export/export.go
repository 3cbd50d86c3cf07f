// Package export fetches an item with its note from zotero and writes it
// into the vault.
package export

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"emperror.dev/errors"
	"github.com/je4/zotvault/pkg/annotation"
	"github.com/je4/zotvault/pkg/convert"
	"github.com/je4/zotvault/pkg/filesystem"
	"github.com/je4/zotvault/pkg/ledger"
	"github.com/je4/zotvault/pkg/note"
	"github.com/je4/zotvault/pkg/picker"
	"github.com/je4/zotvault/pkg/zotero"
	"github.com/op/go-logging"
)

var (
	ErrNoMatch = errors.NewPlain("no matching item")
	ErrNoNote  = errors.NewPlain("item has no note")
	ErrExists  = filesystem.ErrExists
)

type Status string

const (
	StatusCreated     Status = "created"
	StatusOverwritten Status = "overwritten"
	StatusUnchanged   Status = "unchanged"
	StatusDryRun      Status = "dry-run"
)

type Options struct {
	// Folder inside the vault
	Folder        string
	FilenameStyle string
	NoteType      string
	// Overwrite replaces existing vault files
	Overwrite bool
	// Force exports even if the ledger knows the item version
	Force  bool
	DryRun bool
	// AllNotes concatenates all notes instead of choosing one
	AllNotes bool
	// CommitMessage for git vaults, %s is replaced by the item title
	CommitMessage string
}

type Result struct {
	Item     *zotero.Item `json:"-"`
	Key      string       `json:"key"`
	Title    string       `json:"title"`
	NoteKeys []string     `json:"noteKeys"`
	Path     string       `json:"path"`
	Status   Status       `json:"status"`
	Stats    note.Stats   `json:"stats"`
	Commit   string       `json:"commit,omitempty"`
	// Content is only set for dry runs
	Content string `json:"content,omitempty"`
}

// Document is a rendered vault note which is not yet written.
type Document struct {
	Item        *zotero.Item
	NoteKeys    []string
	Annotations []annotation.Annotation
	Filename    string
	Content     string
	Stats       note.Stats
	// Version is the highest version of the item and its exported notes
	Version int64
}

type Exporter struct {
	zot     *zotero.Zotero
	conv    convert.Converter
	tmpl    *note.Template
	fs      filesystem.FileSystem
	ledger  *ledger.Ledger
	chooser picker.Chooser
	opts    Options
	logger  *logging.Logger
	// write serializes vault writes, ledger updates and commits
	write *sync.Mutex
}

// NewExporter wires the pipeline. ldg may be nil.
func NewExporter(zot *zotero.Zotero, conv convert.Converter, tmpl *note.Template, fs filesystem.FileSystem, ldg *ledger.Ledger, chooser picker.Chooser, opts Options, logger *logging.Logger) *Exporter {
	if chooser == nil {
		chooser = picker.Strict{}
	}
	if opts.CommitMessage == "" {
		opts.CommitMessage = "zotvault: %s"
	}
	return &Exporter{
		zot:     zot,
		conv:    conv,
		tmpl:    tmpl,
		fs:      fs,
		ledger:  ldg,
		chooser: chooser,
		opts:    opts,
		logger:  logger,
		write:   &sync.Mutex{},
	}
}

// WithChooser returns a copy of the exporter which disambiguates with c.
func (e *Exporter) WithChooser(c picker.Chooser) *Exporter {
	n := *e
	n.chooser = c
	return &n
}

func (e *Exporter) Options() Options { return e.opts }

// FindDOI searches the library for items carrying the doi. The quick search
// runs first, the complete top level listing is the fallback.
func (e *Exporter) FindDOI(ctx context.Context, doi string) ([]zotero.Item, error) {
	normalized := zotero.NormalizeDOI(doi)
	if normalized == "" {
		return nil, errors.Wrapf(ErrNoMatch, "invalid doi %q", doi)
	}
	items, err := e.zot.Items(ctx, zotero.ItemQuery{Q: normalized, QMode: zotero.QModeEverything, Top: true})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot search doi %s", normalized)
	}
	found := zotero.FindByDOI(items, normalized)
	if len(found) > 0 {
		return found, nil
	}
	e.logger.Debugf("doi %s not found by search, scanning library", normalized)
	items, err = e.zot.Items(ctx, zotero.ItemQuery{Top: true})
	if err != nil {
		return nil, errors.Wrap(err, "cannot list items")
	}
	return zotero.FindByDOI(items, normalized), nil
}

// Search lists top level items matching the query.
func (e *Exporter) Search(ctx context.Context, query zotero.ItemQuery) ([]zotero.Item, error) {
	query.Top = true
	query, err := e.zot.ResolveQuery(ctx, query)
	if err != nil {
		if errors.Is(err, zotero.ErrNotFound) {
			return nil, errors.Wrap(ErrNoMatch, err.Error())
		}
		return nil, err
	}
	items, err := e.zot.Items(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot search %s", query.String())
	}
	return items, nil
}

// Lookup loads an item by key. Notes and attachments resolve to their parent.
func (e *Exporter) Lookup(ctx context.Context, key string) (*zotero.Item, error) {
	item, err := e.zot.Item(ctx, key)
	if err != nil {
		if errors.Is(err, zotero.ErrNotFound) {
			return nil, errors.Wrapf(ErrNoMatch, "item %s", key)
		}
		return nil, err
	}
	if parent := string(item.Data.ParentItem); parent != "" {
		e.logger.Debugf("%s is a child of %s", key, parent)
		return e.Lookup(ctx, parent)
	}
	return item, nil
}

func (e *Exporter) choose(ctx context.Context, title string, items []zotero.Item) (*zotero.Item, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(ErrNoMatch, title)
	}
	labels := make([]string, 0, len(items))
	for _, item := range items {
		labels = append(labels, item.Label())
	}
	idx, err := e.chooser.Choose(ctx, title, labels)
	if err != nil {
		return nil, err
	}
	return &items[idx], nil
}

func (e *Exporter) ExportDOI(ctx context.Context, doi string) (*Result, error) {
	items, err := e.FindDOI(ctx, doi)
	if err != nil {
		return nil, err
	}
	item, err := e.choose(ctx, fmt.Sprintf("items with doi %s", doi), items)
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, item)
}

func (e *Exporter) ExportQuery(ctx context.Context, query zotero.ItemQuery) (*Result, error) {
	items, err := e.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	item, err := e.choose(ctx, fmt.Sprintf("items matching %q", query.Q), items)
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, item)
}

func (e *Exporter) ExportKey(ctx context.Context, key string) (*Result, error) {
	item, err := e.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, item)
}

// selectNotes picks the notes of an item to export.
// Notes created from pdf annotations win over others.
func (e *Exporter) selectNotes(ctx context.Context, item *zotero.Item) ([]zotero.Item, error) {
	children, err := e.zot.Children(ctx, item.Key)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load children of %s", item.Key)
	}
	notes := zotero.Notes(children)
	if len(notes) == 0 {
		return nil, errors.Wrapf(ErrNoNote, "%s", item.Label())
	}
	if e.opts.AllNotes {
		return notes, nil
	}
	annotated := []zotero.Item{}
	for _, n := range notes {
		if annotation.HasAnnotations(n.Data.Note) {
			annotated = append(annotated, n)
		}
	}
	if len(annotated) > 0 {
		notes = annotated
	}
	if len(notes) == 1 {
		return notes, nil
	}
	chosen, err := e.choose(ctx, fmt.Sprintf("notes of %s", item.Key), notes)
	if err != nil {
		return nil, err
	}
	return []zotero.Item{*chosen}, nil
}

// Render converts the notes of item and fills the template without writing.
func (e *Exporter) Render(ctx context.Context, item *zotero.Item) (*Document, error) {
	notes, err := e.selectNotes(ctx, item)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Item:        item,
		NoteKeys:    []string{},
		Annotations: []annotation.Annotation{},
		Version:     item.Version,
	}
	parts := []string{}
	for _, n := range notes {
		md, err := e.conv.Convert(ctx, n.Data.Note)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot convert note %s with %s", n.Key, e.conv.Name())
		}
		annos, err := annotation.Parse(n.Data.Note)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse annotations of note %s", n.Key)
		}
		if md = strings.TrimRight(md, "\n"); md != "" {
			parts = append(parts, md)
		}
		doc.NoteKeys = append(doc.NoteKeys, n.Key)
		if n.Version > doc.Version {
			doc.Version = n.Version
		}
		doc.Annotations = append(doc.Annotations, annos...)
	}
	content := ""
	if len(parts) > 0 {
		content = strings.Join(parts, "\n\n") + "\n"
	}
	data := note.NewData(item, content, note.DataOptions{
		LibraryType: e.zot.LibraryType(),
		LibraryId:   e.zot.LibraryId(),
		NoteType:    e.opts.NoteType,
		NoteKeys:    doc.NoteKeys,
		Annotations: doc.Annotations,
	})
	if doc.Content, err = e.tmpl.Render(data); err != nil {
		return nil, err
	}
	if doc.Filename, err = note.MakeFilename(item.GetTitle(), item.Key, e.opts.FilenameStyle); err != nil {
		return nil, err
	}
	doc.Stats = note.ComputeStats(content)
	return doc, nil
}

// Export renders the item and writes it into the vault.
func (e *Exporter) Export(ctx context.Context, item *zotero.Item) (*Result, error) {
	result := &Result{
		Item:     item,
		Key:      item.Key,
		Title:    item.GetTitle(),
		NoteKeys: []string{},
	}
	doc, err := e.Render(ctx, item)
	if err != nil {
		return nil, err
	}
	result.NoteKeys = doc.NoteKeys
	result.Stats = doc.Stats
	result.Path = path.Join(e.opts.Folder, doc.Filename)
	if e.opts.DryRun {
		result.Status = StatusDryRun
		result.Content = doc.Content
		return result, nil
	}

	e.write.Lock()
	defer e.write.Unlock()

	library := e.zot.LibraryPath()
	if e.ledger != nil && !e.opts.Force {
		unchanged, err := e.unchanged(ctx, library, doc, result.Path)
		if err != nil {
			return nil, err
		}
		if unchanged {
			e.logger.Infof("%s unchanged since version %v, exported to %s", item.Key, doc.Version, result.Path)
			result.Status = StatusUnchanged
			return result, nil
		}
	}

	exists, err := e.fs.FileExists(e.opts.Folder, doc.Filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot check %s", result.Path)
	}
	if exists && e.opts.Overwrite {
		if old, err := e.fs.FileGet(e.opts.Folder, doc.Filename, filesystem.FileGetOptions{}); err == nil && !note.BelongsTo(old, item.Key) {
			e.logger.Warningf("overwriting %s which was not exported from %s", result.Path, item.Key)
		}
	}
	if err := e.fs.FilePut(e.opts.Folder, doc.Filename, []byte(doc.Content), filesystem.FilePutOptions{
		ContentType: "text/markdown; charset=utf-8",
		Exclusive:   !e.opts.Overwrite,
	}); err != nil {
		if errors.Is(err, filesystem.ErrExists) {
			return nil, errors.Wrapf(ErrExists, "%s%s/%s", e.fs.Protocol(), e.fs.String(), result.Path)
		}
		return nil, errors.Wrapf(err, "cannot write %s", result.Path)
	}
	result.Status = StatusCreated
	if exists {
		result.Status = StatusOverwritten
	}
	e.logger.Infof("%s %s: %v headings, %v blockquotes, %v links", result.Status, result.Path, doc.Stats.Headings, doc.Stats.Blockquotes, doc.Stats.Links)

	if e.ledger != nil {
		if err := e.ledger.Record(ctx, ledger.Entry{
			Library:  library,
			ItemKey:  item.Key,
			NoteKeys: doc.NoteKeys,
			Version:  doc.Version,
			Path:     result.Path,
		}); err != nil {
			return nil, err
		}
	}
	if committer, ok := e.fs.(filesystem.Committer); ok {
		hash, err := committer.Commit(e.commitMessage(result.Title))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot commit %s", result.Path)
		}
		result.Commit = hash
	}
	return result, nil
}

// unchanged reports whether the ledger knows this export with the same
// versions and the vault file is still there.
func (e *Exporter) unchanged(ctx context.Context, library string, doc *Document, target string) (bool, error) {
	entry, err := e.ledger.Get(ctx, library, doc.Item.Key)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if entry.Version != doc.Version || entry.Path != target || strings.Join(entry.NoteKeys, ",") != strings.Join(doc.NoteKeys, ",") {
		e.logger.Debugf("%s changed: version %v -> %v, %s -> %s", doc.Item.Key, entry.Version, doc.Version, entry.Path, target)
		return false, nil
	}
	exists, err := e.fs.FileExists(e.opts.Folder, doc.Filename)
	if err != nil {
		return false, errors.Wrapf(err, "cannot check %s", target)
	}
	if !exists {
		e.logger.Infof("%s is in the ledger but missing in the vault", target)
	}
	return exists, nil
}

// commitMessage fills the title into the configured message. Messages
// without %s get the title appended.
func (e *Exporter) commitMessage(title string) string {
	if strings.Contains(e.opts.CommitMessage, "%s") {
		return strings.Replace(e.opts.CommitMessage, "%s", title, 1)
	}
	return strings.TrimRight(e.opts.CommitMessage, " ") + " " + title
}
