package note

import (
	"strings"
	"time"

	"github.com/je4/zotvault/pkg/annotation"
	"github.com/je4/zotvault/pkg/zotero"
)

// Data is what templates see.
type Data struct {
	Key         string
	Version     int64
	Title       string
	ShortTitle  string
	ItemType    string
	NoteType    string
	DOI         string
	URL         string
	Date        string
	Year        string
	Publication string
	Abstract    string
	Authors     []string
	Editors     []string
	Creators    []string
	Tags        []string
	ZoteroURI   string
	NoteKeys    []string
	// Content is the markdown of the converted note(s)
	Content     string
	Annotations []annotation.Annotation
	Exported    time.Time
	Item        *zotero.Item
}

type DataOptions struct {
	LibraryType zotero.LibraryType
	LibraryId   string
	NoteType    string
	NoteKeys    []string
	Annotations []annotation.Annotation
	Exported    time.Time
}

func NewData(item *zotero.Item, content string, opts DataOptions) *Data {
	noteType := opts.NoteType
	if noteType == "" {
		noteType = "article"
	}
	exported := opts.Exported
	if exported.IsZero() {
		exported = time.Now()
	}
	data := &Data{
		Key:         item.Key,
		Version:     item.Version,
		Title:       item.GetTitle(),
		ShortTitle:  item.Data.ShortTitle,
		ItemType:    item.Data.ItemType,
		NoteType:    noteType,
		DOI:         item.GetDOI(),
		URL:         item.Data.Url,
		Date:        item.Data.Date,
		Year:        item.GetYear(),
		Publication: item.GetPublication(),
		Abstract:    item.Data.AbstractNote,
		Authors:     item.GetCreators("author"),
		Editors:     item.GetCreators("editor"),
		Creators:    item.GetCreators(),
		Tags:        item.GetTags(),
		ZoteroURI:   item.SelectURI(opts.LibraryType, opts.LibraryId),
		NoteKeys:    opts.NoteKeys,
		Content:     content,
		Annotations: opts.Annotations,
		Exported:    exported,
		Item:        item,
	}
	if data.NoteKeys == nil {
		data.NoteKeys = []string{}
	}
	if data.Annotations == nil {
		data.Annotations = []annotation.Annotation{}
	}
	return data
}

// FrontMatter is the metadata block of a vault note.
type FrontMatter struct {
	Type        string   `yaml:"type"`
	Title       string   `yaml:"title"`
	DOI         string   `yaml:"doi,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`
	Year        string   `yaml:"year,omitempty"`
	Publication string   `yaml:"publication,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Zotero      string   `yaml:"zotero,omitempty"`
	ZoteroKey   string   `yaml:"zoterokey,omitempty"`
	Version     int64    `yaml:"zoteroversion,omitempty"`
}

// obsidian tags must not contain spaces
func tagName(tag string) string {
	return strings.Join(strings.Fields(tag), "-")
}

func (data *Data) FrontMatter() *FrontMatter {
	tags := []string{}
	for _, t := range data.Tags {
		if name := tagName(t); name != "" {
			tags = append(tags, name)
		}
	}
	return &FrontMatter{
		Type:        data.NoteType,
		Title:       data.Title,
		DOI:         data.DOI,
		Authors:     data.Authors,
		Year:        data.Year,
		Publication: data.Publication,
		Tags:        tags,
		Zotero:      data.ZoteroURI,
		ZoteroKey:   data.Key,
		Version:     data.Version,
	}
}
