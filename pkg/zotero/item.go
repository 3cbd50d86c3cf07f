package zotero

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type StringOrBool string

func (sb *StringOrBool) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = ""
	}
	*sb = StringOrBool(s)
	return nil
}

type User struct {
	Id       int64       `json:"id"`
	Username string      `json:"username"`
	Name     string      `json:"name,omitempty"`
	Links    interface{} `json:"links,omitempty"`
}

type ItemMeta struct {
	CreatedByUser  User         `json:"createdByUser"`
	CreatorSummary string       `json:"creatorSummary,omitempty"`
	ParsedDate     StringOrBool `json:"parsedDate,omitempty"`
	NumChildren    int64        `json:"numChildren,omitempty"`
}

type Item struct {
	Key     string      `json:"key"`
	Version int64       `json:"version"`
	Library Library     `json:"library,omitempty"`
	Links   interface{} `json:"links,omitempty"`
	Meta    ItemMeta    `json:"meta,omitempty"`
	Data    ItemData    `json:"data,omitempty"`
}

type ItemTag struct {
	Tag  string `json:"tag"`
	Type int64  `json:"type,omitempty"`
}

type ItemDataPerson struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ItemData holds the fields of all item types needed to build a vault note.
// Unknown fields are ignored.
type ItemData struct {
	Key              string           `json:"key,omitempty"`
	Version          int64            `json:"version"`
	ItemType         string           `json:"itemType"`
	Title            string           `json:"title,omitempty"`
	ShortTitle       string           `json:"shortTitle,omitempty"`
	Creators         []ItemDataPerson `json:"creators,omitempty"`
	Date             string           `json:"date,omitempty"`
	DOI              string           `json:"DOI,omitempty"`
	ISBN             string           `json:"ISBN,omitempty"`
	Url              string           `json:"url,omitempty"`
	PublicationTitle string           `json:"publicationTitle,omitempty"`
	BookTitle        string           `json:"bookTitle,omitempty"`
	Publisher        string           `json:"publisher,omitempty"`
	Volume           string           `json:"volume,omitempty"`
	Issue            string           `json:"issue,omitempty"`
	Pages            string           `json:"pages,omitempty"`
	AbstractNote     string           `json:"abstractNote,omitempty"`
	Extra            string           `json:"extra,omitempty"`
	Note             string           `json:"note,omitempty"`
	ParentItem       Parent           `json:"parentItem,omitempty"`
	Tags             []ItemTag        `json:"tags"`
	Collections      []string         `json:"collections"`
	Relations        RelationList     `json:"relations"`
	DateAdded        string           `json:"dateAdded,omitempty"`
	DateModified     string           `json:"dateModified,omitempty"`
}

var yearRegexp = regexp.MustCompile(`\b(1[0-9]{3}|2[0-9]{3})\b`)

var extraDOIRegexp = regexp.MustCompile(`(?im)^\s*DOI:\s*(\S+)\s*$`)

func (item *Item) GetType() string {
	return item.Data.ItemType
}

func (item *Item) IsNote() bool {
	return item.Data.ItemType == "note"
}

func (item *Item) IsAttachment() bool {
	return item.Data.ItemType == "attachment"
}

func (item *Item) GetTitle() string {
	return strings.TrimSpace(item.Data.Title)
}

// GetDOI returns the DOI field or, for item types without one, the
// "DOI: ..." line zotero keeps in the extra field.
func (item *Item) GetDOI() string {
	if item.Data.DOI != "" {
		return strings.TrimSpace(item.Data.DOI)
	}
	if m := extraDOIRegexp.FindStringSubmatch(item.Data.Extra); m != nil {
		return m[1]
	}
	return ""
}

// GetYear prefers the date zotero parsed server side.
func (item *Item) GetYear() string {
	if y := yearRegexp.FindString(string(item.Meta.ParsedDate)); y != "" {
		return y
	}
	return yearRegexp.FindString(item.Data.Date)
}

func (p ItemDataPerson) String() string {
	if p.Name != "" {
		return p.Name
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return fmt.Sprintf("%s, %s", p.LastName, p.FirstName)
}

// GetCreators returns the names of all creators of the given types.
// No types means all creators.
func (item *Item) GetCreators(types ...string) []string {
	result := []string{}
	for _, c := range item.Data.Creators {
		if len(types) > 0 {
			found := false
			for _, t := range types {
				if c.CreatorType == t {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		result = append(result, c.String())
	}
	return result
}

func (item *Item) GetTags() []string {
	result := []string{}
	for _, t := range item.Data.Tags {
		result = append(result, t.Tag)
	}
	return result
}

func (item *Item) GetPublication() string {
	if item.Data.PublicationTitle != "" {
		return item.Data.PublicationTitle
	}
	return item.Data.BookTitle
}

// SelectURI is the zotero:// link that opens the item in the desktop client.
func (item *Item) SelectURI(libraryType LibraryType, libraryId string) string {
	if libraryType == LibraryGroup {
		return fmt.Sprintf("zotero://select/groups/%s/items/%s", libraryId, item.Key)
	}
	return fmt.Sprintf("zotero://select/library/items/%s", item.Key)
}

// Label is a one line description used when asking the user to choose.
func (item *Item) Label() string {
	parts := []string{item.Key}
	if summary := item.Meta.CreatorSummary; summary != "" {
		parts = append(parts, summary)
	}
	if year := item.GetYear(); year != "" {
		parts = append(parts, year)
	}
	title := item.GetTitle()
	if title == "" && item.IsNote() {
		title = fmt.Sprintf("note (%v characters)", len(item.Data.Note))
	}
	parts = append(parts, title)
	return strings.Join(parts, " - ")
}
