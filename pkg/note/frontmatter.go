package note

import (
	"bytes"

	"emperror.dev/errors"
	"github.com/adrg/frontmatter"
)

// ParseFrontMatter splits an existing vault note into metadata and body.
func ParseFrontMatter(doc []byte) (*FrontMatter, []byte, error) {
	fm := &FrontMatter{}
	body, err := frontmatter.Parse(bytes.NewReader(doc), fm)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot parse frontmatter")
	}
	return fm, body, nil
}

// BelongsTo reports whether an existing vault note was written for the item.
func BelongsTo(doc []byte, key string) bool {
	fm, _, err := ParseFrontMatter(doc)
	if err != nil {
		return false
	}
	return fm.ZoteroKey != "" && fm.ZoteroKey == key
}
