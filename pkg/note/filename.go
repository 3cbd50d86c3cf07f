package note

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"emperror.dev/errors"
	"github.com/goliatone/go-slug"
)

const (
	FilenameTitle = "title"
	FilenameSlug  = "slug"
	FilenameKey   = "key"
)

const Extension = ".md"

// longest name without extension, most file systems allow 255 bytes
const maxNameBytes = 200

// characters which are illegal in file names or break obsidian links
var illegalChars = strings.NewReplacer(
	"/", " ",
	`\`, " ",
	"?", "",
	"*", "",
	`"`, "'",
	"<", "",
	">", "",
	"|", " ",
	"#", "",
	"^", "",
	"[", "(",
	"]", ")",
)

var filenameSpaceRegexp = regexp.MustCompile(`\s+`)

func truncate(name string, max int) string {
	if len(name) <= max {
		return name
	}
	name = name[:max]
	for !utf8.ValidString(name) {
		name = name[:len(name)-1]
	}
	return name
}

// MakeFilename converts a publication title to a file name obsidian can link.
// Colons become " - ", the rest of the illegal characters are dropped.
func MakeFilename(title, key, style string) (string, error) {
	var name string
	switch style {
	case "", FilenameTitle:
		name = strings.ReplaceAll(title, ":", " - ")
		name = illegalChars.Replace(name)
		name = filenameSpaceRegexp.ReplaceAllString(name, " ")
		name = strings.Trim(name, " .")
	case FilenameSlug:
		if strings.TrimSpace(title) != "" {
			s, err := slug.Normalize(title)
			if err != nil {
				return "", errors.Wrapf(err, "cannot create slug from %s", title)
			}
			name = s
		}
	case FilenameKey:
		name = key
	default:
		return "", errors.Errorf("unknown filename style %s", style)
	}
	name = strings.TrimSpace(truncate(name, maxNameBytes))
	if name == "" {
		name = key
	}
	if name == "" {
		return "", errors.New("cannot create filename without title and key")
	}
	return name + Extension, nil
}
