// Package convert turns zotero note html into markdown.
package convert

import (
	"context"
	"regexp"

	"emperror.dev/errors"
	"github.com/je4/zotvault/pkg/annotation"
	"github.com/op/go-logging"
)

type Converter interface {
	Convert(ctx context.Context, html string) (string, error)
	Name() string
}

const (
	KindBuiltin = "builtin"
	KindPandoc  = "pandoc"
)

type Options struct {
	Kind        string
	PandocPath  string
	PandocArgs  []string
	Annotations annotation.Options
}

func New(opts Options, logger *logging.Logger) (Converter, error) {
	switch opts.Kind {
	case "", KindBuiltin:
		return NewBuiltin(opts.Annotations), nil
	case KindPandoc:
		return NewPandoc(opts.PandocPath, opts.PandocArgs, logger)
	default:
		return nil, errors.Errorf("unknown converter %s", opts.Kind)
	}
}

// pandoc escapes the quotes zotero puts around highlights
var quotedLineRegexp = regexp.MustCompile(`\\"(.*)\\"`)

// FixQuotes turns quoted highlights in pandoc output into blockquotes.
func FixQuotes(markdown string) string {
	return quotedLineRegexp.ReplaceAllString(markdown, "> $1")
}
