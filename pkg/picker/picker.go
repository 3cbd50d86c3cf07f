// Package picker decides which of several candidates to use.
package picker

import (
	"context"
	"fmt"
	"strings"

	"emperror.dev/errors"
)

var (
	ErrAmbiguous = errors.NewPlain("ambiguous choice")
	ErrAborted   = errors.NewPlain("choice aborted")
	ErrEmpty     = errors.NewPlain("nothing to choose from")
)

type Chooser interface {
	Choose(ctx context.Context, title string, options []string) (int, error)
}

// First always takes the first option.
type First struct{}

func (First) Choose(ctx context.Context, title string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, ErrEmpty
	}
	return 0, nil
}

// Strict accepts exactly one option and fails otherwise.
type Strict struct{}

func (Strict) Choose(ctx context.Context, title string, options []string) (int, error) {
	switch len(options) {
	case 0:
		return -1, ErrEmpty
	case 1:
		return 0, nil
	}
	return -1, &AmbiguousError{Title: title, Options: options}
}

// AmbiguousError lists the candidates which could not be told apart.
type AmbiguousError struct {
	Title   string
	Options []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrAmbiguous.Error(), e.Title, strings.Join(e.Options, "; "))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}
