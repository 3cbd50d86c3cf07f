package convert

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"emperror.dev/errors"
	"github.com/op/go-logging"
)

// Pandoc runs the external pandoc binary.
type Pandoc struct {
	path   string
	args   []string
	logger *logging.Logger
}

func NewPandoc(path string, extraArgs []string, logger *logging.Logger) (*Pandoc, error) {
	if path == "" {
		path = "pandoc"
	}
	full, err := exec.LookPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot find pandoc executable %s", path)
	}
	args := []string{"--from", "html", "--to", "markdown", "--wrap=none"}
	args = append(args, extraArgs...)
	return &Pandoc{path: full, args: args, logger: logger}, nil
}

func (p *Pandoc) Name() string { return "pandoc" }

func (p *Pandoc) Convert(ctx context.Context, html string) (string, error) {
	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdin = strings.NewReader(html)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	p.logger.Debugf("running %s %s", p.path, strings.Join(p.args, " "))
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "pandoc failed: %s", strings.TrimSpace(stderr.String()))
	}
	if stderr.Len() > 0 {
		p.logger.Warningf("pandoc: %s", strings.TrimSpace(stderr.String()))
	}
	return FixQuotes(stdout.String()), nil
}
