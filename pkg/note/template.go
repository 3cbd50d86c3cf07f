package note

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"emperror.dev/errors"
	"github.com/Masterminds/sprig"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const DefaultTemplate = `---
{{ frontmatter . }}---

{{ .Content }}`

type Template struct {
	name string
	tmpl *template.Template
}

func toYAML(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", errors.Wrap(err, "cannot marshal yaml")
	}
	if err := enc.Close(); err != nil {
		return "", errors.Wrap(err, "cannot marshal yaml")
	}
	return buf.String(), nil
}

func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["yaml"] = func(v interface{}) (string, error) {
		str, err := toYAML(v)
		return strings.TrimRight(str, "\n"), err
	}
	funcs["frontmatter"] = func(data *Data) (string, error) {
		return toYAML(data.FrontMatter())
	}
	funcs["uuid"] = func() string {
		return uuid.NewString()
	}
	funcs["wikilink"] = func(s string) string {
		return "[[" + s + "]]"
	}
	funcs["tagname"] = tagName
	return funcs
}

func NewTemplate(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(funcMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse template %s", name)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// LoadTemplate reads a template file. An empty path yields the default template.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return NewTemplate("default", DefaultTemplate)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read template %s", path)
	}
	return NewTemplate(filepath.Base(path), string(data))
}

func (t *Template) Name() string { return t.name }

func (t *Template) Render(data *Data) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "cannot execute template %s", t.name)
	}
	return buf.String(), nil
}
