// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	_ "embed"
	"io"
	"maps"
	"os"
	"regexp"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/adminauth/internal/auth"
)

//go:embed templates/default.yaml
var defaultTemplates []byte

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Template is a subject and body with {{ name }} placeholders.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Catalog maps notification kinds to templates.
type Catalog struct {
	templates map[auth.NotificationKind]Template
}

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultTemplates))
	if err != nil {
		panic(err) // embedded file is part of the build
	}
	return c
}

// LoadCatalog parses a YAML document of kind → {subject, body}.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var raw map[auth.NotificationKind]Template
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, oops.Code("TEMPLATE_PARSE_FAILED").Wrap(err)
	}
	for kind, tmpl := range raw {
		if tmpl.Subject == "" || tmpl.Body == "" {
			return nil, oops.Code("TEMPLATE_INCOMPLETE").
				With("kind", string(kind)).
				Errorf("template %q needs both subject and body", kind)
		}
	}
	if raw == nil {
		raw = map[auth.NotificationKind]Template{}
	}
	return &Catalog{templates: raw}, nil
}

// LoadCatalogFile reads templates from path. Kinds the file does not define
// keep their built-in template; kinds with no built-in template are rejected.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.Code("TEMPLATE_READ_FAILED").With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	overrides, err := LoadCatalog(f)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	base := DefaultCatalog()
	for kind := range overrides.templates {
		if !base.Has(kind) {
			return nil, oops.Code("TEMPLATE_KIND_UNKNOWN").
				With("path", path).
				With("kind", string(kind)).
				Errorf("no notification is sent as %q", kind)
		}
	}
	maps.Copy(base.templates, overrides.templates)
	return base, nil
}

// Has reports whether a template exists for kind.
func (c *Catalog) Has(kind auth.NotificationKind) bool {
	_, ok := c.templates[kind]
	return ok
}

// Render builds the message for n. Unknown placeholders are left as written.
func (c *Catalog) Render(n auth.Notification) (Message, error) {
	tmpl, ok := c.templates[n.Kind]
	if !ok {
		return Message{}, oops.Code("TEMPLATE_NOT_FOUND").
			With("kind", string(n.Kind)).
			Errorf("no template for %q", n.Kind)
	}
	return Message{
		To:       n.To,
		Subject:  substitute(tmpl.Subject, n.Vars),
		Body:     substitute(tmpl.Body, n.Vars),
		Template: string(n.Kind),
	}, nil
}

func substitute(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}
