// Package templates loads the experiment templates: an embedded default set
// optionally extended or overridden by a YAML file.
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
)

//go:embed templates.yaml
var builtin []byte

// Template is a named set of configuration defaults
type Template struct {
	ID             string            `yaml:"id" json:"id"`
	Name           string            `yaml:"name" json:"name"`
	Description    string            `yaml:"description" json:"description"`
	Variants       int               `yaml:"variants" json:"suggested_variants"`
	Metrics        []string          `yaml:"metrics" json:"metrics"`
	CohortAnalysis bool              `yaml:"cohort_analysis" json:"cohort_analysis"`
	Config         experiment.Config `yaml:"config" json:"config"`
}

type document struct {
	Templates []Template `yaml:"templates"`
}

// Catalog is an immutable set of templates keyed by upper-case ID
type Catalog struct {
	byID map[string]Template
}

// Parse decodes a templates document and normalizes family names
func Parse(data []byte) ([]Template, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for i := range doc.Templates {
		t := &doc.Templates[i]
		if strings.TrimSpace(t.ID) == "" {
			return nil, core.NewValidationError("templates", fmt.Sprintf("template %d has no id", i))
		}
		t.ID = strings.ToUpper(t.ID)
		family, err := stats.ParseTestFamily(string(t.Config.Family))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		t.Config.Family = family
	}
	return doc.Templates, nil
}

// Default returns the embedded templates
func Default() (*Catalog, error) {
	list, err := Parse(builtin)
	if err != nil {
		return nil, err
	}
	return New(list...), nil
}

// Load returns the embedded templates overlaid with those in path.
// An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	catalog, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, t := range extra {
		catalog.byID[t.ID] = t
	}
	return catalog, nil
}

// New builds a catalog from templates; later duplicates win
func New(list ...Template) *Catalog {
	c := &Catalog{byID: make(map[string]Template, len(list))}
	for _, t := range list {
		c.byID[strings.ToUpper(t.ID)] = t
	}
	return c
}

// Get looks a template up by ID, case-insensitively
func (c *Catalog) Get(id string) (Template, error) {
	t, ok := c.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Template{}, core.NewNotFoundError(core.ErrTemplateNotFound, id)
	}
	return t, nil
}

// List returns every template sorted by ID
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
