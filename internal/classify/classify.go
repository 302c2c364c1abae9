// Package classify assigns topical category labels to request titles.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"khamsat_bot/internal/model"
)

//go:embed categories.yaml
var defaultTaxonomy []byte

// Category is a single classification rule.
type Category struct {
	Label    string   `yaml:"label"`
	Name     string   `yaml:"name"`
	Icon     string   `yaml:"icon"`
	Keywords []string `yaml:"keywords"`
}

type document struct {
	Categories []Category `yaml:"categories"`
}

// Taxonomy is an ordered table of classification rules.
type Taxonomy struct {
	rules    []Category
	patterns [][]string // NFC keywords, aligned with rules
	byName   map[string]Category
}

// Default returns the embedded taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return t
}

// Load reads a taxonomy from a YAML file. An empty path returns the default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse builds a taxonomy from YAML. The catch-all category is appended
// when the document does not declare it.
func Parse(data []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	t := &Taxonomy{byName: make(map[string]Category, len(doc.Categories)+1)}
	for _, c := range doc.Categories {
		c.Label = strings.TrimSpace(c.Label)
		if c.Label == "" {
			return nil, fmt.Errorf("category without label")
		}
		if c.Label == model.NoneSentinel {
			return nil, fmt.Errorf("category label %q is reserved", c.Label)
		}
		if _, dup := t.byName[c.Label]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Label)
		}
		t.add(c)
	}
	if _, ok := t.byName[model.CategoryOther]; !ok {
		t.add(Category{Label: model.CategoryOther, Name: "Other", Icon: "📌"})
	}
	return t, nil
}

func (t *Taxonomy) add(c Category) {
	var pats []string
	for _, kw := range c.Keywords {
		if kw = norm.NFC.String(strings.TrimSpace(kw)); kw != "" {
			pats = append(pats, kw)
		}
	}
	t.rules = append(t.rules, c)
	t.patterns = append(t.patterns, pats)
	t.byName[c.Label] = c
}

// Classify returns the labels whose keywords occur verbatim in title, in
// table order. Titles matching nothing are labelled "other".
func (t *Taxonomy) Classify(title string) []string {
	var labels []string
	for i, c := range t.rules {
		for _, kw := range t.patterns[i] {
			if strings.Contains(title, kw) {
				labels = append(labels, c.Label)
				break
			}
		}
	}
	if len(labels) == 0 {
		return []string{model.CategoryOther}
	}
	return labels
}

// Labels returns every category label with "other" last.
func (t *Taxonomy) Labels() []string {
	labels := make([]string, 0, len(t.rules))
	for _, c := range t.rules {
		if c.Label != model.CategoryOther {
			labels = append(labels, c.Label)
		}
	}
	return append(labels, model.CategoryOther)
}

// Lookup returns the category for a label.
func (t *Taxonomy) Lookup(label string) (Category, bool) {
	c, ok := t.byName[label]
	return c, ok
}

// Display renders a label as "icon name", falling back to the raw label.
func (t *Taxonomy) Display(label string) string {
	c, ok := t.byName[label]
	if !ok {
		return label
	}
	if c.Name == "" {
		return strings.TrimSpace(c.Icon + " " + c.Label)
	}
	return strings.TrimSpace(c.Icon + " " + c.Name)
}
