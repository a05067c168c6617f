// Package registry holds the catalogue of site templates and the section
// list each one offers.
package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/section"
)

//go:embed templates.yaml
var defaultTemplates []byte

// FallbackKey is the template used for slugs the registry does not know.
const FallbackKey = "default"

// Categories the catalogue groups templates into.
var Categories = []string{"Business", "Portfolio", "Blog", "E-Commerce", "Landing"}

// Template is one entry of the catalogue.
type Template struct {
	ID          string                    `yaml:"id" json:"id"`
	Title       string                    `yaml:"title" json:"title"`
	Slug        string                    `yaml:"slug" json:"slug"`
	Category    string                    `yaml:"category" json:"category"`
	Description string                    `yaml:"description" json:"description"`
	Thumbnail   string                    `yaml:"thumbnail" json:"thumbnail"`
	Tags        []string                  `yaml:"tags" json:"tags"`
	Free        bool                      `yaml:"free" json:"isFree"`
	CreatedAt   time.Time                 `yaml:"created_at" json:"createdAt"`
	Popularity  int                       `yaml:"popularity" json:"popularity"`
	Sections    []section.TemplateSection `yaml:"sections" json:"sections"`
}

// Schema returns the canonical section list of t.
func (t Template) Schema() section.Schema {
	return section.Schema{TemplateKey: t.Slug, Sections: t.Sections}
}

type document struct {
	Templates []Template `yaml:"templates"`
}

// Registry is a concurrency-safe, replaceable template catalogue.
type Registry struct {
	mu        sync.RWMutex
	templates []Template
	log       logger.Logger
}

// New returns a registry holding templates, after normalization.
func New(templates []Template, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Registry{log: log.With(logger.Component("registry"))}
	r.Replace(templates)
	return r
}

// Default returns the built-in catalogue.
func Default(log logger.Logger) *Registry {
	templates, err := Parse(defaultTemplates, "templates.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded templates: %v", err))
	}
	return New(templates, log)
}

// LoadFile reads a registry file. An empty path yields the built-in catalogue.
func LoadFile(path string, log logger.Logger) (*Registry, error) {
	if path == "" {
		return Default(log), nil
	}
	templates, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(templates, log), nil
}

// ReadFile parses the templates in path.
func ReadFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes a registry document. Unknown fields are rejected so typos
// surface instead of silently dropping configuration.
func Parse(data []byte, file string) ([]Template, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, newLoadError(file, err)
	}
	for i, t := range doc.Templates {
		if t.Slug == "" {
			return nil, &LoadError{
				File:    file,
				Message: fmt.Sprintf("template #%d (%q) has no slug", i+1, t.Title),
				Hint:    "every template needs a unique slug; it keys saved layouts",
			}
		}
	}
	return doc.Templates, nil
}

// Replace swaps the catalogue. Section ids outside the closed key set and
// repeated ids are dropped; repeated slugs keep the first entry.
func (r *Registry) Replace(templates []Template) {
	out := make([]Template, 0, len(templates))
	slugs := make(map[string]bool, len(templates))
	for _, t := range templates {
		if slugs[t.Slug] {
			r.log.Warn("duplicate template slug ignored", logger.String("slug", t.Slug))
			continue
		}
		slugs[t.Slug] = true
		t.Tags = slices.Clone(t.Tags)
		t.Sections = r.cleanSections(t)
		out = append(out, t)
	}

	r.mu.Lock()
	r.templates = out
	r.mu.Unlock()
}

func (r *Registry) cleanSections(t Template) []section.TemplateSection {
	seen := make(map[section.Key]bool, len(t.Sections))
	out := make([]section.TemplateSection, 0, len(t.Sections))
	for _, s := range t.Sections {
		if !s.ID.Valid() {
			r.log.Warn("unknown section dropped",
				logger.String("template", t.Slug), logger.String("section", string(s.ID)))
			continue
		}
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if s.Label == "" {
			s.Label = s.ID.Label()
		}
		out = append(out, s)
	}
	return out
}

// Get returns the template with the given slug.
func (r *Registry) Get(slug string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.templates {
		if t.Slug == slug {
			return t, true
		}
	}
	return Template{}, false
}

// Lookup returns the template for slug, or a fallback template offering
// every section when the slug is unknown.
func (r *Registry) Lookup(slug string) Template {
	if t, ok := r.Get(slug); ok {
		return t
	}
	key := slug
	if key == "" {
		key = FallbackKey
	}
	return Template{
		ID:       FallbackKey,
		Title:    "Untitled Site",
		Slug:     key,
		Sections: section.AllSections(),
	}
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Sort orders for List.
const (
	SortPopularity = "popularity"
	SortNewest     = "newest"
	SortTitle      = "az"
)

// Filter narrows List.
type Filter struct {
	Category string // empty or "All" for every category
	FreeOnly bool
	Query    string // matched against title, description and tags
	Sort     string
}

// List returns the templates matching f, most popular first by default.
func (r *Registry) List(f Filter) []Template {
	r.mu.RLock()
	list := slices.Clone(r.templates)
	r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	list = slices.DeleteFunc(list, func(t Template) bool {
		if f.Category != "" && f.Category != "All" && t.Category != f.Category {
			return true
		}
		if f.FreeOnly && !t.Free {
			return true
		}
		return q != "" && !matches(t, q)
	})

	switch f.Sort {
	case SortNewest:
		slices.SortStableFunc(list, func(a, b Template) int { return b.CreatedAt.Compare(a.CreatedAt) })
	case SortTitle:
		slices.SortStableFunc(list, func(a, b Template) int {
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
	default:
		slices.SortStableFunc(list, func(a, b Template) int { return b.Popularity - a.Popularity })
	}
	return list
}

func matches(t Template, q string) bool {
	if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
		return true
	}
	return slices.ContainsFunc(t.Tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), q)
	})
}
