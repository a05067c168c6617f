// Package export serializes a page into one standalone HTML document and
// packages it as a downloadable artifact.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/cache"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/render"
	"github.com/livetemplate/composer/internal/section"
)

const (
	DefaultFilename    = "site.html"
	DefaultTitle       = "Your Site"
	DefaultLang        = "en"
	ContentType        = "text/html; charset=utf-8"
	DefaultCacheMaxAge = 5 * time.Minute
)

// Artifact is a generated document ready to be written to disk or served.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Clone returns a deep copy of a.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Body = bytes.Clone(a.Body)
	return &c
}

// Options configures an Exporter. Zero values take the package defaults.
type Options struct {
	Filename string
	Title    string
	Lang     string

	// Cache, when set, keeps artifacts keyed by a fingerprint of their
	// input for CacheTTL.
	Cache    cache.Cache[*Artifact]
	CacheTTL time.Duration

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Exporter turns block collections and section states into documents.
type Exporter struct {
	opts     Options
	renderer *render.Renderer
	log      logger.Logger
}

// New returns an Exporter that renders with r.
func New(r *render.Renderer, opts Options) *Exporter {
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.Lang == "" {
		opts.Lang = DefaultLang
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheMaxAge
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Exporter{opts: opts, renderer: r, log: log.With(logger.Component("export"))}
}

// Export produces the document for blocks in order. Unknown block types
// are skipped. On error no artifact is returned.
func (e *Exporter) Export(blocks []block.Block) (*Artifact, error) {
	return e.cached("blocks", func() ([]template.HTML, string, error) {
		frags, err := e.renderer.Blocks(blocks)
		return frags, e.opts.Title, err
	}, blocks)
}

// ExportSections produces the document for the enabled sections of st.
func (e *Exporter) ExportSections(t registry.Template, st section.State) (*Artifact, error) {
	return e.cached("sections", func() ([]template.HTML, string, error) {
		frags, err := e.renderer.Sections(t, st)
		title := t.Title
		if title == "" {
			title = e.opts.Title
		}
		return frags, title, err
	}, t, st.Order, st.Enabled)
}

// Preview renders blocks as a document that follows the live websocket at
// liveURL. Previews are never cached.
func (e *Exporter) Preview(blocks []block.Block, liveURL string) ([]byte, error) {
	frags, err := e.renderer.Blocks(blocks)
	if err != nil {
		return nil, err
	}
	return e.document(e.opts.Title, frags, liveURL)
}

// PreviewSections is Preview for a template's sections.
func (e *Exporter) PreviewSections(t registry.Template, st section.State, liveURL string) ([]byte, error) {
	frags, err := e.renderer.Sections(t, st)
	if err != nil {
		return nil, err
	}
	return e.document("Preview – "+t.Title, frags, liveURL)
}

// Fragment renders the body content alone, as pushed to live previews.
func (e *Exporter) Fragment(blocks []block.Block) (template.HTML, error) {
	frags, err := e.renderer.Blocks(blocks)
	if err != nil {
		return "", err
	}
	return join(frags), nil
}

// SectionsFragment is Fragment for a template's sections.
func (e *Exporter) SectionsFragment(t registry.Template, st section.State) (template.HTML, error) {
	frags, err := e.renderer.Sections(t, st)
	if err != nil {
		return "", err
	}
	return join(frags), nil
}

func join(frags []template.HTML) template.HTML {
	var buf bytes.Buffer
	for _, f := range frags {
		buf.WriteString(string(f))
		buf.WriteByte('\n')
	}
	return template.HTML(buf.String())
}

func (e *Exporter) cached(variant string, build func() ([]template.HTML, string, error), input ...any) (*Artifact, error) {
	var key string
	if e.opts.Cache != nil {
		fp, err := cache.Fingerprint(append([]any{variant, e.opts.Filename, e.opts.Title, e.opts.Lang}, input...)...)
		if err == nil {
			key = fp
			if a, ok, stale := e.opts.Cache.Get(key); ok && !stale {
				e.log.Debug("export served from cache", logger.String("variant", variant))
				return a.Clone(), nil
			}
		}
	}

	frags, title, err := build()
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", variant, err)
	}
	body, err := e.document(title, frags, "")
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", variant, err)
	}

	a := &Artifact{Filename: e.opts.Filename, ContentType: ContentType, Body: body}
	if key != "" {
		e.opts.Cache.Set(key, a.Clone(), e.opts.CacheTTL)
	}
	e.opts.Metrics.Export(variant)
	e.log.Info("exported document",
		logger.String("variant", variant),
		logger.Int("fragments", len(frags)),
		logger.Int("bytes", len(body)))
	return a, nil
}

func (e *Exporter) document(title string, frags []template.HTML, liveURL string) ([]byte, error) {
	var buf bytes.Buffer
	err := e.renderer.Document(&buf, render.Page{
		Title:     title,
		Lang:      e.opts.Lang,
		Fragments: frags,
		LiveURL:   liveURL,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes a as a file download.
func Render(w http.ResponseWriter, a *Artifact) error {
	h := w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+a.Filename+`"`)
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(a.Body)
	return err
}
