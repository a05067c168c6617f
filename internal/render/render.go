// Package render turns blocks and template sections into HTML fragments
// and wraps fragments in a standalone document.
//
// The same fragments back the live preview and the exported file, so what
// a user sees while editing matches what they download.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/section"
)

// Page is the input to Document.
type Page struct {
	Title     string
	Lang      string
	Fragments []template.HTML
	// LiveURL, when set, adds a script that keeps the page in sync with
	// the websocket at that path.
	LiveURL string
}

// Renderer is safe for concurrent use.
type Renderer struct {
	blocks   *template.Template
	sections *template.Template
	document *template.Template
	markdown goldmark.Markdown
}

// New parses the built-in templates.
func New() *Renderer {
	funcs := template.FuncMap{"join": strings.Join}
	return &Renderer{
		blocks:   template.Must(template.New("blocks").Parse(blockTemplates)),
		sections: template.Must(template.New("sections").Funcs(funcs).Parse(sectionTemplates)),
		document: template.Must(template.New("document").Parse(documentTemplate)),
		markdown: goldmark.New(),
	}
}

// Block renders one block. Blocks of unknown type, or whose payload does
// not match their type, render as nothing.
func (r *Renderer) Block(b block.Block) (template.HTML, error) {
	if !b.Type.Known() || b.Data == nil || b.Data.Kind() != b.Type {
		return "", nil
	}
	return execute(r.blocks, string(b.Type), b.Data)
}

// Blocks renders a collection in order.
func (r *Renderer) Blocks(blocks []block.Block) ([]template.HTML, error) {
	out := make([]template.HTML, 0, len(blocks))
	for _, b := range blocks {
		html, err := r.Block(b)
		if err != nil {
			return nil, err
		}
		if html != "" {
			out = append(out, html)
		}
	}
	return out, nil
}

// Sections renders the enabled sections of st in order, filled from the
// template's catalogue entry.
func (r *Renderer) Sections(t registry.Template, st section.State) ([]template.HTML, error) {
	data, err := r.sectionData(t)
	if err != nil {
		return nil, err
	}
	var out []template.HTML
	for _, k := range st.Visible() {
		if !k.Valid() {
			continue
		}
		html, err := execute(r.sections, string(k), data)
		if err != nil {
			return nil, err
		}
		out = append(out, html)
	}
	return out, nil
}

// Document writes a complete HTML document around p.Fragments.
func (r *Renderer) Document(w io.Writer, p Page) error {
	if p.Lang == "" {
		p.Lang = "en"
	}
	return r.document.Execute(w, struct {
		Page
		CSS template.CSS
	}{Page: p, CSS: template.CSS(stylesheet)})
}

// Markdown converts markdown to HTML. Raw HTML in the source is dropped.
func (r *Renderer) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(strings.TrimSpace(buf.String())), nil
}

func execute(t *template.Template, name string, data any) (template.HTML, error) {
	if t.Lookup(name) == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

type highlight struct{ Title, Desc string }

type tier struct {
	Name, Price string
	Features    []string
}

type sectionData struct {
	Title       string
	Description template.HTML
	Tags        []string
	Slug        string
	Highlights  []highlight
	Gallery     []string
	Tiers       []tier
	FAQ         []block.QA
}

var highlights = []highlight{
	{"Customisable Sections", "Toggle and reorder blocks easily."},
	{"Responsive by Default", "Looks great on any device."},
	{"SEO-ready", "Meta tags, sitemap, and clean markup."},
}

var sectionFAQ = []block.QA{
	{Q: "Can I switch templates later?", A: "Yes. Each template keeps its own saved layout, so you can switch and come back."},
	{Q: "Do I need to write code?", A: "No. Toggle and reorder sections, then export a ready-made HTML page."},
	{Q: "Is hosting included?", A: "Choose a hosting plan when you publish. Every plan includes free SSL."},
}

func (r *Renderer) sectionData(t registry.Template) (sectionData, error) {
	desc, err := r.Markdown(t.Description)
	if err != nil {
		return sectionData{}, err
	}
	tags := t.Tags
	if len(tags) > 3 {
		tags = tags[:3]
	}
	gallery := make([]string, 6)
	for i := range gallery {
		gallery[i] = fmt.Sprintf("Image %d", i+1)
	}

	tiers := []tier{
		{"Standard", "RM19/mo", []string{"Template license", "Core sections"}},
		{"Business", "RM39/mo", []string{"All sections", "Priority support", "Analytics"}},
	}
	if t.Free {
		tiers = []tier{
			{"Starter", "RM0", []string{"Template access", "Basic sections"}},
			{"Pro", "RM19/mo", []string{"All sections", "Custom domain", "Analytics"}},
		}
	}

	return sectionData{
		Title:       t.Title,
		Description: desc,
		Tags:        tags,
		Slug:        t.Slug,
		Highlights:  highlights,
		Gallery:     gallery,
		Tiers:       tiers,
		FAQ:         sectionFAQ,
	}, nil
}
