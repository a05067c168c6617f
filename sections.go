package composer

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/livetemplate/composer/internal/export"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/orderer"
	"github.com/livetemplate/composer/internal/persist"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/section"
)

// SectionEditor toggles and reorders the sections of one catalogue
// template. Its methods are safe for concurrent use.
type SectionEditor struct {
	mu       sync.Mutex
	tmpl     registry.Template
	schema   section.Schema
	adapter  *persist.Adapter[section.State]
	exporter *export.Exporter
	orderer  *orderer.Orderer[section.Key]
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time

	state    section.State
	status   string
	onChange func(section.State)
}

// OpenSectionEditor hydrates the saved state of the template with slug
// key. Keys the registry does not know get every section, enabled.
func OpenSectionEditor(ctx context.Context, reg *registry.Registry, key string, adapter *persist.Adapter[section.State], opts Options) *SectionEditor {
	opts = opts.withDefaults()
	tmpl := reg.Lookup(key)
	e := &SectionEditor{
		tmpl:     tmpl,
		schema:   tmpl.Schema(),
		adapter:  adapter,
		exporter: opts.Exporter,
		metrics:  opts.Metrics,
		log:      opts.Logger.With(logger.Component("sections"), logger.String("template", key)),
		now:      opts.Clock,
		state:    adapter.Load(ctx, tmpl.Slug),
	}
	e.orderer = orderer.New(e.schema.Label)
	return e
}

// Template returns the catalogue entry being edited.
func (e *SectionEditor) Template() registry.Template { return e.tmpl }

// OnChange registers fn to receive the state after every change.
func (e *SectionEditor) OnChange(fn func(section.State)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// State returns a snapshot of the current state.
func (e *SectionEditor) State() section.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Status returns the last announcement.
func (e *SectionEditor) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Toggle flips the visibility of k.
func (e *SectionEditor) Toggle(k section.Key) bool {
	return e.update(k, func(on bool) bool { return !on })
}

// SetEnabled shows or hides k. Sections the template does not offer are
// ignored.
func (e *SectionEditor) SetEnabled(k section.Key, on bool) bool {
	return e.update(k, func(bool) bool { return on })
}

func (e *SectionEditor) update(k section.Key, next func(bool) bool) bool {
	e.mu.Lock()
	cur, ok := e.state.Enabled[k]
	if !ok || next(cur) == cur {
		e.mu.Unlock()
		return false
	}
	on := next(cur)
	verb := "hidden"
	if on {
		verb = "shown"
	}
	e.commit(e.state.SetEnabled(k, on), fmt.Sprintf("%s %s.", e.schema.Label(k), verb))
	e.mu.Unlock()

	e.notify()
	return true
}

// BeginDrag starts dragging section k.
func (e *SectionEditor) BeginDrag(k section.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.state.Enabled[k]; ok {
		e.orderer.Begin(k)
	}
}

// CancelDrag abandons the current drag.
func (e *SectionEditor) CancelDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orderer.Cancel()
}

// Dragging reports the section being dragged.
func (e *SectionEditor) Dragging() (section.Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderer.Source()
}

// Drop releases the dragged section onto target.
func (e *SectionEditor) Drop(target section.Key) bool {
	e.mu.Lock()
	res := e.orderer.Drop(e.state.Order, target)
	e.applyOrder(res, "drag")
	e.mu.Unlock()

	if res.Committed {
		e.notify()
	}
	return res.Committed
}

// MoveToIndex shifts section k by delta positions, clamped to the ends.
func (e *SectionEditor) MoveToIndex(k section.Key, delta int) bool {
	e.mu.Lock()
	res := e.orderer.MoveToIndex(e.state.Order, k, delta)
	e.applyOrder(res, "keyboard")
	e.mu.Unlock()

	if res.Committed {
		e.notify()
	}
	return res.Committed
}

// Replace adopts st after repairing it against the template, as a
// client that edits the whole layout at once would send it.
func (e *SectionEditor) Replace(st section.State) section.State {
	e.mu.Lock()
	e.orderer.Cancel()
	e.commit(e.schema.Sanitize(st), "Layout saved.")
	out := e.state.Clone()
	e.mu.Unlock()

	e.notify()
	return out
}

// Reset restores the template defaults and saves them.
func (e *SectionEditor) Reset() {
	e.mu.Lock()
	e.orderer.Cancel()
	e.commit(e.schema.Defaults(), StatusReset)
	e.mu.Unlock()

	e.notify()
}

// Clear deletes the saved state and returns to the defaults without saving
// them.
func (e *SectionEditor) Clear(ctx context.Context) {
	e.mu.Lock()
	e.orderer.Cancel()
	e.adapter.Clear(ctx, e.schema.TemplateKey)
	e.state = e.schema.Defaults()
	e.status = StatusCleared
	e.log.Info("saved layout cleared")
	e.mu.Unlock()

	e.notify()
}

// Export renders the enabled sections as a downloadable document.
func (e *SectionEditor) Export() (*export.Artifact, error) {
	return e.exporter.ExportSections(e.tmpl, e.State())
}

// Preview renders the enabled sections as a document following liveURL.
func (e *SectionEditor) Preview(liveURL string) ([]byte, error) {
	return e.exporter.PreviewSections(e.tmpl, e.State(), liveURL)
}

// Fragment renders the enabled sections for live updates.
func (e *SectionEditor) Fragment() (template.HTML, error) {
	return e.exporter.SectionsFragment(e.tmpl, e.State())
}

// Close writes any pending change.
func (e *SectionEditor) Close() {
	e.adapter.Flush()
}

func (e *SectionEditor) applyOrder(res orderer.Result[section.Key], kind string) {
	if !res.Committed {
		return
	}
	e.metrics.Reorder(kind)
	e.commit(e.state.WithOrder(res.Order), res.Message)
}

// commit stamps, stores and saves next. Callers hold e.mu.
func (e *SectionEditor) commit(next section.State, status string) {
	next.UpdatedAt = e.now().UnixMilli()
	e.state = next
	e.status = status
	e.adapter.Save(e.schema.TemplateKey, next.Clone())
}

func (e *SectionEditor) notify() {
	e.mu.Lock()
	fn, snapshot := e.onChange, e.state.Clone()
	e.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
