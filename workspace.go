package composer

import (
	"context"
	"html/template"
	"slices"
	"sync"

	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/export"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/orderer"
	"github.com/livetemplate/composer/internal/persist"
)

// Workspace is one named, persisted block collection. Its methods are safe
// for concurrent use; each runs to completion before the next starts.
type Workspace struct {
	mu       sync.Mutex
	name     string
	store    *block.Store
	adapter  *persist.Adapter[[]block.Block]
	exporter *export.Exporter
	orderer  *orderer.Orderer[string]
	metrics  *metrics.Metrics
	log      logger.Logger

	blocks   []block.Block
	status   string
	onChange func([]block.Block)
}

// OpenWorkspace hydrates the collection stored under name.
func OpenWorkspace(ctx context.Context, name string, store *block.Store, adapter *persist.Adapter[[]block.Block], opts Options) *Workspace {
	opts = opts.withDefaults()
	if store == nil {
		store = block.NewStore()
	}
	w := &Workspace{
		name:     name,
		store:    store,
		adapter:  adapter,
		exporter: opts.Exporter,
		metrics:  opts.Metrics,
		log:      opts.Logger.With(logger.Component("workspace"), logger.String("workspace", name)),
		blocks:   adapter.Load(ctx, name),
	}
	w.orderer = orderer.New(w.label)
	return w
}

// label names a block in announcements. Callers hold w.mu.
func (w *Workspace) label(id string) string {
	if b, ok := block.Find(w.blocks, id); ok {
		return b.Type.Title()
	}
	return id
}

// Name returns the workspace key.
func (w *Workspace) Name() string { return w.name }

// OnChange registers fn to receive the collection after every change. It
// runs on the goroutine that made the change, after the lock is released.
func (w *Workspace) OnChange(fn func([]block.Block)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Blocks returns a snapshot of the collection.
func (w *Workspace) Blocks() []block.Block {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.blocks)
}

// Status returns the last reorder announcement.
func (w *Workspace) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Add appends a block of type t. ok is false for unknown types.
func (w *Workspace) Add(t block.Type) (block.Block, bool) {
	w.mu.Lock()
	b, ok := w.store.New(t)
	if !ok {
		w.mu.Unlock()
		return block.Block{}, false
	}
	w.commit(append(slices.Clone(w.blocks), b), "")
	w.mu.Unlock()

	w.notify()
	return b, true
}

// Move swaps the block with its neighbour in dir.
func (w *Workspace) Move(id string, dir block.Direction) bool {
	w.mu.Lock()
	next := block.Move(w.blocks, id, dir)
	changed := !slices.Equal(block.IDs(next), block.IDs(w.blocks))
	if changed {
		w.metrics.Reorder("keyboard")
		w.commit(next, orderer.Announcement(w.label(id), block.IndexOf(next, id)))
	}
	w.mu.Unlock()

	if changed {
		w.notify()
	}
	return changed
}

// MoveToIndex shifts the block by delta positions, clamped to the ends.
func (w *Workspace) MoveToIndex(id string, delta int) bool {
	w.mu.Lock()
	res := w.orderer.MoveToIndex(block.IDs(w.blocks), id, delta)
	w.applyOrder(res, "keyboard")
	w.mu.Unlock()

	if res.Committed {
		w.notify()
	}
	return res.Committed
}

// Remove deletes the block with id.
func (w *Workspace) Remove(id string) bool {
	w.mu.Lock()
	if block.IndexOf(w.blocks, id) < 0 {
		w.mu.Unlock()
		return false
	}
	w.commit(block.Remove(w.blocks, id), "")
	w.mu.Unlock()

	w.notify()
	return true
}

// UpdateField sets one payload field. ok is false when the block is absent
// or the field or value does not fit its type.
func (w *Workspace) UpdateField(id, field string, value any) bool {
	w.mu.Lock()
	b, found := block.Find(w.blocks, id)
	if !found || b.Data == nil {
		w.mu.Unlock()
		return false
	}
	if _, ok := b.Data.Set(field, value); !ok {
		w.mu.Unlock()
		return false
	}
	w.commit(block.UpdateField(w.blocks, id, field, value), "")
	w.mu.Unlock()

	w.notify()
	return true
}

// BeginDrag starts dragging the block with id. Unknown ids are ignored.
func (w *Workspace) BeginDrag(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if block.IndexOf(w.blocks, id) >= 0 {
		w.orderer.Begin(id)
	}
}

// CancelDrag abandons the current drag.
func (w *Workspace) CancelDrag() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.orderer.Cancel()
}

// Dragging reports the block being dragged.
func (w *Workspace) Dragging() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orderer.Source()
}

// Drop releases the dragged block onto target.
func (w *Workspace) Drop(target string) bool {
	w.mu.Lock()
	res := w.orderer.Drop(block.IDs(w.blocks), target)
	w.applyOrder(res, "drag")
	w.mu.Unlock()

	if res.Committed {
		w.notify()
	}
	return res.Committed
}

// Export renders the collection as a downloadable document.
func (w *Workspace) Export() (*export.Artifact, error) {
	return w.exporter.Export(w.Blocks())
}

// Preview renders the collection as a document following liveURL.
func (w *Workspace) Preview(liveURL string) ([]byte, error) {
	return w.exporter.Preview(w.Blocks(), liveURL)
}

// Fragment renders the collection body for live updates.
func (w *Workspace) Fragment() (template.HTML, error) {
	return w.exporter.Fragment(w.Blocks())
}

// Close writes any pending change.
func (w *Workspace) Close() {
	w.adapter.Flush()
}

func (w *Workspace) applyOrder(res orderer.Result[string], kind string) {
	if !res.Committed {
		return
	}
	w.metrics.Reorder(kind)
	w.commit(block.Reorder(w.blocks, res.Order), res.Message)
}

// commit replaces the collection and schedules a save. Callers hold w.mu.
func (w *Workspace) commit(next []block.Block, status string) {
	w.blocks = next
	if status != "" {
		w.status = status
	}
	w.adapter.Save(w.name, slices.Clone(next))
	w.log.Debug("workspace changed", logger.Int("blocks", len(next)))
}

func (w *Workspace) notify() {
	w.mu.Lock()
	fn, snapshot := w.onChange, slices.Clone(w.blocks)
	w.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
