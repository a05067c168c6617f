package composer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/kv"
	"github.com/livetemplate/composer/internal/persist"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/section"
)

var testNow = time.Date(2031, 5, 4, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Clock: func() time.Time { return testNow }}
}

func testBlockStore() *block.Store {
	n := 0
	return block.NewStore(
		block.WithIDFunc(func() string {
			n++
			return fmt.Sprintf("b%d", n)
		}),
		block.WithClock(func() time.Time { return testNow }),
	)
}

type workspaceFixture struct {
	ws    *Workspace
	store *kv.MemoryStore
	sched *persist.ManualScheduler
}

func newWorkspace(t *testing.T, store *kv.MemoryStore) workspaceFixture {
	t.Helper()
	sched := &persist.ManualScheduler{}
	a := persist.New[[]block.Block](store, persist.BlockSchema{}, persist.Options{Namespace: "blocks", Scheduler: sched})
	ws := OpenWorkspace(context.Background(), "main", testBlockStore(), a, testOptions())
	return workspaceFixture{ws: ws, store: store, sched: sched}
}

func TestWorkspaceMoveUpSwapsWithNeighbour(t *testing.T) {
	f := newWorkspace(t, kv.NewMemoryStore())
	ws := f.ws

	hero, ok := ws.Add(block.TypeHero)
	require.True(t, ok)
	assert.Equal(t, block.Hero{Headline: "Your Headline", Sub: "A short subtitle", CTA: "Call to Action"}, hero.Data)
	footer, ok := ws.Add(block.TypeFooter)
	require.True(t, ok)

	before, err := ws.Export()
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(before.Body), "<section"), strings.Index(string(before.Body), "<footer"))

	require.True(t, ws.Move(footer.ID, block.Up))
	assert.Equal(t, []string{footer.ID, hero.ID}, block.IDs(ws.Blocks()))
	assert.Equal(t, "Footer moved to position 1.", ws.Status())

	a, err := ws.Export()
	require.NoError(t, err)
	body := string(a.Body)
	heroAt := strings.Index(body, "<section")
	footerAt := strings.Index(body, "<footer")
	require.GreaterOrEqual(t, heroAt, 0)
	require.GreaterOrEqual(t, footerAt, 0)
	assert.Less(t, footerAt, heroAt)
	assert.Contains(t, body, "© 2031 Your Brand")
}

func TestWorkspaceEdits(t *testing.T) {
	f := newWorkspace(t, kv.NewMemoryStore())
	ws := f.ws

	_, ok := ws.Add("carousel")
	assert.False(t, ok)

	h, _ := ws.Add(block.TypeHero)
	p, _ := ws.Add(block.TypePricing)

	assert.True(t, ws.UpdateField(h.ID, "headline", "Ship <fast>"))
	assert.False(t, ws.UpdateField(h.ID, "bogus", "x"))
	assert.False(t, ws.UpdateField("missing", "headline", "x"))
	assert.True(t, ws.UpdateField(p.ID, "bullets", []any{"One", "Two", "Three"}))

	got, _ := block.Find(ws.Blocks(), h.ID)
	assert.Equal(t, "Ship <fast>", got.Data.(block.Hero).Headline)
	got, _ = block.Find(ws.Blocks(), p.ID)
	assert.Equal(t, []string{"One", "Two", "Three"}, got.Data.(block.Pricing).Bullets)

	assert.False(t, ws.Move(h.ID, block.Up), "already first")
	assert.True(t, ws.Remove(h.ID))
	assert.False(t, ws.Remove(h.ID))
	assert.Len(t, ws.Blocks(), 1)

	a, err := ws.Export()
	require.NoError(t, err)
	assert.NotContains(t, string(a.Body), "<fast>")
}

func TestWorkspaceDragAndKeyboard(t *testing.T) {
	f := newWorkspace(t, kv.NewMemoryStore())
	ws := f.ws
	for _, typ := range []block.Type{block.TypeHero, block.TypeFeatures, block.TypePricing, block.TypeFooter} {
		ws.Add(typ)
	}

	ws.BeginDrag("b4")
	id, dragging := ws.Dragging()
	assert.True(t, dragging)
	assert.Equal(t, "b4", id)
	ws.CancelDrag()
	assert.False(t, ws.Drop("b1"), "drop after cancel is a no-op")
	assert.Equal(t, []string{"b1", "b2", "b3", "b4"}, block.IDs(ws.Blocks()))

	ws.BeginDrag("b4")
	assert.True(t, ws.Drop("b2"))
	assert.Equal(t, []string{"b1", "b4", "b2", "b3"}, block.IDs(ws.Blocks()))
	assert.Equal(t, "Footer moved to position 2.", ws.Status())

	ws.BeginDrag("b1")
	assert.False(t, ws.Drop("b1"))

	assert.True(t, ws.MoveToIndex("b1", 10))
	assert.Equal(t, []string{"b4", "b2", "b3", "b1"}, block.IDs(ws.Blocks()))
	assert.False(t, ws.MoveToIndex("b1", 1), "clamped to the same index")
	assert.Equal(t, "Hero moved to position 4.", ws.Status())
}

func TestWorkspacePersistsCoalescedAndReloads(t *testing.T) {
	store := kv.NewMemoryStore()
	f := newWorkspace(t, store)
	var changes int
	f.ws.OnChange(func([]block.Block) { changes++ })

	f.ws.Add(block.TypeHero)
	f.ws.Add(block.TypeFAQ)
	f.ws.UpdateField("b2", "items", []any{map[string]any{"q": "Q1", "a": "A1"}})
	assert.Equal(t, 3, changes)
	assert.Equal(t, 0, store.Len(), "nothing written before the window closes")

	f.ws.Close()
	assert.Equal(t, 1, store.Len())

	again := newWorkspace(t, store)
	blocks := again.ws.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, block.FAQ{Items: []block.QA{{Q: "Q1", A: "A1"}}}, blocks[1].Data)
}

func sectionRegistry() *registry.Registry {
	return registry.New([]registry.Template{{
		Title: "Launch",
		Slug:  "launch",
		Sections: []section.TemplateSection{
			{ID: section.Hero, Label: "Hero", EnabledByDefault: true},
			{ID: section.Features, Label: "Features", EnabledByDefault: false},
			{ID: section.FAQ, Label: "FAQ", EnabledByDefault: true},
		},
	}}, nil)
}

func newEditor(t *testing.T, store kv.Store, reg *registry.Registry, key string) (*SectionEditor, *persist.ManualScheduler) {
	t.Helper()
	sched := &persist.ManualScheduler{}
	a := persist.New[section.State](store, persist.SectionSchema{Registry: reg}, persist.Options{Scheduler: sched})
	return OpenSectionEditor(context.Background(), reg, key, a, testOptions()), sched
}

func TestSectionEditorDefaultsFromRegistry(t *testing.T) {
	e, _ := newEditor(t, kv.NewMemoryStore(), sectionRegistry(), "launch")

	st := e.State()
	assert.Equal(t, []section.Key{section.Hero, section.Features, section.FAQ}, st.Order)
	assert.Equal(t, map[section.Key]bool{section.Hero: true, section.Features: false, section.FAQ: true}, st.Enabled)
	assert.Equal(t, int64(0), st.UpdatedAt)
}

func TestSectionEditorClearRestoresDefaults(t *testing.T) {
	store := kv.NewMemoryStore()
	reg := sectionRegistry()
	e, _ := newEditor(t, store, reg, "launch")

	e.Toggle(section.Features)
	e.BeginDrag(section.FAQ)
	e.Drop(section.Hero)
	e.Close()
	require.Equal(t, 1, store.Len())

	e.Clear(context.Background())
	assert.Equal(t, StatusCleared, e.Status())
	assert.Equal(t, 0, store.Len())

	reopened, _ := newEditor(t, store, reg, "launch")
	assert.Equal(t, reg.Lookup("launch").Schema().Defaults(), reopened.State())
}

func TestSectionEditorEdits(t *testing.T) {
	store := kv.NewMemoryStore()
	reg := sectionRegistry()
	e, sched := newEditor(t, store, reg, "launch")

	assert.True(t, e.Toggle(section.Features))
	assert.Equal(t, "Features shown.", e.Status())
	assert.False(t, e.SetEnabled(section.Features, true), "already shown")
	assert.False(t, e.Toggle(section.Gallery), "not offered by the template")

	assert.True(t, e.MoveToIndex(section.FAQ, -5))
	assert.Equal(t, "FAQ moved to position 1.", e.Status())
	assert.Equal(t, []section.Key{section.FAQ, section.Hero, section.Features}, e.State().Order)

	e.BeginDrag(section.Hero)
	e.CancelDrag()
	_, dragging := e.Dragging()
	assert.False(t, dragging)

	st := e.State()
	assert.Equal(t, testNow.UnixMilli(), st.UpdatedAt)

	assert.True(t, sched.Pending())
	e.Close()
	reopened, _ := newEditor(t, store, reg, "launch")
	assert.Equal(t, st, reopened.State())

	e.Reset()
	assert.Equal(t, StatusReset, e.Status())
	assert.Equal(t, reg.Lookup("launch").Schema().Defaults().Order, e.State().Order)
}

func TestSectionEditorOrderStaysPermutation(t *testing.T) {
	e, _ := newEditor(t, kv.NewMemoryStore(), registry.Default(nil), "aurora-consulting")
	canonical := e.Template().Schema().Canonical()

	moves := []struct {
		key   section.Key
		delta int
	}{
		{section.CTA, -3}, {section.Hero, 2}, {section.Gallery, 9}, {section.FAQ, -9},
	}
	for _, m := range moves {
		e.MoveToIndex(m.key, m.delta)
		e.BeginDrag(m.key)
		e.Drop(section.Pricing)
	}

	assert.ElementsMatch(t, canonical, e.State().Order)
}

func TestSectionEditorUnknownTemplate(t *testing.T) {
	e, _ := newEditor(t, kv.NewMemoryStore(), sectionRegistry(), "not-in-catalogue")

	st := e.State()
	assert.Equal(t, section.Keys, st.Order)
	for _, k := range section.Keys {
		assert.True(t, st.Enabled[k])
	}

	a, err := e.Export()
	require.NoError(t, err)
	assert.Equal(t, "site.html", a.Filename)
	assert.Contains(t, string(a.Body), `id="gallery"`)
}

func TestSectionEditorPreviewAndFragment(t *testing.T) {
	e, _ := newEditor(t, kv.NewMemoryStore(), sectionRegistry(), "launch")
	var seen section.State
	e.OnChange(func(st section.State) { seen = st })

	e.Toggle(section.Hero)
	assert.False(t, seen.Enabled[section.Hero])

	frag, err := e.Fragment()
	require.NoError(t, err)
	assert.NotContains(t, string(frag), `id="hero"`)
	assert.Contains(t, string(frag), `id="faq"`)

	page, err := e.Preview("/ws/launch")
	require.NoError(t, err)
	assert.Contains(t, string(page), "Preview – Launch")
	assert.Contains(t, string(page), "WebSocket")
}
