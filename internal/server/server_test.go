package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/kv"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/persist"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/section"
)

type fixture struct {
	srv      *Server
	ts       *httptest.Server
	store    *kv.MemoryStore
	sections *persist.ManualScheduler
	blocks   *persist.ManualScheduler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := kv.NewMemoryStore()
	reg := registry.Default(nil)
	f := fixture{store: store, sections: &persist.ManualScheduler{}, blocks: &persist.ManualScheduler{}}

	f.srv = New(Options{
		Registry: reg,
		Sections: persist.New[section.State](store, persist.SectionSchema{Registry: reg},
			persist.Options{Namespace: "builder", Scheduler: f.sections}),
		Blocks: persist.New[[]block.Block](store, persist.BlockSchema{},
			persist.Options{Namespace: "blocks", Scheduler: f.blocks}),
		Metrics: metrics.New(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.ts = httptest.NewServer(f.srv.Handler(ctx))
	t.Cleanup(f.ts.Close)
	return f
}

func (f fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, r)
	require.NoError(t, err)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestListTemplates(t *testing.T) {
	f := newFixture(t)

	type listing struct {
		Templates  []registry.Template `json:"templates"`
		Categories []string            `json:"categories"`
	}
	slugs := func(l listing) []string {
		var out []string
		for _, tmpl := range l.Templates {
			out = append(out, tmpl.Slug)
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		check func(t *testing.T, l listing)
	}{
		{"all, most popular first", "", func(t *testing.T, l listing) {
			require.Len(t, l.Templates, 5)
			for i := 1; i < len(l.Templates); i++ {
				assert.GreaterOrEqual(t, l.Templates[i-1].Popularity, l.Templates[i].Popularity)
			}
			assert.Equal(t, registry.Categories, l.Categories)
		}},
		{"category", "?category=Portfolio", func(t *testing.T, l listing) {
			assert.Equal(t, []string{"lenscraft-portfolio"}, slugs(l))
		}},
		{"free only", "?free=true", func(t *testing.T, l listing) {
			require.NotEmpty(t, l.Templates)
			for _, tmpl := range l.Templates {
				assert.True(t, tmpl.Free, tmpl.Slug)
			}
		}},
		{"search", "?q=gallery", func(t *testing.T, l listing) {
			assert.Contains(t, slugs(l), "lenscraft-portfolio")
		}},
		{"title order", "?sort=az", func(t *testing.T, l listing) {
			require.NotEmpty(t, l.Templates)
			assert.Equal(t, "aurora-consulting", l.Templates[0].Slug)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, "GET", "/api/templates"+tt.query, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			tt.check(t, decodeAs[listing](t, body))
		})
	}
}

func TestGetTemplate(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/templates/aurora-consulting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Aurora Consulting", decodeAs[registry.Template](t, body).Title)

	resp, body = f.do(t, "GET", "/api/templates/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)
}

func TestSectionsAPI(t *testing.T) {
	f := newFixture(t)
	const base = "/api/templates/aurora-consulting/sections"

	resp, body := f.do(t, "GET", base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeAs[sectionsResponse](t, body)
	assert.Equal(t, "aurora-consulting", got.Template)
	assert.Equal(t, []section.Key{"hero", "features", "gallery", "pricing", "faq", "cta"}, got.State.Order)
	assert.False(t, got.State.Enabled[section.Gallery])
	require.Len(t, got.Sections, 6)
	assert.Equal(t, "Bottom CTA", got.Sections[5].Label)

	_, body = f.do(t, "POST", base+"/toggle", map[string]any{"id": "gallery"})
	got = decodeAs[sectionsResponse](t, body)
	assert.True(t, got.State.Enabled[section.Gallery])
	assert.Equal(t, "Gallery shown.", got.Status)

	_, body = f.do(t, "POST", base+"/toggle", map[string]any{"id": "faq", "enabled": false})
	got = decodeAs[sectionsResponse](t, body)
	assert.False(t, got.State.Enabled[section.FAQ])
	assert.Equal(t, "FAQ hidden.", got.Status)

	_, body = f.do(t, "POST", base+"/move", map[string]any{"id": "cta", "delta": -10})
	got = decodeAs[sectionsResponse](t, body)
	assert.Equal(t, section.CTA, got.State.Order[0])
	assert.Equal(t, "Bottom CTA moved to position 1.", got.Status)

	f.do(t, "POST", base+"/drag", map[string]any{"action": "begin", "id": "cta"})
	_, body = f.do(t, "POST", base+"/drag", map[string]any{"action": "drop", "id": "faq"})
	got = decodeAs[sectionsResponse](t, body)
	assert.Equal(t, []section.Key{"hero", "features", "gallery", "pricing", "faq", "cta"}, got.State.Order)

	f.sections.Flush()
	stored, err := f.store.Get(context.Background(), "builder:v1:aurora-consulting")
	require.NoError(t, err)
	assert.Contains(t, stored, `"gallery":true`)

	_, body = f.do(t, "POST", base+"/reset", nil)
	got = decodeAs[sectionsResponse](t, body)
	assert.Equal(t, composer.StatusReset, got.Status)
	assert.False(t, got.State.Enabled[section.Gallery])

	resp, body = f.do(t, "DELETE", base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, composer.StatusCleared, decodeAs[sectionsResponse](t, body).Status)
	_, err = f.store.Get(context.Background(), "builder:v1:aurora-consulting")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSectionsAPIRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	const base = "/api/templates/aurora-consulting/sections"

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown section", "/toggle", map[string]any{"id": "carousel"}, http.StatusBadRequest},
		{"malformed json", "/toggle", `{"id":`, http.StatusBadRequest},
		{"unknown field", "/move", map[string]any{"id": "hero", "by": 1}, http.StatusBadRequest},
		{"empty body", "/move", nil, http.StatusBadRequest},
		{"bad drag action", "/drag", map[string]any{"action": "fling", "id": "hero"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, "POST", base+tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestDecodeLimitsBodySize(t *testing.T) {
	body := `{"id":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var v struct {
		ID string `json:"id"`
	}
	assert.False(t, decode(w, r, &v))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSectionsReplaceIsSanitized(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "PUT", "/api/templates/lenscraft-portfolio/sections", map[string]any{
		"order":   []string{"faq", "bogus", "faq", "hero"},
		"enabled": map[string]bool{"pricing": true, "bogus": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeAs[sectionsResponse](t, body)
	assert.Equal(t, []section.Key{"faq", "hero", "gallery", "features", "pricing", "cta"}, got.State.Order)
	assert.True(t, got.State.Enabled[section.Pricing])
	assert.False(t, got.State.Enabled[section.Features])
	assert.NotContains(t, got.State.Enabled, section.Key("bogus"))
	assert.Equal(t, "Layout saved.", got.Status)
}

func TestUnknownTemplateIsNotFound(t *testing.T) {
	f := newFixture(t)
	long := "/api/templates/" + strings.Repeat("x", 4000)

	tests := []struct {
		name, method, path string
		body               any
	}{
		{"get sections", "GET", "/api/templates/ghost/sections", nil},
		{"put sections", "PUT", "/api/templates/ghost/sections", map[string]any{"order": []string{"hero"}}},
		{"clear", "DELETE", "/api/templates/ghost/sections", nil},
		{"toggle", "POST", "/api/templates/ghost/sections/toggle", map[string]any{"id": "hero"}},
		{"toggle long slug", "POST", long + "/sections/toggle", map[string]any{"id": "hero"}},
		{"move", "POST", "/api/templates/ghost/sections/move", map[string]any{"id": "hero", "delta": 1}},
		{"drag", "POST", "/api/templates/ghost/sections/drag", map[string]any{"action": "begin", "id": "hero"}},
		{"reset", "POST", "/api/templates/ghost/sections/reset", nil},
		{"preview", "GET", "/preview/ghost", nil},
		{"export", "GET", "/export/templates/ghost", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Contains(t, string(body), "template not found")
		})
	}

	f.srv.mu.Lock()
	assert.Empty(t, f.srv.editors)
	f.srv.mu.Unlock()

	f.sections.Flush()
	assert.Zero(t, f.store.Len())
}

func TestTemplatePreviewAndExport(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/preview/aurora-consulting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "/ws/templates/aurora-consulting")

	resp, body = f.do(t, "GET", "/export/templates/aurora-consulting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="site.html"`, resp.Header.Get("Content-Disposition"))
	assert.Contains(t, string(body), "<title>Aurora Consulting</title>")
	assert.Contains(t, string(body), `id="pricing"`)
	assert.NotContains(t, string(body), `id="gallery"`)
	assert.NotContains(t, string(body), "WebSocket")
}

func TestWorkspaceAPI(t *testing.T) {
	f := newFixture(t)
	const base = "/api/workspaces/main/blocks"

	resp, body := f.do(t, "GET", base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeAs[blocksResponse](t, body).Blocks)

	resp, body = f.do(t, "POST", base, map[string]any{"type": "hero"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	hero := decodeAs[blocksResponse](t, body).Block
	require.NotNil(t, hero)
	assert.Equal(t, block.TypeHero, hero.Type)

	_, body = f.do(t, "POST", base, map[string]any{"type": "footer"})
	footer := decodeAs[blocksResponse](t, body).Block
	require.NotNil(t, footer)

	resp, body = f.do(t, "PATCH", base+"/"+hero.ID, map[string]any{"field": "headline", "value": "Ship it"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeAs[blocksResponse](t, body)
	assert.Equal(t, "Ship it", got.Blocks[0].Data.(block.Hero).Headline)

	_, body = f.do(t, "POST", base+"/"+footer.ID+"/move", map[string]any{"direction": "up"})
	got = decodeAs[blocksResponse](t, body)
	assert.Equal(t, []string{footer.ID, hero.ID}, block.IDs(got.Blocks))
	assert.Equal(t, "Footer moved to position 1.", got.Status)

	_, body = f.do(t, "POST", base+"/"+footer.ID+"/move", map[string]any{"delta": 1})
	assert.Equal(t, []string{hero.ID, footer.ID}, block.IDs(decodeAs[blocksResponse](t, body).Blocks))

	f.do(t, "POST", base+"/drag", map[string]any{"action": "begin", "id": footer.ID})
	_, body = f.do(t, "POST", base+"/drag", map[string]any{"action": "drop", "id": hero.ID})
	assert.Equal(t, []string{footer.ID, hero.ID}, block.IDs(decodeAs[blocksResponse](t, body).Blocks))

	resp, body = f.do(t, "GET", "/export/main", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, strings.Index(string(body), "<footer"), strings.Index(string(body), "Ship it"))

	resp, _ = f.do(t, "DELETE", base+"/"+footer.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.blocks.Flush()
	stored, err := f.store.Get(context.Background(), "blocks:v1:main")
	require.NoError(t, err)
	assert.Contains(t, stored, "Ship it")
	assert.NotContains(t, stored, footer.ID)
}

func TestWorkspaceAPIErrors(t *testing.T) {
	f := newFixture(t)
	const base = "/api/workspaces/main/blocks"

	_, body := f.do(t, "POST", base, map[string]any{"type": "hero"})
	hero := decodeAs[blocksResponse](t, body).Block
	require.NotNil(t, hero)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown type", "POST", base, map[string]any{"type": "carousel"}, http.StatusBadRequest},
		{"update missing block", "PATCH", base + "/nope", map[string]any{"field": "headline", "value": "x"}, http.StatusNotFound},
		{"update bad field", "PATCH", base + "/" + hero.ID, map[string]any{"field": "price", "value": "x"}, http.StatusBadRequest},
		{"update wrong value type", "PATCH", base + "/" + hero.ID, map[string]any{"field": "headline", "value": 3}, http.StatusBadRequest},
		{"remove missing block", "DELETE", base + "/nope", nil, http.StatusNotFound},
		{"move missing block", "POST", base + "/nope/move", map[string]any{"direction": "up"}, http.StatusNotFound},
		{"bad direction", "POST", base + "/" + hero.ID + "/move", map[string]any{"direction": "sideways"}, http.StatusBadRequest},
		{"bad workspace name", "GET", "/api/workspaces/_hidden/blocks", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestWorkspacePreview(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/workspaces/demo/blocks", map[string]any{"type": "faq"})

	resp, body := f.do(t, "GET", "/preview/workspaces/demo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<details")
	assert.Contains(t, string(body), "/ws/demo")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, "GET", "/export/templates/aurora-consulting", nil)

	resp, body := f.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `composer_exports_total{variant="sections"} 1`)

	// A scraper asking for gzip explicitly gets a body that decodes once.
	req, err := http.NewRequest("GET", f.ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	raw, err := f.ts.Client().Transport.RoundTrip(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, "gzip", raw.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(raw.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), `composer_exports_total{variant="sections"} 1`)
}
