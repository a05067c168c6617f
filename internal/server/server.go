// Package server exposes workspaces and template section editors over a
// JSON API, serves previews and downloads, and pushes live preview updates
// over websockets.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/export"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/persist"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/render"
	"github.com/livetemplate/composer/internal/section"
)

// Options wires a Server. Registry, Sections and Blocks are required.
type Options struct {
	Registry *registry.Registry
	Sections *persist.Adapter[section.State]
	Blocks   *persist.Adapter[[]block.Block]

	BlockStore *block.Store
	Composer   composer.Options

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Server is the composer HTTP front end.
type Server struct {
	opts    Options
	log     logger.Logger
	metrics *metrics.Metrics
	hub     *Hub

	mu         sync.Mutex
	editors    map[string]*composer.SectionEditor
	workspaces map[string]*composer.Workspace
}

// New returns a Server. Editors and workspaces are opened on first use.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.BlockStore == nil {
		opts.BlockStore = block.NewStore()
	}
	if opts.Composer.Logger == nil {
		opts.Composer.Logger = opts.Logger
	}
	if opts.Composer.Metrics == nil {
		opts.Composer.Metrics = opts.Metrics
	}
	if opts.Composer.Exporter == nil {
		opts.Composer.Exporter = export.New(render.New(), export.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	}
	log := opts.Logger.With(logger.Component("server"))
	return &Server{
		opts:       opts,
		log:        log,
		metrics:    opts.Metrics,
		hub:        NewHub(opts.Logger, opts.Metrics),
		editors:    make(map[string]*composer.SectionEditor),
		workspaces: make(map[string]*composer.Workspace),
	}
}

// Hub returns the live preview hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler wrapped in the middleware stack. The
// rate limiter's cleanup goroutine stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("GET /api/templates/{template}", s.handleGetTemplate)
	mux.HandleFunc("GET /api/templates/{template}/sections", s.handleGetSections)
	mux.HandleFunc("PUT /api/templates/{template}/sections", s.handlePutSections)
	mux.HandleFunc("DELETE /api/templates/{template}/sections", s.handleClearSections)
	mux.HandleFunc("POST /api/templates/{template}/sections/toggle", s.handleToggleSection)
	mux.HandleFunc("POST /api/templates/{template}/sections/move", s.handleMoveSection)
	mux.HandleFunc("POST /api/templates/{template}/sections/drag", s.handleDragSection)
	mux.HandleFunc("POST /api/templates/{template}/sections/reset", s.handleResetSections)
	mux.HandleFunc("GET /preview/{template}", s.handlePreviewTemplate)
	mux.HandleFunc("GET /export/templates/{template}", s.handleExportTemplate)
	mux.HandleFunc("GET /ws/templates/{template}", s.handleTemplateSocket)

	mux.HandleFunc("GET /api/workspaces/{ws}/blocks", s.handleGetBlocks)
	mux.HandleFunc("POST /api/workspaces/{ws}/blocks", s.handleAddBlock)
	mux.HandleFunc("PATCH /api/workspaces/{ws}/blocks/{id}", s.handleUpdateBlock)
	mux.HandleFunc("DELETE /api/workspaces/{ws}/blocks/{id}", s.handleRemoveBlock)
	mux.HandleFunc("POST /api/workspaces/{ws}/blocks/{id}/move", s.handleMoveBlock)
	mux.HandleFunc("POST /api/workspaces/{ws}/blocks/drag", s.handleDragBlock)
	mux.HandleFunc("GET /preview/workspaces/{ws}", s.handlePreviewWorkspace)
	mux.HandleFunc("GET /export/{ws}", s.handleExportWorkspace)
	mux.HandleFunc("GET /ws/{ws}", s.handleWorkspaceSocket)

	mws := []Middleware{
		LoggingMiddleware(s.log),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.opts.CORSOrigins),
	}
	if s.opts.RateLimitRPS > 0 {
		limit, _ := RateLimitMiddleware(ctx, s.opts.RateLimitRPS, s.opts.RateLimitBurst, 0, s.log)
		mws = append(mws, limit)
	}
	mws = append(mws, CompressionMiddleware)
	return chain(mux, mws...)
}

func templateChannel(slug string) string { return "template:" + slug }
func workspaceChannel(name string) string { return "workspace:" + name }

// editor returns the open editor for slug, opening it on first use.
func (s *Server) editor(ctx context.Context, slug string) *composer.SectionEditor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.editors[slug]; ok {
		return e
	}
	e := composer.OpenSectionEditor(ctx, s.opts.Registry, slug, s.opts.Sections, s.opts.Composer)
	e.OnChange(func(section.State) {
		frag, err := e.Fragment()
		if err != nil {
			s.log.Error("render preview failed", logger.String("template", slug), logger.Error(err))
			return
		}
		s.hub.Broadcast(templateChannel(slug), Message{Action: "render", HTML: string(frag), Status: e.Status()})
	})
	s.editors[slug] = e
	return e
}

// workspace returns the open workspace name, opening it on first use.
func (s *Server) workspace(ctx context.Context, name string) *composer.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workspaces[name]; ok {
		return w
	}
	w := composer.OpenWorkspace(ctx, name, s.opts.BlockStore, s.opts.Blocks, s.opts.Composer)
	w.OnChange(func([]block.Block) {
		frag, err := w.Fragment()
		if err != nil {
			s.log.Error("render preview failed", logger.String("workspace", name), logger.Error(err))
			return
		}
		s.hub.Broadcast(workspaceChannel(name), Message{Action: "render", HTML: string(frag), Status: w.Status()})
	})
	s.workspaces[name] = w
	return w
}

// TemplatesReloaded drops open editors so they pick up the new catalogue
// and tells every preview to reload.
func (s *Server) TemplatesReloaded() {
	s.mu.Lock()
	for _, e := range s.editors {
		e.Close()
	}
	s.editors = make(map[string]*composer.SectionEditor)
	s.mu.Unlock()

	s.hub.BroadcastAll(Message{Action: "reload"})
}

// Close writes every pending change.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.editors {
		e.Close()
	}
	for _, w := range s.workspaces {
		w.Close()
	}
}
