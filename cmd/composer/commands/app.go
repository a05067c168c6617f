package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/cache"
	"github.com/livetemplate/composer/internal/config"
	"github.com/livetemplate/composer/internal/export"
	"github.com/livetemplate/composer/internal/kv"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/persist"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/render"
	"github.com/livetemplate/composer/internal/section"
)

// app holds everything a command needs, built from one config.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	metrics  *metrics.Metrics
	store    kv.Store
	registry *registry.Registry
	sections *persist.Adapter[section.State]
	blocks   *persist.Adapter[[]block.Block]
	exporter *export.Exporter
	cache    *cache.MemoryCache[*export.Artifact]
}

// loadConfig reads --config when given, else composer.yaml in dir.
func loadConfig(f flags, dir string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := f.get("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger. One-shot commands log to stderr
// and only from warn up, so their stdout stays scriptable.
func newLogger(cfg *config.Config, oneShot bool) (logger.Logger, error) {
	lc := logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development}
	if oneShot {
		lc.OutputPaths = []string{"stderr"}
		if l := strings.ToLower(lc.Level); l == "" || l == "info" || l == "debug" {
			lc.Level = "warn"
		}
	}
	return logger.New(lc)
}

func openApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	store, err := kv.Open(ctx, kv.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
		Table:  cfg.Storage.Table,
		Redis: kv.RedisConfig{
			Address:  cfg.Storage.Address,
			Password: cfg.Storage.Password,
			DB:       cfg.Storage.DB,
		},
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}

	reg, err := registry.LoadFile(cfg.Registry.File, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	m := metrics.New()
	p := cfg.Persistence
	adapterOpts := func(ns string) persist.Options {
		return persist.Options{
			Namespace: ns,
			Version:   p.GetSchemaVersion(),
			Timeout:   p.GetTimeout(),
			Scheduler: persist.NewDebounceScheduler(p.GetCoalesceWindow()),
			Logger:    log,
			Metrics:   m,
		}
	}

	blockSchema := persist.BlockSchema{}
	if p.StarterBlocks {
		blockSchema.Starter = block.NewStore().Starter
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    store,
		registry: reg,
		sections: persist.New[section.State](store, persist.SectionSchema{Registry: reg}, adapterOpts(p.Namespace)),
		blocks:   persist.New[[]block.Block](store, blockSchema, adapterOpts(p.BlocksNamespace)),
	}

	exportOpts := export.Options{
		Filename: cfg.Export.Filename,
		Title:    cfg.Export.Title,
		Lang:     cfg.Export.Lang,
		Logger:   log,
		Metrics:  m,
	}
	if cfg.Cache.IsEnabled() {
		a.cache = cache.NewMemoryCache[*export.Artifact]()
		exportOpts.Cache = a.cache
		exportOpts.CacheTTL = cfg.Cache.GetTTL()
	}
	a.exporter = export.New(render.New(), exportOpts)
	return a, nil
}

func (a *app) composerOptions() composer.Options {
	return composer.Options{Exporter: a.exporter, Logger: a.log, Metrics: a.metrics}
}

// template resolves slug against the catalogue, listing the known slugs
// when it is missing.
func (a *app) template(slug string) (registry.Template, error) {
	if t, ok := a.registry.Get(slug); ok {
		return t, nil
	}
	var slugs []string
	for _, t := range a.registry.List(registry.Filter{Sort: registry.SortTitle}) {
		slugs = append(slugs, t.Slug)
	}
	return registry.Template{}, fmt.Errorf("template %q not found. Available templates: %s", slug, strings.Join(slugs, ", "))
}

// Close writes pending state and releases the store.
func (a *app) Close() error {
	a.sections.Close()
	a.blocks.Close()
	if a.cache != nil {
		a.cache.Stop()
	}
	_ = a.log.Sync()
	return a.store.Close()
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return abs, nil
}
