package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/server"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 10 * time.Second

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
	f := parseFlags(args)

	dir := f.arg(0, ".")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	dir, err := absDir(dir)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f, dir)
	if err != nil {
		return err
	}

	// CLI flags override config
	if port := f.get("port"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid port: %s", port)
		}
		cfg.Server.Port = n
	}
	if host := f.get("host"); host != "" {
		cfg.Server.Host = host
	}
	if f.bool("watch") {
		cfg.Registry.Watch = true
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := server.Options{
		Registry:    a.registry,
		Sections:    a.sections,
		Blocks:      a.blocks,
		Composer:    a.composerOptions(),
		CORSOrigins: cfg.API.GetCORSOrigins(),
		Logger:      log,
		Metrics:     a.metrics,
	}
	if cfg.API != nil && cfg.API.RateLimit != nil {
		opts.RateLimitRPS = cfg.API.GetRateLimitRPS()
		opts.RateLimitBurst = cfg.API.GetRateLimitBurst()
	}
	srv := server.New(opts)
	defer srv.Close()

	if cfg.Registry.Watch && cfg.Registry.File != "" {
		w, err := registry.NewWatcher(cfg.Registry.File, a.registry, srv.TemplatesReloaded, log)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.Registry.File, err)
		}
		w.Start()
		defer w.Stop()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🧱 %s\n\n", cfg.Title)
	fmt.Printf("Serving: %s\n", dir)
	fmt.Printf("Storage: %s\n", cfg.Storage.Driver)
	fmt.Printf("Templates: %d\n", a.registry.Len())
	fmt.Printf("\n🌐 Server running at http://%s\n", httpSrv.Addr)
	if cfg.Registry.Watch && cfg.Registry.File != "" {
		fmt.Printf("👀 Watching %s for template changes\n", cfg.Registry.File)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", logger.Error(err))
	}
	return nil
}
