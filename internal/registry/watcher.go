package registry

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/livetemplate/composer/internal/logger"
)

// Watcher reloads a registry when its file changes on disk.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	registry *Registry
	onReload func()
	done     chan struct{}
	log      logger.Logger
}

// NewWatcher watches path and replaces the contents of reg on every write.
// onReload, when set, runs after a successful reload.
func NewWatcher(path string, reg *Registry, onReload func(), log logger.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors often replace files by rename, so watch the directory.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Watcher{
		watcher:  fsw,
		path:     abs,
		registry: reg,
		onReload: onReload,
		done:     make(chan struct{}),
		log:      log.With(logger.Component("registry-watch")),
	}, nil
}

// Start begins watching in a new goroutine.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watch error", logger.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) reload() {
	templates, err := ReadFile(w.path)
	if err != nil {
		// Keep serving the previous catalogue until the file is fixed.
		w.log.Warn("registry reload failed", logger.Error(err))
		return
	}
	w.registry.Replace(templates)
	w.log.Info("registry reloaded", logger.Int("templates", len(templates)))
	if w.onReload != nil {
		w.onReload()
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
