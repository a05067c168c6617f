// Package composer assembles pages from typed content blocks, or from the
// fixed sections a catalogue template offers, and keeps them saved between
// sessions.
//
// A Workspace edits a named block collection; a SectionEditor toggles and
// reorders one template's sections. Both persist every change through a
// coalescing persist.Adapter and export through the same renderer that
// drives their previews.
package composer

import (
	"time"

	"github.com/livetemplate/composer/internal/export"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
	"github.com/livetemplate/composer/internal/render"
)

// Status messages reported after whole-state operations.
const (
	StatusReset   = "Sections reset to defaults."
	StatusCleared = "Saved layout cleared."
)

// Options are shared by Workspace and SectionEditor. Zero values are
// usable.
type Options struct {
	Exporter *export.Exporter
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	// Clock stamps section state changes. Defaults to time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Exporter == nil {
		o.Exporter = export.New(render.New(), export.Options{Metrics: o.Metrics, Logger: o.Logger})
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
