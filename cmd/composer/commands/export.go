package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/export"
)

// ExportCommand writes a workspace, or a template's section layout, as a
// standalone HTML file.
// Usage: composer export [workspace] [--template=<slug>] [--output=<file|->]
func ExportCommand(args []string) error {
	f := parseFlags(args)
	cfg, err := loadConfig(f, ".")
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var artifact *export.Artifact
	if slug := f.get("template"); slug != "" {
		if _, err := a.template(slug); err != nil {
			return err
		}
		artifact, err = composer.OpenSectionEditor(ctx, a.registry, slug, a.sections, a.composerOptions()).Export()
	} else {
		name := f.arg(0, defaultWorkspace)
		artifact, err = composer.OpenWorkspace(ctx, name, nil, a.blocks, a.composerOptions()).Export()
	}
	if err != nil {
		return err
	}

	out := f.get("output")
	if out == "" {
		out = artifact.Filename
	}
	if out == "-" {
		_, err := os.Stdout.Write(artifact.Body)
		return err
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(out, artifact.Body, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Exported %s (%d bytes)\n", out, len(artifact.Body))
	return nil
}
