package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/section"
)

// defaultTimeout is the default context timeout for CLI operations
const defaultTimeout = 30 * time.Second

const sectionsUsage = "usage: composer sections <template> [action]\n\n" +
	"Actions:\n" +
	"  list               Show the saved layout (default)\n" +
	"  toggle <id>        Show or hide a section\n" +
	"  enable <id>        Show a section\n" +
	"  disable <id>       Hide a section\n" +
	"  move <id> <delta>  Move a section by delta positions\n" +
	"  reset              Restore and save the template defaults\n" +
	"  clear              Delete the saved layout\n\n" +
	"Examples:\n" +
	"  composer sections aurora-consulting\n" +
	"  composer sections aurora-consulting toggle gallery\n" +
	"  composer sections aurora-consulting move cta -5"

// SectionsCommand edits the saved section layout of one template.
func SectionsCommand(args []string) error {
	f := parseFlags(args)
	slug := f.arg(0, "")
	if slug == "" {
		return fmt.Errorf("%s", sectionsUsage)
	}

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

	if _, err := a.template(slug); err != nil {
		return err
	}
	e := composer.OpenSectionEditor(ctx, a.registry, slug, a.sections, a.composerOptions())
	defer e.Close()

	key := section.Key(f.arg(2, ""))
	needKey := func() error {
		if _, ok := e.State().Enabled[key]; !ok {
			return fmt.Errorf("template %s has no section %q", slug, key)
		}
		return nil
	}

	switch action := f.arg(1, "list"); action {
	case "list":
	case "toggle", "enable", "disable":
		if err := needKey(); err != nil {
			return err
		}
		switch action {
		case "toggle":
			e.Toggle(key)
		case "enable":
			e.SetEnabled(key, true)
		default:
			e.SetEnabled(key, false)
		}
	case "move":
		if err := needKey(); err != nil {
			return err
		}
		delta, err := strconv.Atoi(f.arg(3, ""))
		if err != nil {
			return fmt.Errorf("move needs an integer delta, got %q", f.arg(3, ""))
		}
		e.MoveToIndex(key, delta)
	case "reset":
		e.Reset()
	case "clear":
		e.Clear(ctx)
	default:
		return fmt.Errorf("unknown action %q\n\n%s", action, sectionsUsage)
	}

	if s := e.Status(); s != "" {
		fmt.Println(s)
	}
	printLayout(os.Stdout, e)
	return nil
}

func printLayout(w io.Writer, e *composer.SectionEditor) {
	st := e.State()
	schema := e.Template().Schema()
	for i, k := range st.Order {
		mark := " "
		if st.Enabled[k] {
			mark = "x"
		}
		fmt.Fprintf(w, "%d. [%s] %-9s %s\n", i+1, mark, k, schema.Label(k))
	}
}
