package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/livetemplate/composer/internal/registry"
)

// TemplatesCommand lists the template catalogue.
// Usage: composer templates [--category=X] [--free] [--q=text] [--sort=popularity|newest|az] [--format=table|json]
func TemplatesCommand(args []string) error {
	f := parseFlags(args)
	cfg, err := loadConfig(f, ".")
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	reg, err := registry.LoadFile(cfg.Registry.File, log)
	if err != nil {
		return err
	}

	list := reg.List(registry.Filter{
		Category: f.get("category"),
		FreeOnly: f.bool("free"),
		Query:    f.get("q"),
		Sort:     f.get("sort"),
	})

	switch format := f.get("format"); format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "", "table":
	default:
		return fmt.Errorf("invalid format %q: must be table or json", format)
	}

	if len(list) == 0 {
		fmt.Println("No templates found")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tTITLE\tCATEGORY\tPRICE\tSECTIONS")
	for _, t := range list {
		price := "paid"
		if t.Free {
			price = "free"
		}
		ids := make([]string, len(t.Sections))
		for i, s := range t.Sections {
			ids[i] = string(s.ID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Slug, t.Title, t.Category, price, strings.Join(ids, ","))
	}
	return tw.Flush()
}
