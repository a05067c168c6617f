package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/block"
)

// defaultWorkspace is the workspace used when none is named.
const defaultWorkspace = "main"

const blocksUsage = "usage: composer blocks <workspace> [action]\n\n" +
	"Actions:\n" +
	"  list                     List the blocks in order (default)\n" +
	"  add <type>               Append a block (hero, features, pricing, faq, footer)\n" +
	"  set <ref> <field> <val>  Edit a field; list fields take values separated by |\n" +
	"  move <ref> <up|down>     Swap a block with its neighbour\n" +
	"  remove <ref>             Delete a block\n" +
	"  clear                    Delete the saved workspace\n\n" +
	"A block <ref> is its id or its 1-based position.\n\n" +
	"Examples:\n" +
	"  composer blocks main add hero\n" +
	"  composer blocks main set 1 headline \"Hello\"\n" +
	"  composer blocks main move 2 up"

// BlocksCommand edits a saved block workspace.
func BlocksCommand(args []string) error {
	f := parseFlags(args)
	name := f.arg(0, "")
	if name == "" {
		return fmt.Errorf("%s", blocksUsage)
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

	if f.arg(1, "") == "clear" {
		a.blocks.Clear(ctx, name)
		fmt.Printf("Workspace %s cleared\n", name)
		return nil
	}

	ws := composer.OpenWorkspace(ctx, name, nil, a.blocks, a.composerOptions())
	defer ws.Close()

	ref := func() (string, error) {
		r := f.arg(2, "")
		blocks := ws.Blocks()
		if _, ok := block.Find(blocks, r); ok {
			return r, nil
		}
		if n, err := strconv.Atoi(r); err == nil && n >= 1 && n <= len(blocks) {
			return blocks[n-1].ID, nil
		}
		return "", fmt.Errorf("no block %q in workspace %s", r, name)
	}

	switch action := f.arg(1, "list"); action {
	case "list":
	case "add":
		t := block.Type(f.arg(2, ""))
		if _, ok := ws.Add(t); !ok {
			return fmt.Errorf("unknown block type %q", t)
		}
	case "set":
		id, err := ref()
		if err != nil {
			return err
		}
		field, raw := f.arg(3, ""), f.arg(4, "")
		var value any = raw
		if field == "items" || field == "bullets" {
			value = strings.Split(raw, "|")
		}
		if !ws.UpdateField(id, field, value) {
			return fmt.Errorf("field %q cannot be set on this block", field)
		}
	case "move":
		id, err := ref()
		if err != nil {
			return err
		}
		dir, err := block.ParseDirection(f.arg(3, ""))
		if err != nil {
			return err
		}
		ws.Move(id, dir)
	case "remove":
		id, err := ref()
		if err != nil {
			return err
		}
		ws.Remove(id)
	default:
		return fmt.Errorf("unknown action %q\n\n%s", action, blocksUsage)
	}

	if s := ws.Status(); s != "" {
		fmt.Println(s)
	}
	return printBlocks(os.Stdout, ws.Blocks())
}

func printBlocks(w io.Writer, blocks []block.Block) error {
	if len(blocks) == 0 {
		fmt.Fprintln(w, "No blocks")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, b := range blocks {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, b.Type, summary(b))
	}
	return tw.Flush()
}

// summary is a one-line description of a block's content.
func summary(b block.Block) string {
	switch d := b.Data.(type) {
	case block.Hero:
		return d.Headline
	case block.Features:
		return strings.Join(d.Items, ", ")
	case block.Pricing:
		return d.Title + " " + d.Price
	case block.FAQ:
		return fmt.Sprintf("%d questions", len(d.Items))
	case block.Footer:
		return d.Text
	}
	return ""
}
