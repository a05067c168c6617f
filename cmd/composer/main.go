// Command composer serves the page composer and edits and exports saved
// layouts from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/composer/cmd/composer/commands"
)

const version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "export":
		err = commands.ExportCommand(args)
	case "templates":
		err = commands.TemplatesCommand(args)
	case "sections":
		err = commands.SectionsCommand(args)
	case "blocks":
		err = commands.BlocksCommand(args)
	case "version":
		fmt.Printf("composer version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("composer - Build pages from blocks and template sections")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  composer serve [directory]              Start the editor server")
	fmt.Println("  composer templates [--category=X]       List catalogue templates")
	fmt.Println("  composer sections <template> [action]   Edit a template's section layout")
	fmt.Println("  composer blocks <workspace> [action]    Edit a block workspace")
	fmt.Println("  composer export [workspace]             Export a workspace as HTML")
	fmt.Println("  composer export --template=<slug>       Export a template layout as HTML")
	fmt.Println("  composer version                        Show version")
	fmt.Println("  composer help                           Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -c, --config <file>   Config file (default: ./composer.yaml)")
	fmt.Println("  -o, --output <file>   Export destination, - for stdout")
	fmt.Println("  -p, --port <port>     Server port")
	fmt.Println("  -w, --watch           Reload the template file on change")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  composer serve --port 3000")
	fmt.Println("  composer templates --free --sort=az")
	fmt.Println("  composer sections aurora-consulting toggle gallery")
	fmt.Println("  composer blocks main add hero")
	fmt.Println("  composer export main -o dist/index.html")
}
