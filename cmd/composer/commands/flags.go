package commands

import (
	"strconv"
	"strings"
)

// flags holds parsed --key=value options. A bare --key is "true".
type flags struct {
	values     map[string]string
	positional []string
}

var shortFlags = map[string]string{
	"c": "config",
	"o": "output",
	"p": "port",
	"w": "watch",
	"t": "template",
}

// valueFlags take the next argument as their value when written without =.
var valueFlags = map[string]bool{
	"config": true, "output": true, "port": true, "host": true,
	"template": true, "workspace": true, "format": true,
	"category": true, "q": true, "sort": true,
}

func parseFlags(args []string) flags {
	f := flags{values: make(map[string]string)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-" || !strings.HasPrefix(arg, "-") || isNumber(arg) {
			f.positional = append(f.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		name, value, hasValue := strings.Cut(name, "=")
		if long, ok := shortFlags[name]; ok && !strings.HasPrefix(arg, "--") {
			name = long
		}
		if !hasValue {
			if valueFlags[name] && i+1 < len(args) {
				value = args[i+1]
				i++
			} else {
				value = "true"
			}
		}
		f.values[name] = value
	}
	return f
}

func (f flags) get(name string) string { return f.values[name] }

func (f flags) bool(name string) bool {
	switch strings.ToLower(f.values[name]) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// arg returns the i-th positional argument, or def.
func (f flags) arg(i int, def string) string {
	if i < len(f.positional) {
		return f.positional[i]
	}
	return def
}

// isNumber keeps negative numbers such as a move delta positional.
func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
