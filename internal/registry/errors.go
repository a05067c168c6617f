package registry

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// LoadError describes a registry file that could not be parsed.
type LoadError struct {
	File    string
	Line    int // 1-indexed, 0 when unknown
	Message string
	Hint    string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "%s:%d: %s", e.File, e.Line, e.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s", e.File, e.Message)
	}
	if snippet := e.snippet(); snippet != "" {
		b.WriteString("\n")
		b.WriteString(snippet)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "\nhint: %s", e.Hint)
	}
	return b.String()
}

// snippet returns the offending line with one line of context either side.
func (e *LoadError) snippet() string {
	if e.File == "" || e.Line < 1 {
		return ""
	}
	f, err := os.Open(e.File)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	for n := max(1, e.Line-1); n <= min(len(lines), e.Line+1); n++ {
		marker := "  "
		if n == e.Line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d | %s\n", marker, n, lines[n-1])
	}
	return strings.TrimRight(b.String(), "\n")
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// newLoadError wraps a yaml decoding error, pulling out the line number
// yaml.v3 embeds in its messages.
func newLoadError(file string, err error) *LoadError {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	le := &LoadError{File: file, Message: msg}
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		le.Line, _ = strconv.Atoi(m[1])
	}
	switch {
	case strings.Contains(msg, "cannot unmarshal"):
		le.Hint = "check the field types against the templates schema (tags is a list, free is a boolean)"
	case strings.Contains(msg, "found character that cannot start any token"):
		le.Hint = "YAML does not allow tabs for indentation"
	}
	return le
}
