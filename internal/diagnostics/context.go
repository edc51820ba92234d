package diagnostics

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SourceFunc returns the current text of a file. The engine supplies its
// in-memory copy so snippets match what was indexed, not what is on disk.
type SourceFunc func(path string) ([]byte, error)

// ContextExtractor cuts source snippets out of files, reading each file once.
type ContextExtractor struct {
	read  SourceFunc
	files map[string][]string
}

// NewContextExtractor reads through source, or from disk when source is nil.
func NewContextExtractor(source SourceFunc) *ContextExtractor {
	if source == nil {
		source = os.ReadFile
	}
	return &ContextExtractor{read: source, files: map[string][]string{}}
}

// ExtractContext returns line together with up to radius lines above and
// below it.
func (e *ContextExtractor) ExtractContext(path string, line, column, radius int) (Context, error) {
	lines, ok := e.files[path]
	if !ok {
		text, err := e.read(path)
		if err != nil {
			return Context{}, fmt.Errorf("read source %s: %w", path, err)
		}
		lines = sourceLines(string(text))
		e.files[path] = lines
	}
	if line < 1 || line > len(lines) {
		return Context{}, fmt.Errorf("line %d out of range [1, %d]", line, len(lines))
	}
	first, last := max(1, line-radius), min(len(lines), line+radius)
	return Context{Lines: lines[first-1 : last], StartLine: first, ErrorLine: line, ErrorColumn: column}, nil
}

func sourceLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Context is a window of numbered source lines.
type Context struct {
	Lines       []string
	StartLine   int
	ErrorLine   int
	ErrorColumn int
}

// IsEmpty reports whether the window holds no lines.
func (c Context) IsEmpty() bool { return len(c.Lines) == 0 }

// Format renders the window as
//
//	  2 | q:
//	> 3 | SELECT nope
//	             ^
//
// with the caret under ErrorColumn. Tabs before the column are kept so the
// caret lines up in a terminal.
func (c Context) Format() string {
	if c.IsEmpty() {
		return ""
	}
	width := len(strconv.Itoa(c.StartLine + len(c.Lines) - 1))
	var b strings.Builder
	for i, text := range c.Lines {
		n := c.StartLine + i
		if n != c.ErrorLine {
			fmt.Fprintf(&b, "  %*d | %s\n", width, n, text)
			continue
		}
		fmt.Fprintf(&b, "> %*d | %s\n", width, n, text)
		if c.ErrorColumn < 1 {
			continue
		}
		pad := []byte(text[:min(c.ErrorColumn-1, len(text))])
		for j, ch := range pad {
			if ch != '\t' {
				pad[j] = ' '
			}
		}
		b.WriteString(strings.Repeat(" ", width+5) + string(pad) + "^\n")
	}
	return b.String()
}

// Enrich fills in Context for located diagnostics that lack one. Files the
// extractor cannot read are skipped.
func Enrich(c *Collection, extractor *ContextExtractor, radius int) {
	for i := range c.diagnostics {
		d := &c.diagnostics[i]
		if d.Context != "" || !d.HasLocation() {
			continue
		}
		if ctx, err := extractor.ExtractContext(d.Location.Path, d.Location.Line, d.Location.Column, radius); err == nil {
			d.Context = ctx.Format()
		}
	}
}
