package diagnostics

import (
	"fmt"
	"io"
	"strings"
)

// Formatter renders diagnostics as compiler-style text. The zero value
// prints the header line only.
type Formatter struct {
	ShowContext bool
	// ShowHints adds suggestions, notes and related locations.
	ShowHints bool
	ShowCode  bool
	// Colorize wraps each part in ANSI escapes.
	Colorize bool
}

// NewFormatter returns the formatter used for the terminal report.
func NewFormatter() *Formatter {
	return &Formatter{ShowContext: true, ShowHints: true, ShowCode: true}
}

// NewSimpleFormatter returns a formatter printing one line per diagnostic.
func NewSimpleFormatter() *Formatter {
	return &Formatter{ShowCode: true}
}

type ansi string

const (
	ansiReset   ansi = "\033[0m"
	ansiRed     ansi = "\033[31m"
	ansiGreen   ansi = "\033[32m"
	ansiYellow  ansi = "\033[33m"
	ansiBlue    ansi = "\033[34m"
	ansiMagenta ansi = "\033[35m"
	ansiCyan    ansi = "\033[36m"
)

var severityColors = map[Severity]ansi{
	SeverityError:   ansiRed,
	SeverityWarning: ansiYellow,
	SeverityInfo:    ansiBlue,
}

func (f *Formatter) paint(c ansi, s string) string {
	if !f.Colorize || c == "" {
		return s
	}
	return string(c) + s + string(ansiReset)
}

// Format renders d, ending with a newline.
func (f *Formatter) Format(d Diagnostic) string {
	var b strings.Builder
	f.render(&b, d)
	return b.String()
}

// WriteAll renders every diagnostic of c in order.
func (f *Formatter) WriteAll(w io.Writer, c *Collection) error {
	var b strings.Builder
	for _, d := range c.diagnostics {
		f.render(&b, d)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// PrintSummary writes a count line such as "2 error(s), 1 warning(s)".
// Nothing is written for an empty collection.
func (f *Formatter) PrintSummary(w io.Writer, c *Collection) {
	s := c.Summary()
	var parts []string
	for _, n := range []struct {
		count int
		sev   Severity
	}{{s.Errors, SeverityError}, {s.Warnings, SeverityWarning}, {s.Infos, SeverityInfo}} {
		if n.count > 0 {
			parts = append(parts, f.paint(severityColors[n.sev], fmt.Sprintf("%d %s(s)", n.count, n.sev)))
		}
	}
	if len(parts) > 0 {
		_, _ = fmt.Fprintln(w, strings.Join(parts, ", "))
	}
}

func (f *Formatter) render(b *strings.Builder, d Diagnostic) {
	switch {
	case d.HasLocation():
		b.WriteString(f.paint(ansiCyan, d.Location.String()) + ": ")
	case d.Location.Path != "":
		b.WriteString(f.paint(ansiCyan, d.Location.Path) + ": ")
	}
	b.WriteString(f.paint(severityColors[d.Severity], d.Severity.String()) + ": " + d.Message)
	if f.ShowCode && d.Code != "" {
		b.WriteString(" " + f.paint(ansiMagenta, "["+d.Code+"]"))
	}
	b.WriteByte('\n')

	if f.ShowContext && d.Context != "" {
		for line := range strings.SplitSeq(strings.TrimSuffix(d.Context, "\n"), "\n") {
			b.WriteString("  " + line + "\n")
		}
	}
	if !f.ShowHints {
		return
	}
	for _, s := range d.Suggestions {
		fmt.Fprintf(b, "  %s %s\n", f.paint(ansiGreen, "help:"), s.Message)
		if s.Replacement != "" {
			fmt.Fprintf(b, "    %s %s\n", f.paint(ansiGreen, "=>"), s.Replacement)
		}
	}
	for _, n := range d.Notes {
		fmt.Fprintf(b, "  %s %s\n", f.paint(ansiBlue, "note:"), n)
	}
	for _, r := range d.Related {
		fmt.Fprintf(b, "  %s %s: %s\n", f.paint(ansiMagenta, "related:"), f.paint(ansiCyan, r.Location.String()), r.Message)
	}
}
