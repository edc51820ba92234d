// Package diagnostics turns engine errors into user-facing diagnostics.
// A Diagnostic carries a stable code, a file location, an optional code
// snippet and hints, so the CLI can print or serialize every failure the
// same way regardless of which component produced it.
package diagnostics

import (
	"cmp"
	"fmt"
	"slices"
)

// Severity orders diagnostics from informational to fatal for the file.
type Severity int

const (
	SeverityInfo Severity = iota
	// SeverityWarning does not stop indexing.
	SeverityWarning
	// SeverityError leaves part of a file unindexed.
	SeverityError
)

var severityNames = [...]string{SeverityInfo: "info", SeverityWarning: "warning", SeverityError: "error"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// MarshalText encodes the severity by name for JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Location is a 1-based file position. Line 0 means the whole file.
type Location struct {
	Path   string `json:"path" yaml:"path"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
}

type Suggestion struct {
	Message     string `json:"message" yaml:"message"`
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty"`
}

// RelatedInfo points at a second location, such as the first declaration
// of a duplicated name.
type RelatedInfo struct {
	Location Location `json:"location" yaml:"location"`
	Message  string   `json:"message" yaml:"message"`
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Code     string   `json:"code,omitempty" yaml:"code,omitempty"`
	Location Location `json:"location" yaml:"location"`

	// Context is a rendered snippet of the offending source lines.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	Suggestions []Suggestion  `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	Notes       []string      `json:"notes,omitempty" yaml:"notes,omitempty"`
	Related     []RelatedInfo `json:"related,omitempty" yaml:"related,omitempty"`

	// Source names the producing component: parser, catalog, resolver,
	// bridge, config or pipeline.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// HasLocation reports whether d points at a line of a file.
func (d Diagnostic) HasLocation() bool {
	return d.Location.Path != "" && d.Location.Line > 0
}

func (d Diagnostic) IsError() bool   { return d.Severity == SeverityError }

func (d Diagnostic) Error() string {
	if d.Code == "" {
		return fmt.Sprintf("%s: %s: %s", d.Location, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: [%s] %s: %s", d.Location, d.Code, d.Severity, d.Message)
}

// Builder assembles a Diagnostic:
//
//	diagnostics.Error("unresolved reference").WithCode(ErrUnresolved).At(path, 3, 7).Build()
type Builder struct {
	diag Diagnostic
}

func Error(message string) *Builder {
	return &Builder{diag: Diagnostic{Severity: SeverityError, Message: message}}
}

func Warning(message string) *Builder {
	return &Builder{diag: Diagnostic{Severity: SeverityWarning, Message: message}}
}

func (b *Builder) WithCode(code string) *Builder {
	b.diag.Code = code
	return b
}

func (b *Builder) At(path string, line, column int) *Builder {
	b.diag.Location = Location{Path: path, Line: line, Column: column}
	return b
}

func (b *Builder) WithSource(source string) *Builder {
	b.diag.Source = source
	return b
}

// WithSuggestion adds a hint; replacement may be empty.
func (b *Builder) WithSuggestion(message, replacement string) *Builder {
	b.diag.Suggestions = append(b.diag.Suggestions, Suggestion{Message: message, Replacement: replacement})
	return b
}

func (b *Builder) WithNote(note string) *Builder {
	b.diag.Notes = append(b.diag.Notes, note)
	return b
}

func (b *Builder) WithRelated(path string, line, column int, message string) *Builder {
	b.diag.Related = append(b.diag.Related, RelatedInfo{Location: Location{Path: path, Line: line, Column: column}, Message: message})
	return b
}

func (b *Builder) Build() Diagnostic { return b.diag }

// Collection is an ordered list of diagnostics.
type Collection struct {
	diagnostics []Diagnostic
}

func NewCollection() *Collection { return &Collection{} }

func (c *Collection) Add(ds ...Diagnostic) {
	c.diagnostics = append(c.diagnostics, ds...)
}

func (c *Collection) HasErrors() bool {
	return slices.ContainsFunc(c.diagnostics, Diagnostic.IsError)
}

// All returns a copy of the diagnostics in their current order.
func (c *Collection) All() []Diagnostic { return slices.Clone(c.diagnostics) }

func (c *Collection) Len() int { return len(c.diagnostics) }

// ByCode returns the diagnostics carrying code.
func (c *Collection) ByCode(code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.diagnostics {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// SortByLocation orders diagnostics by path, line and column, keeping the
// report order of diagnostics at the same position.
func (c *Collection) SortByLocation() {
	slices.SortStableFunc(c.diagnostics, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Location.Path, b.Location.Path),
			cmp.Compare(a.Location.Line, b.Location.Line),
			cmp.Compare(a.Location.Column, b.Location.Column),
		)
	})
}

// Summary counts diagnostics per severity.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Errors   int `json:"errors" yaml:"errors"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Infos    int `json:"infos" yaml:"infos"`
}

func (c *Collection) Summary() Summary {
	s := Summary{Total: len(c.diagnostics)}
	for _, d := range c.diagnostics {
		switch d.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		case SeverityInfo:
			s.Infos++
		}
	}
	return s
}

// Stable diagnostic codes. E1xx are schema and parse problems, E2xx are
// resolution problems, E3xx are configuration problems, W4xx concern the
// bridge file.
const (
	ErrParse               = "E101"
	ErrDuplicate           = "E102"
	ErrUnresolved          = "E201"
	ErrUnresolvedQualifier = "E202"
	ErrAmbiguous           = "E203"
	ErrConfig              = "E301"

	WarnConfigUnknownKey = "W301"
	WarnBridgeEntry      = "W401"
)
