// Package selector parses and matches textual declaration selectors such as
// `column test.value`, `cte someSelect.test_alias` or
// `table test in "schema/Main.sq"`.
//
// A selector names a declaration kind followed by a dotted path. The last
// segment is the declaration name; earlier segments qualify it with its
// parent (the table of a column, the CTE of a CTE column) and then with the
// statement that contains it (a label or a view name).
package selector

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/syntax"
)

var selectorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "String", Pattern: `"(?:[^"]|"")*"`},
	{Name: "Backtick", Pattern: "`[^`]*`"},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*(?:-[\p{L}\p{N}_]+)*`},
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[.:@]`},
})

// grammar is the participle form of a selector.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type grammar struct {
	Kind   string    `@Ident`
	Path   []string  `@(Ident | String | Backtick) ( "." @(Ident | String | Backtick) )*`
	File   string    `( "in" @String )?`
	At     *position `( "@" @@ )?`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type position struct {
	Line   int `@Number`
	Column int `( ":" @Number )?`
}

var parser = participle.MustBuild[grammar](
	participle.Lexer(selectorLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Selector identifies one or more declarations.
type Selector struct {
	Kind symbols.Kind
	// Path holds the qualifiers followed by the declaration name.
	Path []string
	// File restricts matches to declarations of that file. A relative
	// value matches any path ending with it.
	File string
	// Line and Column restrict matches to a declaration site when non-zero.
	Line   int
	Column int
}

// Parse parses a selector.
func Parse(s string) (*Selector, error) {
	g, err := parser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("parse selector %q: %w", s, err)
	}
	kind, ok := symbols.ParseKind(strings.ToLower(g.Kind))
	if !ok {
		return nil, fmt.Errorf("parse selector %q: unknown kind %q", s, g.Kind)
	}
	sel := &Selector{Kind: kind}
	if g.At != nil {
		sel.Line, sel.Column = g.At.Line, g.At.Column
	}
	for _, seg := range g.Path {
		sel.Path = append(sel.Path, unquote(seg))
	}
	if g.File != "" {
		sel.File = unquote(g.File)
	}
	return sel, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Selector {
	sel, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

func unquote(s string) string {
	switch {
	case strings.HasPrefix(s, `"`):
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case strings.HasPrefix(s, "`"):
		return s[1 : len(s)-1]
	}
	return s
}

// Name returns the declaration name the selector ends with.
func (s *Selector) Name() string {
	return s.Path[len(s.Path)-1]
}

func (s *Selector) String() string {
	var b strings.Builder
	b.WriteString(s.Kind.String())
	b.WriteByte(' ')
	for i, seg := range s.Path {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(quoteSegment(seg))
	}
	if s.File != "" {
		b.WriteString(" in ")
		b.WriteString(strconv.Quote(s.File))
	}
	if s.Line > 0 {
		fmt.Fprintf(&b, " @%d", s.Line)
		if s.Column > 0 {
			fmt.Fprintf(&b, ":%d", s.Column)
		}
	}
	return b.String()
}

func quoteSegment(seg string) string {
	for i, r := range seg {
		word := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || i > 0 && r >= '0' && r <= '9' || r > 127
		if !word {
			return `"` + strings.ReplaceAll(seg, `"`, `""`) + `"`
		}
	}
	if seg == "" || strings.EqualFold(seg, "in") {
		return `"` + seg + `"`
	}
	return seg
}

// Qualifiers returns the names that qualify d, outermost first: the
// containing statement (label or view) for query-scoped declarations and
// the parent declaration for columns.
func Qualifiers(table *symbols.Table, d *symbols.Declaration) []string {
	var out []string
	if d.Scope != nil {
		root := d.Scope
		for root.Parent != nil {
			root = root.Parent
		}
		if name := containerName(table, root.Node); name != "" {
			out = append(out, name)
		}
	}
	switch {
	case d.Parent != nil:
		out = append(out, d.Parent.Name)
	case d.ID.Kind == symbols.KindColumn:
		for _, a := range table.Added {
			if a.Decl == d {
				out = append(out, a.Table.Name)
			}
		}
	}
	return out
}

// containerName returns the label or view name of the statement whose root
// query is node.
func containerName(table *symbols.Table, node syntax.Node) string {
	for _, stmt := range table.File.Statements {
		switch n := stmt.(type) {
		case *syntax.Labeled:
			if syntax.Node(n.Stmt) == node {
				return n.Label.Name
			}
			if cv, ok := n.Stmt.(*syntax.CreateView); ok && syntax.Node(cv.Select) == node {
				return cv.Name.Name
			}
		case *syntax.CreateView:
			if n.Select != nil && syntax.Node(n.Select) == node {
				return n.Name.Name
			}
		}
	}
	return ""
}

// Match reports whether d, declared in table, is selected. Qualifiers in
// the selector must match the trailing qualifiers of d.
func (s *Selector) Match(table *symbols.Table, d *symbols.Declaration) bool {
	if d.ID.Kind != s.Kind || !strings.EqualFold(d.ID.Name, s.Name()) {
		return false
	}
	if s.Line > 0 && d.ID.Line != s.Line {
		return false
	}
	if s.Column > 0 && d.ID.Column != s.Column {
		return false
	}
	if s.File != "" && !matchFile(d.ID.Path, s.File) {
		return false
	}
	want := s.Path[:len(s.Path)-1]
	if len(want) == 0 {
		return true
	}
	have := Qualifiers(table, d)
	if len(want) > len(have) {
		return false
	}
	have = have[len(have)-len(want):]
	for i := range want {
		if syntax.Canonical(want[i]) != syntax.Canonical(have[i]) {
			return false
		}
	}
	return true
}

func matchFile(path, want string) bool {
	path, want = filepath.ToSlash(path), filepath.ToSlash(want)
	return path == want || strings.HasSuffix(path, "/"+want)
}

// Select returns the declarations of tables matched by s in table order.
func (s *Selector) Select(tables []*symbols.Table) []*symbols.Declaration {
	var out []*symbols.Declaration
	for _, t := range tables {
		for _, d := range t.Decls {
			if s.Match(t, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

// For returns the most specific selector naming d without a position.
func For(table *symbols.Table, d *symbols.Declaration) *Selector {
	path := append(Qualifiers(table, d), d.ID.Name)
	return &Selector{Kind: d.ID.Kind, Path: path}
}
