// Package symbols builds per-file symbol tables from syntax trees.
//
// A symbol table lists every declaration introduced by a file (tables,
// columns, views and their columns, common table expressions, query aliases
// and labeled statements), maps each declaring identifier slot to its
// declaration and records the query scopes the resolver walks.
package symbols

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/electwix/db-xref/internal/schema/tokenizer"
	"github.com/electwix/db-xref/internal/syntax"
)

// Kind classifies declarations.
type Kind int

const (
	KindTable Kind = iota + 1
	KindColumn
	KindView
	KindViewColumn
	KindCTE
	KindCTEColumn
	KindQueryTableAlias
	KindQueryColumnAlias
	KindLabeledStatement
)

var kindNames = map[Kind]string{
	KindTable:            "table",
	KindColumn:           "column",
	KindView:             "view",
	KindViewColumn:       "view-column",
	KindCTE:              "cte",
	KindCTEColumn:        "cte-column",
	KindQueryTableAlias:  "table-alias",
	KindQueryColumnAlias: "column-alias",
	KindLabeledStatement: "label",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps the String form of a kind back to the kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Navigable reports whether declarations of this kind are name occurrences
// of the declared object itself and therefore count as their own usage.
func (k Kind) Navigable() bool {
	switch k {
	case KindTable, KindColumn, KindView, KindCTE:
		return true
	}
	return false
}

// ID identifies a declaration. It is comparable and used as a map key.
type ID struct {
	Kind   Kind
	Path   string
	Line   int
	Column int
	Name   string
}

func (id ID) String() string {
	return fmt.Sprintf("%s %s (%s:%d:%d)", id.Kind, id.Name, id.Path, id.Line, id.Column)
}

// Compare orders identities by path, position and kind.
func (id ID) Compare(other ID) int {
	return cmp.Or(
		cmp.Compare(id.Path, other.Path),
		cmp.Compare(id.Line, other.Line),
		cmp.Compare(id.Column, other.Column),
		cmp.Compare(id.Kind, other.Kind),
		cmp.Compare(id.Name, other.Name),
	)
}

// Declaration is a named entity introduced by a file.
type Declaration struct {
	ID   ID
	Span tokenizer.Span
	// Parent links columns to their table, view or CTE.
	Parent *ID
	// Slot is the identifier slot of the declaration site.
	Slot  int
	Scope *Scope
}

// Navigable reports whether the declaration site is returned as a usage.
func (d *Declaration) Navigable() bool {
	return d.ID.Kind.Navigable()
}

// Key returns the case-insensitive name used for lookups.
func (d *Declaration) Key() string {
	return syntax.Canonical(d.ID.Name)
}

// Relation is a table or view declared by a file.
type Relation struct {
	Decl    *Declaration
	Columns []*Declaration
	// View is set for views; star columns are expanded at resolution time.
	View  *syntax.CreateView
	Owner *Table
}

// Key returns the case-insensitive relation name.
func (r *Relation) Key() string {
	return r.Decl.Key()
}

// IsView reports whether the relation is a view.
func (r *Relation) IsView() bool {
	return r.View != nil
}

// Column returns the column declaration with the given name.
func (r *Relation) Column(name string) *Declaration {
	key := syntax.Canonical(name)
	for _, col := range r.Columns {
		if col.Key() == key {
			return col
		}
	}
	return nil
}

// AddedColumn is a column added by ALTER TABLE. The table may live in
// another file; it is attached during the catalog merge.
type AddedColumn struct {
	Table *syntax.Ident
	Decl  *Declaration
}

// ScopeKind classifies scopes.
type ScopeKind int

const (
	ScopeQuery ScopeKind = iota + 1
	ScopeCTE
	ScopeSubquery
)

// Scope is a query scope. Declarations made at file level have no scope.
type Scope struct {
	Kind   ScopeKind
	Node   syntax.Node
	Parent *Scope
	Decls  []*Declaration
}

// Depth returns the nesting depth of the scope, starting at 1.
func (s *Scope) Depth() int {
	n := 0
	for cur := s; cur != nil; cur = cur.Parent {
		n++
	}
	return n
}

// Table is the symbol table of a single file.
type Table struct {
	Path string
	File *syntax.File
	// Decls lists declarations in source order.
	Decls []*Declaration
	// Sites maps declaring identifier slots to their declaration.
	Sites     map[int]*Declaration
	Relations []*Relation
	Added     []*AddedColumn
	Labels    []*Declaration
	Scopes    []*Scope
	// ScopeOf maps query nodes to the scope they open.
	ScopeOf map[syntax.Node]*Scope
}

// Site returns the declaration introduced at ident, if any.
func (t *Table) Site(ident *syntax.Ident) *Declaration {
	if ident == nil || ident.Slot < 0 {
		return nil
	}
	return t.Sites[ident.Slot]
}

// Declaration returns the declaration with the given identity.
func (t *Table) Declaration(id ID) *Declaration {
	for _, d := range t.Decls {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// RelationOf returns the relation declared by a CREATE TABLE or CREATE VIEW
// statement of this file.
func (t *Table) RelationOf(name *syntax.Ident) *Relation {
	d := t.Site(name)
	if d == nil {
		return nil
	}
	for _, rel := range t.Relations {
		if rel.Decl == d {
			return rel
		}
	}
	return nil
}

func sortDeclarations(decls []*Declaration) {
	slices.SortStableFunc(decls, func(a, b *Declaration) int {
		return cmp.Or(
			cmp.Compare(a.Span.StartLine, b.Span.StartLine),
			cmp.Compare(a.Span.StartColumn, b.Span.StartColumn),
		)
	})
}
