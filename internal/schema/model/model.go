// Package model defines the project catalog merged from every file's tables and views.
package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/syntax"
)

// Relation is a table or view declared by a file.
type Relation = symbols.Relation

// Catalog represents the collection of tables and views discovered across a project.
type Catalog struct {
	Tables map[string]*Relation
	Views  map[string]*Relation
}

// NewCatalog constructs a catalog with initialized maps.
func NewCatalog() *Catalog {
	return &Catalog{
		Tables: make(map[string]*Relation),
		Views:  make(map[string]*Relation),
	}
}

// Lookup returns the table or view with the given name. Names compare
// case-insensitively.
func (c *Catalog) Lookup(name string) *Relation {
	if c == nil {
		return nil
	}
	key := syntax.Canonical(name)
	if rel, ok := c.Tables[key]; ok {
		return rel
	}
	return c.Views[key]
}

// Len reports the number of relations in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Tables) + len(c.Views)
}

// Relations returns every relation ordered by declaring path and position.
func (c *Catalog) Relations() []*Relation {
	if c == nil {
		return nil
	}
	out := make([]*Relation, 0, c.Len())
	for _, rel := range c.Tables {
		out = append(out, rel)
	}
	for _, rel := range c.Views {
		out = append(out, rel)
	}
	SortRelations(out)
	return out
}

// DuplicateDeclaration reports a relation or column declared twice.
type DuplicateDeclaration struct {
	Name   string
	First  symbols.ID
	Second symbols.ID
}

func (e *DuplicateDeclaration) Error() string {
	return fmt.Sprintf("%s:%d:%d: duplicate declaration of %s (first declared at %s:%d:%d)",
		e.Second.Path, e.Second.Line, e.Second.Column, e.Name,
		e.First.Path, e.First.Line, e.First.Column)
}

// MergeCatalog merges the relations of every file into one catalog. The
// first declaration of a name wins; later ones are reported as
// *DuplicateDeclaration values joined into the returned error. Added
// columns extend their table when it is known; unknown targets are left for
// the resolver to report.
func MergeCatalog(relations []*Relation, added ...*symbols.AddedColumn) (*Catalog, error) {
	ordered := slices.Clone(relations)
	SortRelations(ordered)

	c := NewCatalog()
	var errs []error
	for _, rel := range ordered {
		if rel == nil || rel.Decl == nil {
			continue
		}
		key := rel.Key()
		if first := c.Lookup(key); first != nil {
			errs = append(errs, &DuplicateDeclaration{Name: rel.Decl.ID.Name, First: first.Decl.ID, Second: rel.Decl.ID})
			continue
		}
		// Copy so added columns never leak into a file's own symbol table.
		merged := *rel
		merged.Columns = slices.Clone(rel.Columns)
		if rel.IsView() {
			c.Views[key] = &merged
		} else {
			c.Tables[key] = &merged
		}
	}

	ordAdded := slices.Clone(added)
	slices.SortStableFunc(ordAdded, func(a, b *symbols.AddedColumn) int {
		return a.Decl.ID.Compare(b.Decl.ID)
	})
	for _, a := range ordAdded {
		rel, ok := c.Tables[a.Table.Key()]
		if !ok {
			continue
		}
		if prev := rel.Column(a.Decl.ID.Name); prev != nil {
			errs = append(errs, &DuplicateDeclaration{
				Name:   rel.Decl.ID.Name + "." + a.Decl.ID.Name,
				First:  prev.ID,
				Second: a.Decl.ID,
			})
			continue
		}
		rel.Columns = append(rel.Columns, a.Decl)
	}
	return c, errors.Join(errs...)
}

// SortRelations provides deterministic ordering of relations by declaration identity.
func SortRelations(rels []*Relation) {
	slices.SortStableFunc(rels, func(a, b *Relation) int {
		if a == nil || a.Decl == nil || b == nil || b.Decl == nil {
			return cmp.Compare(rank(a), rank(b))
		}
		return a.Decl.ID.Compare(b.Decl.ID)
	})
}

func rank(r *Relation) int {
	if r == nil || r.Decl == nil {
		return 1
	}
	return 0
}
