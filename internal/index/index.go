// Package index maintains the project-wide map from declarations to their
// usages.
//
// Each file contributes its declarations and resolved references. A file
// update replaces that file's contribution and marks the merged map stale;
// the merged map is rebuilt on the next query. Usages registered through the
// bridge are read at query time and never cached.
package index

import (
	"cmp"
	"slices"
	"sync"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/resolve"
	"github.com/electwix/db-xref/internal/schema/tokenizer"
	"github.com/electwix/db-xref/internal/symbols"
)

// UsageKind classifies usages.
type UsageKind int

const (
	// Declaration is the declaration site itself.
	Declaration UsageKind = iota + 1
	// Reference is an occurrence resolved to the declaration.
	Reference
	// External is a usage supplied by the bridge.
	External
)

func (k UsageKind) String() string {
	switch k {
	case Declaration:
		return "declaration"
	case Reference:
		return "reference"
	case External:
		return "external"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k UsageKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Usage is one occurrence of a declaration.
type Usage struct {
	Path string
	Span tokenizer.Span
	Kind UsageKind
	// Handle and Language are set for external usages.
	Handle   string
	Language string
}

func compareUsages(a, b Usage) int {
	return cmp.Or(
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.Span.StartLine, b.Span.StartLine),
		cmp.Compare(a.Span.StartColumn, b.Span.StartColumn),
		cmp.Compare(a.Handle, b.Handle),
	)
}

// FindUsagesOptions tunes FindUsages.
type FindUsagesOptions struct {
	// IncludeDeclaration returns the declaration site for every kind, not
	// only for navigable ones.
	IncludeDeclaration bool
}

// Contribution is what one file adds to the index.
type Contribution struct {
	Path  string
	Decls []*symbols.Declaration
	Refs  map[symbols.ID][]tokenizer.Span
}

// Contribute extracts the contribution of a resolved file.
func Contribute(res *resolve.Result) *Contribution {
	c := &Contribution{
		Path:  res.Path,
		Decls: res.Table.Decls,
		Refs:  make(map[symbols.ID][]tokenizer.Span),
	}
	for _, b := range res.References() {
		c.Refs[b.Decl.ID] = append(c.Refs[b.Decl.ID], b.Ident.Span)
	}
	return c
}

// Index is the merged reference index. It is safe for concurrent use.
type Index struct {
	bridge *bridge.Registry

	mu     sync.Mutex
	files  map[string]*Contribution
	stale  bool
	decls  map[symbols.ID]*symbols.Declaration
	merged map[symbols.ID][]Usage
}

// New returns an empty index reading external usages from reg, which may be nil.
func New(reg *bridge.Registry) *Index {
	return &Index{
		bridge: reg,
		files:  make(map[string]*Contribution),
		decls:  make(map[symbols.ID]*symbols.Declaration),
		merged: make(map[symbols.ID][]Usage),
	}
}

// Update replaces the contribution of c.Path.
func (x *Index) Update(c *Contribution) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.files[c.Path] = c
	x.stale = true
}

// Remove drops the contribution of path.
func (x *Index) Remove(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.files[path]; ok {
		delete(x.files, path)
		x.stale = true
	}
}

// Declaration returns the indexed declaration with the given identity.
func (x *Index) Declaration(id symbols.ID) *symbols.Declaration {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rebuild()
	return x.decls[id]
}

// FindUsages returns the usages of id: the declaration site first (see
// FindUsagesOptions), then references by path and position, then external
// usages by path, position and handle. Usages sharing a path and span are
// reported once.
func (x *Index) FindUsages(id symbols.ID, opts FindUsagesOptions) []Usage {
	x.mu.Lock()
	x.rebuild()
	decl := x.decls[id]
	refs := x.merged[id]
	x.mu.Unlock()

	var out []Usage
	seen := make(map[usageKey]bool)
	add := func(u Usage) {
		k := usageKey{u.Path, u.Span.StartOffset, u.Span.EndOffset, u.Span.StartLine, u.Span.StartColumn}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, u)
	}
	if decl != nil && (decl.Navigable() || opts.IncludeDeclaration) {
		add(Usage{Path: decl.ID.Path, Span: decl.Span, Kind: Declaration})
	}
	for _, u := range refs {
		add(u)
	}
	for _, ext := range x.bridge.Usages(id) {
		add(Usage{
			Path: ext.Path,
			Span: tokenizer.Span{
				File:        ext.Path,
				StartLine:   ext.Line,
				StartColumn: ext.Column,
				EndLine:     ext.Line,
				EndColumn:   ext.Column,
				StartOffset: -1,
				EndOffset:   -1,
			},
			Kind:     External,
			Handle:   ext.Handle,
			Language: ext.Language,
		})
	}
	return out
}

type usageKey struct {
	path       string
	start, end int
	line, col  int
}

// rebuild recomputes the merged map when a contribution changed. Callers
// hold x.mu.
func (x *Index) rebuild() {
	if !x.stale {
		return
	}
	decls := make(map[symbols.ID]*symbols.Declaration)
	merged := make(map[symbols.ID][]Usage)
	for path, c := range x.files {
		for _, d := range c.Decls {
			decls[d.ID] = d
		}
		for id, spans := range c.Refs {
			for _, span := range spans {
				merged[id] = append(merged[id], Usage{Path: path, Span: span, Kind: Reference})
			}
		}
	}
	for _, usages := range merged {
		slices.SortFunc(usages, compareUsages)
	}
	x.decls, x.merged = decls, merged
	x.stale = false
}

// Stats summarizes the index.
type Stats struct {
	Files        int
	Declarations int
	References   int
}

// Stats reports the size of the merged index.
func (x *Index) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rebuild()
	s := Stats{Files: len(x.files), Declarations: len(x.decls)}
	for _, usages := range x.merged {
		s.References += len(usages)
	}
	return s
}
