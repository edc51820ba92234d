package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/diagnostics"
	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/schema/tokenizer"
	"github.com/electwix/db-xref/internal/selector"
	"github.com/electwix/db-xref/internal/symbols"
)

// Resolve returns the declaration named by the identifier at line:column of
// path. An occurrence that could not be bound returns its
// *resolve.UnresolvedError.
func (e *Engine) Resolve(ctx context.Context, path string, line, column int) (*symbols.Declaration, error) {
	if err := e.wait(ctx, path); err != nil {
		return nil, err
	}
	e.refresh(path)

	snap, err := e.snapshot(path)
	if err != nil {
		return nil, err
	}
	if snap.parseErr != nil {
		return nil, snap.parseErr
	}
	ident := snap.tree.IdentAt(line, column)
	if ident == nil {
		return nil, fmt.Errorf("%s:%d:%d: %w", path, line, column, ErrNoOccurrence)
	}
	decl, err := snap.result.Lookup(ident.Slot)
	if err != nil {
		return nil, err
	}
	if decl == nil {
		return nil, fmt.Errorf("%s:%d:%d: %w", path, line, column, ErrNoOccurrence)
	}
	return decl, nil
}

// DeclarationAt returns the declaration whose declaring identifier is at
// line:column of path, or nil.
func (e *Engine) DeclarationAt(path string, line, column int) *symbols.Declaration {
	snap, err := e.snapshot(path)
	if err != nil || snap.table == nil {
		return nil
	}
	return snap.table.Site(snap.tree.IdentAt(line, column))
}

// DeclarationsFor returns the declarations of path in file order.
func (e *Engine) DeclarationsFor(path string) []*symbols.Declaration {
	snap, err := e.snapshot(path)
	if err != nil || snap.table == nil {
		return nil
	}
	return slices.Clone(snap.table.Decls)
}

// FindUsages returns the usages of the declaration id. It waits for an
// in-flight rebuild of the declaring file only.
func (e *Engine) FindUsages(ctx context.Context, id symbols.ID, opts index.FindUsagesOptions) ([]index.Usage, error) {
	if err := e.wait(ctx, id.Path); err != nil {
		return nil, err
	}
	e.refresh()
	return e.index.FindUsages(id, opts), nil
}

// Tables returns the symbol table of every file that parsed, ordered by path.
func (e *Engine) Tables() []*symbols.Table {
	var out []*symbols.Table
	for _, st := range e.states() {
		if snap := st.snap.Load(); snap != nil && snap.table != nil {
			out = append(out, snap.table)
		}
	}
	return out
}

// Table returns the symbol table of path, or nil.
func (e *Engine) Table(path string) *symbols.Table {
	snap, err := e.snapshot(path)
	if err != nil {
		return nil
	}
	return snap.table
}

// Select returns the declarations matched by sel across every file.
func (e *Engine) Select(sel *selector.Selector) []*symbols.Declaration {
	return sel.Select(e.Tables())
}

// Diagnostics returns the problems found in path: its syntax error, or its
// catalog conflicts followed by its unresolved occurrences.
func (e *Engine) Diagnostics(path string) []diagnostics.Diagnostic {
	e.refresh(path)
	snap, err := e.snapshot(path)
	if err != nil {
		return nil
	}
	if snap.parseErr != nil {
		return diagnostics.FromError(snap.parseErr)
	}

	var out []diagnostics.Diagnostic
	for _, d := range diagnostics.FromError(e.CatalogErr()) {
		if d.Location.Path == path {
			out = append(out, d)
		}
	}
	return append(out, diagnostics.FromResult(snap.result)...)
}

// AllDiagnostics returns the diagnostics of every file ordered by location.
func (e *Engine) AllDiagnostics() *diagnostics.Collection {
	c := diagnostics.NewCollection()
	for _, path := range e.Files() {
		c.Add(e.Diagnostics(path)...)
	}
	c.SortByLocation()
	return c
}

// Reference is one resolved use of a declaration.
type Reference struct {
	ID   symbols.ID
	Path string
	Span tokenizer.Span
}

// External is one usage supplied through the bridge.
type External struct {
	ID    symbols.ID
	Usage bridge.Usage
}

// Snapshot is a consistent copy of the whole index, suitable for
// persisting.
type Snapshot struct {
	Revision     uuid.UUID
	Generation   uint64
	Files        []string
	Declarations []*symbols.Declaration
	References   []Reference
	External     []External
	Unresolved   int
	Catalog      *model.Catalog
}

// Snapshot resolves every stale file and copies the index. Files with a
// rebuild in flight contribute their last published revision.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.refresh()

	s := &Snapshot{Catalog: e.Catalog()}
	s.Revision, s.Generation = e.Revision()
	for _, st := range e.states() {
		snap := st.snap.Load()
		if snap == nil {
			continue
		}
		s.Files = append(s.Files, st.path)
		if snap.result == nil {
			continue
		}
		s.Declarations = append(s.Declarations, snap.table.Decls...)
		for _, b := range snap.result.References() {
			s.References = append(s.References, Reference{ID: b.Decl.ID, Path: st.path, Span: b.Ident.Span})
		}
		s.Unresolved += len(snap.result.Errors())
	}
	for _, id := range e.reg.IDs() {
		for _, u := range e.reg.Usages(id) {
			s.External = append(s.External, External{ID: id, Usage: u})
		}
	}
	return s, nil
}

// Stats summarizes the engine.
type Stats struct {
	index.Stats
	External   int
	ParseError int
	Unresolved int
	Conflicts  int
	// CacheHits counts ParseFile calls that reused an earlier tree.
	CacheHits   int
	CacheMisses int
}

// Stats reports index sizes and problem counts.
func (e *Engine) Stats() Stats {
	e.refresh()
	s := Stats{Stats: e.index.Stats(), External: e.reg.Len()}
	s.CacheHits, s.CacheMisses = e.trees.Stats()
	for _, st := range e.states() {
		snap := st.snap.Load()
		switch {
		case snap == nil:
		case snap.parseErr != nil:
			s.ParseError++
		case snap.result != nil:
			s.Unresolved += len(snap.result.Errors())
		}
	}
	if err := e.CatalogErr(); err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			s.Conflicts = len(joined.Unwrap())
		} else {
			s.Conflicts = 1
		}
	}
	return s
}
