// Package resolve binds every identifier occurrence of a file to the
// declaration it names.
//
// Resolution walks the syntax tree with a chain of query environments built
// from WITH clauses and FROM sources, falling back to the project catalog
// for table and view names. Occurrences that cannot be bound are recorded
// as *UnresolvedError values on the Result; resolution never fails as a
// whole.
package resolve

import (
	"errors"
	"fmt"

	"github.com/electwix/db-xref/internal/schema/tokenizer"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/syntax"
)

var (
	// ErrUnresolvedReference reports a name that matches no declaration in scope.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrUnresolvedQualifier reports a qualified column whose qualifier
	// resolved but has no such column.
	ErrUnresolvedQualifier = errors.New("unresolved qualifier")
	// ErrAmbiguousReference reports a bare column matching several sources.
	ErrAmbiguousReference = errors.New("ambiguous reference")
)

// UnresolvedError describes an occurrence that could not be bound.
type UnresolvedError struct {
	// Kind is the kind of declaration the occurrence was expected to name.
	Kind      symbols.Kind
	Name      string
	Qualifier string
	Path      string
	Span      tokenizer.Span
	Err       error
}

func (e *UnresolvedError) Error() string {
	name := e.Name
	if e.Qualifier != "" {
		name = e.Qualifier + "." + name
	}
	return fmt.Sprintf("%s:%d:%d: %v: %s %s", e.Path, e.Span.StartLine, e.Span.StartColumn, e.Err, e.Kind, name)
}

func (e *UnresolvedError) Unwrap() error { return e.Err }

// Binding pairs an occurrence with the declaration it resolved to.
type Binding struct {
	Ident *syntax.Ident
	Decl  *symbols.Declaration
}

// Reference reports whether the binding is a use of the declaration rather
// than its declaration site.
func (b Binding) Reference(table *symbols.Table) bool {
	return table.Sites[b.Ident.Slot] != b.Decl
}

// Result holds the resolution of every slot of one file.
type Result struct {
	Path  string
	Table *symbols.Table
	decls []*symbols.Declaration
	errs  []*UnresolvedError
}

func newResult(table *symbols.Table) *Result {
	n := len(table.File.Idents)
	r := &Result{
		Path:  table.Path,
		Table: table,
		decls: make([]*symbols.Declaration, n),
		errs:  make([]*UnresolvedError, n),
	}
	for slot, d := range table.Sites {
		if slot >= 0 && slot < n {
			r.decls[slot] = d
		}
	}
	return r
}

// Lookup returns the declaration bound to slot, or the recorded error. Both
// are nil for occurrences that need no resolution, such as the target of a
// DROP ... IF EXISTS that names nothing.
func (r *Result) Lookup(slot int) (*symbols.Declaration, error) {
	if slot < 0 || slot >= len(r.decls) {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrUnresolvedReference)
	}
	if d := r.decls[slot]; d != nil {
		return d, nil
	}
	if e := r.errs[slot]; e != nil {
		return nil, e
	}
	return nil, nil
}

// Bindings returns every bound occurrence in slot order.
func (r *Result) Bindings() []Binding {
	var out []Binding
	for slot, d := range r.decls {
		if d != nil {
			out = append(out, Binding{Ident: r.Table.File.Idents[slot], Decl: d})
		}
	}
	return out
}

// References returns the bound occurrences that are uses rather than
// declaration sites.
func (r *Result) References() []Binding {
	var out []Binding
	for _, b := range r.Bindings() {
		if b.Reference(r.Table) {
			out = append(out, b)
		}
	}
	return out
}

// Errors returns every unresolved occurrence in slot order.
func (r *Result) Errors() []*UnresolvedError {
	var out []*UnresolvedError
	for _, e := range r.errs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Err joins the unresolved occurrences into a single error.
func (r *Result) Err() error {
	var errs []error
	for _, e := range r.Errors() {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

func (r *Result) bind(ident *syntax.Ident, d *symbols.Declaration) {
	if ident == nil || ident.Slot < 0 || ident.Slot >= len(r.decls) || d == nil {
		return
	}
	r.decls[ident.Slot] = d
	r.errs[ident.Slot] = nil
}

func (r *Result) fail(ident *syntax.Ident, kind symbols.Kind, qualifier string, err error) {
	if ident == nil || ident.Slot < 0 || ident.Slot >= len(r.decls) {
		return
	}
	r.errs[ident.Slot] = &UnresolvedError{
		Kind:      kind,
		Name:      ident.Name,
		Qualifier: qualifier,
		Path:      r.Path,
		Span:      ident.Span,
		Err:       err,
	}
}
