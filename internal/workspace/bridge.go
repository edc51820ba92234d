package workspace

import (
	"errors"
	"fmt"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/symbols"
)

var (
	// ErrNoDeclaration reports a bridge entry whose selector matches nothing.
	ErrNoDeclaration = errors.New("selector matches no declaration")
	// ErrAmbiguousSelector reports a bridge entry whose selector matches
	// more than one declaration.
	ErrAmbiguousSelector = errors.New("selector matches several declarations")
)

// RegisterExternalUsage records a call site of id in host-language code.
// The identity need not be declared by an indexed file. Registering the
// same handle twice for id keeps one record.
func (e *Engine) RegisterExternalUsage(id symbols.ID, u bridge.Usage) error {
	if err := e.reg.Register(id, u); err != nil {
		return err
	}
	e.bump()
	return nil
}

// ClearExternalUsages drops every external usage whose handle starts with
// prefix and returns how many were removed.
func (e *Engine) ClearExternalUsages(prefix string) int {
	n := e.reg.Clear(prefix)
	if n > 0 {
		e.bump()
	}
	return n
}

// ApplyBridge registers the usages of bridge file entries. Each selector
// must match exactly one declaration of the current index; entries that do
// not are skipped and reported as *bridge.EntryError values joined into the
// returned error. It returns the number of usages registered.
func (e *Engine) ApplyBridge(path string, entries []bridge.Entry) (int, error) {
	tables := e.Tables()
	var (
		registered int
		errs       []error
	)
	for i, entry := range entries {
		matches := entry.Selector.Select(tables)
		switch len(matches) {
		case 0:
			errs = append(errs, &bridge.EntryError{Path: path, Index: i, Line: entry.SourceLine, Err: fmt.Errorf("%s: %w", entry.Declaration, ErrNoDeclaration)})
			continue
		case 1:
		default:
			errs = append(errs, &bridge.EntryError{Path: path, Index: i, Line: entry.SourceLine, Err: fmt.Errorf("%s: %w (%d)", entry.Declaration, ErrAmbiguousSelector, len(matches))})
			continue
		}
		if err := e.RegisterExternalUsage(matches[0].ID, entry.Usage); err != nil {
			errs = append(errs, &bridge.EntryError{Path: path, Index: i, Line: entry.SourceLine, Err: err})
			continue
		}
		registered++
	}
	e.log.Debug("bridge applied", "path", path, "registered", registered, "skipped", len(errs))
	return registered, errors.Join(errs...)
}
