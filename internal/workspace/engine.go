// Package workspace is the project-level engine. It keeps the current text,
// syntax tree, symbol table and resolution of every indexed file, the merged
// project catalog and the reference index, and answers position and
// find-usages queries against them.
//
// Each file has a single writer at a time. The catalog is rebuilt from every
// file's relations after each update and swapped in atomically; files
// resolved against an older catalog are re-resolved lazily by the next
// query. Queries wait for an in-flight rebuild of the file they depend on,
// bounded by Options.IndexTimeout, and fail with ErrIndexBusy after that.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/cache"
	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/logging"
	"github.com/electwix/db-xref/internal/resolve"
	"github.com/electwix/db-xref/internal/schema/model"
	"github.com/electwix/db-xref/internal/schema/parser"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/syntax"
)

// DefaultIndexTimeout bounds how long a query waits for an in-flight rebuild.
const DefaultIndexTimeout = 2 * time.Second

var (
	// ErrIndexBusy reports that a rebuild the query depends on did not finish
	// within the index timeout. The query may be retried.
	ErrIndexBusy = errors.New("index busy")
	// ErrUnknownFile reports a path that was never indexed.
	ErrUnknownFile = errors.New("unknown file")
	// ErrNoOccurrence reports a position that holds no resolvable identifier.
	ErrNoOccurrence = errors.New("no identifier at position")
)

// Options configures an Engine.
type Options struct {
	// IndexTimeout bounds waits for in-flight rebuilds. Zero means
	// DefaultIndexTimeout.
	IndexTimeout time.Duration
	// Logger receives engine events. Nil disables logging.
	Logger logging.Logger
	// Registry holds external usages. Nil creates a private registry.
	Registry *bridge.Registry
}

// Engine indexes a set of files. It is safe for concurrent use.
type Engine struct {
	timeout time.Duration
	log     logging.Logger
	reg     *bridge.Registry
	index   *index.Index
	trees   *cache.MemoryCache[*syntax.File]

	mu    sync.RWMutex
	files map[string]*fileState

	catalogMu sync.Mutex
	catalog   atomic.Pointer[catalogState]

	// commitMu orders snapshot swaps with index updates so the index always
	// holds the contribution of the latest snapshot of each file.
	commitMu sync.Mutex
	// refreshMu serializes lazy re-resolution of stale files.
	refreshMu sync.Mutex

	revMu      sync.Mutex
	generation uint64
	revision   uuid.UUID

	// afterParse runs while a file rebuild is in flight. Tests use it to
	// hold a rebuild open.
	afterParse func(path string)
}

// catalogState is the merged catalog together with the generation that
// produced it.
type catalogState struct {
	catalog *model.Catalog
	gen     uint64
	err     error
}

// fileState tracks one file. mu admits a single writer; the current
// revision of the file is published through snap.
type fileState struct {
	path string
	mu   sync.Mutex

	busyMu sync.Mutex
	busy   chan struct{}

	snap atomic.Pointer[fileSnapshot]
}

// fileSnapshot is an immutable view of one revision of a file.
type fileSnapshot struct {
	text     []byte
	tree     *syntax.File
	table    *symbols.Table
	result   *resolve.Result
	parseErr error
	// gen is the catalog generation result was resolved against.
	gen uint64
}

func (s *fileSnapshot) stale(gen uint64) bool {
	return s.table != nil && (s.result == nil || s.gen < gen)
}

// New returns an empty engine.
func New(opts Options) *Engine {
	e := &Engine{
		timeout:  opts.IndexTimeout,
		log:      opts.Logger,
		reg:      opts.Registry,
		trees:    cache.NewMemoryCache[*syntax.File](),
		files:    make(map[string]*fileState),
		revision: uuid.New(),
	}
	if e.timeout <= 0 {
		e.timeout = DefaultIndexTimeout
	}
	if e.log == nil {
		e.log = logging.NewNopLogger()
	}
	if e.reg == nil {
		e.reg = bridge.NewRegistry()
	}
	e.index = index.New(e.reg)
	e.catalog.Store(&catalogState{catalog: model.NewCatalog()})
	return e
}

// Registry returns the external usage registry.
func (e *Engine) Registry() *bridge.Registry { return e.reg }

// ParseFile parses text as the new content of path and reindexes it. A
// syntax error is returned as *parser.ParseError; the file then contributes
// no declarations until it parses again, and other files are unaffected.
func (e *Engine) ParseFile(ctx context.Context, path string, text []byte) (*syntax.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := e.lock(path)
	defer st.mu.Unlock()

	done := st.begin()
	defer st.end(done)

	text = slices.Clone(text)
	tree, err := e.parse(ctx, path, text)
	if e.afterParse != nil {
		e.afterParse(path)
	}
	if err != nil {
		e.log.Warn("parse failed", "path", path, "error", err)
		e.commit(st, &fileSnapshot{text: text, parseErr: err}, nil)
		e.mergeCatalog()
		e.bump()
		return nil, err
	}

	table := e.RebuildSymbolTable(tree)
	st.snap.Store(&fileSnapshot{text: text, tree: tree, table: table})
	cs := e.mergeCatalog()

	res := resolve.File(table, cs.catalog)
	e.commit(st, &fileSnapshot{text: text, tree: tree, table: table, result: res, gen: cs.gen}, nil)
	e.bump()
	e.log.Debug("file indexed",
		"path", path,
		"declarations", len(table.Decls),
		"unresolved", len(res.Errors()),
		"catalog_generation", cs.gen)
	return tree, nil
}

// parse returns the syntax tree of text, reusing the tree of an identical
// earlier parse of the same path.
func (e *Engine) parse(ctx context.Context, path string, text []byte) (*syntax.File, error) {
	if tree, ok := e.trees.Get(ctx, path, text); ok {
		return tree, nil
	}
	tree, err := parser.Parse(path, text)
	if err != nil {
		return nil, err
	}
	e.trees.Put(ctx, path, text, tree)
	return tree, nil
}

// RebuildSymbolTable builds the symbol table of a parsed file.
func (e *Engine) RebuildSymbolTable(tree *syntax.File) *symbols.Table {
	return symbols.Build(tree)
}

// RemoveFile drops path from the engine. Removing an unknown path is a no-op.
func (e *Engine) RemoveFile(ctx context.Context, path string) error {
	st := e.state(path, false)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	e.mu.Lock()
	if e.files[path] != st {
		e.mu.Unlock()
		return nil
	}
	delete(e.files, path)
	e.mu.Unlock()

	e.commitMu.Lock()
	e.index.Remove(path)
	e.commitMu.Unlock()

	e.trees.Forget(ctx, path)
	e.mergeCatalog()
	e.bump()
	e.log.Debug("file removed", "path", path)
	return nil
}

// commit publishes next as the snapshot of st. When old is non-nil the swap
// only happens if st still holds old. It reports whether next was stored.
func (e *Engine) commit(st *fileState, next, old *fileSnapshot) bool {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	if !e.registered(st) {
		return false
	}
	if old != nil {
		if !st.snap.CompareAndSwap(old, next) {
			return false
		}
	} else {
		st.snap.Store(next)
	}
	if next.result != nil {
		e.index.Update(index.Contribute(next.result))
	} else {
		e.index.Remove(st.path)
	}
	return true
}

// mergeCatalog rebuilds the project catalog from the current symbol table
// of every file and publishes it under a new generation.
func (e *Engine) mergeCatalog() *catalogState {
	e.catalogMu.Lock()
	defer e.catalogMu.Unlock()

	var (
		rels  []*model.Relation
		added []*symbols.AddedColumn
	)
	for _, st := range e.states() {
		snap := st.snap.Load()
		if snap == nil || snap.table == nil {
			continue
		}
		rels = append(rels, snap.table.Relations...)
		added = append(added, snap.table.Added...)
	}
	catalog, err := model.MergeCatalog(rels, added...)
	if err != nil {
		e.log.Warn("catalog conflicts", "error", err)
	}
	next := &catalogState{catalog: catalog, gen: e.catalog.Load().gen + 1, err: err}
	e.catalog.Store(next)
	return next
}

// Catalog returns the current project catalog.
func (e *Engine) Catalog() *model.Catalog {
	return e.catalog.Load().catalog
}

// CatalogErr returns the conflicts found by the last catalog merge, joined.
// Each one is a *model.DuplicateDeclaration.
func (e *Engine) CatalogErr() error {
	return e.catalog.Load().err
}

// refresh re-resolves every file whose resolution predates the current
// catalog. Files with an in-flight writer are refreshed from their last
// published snapshot; the writer's own commit supersedes the refresh.
func (e *Engine) refresh(paths ...string) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	cs := e.catalog.Load()
	var states []*fileState
	if len(paths) == 0 {
		states = e.states()
	} else {
		for _, p := range paths {
			if st := e.state(p, false); st != nil {
				states = append(states, st)
			}
		}
	}
	for _, st := range states {
		snap := st.snap.Load()
		if snap == nil || !snap.stale(cs.gen) {
			continue
		}
		next := *snap
		next.result = resolve.File(snap.table, cs.catalog)
		next.gen = cs.gen
		if e.commit(st, &next, snap) {
			e.log.Debug("file re-resolved", "path", st.path, "catalog_generation", cs.gen)
		}
	}
}

// wait blocks until no rebuild of path is in flight, the index timeout
// elapses or ctx is done.
func (e *Engine) wait(ctx context.Context, path string) error {
	st := e.state(path, false)
	if st == nil {
		return nil
	}
	st.busyMu.Lock()
	ch := st.busy
	st.busyMu.Unlock()
	if ch == nil {
		return nil
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		e.log.Warn("index busy", "path", path, "timeout", e.timeout)
		return fmt.Errorf("%s: %w", path, ErrIndexBusy)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (st *fileState) begin() chan struct{} {
	ch := make(chan struct{})
	st.busyMu.Lock()
	st.busy = ch
	st.busyMu.Unlock()
	return ch
}

func (st *fileState) end(ch chan struct{}) {
	st.busyMu.Lock()
	if st.busy == ch {
		st.busy = nil
	}
	st.busyMu.Unlock()
	close(ch)
}

func (e *Engine) state(path string, create bool) *fileState {
	e.mu.RLock()
	st := e.files[path]
	e.mu.RUnlock()
	if st != nil || !create {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st = e.files[path]; st == nil {
		st = &fileState{path: path}
		e.files[path] = st
	}
	return st
}

// lock returns the registered state of path with its writer lock held.
// A state removed while waiting for the lock is replaced by a fresh one.
func (e *Engine) lock(path string) *fileState {
	for {
		st := e.state(path, true)
		st.mu.Lock()
		if e.registered(st) {
			return st
		}
		st.mu.Unlock()
	}
}

func (e *Engine) registered(st *fileState) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.files[st.path] == st
}

// states returns every file state ordered by path.
func (e *Engine) states() []*fileState {
	e.mu.RLock()
	out := make([]*fileState, 0, len(e.files))
	for _, st := range e.files {
		out = append(out, st)
	}
	e.mu.RUnlock()
	slices.SortFunc(out, func(a, b *fileState) int {
		switch {
		case a.path < b.path:
			return -1
		case a.path > b.path:
			return 1
		}
		return 0
	})
	return out
}

// snapshot returns the published snapshot of path.
func (e *Engine) snapshot(path string) (*fileSnapshot, error) {
	st := e.state(path, false)
	if st == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFile)
	}
	snap := st.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFile)
	}
	return snap, nil
}

func (e *Engine) bump() {
	e.revMu.Lock()
	e.generation++
	e.revision = uuid.New()
	e.revMu.Unlock()
}

// Revision returns the identifier and generation of the current index state.
// Both change on every mutation.
func (e *Engine) Revision() (uuid.UUID, uint64) {
	e.revMu.Lock()
	defer e.revMu.Unlock()
	return e.revision, e.generation
}

// Files returns the indexed paths in order.
func (e *Engine) Files() []string {
	states := e.states()
	out := make([]string, 0, len(states))
	for _, st := range states {
		if st.snap.Load() != nil {
			out = append(out, st.path)
		}
	}
	return out
}

// Source returns the text last given for path.
func (e *Engine) Source(path string) ([]byte, error) {
	snap, err := e.snapshot(path)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.text), nil
}
