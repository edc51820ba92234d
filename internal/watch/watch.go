// Package watch reports batches of changed source files below a root
// directory.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/electwix/db-xref/internal/fileset"
	"github.com/electwix/db-xref/internal/logging"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 100 * time.Millisecond

// ErrNoCallback is returned by New when Options.OnChange is nil.
var ErrNoCallback = errors.New("watch: OnChange is required")

// Change is one debounced batch of events. Paths are absolute and sorted.
type Change struct {
	Changed []string
	Removed []string
}

// Options configures a Watcher.
type Options struct {
	// Sources and Exclude are glob patterns relative to the root.
	Sources []string
	Exclude []string
	// Extra lists absolute paths that are reported even when no pattern
	// matches them, such as the bridge file.
	Extra    []string
	Debounce time.Duration
	Logger   logging.Logger
	OnChange func(ctx context.Context, c Change)
}

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	include  *fileset.Matcher
	exclude  *fileset.Matcher
	extra    map[string]bool
	debounce time.Duration
	log      logging.Logger
	onChange func(context.Context, Change)

	callbackMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
}

// New creates a watcher for root. Nothing is watched until Run.
func New(root string, opts Options) (*Watcher, error) {
	if opts.OnChange == nil {
		return nil, ErrNoCallback
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	include, err := fileset.CompileMatcher(opts.Sources)
	if err != nil {
		return nil, err
	}
	exclude, err := fileset.CompileMatcher(opts.Exclude)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		root:     abs,
		include:  include,
		exclude:  exclude,
		extra:    make(map[string]bool, len(opts.Extra)),
		debounce: opts.Debounce,
		log:      opts.Logger,
		onChange: opts.OnChange,
		pending:  make(map[string]struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = logging.NewNopLogger()
	}
	for _, p := range opts.Extra {
		w.extra[filepath.Clean(p)] = true
	}
	return w, nil
}

// Run watches until ctx is done or the watcher is closed. Batches are
// delivered to OnChange one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.watchRecursive(w.root); err != nil {
		return err
	}
	for p := range w.extra {
		if dir := filepath.Dir(p); !w.underRoot(dir) {
			if err := w.fsw.Add(dir); err != nil {
				w.log.Warn("cannot watch extra file", "path", p, "error", err)
			}
		}
	}
	w.log.Info("watching", "root", w.root)

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if w.excludedDir(event.Name) {
				return
			}
			if err := w.watchRecursive(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
				return
			}
			w.enqueueExisting(ctx, event.Name)
			return
		}
	}
	if !w.Relevant(event.Name) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.schedule(ctx, event.Name)
	}
}

// Relevant reports whether a change of path should be reported.
func (w *Watcher) Relevant(path string) bool {
	path = filepath.Clean(path)
	if w.extra[path] {
		return true
	}
	if !w.underRoot(path) {
		return false
	}
	rel := fileset.Rel(w.root, path)
	return !w.exclude.Match(rel) && w.include.Match(rel)
}

func (w *Watcher) underRoot(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) excludedDir(path string) bool {
	rel := fileset.Rel(w.root, path)
	return w.exclude.Match(rel) || w.exclude.Match(rel+"/")
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excludedDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) enqueueExisting(ctx context.Context, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.Relevant(path) {
			w.schedule(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[filepath.Clean(path)] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
}

func (w *Watcher) stopTimer() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 || ctx.Err() != nil {
		return
	}
	c := split(paths)

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.log.Debug("change batch", "changed", len(c.Changed), "removed", len(c.Removed))
	w.onChange(ctx, c)
}

// split sorts paths into those that still exist and those that are gone.
func split(paths []string) Change {
	var c Change
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			c.Removed = append(c.Removed, p)
		} else {
			c.Changed = append(c.Changed, p)
		}
	}
	slices.Sort(c.Changed)
	slices.Sort(c.Removed)
	return c
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.fsw.Close()
}
