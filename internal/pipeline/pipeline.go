// Package pipeline indexes a set of files into a workspace engine: it
// parses them concurrently, applies the bridge file and collects the
// diagnostics of the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/diagnostics"
	"github.com/electwix/db-xref/internal/logging"
	"github.com/electwix/db-xref/internal/workspace"
)

// Environment captures external dependencies used by the pipeline.
type Environment struct {
	Engine *workspace.Engine
	Logger logging.Logger
	// ReadFile reads source files; nil reads from disk.
	ReadFile func(path string) ([]byte, error)
}

// Pipeline indexes files into an engine.
type Pipeline struct {
	Env   Environment
	Hooks Hooks
}

// RunOptions configures a pipeline execution.
type RunOptions struct {
	// Files are (re)parsed.
	Files []string
	// Removed are dropped from the engine.
	Removed []string
	// Workers bounds concurrent parses; zero means one per file.
	Workers int
	// BridgeFile, when set, replaces every external usage with its entries.
	BridgeFile string
}

// FileResult is the outcome of indexing one file.
type FileResult struct {
	Path string
	// Err is a read or syntax error; other files are indexed regardless.
	Err error
}

// Summary captures the state of the engine after a run.
type Summary struct {
	Indexed     int
	Failed      int
	Removed     int
	External    int
	Stats       workspace.Stats
	Diagnostics *diagnostics.Collection
	Duration    time.Duration
}

// DiagnosticsError indicates that errors were reported via diagnostics.
type DiagnosticsError struct {
	Diagnostic diagnostics.Diagnostic
	Count      int
}

func (e *DiagnosticsError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("%s (and %d more)", e.Diagnostic.Error(), e.Count-1)
	}
	return e.Diagnostic.Error()
}

// Err returns a *DiagnosticsError naming the first error diagnostic, or nil.
func (s Summary) Err() error {
	if s.Diagnostics == nil || !s.Diagnostics.HasErrors() {
		return nil
	}
	var first *diagnostics.Diagnostic
	count := 0
	for _, d := range s.Diagnostics.All() {
		if !d.IsError() {
			continue
		}
		if first == nil {
			first = &d
		}
		count++
	}
	return &DiagnosticsError{Diagnostic: *first, Count: count}
}

// ErrNoEngine is returned by Run when the environment has no engine.
var ErrNoEngine = errors.New("pipeline: no engine")

// Run executes the pipeline according to the provided options. Per-file
// problems end up in the summary's diagnostics; Run itself fails only when
// ctx is done or a hook returns an error.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (summary Summary, err error) {
	start := time.Now()
	engine := p.Env.Engine
	if engine == nil {
		return summary, ErrNoEngine
	}
	log := p.Env.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	read := p.Env.ReadFile
	if read == nil {
		read = func(path string) ([]byte, error) { return os.ReadFile(filepath.Clean(path)) }
	}

	runDiags := diagnostics.NewCollection()
	defer func() {
		summary.Stats = engine.Stats()
		all := engine.AllDiagnostics()
		all.Add(runDiags.All()...)
		all.SortByLocation()
		summary.Diagnostics = all
		summary.Duration = time.Since(start)
		if p.Hooks.AfterRun != nil {
			if hookErr := p.Hooks.AfterRun(ctx, summary); hookErr != nil && err == nil {
				err = hookErr
			}
		}
	}()

	if p.Hooks.BeforeIndex != nil {
		if err := p.Hooks.BeforeIndex(ctx, opts.Files); err != nil {
			return summary, err
		}
	}

	var mu sync.Mutex
	report := func(res FileResult) error {
		mu.Lock()
		defer mu.Unlock()
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Indexed++
		}
		if p.Hooks.AfterFile != nil {
			return p.Hooks.AfterFile(ctx, res)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for _, path := range opts.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := read(path)
			if errors.Is(err, fs.ErrNotExist) {
				// Deleted between discovery and read.
				if rmErr := engine.RemoveFile(gctx, path); rmErr != nil {
					return rmErr
				}
				mu.Lock()
				summary.Removed++
				mu.Unlock()
				return nil
			}
			if err != nil {
				mu.Lock()
				runDiags.Add(diagnostics.Error(err.Error()).At(path, 0, 0).WithSource("pipeline").Build())
				mu.Unlock()
				return report(FileResult{Path: path, Err: err})
			}
			_, err = engine.ParseFile(gctx, path, text)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return report(FileResult{Path: path, Err: err})
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for _, path := range opts.Removed {
		if err := engine.RemoveFile(ctx, path); err != nil {
			return summary, err
		}
		summary.Removed++
	}

	if p.Hooks.AfterIndex != nil {
		if err := p.Hooks.AfterIndex(ctx, engine); err != nil {
			return summary, err
		}
	}

	if opts.BridgeFile != "" {
		entries, loadErr := bridge.LoadFile(opts.BridgeFile)
		runDiags.Add(diagnostics.FromError(loadErr)...)
		if p.Hooks.BeforeBridge != nil {
			if err := p.Hooks.BeforeBridge(ctx, entries); err != nil {
				return summary, err
			}
		}
		engine.ClearExternalUsages("")
		n, applyErr := engine.ApplyBridge(opts.BridgeFile, entries)
		runDiags.Add(diagnostics.FromError(applyErr)...)
		summary.External = n
	}

	log.Info("index complete",
		"files", len(opts.Files),
		"indexed", summary.Indexed,
		"failed", summary.Failed,
		"removed", summary.Removed,
		"external", summary.External,
	)
	return summary, nil
}
