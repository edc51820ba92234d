package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/db-xref/internal/diagnostics"
	"github.com/electwix/db-xref/internal/fileset"
	"github.com/electwix/db-xref/internal/workspace"
)

func writeFiles(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for name, contents := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

func codes(c *diagnostics.Collection) []string {
	var out []string
	for _, d := range c.All() {
		out = append(out, d.Code+" "+filepath.Base(d.Location.Path))
	}
	return out
}

func TestRunIndexesFiles(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, map[string]string{
		"a/Player.sq":  "CREATE TABLE player (name TEXT);",
		"b/Broken.sq":  "CREATE TABLE (;",
		"c/Queries.sq": "byName:\nSELECT nope FROM player;",
	})

	engine := workspace.New(workspace.Options{})
	p := Pipeline{Env: Environment{Engine: engine}}
	summary, err := p.Run(context.Background(), RunOptions{Files: files, Workers: 2})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if summary.Indexed != 2 || summary.Failed != 1 {
		t.Fatalf("Indexed/Failed = %d/%d, want 2/1", summary.Indexed, summary.Failed)
	}
	if summary.Stats.ParseError != 1 || summary.Stats.Unresolved != 1 {
		t.Fatalf("Stats = %+v", summary.Stats)
	}
	if diff := cmp.Diff([]string{"E101 Broken.sq", "E201 Queries.sq"}, codes(summary.Diagnostics)); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(files, engine.Files()); diff != "" {
		t.Fatalf("engine files mismatch (-want +got):\n%s", diff)
	}

	var diagErr *DiagnosticsError
	if !errors.As(summary.Err(), &diagErr) {
		t.Fatalf("Err() = %v, want *DiagnosticsError", summary.Err())
	}
	if diagErr.Count != 2 || diagErr.Diagnostic.Code != diagnostics.ErrParse {
		t.Fatalf("DiagnosticsError = %+v", diagErr)
	}
	if !strings.Contains(diagErr.Error(), "(and 1 more)") {
		t.Fatalf("Error() = %q", diagErr.Error())
	}
}

func TestRunCleanSummaryHasNoError(t *testing.T) {
	files := writeFiles(t, t.TempDir(), map[string]string{
		"Player.sq": "CREATE TABLE player (name TEXT);\nq:\nSELECT name FROM player;",
	})
	p := Pipeline{Env: Environment{Engine: workspace.New(workspace.Options{})}}
	summary, err := p.Run(context.Background(), RunOptions{Files: files})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Err() != nil {
		t.Fatalf("Err() = %v, want nil", summary.Err())
	}
	if summary.Stats.Declarations == 0 || summary.Stats.References == 0 {
		t.Fatalf("Stats = %+v", summary.Stats)
	}
}

func TestRunRemovals(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, map[string]string{
		"One.sq":   "CREATE TABLE one (x TEXT);",
		"Two.sq":   "CREATE TABLE two (x TEXT);",
		"Three.sq": "CREATE TABLE three (x TEXT);",
	})

	engine := workspace.New(workspace.Options{})
	p := Pipeline{Env: Environment{Engine: engine}}
	if _, err := p.Run(context.Background(), RunOptions{Files: files}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// files is sorted: One, Three, Two.
	if err := os.Remove(files[0]); err != nil {
		t.Fatal(err)
	}
	summary, err := p.Run(context.Background(), RunOptions{
		Files:   files[:1],
		Removed: files[1:2],
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Removed != 2 {
		t.Fatalf("Removed = %d, want 2", summary.Removed)
	}
	if diff := cmp.Diff(files[2:], engine.Files()); diff != "" {
		t.Fatalf("engine files mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBridge(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, map[string]string{
		"Queries.sq": "CREATE TABLE player (name TEXT);\nbyName:\nSELECT name FROM player;",
		"usages.yaml": `- declaration: label byName
  handle: kt:1
  path: Players.kt
  line: 3
  column: 5
- declaration: label missing
  handle: kt:2
  path: Players.kt
  line: 9
  column: 5
`,
	})

	engine := workspace.New(workspace.Options{})
	p := Pipeline{Env: Environment{Engine: engine}}
	summary, err := p.Run(context.Background(), RunOptions{Files: files[:1], BridgeFile: files[1]})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.External != 1 || summary.Stats.External != 1 {
		t.Fatalf("External = %d (stats %d), want 1", summary.External, summary.Stats.External)
	}
	warnings := summary.Diagnostics.ByCode(diagnostics.WarnBridgeEntry)
	if len(warnings) != 1 {
		t.Fatalf("bridge warnings = %v", summary.Diagnostics.All())
	}
	if warnings[0].Location.Line != 6 {
		t.Fatalf("warning line = %d, want 6", warnings[0].Location.Line)
	}
	if summary.Err() != nil {
		t.Fatalf("warnings must not fail the run: %v", summary.Err())
	}

	// Re-running replaces rather than accumulates external usages.
	summary, err = p.Run(context.Background(), RunOptions{BridgeFile: files[1]})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Stats.External != 1 {
		t.Fatalf("External after rerun = %d, want 1", summary.Stats.External)
	}
}

func TestRunReadFileOverride(t *testing.T) {
	resolver, err := fileset.NewMemoryResolver(map[string][]byte{
		"schema/Player.sq": []byte("CREATE TABLE player (name TEXT);"),
	})
	if err != nil {
		t.Fatal(err)
	}
	engine := workspace.New(workspace.Options{})
	p := Pipeline{Env: Environment{Engine: engine, ReadFile: resolver.ReadFile}}
	summary, err := p.Run(context.Background(), RunOptions{Files: []string{"schema/Player.sq"}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Indexed != 1 {
		t.Fatalf("Indexed = %d, want 1", summary.Indexed)
	}
	if got := engine.Files(); len(got) != 1 || got[0] != "schema/Player.sq" {
		t.Fatalf("Files() = %v", got)
	}
}

func TestRunCanceled(t *testing.T) {
	files := writeFiles(t, t.TempDir(), map[string]string{"One.sq": "CREATE TABLE one (x TEXT);"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Pipeline{Env: Environment{Engine: workspace.New(workspace.Options{})}}
	if _, err := p.Run(ctx, RunOptions{Files: files}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}

func TestRunNoEngine(t *testing.T) {
	var p Pipeline
	if _, err := p.Run(context.Background(), RunOptions{}); !errors.Is(err, ErrNoEngine) {
		t.Fatalf("Run error = %v, want ErrNoEngine", err)
	}
}
