package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/pipeline"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/workspace"
)

// source returns a file declaring table t<i> and a view over it, with
// queries joining the previous table.
func source(i int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE t%d (\n  id INTEGER PRIMARY KEY,\n  name TEXT NOT NULL,\n  parent INTEGER\n);\n\n", i)
	fmt.Fprintf(&b, "CREATE VIEW v%d AS\nSELECT id, name AS label\nFROM t%d;\n\n", i, i)
	for q := range 5 {
		fmt.Fprintf(&b, "select%d_%d:\nWITH recent(rid) AS (SELECT id FROM t%d WHERE parent = ?)\n", i, q, i)
		fmt.Fprintf(&b, "SELECT a.name, v.label, recent.rid\nFROM t%d a\nJOIN v%d v ON v.id = a.id\nJOIN recent ON recent.rid = a.id\n", i, i)
		if i > 0 {
			fmt.Fprintf(&b, "JOIN t%d p ON p.id = a.parent\n", i-1)
		}
		b.WriteString("WHERE a.id > ?;\n\n")
	}
	return b.String()
}

func writeFixtures(b *testing.B, n int) []string {
	b.Helper()
	dir := b.TempDir()
	files := make([]string, n)
	for i := range n {
		files[i] = filepath.Join(dir, fmt.Sprintf("T%03d.sq", i))
		if err := os.WriteFile(files[i], []byte(source(i)), 0o600); err != nil {
			b.Fatalf("write fixture: %v", err)
		}
	}
	return files
}

func BenchmarkPipeline(b *testing.B) {
	files := writeFixtures(b, 50)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		pipe := pipeline.Pipeline{Env: pipeline.Environment{Engine: workspace.New(workspace.Options{})}}
		summary, err := pipe.Run(ctx, pipeline.RunOptions{Files: files})
		if err != nil {
			b.Fatalf("pipeline run: %v", err)
		}
		if summary.Failed != 0 {
			b.Fatalf("%d files failed", summary.Failed)
		}
	}
}

func BenchmarkReparseOneFile(b *testing.B) {
	files := writeFixtures(b, 50)
	ctx := context.Background()
	e := workspace.New(workspace.Options{})
	pipe := pipeline.Pipeline{Env: pipeline.Environment{Engine: e}}
	if _, err := pipe.Run(ctx, pipeline.RunOptions{Files: files}); err != nil {
		b.Fatalf("pipeline run: %v", err)
	}
	text := []byte(source(25))
	table := symbols.ID{Kind: symbols.KindTable, Path: files[25], Line: 1, Column: 14, Name: "t25"}

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if _, err := e.ParseFile(ctx, files[25], text); err != nil {
			b.Fatalf("ParseFile: %v", err)
		}
		if _, err := e.FindUsages(ctx, table, index.FindUsagesOptions{}); err != nil {
			b.Fatalf("FindUsages: %v", err)
		}
	}
}

func BenchmarkFindUsages(b *testing.B) {
	files := writeFixtures(b, 50)
	ctx := context.Background()
	e := workspace.New(workspace.Options{})
	pipe := pipeline.Pipeline{Env: pipeline.Environment{Engine: e}}
	if _, err := pipe.Run(ctx, pipeline.RunOptions{Files: files}); err != nil {
		b.Fatalf("pipeline run: %v", err)
	}
	column := symbols.ID{Kind: symbols.KindColumn, Path: files[10], Line: 2, Column: 3, Name: "id"}

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		usages, err := e.FindUsages(ctx, column, index.FindUsagesOptions{})
		if err != nil {
			b.Fatalf("FindUsages: %v", err)
		}
		if len(usages) < 2 {
			b.Fatalf("got %d usages, want the declaration and references", len(usages))
		}
	}
}
