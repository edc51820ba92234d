package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func memorySource(files map[string]string) SourceFunc {
	return func(path string) ([]byte, error) {
		text, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(text), nil
	}
}

func TestExtractContext(t *testing.T) {
	e := NewContextExtractor(memorySource(map[string]string{
		"Test.sq": "CREATE TABLE t (a INTEGER);\nq:\nSELECT nope\nFROM t;\n",
	}))

	ctx, err := e.ExtractContext("Test.sq", 3, 8, 1)
	if err != nil {
		t.Fatalf("ExtractContext: %v", err)
	}
	if ctx.StartLine != 2 || len(ctx.Lines) != 3 {
		t.Fatalf("got start %d with %d lines", ctx.StartLine, len(ctx.Lines))
	}

	want := "  2 | q:\n" +
		"> 3 | SELECT nope\n" +
		"             ^\n" +
		"  4 | FROM t;\n"
	if got := ctx.Format(); got != want {
		t.Errorf("Format() =\n%q\nwant\n%q", got, want)
	}

	if _, err := e.ExtractContext("Test.sq", 10, 1, 1); err == nil {
		t.Error("expected out of range error")
	}
	if _, err := e.ExtractContext("Missing.sq", 1, 1, 1); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestExtractContextFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Test.sq")
	if err := os.WriteFile(path, []byte("SELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ctx, err := NewContextExtractor(nil).ExtractContext(path, 1, 1, 2)
	if err != nil {
		t.Fatalf("ExtractContext: %v", err)
	}
	if got := strings.Join(ctx.Lines, "\n"); got != "SELECT 1;" {
		t.Errorf("Lines = %q", got)
	}
}

func TestEnrich(t *testing.T) {
	c := NewCollection()
	c.Add(
		Error("unresolved").At("Test.sq", 1, 8).Build(),
		Error("no location").Build(),
		Error("missing file").At("Other.sq", 1, 1).Build(),
		Diagnostic{Severity: SeverityError, Message: "kept", Location: Location{Path: "Test.sq", Line: 1}, Context: "given"},
	)
	Enrich(c, NewContextExtractor(memorySource(map[string]string{"Test.sq": "SELECT nope;"})), 0)

	all := c.All()
	if !strings.Contains(all[0].Context, "> 1 | SELECT nope;") {
		t.Errorf("context not attached: %q", all[0].Context)
	}
	if all[1].Context != "" || all[2].Context != "" {
		t.Errorf("unexpected context on unlocated or unreadable diagnostics")
	}
	if all[3].Context != "given" {
		t.Errorf("existing context overwritten: %q", all[3].Context)
	}
}
