package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/logging"
	"github.com/electwix/db-xref/internal/workspace"
)

func TestHooks_Chain(t *testing.T) {
	ctx := context.Background()
	record := func(calls *[]string, name string, err error) Hooks {
		return Hooks{AfterFile: func(context.Context, FileResult) error {
			*calls = append(*calls, name)
			return err
		}}
	}
	boom := errors.New("boom")

	tests := []struct {
		name      string
		chain     func(calls *[]string) Hooks
		wantCalls []string
		wantErr   error
	}{
		{
			name:      "runs in order",
			chain:     func(c *[]string) Hooks { return record(c, "first", nil).Chain(record(c, "second", nil)) },
			wantCalls: []string{"first", "second"},
		},
		{
			name:      "error stops the chain",
			chain:     func(c *[]string) Hooks { return record(c, "first", boom).Chain(record(c, "second", nil)) },
			wantCalls: []string{"first"},
			wantErr:   boom,
		},
		{
			name:      "empty left side",
			chain:     func(c *[]string) Hooks { return Hooks{}.Chain(record(c, "second", nil)) },
			wantCalls: []string{"second"},
		},
		{
			name:      "empty right side",
			chain:     func(c *[]string) Hooks { return record(c, "first", nil).Chain(Hooks{}) },
			wantCalls: []string{"first"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			h := tt.chain(&calls)
			if err := h.AfterFile(ctx, FileResult{Path: "a.sq"}); !errors.Is(err, tt.wantErr) {
				t.Fatalf("AfterFile error = %v, want %v", err, tt.wantErr)
			}
			if strings.Join(calls, ",") != strings.Join(tt.wantCalls, ",") {
				t.Fatalf("calls = %v, want %v", calls, tt.wantCalls)
			}
			if h.BeforeIndex != nil || h.AfterRun != nil {
				t.Fatal("chaining two nil hooks should stay nil")
			}
		})
	}
}

func TestPipeline_Run_HookOrder(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, map[string]string{
		"Player.sq":   "CREATE TABLE player (name TEXT);",
		"Queries.sq":  "byName:\nSELECT name FROM player;",
		"usages.yaml": "- declaration: label byName\n  handle: kt:1\n  path: Players.kt\n  line: 3\n  column: 5\n",
	})

	var got []string
	stage := func(name string) { got = append(got, name) }
	p := &Pipeline{
		Env: Environment{
			Engine: workspace.New(workspace.Options{}),
			Logger: logging.NewSlogAdapter(slog.New(slog.DiscardHandler)),
		},
		Hooks: Hooks{
			BeforeIndex:  func(context.Context, []string) error { stage("before-index"); return nil },
			AfterFile:    func(context.Context, FileResult) error { stage("file"); return nil },
			AfterIndex:   func(context.Context, *workspace.Engine) error { stage("after-index"); return nil },
			BeforeBridge: func(context.Context, []bridge.Entry) error { stage("bridge"); return nil },
			AfterRun:     func(context.Context, Summary) error { stage("after-run"); return nil },
		},
	}

	if _, err := p.Run(context.Background(), RunOptions{Files: files[:2], Workers: 1, BridgeFile: files[2]}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "before-index,file,file,after-index,bridge,after-run"
	if strings.Join(got, ",") != want {
		t.Fatalf("stages = %v, want %s", got, want)
	}
}

func TestPipeline_Run_HookAborts(t *testing.T) {
	files := writeFiles(t, t.TempDir(), map[string]string{
		"Player.sq": "CREATE TABLE player (name TEXT);",
	})

	var sawSummary bool
	engine := workspace.New(workspace.Options{})
	p := &Pipeline{
		Env: Environment{Engine: engine},
		Hooks: Hooks{
			BeforeIndex: func(context.Context, []string) error { return errors.New("not today") },
			AfterRun: func(context.Context, Summary) error {
				sawSummary = true
				return nil
			},
		},
	}

	_, err := p.Run(context.Background(), RunOptions{Files: files})
	if err == nil || !strings.Contains(err.Error(), "not today") {
		t.Fatalf("Run error = %v, want the hook error", err)
	}
	if !sawSummary {
		t.Fatal("AfterRun did not run after the aborted stage")
	}
	if n := len(engine.Files()); n != 0 {
		t.Fatalf("%d files indexed after abort", n)
	}
}
