package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    []string
		absent  []string
	}{
		{name: "default", want: []string{"level=INFO msg=indexed"}, absent: []string{"resolve slot"}},
		{name: "verbose", verbose: true, want: []string{"level=DEBUG", "resolve slot", "msg=indexed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Options{Verbose: tt.verbose, Writer: &buf})
			logger.Debug("resolve slot", "slot", 3)
			logger.Info("indexed", "files", 2)

			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Fatalf("output %q missing %q", out, want)
				}
			}
			for _, absent := range tt.absent {
				if strings.Contains(out, absent) {
					t.Fatalf("output %q should not contain %q", out, absent)
				}
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: FormatJSON, Writer: &buf}).Info("parsed", "path", "Main.sq")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if record["msg"] != "parsed" || record["path"] != "Main.sq" {
		t.Fatalf("record = %v", record)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatText, "text": FormatText, " JSON ": FormatJSON}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("ParseFormat(xml) should fail")
	}
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	var logger Logger = NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	child := logger.With("component", "watch")
	child.Debug("change batch", "changed", 1)
	child.Warn("cannot watch", "path", "a.sq")
	logger.Error("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	for i, want := range []string{"component=watch changed=1", "component=watch path=a.sq", "msg=plain"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
	if strings.Contains(lines[2], "component=") {
		t.Fatalf("parent logger picked up child attributes: %q", lines[2])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("dropped")
	logger.With("key", "value").Error("dropped too")
}
