package fileset

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func projectFS() fstest.MapFS {
	return fstest.MapFS{
		"Main.sq":                          {Data: []byte("CREATE TABLE main (id INTEGER);")},
		"src/schema/Player.sq":             {},
		"src/schema/deep/Team.sq":          {},
		"src/queries/Queries.sq":           {},
		"src/queries/notes.txt":            {},
		"src/build/generated/Generated.sq": {},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	plain := NewResolver(projectFS())
	excluding, err := plain.WithExclude([]string{"**/build/**"})
	if err != nil {
		t.Fatalf("WithExclude: %v", err)
	}

	tests := []struct {
		name     string
		resolver Resolver
		patterns []string
		want     []string
	}{
		{
			name:     "recursive",
			resolver: plain,
			patterns: []string{"**/*.sq"},
			want: []string{
				"Main.sq",
				"src/build/generated/Generated.sq",
				"src/queries/Queries.sq",
				"src/schema/Player.sq",
				"src/schema/deep/Team.sq",
			},
		},
		{
			name:     "recursive with exclude",
			resolver: excluding,
			patterns: []string{"**/*.sq"},
			want:     []string{"Main.sq", "src/queries/Queries.sq", "src/schema/Player.sq", "src/schema/deep/Team.sq"},
		},
		{
			name:     "below a directory",
			resolver: excluding,
			patterns: []string{"src/**/*.sq"},
			want:     []string{"src/queries/Queries.sq", "src/schema/Player.sq", "src/schema/deep/Team.sq"},
		},
		{
			name:     "single level",
			resolver: plain,
			patterns: []string{"src/schema/*.sq"},
			want:     []string{"src/schema/Player.sq"},
		},
		{
			name:     "alternatives",
			resolver: plain,
			patterns: []string{"src/{queries,schema}/*.sq"},
			want:     []string{"src/queries/Queries.sq", "src/schema/Player.sq"},
		},
		{
			name:     "overlapping patterns are deduplicated",
			resolver: plain,
			patterns: []string{"src/queries/*", "src/queries/Queries.sq", "*.sq"},
			want:     []string{"Main.sq", "src/queries/Queries.sq", "src/queries/notes.txt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resolver.Resolve(tt.patterns)
			if err != nil {
				t.Fatalf("Resolve(%v): %v", tt.patterns, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Resolve(%v) mismatch (-want +got):\n%s", tt.patterns, diff)
			}
		})
	}

	if !excluding.Excluded("src/build/generated/Generated.sq") || excluding.Excluded("src/schema/Player.sq") {
		t.Fatal("Excluded disagrees with the exclude pattern")
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	r := NewResolver(projectFS())

	var noMatch NoMatchError
	_, err := r.Resolve([]string{"schema/*.sq", "Main.sq", "nope.sq"})
	if !errors.As(err, &noMatch) {
		t.Fatalf("want NoMatchError, got %T: %v", err, err)
	}
	if diff := cmp.Diff([]string{"schema/*.sq", "nope.sq"}, noMatch.Patterns); diff != "" {
		t.Fatalf("unmatched patterns (-want +got):\n%s", diff)
	}

	var bad PatternError
	if _, err := r.Resolve([]string{"["}); !errors.As(err, &bad) || bad.Pattern != "[" {
		t.Fatalf("want PatternError for %q, got %v", "[", err)
	}

	if _, err := r.Resolve(nil); !errors.Is(err, ErrNoPatterns) {
		t.Fatalf("want ErrNoPatterns, got %v", err)
	}
	if _, err := (Resolver{}).Resolve([]string{"*.sq"}); err == nil {
		t.Fatal("zero Resolver should fail")
	}
}

func TestResolverReadFile(t *testing.T) {
	t.Parallel()

	r := NewResolver(projectFS())
	data, err := r.ReadFile("Main.sq")
	if err != nil || string(data) != "CREATE TABLE main (id INTEGER);" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if _, err := r.ReadFile("missing.sq"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("want fs.ErrNotExist, got %v", err)
	}
}

func TestMatcher(t *testing.T) {
	t.Parallel()

	m, err := CompileMatcher([]string{"**/*.sq", "build/**"})
	if err != nil {
		t.Fatalf("CompileMatcher: %v", err)
	}
	cases := map[string]bool{
		"Main.sq":         true,
		"a/b/c/Main.sq":   true,
		"a/b/c/Main.sql":  false,
		"build/out.txt":   true,
		"src/build/x.txt": false,
	}
	for name, want := range cases {
		if got := m.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
	if (*Matcher)(nil).Match("Main.sq") {
		t.Error("nil Matcher matched")
	}
}

func TestRel(t *testing.T) {
	t.Parallel()

	base := filepath.Join(string(filepath.Separator), "work", "project")
	cases := map[string]string{
		filepath.Join(base, "src", "Main.sq"):                           "src/Main.sq",
		"src/../Main.sq":                                                "Main.sq",
		filepath.Join(string(filepath.Separator), "elsewhere", "X.sq"): "/elsewhere/X.sq",
	}
	for in, want := range cases {
		if got := Rel(base, in); got != want {
			t.Errorf("Rel(%q) = %q, want %q", in, got, want)
		}
	}
}
