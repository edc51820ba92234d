package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcher(t *testing.T, root string, opts Options) (*Watcher, <-chan Change) {
	t.Helper()
	changes := make(chan Change, 16)
	opts.Debounce = 20 * time.Millisecond
	opts.OnChange = func(_ context.Context, c Change) { changes <- c }
	w, err := New(root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, changes
}

func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Let Run register the directories before the test writes.
	time.Sleep(50 * time.Millisecond)
}

func next(t *testing.T, changes <-chan Change) Change {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change batch")
		return Change{}
	}
}

func TestNewRequiresCallback(t *testing.T) {
	_, err := New(t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrNoCallback)
}

func TestRelevant(t *testing.T) {
	root := t.TempDir()
	bridge := filepath.Join(t.TempDir(), "usages.yaml")
	w, _ := newWatcher(t, root, Options{
		Sources: []string{"**/*.sq"},
		Exclude: []string{"**/build/**"},
		Extra:   []string{bridge},
	})

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "Main.sq"), true},
		{filepath.Join(root, "src", "deep", "Q.sq"), true},
		{filepath.Join(root, "src", "notes.txt"), false},
		{filepath.Join(root, "src", "build", "Gen.sq"), false},
		{filepath.Join(filepath.Dir(root), "Outside.sq"), false},
		{bridge, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.Relevant(tt.path), tt.path)
	}
}

func TestSplit(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "b.sq")
	require.NoError(t, os.WriteFile(present, nil, 0o600))
	gone := filepath.Join(dir, "a.sq")

	c := split([]string{present, gone})
	assert.Equal(t, []string{present}, c.Changed)
	assert.Equal(t, []string{gone}, c.Removed)
}

func TestWatchReportsWritesAndRemovals(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "Existing.sq")
	require.NoError(t, os.WriteFile(existing, []byte("CREATE TABLE a (x TEXT);"), 0o600))

	w, changes := newWatcher(t, root, Options{Sources: []string{"**/*.sq"}})
	start(t, w)

	created := filepath.Join(root, "Created.sq")
	require.NoError(t, os.WriteFile(created, []byte("CREATE TABLE b (x TEXT);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("x"), 0o600))

	c := next(t, changes)
	assert.Equal(t, []string{created}, c.Changed)
	assert.Empty(t, c.Removed)

	require.NoError(t, os.Remove(existing))
	c = next(t, changes)
	assert.Empty(t, c.Changed)
	assert.Equal(t, []string{existing}, c.Removed)
}

func TestWatchNewDirectory(t *testing.T) {
	root := t.TempDir()
	w, changes := newWatcher(t, root, Options{Sources: []string{"**/*.sq"}})
	start(t, w)

	dir := filepath.Join(root, "schema")
	require.NoError(t, os.Mkdir(dir, 0o750))
	file := filepath.Join(dir, "Player.sq")
	require.NoError(t, os.WriteFile(file, []byte("CREATE TABLE player (name TEXT);"), 0o600))

	require.Eventually(t, func() bool {
		select {
		case c := <-changes:
			for _, p := range c.Changed {
				if p == file {
					return true
				}
			}
		default:
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}
