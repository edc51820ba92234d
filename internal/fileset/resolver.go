// Package fileset expands the source and exclude globs of a configuration
// into the list of files to index, over the OS file system, a txtar archive
// or an in-memory map.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoPatterns is returned by Resolve when called without patterns.
var ErrNoPatterns = errors.New("fileset: no patterns provided")

var errNoFS = errors.New("fileset: resolver has no filesystem")

// NoMatchError lists the patterns that matched no file.
type NoMatchError struct {
	Patterns []string
}

func (e NoMatchError) Error() string {
	return "patterns matched no files: " + strings.Join(e.Patterns, ", ")
}

// Resolver walks a file system and returns the files matching a set of
// patterns, minus the excluded ones. The zero value is unusable.
type Resolver struct {
	fsys fs.FS
	// name maps a walked name to the path handed out by Resolve.
	name    func(string) string
	read    func(string) ([]byte, error)
	exclude *Matcher
}

// NewResolver resolves against fsys and hands out names as walked.
func NewResolver(fsys fs.FS) Resolver {
	return Resolver{
		fsys: fsys,
		name: func(n string) string { return n },
		read: func(n string) ([]byte, error) { return fs.ReadFile(fsys, n) },
	}
}

// NewOSResolver resolves against the directory base and hands out absolute
// OS paths.
func NewOSResolver(base string) (Resolver, error) {
	root, err := filepath.Abs(base)
	if err != nil {
		return Resolver{}, fmt.Errorf("resolve base %q: %w", base, err)
	}
	switch info, err := os.Stat(root); {
	case err != nil:
		return Resolver{}, fmt.Errorf("stat base %q: %w", root, err)
	case !info.IsDir():
		return Resolver{}, fmt.Errorf("base %q is not a directory", root)
	}
	return Resolver{
		fsys: os.DirFS(root),
		name: func(n string) string {
			if filepath.IsAbs(n) {
				return filepath.Clean(n)
			}
			return filepath.Join(root, filepath.FromSlash(n))
		},
		read: os.ReadFile,
	}, nil
}

// WithExclude returns a copy of r that skips files and whole directories
// matching any of patterns.
func (r Resolver) WithExclude(patterns []string) (Resolver, error) {
	m, err := CompileMatcher(patterns)
	if err != nil {
		return Resolver{}, err
	}
	r.exclude = m
	return r, nil
}

// Excluded reports whether the slash-separated relative name is excluded.
func (r Resolver) Excluded(name string) bool {
	return r.exclude.Match(name)
}

// ReadFile reads a path returned by Resolve.
func (r Resolver) ReadFile(name string) ([]byte, error) {
	if r.read == nil {
		return nil, errNoFS
	}
	return r.read(name)
}

// Resolve returns the sorted, de-duplicated files matching any of patterns.
// Every pattern must match at least one file; the ones that do not are
// reported together in a NoMatchError.
func (r Resolver) Resolve(patterns []string) ([]string, error) {
	switch {
	case r.fsys == nil:
		return nil, errNoFS
	case len(patterns) == 0:
		return nil, ErrNoPatterns
	}
	include, err := CompileMatcher(patterns)
	if err != nil {
		return nil, err
	}

	used := make([]bool, len(patterns))
	var found []string
	walk := func(name string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case name == ".":
			return nil
		case d.IsDir():
			if r.exclude.Match(name) || r.exclude.Match(name+"/") {
				return fs.SkipDir
			}
			return nil
		case r.exclude.Match(name):
			return nil
		}
		hits := include.matching(name)
		for _, i := range hits {
			used[i] = true
		}
		if len(hits) > 0 {
			found = append(found, r.name(name))
		}
		return nil
	}
	if err := fs.WalkDir(r.fsys, ".", walk); err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	var missing []string
	for i, ok := range used {
		if !ok {
			missing = append(missing, patterns[i])
		}
	}
	if missing != nil {
		return nil, NoMatchError{Patterns: missing}
	}
	slices.Sort(found)
	return slices.Compact(found), nil
}

// Rel converts a resolved path to the slash-separated name relative to
// base. Paths outside base stay absolute.
func Rel(base, name string) string {
	if !filepath.IsAbs(name) {
		return path.Clean(filepath.ToSlash(name))
	}
	rel, err := filepath.Rel(base, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}
