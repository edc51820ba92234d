package fileset

import (
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"

	"golang.org/x/tools/txtar"
)

// NewArchiveResolver resolves patterns against the files of a txtar
// archive. Matches keep their archive names.
func NewArchiveResolver(a *txtar.Archive) (Resolver, error) {
	fsys, err := txtar.FS(a)
	if err != nil {
		return Resolver{}, fmt.Errorf("archive: %w", err)
	}
	return NewResolver(fsys), nil
}

// LoadArchive reads a txtar file and returns a resolver over its members.
func LoadArchive(file string) (Resolver, error) {
	a, err := txtar.ParseFile(file)
	if err != nil {
		return Resolver{}, fmt.Errorf("read archive %s: %w", file, err)
	}
	return NewArchiveResolver(a)
}

// NewMemoryResolver resolves patterns against in-memory files keyed by
// slash-separated relative path.
func NewMemoryResolver(files map[string][]byte) (Resolver, error) {
	a := &txtar.Archive{}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		clean := path.Clean(name)
		if !fs.ValidPath(clean) {
			return Resolver{}, fmt.Errorf("memory file %q: %w", name, fs.ErrInvalid)
		}
		a.Files = append(a.Files, txtar.File{Name: clean, Data: files[name]})
	}
	return NewArchiveResolver(a)
}
