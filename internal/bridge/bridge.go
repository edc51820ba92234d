// Package bridge keeps usages of declarations that live outside the indexed
// sources, such as generated accessor calls in host-language code. A host
// registers them against a declaration identity and the reference index
// merges them into find-usages results at query time.
package bridge

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/electwix/db-xref/internal/symbols"
)

// ErrInvalidUsage reports a usage without a handle or a path.
var ErrInvalidUsage = errors.New("invalid external usage")

// Usage is one external call site.
type Usage struct {
	// Handle identifies the usage for its host; it is unique per declaration.
	Handle   string `yaml:"handle" json:"handle"`
	Path     string `yaml:"path" json:"path"`
	Line     int    `yaml:"line" json:"line"`
	Column   int    `yaml:"column" json:"column"`
	Language string `yaml:"language,omitempty" json:"language,omitempty"`
}

// Compare orders usages by path, position and handle.
func (u Usage) Compare(other Usage) int {
	return cmp.Or(
		cmp.Compare(u.Path, other.Path),
		cmp.Compare(u.Line, other.Line),
		cmp.Compare(u.Column, other.Column),
		cmp.Compare(u.Handle, other.Handle),
	)
}

// Registry stores external usages keyed by declaration identity. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byID  map[symbols.ID]map[string]Usage
	count int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[symbols.ID]map[string]Usage)}
}

// Register records u for id. Identities need not be declared by any indexed
// file. Registering the same handle again replaces the earlier record.
func (r *Registry) Register(id symbols.ID, u Usage) error {
	if u.Handle == "" || u.Path == "" {
		return fmt.Errorf("register usage of %s: %w", id, ErrInvalidUsage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		m = make(map[string]Usage)
		r.byID[id] = m
	}
	if _, exists := m[u.Handle]; !exists {
		r.count++
	}
	m[u.Handle] = u
	return nil
}

// Usages returns the usages recorded for id ordered by path, position and handle.
func (r *Registry) Usages(id symbols.ID) []Usage {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byID[id]
	if len(m) == 0 {
		return nil
	}
	out := make([]Usage, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	slices.SortFunc(out, Usage.Compare)
	return out
}

// Clear drops every usage whose handle starts with prefix and returns the
// number removed. An empty prefix clears the registry.
func (r *Registry) Clear(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, m := range r.byID {
		for handle := range m {
			if strings.HasPrefix(handle, prefix) {
				delete(m, handle)
				removed++
			}
		}
		if len(m) == 0 {
			delete(r.byID, id)
		}
	}
	r.count -= removed
	return removed
}

// Len reports the number of recorded usages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// IDs returns every identity with recorded usages in identity order.
func (r *Registry) IDs() []symbols.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]symbols.ID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	slices.SortFunc(out, symbols.ID.Compare)
	return out
}
