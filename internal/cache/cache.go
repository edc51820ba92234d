package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache maps a path to the value derived from one version of its content.
type Cache[V any] interface {
	Get(ctx context.Context, path string, content []byte) (V, bool)
	Put(ctx context.Context, path string, content []byte, value V)
	Forget(ctx context.Context, path string)
}

// Digest returns the hex encoding of the first 128 bits of the SHA-256 of
// content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:16])
}

type entry[V any] struct {
	digest string
	value  V
}

// MemoryCache is a Cache held in a map. It keeps at most one entry per path.
type MemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	hits    int
	misses  int
}

var _ Cache[int] = (*MemoryCache[int])(nil)

func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{entries: make(map[string]entry[V])}
}

// Get returns the value stored for path if it was computed from content.
func (m *MemoryCache[V]) Get(_ context.Context, path string, content []byte) (V, bool) {
	digest := Digest(content)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok || e.digest != digest {
		m.misses++
		var zero V
		return zero, false
	}
	m.hits++
	return e.value, true
}

// Put replaces whatever is stored for path.
func (m *MemoryCache[V]) Put(_ context.Context, path string, content []byte, value V) {
	e := entry[V]{digest: Digest(content), value: value}
	m.mu.Lock()
	m.entries[path] = e
	m.mu.Unlock()
}

func (m *MemoryCache[V]) Forget(_ context.Context, path string) {
	m.mu.Lock()
	delete(m.entries, path)
	m.mu.Unlock()
}

// Len returns the number of paths with a stored value.
func (m *MemoryCache[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stats returns the number of Get calls that hit and missed.
func (m *MemoryCache[V]) Stats() (hits, misses int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits, m.misses
}
