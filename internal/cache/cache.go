package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is a per-run store for advisory lookup results. Entries live only
// for the lifetime of one audit invocation and are never written to disk, so
// repeated lookups for the same component within a run skip the network
// without stale data leaking across runs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// Entry is one cached lookup result plus the time it was stored.
type Entry struct {
	Value    any
	StoredAt time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Key builds a cache key from its parts, e.g. ("plugin", "akismet", "5.3").
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}

// Get retrieves a cached value.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Set stores a value.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Value: value, StoredAt: time.Now()}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
