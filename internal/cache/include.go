package cache

import (
	"os"
	"sync/atomic"
	"time"
)

// IncludeCache memoizes included-file content keyed by absolute path and
// modification time. A lookup stats the file: if the on-disk mtime no longer
// matches the stored one the entry is treated as absent and the resolver
// re-reads and re-puts. Stale entries become unreachable by key mismatch and
// age out through LRU eviction, never by active invalidation.
//
// The cache is an optimization only; the resolver is correct with it empty,
// partially populated, or disabled.
type IncludeCache struct {
	lru *lru
}

// NewIncludeCache creates an inclusion cache bounded by maxSize resident bytes.
func NewIncludeCache(maxSize int64, ttl time.Duration) *IncludeCache {
	return &IncludeCache{lru: newLRU(maxSize, ttl)}
}

// Get returns the cached content for path if the file's current modification
// time matches the one recorded at Put.
func (c *IncludeCache) Get(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		// Unreadable file: the resolver will surface its own error fragment.
		atomic.AddInt64(&c.lru.misses, 1)
		return "", false
	}

	c.lru.mu.Lock()
	defer c.lru.mu.Unlock()

	e, ok := c.lru.get(path)
	if !ok || !e.modTime.Equal(info.ModTime()) {
		atomic.AddInt64(&c.lru.misses, 1)
		return "", false
	}
	atomic.AddInt64(&c.lru.hits, 1)
	return e.value, true
}

// Put stores file content under (path, mtime).
func (c *IncludeCache) Put(path string, modTime time.Time, content string) {
	c.lru.mu.Lock()
	defer c.lru.mu.Unlock()
	c.lru.put(path, content, modTime)
}

// SetCapacity adjusts the byte cap, evicting immediately if shrinking.
func (c *IncludeCache) SetCapacity(maxSize int64) { c.lru.setCapacity(maxSize) }

// Clear drops all entries and resets counters.
func (c *IncludeCache) Clear() { c.lru.clear() }

// Stats returns a read-only snapshot of cache counters.
func (c *IncludeCache) Stats() Stats { return c.lru.stats() }
