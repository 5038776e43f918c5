package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// RenderCache memoizes converted HTML keyed by content fingerprint.
//
// The stored HTML still contains math-guard placeholders: the fingerprint is
// computed before formula restoration, so two documents whose guarded text is
// identical share one slot and each render restores its own formulas into the
// cached value.
type RenderCache struct {
	lru *lru
}

// NewRenderCache creates a render cache bounded by maxSize resident bytes.
func NewRenderCache(maxSize int64, ttl time.Duration) *RenderCache {
	return &RenderCache{lru: newLRU(maxSize, ttl)}
}

// Get returns the cached HTML for a fingerprint.
func (c *RenderCache) Get(fingerprint string) (string, bool) {
	c.lru.mu.Lock()
	defer c.lru.mu.Unlock()

	e, ok := c.lru.get(fingerprint)
	if !ok {
		atomic.AddInt64(&c.lru.misses, 1)
		return "", false
	}
	atomic.AddInt64(&c.lru.hits, 1)
	return e.value, true
}

// Set stores converted HTML under its fingerprint.
func (c *RenderCache) Set(fingerprint, html string) {
	c.lru.mu.Lock()
	defer c.lru.mu.Unlock()
	c.lru.put(fingerprint, html, time.Time{})
}

// SetCapacity adjusts the byte cap, evicting immediately if shrinking.
func (c *RenderCache) SetCapacity(maxSize int64) { c.lru.setCapacity(maxSize) }

// Clear drops all entries and resets counters.
func (c *RenderCache) Clear() { c.lru.clear() }

// Stats returns a read-only snapshot of cache counters.
func (c *RenderCache) Stats() Stats { return c.lru.stats() }

// Fingerprint computes the cache key for guarded, reference-resolved text
// under the given feature flags. SHA-256 keeps the key space collision-free
// for differing inputs, unlike a short checksum.
func Fingerprint(guarded string, wikilinks, latex bool) string {
	h := sha256.New()
	h.Write([]byte(guarded))
	flags := byte(0)
	if wikilinks {
		flags |= 1
	}
	if latex {
		flags |= 2
	}
	h.Write([]byte{0, flags})
	return hex.EncodeToString(h.Sum(nil))
}
