// Package cache provides the two memoization layers of the render pipeline:
// a render cache keyed by content fingerprint and an inclusion cache keyed by
// file path and modification time. Both are byte-bounded with LRU eviction
// and TTL support, and expose read-only statistics for the diagnostics
// endpoint.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a read-only snapshot of one cache's counters and sizes.
type Stats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// entry is one cached value on the LRU doubly-linked list.
type entry struct {
	key        string
	value      string
	modTime    time.Time
	createdAt  time.Time
	accessedAt time.Time
	size       int64

	prev *entry
	next *entry
}

// lru is a byte-bounded LRU store with TTL. It underlies both caches.
// Entries are immutable once stored; replacing a key installs a new entry.
type lru struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int64
	curSize int64
	ttl     time.Duration

	// Dummy head/tail simplify list surgery.
	head *entry
	tail *entry

	hits      int64
	misses    int64
	evictions int64
}

func newLRU(maxSize int64, ttl time.Duration) *lru {
	l := &lru{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		ttl:     ttl,
	}
	l.head = &entry{}
	l.tail = &entry{}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

// get returns the live entry for key, expiring it if past TTL.
// Caller must hold mu.
func (l *lru) get(key string) (*entry, bool) {
	e, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if l.ttl > 0 && time.Since(e.createdAt) > l.ttl {
		l.remove(e)
		return nil, false
	}
	l.moveToFront(e)
	e.accessedAt = time.Now()
	return e, true
}

// put installs a new immutable entry for key, replacing any existing one,
// then evicts from the tail until the cache is under capacity.
// Caller must hold mu.
func (l *lru) put(key, value string, modTime time.Time) {
	if old, ok := l.entries[key]; ok {
		l.remove(old)
	}

	e := &entry{
		key:        key,
		value:      value,
		modTime:    modTime,
		createdAt:  time.Now(),
		accessedAt: time.Now(),
		size:       int64(len(key) + len(value)),
	}
	l.entries[key] = e
	l.curSize += e.size
	l.addToFront(e)
	l.evictOverCapacity()
}

// evictOverCapacity removes least-recently-used entries until resident bytes
// fit under the configured capacity. Caller must hold mu.
func (l *lru) evictOverCapacity() {
	for l.curSize > l.maxSize && l.tail.prev != l.head {
		lruEntry := l.tail.prev
		l.remove(lruEntry)
		atomic.AddInt64(&l.evictions, 1)
	}
}

// setCapacity changes the byte cap, evicting immediately to convergence when
// the new cap is below the currently-resident size.
func (l *lru) setCapacity(maxSize int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxSize = maxSize
	l.evictOverCapacity()
}

// remove unlinks the entry and drops it from the index. Caller must hold mu.
func (l *lru) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(l.entries, e.key)
	l.curSize -= e.size
}

func (l *lru) addToFront(e *entry) {
	e.prev = l.head
	e.next = l.head.next
	l.head.next.prev = e
	l.head.next = e
}

func (l *lru) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	l.addToFront(e)
}

func (l *lru) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
	l.curSize = 0
	l.head.next = l.tail
	l.tail.prev = l.head
	atomic.StoreInt64(&l.hits, 0)
	atomic.StoreInt64(&l.misses, 0)
	atomic.StoreInt64(&l.evictions, 0)
}

// stats reads counters and sizes without touching entry recency,
// so the diagnostics endpoint never mutates cache state.
func (l *lru) stats() Stats {
	l.mu.Lock()
	entries := len(l.entries)
	size := l.curSize
	maxSize := l.maxSize
	l.mu.Unlock()

	return Stats{
		Entries:   entries,
		SizeBytes: size,
		MaxBytes:  maxSize,
		Hits:      atomic.LoadInt64(&l.hits),
		Misses:    atomic.LoadInt64(&l.misses),
		Evictions: atomic.LoadInt64(&l.evictions),
	}
}
