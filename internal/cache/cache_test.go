package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCache_LRUEviction(t *testing.T) {
	t.Run("evicts least recently used first", func(t *testing.T) {
		// Keys are 64-char fingerprints in production; short keys keep the
		// byte math readable here. Each entry is len(key)+len(value) bytes.
		cache := NewRenderCache(50, time.Hour)

		for i := 1; i <= 5; i++ {
			cache.Set(fmt.Sprintf("key%d", i), "value*")
		}
		for i := 1; i <= 5; i++ {
			_, ok := cache.Get(fmt.Sprintf("key%d", i))
			assert.True(t, ok, "key%d should be present", i)
		}

		cache.Set("key6", "value*")

		_, ok := cache.Get("key1")
		assert.False(t, ok, "key1 should be evicted as LRU")
		for i := 2; i <= 6; i++ {
			_, ok := cache.Get(fmt.Sprintf("key%d", i))
			assert.True(t, ok, "key%d should still be present", i)
		}
	})

	t.Run("access refreshes recency", func(t *testing.T) {
		cache := NewRenderCache(40, time.Hour)

		for i := 1; i <= 4; i++ {
			cache.Set(fmt.Sprintf("key%d", i), "value*")
		}
		cache.Get("key1")

		cache.Set("key5", "value*")

		_, ok := cache.Get("key1")
		assert.True(t, ok, "recently accessed key1 should survive")
		_, ok = cache.Get("key2")
		assert.False(t, ok, "key2 should be evicted as LRU")
	})

	t.Run("resident bytes never exceed capacity", func(t *testing.T) {
		cache := NewRenderCache(100, time.Hour)

		for i := 0; i < 50; i++ {
			cache.Set(fmt.Sprintf("key%02d", i), strings.Repeat("x", 20))
		}
		stats := cache.Stats()
		assert.LessOrEqual(t, stats.SizeBytes, int64(100))
		assert.Positive(t, stats.Evictions)
	})
}

func TestRenderCache_SetCapacity(t *testing.T) {
	t.Run("shrinking evicts immediately to convergence", func(t *testing.T) {
		cache := NewRenderCache(1000, time.Hour)
		for i := 0; i < 10; i++ {
			cache.Set(fmt.Sprintf("key%d", i), strings.Repeat("v", 45))
		}
		require.Equal(t, 10, cache.Stats().Entries)

		cache.SetCapacity(100)

		stats := cache.Stats()
		assert.LessOrEqual(t, stats.SizeBytes, int64(100))
		assert.Equal(t, 2, stats.Entries)
	})
}

func TestRenderCache_Stats(t *testing.T) {
	cache := NewRenderCache(1024, time.Hour)

	_, ok := cache.Get("absent")
	require.False(t, ok)
	cache.Set("present", "html")
	_, ok = cache.Get("present")
	require.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1024), stats.MaxBytes)

	// Stats must not count as cache accesses.
	again := cache.Stats()
	assert.Equal(t, stats.Hits, again.Hits)
	assert.Equal(t, stats.Misses, again.Misses)
}

func TestRenderCache_TTLExpiry(t *testing.T) {
	cache := NewRenderCache(1024, time.Millisecond)
	cache.Set("key", "html")
	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get("key")
	assert.False(t, ok, "entry should be expired")
}

func TestRenderCache_Concurrency(t *testing.T) {
	cache := NewRenderCache(4096, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%10)
				cache.Set(key, "html")
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.SizeBytes, int64(4096))
}

func TestFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Fingerprint("text", true, true), Fingerprint("text", true, true))
	})

	t.Run("differs by content", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("a", true, true), Fingerprint("b", true, true))
	})

	t.Run("differs by feature flags", func(t *testing.T) {
		fp := Fingerprint("text", false, false)
		assert.NotEqual(t, fp, Fingerprint("text", true, false))
		assert.NotEqual(t, fp, Fingerprint("text", false, true))
		assert.NotEqual(t, Fingerprint("text", true, false), Fingerprint("text", false, true))
	})

	t.Run("hex sha-256 shape", func(t *testing.T) {
		assert.Len(t, Fingerprint("text", true, true), 64)
	})
}
