package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livemark/livemark/internal/cache"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newResolver(t *testing.T, dir string) (*Resolver, *cache.IncludeCache) {
	t.Helper()
	includes := cache.NewIncludeCache(1<<20, time.Hour)
	return New(dir, includes), includes
}

func TestResolve_WikiLinks(t *testing.T) {
	r := New(t.TempDir(), nil)

	t.Run("bare target", func(t *testing.T) {
		out := r.Resolve("See [[note-a]] for details")
		assert.Equal(t, "See [note-a](wiki:note-a) for details", out)
	})

	t.Run("labeled target", func(t *testing.T) {
		out := r.Resolve("See [[note-a|the first note]]")
		assert.Equal(t, "See [the first note](wiki:note-a)", out)
	})

	t.Run("target with spaces is escaped", func(t *testing.T) {
		out := r.Resolve("[[my note]]")
		assert.Equal(t, "[my note](wiki:my%20note)", out)
	})

	t.Run("plain text untouched", func(t *testing.T) {
		assert.Equal(t, "no markers here", r.Resolve("no markers here"))
	})
}

func TestResolve_Inclusions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "note-b.md", "Hello")

	r, _ := newResolver(t, dir)

	t.Run("inlines file content", func(t *testing.T) {
		out := r.Resolve("See [[note-a]] and [[!note-b]]")
		assert.Contains(t, out, "[note-a](wiki:note-a)")
		assert.Contains(t, out, "Hello")
		assert.NotContains(t, out, "[[!note-b]]")
	})

	t.Run("title becomes a heading", func(t *testing.T) {
		out := r.Resolve("[[!note-b|Greeting]]")
		assert.Contains(t, out, "### Greeting")
		assert.Contains(t, out, "Hello")
	})

	t.Run("no heading without title", func(t *testing.T) {
		out := r.Resolve("[[!note-b]]")
		assert.NotContains(t, out, "###")
	})

	t.Run("missing target yields inline error", func(t *testing.T) {
		out := r.Resolve("before [[!nope]] after")
		assert.Contains(t, out, "Inclusion error")
		assert.Contains(t, out, "file not found")
		assert.Contains(t, out, "nope")
		assert.Contains(t, out, "before")
		assert.Contains(t, out, "after")
	})

	t.Run("extension preference", func(t *testing.T) {
		writeFile(t, dir, "plain.markdown", "from markdown ext")
		out := r.Resolve("[[!plain]]")
		assert.Contains(t, out, "from markdown ext")
	})

	t.Run("escaping the base directory is rejected", func(t *testing.T) {
		out := r.Resolve("[[!../../etc/passwd]]")
		assert.Contains(t, out, "file not found")
	})
}

func TestResolve_NestedInclusions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "outer.md", "outer start [[!inner]] outer end")
	writeFile(t, dir, "inner.md", "inner content")

	r, _ := newResolver(t, dir)
	out := r.Resolve("top [[!outer]] bottom")

	assert.Contains(t, out, "outer start")
	assert.Contains(t, out, "inner content")
	assert.Contains(t, out, "outer end")
}

func TestResolve_CircularInclusion(t *testing.T) {
	dir := t.TempDir()

	t.Run("direct cycle", func(t *testing.T) {
		writeFile(t, dir, "self.md", "me: [[!self]]")
		r, _ := newResolver(t, dir)

		out := r.Resolve("[[!self]]")
		assert.Contains(t, out, "me:")
		assert.Contains(t, out, "circular inclusion detected")
	})

	t.Run("transitive cycle", func(t *testing.T) {
		writeFile(t, dir, "a.md", "A [[!b]]")
		writeFile(t, dir, "b.md", "B [[!a]]")
		r, _ := newResolver(t, dir)

		out := r.Resolve("[[!a]]")
		assert.Contains(t, out, "A")
		assert.Contains(t, out, "B")
		assert.Contains(t, out, "circular inclusion detected")
	})

	t.Run("diamond sharing is not a cycle", func(t *testing.T) {
		writeFile(t, dir, "left.md", "L [[!shared]]")
		writeFile(t, dir, "right.md", "R [[!shared]]")
		writeFile(t, dir, "shared.md", "shared once")
		r, _ := newResolver(t, dir)

		out := r.Resolve("[[!left]] [[!right]]")
		assert.NotContains(t, out, "circular")
		assert.Equal(t, 2, strings.Count(out, "shared once"))
	})
}

func TestResolve_DocumentOrder(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		writeFile(t, dir, fmt.Sprintf("part%d.md", i), fmt.Sprintf("PART-%d", i))
	}

	r, _ := newResolver(t, dir)
	out := r.Resolve("[[!part1]] [[!part2]] [[!part3]]")

	p1 := strings.Index(out, "PART-1")
	p2 := strings.Index(out, "PART-2")
	p3 := strings.Index(out, "PART-3")
	require.NotEqual(t, -1, p1)
	require.NotEqual(t, -1, p2)
	require.NotEqual(t, -1, p3)
	assert.Less(t, p1, p2)
	assert.Less(t, p2, p3)
	assert.Equal(t, 1, strings.Count(out, "PART-1"))
}

func TestResolve_InclusionCache(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cached.md", "v1")
	r, includes := newResolver(t, dir)

	t.Run("second resolve hits the cache", func(t *testing.T) {
		r.Resolve("[[!cached]]")
		r.Resolve("[[!cached]]")

		stats := includes.Stats()
		assert.Positive(t, stats.Hits)
	})

	t.Run("mtime change forces re-read", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
		future := time.Now().Add(2 * time.Second)
		require.NoError(t, os.Chtimes(path, future, future))

		out := r.Resolve("[[!cached]]")
		assert.Contains(t, out, "v2")
		assert.NotContains(t, out, "v1")
	})

	t.Run("correct with caching disabled", func(t *testing.T) {
		uncached := New(dir, nil)
		out := uncached.Resolve("[[!cached]]")
		assert.Contains(t, out, "v2")
	})
}
