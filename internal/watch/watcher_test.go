package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livemark/livemark/internal/logging"
)

func TestRelevant(t *testing.T) {
	fw := &FileWatcher{extensions: []string{".md", ".markdown"}}

	cases := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"markdown write", fsnotify.Event{Name: "doc.md", Op: fsnotify.Write}, true},
		{"markdown create", fsnotify.Event{Name: "doc.md", Op: fsnotify.Create}, true},
		{"editor rename-on-save", fsnotify.Event{Name: "doc.markdown", Op: fsnotify.Rename}, true},
		{"uppercase extension", fsnotify.Event{Name: "DOC.MD", Op: fsnotify.Write}, true},
		{"chmod ignored", fsnotify.Event{Name: "doc.md", Op: fsnotify.Chmod}, false},
		{"remove ignored", fsnotify.Event{Name: "doc.md", Op: fsnotify.Remove}, false},
		{"wrong extension", fsnotify.Event{Name: "doc.txt", Op: fsnotify.Write}, false},
		{"swap file", fsnotify.Event{Name: ".doc.md.swp", Op: fsnotify.Write}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fw.relevant(tc.event))
		})
	}
}

func TestRelevant_NoFilterMatchesEverything(t *testing.T) {
	fw := &FileWatcher{}

	assert.True(t, fw.relevant(fsnotify.Event{Name: "anything.txt", Op: fsnotify.Write}))
	assert.False(t, fw.relevant(fsnotify.Event{Name: "anything.txt", Op: fsnotify.Chmod}))
}

func TestSchedule_DebouncesBursts(t *testing.T) {
	fw := &FileWatcher{debounce: 50 * time.Millisecond}

	var fired int64
	handler := func() { atomic.AddInt64(&fired, 1) }

	for i := 0; i < 10; i++ {
		fw.schedule(handler)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt64(&fired) == 1 },
		time.Second, 10*time.Millisecond)

	// No further firings after the burst settles.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestWatchFile_TriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	fw, err := NewFileWatcher(20*time.Millisecond, []string{".md"}, logging.NewMemoryLogger())
	require.NoError(t, err)
	require.NoError(t, fw.WatchFile(target))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired int64
	go fw.Run(ctx, func() { atomic.AddInt64(&fired, 1) })

	// Give the watcher a moment to install before generating events.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(target, []byte("v2"), 0o644))

	require.Eventually(t, func() bool { return atomic.LoadInt64(&fired) >= 1 },
		3*time.Second, 10*time.Millisecond)
}

func TestWatchFile_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	fw, err := NewFileWatcher(20*time.Millisecond, []string{".md"}, logging.NewMemoryLogger())
	require.NoError(t, err)
	require.NoError(t, fw.WatchFile(target))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired int64
	go fw.Run(ctx, func() { atomic.AddInt64(&fired, 1) })

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&fired))
}
