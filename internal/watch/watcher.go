// Package watch feeds the update broadcaster from filesystem events, so the
// preview server is usable standalone without an editor-side integration.
// Changes are debounced: rapid bursts of writes collapse into one trigger.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/livemark/livemark/internal/logging"
)

// FileWatcher watches one directory for markdown changes with debouncing.
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	extensions []string
	log        logging.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewFileWatcher creates a watcher. extensions lists the file suffixes that
// trigger (e.g. ".md"); an empty list triggers on everything.
func NewFileWatcher(debounce time.Duration, extensions []string, log logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher:    watcher,
		debounce:   debounce,
		extensions: extensions,
		log:        log.WithComponent("watch"),
	}, nil
}

// WatchFile watches the directory containing path. Watching the directory
// rather than the file survives editors that replace files on save, and also
// catches edits to included sibling documents.
func (fw *FileWatcher) WatchFile(path string) error {
	dir := filepath.Dir(path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	return nil
}

// Run dispatches debounced change notifications to handler until ctx is
// cancelled.
func (fw *FileWatcher) Run(ctx context.Context, handler func()) {
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			fw.cancelTimer()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			fw.log.Debug(ctx, "file changed", "path", event.Name, "op", event.Op.String())
			fw.schedule(handler)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn(ctx, err, "watcher error")
		}
	}
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	if len(fw.extensions) == 0 {
		return true
	}
	name := strings.ToLower(event.Name)
	for _, ext := range fw.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// schedule arms (or re-arms) the debounce timer.
func (fw *FileWatcher) schedule(handler func()) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, handler)
}

func (fw *FileWatcher) cancelTimer() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
}
