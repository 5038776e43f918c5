package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/livemark/livemark/internal/logging"
	"github.com/livemark/livemark/internal/render"
)

// renderTimeout bounds one pipeline run so a pathological document cannot
// wedge a path's render loop forever.
const renderTimeout = 30 * time.Second

// UpdateRequest is an update submission from the editor integration. Feature
// flags are optional three-state values: nil means "use the configured
// default".
type UpdateRequest struct {
	Content       string  `json:"content"`
	Path          string  `json:"path"`
	ScrollPercent float64 `json:"scroll_percent"`
	Wikilinks     *bool   `json:"wikilinks,omitempty"`
	Latex         *bool   `json:"latex,omitempty"`
}

// UpdateMessage is pushed to every subscriber after a successful render.
type UpdateMessage struct {
	Type          string    `json:"type"`
	HTML          string    `json:"html"`
	ScrollPercent float64   `json:"scroll_percent"`
	SourcePath    string    `json:"source_path"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives finished render broadcasts. The Hub satisfies it.
type Sink interface {
	Broadcast(message []byte)
}

// submission is one accepted update, tagged with a monotonic id so stale
// render results can be recognized and discarded.
type submission struct {
	id            uint64
	content       string
	scrollPercent float64
	flags         render.Flags
}

// docState is the per-path render state machine: Idle (no goroutine) or
// Rendering (one goroutine looping over the pending slot).
type docState struct {
	rendering bool
	pending   *submission
	latestID  uint64
	lastStart time.Time
}

// Broadcaster accepts update submissions, drives the render pipeline, and
// pushes results to subscribers. Rapid submissions for one path are coalesced
// into the pending slot: only the most recent is guaranteed to render
// (last-write-wins), and a render finishing after a newer submission was
// accepted is discarded rather than broadcast.
type Broadcaster struct {
	pipeline *render.Pipeline
	sink     Sink
	baseDir  string
	defaults render.Flags

	// minInterval is an optional debounce between render starts for one
	// path. Zero disables it; correctness does not depend on it.
	minInterval time.Duration

	log logging.Logger

	mu     sync.Mutex
	docs   map[string]*docState
	nextID uint64

	wg sync.WaitGroup
}

// NewBroadcaster wires a Broadcaster over the pipeline and delivery sink.
func NewBroadcaster(pipeline *render.Pipeline, sink Sink, baseDir string, defaults render.Flags, minInterval time.Duration, log logging.Logger) *Broadcaster {
	return &Broadcaster{
		pipeline:    pipeline,
		sink:        sink,
		baseDir:     baseDir,
		defaults:    defaults,
		minInterval: minInterval,
		log:         log.WithComponent("broadcast"),
		docs:        make(map[string]*docState),
	}
}

// Submit accepts an update for rendering. It never blocks on rendering or
// delivery: the result reaches subscribers asynchronously.
func (b *Broadcaster) Submit(req UpdateRequest) bool {
	flags := b.defaults
	if req.Wikilinks != nil {
		flags.Wikilinks = *req.Wikilinks
	}
	if req.Latex != nil {
		flags.Latex = *req.Latex
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &submission{
		id:            b.nextID,
		content:       req.Content,
		scrollPercent: req.ScrollPercent,
		flags:         flags,
	}

	state, ok := b.docs[req.Path]
	if !ok {
		state = &docState{}
		b.docs[req.Path] = state
	}

	// Coalesce: an unstarted earlier submission is superseded and dropped.
	state.pending = sub
	state.latestID = sub.id

	if !state.rendering {
		state.rendering = true
		b.wg.Add(1)
		go b.renderLoop(req.Path, state)
	}
	return true
}

// Wait blocks until all in-flight render loops have drained. For tests and
// shutdown.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

// renderLoop drains the pending slot for one path. A single loop per path
// keeps per-path broadcasts in submission order.
func (b *Broadcaster) renderLoop(path string, state *docState) {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		sub := state.pending
		state.pending = nil
		if sub == nil {
			state.rendering = false
			b.mu.Unlock()
			return
		}
		sinceStart := time.Since(state.lastStart)
		b.mu.Unlock()

		if b.minInterval > 0 && sinceStart < b.minInterval {
			time.Sleep(b.minInterval - sinceStart)
		}

		b.mu.Lock()
		state.lastStart = time.Now()
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
		result, err := b.pipeline.Render(ctx, sub.content, b.baseDir, sub.flags)
		cancel()

		b.mu.Lock()
		stale := sub.id != state.latestID
		b.mu.Unlock()

		if stale {
			// Superseded while rendering: discard silently, the newer
			// submission's result wins.
			continue
		}
		if err != nil {
			b.log.Error(context.Background(), err, "render aborted", "path", path)
			continue
		}

		message, err := json.Marshal(UpdateMessage{
			Type:          "update",
			HTML:          result.HTML,
			ScrollPercent: sub.scrollPercent,
			SourcePath:    path,
			Timestamp:     time.Now(),
		})
		if err != nil {
			b.log.Error(context.Background(), err, "encoding update message", "path", path)
			continue
		}
		b.sink.Broadcast(message)
	}
}
