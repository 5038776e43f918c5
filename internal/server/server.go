// Package server hosts the preview service: the HTTP surface accepting
// update submissions, the websocket subscriber registry, and the update
// broadcaster that drives the render pipeline.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/livemark/livemark/internal/cache"
	"github.com/livemark/livemark/internal/config"
	"github.com/livemark/livemark/internal/convert"
	"github.com/livemark/livemark/internal/logging"
	"github.com/livemark/livemark/internal/render"
	"github.com/livemark/livemark/internal/watch"
)

// PreviewServer is the explicitly constructed service object owning both
// caches, the render pipeline, the subscriber registry, and the broadcaster.
// Handlers receive it by reference; there is no ambient global state.
type PreviewServer struct {
	config      *config.Config
	log         logging.Logger
	renders     *cache.RenderCache
	includes    *cache.IncludeCache
	pipeline    *render.Pipeline
	hub         *Hub
	broadcaster *Broadcaster

	httpServer   *http.Server
	serverMu     sync.Mutex
	shutdownOnce sync.Once
}

// New wires a PreviewServer from configuration.
func New(cfg *config.Config, log logging.Logger) (*PreviewServer, error) {
	baseDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining base directory: %w", err)
	}

	renders := cache.NewRenderCache(cfg.Cache.RenderMaxBytes, cfg.Cache.TTL)
	includes := cache.NewIncludeCache(cfg.Cache.InclusionMaxBytes, cfg.Cache.TTL)

	var sanitizer *convert.Sanitizer
	if cfg.Preview.Sanitize {
		sanitizer = convert.NewSanitizer()
	}

	pipeline := render.NewPipeline(renders, includes, convert.NewGoldmarkConverter(), sanitizer, log)
	hub := NewHub(log)

	defaults := render.Flags{
		Wikilinks: cfg.Preview.Wikilinks,
		Latex:     cfg.Preview.Latex,
	}
	broadcaster := NewBroadcaster(pipeline, hub, baseDir, defaults, cfg.Watch.Debounce, log)

	return &PreviewServer{
		config:      cfg,
		log:         log.WithComponent("server"),
		renders:     renders,
		includes:    includes,
		pipeline:    pipeline,
		hub:         hub,
		broadcaster: broadcaster,
	}, nil
}

// Broadcaster exposes the update broadcaster for editor-side integrations
// embedded in the same process.
func (s *PreviewServer) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Start runs the HTTP server until ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.serverMu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMu.Unlock()

	if s.config.TargetFile != "" && s.config.Watch.Enabled {
		if err := s.watchTarget(ctx); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.log.Info(ctx, "preview server listening", "addr", addr)

	if s.config.Server.Open {
		go openBrowser(fmt.Sprintf("http://%s/", addr))
	}

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and disconnects all subscribers. Safe to
// call more than once.
func (s *PreviewServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.serverMu.Lock()
		srv := s.httpServer
		s.serverMu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.log.Warn(shutdownCtx, err, "http shutdown")
			}
		}
		s.hub.Shutdown()
	})
}

// watchTarget renders the target file immediately, then re-submits it to the
// broadcaster whenever it or a sibling markdown file changes.
func (s *PreviewServer) watchTarget(ctx context.Context) error {
	target := s.config.TargetFile

	submit := func() {
		data, err := os.ReadFile(target)
		if err != nil {
			s.log.Error(ctx, err, "reading target file", "path", target)
			return
		}
		s.broadcaster.Submit(UpdateRequest{
			Content: string(data),
			Path:    target,
		})
	}

	watcher, err := watch.NewFileWatcher(s.config.Watch.Debounce, s.config.Watch.Extensions, s.log)
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.WatchFile(target); err != nil {
		return fmt.Errorf("watching %s: %w", target, err)
	}

	go watcher.Run(ctx, submit)
	submit()
	return nil
}

// handleIndex serves the preview page shell.
func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(previewPage)
}

// handleWebSocket upgrades a viewer connection and hands it to the Hub.
func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.Server.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade")
		return
	}

	s.hub.serve(r.Context(), conn)
}

// checkOrigin validates the request origin against the configured allow list.
// Connections with no Origin header (non-browser clients) are allowed.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if originURL.Host == allowed {
			return true
		}
	}
	return false
}

// handleUpdate accepts an update submission and acknowledges it. Rendered
// content reaches viewers asynchronously over the subscription channel.
func (s *PreviewServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "invalid request body",
		})
		return
	}
	if req.Path == "" {
		req.Path = "untitled"
	}

	s.broadcaster.Submit(req)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// statsResponse is the read-only diagnostics snapshot.
type statsResponse struct {
	RenderCache    cache.Stats `json:"render_cache"`
	InclusionCache cache.Stats `json:"inclusion_cache"`
	Subscribers    int         `json:"subscribers"`
}

// handleStats reports cache hit/miss counts and sizes. It never mutates
// cache state.
func (s *PreviewServer) handleStats(w http.ResponseWriter, r *http.Request) {
	renderStats, includeStats := s.pipeline.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		RenderCache:    renderStats,
		InclusionCache: includeStats,
		Subscribers:    s.hub.Count(),
	})
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// openBrowser launches the default browser at url, best effort.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
