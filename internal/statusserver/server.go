package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stomita/salesforce-migration-automatic/internal/config"
)

// Server exposes health and per-run progress endpoints over HTTP for an
// in-process Tracker.
type Server struct {
	tracker *Tracker
	router  *chi.Mux
	server  *http.Server
	cfg     config.ControlServerConfig
}

// NewServer builds a Server routing against tracker, configured from cfg.
func NewServer(tracker *Tracker, cfg config.ControlServerConfig) *Server {
	s := &Server{tracker: tracker, router: chi.NewRouter(), cfg: cfg}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/runs", func(r chi.Router) {
		r.Use(bearerTokenAuth(s.cfg.TokenHash))
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
		r.Get("/{runID}/progress", s.handleRunProgress)
	})
}

// Router returns the underlying chi router, primarily for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening at cfg.Addr(). Blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, ok := s.tracker.Snapshot(runID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunProgress streams run progress as Server-Sent Events until the
// run finishes or the client disconnects.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if run, ok := s.tracker.Snapshot(runID); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	} else if run.Done {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "complete", run)
		return
	}

	updates, ok := s.tracker.Subscribe(runID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	for {
		select {
		case state, open := <-updates:
			if !open {
				return
			}
			event := "progress"
			if state.Done {
				event = "complete"
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, marshalOrEmpty(state))
			flusher.Flush()
			if state.Done {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, marshalOrEmpty(v))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func marshalOrEmpty(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
