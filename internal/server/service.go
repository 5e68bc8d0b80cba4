// Package server provides the HTTP service exposing graph builds, cluster
// settings, and lock management.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/config"
	"github.com/thebtf/notegraph/internal/graph"
	"github.com/thebtf/notegraph/internal/vault"
)

// Service is the notegraph HTTP service.
type Service struct {
	version   string
	config    *config.Config
	engine    *graph.Engine
	registry  *vault.Registry
	router    chi.Router
	server    *http.Server
	startTime time.Time
	ready     atomic.Bool

	// buildLocks serializes graph builds per vault.
	buildMu    sync.Mutex
	buildLocks map[string]*sync.Mutex
}

// New creates a Service wired to the given engine and vault registry.
func New(version string, cfg *config.Config, engine *graph.Engine, registry *vault.Registry) *Service {
	svc := &Service{
		version:    version,
		config:     cfg,
		engine:     engine,
		registry:   registry,
		router:     chi.NewRouter(),
		startTime:  time.Now(),
		buildLocks: make(map[string]*sync.Mutex),
	}
	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

// Router exposes the service's HTTP handler.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Service) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/version", s.handleVersion)

	s.router.Route("/graph", func(r chi.Router) {
		r.Use(s.requireReady)

		r.Post("/data", s.handleGraphData)
		r.Post("/cluster", s.handleClusterNotes)
		r.Get("/stats", s.handleStats)
		r.Delete("/cache", s.handleClearCache)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
		r.Delete("/settings/customizations", s.handleClearCustomizations)

		r.Post("/cluster/create", s.handleCreateCluster)
		r.Put("/cluster/{id}", s.handleUpdateCluster)
		r.Delete("/cluster/{id}", s.handleDeleteCluster)
		r.Get("/clusters", s.handleClusters)

		r.Post("/move-note", s.handleMoveNote)
		r.Delete("/move-note/*", s.handleResetNote)

		r.Post("/lock-note", s.handleLockNote)
		r.Post("/lock-notes-batch", s.handleLockNotesBatch)
		r.Get("/locked-notes", s.handleLockedNotes)

		r.Get("/note-info/*", s.handleNoteInfo)
	})

	s.router.Route("/environments", func(r chi.Router) {
		r.Get("/", s.handleListEnvironments)
		r.Post("/", s.handleAddEnvironment)
		r.Post("/current", s.handleSetCurrentEnvironment)
	})
}

// vaultLock returns the build mutex for a vault path, creating it on first
// use.
func (s *Service) vaultLock(vaultPath string) *sync.Mutex {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	mu, ok := s.buildLocks[vaultPath]
	if !ok {
		mu = &sync.Mutex{}
		s.buildLocks[vaultPath] = mu
	}
	return mu
}

// requireReady rejects requests until the service finished starting.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			respondError(w, http.StatusServiceUnavailable, "service is starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if !s.ready.Load() {
		status = "starting"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		respondError(w, http.StatusServiceUnavailable, "service is starting")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes an error response as {"error": message}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeBody parses a JSON request body into v. An empty body is allowed and
// leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse request body: %w", err)
	}
	return nil
}
