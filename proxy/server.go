// Package proxy is the HTTP boundary used by desktop GIS applications. It
// maps requests onto Job Manager operations and read-only project
// introspection; every request is handled independently against shared
// state.
package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geoengine/geoengine/config"
	"github.com/geoengine/geoengine/engine"
	"github.com/geoengine/geoengine/jobs"
)

// Version is stamped by the build; reported in the health payload.
var Version = "dev"

// Config holds server configuration.
type Config struct {
	Addr       string
	MaxWorkers int
}

// Server is the HTTP proxy service.
type Server struct {
	manager   *jobs.Manager
	settings  *config.Settings
	probe     engine.GPUProbe
	cfg       Config
	startedAt time.Time
}

// New creates a Server around an already constructed Job Manager and
// settings store.
func New(manager *jobs.Manager, settings *config.Settings, probe engine.GPUProbe, cfg Config) *Server {
	return &Server{
		manager:  manager,
		settings: settings,
		probe:    probe,
		cfg:      cfg,
	}
}

// Start registers routes and serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: corsMiddleware(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("proxy service started", "addr", s.cfg.Addr, "max_workers", s.cfg.MaxWorkers)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down proxy service")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with 5s timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	return nil
}

// registerRoutes adds all API routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/output", s.handleJobOutput)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{name}", s.handleGetProject)
	mux.HandleFunc("GET /api/projects/{name}/tools", s.handleProjectTools)
}

// corsMiddleware adds permissive CORS headers so local GIS plugins can call
// the API from embedded web views.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
