// Package web implements the web server for the job tracking service
package web

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"jobtrack/app/store"
)

//go:embed static/*
var staticFS embed.FS

// Jobs defines the repository operations the web server needs.
type Jobs interface {
	All(ctx context.Context) map[string]store.Job
	Get(ctx context.Context, id string) (store.Job, bool)
	Create(ctx context.Context, j store.Job) (store.Job, error)
	Update(ctx context.Context, id string, j store.Job) (store.Job, error)
	Delete(ctx context.Context, id string) bool
	PurgeExpired(ctx context.Context) error
}

// Server represents the web server
type Server struct {
	jobs    Jobs
	version string
}

// Config holds server configuration
type Config struct {
	Jobs    Jobs
	Version string
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("web server initialization failed: Jobs repository is required")
	}
	return &Server{jobs: cfg.Jobs, version: cfg.Version}, nil
}

// Run starts the web server and blocks until ctx is cancelled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("jobtrack", "jobtrack", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		corsHeaders,
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache) // prevent caching of API responses

		api.HandleFunc("GET /jobs", s.handleListJobs)
		api.HandleFunc("POST /jobs", s.handleCreateJob)
		api.HandleFunc("GET /jobs/{id}", s.handleGetJob)
		api.HandleFunc("PUT /jobs/{id}", s.handleUpdateJob)
		api.HandleFunc("DELETE /jobs/{id}", s.handleDeleteJob)
		api.HandleFunc("POST /cleanup", s.handleCleanup)
	})

	// catch-all: static page at the root, JSON 404 for everything unmatched
	router.HandleFunc("/", s.handleStatic)

	return router
}

// corsHeaders adds permissive CORS headers to every response and completes
// preflight requests without routing them
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleStatic serves the embedded page at the root and answers a JSON 404
// for any request that didn't match a route
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	atRoot := r.URL.Path == "/" || r.URL.Path == "/index.html"
	if atRoot && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		s.serveAsset(w, "index.html")
		return
	}
	s.writeJSONError(w, http.StatusNotFound, "Not found")
}

// serveAsset writes an embedded static file with the content type derived
// from its extension
func (s *Server) serveAsset(w http.ResponseWriter, name string) {
	data, err := staticFS.ReadFile("static/" + name)
	if err != nil {
		log.Printf("[WARN] static asset %s not found: %v", name, err)
		s.writeJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Content-Type", contentType(name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(name, ".js"):
		return "text/javascript"
	case strings.HasSuffix(name, ".css"):
		return "text/css"
	default:
		return "text/plain"
	}
}
