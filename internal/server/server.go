package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quarry-search/quarry/internal/audit"
	"github.com/quarry-search/quarry/internal/auth"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/ratelimit"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/source"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config    *config.Config
	DB        *db.DB
	Sources   *source.Store
	Documents *document.Store
	Entities  *entity.Store
	Jobs      *jobs.Store
	Scheduler *jobs.Scheduler
	Engine    *search.Engine
	Chat      *search.Chat
	Cache     *search.Cache
	Audit     *audit.Store
	Index     *vectorindex.Index
	AI        search.ProviderSource
}

// Server is the quarry HTTP server.
type Server struct {
	deps       Deps
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all routes mounted.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}
	if s.deps.Config.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", s.handleReady)

	limiter := ratelimit.New(s.deps.Config.Search.RatePerMinute)
	ident := auth.HeaderIdentity{}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.deps.Config.APIToken))

		source.RegisterRoutes(r, s.deps.Sources)
		document.RegisterRoutes(r, s.deps.Documents)
		entity.RegisterRoutes(r, s.deps.Entities)
		jobs.RegisterRoutes(r, s.deps.Jobs, s.deps.Scheduler)
		search.RegisterRoutes(r, s.deps.Engine, s.deps.Chat, s.deps.Cache, ident, limiter.Middleware)
		audit.RegisterRoutes(r, s.deps.Audit)
		registerSettingsRoutes(r, s.deps.DB, s.deps.Audit, ident)
		r.Get("/api/stats", s.handleStats)
	})

	return r
}

// handleReady reports whether the database and the active AI provider
// are reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.deps.DB.PingContext(ctx); err != nil {
		http.Error(w, `{"status":"database unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	provider, err := s.deps.AI.Resolve(ctx)
	if err != nil {
		http.Error(w, `{"status":"ai provider unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if err := provider.CheckHealth(ctx); err != nil {
		http.Error(w, `{"status":"ai provider unhealthy"}`, http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte(`{"status":"ready"}`))
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.deps.Config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Chat responses stream over NDJSON; no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("server: listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
