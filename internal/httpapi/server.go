package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/config"
	"github.com/oddsforge/propline/internal/metrics"
	"github.com/oddsforge/propline/internal/pipeline"
	"github.com/oddsforge/propline/internal/provider"
	"github.com/oddsforge/propline/internal/store"
	"github.com/oddsforge/propline/internal/taxonomy"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Deps are the services the API surfaces
type Deps struct {
	Cache    *cache.Manager
	Pipeline *pipeline.Pipeline
	Taxonomy *taxonomy.Service
	Registry *provider.Registry
	Store    *store.BufferedWriter
	Metrics  *metrics.Metrics
	Config   config.Config
}

// Server is the read-mostly HTTP API over the canonical prop cache
type Server struct {
	router *mux.Router
	server *http.Server
	deps   Deps
}

// NewServer builds the router and the underlying http.Server
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         deps.Config.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	// Metrics bypasses the JSON middleware; prometheus sets its own type
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/props", s.handleQueryProps).Methods("GET")
	api.HandleFunc("/props/{line_hash}", s.handleGetProp).Methods("GET")
	api.HandleFunc("/games/{game_id}/props", s.handleGameProps).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/taxonomy/reload", s.handleTaxonomyReload).Methods("POST")
	admin.HandleFunc("/taxonomy/misses", s.handleTaxonomyMisses).Methods("GET")
	admin.HandleFunc("/cache/invalidate", s.handleCacheInvalidate).Methods("POST")

	s.router.NotFoundHandler = jsonContentTypeMiddleware(http.HandlerFunc(s.handleNotFound))
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.deps.Config.Server.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Router exposes the router for httptest
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener closes
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
