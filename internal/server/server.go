// Package server provides the HTTP API for the investigation assistant.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/internal/keyword"
	"github.com/hyperjump/dcia/internal/maintenance"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/internal/models"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string) (*models.AskResponse, error)
}

// Refresher runs embedding maintenance in the background.
type Refresher interface {
	Trigger(ctx context.Context) (maintenance.Ticket, error)
	Last() (maintenance.Summary, bool)
}

// VectorSearcher finds nodes near a raw query vector.
type VectorSearcher interface {
	Search(ctx context.Context, vec []float32, limit int) ([]models.RetrievalResult, error)
}

// EvidenceLookup serves the crime subtype catalog.
type EvidenceLookup interface {
	Subtypes(ctx context.Context) ([]string, error)
	Lookup(ctx context.Context, subtype, device string) ([]models.EvidenceItem, error)
}

// KeywordSearcher runs name and text lookups.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) (*keyword.Results, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the API delegates to. Keyword and MetricsHandler may be nil.
type Deps struct {
	Store          Pinger
	QA             Asker
	Refresh        Refresher
	Vectors        VectorSearcher
	Evidence       EvidenceLookup
	Keyword        KeywordSearcher
	Recorder       metrics.Recorder
	MetricsHandler http.Handler
}

// Server is the HTTP server for the API.
type Server struct {
	deps        Deps
	config      *config.ServerConfig
	metricsPath string
	logger      *zap.Logger
	recorder    metrics.Recorder

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.ServerConfig, metricsCfg config.MetricsConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := ""
	if metricsCfg.Enabled && deps.MetricsHandler != nil {
		path = metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
	}
	return &Server{
		deps:        deps,
		config:      cfg,
		metricsPath: path,
		logger:      logger,
		recorder:    metrics.OrNop(deps.Recorder),
	}
}

// Handler builds the router with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/ask", s.handleAsk)
	r.Post("/refresh-embeddings", s.handleRefresh)
	r.Get("/refresh-embeddings/status", s.handleRefreshStatus)
	r.Get("/crimesubtypes", s.handleCrimeSubtypes)
	r.Get("/evidence/{subtype}", s.handleEvidence)
	r.Post("/search/similar", s.handleSearchSimilar)
	r.Get("/search", s.handleKeywordSearch)
	if s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.deps.MetricsHandler)
	}
	return r
}

// Start listens on the configured address and serves until Stop is called.
// After Stop it returns http.ErrServerClosed.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
	return srv.Serve(ln)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs each request and records it under its route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.recorder.ObserveHTTP(r.Method, route, status, elapsed.Seconds())
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
