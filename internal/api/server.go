// Package api exposes import submission, job polling and live progress over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/importer"
	"github.com/sells-group/places-import/internal/model"
	"github.com/sells-group/places-import/internal/ratelimit"
	"github.com/sells-group/places-import/internal/store"
	"github.com/sells-group/places-import/pkg/geocode"
)

// Importer starts jobs and reports their state. *importer.Service
// satisfies it.
type Importer interface {
	Submit(ctx context.Context, req importer.Request) (string, error)
	Status(id string) (model.JobStatus, error)
	Jobs(userID string) []model.JobStatus
}

// Subscriber streams job updates. *importer.Broadcaster satisfies it.
type Subscriber interface {
	Subscribe(jobID string) (<-chan model.JobStatus, func())
}

// QueueStatuser reports lookup queue occupancy. *geocode.Queue satisfies it.
type QueueStatuser interface {
	Status() geocode.QueueStatus
}

// ListReader reads persisted lists.
type ListReader interface {
	ListsByUser(ctx context.Context, userID string) ([]store.List, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Importer Importer
	Events   Subscriber
	Queue    QueueStatuser
	Lists    ListReader
	// Limiter throttles submissions per user. Nil disables throttling.
	Limiter *ratelimit.KeyedRateLimiter
}

// Config holds HTTP-level settings.
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	CORSOrigins    []string
	// Heartbeat is the idle interval between keep-alive comments on event
	// streams. Zero uses 30s.
	Heartbeat time.Duration
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	deps   Deps
	cfg    Config
	router *chi.Mux
}

// NewServer creates a Server with all routes configured.
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID", "Last-Event-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.handleSubmitImport)
			r.Get("/{id}", s.handleGetImport)
			r.Get("/{id}/events", s.handleImportEvents)
		})
		r.Get("/users/{userID}/imports", s.handleJobsByUser)
		r.Get("/users/{userID}/lists", s.handleListsByUser)
		r.Get("/geocode/status", s.handleGeocodeStatus)
	})
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
