// Package server exposes the pipeline over HTTP: uploads, progress, the book
// snapshot and the operator actions.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
	"github.com/thywilljoshua/manuscript2book/internal/sse"
)

// Options configure the HTTP surface.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	pipeline   *pipeline.Orchestrator
	sseHandler *sse.Handler
	opts       Options
	router     *chi.Mux
	logger     *slog.Logger
}

// New creates a Server with all routes configured.
func New(p *pipeline.Orchestrator, sseHandler *sse.Handler, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		pipeline:   p,
		sseHandler: sseHandler,
		opts:       opts,
		router:     chi.NewRouter(),
		logger:     logger,
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
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealthCheck)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.handleStartRun)
			r.Post("/retry", s.handleRetryRun)
			r.Post("/cancel", s.handleCancelRun)
		})
		r.Get("/run", s.handleGetRun)

		r.Route("/book", func(r chi.Router) {
			r.Get("/", s.handleGetBook)
			r.Post("/cover", s.handleRegenerateCover)
			r.Get("/cover/{id}", s.handleGetCover)
			r.Post("/chapters/{id}/illustration", s.handleSuggestIllustration)
			r.Post("/chapters/{id}/rewrite", s.handleRewriteChapter)
		})

		r.Get("/events", s.sseHandler.ServeHTTP)
	})
}

// requestLogger logs every request through the injected slog logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}
