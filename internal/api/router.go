// Package api exposes the video pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/paper-video/internal/observability"
)

// Config holds HTTP surface settings
type Config struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	OutputName     string
	WorkDir        string
}

// NewRouter creates the API router with all routes configured.
// runs may be nil when run history is disabled.
func NewRouter(logger *observability.Logger, pool *RunnerPool, runs RunLister, cfg Config) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"paper-video"}`))
	})

	videos := NewVideoHandler(logger, pool, cfg)
	history := NewRunsHandler(logger, runs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/videos", videos.Create)
		r.Get("/runs", history.List)
	})

	return r
}

// requestLogger logs each request through the structured logger
func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", chimiddleware.GetReqID(r.Context())).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("HTTP request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
