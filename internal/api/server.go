// Package api exposes the HTTP status interface for the engine.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/engine"
	"github.com/JakeFAU/crawlkit/internal/metrics"
)

// SnapshotProvider is the read-only view of the engine the server needs.
type SnapshotProvider interface {
	Snapshot() engine.Snapshot
}

// Server serves health, status, and Prometheus metrics endpoints.
type Server struct {
	router chi.Router
	eng    SnapshotProvider
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng SnapshotProvider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		eng:    eng,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/statusz", s.statusz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked", zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
