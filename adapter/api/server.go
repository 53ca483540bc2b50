// Package api exposes the controller over HTTP so every mutation goes
// through the single serving process.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

// CorrelationHeader carries the caller's correlation id.
const CorrelationHeader = "X-Correlation-ID"

// Server is the HTTP API server.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	handler *Handler
	token   string
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr string
	// Token, when set, is required as a bearer token on /api routes.
	Token        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration. Proxy
// upgrades pull images, so writes get a generous timeout.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		handler: handler,
		token:   cfg.Token,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handler.Healthz)
	if s.handler.metrics != nil {
		s.mux.Handle("GET /metrics", s.handler.metrics)
	}

	api := func(pattern string, fn http.HandlerFunc) {
		s.mux.Handle(pattern, s.requireToken(fn))
	}

	api("GET /api/v1/status", s.handler.Status)
	api("GET /api/v1/subscribers", s.handler.ListSubscribers)
	api("GET /api/v1/subscribers/{id}", s.handler.GetSubscriber)
	api("GET /api/v1/subscribers/{id}/admission", s.handler.Admission)
	api("POST /api/v1/subscribers/{id}/revoke", s.handler.Revoke)
	api("POST /api/v1/subscribers/{id}/reactivate", s.handler.Reactivate)
	api("POST /api/v1/grants", s.handler.Grant)
	api("GET /api/v1/plans", s.handler.Plans)
	api("PUT /api/v1/sales", s.handler.SetSales)
	api("POST /api/v1/proxy/restart", s.handler.RestartProxy)
	api("POST /api/v1/proxy/upgrade", s.handler.UpgradeProxy)
	api("GET /api/v1/alerts", s.handler.RecentAlerts)
	api("GET /api/v1/jobs", s.handler.ListJobs)
	api("POST /api/v1/jobs/{name}/run", s.handler.RunJob)
}

// Handler returns the root handler with request logging and correlation ids.
func (s *Server) Handler() http.Handler {
	return s.withRequestContext(s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get(CorrelationHeader))
		w.Header().Set(CorrelationHeader, observability.CorrelationIDFromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			observability.StatusKey, rec.status,
			observability.DurationKey, time.Since(start).Milliseconds(),
			observability.CorrelationIDKey, observability.CorrelationIDFromContext(ctx),
		)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	writeJSON(w, apiErr.Status, apiErr)
}

func bearer(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}
