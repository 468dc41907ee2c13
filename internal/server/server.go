// Package server is the operations HTTP API and resolution stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/betresolver/internal/server/handler"
	"github.com/alanyoungcy/betresolver/internal/server/middleware"
	"github.com/alanyoungcy/betresolver/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RatePerSec  float64
	RateBurst   int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Status *handler.StatusHandler
	Wagers *handler.WagerHandler
	// Metrics is optional.
	Metrics *handler.MetricsHandler
}

// Server is the headless HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in middleware.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(cfg, handlers, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/queue", handlers.Status.GetQueue)
	mux.HandleFunc("GET /api/queue/failed", handlers.Status.ListFailed)
	mux.HandleFunc("GET /api/breakers", handlers.Status.ListBreakers)
	mux.HandleFunc("POST /api/breakers/{name}/reset", handlers.Status.ResetBreaker)

	mux.HandleFunc("GET /api/modes", handlers.Wagers.ListModes)
	mux.HandleFunc("GET /api/modes/{league}/{key}", handlers.Wagers.GetMode)
	mux.HandleFunc("POST /api/modes/{league}/{key}/prepare", handlers.Wagers.PrepareConfig)
	mux.HandleFunc("POST /api/events/{id}/evaluate", handlers.Wagers.EvaluateEvent)
	mux.HandleFunc("POST /api/wagers/{id}/validation", handlers.Wagers.SubmitValidation)

	if handlers.Metrics != nil {
		mux.HandleFunc("GET /api/metrics", handlers.Metrics.GetMetrics)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws/resolutions", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(cfg.RatePerSec, cfg.RateBurst)(h)
	h = middleware.Logging(logger, "/api/health")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
