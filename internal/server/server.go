// Package server exposes the HTTP + WebSocket monitoring API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
	"github.com/alanyoungcy/rebalancer/internal/server/handler"
	"github.com/alanyoungcy/rebalancer/internal/server/middleware"
	"github.com/alanyoungcy/rebalancer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered, so the monitor mode can run without a
// live trading manager.
type Handlers struct {
	Health  *handler.HealthHandler
	Trades  *handler.TradeHandler
	Records *handler.RecordHandler
	Breaker *handler.BreakerHandler
}

// Server is the monitoring HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// (rate limiting, auth, logging, CORS) applied. limiter may be nil to skip
// rate limiting.
func New(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required; registered outside the auth chain
	// would complicate the middleware stack, so auth also covers it when
	// an API key is set).
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades", handlers.Trades.ListOpen)
	}

	if handlers.Records != nil {
		mux.HandleFunc("GET /api/records", handlers.Records.ListRecent)
		mux.HandleFunc("GET /api/records/{id}", handlers.Records.GetRecord)
	}

	if handlers.Breaker != nil {
		mux.HandleFunc("GET /api/breaker", handlers.Breaker.GetState)
		mux.HandleFunc("POST /api/breaker/reset", handlers.Breaker.Reset)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, 60, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
