// Package server exposes the demo's HTTP API: starting payments, reporting
// their outcome and accepting payer browsers on the bridge WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/server/handler"
	"github.com/alanyoungcy/webpay/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	PayRateLimit  int    // if zero, POST /api/pay is not rate limited
	PayRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Status *handler.StatusHandler
	Pay    *handler.PayHandler
	// Bridge upgrades payer browsers to the bridge WebSocket.
	Bridge http.HandlerFunc
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	s := &Server{logger: logger}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           Routes(cfg, handlers, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes builds the full handler chain. It is separate from NewServer so tests
// can mount it on an httptest server.
func Routes(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	var startPayment http.Handler = http.HandlerFunc(handlers.Pay.StartPayment)
	if limiter != nil && cfg.PayRateLimit > 0 {
		startPayment = middleware.RateLimit(limiter, cfg.PayRateLimit, cfg.PayRateWindow, logger)(startPayment)
	}
	mux.Handle("POST /api/pay", startPayment)
	mux.HandleFunc("GET /api/pay", handlers.Pay.ListPayments)
	mux.HandleFunc("GET /api/pay/{id}", handlers.Pay.GetPayment)

	// Browsers cannot set headers on a WebSocket handshake, so the bridge is
	// public like the health check.
	if handlers.Bridge != nil {
		mux.HandleFunc("GET /ws/host", handlers.Bridge)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/ws/host")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline. Hijacked bridge connections
// are not tracked here; the hub closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
