// Package server exposes the market core over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/server/handler"
	"github.com/outcomelab/marketd/internal/server/middleware"
	"github.com/outcomelab/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminToken  string // if empty, admin routes are unauthenticated

	// RateLimiter, when non-nil, caps trade-mutating requests per client IP.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Lifecycle *handler.LifecycleHandler
	Admin     *handler.AdminHandler
	Custody   *handler.CustodyHandler
	Events    *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server for the market daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, admin auth, rate limiting) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Owner-gated registry administration sits behind the admin token.
	adminAuth := middleware.Auth(cfg.AdminToken)
	admin := func(h http.HandlerFunc) http.Handler {
		return adminAuth(h)
	}

	// Trade-mutating routes optionally sit behind the rate limiter.
	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimiter == nil {
			return h
		}
		limit := cfg.RateLimit
		if limit <= 0 {
			limit = 20
		}
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		return middleware.RateLimit(cfg.RateLimiter, limit, window)(h)
	}

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market creation and reads.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("PUT /api/markets/{id}/metadata", handlers.Markets.UpdateMetadata)

	// Trading and settlement.
	mux.HandleFunc("POST /api/markets/{id}/quote", handlers.Trades.Quote)
	mux.Handle("POST /api/markets/{id}/buy", limited(handlers.Trades.Buy))
	mux.Handle("POST /api/markets/{id}/sell", limited(handlers.Trades.Sell))
	mux.HandleFunc("POST /api/markets/{id}/transfer", handlers.Trades.Transfer)
	mux.HandleFunc("POST /api/markets/{id}/redeem", handlers.Trades.Redeem)
	mux.HandleFunc("GET /api/markets/{id}/positions/{account}", handlers.Trades.GetPosition)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Trades.ListMarketTrades)
	mux.HandleFunc("GET /api/accounts/{account}/trades", handlers.Trades.ListAccountTrades)

	// Lifecycle transitions.
	mux.HandleFunc("POST /api/markets/{id}/close", handlers.Lifecycle.Close)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Lifecycle.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/pause", handlers.Lifecycle.Pause)
	mux.HandleFunc("POST /api/markets/{id}/unpause", handlers.Lifecycle.Unpause)
	mux.Handle("POST /api/markets/{id}/archive", admin(handlers.Lifecycle.Archive))
	mux.HandleFunc("GET /api/markets/{id}/archive", handlers.Lifecycle.ListArchive)
	mux.HandleFunc("GET /api/markets/{id}/archive/trades", handlers.Lifecycle.GetArchivedTrades)

	// Registry administration.
	mux.HandleFunc("GET /api/admin/config", handlers.Admin.GetConfig)
	mux.Handle("PUT /api/admin/fees/creation", admin(handlers.Admin.SetCreationFee))
	mux.Handle("PUT /api/admin/fees/liquidity", admin(handlers.Admin.SetInitialLiquidity))
	mux.Handle("POST /api/admin/withdraw", admin(handlers.Admin.WithdrawFees))
	mux.Handle("POST /api/admin/ownership", admin(handlers.Admin.TransferOwnership))
	mux.Handle("GET /api/admin/audit", admin(handlers.Admin.ListAudit))

	// Collateral custody.
	mux.HandleFunc("POST /api/custody/faucet", handlers.Custody.Faucet)
	mux.HandleFunc("POST /api/custody/approve", handlers.Custody.Approve)
	mux.HandleFunc("GET /api/custody/balance/{account}", handlers.Custody.GetBalance)
	mux.HandleFunc("GET /api/custody/allowance", handlers.Custody.GetAllowance)

	// Durable event replay.
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
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
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
