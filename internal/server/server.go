package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/server/handler"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/server/middleware"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Intents  *handler.IntentHandler
	Auctions *handler.AuctionHandler
	Treasury *handler.TreasuryHandler
	Solvers  *handler.SolverHandler
	Events   *handler.EventHandler
}

// Server is the headless HTTP + WebSocket API for the solver coordination
// service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. Pass a nil limiter to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Intent endpoints.
	mux.HandleFunc("POST /api/intents", handlers.Intents.SubmitIntent)
	mux.HandleFunc("GET /api/intents/{id}", handlers.Intents.GetIntent)
	mux.HandleFunc("POST /api/intents/{id}/resolve", handlers.Intents.ResolveIntent)
	mux.HandleFunc("POST /api/intents/{id}/abandon", handlers.Intents.AbandonIntent)
	mux.HandleFunc("POST /api/intents/batch", handlers.Intents.BatchResolve)

	// Auction endpoints.
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/open", handlers.Auctions.OpenAuction)
	mux.HandleFunc("POST /api/auctions/{id}/commit", handlers.Auctions.Commit)
	mux.HandleFunc("POST /api/auctions/{id}/close", handlers.Auctions.CloseAuction)
	mux.HandleFunc("POST /api/auctions/{id}/reveal", handlers.Auctions.Reveal)
	mux.HandleFunc("POST /api/auctions/{id}/settle", handlers.Auctions.Settle)

	// Treasury endpoints.
	mux.HandleFunc("POST /api/treasury/deposit", handlers.Treasury.Deposit)
	mux.HandleFunc("POST /api/treasury/withdraw", handlers.Treasury.Withdraw)
	mux.HandleFunc("POST /api/treasury/authorize", handlers.Treasury.Authorize)
	mux.HandleFunc("GET /api/treasury/balance/{token}", handlers.Treasury.Balance)

	// Solver reputation and compliance endpoints.
	mux.HandleFunc("GET /api/solvers/{solver}/reputation", handlers.Solvers.GetReputation)
	mux.HandleFunc("POST /api/solvers/{solver}/reputation", handlers.Solvers.AdjustReputation)
	mux.HandleFunc("GET /api/solvers/{solver}/compliance", handlers.Solvers.GetCompliance)
	mux.HandleFunc("POST /api/solvers/{solver}/compliance", handlers.Solvers.SetCompliance)

	// Audit journal and stream replay.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/events/replay", handlers.Events.ReplayEvents)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when a limiter is wired.
	if limiter != nil {
		h = middleware.RateLimit(limiter, 50, time.Second)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
