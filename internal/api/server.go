// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/crypto-assistant/internal/cache"
	"github.com/crypto-assistant/internal/job"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/metrics"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/service"
)

// Service interfaces for dependency injection and testing

// MarketServiceInterface defines the market read and refresh operations
type MarketServiceInterface interface {
	TopCoins(ctx context.Context, count int) ([]models.CoinSnapshot, bool, error)
	AllCoins(ctx context.Context) ([]models.CoinListing, bool, error)
	Coin(ctx context.Context, coinID string) (*models.CoinSnapshot, bool, error)
	History(ctx context.Context, coinID string, days int) (*models.HistoricalSeries, bool, error)
	Ticks(ctx context.Context, coinID string, hours int) ([]models.PriceTick, error)
	Refresh(ctx context.Context) (*job.RefreshResult, error)
	CacheStats() cache.Stats
}

// ChatServiceInterface defines the chat operation
type ChatServiceInterface interface {
	ProcessQuery(ctx context.Context, query string) (*service.ChatResponse, error)
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	handler     http.Handler
	httpServer  *http.Server
	market      MarketServiceInterface
	chat        ChatServiceInterface
	health      HealthChecker
	config      *ServerConfig
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int
	Burst             int
}

// NewServer creates a new API server instance. health may be nil when the
// stores are in memory.
func NewServer(config *ServerConfig, market MarketServiceInterface, chat ChatServiceInterface, health HealthChecker) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		market:      market,
		chat:        chat,
		health:      health,
		config:      config,
		rateLimiter: NewRateLimiter(config.RequestsPerSecond, config.Burst),
		logger:      logging.WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Order matters: the request id must exist before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(metrics.InstrumentHandler)
	s.router.Use(RateLimitMiddleware(s.rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	// mux middleware only runs on a route match, so preflight requests
	// would be answered 405 before CORS saw them
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)

	// Static segments are registered before {coinId}
	api.HandleFunc("/crypto/top", s.handleTopCoins).Methods(http.MethodGet)
	api.HandleFunc("/crypto/top/{count}", s.handleTopCoins).Methods(http.MethodGet)
	api.HandleFunc("/crypto/all", s.handleAllCoins).Methods(http.MethodGet)
	api.HandleFunc("/crypto/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/crypto/{coinId}", s.handleGetCoin).Methods(http.MethodGet)
	api.HandleFunc("/crypto/{coinId}/history", s.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/crypto/{coinId}/ticks", s.handleGetTicks).Methods(http.MethodGet)

	api.HandleFunc("/chat/query", s.handleChatQuery).Methods(http.MethodPost)
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "crypto-assistant",
		"time":    time.Now().UTC(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Health check failed")
			body["status"] = "unhealthy"
			body["database"] = "unreachable"
			respondJSON(w, http.StatusServiceUnavailable, Envelope{Success: false, Data: body})
			return
		}
		body["database"] = "ok"
	}

	respondJSON(w, http.StatusOK, Envelope{Success: true, Data: body})
}

// handleCacheStats handles GET /api/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Envelope{Success: true, Data: s.market.CacheStats()})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
