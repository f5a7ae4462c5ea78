// Package http implements the REST API of the study-group stats service.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/studygroup-stats/internal/application/command"
	"github.com/alem-hub/studygroup-stats/internal/application/query"
	"github.com/alem-hub/studygroup-stats/internal/interface/http/handlers"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS headers.
	AllowedOrigins []string

	// APIKeyHashes - bcrypt hashes of valid X-API-Key values. Empty disables the check.
	APIKeyHashes []string

	// RateLimit - requests per second per client IP (0 = disabled).
	RateLimit      float64
	RateLimitBurst int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		RateLimitBurst: 20,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Query Handlers (CQRS Read Side)
	GetSharePolicy  *query.GetSharePolicyHandler
	GetDashboard    *query.GetDashboardHandler
	GetLeaderboards *query.GetLeaderboardsHandler
	GetPartners     *query.GetPartnersHandler

	// Command Handlers (CQRS Write Side)
	UpdateSharePolicy  *command.UpdateSharePolicyHandler
	RequestPartnership *command.RequestPartnershipHandler
	RespondPartnership *command.RespondPartnershipHandler

	// Health runs the store pings behind /health. Nil means always healthy.
	Health *handlers.HealthChecker

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.Health == nil {
		s.deps.Health = handlers.NewHealthChecker("")
	}

	s.engine = gin.New()
	s.engine.HandleMethodNotAllowed = true
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// Outermost first: recovery must see panics from everything below it.
	s.engine.Use(
		handlers.RequestID(s.logger),
		handlers.Recovery(s.logger),
		handlers.Logging(s.logger),
	)
	if len(s.config.AllowedOrigins) > 0 {
		s.engine.Use(handlers.CORS(s.config.AllowedOrigins))
	}
	if s.config.RateLimit > 0 {
		s.engine.Use(handlers.NewRateLimiter(s.config.RateLimit, s.config.RateLimitBurst).Middleware())
	}

	s.engine.NoRoute(func(c *gin.Context) {
		handlers.Abort(c, http.StatusNotFound, "NotFound", "route not found")
	})
	s.engine.NoMethod(func(c *gin.Context) {
		handlers.Abort(c, http.StatusMethodNotAllowed, "InvalidInput", "method not allowed")
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Health
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - caller identified by X-User-ID
	// ─────────────────────────────────────────────────────────────────────────
	api := s.engine.Group("/api/v1")
	if len(s.config.APIKeyHashes) > 0 {
		api.Use(handlers.NewAPIKeyAuth(s.config.APIKeyHashes).Middleware())
	}
	api.Use(handlers.RequireUser())

	g := api.Group("/groups/:groupID")
	{
		g.GET("/share-policy", s.handleGetSharePolicy)
		g.PATCH("/share-policy", s.handleUpdateSharePolicy)
		g.GET("/dashboard", s.handleGetDashboard)
		g.GET("/leaderboards", s.handleGetLeaderboards)
		g.POST("/partnerships", s.handleRequestPartnership)
		g.POST("/partnerships/:requesterID/response", s.handleRespondPartnership)
		g.GET("/partners", s.handleGetPartners)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
