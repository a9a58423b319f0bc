package server

import (
	"context"
	"net/http"
	"time"

	"feedbackhub/internal/auth"
	"feedbackhub/internal/cache"
	"feedbackhub/internal/config"
	"feedbackhub/internal/handlers"
	"feedbackhub/internal/livechannel"
	"feedbackhub/internal/realtime"
	"feedbackhub/internal/validation"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Services are the domain components the HTTP surface is built on
type Services struct {
	Conversations handlers.ConversationService
	Authorizer    livechannel.Authorizer
	Projects      auth.ProjectKeyLookup
	Feed          realtime.Feed
}

// Server represents the application server
type Server struct {
	echo     *echo.Echo
	db       *sqlx.DB
	config   *config.Config
	logger   zerolog.Logger
	cache    *cache.Cache
	services Services
	auth     *auth.Manager
}

// New creates a new server instance
func New(cfg *config.Config, db *sqlx.DB, logger zerolog.Logger, services Services) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		logger:   logger,
		cache:    cache.New(cfg.ProjectCacheTTL),
		services: services,
		auth:     auth.NewManager(cfg),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()
	s.echo.Validator = validation.Get()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, auth.APIKeyHeader},
	}))

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	retries := s.config.StoreMaxRetries
	conv := s.services.Conversations
	channel := livechannel.New(s.services.Authorizer, s.services.Feed, s.config.HeartbeatInterval, s.logger)
	resolver := auth.NewProjectResolver(s.services.Projects, s.cache, s.config.ProjectCacheTTL)

	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	api.GET("/", handlers.RootHandler(s.config.Version))

	// Embedded widget, authorized by project API key
	widget := api.Group("/widget", auth.APIKeyMiddleware(resolver, s.logger))
	widget.POST("/threads", handlers.SubmitThreadHandler(conv, s.logger))
	widget.GET("/threads", handlers.ListThreadsHandler(conv, retries, s.logger))
	widget.GET("/threads/:threadId/replies", handlers.ListRepliesHandler(conv, retries, s.logger))
	widget.POST("/threads/:threadId/replies", handlers.AppendReplyHandler(conv, s.logger))
	widget.GET("/threads/:threadId/stream", handlers.StreamHandler(channel, s.logger))

	// Operator dashboard
	api.POST("/admin/login", handlers.AdminLoginHandler(s.auth))
	admin := api.Group("/admin", auth.Middleware(s.auth))
	admin.POST("/logout", handlers.AdminLogoutHandler(s.auth))
	admin.GET("/threads", handlers.ListThreadsHandler(conv, retries, s.logger))
	admin.GET("/threads/:threadId/replies", handlers.ListRepliesHandler(conv, retries, s.logger))
	admin.POST("/threads/:threadId/replies", handlers.OperatorReplyHandler(conv, s.logger))
	admin.GET("/threads/:threadId/stream", handlers.StreamHandler(channel, s.logger))
	admin.PATCH("/threads/:threadId/status", handlers.UpdateStatusHandler(conv, s.logger))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Auth returns the operator session manager
func (s *Server) Auth() *auth.Manager {
	return s.auth
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
