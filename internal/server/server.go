// Package server exposes the keygate HTTP surface: key management
// endpoints, health, and metrics.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenantsec/keygate/internal/apikey"
	"github.com/tenantsec/keygate/internal/auth"
	"github.com/tenantsec/keygate/internal/config"
	"github.com/tenantsec/keygate/internal/observability"
)

// Server is the keygate HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	logger     observability.Logger
}

// Option is a functional option for the server.
type Option func(*Server)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the HTTP server wired to the given lifecycle manager.
func New(cfg *config.Config, manager *apikey.Manager, metrics *apikey.Metrics, opts ...Option) *Server {
	s := &Server{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(requestLogger(s.logger))

	gate := auth.NewGate(manager, auth.WithGateLogger(s.logger))
	handler := newKeyHandler(manager, s.logger)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
		if metrics != nil {
			gatherers = append(gatherers, metrics.Registry())
		}
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/api-keys")
	// Key creation is public: you need a key to get a key. The tenant is
	// taken from the X-Tenant-Id header instead.
	api.POST("", auth.RequireTenant(), handler.create)

	authed := api.Group("", gate.RequireAuth())
	authed.GET("", handler.list)
	authed.PATCH("/:id/revoke", handler.revoke)
	authed.PATCH("/:id", handler.update)
	authed.DELETE("/:id", handler.remove)

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout.AsDuration(),
		WriteTimeout: cfg.Server.WriteTimeout.AsDuration(),
	}

	return s
}

// Engine returns the underlying gin engine. Used in tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until it is shut down.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", observability.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestIDMiddleware assigns each request an ID, honoring one supplied by
// the client, and echoes it in the response.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// requestLogger logs each completed request.
func requestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.WithContext(c.Request.Context()).Debug("request completed",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
		)
	}
}
