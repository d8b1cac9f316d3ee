// Package httpapi exposes the Turnstile gateway over HTTP.
//
// The surface is intentionally small: one proxy route addressed by token,
// a version line, a liveness summary, and the three admin operations.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/turnstile"
)

// Server serves the Turnstile HTTP surface.
type Server struct {
	gw     *turnstile.Gateway
	logger *slog.Logger
	router *gin.Engine
	srv    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server around a started Gateway.
func New(gw *turnstile.Gateway, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	s := &Server{
		gw:     gw,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(requestLogger(s.logger), gin.Recovery())

	router.GET("/version", s.handleVersion)
	router.GET("/status", s.handleStatus)
	router.GET("/stats", s.handleStats)
	router.POST("/addkey", s.handleAddKey)
	router.POST("/removekey", s.handleRemoveKey)
	router.POST("/:token", s.handleProxy)

	s.router = router
	return s
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening on addr. It returns once the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
