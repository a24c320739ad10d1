// Package server exposes the query service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"erp-nlquery/internal/common/auth"
	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/nlquery"
	"erp-nlquery/internal/store"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is the dependency bag passed to New. Schema and Database may be nil.
type Deps struct {
	App      config.AppConfig
	Server   config.ServerConfig
	Service  *nlquery.Service
	Verifier *auth.Verifier
	Schema   *store.SchemaInspector
	Database Pinger
	Logger   logger.Logger
}

type Server struct {
	engine *gin.Engine
	deps   Deps
	logger logger.Logger
}

func New(deps Deps) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("query service is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}

	if deps.App.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine: gin.New(),
		deps:   deps,
		logger: logger.Component(deps.Logger, "http"),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger), corsMiddleware(s.deps.Server.FrontendURL))
	r.NoRoute(notFound)

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(requireAuth(s.deps.Verifier))
	{
		api.POST("/query", s.query)
		api.GET("/intents", s.intents)
		api.GET("/schema", requireRole(models.RolePrincipal, models.RoleAdmin), s.schema)
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.deps.Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := config.GetDuration(cfg.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down HTTP server", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
