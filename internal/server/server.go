package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/weather-timeline/internal/config"
	"github.com/vzahanych/weather-timeline/internal/server/handlers"
	"github.com/vzahanych/weather-timeline/internal/server/middlewares"
	"github.com/vzahanych/weather-timeline/internal/storage"
	"github.com/vzahanych/weather-timeline/internal/view"
	"github.com/vzahanych/weather-timeline/pkg/telemetry"
	"go.uber.org/zap"
)

type Server struct {
	version     string
	engine      *gin.Engine
	server      *http.Server
	view        *view.View
	gateway     view.Gateway
	store       storage.Store
	metrics     *handlers.MetricsHandler
	httpMetrics *middlewares.HTTPMetrics
	logger      *zap.Logger
}

// NewServer wires the routes. The caller owns the view's lifecycle.
func NewServer(cfg *config.Config, v *view.View, gw view.Gateway, store storage.Store, logger *zap.Logger, tele *telemetry.Telemetry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	httpMetrics := middlewares.NewHTTPMetrics()

	engine.Use(middlewares.RequestIDMiddleware())
	engine.Use(middlewares.LoggingMiddleware(logger))
	engine.Use(middlewares.RecoveryMiddleware(logger, true))
	engine.Use(middlewares.TelemetryMiddleware(logger, tele))
	engine.Use(httpMetrics.Handler())

	s := &Server{
		version:     cfg.Version,
		engine:      engine,
		view:        v,
		gateway:     gw,
		store:       store,
		metrics:     handlers.NewMetricsHandler(logger, httpMetrics),
		httpMetrics: httpMetrics,
		logger:      logger,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	s.setupRoutes()

	return s
}

// Metrics is the recorder the gateway should report provider calls to.
func (s *Server) Metrics() *handlers.MetricsHandler {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	viewHandler := handlers.NewViewHandler(s.view, s.logger)
	timelineHandler := handlers.NewTimelineHandler(s.gateway, s.logger)

	api := s.engine.Group("/api/v1")
	{
		api.GET("/view", viewHandler.GetState)
		api.POST("/view/search", viewHandler.Search)
		api.POST("/view/location", viewHandler.UseLocation)
		api.POST("/view/refresh", viewHandler.Refresh)
		api.PUT("/view/api-key", viewHandler.SaveAPIKey)
		api.POST("/view/theme", viewHandler.ToggleTheme)

		api.GET("/timeline", timelineHandler.GetTimeline)
	}

	health := handlers.NewHealthHandler(s.logger, s.version, s.store)
	s.engine.GET("/health", health.Health)
	s.engine.GET("/health/live", health.Liveness)
	s.engine.GET("/health/ready", health.Readiness)

	s.engine.GET("/metrics", s.metrics.ServeMetrics)
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
