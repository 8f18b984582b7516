package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vzahanych/weather-timeline/internal/config"
	"github.com/vzahanych/weather-timeline/internal/gateway"
	"github.com/vzahanych/weather-timeline/internal/server"
	"github.com/vzahanych/weather-timeline/internal/storage"
	"github.com/vzahanych/weather-timeline/internal/view"
	"go.uber.org/zap"
)

func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the weather timeline server",
		Long:  `Start the HTTP server exposing the view, the stateless timeline lookup and the health and metrics endpoints.`,
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()

	log.Info("Starting weather timeline server",
		zap.String("config_path", configPath),
		zap.String("environment", cfg.Environment),
		zap.Bool("telemetry_enabled", cfg.Telemetry.Enabled),
		zap.Int("server_port", cfg.Server.Port))

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	gw := gateway.New(cfg.Weather, log, tele)
	v := view.New(gw, store, view.OptionsFromConfig(cfg.View), log, tele)

	srv := server.NewServer(cfg, v, gw, store, log, tele)
	gw.SetMetricsRecorder(srv.Metrics())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	v.Init(cmd.Context())
	if err := v.Start(cmd.Context()); err != nil {
		log.Warn("Auto-refresh disabled", zap.Error(err))
	}

	var runErr error
	select {
	case runErr = <-errChan:
		log.Error("Server error", zap.Error(runErr))
	case <-cmd.Context().Done():
		log.Info("Shutting down server")
	}

	v.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if err := store.Close(); err != nil {
		log.Warn("Failed to close storage", zap.Error(err))
	}
	if err := tele.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down telemetry", zap.Error(err))
	}

	log.Info("Server shutdown complete")
	return runErr
}
