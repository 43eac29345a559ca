// Package main is the entry point of the tunefolio HTTP service.
// It keeps the trade ledger in sync with the broker, serves realised P&L
// reports and runs the background jobs (sync, backups, maintenance).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tunefolio/internal/config"
	"github.com/aristath/tunefolio/internal/di"
	"github.com/aristath/tunefolio/internal/server"
	"github.com/aristath/tunefolio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("version", server.Version).Msg("Starting tunefolio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Databases, services and jobs
	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if !container.KiteClient.HasCredentials() {
		log.Warn().Msg("Kite credentials not configured - live trade sync will be skipped")
	}

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		TradebookDir: cfg.TradebookDir,
		Container:    container,
		Jobs:         jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	// Let running jobs finish before the databases close
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
