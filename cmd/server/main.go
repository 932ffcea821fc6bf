// Package main is the entry point for the allocator HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/internal/server"
	"github.com/aristath/allocator/pkg/logger"
)

// main wires dependencies, starts the scheduler and the HTTP server, and
// waits for SIGINT or SIGTERM to shut down gracefully.
//
// Databases live in ALLOCATOR_DATA_DIR:
// - cache.db: price history cache (safe to delete)
// - runs.db: optimization run history
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("price_source", cfg.PriceSource).
		Str("solver", cfg.Solver).
		Msg("Starting allocator")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	container.Scheduler.Start()

	databases := make([]server.DatabaseChecker, 0, len(container.Databases()))
	for _, db := range container.Databases() {
		databases = append(databases, db)
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Databases: databases,
		Metrics:   container.Metrics,
		Prices:    container.PricesHandler,
		Optimizer: container.OptimizerHandler,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight requests get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close databases")
	}

	log.Info().Msg("Server stopped")
}
