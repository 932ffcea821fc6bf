// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize repositories
	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Step 3: Initialize services
	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 4: Register jobs
	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
