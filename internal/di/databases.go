package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. cache.db - price history cache, safe to delete at any time
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// 2. runs.db - optimization run history
	runsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "runs.db"),
		Profile: database.ProfileStandard,
		Name:    "runs",
	})
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to initialize runs database: %w", err)
	}
	container.RunsDB = runsDB

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema for %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")

	return container, nil
}
