// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/allocator/internal/clientdata"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/historical"
	historicalhandlers "github.com/aristath/allocator/internal/modules/historical/handlers"
	"github.com/aristath/allocator/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/allocator/internal/modules/optimization/handlers"
	"github.com/aristath/allocator/internal/observability"
	"github.com/aristath/allocator/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and handed to the server and main.
type Container struct {
	// Databases
	CacheDB *database.DB // price history cache (ephemeral)
	RunsDB  *database.DB // optimization run history

	// Repositories
	PriceCacheRepo *clientdata.Repository
	RunRepo        *optimization.RunRepository

	// Clients
	YahooClient *yahoo.Client // nil unless PRICE_SOURCE=yahoo

	// Price history
	UpstreamSource historical.Source // yahoo, csv or s3
	PriceSource    historical.Source // upstream wrapped in the TTL cache

	// Optimization
	Metrics          *observability.Metrics
	Solver           optimization.Solver
	Optimizer        *optimization.MVOptimizer
	OptimizerService *optimization.OptimizerService
	Defaults         optimization.ServiceDefaults

	// HTTP handlers
	PricesHandler    *historicalhandlers.Handler
	OptimizerHandler *optimizationhandlers.Handler

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// Databases returns every open database, in open order.
func (c *Container) Databases() []*database.DB {
	dbs := make([]*database.DB, 0, 2)
	for _, db := range []*database.DB{c.CacheDB, c.RunsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes all databases. The scheduler must be stopped first.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
