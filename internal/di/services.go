package di

import (
	"context"
	"fmt"

	"github.com/aristath/allocator/internal/clientdata"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/historical"
	historicalhandlers "github.com/aristath/allocator/internal/modules/historical/handlers"
	"github.com/aristath/allocator/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/allocator/internal/modules/optimization/handlers"
	"github.com/aristath/allocator/internal/observability"
	"github.com/rs/zerolog"
)

// yahooFetchConcurrency bounds parallel per-asset chart requests.
const yahooFetchConcurrency = 4

// InitializeRepositories creates repositories over the opened databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.CacheDB == nil || container.RunsDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	container.PriceCacheRepo = clientdata.NewRepository(container.CacheDB.Conn())
	container.RunRepo = optimization.NewRunRepository(container.RunsDB.Conn(), log)

	return nil
}

// InitializeServices builds the price source chain, the optimizer and the
// HTTP handlers.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	upstream, err := newUpstreamSource(container, cfg, log)
	if err != nil {
		return err
	}
	container.UpstreamSource = upstream
	container.PriceSource = historical.NewCachedSource(upstream, container.PriceCacheRepo, cfg.PriceCacheTTL, log)

	solver, err := optimization.NewSolver(cfg.Solver)
	if err != nil {
		return fmt.Errorf("failed to create solver: %w", err)
	}
	container.Solver = solver

	container.Metrics = observability.NewMetrics()
	observer := observability.Multi{
		observability.NewLogObserver(log),
		observability.NewMetricsObserver(container.Metrics, solver.Name()),
	}
	container.Optimizer = optimization.NewMVOptimizer(solver, observer)

	container.Defaults = optimization.ServiceDefaults{
		TargetReturn: cfg.DefaultTargetReturn,
		StartDate:    cfg.DefaultStartDate,
	}
	container.OptimizerService = optimization.NewOptimizerService(
		container.PriceSource,
		container.Optimizer,
		container.RunRepo,
		container.Defaults,
		log,
	)

	container.PricesHandler = historicalhandlers.NewHandler(container.PriceSource, cfg.DefaultStartDate, log)
	container.OptimizerHandler = optimizationhandlers.NewHandler(
		container.OptimizerService,
		container.RunRepo,
		container.Defaults,
		log,
	)

	log.Info().
		Str("price_source", cfg.PriceSource).
		Str("solver", solver.Name()).
		Msg("Services initialized")

	return nil
}

func newUpstreamSource(container *Container, cfg *config.Config, log zerolog.Logger) (historical.Source, error) {
	switch cfg.PriceSource {
	case config.PriceSourceYahoo:
		container.YahooClient = yahoo.NewClient(yahoo.Config{
			BaseURL:           cfg.Yahoo.BaseURL,
			RequestsPerSecond: cfg.Yahoo.RequestsPerSecond,
		}, log)
		client := historical.NewCachedHistoryClient(container.YahooClient, container.PriceCacheRepo, cfg.PriceCacheTTL, log)
		return historical.NewYahooSource(client, yahooFetchConcurrency, log), nil

	case config.PriceSourceCSV:
		return historical.NewCSVSource(cfg.PriceCSVPath), nil

	case config.PriceSourceS3:
		source, err := historical.NewS3Source(context.Background(), historical.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 price source: %w", err)
		}
		return source, nil

	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.PriceSource)
	}
}
