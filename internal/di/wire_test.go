package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
)

const pricesCSV = `date,AAA,BBB
2024-01-02,100,50
2024-01-03,101,52
2024-01-04,102,51
2024-01-05,103,54
2024-01-08,104,53
2024-01-09,105,56
2024-01-10,106,57
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(pricesCSV), 0644))

	return &config.Config{
		DataDir:              dir,
		Port:                 8001,
		PriceSource:          config.PriceSourceCSV,
		PriceCSVPath:         csvPath,
		Solver:               "active_set",
		DefaultTargetReturn:  0.10,
		DefaultStartDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		PriceCacheTTL:        time.Hour,
		CacheCleanupSchedule: "0 0 3 * * *",
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.RunsDB)
	assert.Len(t, container.Databases(), 2)
	assert.NotNil(t, container.PriceCacheRepo)
	assert.NotNil(t, container.RunRepo)
	assert.Nil(t, container.YahooClient)
	assert.IsType(t, &historical.CSVSource{}, container.UpstreamSource)
	assert.IsType(t, &historical.CachedSource{}, container.PriceSource)
	assert.Equal(t, optimization.ActiveSetSolverName, container.Solver.Name())
	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.OptimizerHandler)
	assert.NotNil(t, container.PricesHandler)
	assert.NotNil(t, container.Scheduler)

	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "runs.db"))
}

func TestWire_OptimizeEndToEnd(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	target := 0.5
	resp, err := container.OptimizerService.Optimize(context.Background(), optimization.OptimizeRequest{
		AssetIDs:     []string{"AAA", "BBB"},
		TargetReturn: &target,
		StartDate:    "2024-01-01",
		EndDate:      "2024-02-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)

	sum := 0.0
	for _, w := range resp.OptimizedWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	run, err := container.RunRepo.GetByID(resp.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, optimization.RunSucceeded, run.Status)
}

func TestWire_PenaltySolver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Solver = optimization.PenaltySolverName

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.Equal(t, optimization.PenaltySolverName, container.Solver.Name())
}

func TestWire_UnknownSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.PriceSource = "ftp"

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_BadSchedule(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })
	require.NoError(t, InitializeRepositories(container, zerolog.Nop()))

	cfg.CacheCleanupSchedule = "not a schedule"
	assert.Error(t, RegisterJobs(container, cfg, zerolog.Nop()))
}
