package optimization

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE optimization_runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			asset_ids TEXT NOT NULL,
			target_return REAL NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			weights TEXT NOT NULL DEFAULT '[]',
			expected_return REAL NOT NULL DEFAULT 0,
			risk REAL NOT NULL DEFAULT 0,
			sharpe_ratio REAL NOT NULL DEFAULT 0,
			solver TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0
		)
	`)
	require.NoError(t, err)
	return db
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t), zerolog.Nop())
	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	run := &Run{
		CreatedAt:      created,
		AssetIDs:       []string{"AAPL", "MSFT"},
		TargetReturn:   0.1,
		StartDate:      "2020-01-01",
		EndDate:        "2024-05-01",
		Status:         RunSucceeded,
		Weights:        []float64{0.25, 0.75},
		ExpectedReturn: 0.18,
		Risk:           0.21,
		SharpeRatio:    0.857,
		Solver:         ActiveSetSolverName,
		DurationMs:     42,
	}
	require.NoError(t, repo.Save(run))
	require.NotEmpty(t, run.ID, "Save should assign an ID")

	got, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *run, *got)
	assert.Equal(t, map[string]float64{"AAPL": 0.25, "MSFT": 0.75}, got.WeightMap())
}

func TestRun_WeightMapCombinesRepeatedIDs(t *testing.T) {
	run := Run{
		AssetIDs: []string{"AAPL", "MSFT", "AAPL"},
		Weights:  []float64{0.2, 0.5, 0.3},
	}

	m := run.WeightMap()

	require.Len(t, m, 2)
	assert.InDelta(t, 0.5, m["AAPL"], 1e-12)
	assert.InDelta(t, 0.5, m["MSFT"], 1e-12)
}

func TestRunRepository_FailedRun(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t), zerolog.Nop())

	run := &Run{
		ID:           "run-1",
		AssetIDs:     []string{"AAPL"},
		TargetReturn: 2,
		StartDate:    "2020-01-01",
		EndDate:      "2024-05-01",
		Status:       RunFailed,
		ErrorKind:    domain.KindInfeasible,
		ErrorMessage: "optimization infeasible: target too high",
	}
	require.NoError(t, repo.Save(run))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.KindInfeasible, got.ErrorKind)
	assert.Empty(t, got.Weights)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRunRepository_GetByIDMissing(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t), zerolog.Nop())

	got, err := repo.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunRepository_ListMostRecentFirst(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t), zerolog.Nop())
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(&Run{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			AssetIDs:  []string{"X"},
			StartDate: "2020-01-01",
			EndDate:   "2024-01-01",
			Status:    RunSucceeded,
		}))
	}

	runs, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := repo.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
