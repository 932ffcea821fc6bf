package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), 0, zerolog.Nop())
	assert.Equal(t, "price_cache_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, 0, zerolog.Nop())

	require.NoError(t, repo.Store(TablePriceTables, "expired", cachedValue{}, -time.Hour))
	require.NoError(t, repo.Store(TablePriceTables, "fresh", cachedValue{}, time.Hour))
	require.NoError(t, repo.Store(TablePriceSeries, "expired", cachedValue{}, -time.Hour))

	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT (SELECT COUNT(*) FROM price_tables) + (SELECT COUNT(*) FROM price_series)").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCleanupJobRun_MissingTableFails(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.Exec("DROP TABLE price_series")
	require.NoError(t, err)

	job := NewCleanupJob(NewRepository(db), 0, zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestCleanupJobRun_KeepsStaleFallback(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TablePriceTables, "yesterday", cachedValue{}, -24*time.Hour))
	require.NoError(t, repo.Store(TablePriceSeries, "last_month", cachedValue{}, -30*24*time.Hour))

	require.NoError(t, NewCleanupJob(repo, StaleGrace, zerolog.Nop()).Run())

	found, err := repo.Get(TablePriceTables, "yesterday", &cachedValue{})
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Get(TablePriceSeries, "last_month", &cachedValue{})
	require.NoError(t, err)
	assert.False(t, found)
}
