package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	db, err := New(Config{Path: path, Profile: ProfileCache, Name: "cache"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "cache", db.Name())
	assert.Equal(t, ProfileCache, db.Profile())
	assert.Equal(t, path, db.Path())

	require.NoError(t, db.Migrate())
	// Applying twice is harmless.
	require.NoError(t, db.Migrate())

	var count int
	err = db.Conn().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('price_tables', 'price_series')").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNew_DefaultsToStandardProfile(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "runs.db"), Name: "runs"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	require.NoError(t, db.Migrate())
	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.QuickCheck(context.Background()))
	require.NoError(t, db.WALCheckpoint(""))
}

func TestMigrate_UnknownDatabase(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "other.db"), Name: "other"})
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, db.Migrate())
}

func TestBuildConnectionString(t *testing.T) {
	cache := buildConnectionString("/tmp/x.db", ProfileCache)
	assert.Contains(t, cache, "journal_mode(WAL)")
	assert.Contains(t, cache, "synchronous(OFF)")

	standard := buildConnectionString("/tmp/x.db", ProfileStandard)
	assert.Contains(t, standard, "synchronous(NORMAL)")
	assert.Contains(t, standard, "foreign_keys(1)")
}

func TestBuildConnectionString_ProfileLayout(t *testing.T) {
	testCases := []struct {
		profile DatabaseProfile
		want    string
	}{
		{ProfileCache, "/tmp/cache.db?_pragma=journal_mode(WAL)&_pragma=synchronous(OFF)&_pragma=auto_vacuum(FULL)&_pragma=temp_store(MEMORY)" +
			"&_pragma=foreign_keys(1)&_pragma=wal_autocheckpoint(1000)&_pragma=cache_size(-64000)"},
		{ProfileStandard, "/tmp/cache.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=auto_vacuum(INCREMENTAL)&_pragma=temp_store(MEMORY)" +
			"&_pragma=foreign_keys(1)&_pragma=wal_autocheckpoint(1000)&_pragma=cache_size(-64000)"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.profile), func(t *testing.T) {
			assert.Equal(t, tc.want, buildConnectionString("/tmp/cache.db", tc.profile))
		})
	}
	assert.Len(t, profilePragmas, 2)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "runs.db"), Name: "runs"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("INSERT INTO optimization_runs (id, created_at, asset_ids, target_return, start_date, end_date, status) VALUES ('r1', 0, '[]', 0.1, '', '', 'success')")
		require.NoError(t, execErr)
		return assert.AnError
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM optimization_runs").Scan(&count))
	assert.Equal(t, 0, count)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}
