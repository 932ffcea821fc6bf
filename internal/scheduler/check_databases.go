package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// integrityCheckTimeout bounds PRAGMA integrity_check on one database.
const integrityCheckTimeout = 30 * time.Second

// CheckDatabasesJob verifies the integrity of the SQLite databases
type CheckDatabasesJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob. Nil databases are skipped.
func NewCheckDatabasesJob(log zerolog.Logger, databases ...*database.DB) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		log:       log.With().Str("job", "check_databases").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run checks every database and stops at the first corrupted one.
func (j *CheckDatabasesJob) Run() error {
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), integrityCheckTimeout)
		err := db.HealthCheck(ctx)
		cancel()
		if err != nil {
			// Corruption cannot be repaired automatically.
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed its integrity check: %w", db.Name(), err)
		}

		j.log.Debug().Str("database", db.Name()).Msg("Database integrity OK")
	}
	return nil
}
