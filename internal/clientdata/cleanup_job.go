package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes entries that expired more than the grace window ago
// from all cache tables. It should be scheduled to run daily.
type CleanupJob struct {
	repo  *Repository
	grace time.Duration
	log   zerolog.Logger
}

// NewCleanupJob creates a new cache cleanup job. A negative grace selects
// StaleGrace.
func NewCleanupJob(repo *Repository, grace time.Duration, log zerolog.Logger) *CleanupJob {
	if grace < 0 {
		grace = StaleGrace
	}
	return &CleanupJob{
		repo:  repo,
		grace: grace,
		log:   log.With().Str("job", "price_cache_cleanup").Logger(),
	}
}

// Run executes the cleanup job.
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired(j.grace)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Debug().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Price cache cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "price_cache_cleanup"
}
