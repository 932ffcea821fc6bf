package scheduler

import (
	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// walFramesWarning is the WAL size (in frames) above which a warning is logged.
const walFramesWarning = 1000

// CheckWALCheckpointsJob runs a passive WAL checkpoint on every database and
// reports files that keep growing.
type CheckWALCheckpointsJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob. Nil databases are skipped.
func NewCheckWALCheckpointsJob(log zerolog.Logger, databases ...*database.DB) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log:       log.With().Str("job", "check_wal_checkpoints").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check WAL checkpoints job
func (j *CheckWALCheckpointsJob) Run() error {
	checkedCount := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to check WAL checkpoint")
			continue
		}

		if frames > walFramesWarning {
			j.log.Warn().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, checkpoint may be needed")
		} else {
			j.log.Debug().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Msg("WAL checkpoint status OK")
		}

		checkedCount++
	}

	j.log.Debug().
		Int("checked", checkedCount).
		Msg("WAL checkpoint check completed")

	return nil
}
