package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/clientdata"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/rs/zerolog"
)

// Maintenance schedules (cron with seconds)
const (
	walCheckpointSchedule = "0 */30 * * * *"
	databaseCheckSchedule = "0 30 4 * * *"
)

// RegisterJobs creates the scheduler and registers the maintenance jobs.
// The scheduler is returned unstarted.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.PriceCacheRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	sched := scheduler.New(log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.CacheCleanupSchedule, clientdata.NewCleanupJob(container.PriceCacheRepo, cfg.PriceCacheStaleGrace, log)},
		{walCheckpointSchedule, scheduler.NewCheckWALCheckpointsJob(log, container.Databases()...)},
		{databaseCheckSchedule, scheduler.NewCheckDatabasesJob(log, container.Databases()...)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}

	container.Scheduler = sched
	return nil
}
