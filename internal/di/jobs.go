package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/clientdata"
	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/reliability"
	"github.com/aristath/augur/internal/scheduler"
)

// RegisterJobs creates the background jobs and schedules them.
// ctx bounds every job run; cancelling it aborts in-flight refreshes.
func RegisterJobs(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Engine == nil {
		return nil, fmt.Errorf("container services must be initialized first")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched

	instances := &JobInstances{
		RefreshDouble:  scheduler.NewRefreshJob(ctx, container.Engine, domain.GameDouble, log),
		RefreshMines:   scheduler.NewRefreshJob(ctx, container.Engine, domain.GameMines, log),
		BacktestDouble: scheduler.NewBacktestJob(ctx, container.Engine, domain.GameDouble, log),
		BacktestMines:  scheduler.NewBacktestJob(ctx, container.Engine, domain.GameMines, log),
		Save:           scheduler.NewSaveJob(container.Engine),
		CacheCleanup:   clientdata.NewCleanupJob(container.CacheRepo, log),
		WALCheckpoint:  scheduler.NewWALCheckpointJob(log, container.CacheDB),
		Maintenance:    reliability.NewMaintenanceJob(container.CacheDB, cfg.DataDir, log),
	}

	schedules := []scheduledJob{
		{cfg.Schedule.Refresh, instances.RefreshDouble},
		{cfg.Schedule.Refresh, instances.RefreshMines},
		{cfg.Schedule.Backtest, instances.BacktestDouble},
		{cfg.Schedule.Backtest, instances.BacktestMines},
		{cfg.Schedule.Save, instances.Save},
		{cfg.Schedule.Cleanup, instances.CacheCleanup},
		{cfg.Schedule.Cleanup, instances.WALCheckpoint},
		{cfg.Schedule.Cleanup, instances.Maintenance},
	}

	if container.BackupService != nil {
		instances.Backup = reliability.NewBackupJob(ctx, container.BackupService, container.EventManager, log)
		schedules = append(schedules, scheduledJob{cfg.Schedule.Backup, instances.Backup})
	}

	for _, s := range schedules {
		if s.expr == "" {
			log.Debug().Str("job", s.job.Name()).Msg("No schedule configured, job disabled")
			continue
		}
		if err := sched.AddJob(s.expr, s.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", s.job.Name(), err)
		}
	}

	return instances, nil
}

type scheduledJob struct {
	expr string
	job  scheduler.Job
}
