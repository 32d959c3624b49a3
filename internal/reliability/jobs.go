package reliability

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/scheduler/base"
)

const backupTimeout = 10 * time.Minute

// BackupJob uploads a data directory archive and rotates old ones
type BackupJob struct {
	base.JobBase
	ctx     context.Context
	service *BackupService
	em      *events.Manager
	log     zerolog.Logger
}

// NewBackupJob creates a backup job. em may be nil.
func NewBackupJob(ctx context.Context, service *BackupService, em *events.Manager, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		ctx:     ctx,
		service: service,
		em:      em,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run uploads and rotates. Rotation failures are logged only.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(j.ctx, backupTimeout)
	defer cancel()

	info, err := j.service.CreateAndUpload(ctx)
	if err != nil {
		if j.em != nil {
			j.em.EmitError("reliability", err, map[string]interface{}{"job": j.Name()})
		}
		return fmt.Errorf("backup failed: %w", err)
	}

	if j.em != nil {
		j.em.EmitTyped("reliability", &events.BackupCompletedData{Key: info.Key, SizeBytes: info.SizeBytes})
	}

	if _, err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// MaintenanceJob checks database integrity and free disk space
type MaintenanceJob struct {
	base.JobBase
	db      *database.DB
	dataDir string
	usage   func(path string) (*disk.UsageStat, error)
	log     zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		usage:   disk.Usage,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the integrity and disk checks
func (j *MaintenanceJob) Run() error {
	start := time.Now()

	if j.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := j.db.HealthCheck(ctx)
		cancel()
		if err != nil {
			j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Integrity check failed")
			return err
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("Maintenance completed")
	return nil
}

// checkDiskSpace fails below 100MB free and warns below 1GB
func (j *MaintenanceJob) checkDiskSpace() error {
	stat, err := j.usage(filepath.Clean(j.dataDir))
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableMB := float64(stat.Free) / 1e6
	j.log.Debug().Float64("available_mb", availableMB).Msg("Disk space check")

	if availableMB < 100 {
		j.log.Error().Float64("available_mb", availableMB).Msg("Insufficient disk space")
		return fmt.Errorf("only %.0f MB free in %s", availableMB, j.dataDir)
	}
	if availableMB < 1000 {
		j.log.Warn().Float64("available_mb", availableMB).Msg("Disk space running low")
	}
	return nil
}
