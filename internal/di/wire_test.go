package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/stats"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		DataDir:    dir,
		MineCount:  5,
		RandomSeed: 3,
		History:    config.HistoryConfig{Size: 100, MaxAge: 24 * time.Hour},
		Client: config.ClientConfig{
			MaxRetries: 1,
			Timeout:    time.Second,
			CacheTTL:   10 * time.Minute,
		},
		Schedule: config.ScheduleConfig{
			Refresh:  "0 */5 * * * *",
			Backtest: "0 0 * * * *",
			Save:     "30 * * * * *",
			Cleanup:  "0 0 3 * * *",
			Backup:   "0 30 3 * * *",
		},
	}
}

func TestInitializeDatabases(t *testing.T) {
	dir := t.TempDir()
	container, err := InitializeDatabases(testConfig(dir), zerolog.Nop())
	require.NoError(t, err)
	defer container.CacheDB.Close()

	assert.FileExists(t, filepath.Join(dir, CacheDBFile))

	var n int
	err = container.CacheDB.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('blaze_double','blaze_mines')",
	).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInitializeServicesRequiresDatabases(t *testing.T) {
	err := InitializeServices(context.Background(), &Container{}, testConfig(t.TempDir()), zerolog.Nop())
	assert.Error(t, err)

	_, err = RegisterJobs(context.Background(), &Container{}, testConfig(t.TempDir()), zerolog.Nop())
	assert.Error(t, err)
}

func TestWire(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.NotNil(t, container.CacheRepo)
	assert.NotNil(t, container.BlazeClient)
	assert.NotNil(t, container.Source)
	assert.NotNil(t, container.Engine)
	assert.NotNil(t, container.Metrics)
	assert.Nil(t, container.BackupService)
	assert.Nil(t, jobs.Backup)

	status := container.Scheduler.Status()
	names := make([]string, 0, len(status))
	for _, s := range status {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{
		"refresh_double", "refresh_mines",
		"backtest_double", "backtest_mines",
		"save_state", "cache_cleanup", "wal_checkpoint", "maintenance",
	}, names)

	// Metrics observe the bus
	container.EventManager.EmitTyped("test", &events.BackupCompletedData{Key: "k"})
	assert.Equal(t, 1.0, testutil.ToFloat64(container.Metrics.Backups))

	require.NoError(t, container.Scheduler.RunNow(jobs.Save))
	assert.FileExists(t, filepath.Join(dir, stats.FileName))

	require.NoError(t, container.Scheduler.RunNow(jobs.CacheCleanup))
	require.NoError(t, container.Scheduler.RunNow(jobs.WALCheckpoint))

	require.NoError(t, container.Close())
}

func TestWireSkipsEmptySchedules(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Schedule.Backtest = ""

	container, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.Len(t, container.Scheduler.Status(), 6)
}

func TestWireRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Schedule.Save = "whenever"

	_, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWireWithBackups(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Backup = config.BackupConfig{
		Bucket:          "augur-test",
		Region:          "auto",
		Endpoint:        "http://127.0.0.1:1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Prefix:          "b/",
		Retention:       3,
	}

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.BackupService)
	require.NotNil(t, jobs.Backup)
	assert.Len(t, container.Scheduler.Status(), 9)
}
