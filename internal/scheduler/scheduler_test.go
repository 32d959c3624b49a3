package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/datasource"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/history"
)

type fakeEngine struct {
	refreshes   int32
	backtests   int32
	saves       int32
	backtestErr error
	saveErr     error
}

func (f *fakeEngine) Refresh(ctx context.Context, game domain.Game) (datasource.Mode, error) {
	atomic.AddInt32(&f.refreshes, 1)
	return datasource.ModeLive, ctx.Err()
}

func (f *fakeEngine) Backtest(_ context.Context, game domain.Game) (backtest.Result, error) {
	atomic.AddInt32(&f.backtests, 1)
	return backtest.Result{Game: game, Trials: 9}, f.backtestErr
}

func (f *fakeEngine) Save() error {
	atomic.AddInt32(&f.saves, 1)
	return f.saveErr
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a cron", NewSaveJob(&fakeEngine{}))
	assert.Error(t, err)
	assert.Empty(t, s.Status())
}

func TestSchedulerRunsJobs(t *testing.T) {
	eng := &fakeEngine{}
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1s", NewSaveJob(eng)))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&eng.saves) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "save_state", status[0].Name)
	assert.Equal(t, "@every 1s", status[0].Schedule)
	assert.False(t, status[0].Next.IsZero())
}

func TestRunNowRecordsResult(t *testing.T) {
	boom := errors.New("disk full")
	eng := &fakeEngine{saveErr: boom}
	s := New(zerolog.Nop())
	job := NewSaveJob(eng)
	require.NoError(t, s.AddJob("0 0 * * * *", job))

	assert.ErrorIs(t, s.RunNow(job), boom)

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, 1, status[0].Runs)
	assert.Equal(t, "disk full", status[0].LastError)
	assert.False(t, status[0].LastRun.IsZero())
}

func TestRefreshJob(t *testing.T) {
	eng := &fakeEngine{}
	job := NewRefreshJob(context.Background(), eng, domain.GameDouble, zerolog.Nop())
	assert.Equal(t, "refresh_double", job.Name())
	assert.NoError(t, job.Run())
	assert.Equal(t, int32(1), eng.refreshes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job = NewRefreshJob(ctx, eng, domain.GameMines, zerolog.Nop())
	assert.ErrorIs(t, job.Run(), context.Canceled)
}

func TestBacktestJobToleratesShortHistory(t *testing.T) {
	eng := &fakeEngine{backtestErr: history.ErrInsufficientData}
	job := NewBacktestJob(context.Background(), eng, domain.GameMines, zerolog.Nop())
	assert.Equal(t, "backtest_mines", job.Name())
	assert.NoError(t, job.Run())

	eng.backtestErr = errors.New("boom")
	assert.Error(t, job.Run())
	assert.Equal(t, int32(2), eng.backtests)
}

func TestWALCheckpointJob(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	job := NewWALCheckpointJob(zerolog.Nop(), db, nil)
	assert.Equal(t, "wal_checkpoint", job.Name())
	assert.NoError(t, job.Run())
}
