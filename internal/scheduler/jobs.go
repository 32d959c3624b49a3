package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/datasource"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/history"
)

// jobTimeout bounds a single run of a network-bound job
const jobTimeout = 2 * time.Minute

// Refresher reloads a game's history
type Refresher interface {
	Refresh(ctx context.Context, game domain.Game) (datasource.Mode, error)
}

// Backtester replays a game's history
type Backtester interface {
	Backtest(ctx context.Context, game domain.Game) (backtest.Result, error)
}

// Saver persists state
type Saver interface {
	Save() error
}

// RefreshJob pulls recent rounds for one game
type RefreshJob struct {
	JobBase
	ctx    context.Context
	engine Refresher
	game   domain.Game
	log    zerolog.Logger
}

// NewRefreshJob creates a refresh job. ctx bounds the job's lifetime.
func NewRefreshJob(ctx context.Context, engine Refresher, game domain.Game, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		ctx:    ctx,
		engine: engine,
		game:   game,
		log:    log.With().Str("job", "refresh_"+string(game)).Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh_" + string(j.game)
}

// Run refreshes the history
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(j.ctx, jobTimeout)
	defer cancel()

	mode, err := j.engine.Refresh(ctx, j.game)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", j.game, err)
	}
	j.log.Debug().Str("mode", string(mode)).Msg("Refresh completed")
	return nil
}

// BacktestJob replays one game's window and records the result
type BacktestJob struct {
	JobBase
	ctx    context.Context
	engine Backtester
	game   domain.Game
	log    zerolog.Logger
}

// NewBacktestJob creates a backtest job
func NewBacktestJob(ctx context.Context, engine Backtester, game domain.Game, log zerolog.Logger) *BacktestJob {
	return &BacktestJob{
		ctx:    ctx,
		engine: engine,
		game:   game,
		log:    log.With().Str("job", "backtest_"+string(game)).Logger(),
	}
}

// Name returns the job name
func (j *BacktestJob) Name() string {
	return "backtest_" + string(j.game)
}

// Run executes the backtest. Too little history is not an error.
func (j *BacktestJob) Run() error {
	ctx, cancel := context.WithTimeout(j.ctx, jobTimeout)
	defer cancel()

	res, err := j.engine.Backtest(ctx, j.game)
	if errors.Is(err, history.ErrInsufficientData) {
		j.log.Info().Msg("Not enough history to backtest yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("backtest %s: %w", j.game, err)
	}

	j.log.Debug().
		Int("trials", res.Trials).
		Float64("raw_win_rate", res.RawWinRate).
		Msg("Scheduled backtest completed")
	return nil
}

// SaveJob persists stats and history
type SaveJob struct {
	JobBase
	saver Saver
}

// NewSaveJob creates a save job
func NewSaveJob(saver Saver) *SaveJob {
	return &SaveJob{saver: saver}
}

// Name returns the job name
func (j *SaveJob) Name() string {
	return "save_state"
}

// Run saves state
func (j *SaveJob) Run() error {
	return j.saver.Save()
}

// WALCheckpointJob monitors and truncates the WAL of the given databases
type WALCheckpointJob struct {
	JobBase
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates a WAL checkpoint job. nil databases are skipped.
func NewWALCheckpointJob(log zerolog.Logger, dbs ...*database.DB) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: dbs,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checks each WAL and truncates it
func (j *WALCheckpointJob) Run() error {
	var errs []error
	checked := 0

	for _, db := range j.databases {
		if db == nil {
			continue
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		if err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to check WAL checkpoint")
			errs = append(errs, err)
			continue
		}

		if frames > 1000 {
			j.log.Warn().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, truncating")
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			errs = append(errs, err)
			continue
		}
		checked++
	}

	j.log.Debug().Int("checked", checked).Msg("WAL checkpoint completed")
	return errors.Join(errs...)
}
