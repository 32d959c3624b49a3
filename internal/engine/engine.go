// Package engine ties the history stores, the data source, the predictor,
// the backtest runner and the stats store into the operations the CLI and
// the HTTP API expose.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/analysis"
	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/clients/blaze"
	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/datasource"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/history"
	"github.com/aristath/augur/internal/prediction"
	"github.com/aristath/augur/internal/stats"
)

// History file names inside the data directory
const (
	DoubleHistoryFile = "double_history.json"
	MinesHistoryFile  = "mines_history.json"
)

// Deps are the components an Engine owns
type Deps struct {
	Doubles   *history.Store[domain.DoubleOutcome]
	Mines     *history.Store[domain.MinesOutcome]
	Stats     *stats.Store
	Predictor *prediction.Predictor
	Runner    *backtest.Runner
	Source    *datasource.Source
	Events    *events.Manager
}

// Engine is the single context object behind every user-facing operation
type Engine struct {
	cfg       *config.Config
	doubles   *history.Store[domain.DoubleOutcome]
	mines     *history.Store[domain.MinesOutcome]
	stats     *stats.Store
	predictor *prediction.Predictor
	runner    *backtest.Runner
	source    *datasource.Source
	events    *events.Manager
	log       zerolog.Logger
	started   time.Time

	// refreshMu serializes refreshes so concurrent callers do not double-fetch
	refreshMu sync.Mutex

	mu         sync.Mutex
	lastDouble *domain.DoublePrediction
	lastMines  *domain.MinesPrediction
}

// New creates an Engine
func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		doubles:   deps.Doubles,
		mines:     deps.Mines,
		stats:     deps.Stats,
		predictor: deps.Predictor,
		runner:    deps.Runner,
		source:    deps.Source,
		events:    deps.Events,
		log:       log.With().Str("component", "engine").Logger(),
		started:   time.Now(),
	}
}

// Load restores stats and persisted history. Failures are logged and the
// engine continues from empty state.
func (e *Engine) Load() {
	if err := e.stats.Load(); err != nil {
		e.log.Error().Err(err).Msg("Failed to load stats, starting from zero")
	}

	if n, err := e.doubles.LoadJSON(e.cfg.Path(DoubleHistoryFile)); err != nil {
		e.log.Error().Err(err).Msg("Failed to load Double history")
	} else if n > 0 {
		e.log.Info().Int("outcomes", n).Msg("Loaded Double history")
	}

	if n, err := e.mines.LoadJSON(e.cfg.Path(MinesHistoryFile)); err != nil {
		e.log.Error().Err(err).Msg("Failed to load Mines history")
	} else if n > 0 {
		e.log.Info().Int("outcomes", n).Msg("Loaded Mines history")
	}
}

// Refresh reloads game's history from the data source
func (e *Engine) Refresh(ctx context.Context, game domain.Game) (datasource.Mode, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()
	return e.source.Refresh(ctx, game)
}

// ensure refreshes game when its window is too short to analyze or still
// holds simulated outcomes
func (e *Engine) ensure(ctx context.Context, game domain.Game) error {
	if !e.source.NeedsRefresh(game) {
		return nil
	}
	_, err := e.Refresh(ctx, game)
	return err
}

// PredictDouble predicts the next Double round from the latest window
func (e *Engine) PredictDouble(ctx context.Context) (domain.DoublePrediction, error) {
	if err := e.ensure(ctx, domain.GameDouble); err != nil {
		return domain.DoublePrediction{}, err
	}
	return e.predictDouble()
}

func (e *Engine) predictDouble() (domain.DoublePrediction, error) {
	snapshot := e.doubles.Snapshot(e.cfg.History.Size)
	a, err := analysis.AnalyzeDouble(snapshot)
	if err != nil {
		return domain.DoublePrediction{}, err
	}

	record, err := e.stats.Get(domain.GameDouble)
	if err != nil {
		return domain.DoublePrediction{}, err
	}

	pred := e.predictor.PredictDouble(a, record)
	pred.Simulated = anySimulated(snapshot)

	e.mu.Lock()
	e.lastDouble = &pred
	e.mu.Unlock()

	e.emit(&events.PredictionMadeData{
		Game:          string(domain.GameDouble),
		Candidate:     fmt.Sprintf("%s %d", pred.Color, pred.Number),
		Rule:          pred.Rule,
		Confidence:    pred.Confidence,
		RawConfidence: pred.RawConfidence,
		Simulated:     pred.Simulated,
	})
	return pred, nil
}

// PredictMines predicts the next Mines layout from the latest window
func (e *Engine) PredictMines(ctx context.Context) (domain.MinesPrediction, error) {
	if err := e.ensure(ctx, domain.GameMines); err != nil {
		return domain.MinesPrediction{}, err
	}
	return e.predictMines()
}

func (e *Engine) predictMines() (domain.MinesPrediction, error) {
	snapshot := e.mines.Snapshot(e.cfg.History.Size)
	a, err := analysis.AnalyzeMines(snapshot, e.predictor.MineCount())
	if err != nil {
		return domain.MinesPrediction{}, err
	}

	pred := e.predictor.PredictMines(a)
	pred.Simulated = anySimulated(snapshot)

	e.mu.Lock()
	e.lastMines = &pred
	e.mu.Unlock()

	e.emit(&events.PredictionMadeData{
		Game:          string(domain.GameMines),
		Candidate:     fmt.Sprint(pred.Grid.Mines()),
		Confidence:    pred.Confidence,
		RawConfidence: pred.RawConfidence,
		Simulated:     pred.Simulated,
	})
	return pred, nil
}

// Backtest replays game's current window, records the run in the stats
// store and saves it
func (e *Engine) Backtest(ctx context.Context, game domain.Game) (backtest.Result, error) {
	if _, err := domain.ParseGame(string(game)); err != nil {
		return backtest.Result{}, err
	}
	if err := e.ensure(ctx, game); err != nil {
		return backtest.Result{}, err
	}

	var (
		res backtest.Result
		err error
	)
	switch game {
	case domain.GameDouble:
		res, err = e.runner.RunDouble(e.doubles.Snapshot(e.cfg.History.Size))
	case domain.GameMines:
		res, err = e.runner.RunMines(e.mines.Snapshot(e.cfg.History.Size))
	}
	if err != nil {
		return backtest.Result{}, err
	}

	if _, err := e.stats.RecordBacktest(game, res.Wins, res.Losses, res.LastHit); err != nil {
		return res, err
	}
	if err := e.stats.Save(); err != nil {
		e.log.Error().Err(err).Msg("Failed to save stats after backtest")
	}

	e.log.Info().
		Str("game", string(game)).
		Int("trials", res.Trials).
		Float64("win_rate", res.WinRate).
		Float64("raw_win_rate", res.RawWinRate).
		Bool("clamped", res.Clamped).
		Msg("Backtest completed")

	e.emit(&events.BacktestCompletedData{
		Game:       string(game),
		Trials:     res.Trials,
		WinRate:    res.WinRate,
		RawWinRate: res.RawWinRate,
		Clamped:    res.Clamped,
	})
	return res, nil
}

// LastDoublePrediction returns the prediction awaiting the next live round
func (e *Engine) LastDoublePrediction() (domain.DoublePrediction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastDouble == nil {
		return domain.DoublePrediction{}, false
	}
	return *e.lastDouble, true
}

// LastMinesPrediction returns the prediction awaiting the next live round
func (e *Engine) LastMinesPrediction() (domain.MinesPrediction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastMines == nil {
		return domain.MinesPrediction{}, false
	}
	return *e.lastMines, true
}

// Stats returns the running tally for every game
func (e *Engine) Stats() map[domain.Game]domain.StatsRecord {
	return e.stats.All()
}

// StatsFor returns the running tally for one game
func (e *Engine) StatsFor(game domain.Game) (domain.StatsRecord, error) {
	return e.stats.Get(game)
}

// DoubleHistory returns up to n Double outcomes, newest first
func (e *Engine) DoubleHistory(n int) []domain.DoubleOutcome {
	return e.doubles.Snapshot(n)
}

// MinesHistory returns up to n Mines outcomes, newest first
func (e *Engine) MinesHistory(n int) []domain.MinesOutcome {
	return e.mines.Snapshot(n)
}

// Save persists stats and both history windows. Every file is attempted.
func (e *Engine) Save() error {
	var errs []error

	if err := e.stats.Save(); err != nil {
		errs = append(errs, err)
	}
	if err := e.doubles.SaveJSON(e.cfg.Path(DoubleHistoryFile)); err != nil {
		errs = append(errs, fmt.Errorf("failed to save Double history: %w", err))
	}
	if err := e.mines.SaveJSON(e.cfg.Path(MinesHistoryFile)); err != nil {
		errs = append(errs, fmt.Errorf("failed to save Mines history: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		e.log.Error().Err(err).Msg("Failed to save state")
		return err
	}

	e.log.Debug().Msg("State saved")
	if e.events != nil {
		e.events.Emit(events.StatsSaved, "engine", map[string]interface{}{
			"double_history": e.doubles.Len(),
			"mines_history":  e.mines.Len(),
		})
	}
	return nil
}

// Close saves state
func (e *Engine) Close() error {
	return e.Save()
}

// Run keeps the push feeds open until ctx is cancelled, scoring the last
// prediction against every new live round. It returns immediately when the
// feed is disabled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.cfg.Feed.Enabled {
		e.log.Info().Msg("Push feed disabled")
		return nil
	}

	listener := datasource.Listener{
		OnDouble: e.scoreDouble,
		OnMines:  e.scoreMines,
	}

	var wg sync.WaitGroup
	for _, game := range domain.AllGames {
		wg.Add(1)
		go func(game domain.Game) {
			defer wg.Done()
			if err := e.source.RunFeed(ctx, game, listener); err != nil {
				e.log.Error().Err(err).Str("game", string(game)).Msg("Feed stopped with error")
			}
		}(game)
	}
	wg.Wait()
	return nil
}

// scoreDouble grades the pending Double prediction against a live round,
// records the result and predicts again
func (e *Engine) scoreDouble(o domain.DoubleOutcome) {
	e.mu.Lock()
	pending := e.lastDouble
	e.mu.Unlock()

	if pending != nil {
		e.record(domain.GameDouble, pending.Hit(o))
	}

	if _, err := e.predictDouble(); err != nil && !errors.Is(err, history.ErrInsufficientData) {
		e.log.Warn().Err(err).Msg("Failed to update Double prediction")
	}
}

// scoreMines grades the pending Mines prediction against a live round,
// records the result and predicts again
func (e *Engine) scoreMines(o domain.MinesOutcome) {
	e.mu.Lock()
	pending := e.lastMines
	e.mu.Unlock()

	if pending != nil {
		e.record(domain.GameMines, pending.Hit(o))
	}

	if _, err := e.predictMines(); err != nil && !errors.Is(err, history.ErrInsufficientData) {
		e.log.Warn().Err(err).Msg("Failed to update Mines prediction")
	}
}

func (e *Engine) record(game domain.Game, win bool) {
	rec, err := e.stats.Record(game, win)
	if err != nil {
		e.log.Error().Err(err).Str("game", string(game)).Msg("Failed to record live result")
		return
	}

	e.log.Info().
		Str("game", string(game)).
		Str("result", string(rec.LastResult)).
		Float64("win_rate", rec.WinRate).
		Msg("Prediction scored")

	e.emit(&events.PredictionScoredData{
		Game:    string(game),
		Result:  string(rec.LastResult),
		WinRate: rec.WinRate,
	})
}

func (e *Engine) emit(data events.EventData) {
	if e.events != nil {
		e.events.EmitTyped("engine", data)
	}
}

// Status is a point-in-time summary of the engine
type Status struct {
	StartedAt       time.Time                          `json:"started_at"`
	Uptime          string                             `json:"uptime"`
	LegacyReporting bool                               `json:"legacy_reporting"`
	HistorySizes    map[domain.Game]int                `json:"history_sizes"`
	Modes           map[domain.Game]datasource.Mode    `json:"modes"`
	Feeds           []blaze.FeedStatus                 `json:"feeds"`
	Stats           map[domain.Game]domain.StatsRecord `json:"stats"`
}

// Status reports history sizes, refresh modes and feed state
func (e *Engine) Status() Status {
	st := Status{
		StartedAt:       e.started,
		Uptime:          time.Since(e.started).Round(time.Second).String(),
		LegacyReporting: e.predictor.Legacy(),
		HistorySizes:    make(map[domain.Game]int, len(domain.AllGames)),
		Modes:           make(map[domain.Game]datasource.Mode, len(domain.AllGames)),
		Feeds:           e.source.FeedStatuses(),
		Stats:           e.stats.All(),
	}
	for _, g := range domain.AllGames {
		st.HistorySizes[g] = e.source.Available(g)
		if m, ok := e.source.LastMode(g); ok {
			st.Modes[g] = m
		}
	}
	return st
}

func anySimulated[T interface{ IsSimulated() bool }](snapshot []T) bool {
	for _, o := range snapshot {
		if o.IsSimulated() {
			return true
		}
	}
	return false
}
