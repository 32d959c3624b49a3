package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type eventLog struct {
	mu     sync.Mutex
	events []*events.Event
}

func (l *eventLog) handle(e *events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(t events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		DataDir:    dir,
		MineCount:  5,
		RandomSeed: 11,
		History:    config.HistoryConfig{Size: 100, MaxAge: 24 * time.Hour},
	}
}

// newTestEngine builds an engine whose data source has no puller, so every
// refresh falls back to seeded simulation
func newTestEngine(t *testing.T, dir string, withSynthetic bool) (*Engine, *eventLog) {
	t.Helper()
	return newTestEngineWithPuller(t, dir, nil, withSynthetic)
}

func newTestEngineWithPuller(t *testing.T, dir string, puller datasource.Puller, withSynthetic bool) (*Engine, *eventLog) {
	t.Helper()
	cfg := testConfig(dir)

	bus := events.NewBus()
	log := &eventLog{}
	bus.SubscribeAll(log.handle)
	em := events.NewManager(bus, zerolog.Nop())

	policy := history.Policy{MaxAge: cfg.History.MaxAge, MaxCount: cfg.History.Size}
	doubles := history.NewStore[domain.DoubleOutcome](policy)
	mines := history.NewStore[domain.MinesOutcome](policy)

	var synthetic *datasource.Synthetic
	if withSynthetic {
		synthetic = datasource.NewSynthetic(cfg.RandomSeed, cfg.MineCount)
	}

	predictor := prediction.New(prediction.WithSeed(cfg.RandomSeed), prediction.WithMineCount(cfg.MineCount))
	e := New(cfg, Deps{
		Doubles:   doubles,
		Mines:     mines,
		Stats:     stats.NewStore(cfg.Path(stats.FileName), zerolog.Nop()),
		Predictor: predictor,
		Runner:    backtest.NewRunner(predictor, false),
		Source:    datasource.New(datasource.Config{MineCount: cfg.MineCount}, puller, synthetic, doubles, mines, em, zerolog.Nop()),
		Events:    em,
	}, zerolog.Nop())
	e.Load()
	return e, log
}

func TestPredictDoubleRefreshesEmptyStore(t *testing.T) {
	e, log := newTestEngine(t, t.TempDir(), true)

	pred, err := e.PredictDouble(context.Background())
	require.NoError(t, err)

	assert.True(t, pred.Simulated)
	assert.Equal(t, datasource.DefaultDoubleBatch, pred.SampleSize)
	assert.GreaterOrEqual(t, pred.Confidence, prediction.MinConfidence)
	assert.LessOrEqual(t, pred.Confidence, prediction.MaxConfidence)
	lo, hi := pred.Color.Range()
	assert.True(t, pred.Number >= lo && pred.Number <= hi)

	last, ok := e.LastDoublePrediction()
	require.True(t, ok)
	assert.Equal(t, pred, last)

	assert.Equal(t, 1, log.count(events.HistoryRefreshed))
	assert.Equal(t, 1, log.count(events.PredictionMade))

	// A second prediction does not refresh again
	_, err = e.PredictDouble(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, log.count(events.HistoryRefreshed))
}

func TestPredictMines(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), true)

	pred, err := e.PredictMines(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, pred.Grid.MineCount())
	assert.True(t, pred.Simulated)
	_, ok := e.LastMinesPrediction()
	assert.True(t, ok)
}

type switchablePuller struct {
	mu      sync.Mutex
	down    bool
	calls   int
	doubles []domain.DoubleOutcome
}

func (p *switchablePuller) setDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

func (p *switchablePuller) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *switchablePuller) FetchDouble(context.Context) (blaze.Batch[domain.DoubleOutcome], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.down {
		return blaze.Batch[domain.DoubleOutcome]{}, blaze.ErrUnavailable
	}
	return blaze.Batch[domain.DoubleOutcome]{Outcomes: p.doubles, Source: blaze.SourceLive}, nil
}

func (p *switchablePuller) FetchMines(context.Context) (blaze.Batch[domain.MinesOutcome], error) {
	return blaze.Batch[domain.MinesOutcome]{}, errors.New("mines endpoint down")
}

func recentDoubles(t *testing.T, n int) []domain.DoubleOutcome {
	t.Helper()
	now := time.Now()
	out := make([]domain.DoubleOutcome, 0, n)
	for i := 0; i < n; i++ {
		o, err := domain.NewDoubleOutcome(i%15, now.Add(-time.Duration(i)*30*time.Second), domain.StatusFinal)
		require.NoError(t, err)
		o.ID = fmt.Sprintf("round-%d", i)
		out = append(out, o)
	}
	return out
}

func TestPredictDoublePullsAgainAfterSimulatedFallback(t *testing.T) {
	puller := &switchablePuller{down: true, doubles: recentDoubles(t, 30)}
	e, _ := newTestEngineWithPuller(t, t.TempDir(), puller, true)

	first, err := e.PredictDouble(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Simulated)
	assert.Equal(t, 1, puller.callCount())

	// Still down: the simulated window is kept and nothing new is generated
	again, err := e.PredictDouble(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Simulated)
	assert.Equal(t, 2, puller.callCount())
	assert.Equal(t, datasource.DefaultDoubleBatch, again.SampleSize)

	puller.setDown(false)

	second, err := e.PredictDouble(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, puller.callCount())
	assert.False(t, second.Simulated)
	assert.Equal(t, 30, second.SampleSize)

	mode, ok := e.source.LastMode(domain.GameDouble)
	require.True(t, ok)
	assert.Equal(t, datasource.ModeLive, mode)

	// Live history is complete, so the next prediction does not pull
	_, err = e.PredictDouble(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, puller.callCount())
}

func TestPredictInsufficientData(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), false)

	_, err := e.PredictDouble(context.Background())
	assert.ErrorIs(t, err, history.ErrInsufficientData)

	_, err = e.PredictMines(context.Background())
	assert.ErrorIs(t, err, history.ErrInsufficientData)

	_, err = e.Backtest(context.Background(), domain.GameDouble)
	assert.ErrorIs(t, err, history.ErrInsufficientData)
}

func TestBacktestRecordsStats(t *testing.T) {
	dir := t.TempDir()
	e, log := newTestEngine(t, dir, true)

	res, err := e.Backtest(context.Background(), domain.GameDouble)
	require.NoError(t, err)
	assert.Equal(t, datasource.DefaultDoubleBatch-1, res.Trials)
	assert.Equal(t, res.RawWins, res.Wins)
	assert.False(t, res.Clamped)
	assert.True(t, res.Simulated)

	rec, err := e.StatsFor(domain.GameDouble)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalBacktests)
	assert.Equal(t, res.Wins, rec.Wins)
	assert.Equal(t, res.Losses, rec.Losses)

	_, err = os.Stat(e.cfg.Path(stats.FileName))
	assert.NoError(t, err)
	assert.Equal(t, 1, log.count(events.BacktestCompleted))

	res, err = e.Backtest(context.Background(), domain.GameMines)
	require.NoError(t, err)
	assert.Equal(t, datasource.DefaultMinesBatch-1, res.Trials)
}

func TestBacktestUnknownGame(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), true)
	_, err := e.Backtest(context.Background(), domain.Game("crash"))
	assert.ErrorIs(t, err, domain.ErrUnknownGame)
}

func TestLiveScoringDouble(t *testing.T) {
	e, log := newTestEngine(t, t.TempDir(), true)

	pred, err := e.PredictDouble(context.Background())
	require.NoError(t, err)

	lo, _ := pred.Color.Range()
	hit, err := domain.NewDoubleOutcome(lo, time.Now(), domain.StatusFinal)
	require.NoError(t, err)
	require.True(t, e.doubles.Append(hit))
	e.scoreDouble(hit)

	rec, err := e.StatsFor(domain.GameDouble)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Wins)
	assert.Equal(t, domain.ResultWin, rec.LastResult)
	assert.Equal(t, 1, log.count(events.PredictionScored))

	// A fresh prediction replaces the scored one
	next, ok := e.LastDoublePrediction()
	require.True(t, ok)
	assert.Equal(t, 100, next.SampleSize)

	miss := domain.Red
	if next.Color == domain.Red {
		miss = domain.Black
	}
	lo, _ = miss.Range()
	o, err := domain.NewDoubleOutcome(lo, time.Now(), domain.StatusFinal)
	require.NoError(t, err)
	e.doubles.Append(o)
	e.scoreDouble(o)

	rec, err = e.StatsFor(domain.GameDouble)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Losses)
	assert.Equal(t, domain.ResultLoss, rec.LastResult)
	assert.InDelta(t, 0.5, rec.WinRate, 1e-9)
}

func TestLiveScoringMines(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), true)

	pred, err := e.PredictMines(context.Background())
	require.NoError(t, err)

	same, err := domain.NewMinesOutcome(pred.Grid, 5, time.Now(), domain.StatusFinal)
	require.NoError(t, err)
	e.scoreMines(same)

	rec, err := e.StatsFor(domain.GameMines)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Wins)
}

func TestScoringWithoutPendingPrediction(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), true)

	o, err := domain.NewDoubleOutcome(3, time.Now(), domain.StatusFinal)
	require.NoError(t, err)
	e.scoreDouble(o)

	rec, err := e.StatsFor(domain.GameDouble)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Total())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	e, log := newTestEngine(t, dir, true)

	_, err := e.PredictDouble(context.Background())
	require.NoError(t, err)
	_, err = e.Backtest(context.Background(), domain.GameMines)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.Equal(t, 1, log.count(events.StatsSaved))

	reloaded, _ := newTestEngine(t, dir, false)
	assert.Len(t, reloaded.DoubleHistory(0), datasource.DefaultDoubleBatch)
	assert.Len(t, reloaded.MinesHistory(10), 10)

	rec, err := reloaded.StatsFor(domain.GameMines)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalBacktests)

	// The reloaded history is enough to predict without any source
	_, err = reloaded.PredictDouble(context.Background())
	assert.NoError(t, err)
}

func TestRunReturnsWhenFeedDisabled(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), true)
	assert.NoError(t, e.Run(context.Background()))
}

func TestStatus(t *testing.T) {
	e, _ := newTestEngine(t, t.TempDir(), true)
	_, err := e.Refresh(context.Background(), domain.GameMines)
	require.NoError(t, err)

	st := e.Status()
	assert.Equal(t, 0, st.HistorySizes[domain.GameDouble])
	assert.Equal(t, datasource.DefaultMinesBatch, st.HistorySizes[domain.GameMines])
	assert.Equal(t, datasource.ModeSynthetic, st.Modes[domain.GameMines])
	assert.False(t, st.LegacyReporting)
	assert.Empty(t, st.Feeds)
}
