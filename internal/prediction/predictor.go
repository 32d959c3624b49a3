// Package prediction turns pattern statistics into a next-outcome guess
// with a confidence score.
package prediction

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/augur/internal/domain"
)

// Confidence bounds applied after boosts
const (
	MinConfidence = 50.0
	MaxConfidence = 95.0
)

// Rule names reported with each Double prediction
const (
	RuleTwoInARow       = "two_in_a_row"
	RuleThreeInARow     = "three_in_a_row"
	RuleTransition      = "transition"
	RuleRecentDeviation = "recent_deviation"
	RuleMeanReversion   = "mean_reversion"
)

// legacyConfidence holds the fixed values reported in legacy mode
var legacyConfidence = map[domain.Color]float64{
	domain.Black: 92,
	domain.Red:   91,
	domain.White: 90,
}

const legacyMinesConfidence = 90.0

// Predictor applies the heuristic rules. It is safe for concurrent use.
type Predictor struct {
	mu        sync.Mutex
	rng       *rand.Rand
	now       func() time.Time
	mineCount int
	legacy    bool
}

// Option configures a Predictor
type Option func(*Predictor)

// WithLegacyReporting replaces computed confidence with the fixed legacy values
func WithLegacyReporting(enabled bool) Option {
	return func(p *Predictor) { p.legacy = enabled }
}

// WithSeed makes random reconciliation deterministic. Zero seeds from the clock.
func WithSeed(seed int64) Option {
	return func(p *Predictor) {
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		p.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMineCount sets how many mines a predicted grid carries
func WithMineCount(n int) Option {
	return func(p *Predictor) {
		if n > 0 && n < domain.GridSize {
			p.mineCount = n
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) { p.now = now }
}

// New creates a Predictor
func New(opts ...Option) *Predictor {
	p := &Predictor{
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		mineCount: domain.DefaultMineCount,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Legacy reports whether legacy reporting is enabled
func (p *Predictor) Legacy() bool {
	return p.legacy
}

// MineCount returns the number of mines placed in predicted grids
func (p *Predictor) MineCount() int {
	return p.mineCount
}

func clamp(v float64) float64 {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}
