package datasource

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/augur/internal/domain"
)

// Synthetic color distribution
const (
	redShare   = 0.45
	blackShare = 0.45
)

// placementOrder and placementWeight drive synthetic mine placement: each
// region's cells are visited in this order and get a mine with the region's
// probability until the mine count is reached.
var placementOrder = []domain.Region{
	domain.RegionCorners,
	domain.RegionCenter,
	domain.RegionEdges,
	domain.RegionDiagonals,
	domain.RegionMiddle,
}

var placementWeight = map[domain.Region]float64{
	domain.RegionCorners:   0.40,
	domain.RegionCenter:    0.30,
	domain.RegionEdges:     0.25,
	domain.RegionDiagonals: 0.20,
	domain.RegionMiddle:    0.15,
}

// Synthetic generates simulated outcomes. It is safe for concurrent use.
type Synthetic struct {
	mu        sync.Mutex
	rng       *rand.Rand
	mineCount int
	now       func() time.Time
}

// NewSynthetic creates a generator. A zero seed seeds from the clock.
func NewSynthetic(seed int64, mineCount int) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if mineCount <= 0 {
		mineCount = domain.DefaultMineCount
	}
	return &Synthetic{
		rng:       rand.New(rand.NewSource(seed)),
		mineCount: mineCount,
		now:       time.Now,
	}
}

// Double returns n simulated rounds, newest first, spaced by interval
func (s *Synthetic) Double(n int, interval time.Duration) []domain.DoubleOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]domain.DoubleOutcome, 0, n)
	for i := 0; i < n; i++ {
		number := s.number()
		o, err := domain.NewDoubleOutcome(number, now.Add(-time.Duration(i)*interval), domain.StatusSimulated)
		if err != nil {
			// number() only yields 0..14
			panic(err)
		}
		o.ID = fmt.Sprintf("sim-double-%d-%d", now.UnixNano(), i)
		out = append(out, o)
	}
	return out
}

func (s *Synthetic) number() int {
	p := s.rng.Float64()
	switch {
	case p < redShare:
		return 1 + s.rng.Intn(7)
	case p < redShare+blackShare:
		return 8 + s.rng.Intn(7)
	default:
		return 0
	}
}

// Mines returns n simulated rounds, newest first, spaced by interval
func (s *Synthetic) Mines(n int, interval time.Duration) []domain.MinesOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]domain.MinesOutcome, 0, n)
	for i := 0; i < n; i++ {
		o, err := domain.NewMinesOutcome(s.grid(), s.mineCount, now.Add(-time.Duration(i)*interval), domain.StatusSimulated)
		if err != nil {
			panic(err)
		}
		o.ID = fmt.Sprintf("sim-mines-%d-%d", now.UnixNano(), i)
		out = append(out, o)
	}
	return out
}

// grid places mines by region weight, then fills randomly to exactly mineCount
func (s *Synthetic) grid() domain.Grid {
	var g domain.Grid
	placed := 0

	for _, region := range placementOrder {
		weight := placementWeight[region]
		for _, idx := range domain.RegionCells[region] {
			if placed < s.mineCount && s.rng.Float64() < weight {
				g[idx] = domain.Mine
				placed++
			}
		}
	}

	if placed < s.mineCount {
		free := g.SafeCells()
		s.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
		for _, idx := range free[:s.mineCount-placed] {
			g[idx] = domain.Mine
		}
	}

	return g
}
