package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/history"
)

// MinesAnalysis aggregates a newest-first Mines snapshot
type MinesAnalysis struct {
	Regions       map[domain.Region]float64 `json:"regions"`
	Heat          [domain.GridSize]float64  `json:"heat"`
	Ranking       []int                     `json:"ranking"`
	MostFrequent  []int                     `json:"most_frequent"`
	LeastFrequent []int                     `json:"least_frequent"`
	Games         int                       `json:"games"`
	MineCount     int                       `json:"mine_count"`
	Adjacency     float64                   `json:"adjacency"`
	HeatVariance  float64                   `json:"heat_variance"`
}

// AnalyzeMines computes the positional heat-map, its ranking, clustering and
// region aggregates. Returns history.ErrInsufficientData below history.MinEntries grids.
func AnalyzeMines(snapshot []domain.MinesOutcome, mineCount int) (MinesAnalysis, error) {
	if err := history.Require(snapshot); err != nil {
		return MinesAnalysis{}, err
	}
	return summarizeMines(snapshot, mineCount), nil
}

// SummarizeMines computes the same statistics without the size floor
func SummarizeMines(snapshot []domain.MinesOutcome, mineCount int) MinesAnalysis {
	return summarizeMines(snapshot, mineCount)
}

func summarizeMines(snapshot []domain.MinesOutcome, mineCount int) MinesAnalysis {
	if mineCount <= 0 {
		mineCount = domain.DefaultMineCount
	}
	a := MinesAnalysis{
		Regions:   make(map[domain.Region]float64, len(domain.RegionCells)),
		Games:     len(snapshot),
		MineCount: mineCount,
	}

	var counts [domain.GridSize]int
	adjacent := 0
	for _, o := range snapshot {
		for i, c := range o.Grid {
			if c == domain.Mine {
				counts[i]++
			}
		}
		adjacent += adjacentPairs(o.Grid)
	}

	if a.Games > 0 {
		for i, c := range counts {
			a.Heat[i] = float64(c) / float64(a.Games)
		}
		a.Adjacency = float64(adjacent) / float64(a.Games)
	}

	a.Ranking = rankByHeat(a.Heat)
	a.MostFrequent = append([]int(nil), a.Ranking[:mineCount]...)
	a.LeastFrequent = make([]int, 0, mineCount)
	for i := len(a.Ranking) - 1; i >= len(a.Ranking)-mineCount; i-- {
		a.LeastFrequent = append(a.LeastFrequent, a.Ranking[i])
	}

	for region, cells := range domain.RegionCells {
		sum := 0
		for _, idx := range cells {
			sum += counts[idx]
		}
		if a.Games > 0 {
			a.Regions[region] = float64(sum) / float64(len(cells)*a.Games)
		} else {
			a.Regions[region] = 0
		}
	}

	a.HeatVariance = stat.PopVariance(a.Heat[:], nil)

	return a
}

// HottestRegion returns the region among candidates with the highest
// normalized heat. Ties resolve in candidate order.
func (a MinesAnalysis) HottestRegion(candidates []domain.Region) domain.Region {
	if len(candidates) == 0 {
		return ""
	}
	best := candidates[0]
	for _, r := range candidates[1:] {
		if a.Regions[r] > a.Regions[best] {
			best = r
		}
	}
	return best
}

// rankByHeat orders positions by heat descending, lower index first on ties
func rankByHeat(heat [domain.GridSize]float64) []int {
	idx := make([]int, domain.GridSize)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return heat[idx[i]] > heat[idx[j]]
	})
	return idx
}

// adjacentPairs counts horizontally or vertically adjacent mine pairs
func adjacentPairs(g domain.Grid) int {
	n := 0
	for i, c := range g {
		if c != domain.Mine {
			continue
		}
		if domain.Col(i) < domain.GridWidth-1 && g[i+1] == domain.Mine {
			n++
		}
		if i+domain.GridWidth < domain.GridSize && g[i+domain.GridWidth] == domain.Mine {
			n++
		}
	}
	return n
}
