package prediction

import (
	"github.com/aristath/augur/internal/analysis"
	"github.com/aristath/augur/internal/domain"
)

// PredictMines places mines on the hottest positions, biases toward the
// hottest region, then reconciles to exactly the configured mine count.
func (p *Predictor) PredictMines(a analysis.MinesAnalysis) domain.MinesPrediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	var grid domain.Grid
	confidence := MinConfidence

	if a.Games > 0 {
		for _, idx := range a.Ranking {
			if grid.MineCount() >= p.mineCount {
				break
			}
			if a.Heat[idx] > 0 {
				grid[idx] = domain.Mine
			}
		}

		if region := a.HottestRegion(domain.CoarseRegions); region != "" {
			for _, idx := range domain.RegionCells[region] {
				if grid.MineCount() >= p.mineCount {
					break
				}
				grid[idx] = domain.Mine
			}
		}

		confidence = clamp(MinConfidence + a.HeatVariance*1000)
	}

	p.reconcile(&grid)

	pred := domain.MinesPrediction{
		Grid:          grid,
		SafeCells:     grid.SafeCells(),
		Confidence:    confidence,
		RawConfidence: confidence,
		ProducedAt:    p.now(),
		SampleSize:    a.Games,
	}
	if p.legacy {
		pred.Confidence = legacyMinesConfidence
	}
	return pred
}

// reconcile adds random mines or removes random non-corner mines first until
// the grid holds exactly mineCount. Caller holds p.mu.
func (p *Predictor) reconcile(grid *domain.Grid) {
	for grid.MineCount() < p.mineCount {
		free := grid.SafeCells()
		grid[free[p.rng.Intn(len(free))]] = domain.Mine
	}

	for grid.MineCount() > p.mineCount {
		var candidates, corners []int
		for _, idx := range grid.Mines() {
			if domain.IsCorner(idx) {
				corners = append(corners, idx)
			} else {
				candidates = append(candidates, idx)
			}
		}
		if len(candidates) == 0 {
			candidates = corners
		}
		grid[candidates[p.rng.Intn(len(candidates))]] = domain.Safe
	}
}
