package domain

import "time"

// DoublePrediction is a guess for the next Double round.
// Confidence is the reported value; RawConfidence is what the rules computed.
type DoublePrediction struct {
	ProducedAt    time.Time `json:"produced_at"`
	Rule          string    `json:"rule"`
	Color         Color     `json:"color"`
	Number        int       `json:"number"`
	Confidence    float64   `json:"confidence"`
	RawConfidence float64   `json:"raw_confidence"`
	Simulated     bool      `json:"simulated"` // Based on synthetic history
	SampleSize    int       `json:"sample_size"`
}

// Hit reports whether the prediction matched an outcome's color
func (p DoublePrediction) Hit(o DoubleOutcome) bool {
	return p.Color == o.Color
}

// MinesPrediction is a guessed mine layout for the next Mines round
type MinesPrediction struct {
	ProducedAt    time.Time `json:"produced_at"`
	Grid          Grid      `json:"grid"`
	SafeCells     []int     `json:"safe_cells"`
	Confidence    float64   `json:"confidence"`
	RawConfidence float64   `json:"raw_confidence"`
	Simulated     bool      `json:"simulated"`
	SampleSize    int       `json:"sample_size"`
}

// MinesHitRatio is the share of agreeing cells needed for a Mines prediction to count as a win
const MinesHitRatio = 0.8

// Hit reports whether at least 80% of cells agree with the outcome
func (p MinesPrediction) Hit(o MinesOutcome) bool {
	return float64(p.Grid.Agreement(o.Grid)) >= MinesHitRatio*float64(GridSize)
}
