// Package analysis computes descriptive statistics over outcome snapshots.
// Every function is pure: inputs are never mutated and identical snapshots
// always produce identical results.
package analysis

import (
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/history"
)

// RecentWindow is the number of newest outcomes used for deviation checks
const RecentWindow = 10

// DoubleAnalysis aggregates a newest-first Double snapshot
type DoubleAnalysis struct {
	Counts          map[domain.Color]int                      `json:"counts"`
	Percentages     map[domain.Color]float64                  `json:"percentages"`
	Transitions     map[domain.Color]map[domain.Color]int     `json:"transitions"`
	Conditional     map[domain.Color]map[domain.Color]float64 `json:"conditional"`
	RecentCounts    map[domain.Color]int                      `json:"recent_counts"`
	RecentDeviation map[domain.Color]float64                  `json:"recent_deviation"`
	NumberFrequency [15]int                                   `json:"number_frequency"`
	Total           int                                       `json:"total"`
	AlternationRBR  int                                       `json:"alternation_rbr"`
	AlternationBRB  int                                       `json:"alternation_brb"`
	RepetitionRed   int                                       `json:"repetition_red"`
	RepetitionBlack int                                       `json:"repetition_black"`
	Last            domain.Color                              `json:"last"`
	Penultimate     domain.Color                              `json:"penultimate"`
	Antepenultimate domain.Color                              `json:"antepenultimate"`
}

// AnalyzeDouble computes color, transition, streak and number statistics.
// Returns history.ErrInsufficientData below history.MinEntries outcomes.
func AnalyzeDouble(snapshot []domain.DoubleOutcome) (DoubleAnalysis, error) {
	if err := history.Require(snapshot); err != nil {
		return DoubleAnalysis{}, err
	}
	return summarizeDouble(snapshot), nil
}

// SummarizeDouble computes the same statistics without the size floor.
// Used by the backtest warm-up where prefixes can be shorter than the floor.
func SummarizeDouble(snapshot []domain.DoubleOutcome) DoubleAnalysis {
	return summarizeDouble(snapshot)
}

func summarizeDouble(snapshot []domain.DoubleOutcome) DoubleAnalysis {
	a := DoubleAnalysis{
		Counts:          make(map[domain.Color]int, 3),
		Percentages:     make(map[domain.Color]float64, 3),
		Transitions:     make(map[domain.Color]map[domain.Color]int, 3),
		Conditional:     make(map[domain.Color]map[domain.Color]float64, 3),
		RecentCounts:    make(map[domain.Color]int, 3),
		RecentDeviation: make(map[domain.Color]float64, 3),
		Total:           len(snapshot),
	}
	for _, c := range domain.Colors {
		a.Counts[c] = 0
		a.RecentCounts[c] = 0
		a.Transitions[c] = map[domain.Color]int{domain.White: 0, domain.Red: 0, domain.Black: 0}
	}

	colors := make([]domain.Color, len(snapshot))
	for i, o := range snapshot {
		colors[i] = o.Color
		a.Counts[o.Color]++
		if o.Number >= 0 && o.Number < len(a.NumberFrequency) {
			a.NumberFrequency[o.Number]++
		}
	}

	if len(colors) > 0 {
		a.Last = colors[0]
	}
	if len(colors) > 1 {
		a.Penultimate = colors[1]
	}
	if len(colors) > 2 {
		a.Antepenultimate = colors[2]
	}

	for _, c := range domain.Colors {
		if a.Total > 0 {
			a.Percentages[c] = float64(a.Counts[c]) / float64(a.Total) * 100
		} else {
			a.Percentages[c] = 0
		}
	}

	// Snapshot is newest-first, so colors[i+1] happened just before colors[i]
	from := make(map[domain.Color]int, 3)
	for i := 0; i+1 < len(colors); i++ {
		prev, cur := colors[i+1], colors[i]
		a.Transitions[prev][cur]++
		from[prev]++
	}
	for _, c1 := range domain.Colors {
		row := make(map[domain.Color]float64, 3)
		for _, c2 := range domain.Colors {
			if from[c1] > 0 {
				row[c2] = float64(a.Transitions[c1][c2]) / float64(from[c1])
			} else {
				row[c2] = 0
			}
		}
		a.Conditional[c1] = row
	}

	for i := 0; i+2 < len(colors); i++ {
		x, y, z := colors[i], colors[i+1], colors[i+2]
		switch {
		case x == domain.Red && y == domain.Black && z == domain.Red:
			a.AlternationRBR++
		case x == domain.Black && y == domain.Red && z == domain.Black:
			a.AlternationBRB++
		case x == y && y == z && x == domain.Red:
			a.RepetitionRed++
		case x == y && y == z && x == domain.Black:
			a.RepetitionBlack++
		}
	}

	recent := colors
	if len(recent) > RecentWindow {
		recent = recent[:RecentWindow]
	}
	for _, c := range recent {
		a.RecentCounts[c]++
	}
	for _, c := range domain.Colors {
		expected := a.Percentages[c] / 100 * RecentWindow
		a.RecentDeviation[c] = float64(a.RecentCounts[c]) - expected
	}

	return a
}

// Alternations returns the larger of the two strict 2-cycle counts
func (a DoubleAnalysis) Alternations() int {
	return max(a.AlternationRBR, a.AlternationBRB)
}

// Repetitions returns the larger of the two three-in-a-row counts
func (a DoubleAnalysis) Repetitions() int {
	return max(a.RepetitionRed, a.RepetitionBlack)
}

// MostLikelyAfter returns the color with the highest conditional probability of
// following prev. Ties resolve in the order RED, BLACK, WHITE. ok is false when
// prev was never followed by anything.
func (a DoubleAnalysis) MostLikelyAfter(prev domain.Color) (domain.Color, float64, bool) {
	row := a.Conditional[prev]
	best, bestP := domain.White, 0.0
	found := false
	for _, c := range []domain.Color{domain.Red, domain.Black, domain.White} {
		if p := row[c]; p > bestP {
			best, bestP, found = c, p, true
		}
	}
	return best, bestP, found
}

// MostFrequentNumber returns the most frequent number in the color's range.
// Ties go to the lowest number; with no data the first number of the range is returned.
func (a DoubleAnalysis) MostFrequentNumber(c domain.Color) int {
	lo, hi := c.Range()
	best, bestCount := lo, 0
	for n := lo; n <= hi; n++ {
		if a.NumberFrequency[n] > bestCount {
			best, bestCount = n, a.NumberFrequency[n]
		}
	}
	return best
}

// LessFrequent returns whichever of RED and BLACK has appeared fewer times.
// RED wins ties.
func (a DoubleAnalysis) LessFrequent() domain.Color {
	if a.Counts[domain.Black] < a.Counts[domain.Red] {
		return domain.Black
	}
	return domain.Red
}
