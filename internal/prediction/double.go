package prediction

import (
	"github.com/aristath/augur/internal/analysis"
	"github.com/aristath/augur/internal/domain"
)

// PredictDouble runs the rule cascade over a Double analysis.
// stats carries the running tally used for the win-rate boost; an empty record skips it.
func (p *Predictor) PredictDouble(a analysis.DoubleAnalysis, stats domain.StatsRecord) domain.DoublePrediction {
	color, confidence, rule := chooseColor(a)
	confidence = boost(confidence, a, stats)

	pred := domain.DoublePrediction{
		Color:         color,
		Number:        a.MostFrequentNumber(color),
		Confidence:    confidence,
		RawConfidence: confidence,
		Rule:          rule,
		ProducedAt:    p.now(),
		SampleSize:    a.Total,
	}
	if p.legacy {
		pred.Confidence = legacyConfidence[color]
	}
	return pred
}

// chooseColor applies the ordered rules. The first rule that picks a color wins,
// except that three in a row upgrades two in a row.
func chooseColor(a analysis.DoubleAnalysis) (domain.Color, float64, string) {
	var (
		color      domain.Color
		confidence float64
		rule       string
		chosen     bool
	)

	if a.Total >= 2 && a.Last == a.Penultimate && a.Last != domain.White {
		color, confidence, rule, chosen = a.Last.Opposite(), 65, RuleTwoInARow, true

		if a.Total >= 3 && a.Antepenultimate == a.Last {
			confidence, rule = 75, RuleThreeInARow
		}
	}

	if !chosen && a.Total >= 2 {
		if next, _, ok := a.MostLikelyAfter(a.Last); ok {
			color, confidence, rule, chosen = next, 60, RuleTransition, true
		}
	}

	if !chosen {
		for _, c := range []domain.Color{domain.Red, domain.Black} {
			if a.RecentDeviation[c] < -2 {
				color, confidence, rule, chosen = c, 60, RuleRecentDeviation, true
				break
			}
		}
	}

	if !chosen {
		color, confidence, rule = a.LessFrequent(), 55, RuleMeanReversion
	}

	return color, confidence, rule
}

func boost(confidence float64, a analysis.DoubleAnalysis, stats domain.StatsRecord) float64 {
	if a.Alternations() > 5 {
		confidence += 10
	}
	if a.Repetitions() > 3 {
		confidence += 5
	}
	if stats.Total() > 0 {
		switch {
		case stats.WinRate > 0.7:
			confidence += 5
		case stats.WinRate < 0.3:
			confidence -= 5
		}
	}
	return clamp(confidence)
}
