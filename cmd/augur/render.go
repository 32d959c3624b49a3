package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/domain"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
	winColor   = color.New(color.FgGreen, color.Bold)
	lossColor  = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
)

func colorFor(c domain.Color) *color.Color {
	switch c {
	case domain.Red:
		return color.New(color.FgWhite, color.BgRed, color.Bold)
	case domain.Black:
		return color.New(color.FgWhite, color.BgBlack, color.Bold)
	}
	return color.New(color.FgBlack, color.BgWhite, color.Bold)
}

func renderSimulated(w io.Writer, simulated bool) {
	if simulated {
		warnColor.Fprintln(w, "  ! based on simulated history (no live data reachable)")
	}
}

func renderDoublePrediction(w io.Writer, p domain.DoublePrediction) {
	titleColor.Fprintln(w, "Double prediction")
	fmt.Fprint(w, "  Next color: ")
	colorFor(p.Color).Fprintf(w, " %s %d ", p.Color, p.Number)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Confidence: %.1f%%", p.Confidence)
	if p.RawConfidence != p.Confidence {
		dimColor.Fprintf(w, " (raw %.1f%%)", p.RawConfidence)
	}
	fmt.Fprintln(w)
	if p.Rule != "" {
		dimColor.Fprintf(w, "  Rule: %s\n", p.Rule)
	}
	dimColor.Fprintf(w, "  Sample: %d rounds\n", p.SampleSize)
	renderSimulated(w, p.Simulated)
}

func renderGrid(w io.Writer, g domain.Grid) {
	for row := 0; row < domain.GridWidth; row++ {
		cells := make([]string, domain.GridWidth)
		for col := 0; col < domain.GridWidth; col++ {
			if g[row*domain.GridWidth+col] == domain.Mine {
				cells[col] = lossColor.Sprint("X")
			} else {
				cells[col] = winColor.Sprint("o")
			}
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
	}
}

func renderMinesPrediction(w io.Writer, p domain.MinesPrediction) {
	titleColor.Fprintln(w, "Mines prediction")
	renderGrid(w, p.Grid)
	fmt.Fprintf(w, "  Safe cells: %v\n", p.SafeCells)
	fmt.Fprintf(w, "  Confidence: %.1f%%", p.Confidence)
	if p.RawConfidence != p.Confidence {
		dimColor.Fprintf(w, " (raw %.1f%%)", p.RawConfidence)
	}
	fmt.Fprintln(w)
	dimColor.Fprintf(w, "  Sample: %d rounds\n", p.SampleSize)
	renderSimulated(w, p.Simulated)
}

func renderStats(w io.Writer, all map[domain.Game]domain.StatsRecord) {
	titleColor.Fprintln(w, "Statistics")
	for _, g := range domain.AllGames {
		rec := all[g]
		fmt.Fprintf(w, "  %-7s wins %-5d losses %-5d win rate %5.1f%%  backtests %d",
			g, rec.Wins, rec.Losses, rec.WinRate*100, rec.TotalBacktests)
		switch rec.LastResult {
		case domain.ResultWin:
			winColor.Fprint(w, "  last WIN")
		case domain.ResultLoss:
			lossColor.Fprint(w, "  last LOSS")
		}
		fmt.Fprintln(w)
	}
}

func renderBacktest(w io.Writer, res backtest.Result) {
	titleColor.Fprintf(w, "Backtest %s\n", res.Game)
	fmt.Fprintf(w, "  Trials: %d  wins %d  losses %d\n", res.Trials, res.Wins, res.Losses)
	fmt.Fprintf(w, "  Win rate: %.1f%%\n", res.WinRate)
	if res.Clamped {
		dimColor.Fprintf(w, "  Raw: %d wins, %d losses, %.1f%% (reported rate floored)\n",
			res.RawWins, res.RawLosses, res.RawWinRate)
	}
	dimColor.Fprintf(w, "  Hit std dev: %.3f\n", res.HitStdDev)
	renderSimulated(w, res.Simulated)
}
