package domain

// Result is the outcome of one scored prediction
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
)

// StatsRecord holds running win/loss tallies for one game.
// WinRate is a fraction in [0,1].
type StatsRecord struct {
	LastResult     Result  `json:"last_result,omitempty"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	TotalBacktests int     `json:"total_backtests"`
}

// Record adds one scored prediction
func (s *StatsRecord) Record(win bool) {
	if win {
		s.Wins++
		s.LastResult = ResultWin
	} else {
		s.Losses++
		s.LastResult = ResultLoss
	}
	s.recompute()
}

// AddBacktest folds a backtest's tallies into the record
func (s *StatsRecord) AddBacktest(wins, losses int, lastWin bool) {
	s.Wins += wins
	s.Losses += losses
	s.TotalBacktests++
	if wins+losses > 0 {
		if lastWin {
			s.LastResult = ResultWin
		} else {
			s.LastResult = ResultLoss
		}
	}
	s.recompute()
}

// Total returns the number of scored predictions
func (s StatsRecord) Total() int {
	return s.Wins + s.Losses
}

func (s *StatsRecord) recompute() {
	total := s.Wins + s.Losses
	if total == 0 {
		s.WinRate = 0
		return
	}
	s.WinRate = float64(s.Wins) / float64(total)
}
