// Package metrics exposes prediction and transport counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/events"
)

// Registry holds all augur metrics
type Registry struct {
	reg *prometheus.Registry

	FetchDuration   *prometheus.HistogramVec
	FetchErrors     *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	Predictions     *prometheus.CounterVec
	Scored          *prometheus.CounterVec
	Backtests       *prometheus.CounterVec
	BacktestWinRate *prometheus.GaugeVec
	FeedConnected   *prometheus.GaugeVec
	HistorySize     *prometheus.GaugeVec
	Errors          *prometheus.CounterVec
	Backups         prometheus.Counter
}

// New creates a registry with process and Go collectors attached
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "augur_fetch_duration_seconds",
				Help:    "Duration of history requests per endpoint",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"game", "endpoint", "result"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_fetch_errors_total",
				Help: "Failed history requests per endpoint",
			},
			[]string{"game", "endpoint"},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_outcomes_received_total",
				Help: "Outcomes appended from the live feed",
			},
			[]string{"game"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_history_refreshes_total",
				Help: "History refreshes by resulting mode",
			},
			[]string{"game", "mode"},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_predictions_total",
				Help: "Predictions produced",
			},
			[]string{"game", "simulated"},
		),
		Scored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_predictions_scored_total",
				Help: "Live predictions scored against the next outcome",
			},
			[]string{"game", "result"},
		),
		Backtests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_backtests_total",
				Help: "Completed backtests",
			},
			[]string{"game"},
		),
		BacktestWinRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "augur_backtest_raw_win_rate",
				Help: "Raw win rate of the most recent backtest (0-100)",
			},
			[]string{"game"},
		),
		FeedConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "augur_feed_connected",
				Help: "1 when the live feed for a game is connected",
			},
			[]string{"game"},
		),
		HistorySize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "augur_history_size",
				Help: "Outcomes held per game after the last refresh",
			},
			[]string{"game"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_errors_total",
				Help: "Errors emitted per module",
			},
			[]string{"module"},
		),
		Backups: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "augur_backups_total",
				Help: "Completed data directory backups",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.FetchDuration,
		r.FetchErrors,
		r.Outcomes,
		r.Refreshes,
		r.Predictions,
		r.Scored,
		r.Backtests,
		r.BacktestWinRate,
		r.FeedConnected,
		r.HistorySize,
		r.Errors,
		r.Backups,
	)

	return r
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveFetch records one history request
func (r *Registry) ObserveFetch(game domain.Game, endpoint string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		r.FetchErrors.WithLabelValues(string(game), endpoint).Inc()
	}
	r.FetchDuration.WithLabelValues(string(game), endpoint, result).Observe(elapsed.Seconds())
}

// Subscribe updates counters from bus events. The returned func unsubscribes.
func (r *Registry) Subscribe(bus *events.Bus) func() {
	return bus.SubscribeAll(r.handle)
}

func (r *Registry) handle(e *events.Event) {
	game := str(e.Data, "game")

	switch e.Type {
	case events.OutcomeReceived:
		r.Outcomes.WithLabelValues(game).Inc()
	case events.HistoryRefreshed:
		r.Refreshes.WithLabelValues(game, str(e.Data, "mode")).Inc()
		r.HistorySize.WithLabelValues(game).Set(num(e.Data, "size"))
	case events.PredictionMade:
		simulated := "false"
		if b, _ := e.Data["simulated"].(bool); b {
			simulated = "true"
		}
		r.Predictions.WithLabelValues(game, simulated).Inc()
	case events.PredictionScored:
		r.Scored.WithLabelValues(game, str(e.Data, "result")).Inc()
	case events.BacktestCompleted:
		r.Backtests.WithLabelValues(game).Inc()
		r.BacktestWinRate.WithLabelValues(game).Set(num(e.Data, "raw_win_rate"))
	case events.FeedStatusChanged:
		v := 0.0
		if b, _ := e.Data["connected"].(bool); b {
			v = 1
		}
		r.FeedConnected.WithLabelValues(game).Set(v)
	case events.BackupCompleted:
		r.Backups.Inc()
	case events.ErrorOccurred:
		r.Errors.WithLabelValues(e.Module).Inc()
	}
}

func str(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

// num reads a JSON number; event data passes through encoding/json so numbers are float64
func num(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
