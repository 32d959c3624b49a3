// Package di wires the application's components into a single container.
package di

import (
	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/clientdata"
	"github.com/aristath/augur/internal/clients/blaze"
	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/datasource"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/engine"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/history"
	"github.com/aristath/augur/internal/metrics"
	"github.com/aristath/augur/internal/prediction"
	"github.com/aristath/augur/internal/reliability"
	"github.com/aristath/augur/internal/scheduler"
	"github.com/aristath/augur/internal/stats"
)

// Container holds every long-lived component.
// It is created by Wire and handed to the CLI and the HTTP server.
type Container struct {
	// Databases
	CacheDB *database.DB // response cache (cache.db)

	// Repositories
	CacheRepo *clientdata.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// History and stats
	Doubles    *history.Store[domain.DoubleOutcome]
	Mines      *history.Store[domain.MinesOutcome]
	StatsStore *stats.Store

	// Prediction
	Predictor *prediction.Predictor
	Runner    *backtest.Runner

	// Data acquisition
	BlazeClient *blaze.Client
	Synthetic   *datasource.Synthetic
	Source      *datasource.Source

	Engine *engine.Engine

	// Operations
	Metrics       *metrics.Registry
	BackupService *reliability.BackupService // nil when no bucket is configured
	Scheduler     *scheduler.Scheduler

	unsubscribeMetrics func()
}

// JobInstances holds the scheduled jobs for manual triggering
type JobInstances struct {
	RefreshDouble  scheduler.Job
	RefreshMines   scheduler.Job
	BacktestDouble scheduler.Job
	BacktestMines  scheduler.Job
	Save           scheduler.Job
	CacheCleanup   scheduler.Job
	WALCheckpoint  scheduler.Job
	Maintenance    scheduler.Job
	Backup         scheduler.Job // nil when backups are disabled
}
