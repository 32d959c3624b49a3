package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/clientdata"
	"github.com/aristath/augur/internal/clients/blaze"
	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/datasource"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/engine"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/history"
	"github.com/aristath/augur/internal/metrics"
	"github.com/aristath/augur/internal/prediction"
	"github.com/aristath/augur/internal/reliability"
	"github.com/aristath/augur/internal/stats"
)

// InitializeServices builds every component on top of the opened databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.CacheDB == nil {
		return fmt.Errorf("container databases must be initialized first")
	}

	// Events and metrics come first so later components can publish
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)
	container.Metrics = metrics.New()
	container.unsubscribeMetrics = container.Metrics.Subscribe(container.EventBus)

	container.CacheRepo = clientdata.NewRepository(container.CacheDB.Conn())

	policy := history.Policy{MaxAge: cfg.History.MaxAge, MaxCount: cfg.History.Size}
	container.Doubles = history.NewStore[domain.DoubleOutcome](policy)
	container.Mines = history.NewStore[domain.MinesOutcome](policy)
	container.StatsStore = stats.NewStore(cfg.Path(stats.FileName), log)

	container.Predictor = prediction.New(
		prediction.WithLegacyReporting(cfg.LegacyReporting),
		prediction.WithSeed(cfg.RandomSeed),
		prediction.WithMineCount(cfg.MineCount),
	)
	container.Runner = backtest.NewRunner(container.Predictor, cfg.LegacyReporting)

	container.BlazeClient = blaze.NewClient(cfg.Client, cfg.History.MaxAge, cfg.MineCount, container.CacheRepo, log)
	container.BlazeClient.SetObserver(container.Metrics)

	container.Synthetic = datasource.NewSynthetic(cfg.RandomSeed, cfg.MineCount)
	container.Source = datasource.New(
		datasource.Config{Feed: cfg.Feed, MineCount: cfg.MineCount},
		container.BlazeClient,
		container.Synthetic,
		container.Doubles,
		container.Mines,
		container.EventManager,
		log,
	)

	container.Engine = engine.New(cfg, engine.Deps{
		Doubles:   container.Doubles,
		Mines:     container.Mines,
		Stats:     container.StatsStore,
		Predictor: container.Predictor,
		Runner:    container.Runner,
		Source:    container.Source,
		Events:    container.EventManager,
	}, log)
	container.Engine.Load()

	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			// Backups are optional
			log.Warn().Err(err).Msg("Failed to create S3 client, backups disabled")
		} else {
			container.BackupService = reliability.NewBackupService(
				s3Client,
				cfg.DataDir,
				cfg.Backup.Prefix,
				cfg.Backup.Retention,
				[]string{stats.FileName, engine.DoubleHistoryFile, engine.MinesHistoryFile},
				[]*database.DB{container.CacheDB},
				log,
			)
		}
	}

	log.Info().
		Bool("legacy_reporting", cfg.LegacyReporting).
		Bool("feed_enabled", cfg.Feed.Enabled).
		Bool("backups_enabled", container.BackupService != nil).
		Msg("Services initialized")

	return nil
}
