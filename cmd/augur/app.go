package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/di"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/server"
)

// predictor is the engine surface the CLI renders
type predictor interface {
	PredictDouble(ctx context.Context) (domain.DoublePrediction, error)
	PredictMines(ctx context.Context) (domain.MinesPrediction, error)
	Backtest(ctx context.Context, game domain.Game) (backtest.Result, error)
	Stats() map[domain.Game]domain.StatsRecord
	Save() error
}

// app renders engine results to out
type app struct {
	engine predictor
	out    io.Writer
	log    zerolog.Logger
}

// PredictDouble prints the next Double prediction and saves state
func (a *app) PredictDouble(ctx context.Context) error {
	p, err := a.engine.PredictDouble(ctx)
	if err != nil {
		return err
	}
	renderDoublePrediction(a.out, p)
	a.save()
	return nil
}

// PredictMines prints the next Mines prediction and saves state
func (a *app) PredictMines(ctx context.Context) error {
	p, err := a.engine.PredictMines(ctx)
	if err != nil {
		return err
	}
	renderMinesPrediction(a.out, p)
	a.save()
	return nil
}

// ShowStats prints running stats for every game
func (a *app) ShowStats() error {
	renderStats(a.out, a.engine.Stats())
	return nil
}

// Backtest runs and prints a backtest
func (a *app) Backtest(ctx context.Context, game domain.Game) error {
	res, err := a.engine.Backtest(ctx, game)
	if err != nil {
		return err
	}
	renderBacktest(a.out, res)
	return nil
}

func (a *app) save() {
	if err := a.engine.Save(); err != nil {
		a.log.Error().Err(err).Msg("Failed to save state")
	}
}

// withContainer wires the container, runs fn and persists state on the way out
func withContainer(ctx context.Context, cfg *config.Config, log zerolog.Logger, fn func(*di.Container, *di.JobInstances) error) error {
	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}

	runErr := fn(container, jobs)
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close container")
	}
	return runErr
}

// serve runs the scheduler, the live feed and the HTTP API until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, container *di.Container) error {
	container.Scheduler.Start()
	defer container.Scheduler.Stop()

	feedDone := make(chan error, 1)
	go func() {
		feedDone <- container.Engine.Run(ctx)
	}()

	srv := server.New(server.Config{
		Log:     log,
		Engine:  container.Engine,
		Jobs:    container.Scheduler,
		Bus:     container.EventBus,
		CacheDB: container.CacheDB,
		Metrics: container.Metrics.Handler(),
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	log.Info().Int("port", cfg.Port).Msg("augur is running")

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	select {
	case err := <-feedDone:
		if err != nil {
			log.Error().Err(err).Msg("Live feed stopped with error")
		}
	case <-shutdownCtx.Done():
		log.Warn().Msg("Live feed did not stop in time")
	}

	log.Info().Msg("Server stopped")
	return runErr
}
