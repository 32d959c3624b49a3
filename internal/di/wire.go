package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
//  1. Initialize databases
//  2. Initialize services
//  3. Register jobs (not started)
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(ctx, container, cfg, log); err != nil {
		container.CacheDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(ctx, container, cfg, log)
	if err != nil {
		container.CacheDB.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}

// Close persists engine state and releases the databases.
// The scheduler must already be stopped.
func (c *Container) Close() error {
	var errs []error

	if c.Engine != nil {
		if err := c.Engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.unsubscribeMetrics != nil {
		c.unsubscribeMetrics()
	}
	if c.CacheDB != nil {
		if err := c.CacheDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache database: %w", err))
		}
	}

	return errors.Join(errs...)
}
