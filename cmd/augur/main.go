// Package main is the augur command line: an interactive menu, single-shot
// prediction commands and a long-running API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/di"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/pkg/logger"
)

var noColor bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "augur",
		Short: "Double and Mines outcome predictor",
		Long: `augur collects recent Double and Mines rounds, analyzes their patterns and
prints a guess for the next round with a confidence score. Without a
subcommand it opens an interactive menu.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: runMenuCmd,
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		&cobra.Command{
			Use:   "menu",
			Short: "Open the interactive menu",
			RunE:  runMenuCmd,
		},
		&cobra.Command{
			Use:   "double",
			Short: "Predict the next Double round",
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				return a.PredictDouble(ctx)
			}),
		},
		&cobra.Command{
			Use:   "mines",
			Short: "Predict safe cells for the next Mines round",
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				return a.PredictMines(ctx)
			}),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show running win/loss statistics",
			RunE: withApp(func(_ context.Context, a *app, _ []string) error {
				return a.ShowStats()
			}),
		},
		&cobra.Command{
			Use:       "backtest [double|mines]",
			Short:     "Replay recent history and report the hit rate",
			Args:      cobra.MaximumNArgs(1),
			ValidArgs: []string{string(domain.GameDouble), string(domain.GameMines)},
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				games := domain.AllGames
				if len(args) == 1 {
					g, err := domain.ParseGame(args[0])
					if err != nil {
						return err
					}
					games = []domain.Game{g}
				}
				for _, g := range games {
					if err := a.Backtest(ctx, g); err != nil {
						return err
					}
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the scheduler, live feed and HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := setup()
				if err != nil {
					return err
				}
				log.Info().Msg("Starting augur server")
				return withContainer(cmd.Context(), cfg, log, func(c *di.Container, _ *di.JobInstances) error {
					return serve(cmd.Context(), cfg, log, c)
				})
			},
		},
	)

	return root
}

// setup loads configuration and builds the logger
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	return cfg, log, nil
}

// withApp adapts an app action into a cobra RunE
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		return withContainer(cmd.Context(), cfg, log, func(c *di.Container, _ *di.JobInstances) error {
			a := &app{engine: c.Engine, out: cmd.OutOrStdout(), log: log}
			return fn(cmd.Context(), a, args)
		})
	}
}

func runMenuCmd(cmd *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, a *app, _ []string) error {
		return runMenu(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a)
	})(cmd, nil)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
