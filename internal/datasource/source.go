// Package datasource fills the per-game history stores from the push feed,
// the pull endpoints, the response cache or, as a last resort, simulation.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/clients/blaze"
	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/history"
)

// Mode names where a refresh got its outcomes
type Mode string

const (
	ModeLive      Mode = "live"
	ModeCache     Mode = "cache"
	ModeStale     Mode = "stale"
	ModeSynthetic Mode = "synthetic"
	// ModeRetained means every source failed and the existing history,
	// already large enough to analyze, was kept as is.
	ModeRetained Mode = "retained"
)

// Default synthetic batch sizes
const (
	DefaultDoubleBatch = 100
	DefaultMinesBatch  = 50
	syntheticInterval  = time.Minute
)

// Puller fetches recent rounds over HTTP
type Puller interface {
	FetchDouble(ctx context.Context) (blaze.Batch[domain.DoubleOutcome], error)
	FetchMines(ctx context.Context) (blaze.Batch[domain.MinesOutcome], error)
}

// outcome is a history entry that knows whether it was simulated
type outcome interface {
	history.Entry
	IsSimulated() bool
}

func simulated[T outcome](o T) bool { return o.IsSimulated() }

// Listener is notified of every new outcome the feed appends
type Listener struct {
	OnDouble func(domain.DoubleOutcome)
	OnMines  func(domain.MinesOutcome)
}

// Config controls a Source
type Config struct {
	Feed        config.FeedConfig
	MineCount   int
	DoubleBatch int
	MinesBatch  int
}

// Source owns the refresh policy for both history stores
type Source struct {
	cfg       Config
	puller    Puller
	synthetic *Synthetic
	doubles   *history.Store[domain.DoubleOutcome]
	mines     *history.Store[domain.MinesOutcome]
	events    *events.Manager
	log       zerolog.Logger

	mu    sync.RWMutex
	feeds map[domain.Game]*blaze.FeedClient
	modes map[domain.Game]Mode
}

// New creates a Source. puller may be nil, in which case refreshes go straight to simulation.
func New(
	cfg Config,
	puller Puller,
	synthetic *Synthetic,
	doubles *history.Store[domain.DoubleOutcome],
	mines *history.Store[domain.MinesOutcome],
	em *events.Manager,
	log zerolog.Logger,
) *Source {
	if cfg.DoubleBatch <= 0 {
		cfg.DoubleBatch = DefaultDoubleBatch
	}
	if cfg.MinesBatch <= 0 {
		cfg.MinesBatch = DefaultMinesBatch
	}
	if cfg.MineCount <= 0 {
		cfg.MineCount = domain.DefaultMineCount
	}
	return &Source{
		cfg:       cfg,
		puller:    puller,
		synthetic: synthetic,
		doubles:   doubles,
		mines:     mines,
		events:    em,
		log:       log.With().Str("component", "datasource").Logger(),
		feeds:     make(map[domain.Game]*blaze.FeedClient),
		modes:     make(map[domain.Game]Mode),
	}
}

// Refresh loads recent outcomes for game into its store: pull, then the
// response cache, then simulation. It returns the mode that supplied them.
func (s *Source) Refresh(ctx context.Context, game domain.Game) (Mode, error) {
	var (
		mode  Mode
		added int
		err   error
	)

	switch game {
	case domain.GameDouble:
		mode, added, err = refresh(ctx, s, game, s.doubles, s.pullDouble, func() []domain.DoubleOutcome {
			return s.synthetic.Double(s.cfg.DoubleBatch, syntheticInterval)
		})
	case domain.GameMines:
		mode, added, err = refresh(ctx, s, game, s.mines, s.pullMines, func() []domain.MinesOutcome {
			return s.synthetic.Mines(s.cfg.MinesBatch, syntheticInterval)
		})
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownGame, game)
	}
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.modes[game] = mode
	s.mu.Unlock()

	size := s.Available(game)
	s.log.Info().
		Str("game", string(game)).
		Str("mode", string(mode)).
		Int("added", added).
		Int("size", size).
		Msg("History refreshed")

	if s.events != nil {
		s.events.EmitTyped("datasource", &events.HistoryRefreshedData{
			Game:  string(game),
			Mode:  string(mode),
			Added: added,
			Size:  size,
		})
	}

	if size < history.MinEntries {
		return mode, history.ErrInsufficientData
	}
	return mode, nil
}

func refresh[T outcome](
	ctx context.Context,
	s *Source,
	game domain.Game,
	store *history.Store[T],
	pull func(context.Context) ([]T, blaze.Source, error),
	simulate func() []T,
) (Mode, int, error) {
	if s.puller != nil {
		outcomes, src, err := pull(ctx)
		if err == nil && len(outcomes) > 0 {
			if dropped := store.RemoveIf(simulated[T]); dropped > 0 {
				s.log.Info().Str("game", string(game)).Int("dropped", dropped).Msg("Replaced simulated outcomes")
			}
			return modeFor(src), store.AppendMany(outcomes), nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if err == nil {
			err = errors.New("no outcomes inside the retention window")
		}
		s.log.Warn().Err(err).Str("game", string(game)).Msg("Pull failed")
	}

	if len(store.Snapshot(0)) >= history.MinEntries {
		return ModeRetained, 0, nil
	}

	if s.synthetic == nil {
		return "", 0, history.ErrInsufficientData
	}
	s.log.Warn().Str("game", string(game)).Msg("Using simulated outcomes")
	return ModeSynthetic, store.AppendMany(simulate()), nil
}

func (s *Source) pullDouble(ctx context.Context) ([]domain.DoubleOutcome, blaze.Source, error) {
	batch, err := s.puller.FetchDouble(ctx)
	return batch.Outcomes, batch.Source, err
}

func (s *Source) pullMines(ctx context.Context) ([]domain.MinesOutcome, blaze.Source, error) {
	batch, err := s.puller.FetchMines(ctx)
	return batch.Outcomes, batch.Source, err
}

func modeFor(src blaze.Source) Mode {
	switch src {
	case blaze.SourceCache:
		return ModeCache
	case blaze.SourceStale:
		return ModeStale
	default:
		return ModeLive
	}
}

// Len returns the number of stored outcomes for game
func (s *Source) Len(game domain.Game) int {
	switch game {
	case domain.GameDouble:
		return s.doubles.Len()
	case domain.GameMines:
		return s.mines.Len()
	}
	return 0
}

// Available returns the number of game's outcomes still inside the retention window
func (s *Source) Available(game domain.Game) int {
	switch game {
	case domain.GameDouble:
		return len(s.doubles.Snapshot(0))
	case domain.GameMines:
		return len(s.mines.Snapshot(0))
	}
	return 0
}

// NeedsRefresh reports whether game's window is too short to analyze, or
// holds simulated outcomes a successful pull would replace
func (s *Source) NeedsRefresh(game domain.Game) bool {
	switch game {
	case domain.GameDouble:
		return needsRefresh(s, s.doubles)
	case domain.GameMines:
		return needsRefresh(s, s.mines)
	}
	return false
}

func needsRefresh[T outcome](s *Source, store *history.Store[T]) bool {
	if len(store.Snapshot(0)) < history.MinEntries {
		return true
	}
	return s.puller != nil && store.ContainsFunc(simulated[T])
}

// LastMode returns the mode of the most recent refresh of game
func (s *Source) LastMode(game domain.Game) (Mode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modes[game]
	return m, ok
}

// RunFeed subscribes to game's push feed until ctx is cancelled. New outcomes
// are appended to the store, published as OUTCOME_RECEIVED and passed to l.
func (s *Source) RunFeed(ctx context.Context, game domain.Game, l Listener) error {
	if _, err := domain.ParseGame(string(game)); err != nil {
		return err
	}

	handler := blaze.FeedHandler{
		OnDouble: func(o domain.DoubleOutcome) {
			if !s.doubles.Append(o) {
				return
			}
			s.emitOutcome(&events.OutcomeReceivedData{
				Game: string(game), Source: "feed", Color: o.Color.String(), Number: o.Number,
			})
			if l.OnDouble != nil {
				l.OnDouble(o)
			}
		},
		OnMines: func(o domain.MinesOutcome) {
			if !s.mines.Append(o) {
				return
			}
			s.emitOutcome(&events.OutcomeReceivedData{
				Game: string(game), Source: "feed", Mines: o.Grid.Mines(),
			})
			if l.OnMines != nil {
				l.OnMines(o)
			}
		},
		OnStatus: func(g domain.Game, connected bool, err error) {
			data := &events.FeedStatusData{Game: string(g), Connected: connected}
			if err != nil {
				data.Error = err.Error()
			}
			if s.events != nil {
				s.events.EmitTyped("datasource", data)
			}
		},
	}

	feed := blaze.NewFeedClient(s.cfg.Feed, game, s.cfg.MineCount, handler, s.log)

	s.mu.Lock()
	s.feeds[game] = feed
	s.mu.Unlock()

	return feed.Run(ctx)
}

func (s *Source) emitOutcome(data *events.OutcomeReceivedData) {
	if s.events != nil {
		s.events.EmitTyped("datasource", data)
	}
}

// FeedStatuses returns the status of every feed started with RunFeed
func (s *Source) FeedStatuses() []blaze.FeedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]blaze.FeedStatus, 0, len(s.feeds))
	for _, game := range domain.AllGames {
		if f, ok := s.feeds[game]; ok {
			out = append(out, f.Status())
		}
	}
	return out
}
