// Package stats persists running win/loss tallies per game.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/domain"
)

// FileName is the stats document name inside the data directory
const FileName = "stats.json"

// Store holds one StatsRecord per game and writes them to a JSON file
type Store struct {
	mu      sync.Mutex
	path    string
	records map[domain.Game]*domain.StatsRecord
	log     zerolog.Logger
}

// NewStore creates a store backed by path, with empty records for every game
func NewStore(path string, log zerolog.Logger) *Store {
	s := &Store{
		path:    path,
		records: make(map[domain.Game]*domain.StatsRecord, len(domain.AllGames)),
		log:     log.With().Str("component", "stats_store").Logger(),
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	for _, g := range domain.AllGames {
		s.records[g] = &domain.StatsRecord{}
	}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the stats file. A missing file keeps the defaults; an unreadable
// or corrupt file is reported and the defaults are kept.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug().Str("path", s.path).Msg("No stats file yet, starting from zero")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	var loaded map[domain.Game]*domain.StatsRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse stats file: %w", err)
	}

	for g, rec := range loaded {
		if _, known := s.records[g]; !known || rec == nil {
			s.log.Warn().Str("game", string(g)).Msg("Ignoring stats for unknown game")
			continue
		}
		s.records[g] = rec
	}

	s.log.Info().Str("path", s.path).Msg("Loaded stats")
	return nil
}

// Save writes all records atomically
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace stats file: %w", err)
	}
	return nil
}

// Record adds one scored prediction for game
func (s *Store) Record(game domain.Game, win bool) (domain.StatsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[game]
	if !ok {
		return domain.StatsRecord{}, fmt.Errorf("%w: %q", domain.ErrUnknownGame, game)
	}
	rec.Record(win)
	return *rec, nil
}

// RecordBacktest folds a backtest's reported tallies into game's record
func (s *Store) RecordBacktest(game domain.Game, wins, losses int, lastWin bool) (domain.StatsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[game]
	if !ok {
		return domain.StatsRecord{}, fmt.Errorf("%w: %q", domain.ErrUnknownGame, game)
	}
	rec.AddBacktest(wins, losses, lastWin)
	return *rec, nil
}

// Get returns a copy of game's record
func (s *Store) Get(game domain.Game) (domain.StatsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[game]
	if !ok {
		return domain.StatsRecord{}, fmt.Errorf("%w: %q", domain.ErrUnknownGame, game)
	}
	return *rec, nil
}

// All returns copies of every record
func (s *Store) All() map[domain.Game]domain.StatsRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.Game]domain.StatsRecord, len(s.records))
	for g, rec := range s.records {
		out[g] = *rec
	}
	return out
}
