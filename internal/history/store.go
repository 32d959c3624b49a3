// Package history keeps the bounded, newest-first outcome window for one game.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MinEntries is the smallest window any analysis accepts
const MinEntries = 10

// ErrInsufficientData is returned when fewer than MinEntries outcomes are available
var ErrInsufficientData = errors.New("insufficient data: at least 10 outcomes are required")

// Entry is an outcome that can be kept in a Store
type Entry interface {
	Time() time.Time
	Key() string
}

// Policy bounds a store. Zero fields disable that rule.
type Policy struct {
	MaxAge   time.Duration
	MaxCount int
}

// Store is a newest-first outcome sequence safe for one writer and many readers
type Store[T Entry] struct {
	mu      sync.RWMutex
	entries []T
	keys    map[string]struct{}
	policy  Policy
	now     func() time.Time
}

// Option configures a Store
type Option[T Entry] func(*Store[T])

// WithClock replaces time.Now, for tests
func WithClock[T Entry](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// NewStore creates an empty store with the given retention policy
func NewStore[T Entry](policy Policy, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		keys:   make(map[string]struct{}),
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the retention policy
func (s *Store[T]) Policy() Policy {
	return s.policy
}

// Append inserts an outcome at the head and prunes.
// Returns false if the outcome was already present or falls outside the window.
func (s *Store[T]) Append(o T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[o.Key()]; ok {
		return false
	}
	s.entries = append([]T{o}, s.entries...)
	s.keys[o.Key()] = struct{}{}
	s.pruneLocked(s.now())

	_, kept := s.keys[o.Key()]
	return kept
}

// AppendMany bulk-loads outcomes in any order, keeping the store newest-first.
// Returns the number of new outcomes retained.
func (s *Store[T]) AppendMany(outcomes []T) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		k := o.Key()
		if _, ok := s.keys[k]; ok {
			continue
		}
		s.entries = append(s.entries, o)
		s.keys[k] = struct{}{}
		added = append(added, k)
	}
	sortNewestFirst(s.entries)
	s.pruneLocked(s.now())

	kept := 0
	for _, k := range added {
		if _, ok := s.keys[k]; ok {
			kept++
		}
	}
	return kept
}

// Replace discards the current contents and loads outcomes
func (s *Store[T]) Replace(outcomes []T) {
	s.mu.Lock()
	s.entries = nil
	s.keys = make(map[string]struct{})
	s.mu.Unlock()

	s.AppendMany(outcomes)
}

// RemoveIf deletes every entry matching fn. Returns the number removed.
func (s *Store[T]) RemoveIf(fn func(T) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if fn(e) {
			delete(s.keys, e.Key())
			continue
		}
		kept = append(kept, e)
	}
	removed := len(s.entries) - len(kept)
	clearTail(s.entries, len(kept))
	s.entries = kept
	return removed
}

// ContainsFunc reports whether any retained entry matches fn
func (s *Store[T]) ContainsFunc(fn func(T) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if fn(e) {
			return true
		}
	}
	return false
}

// Prune removes entries that violate the retention policy at now.
// Returns the number removed.
func (s *Store[T]) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

func (s *Store[T]) pruneLocked(now time.Time) int {
	before := len(s.entries)

	if s.policy.MaxAge > 0 {
		cutoff := now.Add(-s.policy.MaxAge)
		kept := s.entries[:0]
		for _, e := range s.entries {
			if e.Time().Before(cutoff) {
				delete(s.keys, e.Key())
				continue
			}
			kept = append(kept, e)
		}
		clearTail(s.entries, len(kept))
		s.entries = kept
	}

	if s.policy.MaxCount > 0 && len(s.entries) > s.policy.MaxCount {
		for _, e := range s.entries[s.policy.MaxCount:] {
			delete(s.keys, e.Key())
		}
		clearTail(s.entries, s.policy.MaxCount)
		s.entries = s.entries[:s.policy.MaxCount]
	}

	return before - len(s.entries)
}

// Snapshot returns a copy of at most n of the newest entries that are inside
// the retention window at call time. n <= 0 returns every retained entry.
func (s *Store[T]) Snapshot(n int) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if s.policy.MaxAge > 0 {
		cutoff = s.now().Add(-s.policy.MaxAge)
	}

	limit := len(s.entries)
	if n > 0 && n < limit {
		limit = n
	}

	out := make([]T, 0, limit)
	for _, e := range s.entries {
		if len(out) == limit {
			break
		}
		if !cutoff.IsZero() && e.Time().Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Latest returns the newest entry
func (s *Store[T]) Latest() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if len(s.entries) == 0 {
		return zero, false
	}
	return s.entries[0], true
}

// Len returns the number of retained entries
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Require returns ErrInsufficientData when the snapshot is below MinEntries
func Require[T any](snapshot []T) error {
	if len(snapshot) < MinEntries {
		return fmt.Errorf("%w (have %d)", ErrInsufficientData, len(snapshot))
	}
	return nil
}

// Reversed returns a copy of s in reverse order
func Reversed[T any](s []T) []T {
	out := make([]T, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// SaveJSON writes the store to path atomically
func (s *Store[T]) SaveJSON(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(0), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// LoadJSON replaces the store contents with the outcomes in path.
// A missing file leaves the store empty and is not an error.
func (s *Store[T]) LoadJSON(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read history file: %w", err)
	}

	var outcomes []T
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return 0, fmt.Errorf("failed to parse history file %s: %w", filepath.Base(path), err)
	}
	s.Replace(outcomes)
	return s.Len(), nil
}

func sortNewestFirst[T Entry](entries []T) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time().After(entries[j].Time())
	})
}

func clearTail[T any](s []T, from int) {
	var zero T
	for i := from; i < len(s); i++ {
		s[i] = zero
	}
}
