package history

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aristath/augur/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

func roll(t *testing.T, number int, ts time.Time) domain.DoubleOutcome {
	t.Helper()
	o, err := domain.NewDoubleOutcome(number, ts, domain.StatusFinal)
	require.NoError(t, err)
	return o
}

func newDoubleStore(policy Policy) *Store[domain.DoubleOutcome] {
	return NewStore[domain.DoubleOutcome](policy, WithClock[domain.DoubleOutcome](fixedClock))
}

func TestAppend_NewestFirst(t *testing.T) {
	s := newDoubleStore(Policy{})

	s.Append(roll(t, 1, baseTime.Add(-2*time.Minute)))
	s.Append(roll(t, 9, baseTime.Add(-time.Minute)))
	s.Append(roll(t, 0, baseTime))

	snap := s.Snapshot(0)
	require.Len(t, snap, 3)
	assert.Equal(t, 0, snap[0].Number)
	assert.Equal(t, 9, snap[1].Number)
	assert.Equal(t, 1, snap[2].Number)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 0, latest.Number)
}

func TestAppend_IgnoresDuplicates(t *testing.T) {
	s := newDoubleStore(Policy{})
	o := roll(t, 5, baseTime)

	assert.True(t, s.Append(o))
	assert.False(t, s.Append(o))
	assert.Equal(t, 1, s.Len())
}

func TestPrune_24hRetention(t *testing.T) {
	s := newDoubleStore(Policy{MaxAge: 24 * time.Hour})

	old := roll(t, 3, baseTime.Add(-25*time.Hour))
	fresh := roll(t, 10, baseTime)

	// Append prunes immediately, so insert the stale entry directly
	s.entries = append(s.entries, old)
	s.keys[old.Key()] = struct{}{}
	assert.Equal(t, 1, s.Len())

	removed := s.Prune(baseTime)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, s.Len())

	assert.True(t, s.Append(fresh))
	s.Prune(baseTime)
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.Append(old), "an outcome older than the window is dropped on append")
	assert.Equal(t, 1, s.Len())
}

func TestPrune_MaxCount(t *testing.T) {
	s := newDoubleStore(Policy{MaxCount: 5})

	for i := 0; i < 8; i++ {
		s.Append(roll(t, i, baseTime.Add(time.Duration(i)*time.Second)))
	}

	snap := s.Snapshot(0)
	require.Len(t, snap, 5)
	assert.Equal(t, 7, snap[0].Number)
	assert.Equal(t, 3, snap[4].Number)
}

func TestAppendMany_SortsAndDeduplicates(t *testing.T) {
	s := newDoubleStore(Policy{MaxAge: 24 * time.Hour})

	batch := []domain.DoubleOutcome{
		roll(t, 1, baseTime.Add(-3*time.Minute)),
		roll(t, 2, baseTime.Add(-1*time.Minute)),
		roll(t, 3, baseTime.Add(-2*time.Minute)),
		roll(t, 4, baseTime.Add(-48*time.Hour)),
	}
	added := s.AppendMany(batch)
	assert.Equal(t, 3, added)

	added = s.AppendMany(batch[:2])
	assert.Equal(t, 0, added)

	snap := s.Snapshot(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int{2, 3, 1}, []int{snap[0].Number, snap[1].Number, snap[2].Number})
}

func TestRemoveIf(t *testing.T) {
	s := newDoubleStore(Policy{})
	for i := 0; i < 6; i++ {
		o := roll(t, i, baseTime.Add(-time.Duration(i)*time.Minute))
		if i%2 == 0 {
			o.Status = domain.StatusSimulated
		}
		s.Append(o)
	}
	require.True(t, s.ContainsFunc(domain.DoubleOutcome.IsSimulated))

	removed := s.RemoveIf(domain.DoubleOutcome.IsSimulated)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.ContainsFunc(domain.DoubleOutcome.IsSimulated))

	snap := s.Snapshot(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{snap[0].Number, snap[1].Number, snap[2].Number})

	// Removed keys can be appended again
	assert.True(t, s.Append(roll(t, 0, baseTime)))
}

func TestSnapshot_Bounds(t *testing.T) {
	s := newDoubleStore(Policy{MaxAge: 24 * time.Hour})
	for i := 0; i < 20; i++ {
		s.Append(roll(t, i%15, baseTime.Add(time.Duration(-i)*time.Minute)))
	}

	for _, n := range []int{1, 5, 10, 20, 50} {
		snap := s.Snapshot(n)
		assert.LessOrEqual(t, len(snap), n)
		for _, o := range snap {
			assert.False(t, o.Time().Before(baseTime.Add(-24*time.Hour)))
		}
	}
}

func TestSnapshot_ExcludesEntriesThatAgedOut(t *testing.T) {
	now := baseTime
	s := NewStore[domain.DoubleOutcome](Policy{MaxAge: time.Hour}, WithClock[domain.DoubleOutcome](func() time.Time { return now }))

	s.Append(roll(t, 4, baseTime.Add(-30*time.Minute)))
	s.Append(roll(t, 5, baseTime))

	now = baseTime.Add(45 * time.Minute)
	snap := s.Snapshot(10)
	require.Len(t, snap, 1)
	assert.Equal(t, 5, snap[0].Number)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newDoubleStore(Policy{})
	s.Append(roll(t, 1, baseTime))

	snap := s.Snapshot(1)
	snap[0].Number = 14

	again := s.Snapshot(1)
	assert.Equal(t, 1, again[0].Number)
}

func TestRequire(t *testing.T) {
	assert.ErrorIs(t, Require(make([]int, 9)), ErrInsufficientData)
	assert.NoError(t, Require(make([]int, 10)))
}

func TestReversed(t *testing.T) {
	in := []int{1, 2, 3}
	assert.Equal(t, []int{3, 2, 1}, Reversed(in))
	assert.Equal(t, []int{1, 2, 3}, in)
}

func TestSaveLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "double_history.json")

	s := newDoubleStore(Policy{MaxCount: 100})
	for i := 0; i < 15; i++ {
		s.Append(roll(t, i, baseTime.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, s.SaveJSON(path))

	loaded := newDoubleStore(Policy{MaxCount: 100})
	n, err := loaded.LoadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, s.Snapshot(0), loaded.Snapshot(0))
}

func TestLoadJSON_MissingFile(t *testing.T) {
	s := newDoubleStore(Policy{})
	n, err := s.LoadJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newDoubleStore(Policy{MaxCount: 50})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			o := roll(t, i%15, baseTime.Add(time.Duration(i)*time.Millisecond))
			o.ID = fmt.Sprintf("r%d", i)
			s.Append(o)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			assert.LessOrEqual(t, len(s.Snapshot(20)), 20)
		}
	}()
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}
