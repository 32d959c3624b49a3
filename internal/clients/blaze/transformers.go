package blaze

import (
	"fmt"
	"time"

	"github.com/aristath/augur/internal/domain"
)

// createdAtLayout parses "2024-05-01T12:00:00.123Z"; the fractional part is optional
const createdAtLayout = "2006-01-02T15:04:05Z"

// ParseCreatedAt parses the created_at field of a wire item
func ParseCreatedAt(s string) (time.Time, error) {
	if t, err := time.Parse(createdAtLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %q: %w", s, err)
	}
	return t.UTC(), nil
}

// TransformDouble converts a wire item into a validated outcome.
// A reported color must agree with the roll.
func TransformDouble(item DoubleItem) (domain.DoubleOutcome, error) {
	if item.Roll == nil {
		return domain.DoubleOutcome{}, fmt.Errorf("double item %s: missing roll", item.ID)
	}

	ts, err := ParseCreatedAt(item.CreatedAt)
	if err != nil {
		return domain.DoubleOutcome{}, err
	}

	var o domain.DoubleOutcome
	if item.Color != nil {
		o, err = domain.NewDoubleOutcomeWithColor(domain.Color(*item.Color), *item.Roll, ts, domain.StatusFinal)
	} else {
		o, err = domain.NewDoubleOutcome(*item.Roll, ts, domain.StatusFinal)
	}
	if err != nil {
		return domain.DoubleOutcome{}, fmt.Errorf("double item %s: %w", item.ID, err)
	}
	o.ID = item.ID
	return o, nil
}

// TransformMines converts a wire item into a validated outcome. A mine count
// carried by the item overrides the configured one.
func TransformMines(item MinesItem, mineCount int) (domain.MinesOutcome, error) {
	if item.MinesCount > 0 {
		mineCount = item.MinesCount
	}

	ts, err := ParseCreatedAt(item.CreatedAt)
	if err != nil {
		return domain.MinesOutcome{}, err
	}

	var o domain.MinesOutcome
	switch {
	case len(item.Grid) > 0:
		if len(item.Grid) != domain.GridSize {
			return domain.MinesOutcome{}, fmt.Errorf("mines item %s: %w: grid has %d cells", item.ID, domain.ErrInvalidCell, len(item.Grid))
		}
		var grid domain.Grid
		for i, v := range item.Grid {
			if v != 0 {
				grid[i] = domain.Mine
			}
		}
		o, err = domain.NewMinesOutcome(grid, mineCount, ts, domain.StatusFinal)
	case len(item.Mines) > 0:
		o, err = domain.NewMinesOutcomeFromPositions(item.Mines, mineCount, ts, domain.StatusFinal)
	default:
		return domain.MinesOutcome{}, fmt.Errorf("mines item %s: no grid or mine positions", item.ID)
	}
	if err != nil {
		return domain.MinesOutcome{}, fmt.Errorf("mines item %s: %w", item.ID, err)
	}
	o.ID = item.ID
	return o, nil
}

// TransformDoubleItems converts a batch, dropping invalid items and those
// created before cutoff. It returns the number of dropped items.
func TransformDoubleItems(items []DoubleItem, cutoff time.Time) ([]domain.DoubleOutcome, int) {
	out := make([]domain.DoubleOutcome, 0, len(items))
	dropped := 0
	for _, item := range items {
		o, err := TransformDouble(item)
		if err != nil || o.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		out = append(out, o)
	}
	return out, dropped
}

// TransformMinesItems converts a batch, dropping invalid items and those
// created before cutoff. It returns the number of dropped items.
func TransformMinesItems(items []MinesItem, mineCount int, cutoff time.Time) ([]domain.MinesOutcome, int) {
	out := make([]domain.MinesOutcome, 0, len(items))
	dropped := 0
	for _, item := range items {
		o, err := TransformMines(item, mineCount)
		if err != nil || o.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		out = append(out, o)
	}
	return out, dropped
}
