package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionsPartitionBoard(t *testing.T) {
	seen := make(map[int]Region)
	for _, r := range FineRegions {
		for _, idx := range RegionCells[r] {
			_, dup := seen[idx]
			assert.False(t, dup, "cell %d in more than one fine region", idx)
			seen[idx] = r
		}
	}
	assert.Len(t, seen, GridSize)

	coarse := 0
	for _, r := range CoarseRegions {
		coarse += len(RegionCells[r])
	}
	assert.Equal(t, GridSize, coarse)
}

func TestRegionOf(t *testing.T) {
	assert.Equal(t, RegionCorners, RegionOf(0))
	assert.Equal(t, RegionCenter, RegionOf(12))
	assert.Equal(t, RegionDiagonals, RegionOf(6))
	assert.Equal(t, RegionMiddle, RegionOf(7))
	assert.Equal(t, RegionEdges, RegionOf(1))
	assert.True(t, IsCorner(24))
	assert.False(t, IsCorner(23))
}

func TestGridFromMines(t *testing.T) {
	g, err := GridFromMines([]int{0, 4, 12, 20, 24})
	require.NoError(t, err)
	assert.Equal(t, 5, g.MineCount())
	assert.Equal(t, []int{0, 4, 12, 20, 24}, g.Mines())
	assert.Len(t, g.SafeCells(), 20)

	_, err = GridFromMines([]int{25})
	assert.ErrorIs(t, err, ErrInvalidCell)
}

func TestGridAgreement(t *testing.T) {
	a, _ := GridFromMines([]int{0, 1, 2, 3, 4})
	b, _ := GridFromMines([]int{0, 1, 2, 3, 5})
	assert.Equal(t, 23, a.Agreement(b))
	assert.Equal(t, 25, a.Agreement(a))
}

func TestNewMinesOutcome(t *testing.T) {
	g, _ := GridFromMines([]int{0, 4, 12, 20, 24})

	o, err := NewMinesOutcome(g, 5, time.Now(), StatusFinal)
	require.NoError(t, err)
	assert.Equal(t, 5, o.Grid.MineCount())

	_, err = NewMinesOutcome(g, 3, time.Now(), StatusFinal)
	assert.ErrorIs(t, err, ErrMineCountMismatch)
}

func TestNewMinesOutcomeFromPositions_Deduplicates(t *testing.T) {
	o, err := NewMinesOutcomeFromPositions([]int{3, 3, 7, 9, 11, 13}, 5, time.Now(), StatusFinal)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 9, 11, 13}, o.Grid.Mines())
}

func TestMinesOutcome_JSONRoundTrip(t *testing.T) {
	o, err := NewMinesOutcomeFromPositions([]int{1, 6, 12, 18, 23}, 5, time.Unix(1700000000, 0).UTC(), StatusFinal)
	require.NoError(t, err)

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"grid":[0,1,0,0,0,0,1`)

	var decoded MinesOutcome
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, o.Grid, decoded.Grid)
	assert.Equal(t, 5, decoded.MineCount)
}

func TestMinesOutcome_UnmarshalRejectsBadGrid(t *testing.T) {
	var o MinesOutcome
	err := json.Unmarshal([]byte(`{"grid":[1,1,0],"mine_count":2}`), &o)
	assert.ErrorIs(t, err, ErrInvalidCell)

	grid := `[1,1,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]`
	err = json.Unmarshal([]byte(`{"grid":`+grid+`,"mine_count":5}`), &o)
	assert.ErrorIs(t, err, ErrMineCountMismatch)
}

func TestMinesPredictionHit(t *testing.T) {
	predicted, _ := GridFromMines([]int{0, 4, 12, 20, 24})
	p := MinesPrediction{Grid: predicted}

	// 3 of 5 mines moved: 6 cells differ, 19/25 = 76% agreement
	miss, _ := NewMinesOutcomeFromPositions([]int{0, 4, 1, 2, 3}, 5, time.Now(), StatusFinal)
	assert.False(t, p.Hit(miss))

	// 2 of 5 moved: 4 cells differ, 21/25 = 84% agreement
	hit, _ := NewMinesOutcomeFromPositions([]int{0, 4, 12, 1, 2}, 5, time.Now(), StatusFinal)
	assert.True(t, p.Hit(hit))
}
