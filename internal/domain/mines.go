package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	GridWidth        = 5
	GridSize         = GridWidth * GridWidth
	DefaultMineCount = 5
)

// Cell is the state of one grid position
type Cell uint8

const (
	Safe Cell = 0
	Mine Cell = 1
)

// Grid is a 5x5 board addressed by row*5+col
type Grid [GridSize]Cell

// GridFromMines builds a grid with the given positions marked as mines
func GridFromMines(indices []int) (Grid, error) {
	var g Grid
	for _, idx := range indices {
		if idx < 0 || idx >= GridSize {
			return Grid{}, fmt.Errorf("%w: %d", ErrInvalidCell, idx)
		}
		g[idx] = Mine
	}
	return g, nil
}

// MineCount counts mine cells
func (g Grid) MineCount() int {
	n := 0
	for _, c := range g {
		if c == Mine {
			n++
		}
	}
	return n
}

// Mines returns mine positions in ascending order
func (g Grid) Mines() []int {
	out := make([]int, 0, DefaultMineCount)
	for i, c := range g {
		if c == Mine {
			out = append(out, i)
		}
	}
	return out
}

// SafeCells returns safe positions in ascending order
func (g Grid) SafeCells() []int {
	out := make([]int, 0, GridSize)
	for i, c := range g {
		if c == Safe {
			out = append(out, i)
		}
	}
	return out
}

// Agreement counts cells that hold the same state in both grids
func (g Grid) Agreement(other Grid) int {
	n := 0
	for i := range g {
		if g[i] == other[i] {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the grid as a list of 0/1 values
func (g Grid) MarshalJSON() ([]byte, error) {
	cells := make([]int, GridSize)
	for i, c := range g {
		cells[i] = int(c)
	}
	return json.Marshal(cells)
}

// UnmarshalJSON decodes a 25-element list of 0/1 values
func (g *Grid) UnmarshalJSON(data []byte) error {
	var cells []int
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	if len(cells) != GridSize {
		return fmt.Errorf("%w: grid has %d cells", ErrInvalidCell, len(cells))
	}
	var out Grid
	for i, v := range cells {
		if v != int(Safe) && v != int(Mine) {
			return fmt.Errorf("%w: cell %d has value %d", ErrInvalidCell, i, v)
		}
		out[i] = Cell(v)
	}
	*g = out
	return nil
}

// Row and Col split a position into grid coordinates
func Row(idx int) int { return idx / GridWidth }
func Col(idx int) int { return idx % GridWidth }

// Region is a named fixed subset of grid positions
type Region string

const (
	RegionCorners   Region = "corners"
	RegionEdges     Region = "edges"
	RegionCenter    Region = "center"
	RegionCenter9   Region = "center9"
	RegionDiagonals Region = "diagonals"
	RegionMiddle    Region = "middle"
)

// RegionCells maps each region to its positions
var RegionCells = map[Region][]int{
	RegionCorners:   {0, 4, 20, 24},
	RegionEdges:     {1, 2, 3, 5, 9, 10, 14, 15, 19, 21, 22, 23},
	RegionCenter:    {12},
	RegionCenter9:   {6, 7, 8, 11, 12, 13, 16, 17, 18},
	RegionDiagonals: {6, 8, 16, 18},
	RegionMiddle:    {7, 11, 13, 17},
}

// CoarseRegions partitions the board into border and inner block
var CoarseRegions = []Region{RegionCorners, RegionEdges, RegionCenter9}

// FineRegions partitions the board into five rings of symmetry
var FineRegions = []Region{RegionCenter, RegionMiddle, RegionDiagonals, RegionEdges, RegionCorners}

// RegionOf returns the fine region containing idx
func RegionOf(idx int) Region {
	for _, r := range FineRegions {
		for _, c := range RegionCells[r] {
			if c == idx {
				return r
			}
		}
	}
	return ""
}

// IsCorner reports whether idx is a corner position
func IsCorner(idx int) bool {
	return RegionOf(idx) == RegionCorners
}

// MinesOutcome is one completed Mines round
type MinesOutcome struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id,omitempty"`
	Status    Status    `json:"status"`
	Grid      Grid      `json:"grid"`
	MineCount int       `json:"mine_count"`
}

// NewMinesOutcome builds an outcome, rejecting grids whose mine count differs
func NewMinesOutcome(grid Grid, mineCount int, ts time.Time, status Status) (MinesOutcome, error) {
	o := MinesOutcome{Grid: grid, MineCount: mineCount, Timestamp: ts, Status: status}
	if err := o.Validate(); err != nil {
		return MinesOutcome{}, err
	}
	return o, nil
}

// NewMinesOutcomeFromPositions builds an outcome from mine positions
func NewMinesOutcomeFromPositions(positions []int, mineCount int, ts time.Time, status Status) (MinesOutcome, error) {
	unique := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		unique[p] = struct{}{}
	}
	indices := make([]int, 0, len(unique))
	for p := range unique {
		indices = append(indices, p)
	}
	sort.Ints(indices)
	grid, err := GridFromMines(indices)
	if err != nil {
		return MinesOutcome{}, err
	}
	return NewMinesOutcome(grid, mineCount, ts, status)
}

// Validate checks the mine count invariant
func (o MinesOutcome) Validate() error {
	if o.MineCount <= 0 || o.MineCount >= GridSize {
		return fmt.Errorf("%w: declared %d", ErrMineCountMismatch, o.MineCount)
	}
	if got := o.Grid.MineCount(); got != o.MineCount {
		return fmt.Errorf("%w: grid has %d, declared %d", ErrMineCountMismatch, got, o.MineCount)
	}
	return nil
}

// Time returns the outcome timestamp
func (o MinesOutcome) Time() time.Time { return o.Timestamp }

// IsSimulated reports whether the outcome came from synthetic generation
func (o MinesOutcome) IsSimulated() bool { return o.Status == StatusSimulated }

// Key identifies the outcome for de-duplication
func (o MinesOutcome) Key() string {
	if o.ID != "" {
		return o.ID
	}
	return fmt.Sprintf("%d:%v", o.Timestamp.UnixNano(), o.Grid.Mines())
}

// UnmarshalJSON decodes and re-validates the outcome
func (o *MinesOutcome) UnmarshalJSON(data []byte) error {
	type alias MinesOutcome
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	decoded := MinesOutcome(a)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*o = decoded
	return nil
}
