// Package blaze provides the pull client and the push feed for the public
// Double and Mines game endpoints.
package blaze

// DoubleItem is one round as returned by the recent-games endpoint and the
// double.tick feed event
type DoubleItem struct {
	ID        string `json:"id" msgpack:"id"`
	CreatedAt string `json:"created_at" msgpack:"created_at"`
	Color     *int   `json:"color" msgpack:"color"`
	Roll      *int   `json:"roll" msgpack:"roll"`
	Status    string `json:"status" msgpack:"status"`
}

// MinesItem is one round as returned by the recent-games endpoint and the
// mines.update feed event. Some payloads carry a 25-cell grid (1 = mine),
// others the list of mine positions.
type MinesItem struct {
	ID         string `json:"id" msgpack:"id"`
	CreatedAt  string `json:"created_at" msgpack:"created_at"`
	Grid       []int  `json:"grid,omitempty" msgpack:"grid"`
	Mines      []int  `json:"mines,omitempty" msgpack:"mines"`
	MinesCount int    `json:"mines_count,omitempty" msgpack:"mines_count"`
	Status     string `json:"status" msgpack:"status"`
}

// Source tells where a pulled batch came from
type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache" // Fresh cache entry after every endpoint failed
	SourceStale Source = "stale" // Expired cache entry, last resort before synthetic data
)

// statusComplete marks a finished Double round on the feed
const statusComplete = "complete"
