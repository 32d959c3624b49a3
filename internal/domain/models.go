// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Game identifies one of the supported games
type Game string

const (
	GameDouble Game = "double"
	GameMines  Game = "mines"
)

// AllGames lists every supported game in display order
var AllGames = []Game{GameDouble, GameMines}

// ParseGame validates a game name
func ParseGame(s string) (Game, error) {
	switch Game(strings.ToLower(strings.TrimSpace(s))) {
	case GameDouble:
		return GameDouble, nil
	case GameMines:
		return GameMines, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGame, s)
}

// Status marks where an outcome came from
type Status string

const (
	StatusFinal     Status = "final"     // Live feed, HTTP pull or cached response
	StatusSimulated Status = "simulated" // Synthetic generation
)

// Color is the Double result color. Values match the wire encoding.
type Color int

const (
	White Color = 0
	Red   Color = 1
	Black Color = 2
)

// Colors lists every color in wire order
var Colors = []Color{White, Red, Black}

func (c Color) String() string {
	switch c {
	case White:
		return "WHITE"
	case Red:
		return "RED"
	case Black:
		return "BLACK"
	}
	return "UNKNOWN"
}

// Valid reports whether c is one of the three colors
func (c Color) Valid() bool {
	return c == White || c == Red || c == Black
}

// Range returns the inclusive number range that belongs to the color
func (c Color) Range() (lo, hi int) {
	switch c {
	case Red:
		return 1, 7
	case Black:
		return 8, 14
	}
	return 0, 0
}

// Opposite returns the other non-white color. White has no opposite.
func (c Color) Opposite() Color {
	switch c {
	case Red:
		return Black
	case Black:
		return Red
	}
	return White
}

// ParseColor accepts a color name or its wire integer
func ParseColor(s string) (Color, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WHITE", "0":
		return White, nil
	case "RED", "1":
		return Red, nil
	case "BLACK", "2":
		return Black, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

// ColorForNumber derives the color a roll number belongs to
func ColorForNumber(number int) (Color, error) {
	switch {
	case number == 0:
		return White, nil
	case number >= 1 && number <= 7:
		return Red, nil
	case number >= 8 && number <= 14:
		return Black, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidNumber, number)
}

// MarshalJSON encodes the color by name
func (c Color) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColor, int(c))
	}
	return json.Marshal(c.String())
}

// MarshalText lets colors key JSON objects by name
func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColor, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a color name used as an object key
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalJSON accepts either the name or the wire integer
func (c *Color) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidColor, string(data))
		}
		raw = strconv.Itoa(n)
	}
	parsed, err := ParseColor(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DoubleOutcome is one completed Double round
type DoubleOutcome struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id,omitempty"`
	Status    Status    `json:"status"`
	Color     Color     `json:"color"`
	Number    int       `json:"number"`
}

// NewDoubleOutcome builds an outcome, deriving the color from the number
func NewDoubleOutcome(number int, ts time.Time, status Status) (DoubleOutcome, error) {
	color, err := ColorForNumber(number)
	if err != nil {
		return DoubleOutcome{}, err
	}
	return DoubleOutcome{Color: color, Number: number, Timestamp: ts, Status: status}, nil
}

// NewDoubleOutcomeWithColor builds an outcome from a reported color and number,
// rejecting pairs that break the color/number ranges
func NewDoubleOutcomeWithColor(color Color, number int, ts time.Time, status Status) (DoubleOutcome, error) {
	o := DoubleOutcome{Color: color, Number: number, Timestamp: ts, Status: status}
	if err := o.Validate(); err != nil {
		return DoubleOutcome{}, err
	}
	return o, nil
}

// Validate checks the color/number invariant
func (o DoubleOutcome) Validate() error {
	expected, err := ColorForNumber(o.Number)
	if err != nil {
		return err
	}
	if expected != o.Color {
		return fmt.Errorf("%w: number %d is %s, got %s", ErrColorNumberMismatch, o.Number, expected, o.Color)
	}
	return nil
}

// Time returns the outcome timestamp
func (o DoubleOutcome) Time() time.Time { return o.Timestamp }

// IsSimulated reports whether the outcome came from synthetic generation
func (o DoubleOutcome) IsSimulated() bool { return o.Status == StatusSimulated }

// Key identifies the outcome for de-duplication
func (o DoubleOutcome) Key() string {
	if o.ID != "" {
		return o.ID
	}
	return fmt.Sprintf("%d:%d", o.Timestamp.UnixNano(), o.Number)
}

// UnmarshalJSON decodes and re-validates the outcome
func (o *DoubleOutcome) UnmarshalJSON(data []byte) error {
	type alias DoubleOutcome
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	decoded := DoubleOutcome(a)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*o = decoded
	return nil
}
