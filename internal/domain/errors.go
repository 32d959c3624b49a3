package domain

import "errors"

var (
	ErrUnknownGame         = errors.New("unknown game")
	ErrInvalidColor        = errors.New("invalid color")
	ErrInvalidNumber       = errors.New("roll number out of range 0-14")
	ErrColorNumberMismatch = errors.New("color does not match roll number")
	ErrInvalidCell         = errors.New("grid cell out of range")
	ErrMineCountMismatch   = errors.New("grid mine count does not match declared mine count")
)
