package blaze

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerInterval = 60 * time.Second
	breakerTimeout  = 60 * time.Second
)

// breakerSet holds one circuit breaker per endpoint
type breakerSet struct {
	mu       sync.Mutex
	trip     uint32
	breakers map[string]*gobreaker.CircuitBreaker
	onChange func(name string, from, to gobreaker.State)
}

func newBreakerSet(trip uint32, onChange func(name string, from, to gobreaker.State)) *breakerSet {
	if trip == 0 {
		trip = 3
	}
	return &breakerSet{
		trip:     trip,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		onChange: onChange,
	}
}

func (s *breakerSet) get(endpoint string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[endpoint]; ok {
		return cb
	}

	trip := s.trip
	st := gobreaker.Settings{
		Name:     endpoint,
		Interval: breakerInterval,
		Timeout:  breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= trip {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		OnStateChange: s.onChange,
	}
	cb := gobreaker.NewCircuitBreaker(st)
	s.breakers[endpoint] = cb
	return cb
}

// states returns the current state of every known breaker
func (s *breakerSet) states() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.breakers))
	for name, cb := range s.breakers {
		out[name] = cb.State().String()
	}
	return out
}
