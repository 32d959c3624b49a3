package blaze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/augur/internal/clientdata"
	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/domain"
)

// ErrUnavailable is returned when every endpoint failed and nothing is cached
var ErrUnavailable = errors.New("no endpoint returned data")

const maxBodyBytes = 4 << 20

// FetchObserver receives the latency and result of every endpoint request
type FetchObserver interface {
	ObserveFetch(game domain.Game, endpoint string, elapsed time.Duration, err error)
}

// Batch is the result of a pull
type Batch[T any] struct {
	Outcomes []T
	Source   Source
	Endpoint string
	Dropped  int // invalid or older than the retention window
}

// Client pulls recent rounds from the public endpoints. Each endpoint sits
// behind a circuit breaker, each host behind a rate limiter, and the last
// good payload per endpoint is cached for outages.
type Client struct {
	cfg       config.ClientConfig
	maxAge    time.Duration
	mineCount int
	http      *http.Client
	limiter   *hostLimiter
	breakers  *breakerSet
	cacheRepo *clientdata.Repository
	observer  FetchObserver
	log       zerolog.Logger
	now       func() time.Time
}

// NewClient creates a pull client. cacheRepo is optional; if nil, caching is disabled.
func NewClient(cfg config.ClientConfig, maxAge time.Duration, mineCount int, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	c := &Client{
		cfg:       cfg,
		maxAge:    maxAge,
		mineCount: mineCount,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   newHostLimiter(cfg.RateLimit, 1),
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "blaze").Logger(),
		now:       time.Now,
	}
	c.breakers = newBreakerSet(cfg.BreakerTrip, func(name string, from, to gobreaker.State) {
		c.log.Warn().
			Str("endpoint", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})
	return c
}

// SetObserver registers a FetchObserver
func (c *Client) SetObserver(o FetchObserver) {
	c.observer = o
}

// BreakerStates reports the circuit breaker state per endpoint
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}

// FetchDouble pulls the recent Double rounds
func (c *Client) FetchDouble(ctx context.Context) (Batch[domain.DoubleOutcome], error) {
	items, src, endpoint, err := pull[DoubleItem](ctx, c, domain.GameDouble, c.cfg.DoubleURLs, clientdata.TableDouble)
	if err != nil {
		return Batch[domain.DoubleOutcome]{}, err
	}

	outcomes, dropped := TransformDoubleItems(items, c.cutoff())
	return Batch[domain.DoubleOutcome]{Outcomes: outcomes, Source: src, Endpoint: endpoint, Dropped: dropped}, nil
}

// FetchMines pulls the recent Mines rounds
func (c *Client) FetchMines(ctx context.Context) (Batch[domain.MinesOutcome], error) {
	items, src, endpoint, err := pull[MinesItem](ctx, c, domain.GameMines, c.cfg.MinesURLs, clientdata.TableMines)
	if err != nil {
		return Batch[domain.MinesOutcome]{}, err
	}

	outcomes, dropped := TransformMinesItems(items, c.mineCount, c.cutoff())
	return Batch[domain.MinesOutcome]{Outcomes: outcomes, Source: src, Endpoint: endpoint, Dropped: dropped}, nil
}

func (c *Client) cutoff() time.Time {
	if c.maxAge <= 0 {
		return time.Time{}
	}
	return c.now().Add(-c.maxAge)
}

// pull walks the endpoint list up to MaxRetries rounds, sleeping RetryDelay
// between rounds, and falls back to the cache when every round fails.
func pull[T any](ctx context.Context, c *Client, game domain.Game, endpoints []string, table string) ([]T, Source, string, error) {
	rounds := c.cfg.MaxRetries
	if rounds <= 0 {
		rounds = 1
	}

	var lastErr error
	for round := 0; round < rounds; round++ {
		for _, endpoint := range endpoints {
			items, err := fetchEndpoint[T](ctx, c, game, endpoint)
			if err == nil && len(items) > 0 {
				c.store(table, endpoint, items)
				c.log.Debug().
					Str("game", string(game)).
					Str("endpoint", endpoint).
					Int("items", len(items)).
					Msg("Fetched recent rounds")
				return items, SourceLive, endpoint, nil
			}
			if err == nil {
				err = fmt.Errorf("%s returned no rounds", endpoint)
			}
			lastErr = err
			if ctx.Err() != nil {
				return nil, "", "", ctx.Err()
			}
		}

		if round < rounds-1 {
			c.log.Warn().
				Err(lastErr).
				Str("game", string(game)).
				Int("attempt", round+1).
				Int("max_retries", rounds).
				Dur("retry_in", c.cfg.RetryDelay).
				Msg("All endpoints failed, retrying")
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return nil, "", "", err
			}
		}
	}

	if items, src, endpoint, ok := cached[T](c, table, endpoints); ok {
		c.log.Warn().
			Err(lastErr).
			Str("game", string(game)).
			Str("source", string(src)).
			Str("endpoint", endpoint).
			Msg("API failed, using cached rounds")
		return items, src, endpoint, nil
	}

	return nil, "", "", fmt.Errorf("%w for %s after %d attempts: %v", ErrUnavailable, game, rounds, lastErr)
}

// fetchEndpoint performs one rate-limited request through the endpoint's breaker
func fetchEndpoint[T any](ctx context.Context, c *Client, game domain.Game, endpoint string) ([]T, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.breakers.get(endpoint).Execute(func() (interface{}, error) {
		return c.get(ctx, endpoint)
	})
	if c.observer != nil {
		c.observer.ObserveFetch(game, endpoint, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	return decodeItems[T](result.([]byte))
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}
	return body, nil
}

// decodeItems accepts a bare JSON array or an object wrapping it in "records"
func decodeItems[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)

	var items []T
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return items, nil
	}

	var wrapped struct {
		Records []T `json:"records"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return wrapped.Records, nil
}

func (c *Client) store(table, endpoint string, items interface{}) {
	if c.cacheRepo == nil {
		return
	}
	ttl := c.cfg.CacheTTL
	if ttl <= 0 {
		ttl = clientdata.TTLRecentGames
	}
	if err := c.cacheRepo.Store(table, endpoint, items, ttl); err != nil {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
	}
}

// cached returns the first fresh cache entry, else the first stale one
func cached[T any](c *Client, table string, endpoints []string) ([]T, Source, string, bool) {
	if c.cacheRepo == nil {
		return nil, "", "", false
	}

	for _, endpoint := range endpoints {
		var items []T
		if ok, err := c.cacheRepo.GetIfFresh(table, endpoint, &items); err == nil && ok && len(items) > 0 {
			return items, SourceCache, endpoint, true
		}
	}
	for _, endpoint := range endpoints {
		var items []T
		if ok, err := c.cacheRepo.Get(table, endpoint, &items); err == nil && ok && len(items) > 0 {
			return items, SourceStale, endpoint, true
		}
	}
	return nil, "", "", false
}

// sleep waits for d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
