package blaze

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	readLimit    = 1 << 20
	eventPrefix  = "42"
	enginePing   = "2"
	enginePong   = "3"
	socketOpen   = "40"
	eventTick    = "double.tick"
	eventUpdate  = "mines.update"
	joinRoomName = "join-room"
)

// FeedHandler receives the outcomes parsed from the push feed
type FeedHandler struct {
	OnDouble func(domain.DoubleOutcome)
	OnMines  func(domain.MinesOutcome)
	// OnStatus is called on every connect and disconnect
	OnStatus func(game domain.Game, connected bool, err error)
}

// FeedClient keeps a Socket.IO subscription to one game room open,
// reconnecting after a fixed delay until its context is cancelled.
type FeedClient struct {
	cfg        config.FeedConfig
	game       domain.Game
	mineCount  int
	handler    FeedHandler
	httpClient *http.Client
	log        zerolog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	connected bool
	lastEvent time.Time
	received  int
}

// createHTTP1Client forces HTTP/1.1, which the websocket upgrade requires
// behind proxies that would otherwise negotiate HTTP/2 via ALPN.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewFeedClient creates a feed client for one game
func NewFeedClient(cfg config.FeedConfig, game domain.Game, mineCount int, handler FeedHandler, log zerolog.Logger) *FeedClient {
	return &FeedClient{
		cfg:        cfg,
		game:       game,
		mineCount:  mineCount,
		handler:    handler,
		httpClient: createHTTP1Client(),
		log:        log.With().Str("component", "blaze_feed").Str("game", string(game)).Logger(),
		now:        time.Now,
	}
}

// FeedStatus is a point-in-time view of the subscription
type FeedStatus struct {
	Game      domain.Game `json:"game"`
	Connected bool        `json:"connected"`
	LastEvent time.Time   `json:"last_event,omitempty"`
	Received  int         `json:"received"`
}

// Status returns the current subscription status
func (f *FeedClient) Status() FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedStatus{Game: f.game, Connected: f.connected, LastEvent: f.lastEvent, Received: f.received}
}

// Run connects and reads until ctx is cancelled. Each disconnect is
// followed by a fixed ReconnectDelay wait; parse errors never drop the connection.
func (f *FeedClient) Run(ctx context.Context) error {
	for {
		err := f.session(ctx)
		f.setConnected(false, err)

		if ctx.Err() != nil {
			f.log.Info().Msg("Feed stopped")
			return nil
		}

		f.log.Warn().Err(err).Dur("reconnect_in", f.cfg.ReconnectDelay).Msg("Feed disconnected, reconnecting")
		if err := sleep(ctx, f.cfg.ReconnectDelay); err != nil {
			f.log.Info().Msg("Feed stopped")
			return nil
		}
	}
}

// session runs one connection from dial to disconnect
func (f *FeedClient) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.cfg.URL, &websocket.DialOptions{
		HTTPClient: f.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(readLimit)

	if err := f.join(ctx, conn); err != nil {
		return err
	}

	f.setConnected(true, nil)
	f.log.Info().Str("url", f.cfg.URL).Msg("Feed connected")

	for {
		msgType, message, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return fmt.Errorf("feed closed by server: %d", status)
			}
			return fmt.Errorf("feed read failed: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		if bytes.Equal(message, []byte(enginePing)) {
			if err := write(ctx, conn, enginePong); err != nil {
				return err
			}
			continue
		}

		if err := f.handleMessage(message); err != nil {
			f.log.Warn().Err(err).Str("message", truncate(message, 200)).Msg("Dropped feed message")
		}
	}
}

// join performs the Socket.IO handshake and joins the game room
func (f *FeedClient) join(ctx context.Context, conn *websocket.Conn) error {
	if err := write(ctx, conn, socketOpen); err != nil {
		return err
	}
	if err := sleep(ctx, f.cfg.JoinDelay); err != nil {
		return err
	}

	frame, err := json.Marshal([]string{joinRoomName, string(f.game)})
	if err != nil {
		return fmt.Errorf("failed to marshal join message: %w", err)
	}
	return write(ctx, conn, eventPrefix+string(frame))
}

func write(ctx context.Context, conn *websocket.Conn, msg string) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send %q: %w", msg, err)
	}
	return nil
}

// ParseEvent splits a "42[event, payload]" frame. ok is false for frames
// of any other Engine.IO type.
func ParseEvent(message []byte) (event string, payload json.RawMessage, ok bool, err error) {
	if !bytes.HasPrefix(message, []byte(eventPrefix)) {
		return "", nil, false, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(message[len(eventPrefix):], &parts); err != nil {
		return "", nil, true, fmt.Errorf("failed to parse event array: %w", err)
	}
	if len(parts) < 2 {
		return "", nil, true, fmt.Errorf("event array too short: expected 2 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &event); err != nil {
		return "", nil, true, fmt.Errorf("failed to parse event name: %w", err)
	}
	return event, parts[1], true, nil
}

// handleMessage parses one frame and dispatches the outcome it carries
func (f *FeedClient) handleMessage(message []byte) error {
	event, payload, ok, err := ParseEvent(message)
	if err != nil || !ok {
		return err
	}

	switch {
	case event == eventTick && f.game == domain.GameDouble:
		var item DoubleItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return fmt.Errorf("failed to parse %s: %w", event, err)
		}
		if item.Status != statusComplete {
			return nil
		}
		f.fillCreatedAt(&item.CreatedAt)
		o, err := TransformDouble(item)
		if err != nil {
			return err
		}
		f.markEvent()
		if f.handler.OnDouble != nil {
			f.handler.OnDouble(o)
		}

	case event == eventUpdate && f.game == domain.GameMines:
		var item MinesItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return fmt.Errorf("failed to parse %s: %w", event, err)
		}
		f.fillCreatedAt(&item.CreatedAt)
		o, err := TransformMines(item, f.mineCount)
		if err != nil {
			return err
		}
		f.markEvent()
		if f.handler.OnMines != nil {
			f.handler.OnMines(o)
		}

	default:
		f.log.Debug().Str("event", event).Msg("Ignoring feed event")
	}

	return nil
}

// fillCreatedAt stamps live events that arrive without a creation time
func (f *FeedClient) fillCreatedAt(createdAt *string) {
	if *createdAt == "" {
		*createdAt = f.now().UTC().Format(time.RFC3339Nano)
	}
}

func (f *FeedClient) markEvent() {
	f.mu.Lock()
	f.lastEvent = f.now()
	f.received++
	f.mu.Unlock()
}

func (f *FeedClient) setConnected(connected bool, err error) {
	f.mu.Lock()
	changed := f.connected != connected
	f.connected = connected
	f.mu.Unlock()

	if changed && f.handler.OnStatus != nil {
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		f.handler.OnStatus(f.game, connected, err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(" + strconv.Itoa(len(b)) + " bytes)"
}
