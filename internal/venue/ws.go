// ws.go implements the WebSocket half of the Venue Client Facade: a single
// connection per account session, authenticated by API key query parameter,
// subscribed to one or more channels with an explicit heartbeat, reconnecting
// with exponential backoff on disconnect (SPEC_FULL.md §4.1, §6).
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel names this facade subscribes components to.
const (
	ChannelDepthDiff  = "market.depth.diff"
	ChannelLastTrade  = "market.last.trade"
	ChannelLastPrice  = "market.last.price"
	heartbeatInterval = 25 * time.Second
	minBackoff        = time.Second
	maxBackoff        = 30 * time.Second
)

// WSMessage is a single inbound message, already split into its channel and
// raw payload so subscribers don't have to re-parse an envelope.
type WSMessage struct {
	Channel string
	MarketID int
	Raw     json.RawMessage
}

type subscribeEnvelope struct {
	Action   string `json:"action"`
	Channel  string `json:"channel,omitempty"`
	MarketID int    `json:"marketId,omitempty"`
}

// WSFeed is one WebSocket session for one account. It owns a single
// connection, resubscribes to every channel on reconnect, and fans inbound
// messages out to subscribers registered with OnMessage.
type WSFeed struct {
	url    string
	auth   *Auth
	logger *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	subs     []subscribeEnvelope
	handlers []func(WSMessage)

	backoff time.Duration
}

// NewWSFeed creates a feed for one account; wsURL is the venue's base
// WebSocket endpoint (SPEC_FULL.md §6 "wss://.../ws").
func NewWSFeed(wsURL string, auth *Auth, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:     wsURL,
		auth:    auth,
		logger:  logger,
		backoff: minBackoff,
	}
}

// Subscribe registers a channel/market pair to (re)subscribe to on every
// connect. Call before Run, or while Run is already looping — the next
// reconnect picks up new entries automatically.
func (f *WSFeed) Subscribe(channel string, marketID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, subscribeEnvelope{Action: "SUBSCRIBE", Channel: channel, MarketID: marketID})
}

// OnMessage registers a handler invoked for every inbound message on every
// subscribed channel. Handlers run synchronously on the read loop goroutine
// and must not block.
func (f *WSFeed) OnMessage(handler func(WSMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Run connects and maintains the connection until ctx is cancelled,
// reconnecting with exponential backoff (1s, capped at 30s) on any failure.
func (f *WSFeed) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.runOnce(ctx); err != nil {
			f.logger.Warn("ws feed disconnected", "error", err, "backoff", f.backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.backoff):
		}
		f.backoff *= 2
		if f.backoff > maxBackoff {
			f.backoff = maxBackoff
		}
	}
}

func (f *WSFeed) runOnce(ctx context.Context) error {
	endpoint, err := url.Parse(f.url)
	if err != nil {
		return fmt.Errorf("parse ws url: %w", err)
	}
	q := endpoint.Query()
	q.Set("apiKey", f.auth.WSAuthQueryParam())
	endpoint.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	subs := make([]subscribeEnvelope, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("resubscribe %s: %w", sub.Channel, err)
		}
	}

	f.backoff = minBackoff
	f.logger.Info("ws feed connected", "url", f.url, "subscriptions", len(subs))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		f.heartbeatLoop(runCtx, conn)
	}()

	readErr := f.readLoop(conn)
	cancel()
	<-heartbeatDone
	return readErr
}

func (f *WSFeed) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			err := conn.WriteJSON(map[string]string{"action": "HEARTBEAT"})
			f.mu.Unlock()
			if err != nil {
				f.logger.Warn("ws heartbeat write failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var envelope struct {
			Channel  string          `json:"channel"`
			MarketID int             `json:"marketId"`
			Data     json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			f.logger.Warn("ws message decode failed", "error", err)
			continue
		}
		if envelope.Channel == "" {
			continue
		}

		msg := WSMessage{Channel: envelope.Channel, MarketID: envelope.MarketID, Raw: envelope.Data}
		f.mu.Lock()
		handlers := make([]func(WSMessage), len(f.handlers))
		copy(handlers, f.handlers)
		f.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}

// DepthDiffPayload is the decoded body of a market.depth.diff message: one or
// more incremental price-level changes for a single token, applied atomically
// by internal/orderbook.Replica.ApplyDiff.
type DepthDiffPayload struct {
	AssetID string `json:"asset_id"`
	Hash    string `json:"hash"`
	Changes []struct {
		Side  string `json:"side"`
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"changes"`
}

// LastTradePayload is the decoded body of a market.last.trade message.
// OrderID is populated when the trade matches one of this session's own
// resting orders, letting the Fill Tracker's streaming mode react to it
// directly instead of waiting for the next poll (SPEC_FULL.md §4.9).
type LastTradePayload struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	OrderID string `json:"order_id,omitempty"`
}

// LastPricePayload is the decoded body of a market.last.price message.
type LastPricePayload struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
}
