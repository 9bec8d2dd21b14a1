// Package orderbook maintains a local mirror of one token's order book using
// the "active query + WS fallback" pattern (SPEC_FULL.md §4.2):
//
//  1. On start, fetch a full snapshot via REST.
//  2. Apply incremental market.depth.diff events as they arrive over WS.
//  3. If no WS message arrives within the watchdog window, re-fetch via REST.
//
// Grounded on the teacher's internal/market.Book (RWMutex-protected snapshot,
// derived BestBidAsk/MidPrice) and on original_source/orderbook_manager.py's
// per-level diff application and threading.Timer watchdog, reexpressed here
// with time.AfterFunc. Unlike the teacher's Book, levels are stored as
// decimal.Decimal so repeated diffs never accumulate float rounding error.
package orderbook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

// Level is a single price/size pair in the book.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Snapshot is an immutable point-in-time copy of one token's book, safe to
// read without holding the Replica's lock.
type Snapshot struct {
	AssetID   string
	Bids      []Level // descending by price
	Asks      []Level // ascending by price
	Hash      string
	Source    string // "rest" or "ws"
	UpdatedAt time.Time
}

// BestBid returns the top bid level, or a zero level if the book is empty.
func (s Snapshot) BestBid() Level {
	if len(s.Bids) == 0 {
		return Level{}
	}
	return s.Bids[0]
}

// BestAsk returns the top ask level, or a zero level if the book is empty.
func (s Snapshot) BestAsk() Level {
	if len(s.Asks) == 0 {
		return Level{}
	}
	return s.Asks[0]
}

// MidPrice returns (bestBid+bestAsk)/2, or false if either side is empty.
func (s Snapshot) MidPrice() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	return s.Bids[0].Price.Add(s.Asks[0].Price).Div(decimal.NewFromInt(2)), true
}

// DepthQuote sums price*size over the top n levels of one side, in quote
// currency, used by the market-maker engine's depth gate (SPEC_FULL.md §4.6).
func (s Snapshot) DepthQuote(side types.Side, levels int) decimal.Decimal {
	src := s.Bids
	if side == types.SELL {
		src = s.Asks
	}
	total := decimal.Zero
	for i, lvl := range src {
		if i >= levels {
			break
		}
		total = total.Add(lvl.Price.Mul(lvl.Size))
	}
	return total
}

// Replica mirrors one token's order book and keeps it fresh via REST
// bootstrap + WS diffs + a watchdog fallback to REST on WS silence.
type Replica struct {
	client  *venue.Client
	assetID string
	timeout time.Duration

	mu       sync.RWMutex
	bids     []Level
	asks     []Level
	hash     string
	source   string
	updated  time.Time

	watchdogMu sync.Mutex
	watchdog   *time.Timer
	running    bool

	onUpdate func(Snapshot)
	logger   interface {
		Warn(msg string, args ...any)
	}
}

// NewReplica creates a replica for one token. timeout is the WS silence
// window after which a REST re-fetch is triggered (SPEC_FULL.md §4.2
// default 10s, grounded on orderbook_manager.py's DEFAULT_WS_TIMEOUT).
func NewReplica(client *venue.Client, assetID string, timeout time.Duration, onUpdate func(Snapshot)) *Replica {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Replica{
		client:   client,
		assetID:  assetID,
		timeout:  timeout,
		onUpdate: onUpdate,
	}
}

// Start fetches the initial snapshot via REST and arms the watchdog.
func (r *Replica) Start(ctx context.Context) error {
	if err := r.refreshREST(ctx); err != nil {
		return fmt.Errorf("initial orderbook fetch for %s: %w", r.assetID, err)
	}
	r.watchdogMu.Lock()
	r.running = true
	r.watchdogMu.Unlock()
	r.resetWatchdog(ctx)
	return nil
}

// Stop disarms the watchdog. Safe to call multiple times.
func (r *Replica) Stop() {
	r.watchdogMu.Lock()
	defer r.watchdogMu.Unlock()
	r.running = false
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
}

// Snapshot returns a deep copy of the current book state.
func (r *Replica) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		AssetID:   r.assetID,
		Bids:      append([]Level(nil), r.bids...),
		Asks:      append([]Level(nil), r.asks...),
		Hash:      r.hash,
		Source:    r.source,
		UpdatedAt: r.updated,
	}
}

// ApplyDiff applies one or more incremental price-level changes, received
// from venue.ChannelDepthDiff. A size of zero removes the level.
func (r *Replica) ApplyDiff(ctx context.Context, payload venue.DepthDiffPayload) error {
	r.mu.Lock()
	for _, change := range payload.Changes {
		price, err := decimal.NewFromString(change.Price)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse diff price %q: %w", change.Price, err)
		}
		size, err := decimal.NewFromString(change.Size)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse diff size %q: %w", change.Size, err)
		}

		switch change.Side {
		case "bids", "BUY":
			r.bids = applyLevel(r.bids, price, size, true)
		case "asks", "SELL":
			r.asks = applyLevel(r.asks, price, size, false)
		}
	}
	r.hash = payload.Hash
	r.source = "ws"
	r.updated = time.Now()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.resetWatchdog(ctx)
	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
	return nil
}

func (r *Replica) snapshotLocked() Snapshot {
	return Snapshot{
		AssetID:   r.assetID,
		Bids:      append([]Level(nil), r.bids...),
		Asks:      append([]Level(nil), r.asks...),
		Hash:      r.hash,
		Source:    r.source,
		UpdatedAt: r.updated,
	}
}

// applyLevel inserts, updates, or removes a single price level, keeping the
// slice sorted (descending for bids, ascending for asks). Price equality
// uses decimal comparison, avoiding the float tolerance band the teacher's
// Python counterpart needed.
func applyLevel(levels []Level, price, size decimal.Decimal, descending bool) []Level {
	idx := -1
	for i, lvl := range levels {
		if lvl.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.Sign() <= 0 {
		if idx >= 0 {
			levels = append(levels[:idx], levels[idx+1:]...)
		}
		return levels
	}

	if idx >= 0 {
		levels[idx].Size = size
		return levels
	}

	levels = append(levels, Level{Price: price, Size: size})
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

// refreshREST re-fetches the full book from the venue and replaces local state.
func (r *Replica) refreshREST(ctx context.Context) error {
	resp, err := r.client.GetOrderBook(ctx, r.assetID)
	if err != nil {
		return err
	}

	bids, err := toLevels(resp.Bids)
	if err != nil {
		return fmt.Errorf("parse bids: %w", err)
	}
	asks, err := toLevels(resp.Asks)
	if err != nil {
		return fmt.Errorf("parse asks: %w", err)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	r.mu.Lock()
	r.bids = bids
	r.asks = asks
	r.hash = resp.Hash
	r.source = "rest"
	r.updated = time.Now()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
	return nil
}

func toLevels(raw []types.PriceLevel) ([]Level, error) {
	out := make([]Level, 0, len(raw))
	for _, p := range raw {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(p.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, Level{Price: price, Size: size})
	}
	return out, nil
}

// resetWatchdog cancels any pending timer and arms a fresh one: if it fires,
// WS has gone silent for r.timeout and a REST re-fetch is triggered.
func (r *Replica) resetWatchdog(ctx context.Context) {
	r.watchdogMu.Lock()
	defer r.watchdogMu.Unlock()

	if !r.running {
		return
	}
	if r.watchdog != nil {
		r.watchdog.Stop()
	}
	r.watchdog = time.AfterFunc(r.timeout, func() {
		r.watchdogMu.Lock()
		stillRunning := r.running
		r.watchdogMu.Unlock()
		if !stillRunning {
			return
		}
		if err := r.refreshREST(ctx); err == nil {
			r.resetWatchdog(ctx)
		} else {
			r.resetWatchdog(ctx)
		}
	})
}
