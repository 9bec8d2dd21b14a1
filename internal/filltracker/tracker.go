// Package filltracker implements the Fill Tracker (SPEC_FULL.md §4.9):
// detects partial/full fills on tracked orders, either by polling order
// status once per tick or, when a WS trade channel is subscribed, by
// observing last-trade events that carry this session's own order id. Fill
// events are idempotent against cumulative filled_shares so duplicate
// deliveries of the same cumulative value are no-ops.
package filltracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

// FillEvent is delivered to a Sink once per observed increase in an order's
// cumulative filled shares.
type FillEvent struct {
	OrderID string
	TokenID string
	Side    types.Side
	Price   decimal.Decimal // the order's limit price is authoritative
	Delta   decimal.Decimal // shares newly filled since the last observation
	Fee     decimal.Decimal
}

// Sink receives fill events for the order it placed. internal/maker.Engine
// implements this via its Fills() channel.
type Sink interface {
	OnFill(FillEvent)
}

type trackedOrder struct {
	tokenID      string
	side         types.Side
	price        decimal.Decimal
	lastFilled   decimal.Decimal
	originalSize decimal.Decimal
	sink         Sink
}

// Tracker watches a set of orders for one account and reports fills exactly
// once per cumulative increase.
type Tracker struct {
	client *venue.Client
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[string]*trackedOrder
}

// New constructs a Tracker bound to one account's venue client.
func New(client *venue.Client, logger *slog.Logger) *Tracker {
	return &Tracker{
		client:  client,
		logger:  logger.With("component", "fill_tracker"),
		tracked: make(map[string]*trackedOrder),
	}
}

// Track registers an order for fill detection. sink receives every fill
// event observed for it until it stops appearing in open-orders polls.
func (t *Tracker) Track(orderID, tokenID string, side types.Side, price, size decimal.Decimal, sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked[orderID] = &trackedOrder{
		tokenID:      tokenID,
		side:         side,
		price:        price,
		originalSize: size,
		sink:         sink,
	}
}

// Untrack stops watching an order, e.g. after it is cancelled.
func (t *Tracker) Untrack(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tracked, orderID)
}

// PollOnce implements polling mode: for each tracked order, fetch its
// status; if filled_shares increased since the last poll, emit a Fill event
// with the delta (SPEC_FULL.md §4.9 "Polling mode").
func (t *Tracker) PollOnce(ctx context.Context) error {
	t.mu.Lock()
	if len(t.tracked) == 0 {
		t.mu.Unlock()
		return nil
	}
	ids := make(map[string]struct{}, len(t.tracked))
	for id := range t.tracked {
		ids[id] = struct{}{}
	}
	t.mu.Unlock()

	orders, err := t.client.GetOpenOrders(ctx, "")
	if err != nil {
		return err
	}
	seen := make(map[string]decimal.Decimal, len(orders))
	for _, o := range orders {
		if _, ok := ids[o.ID]; !ok {
			continue
		}
		matched, parseErr := decimal.NewFromString(o.SizeMatched)
		if parseErr != nil {
			continue
		}
		seen[o.ID] = matched
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range ids {
		to, ok := t.tracked[id]
		if !ok {
			continue
		}
		matched, stillOpen := seen[id]
		if !stillOpen {
			// No longer open: the venue dropped it once fully matched.
			t.emitIfIncreased(to, id, to.originalSize)
			delete(t.tracked, id)
			continue
		}
		t.emitIfIncreased(to, id, matched)
		if matched.GreaterThanOrEqual(to.originalSize) {
			delete(t.tracked, id)
		}
	}
	return nil
}

// emitIfIncreased compares cumulative filled shares against the last
// observation and emits only the delta, making repeated deliveries of the
// same cumulative value no-ops (SPEC_FULL.md §4.9).
func (t *Tracker) emitIfIncreased(to *trackedOrder, orderID string, cumulative decimal.Decimal) {
	if cumulative.LessThanOrEqual(to.lastFilled) {
		return
	}
	delta := cumulative.Sub(to.lastFilled)
	to.lastFilled = cumulative
	to.sink.OnFill(FillEvent{
		OrderID: orderID,
		TokenID: to.tokenID,
		Side:    to.side,
		Price:   to.price,
		Delta:   delta,
	})
}

// OnTradeMessage implements streaming mode: called with every decoded
// market.last.trade payload; if it carries an order id this tracker is
// watching, it is treated the same as a polled fill (SPEC_FULL.md §4.9
// "Streaming mode").
func (t *Tracker) OnTradeMessage(trade venue.LastTradePayload) {
	if trade.OrderID == "" {
		return
	}
	size, err := decimal.NewFromString(trade.Size)
	if err != nil {
		t.logger.Warn("trade message has unparseable size", "order_id", trade.OrderID, "size", trade.Size)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	to, ok := t.tracked[trade.OrderID]
	if !ok {
		return
	}
	cumulative := to.lastFilled.Add(size)
	t.emitIfIncreased(to, trade.OrderID, cumulative)
	if cumulative.GreaterThanOrEqual(to.originalSize) {
		delete(t.tracked, trade.OrderID)
	}
}
