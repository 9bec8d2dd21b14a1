// Package stoploss implements the Stop-Loss Executor (SPEC_FULL.md §4.7): a
// liquidation routine a Market-Maker Engine calls once its stop-loss gate
// trips. It always submits limit orders — the venue's CTF exchange has no
// market-order type (SPEC_FULL.md §9, Open Question 3) — and picks between a
// single-shot "deep" liquidation and an iterative "thin" liquidation
// depending on how much buy-side depth is available to absorb the sell.
package stoploss

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/ordersubmit"
	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

const (
	depthProbeLevels  = 5
	defaultMinDepth   = 100 // quote-token units, SPEC_FULL.md §4.7 step 3 default
	thinPathMaxRounds = 30
	thinPathPollFor   = 20 * time.Second
	thinPathPollEvery = 1 * time.Second
)

// Executor liquidates a held position under the deep/thin path rules.
type Executor struct {
	client    *venue.Client
	submitter *ordersubmit.Submitter
	minDepth  decimal.Decimal
	tickSize  types.TickSize
	logger    *slog.Logger
}

// New constructs an Executor bound to one account's venue client. minDepth
// overrides the default min_depth_amount (100 quote) when positive.
func New(client *venue.Client, submitter *ordersubmit.Submitter, minDepth float64, tickSize types.TickSize, logger *slog.Logger) *Executor {
	md := decimal.NewFromInt(defaultMinDepth)
	if minDepth > 0 {
		md = decimal.NewFromFloat(minDepth)
	}
	return &Executor{
		client:    client,
		submitter: submitter,
		minDepth:  md,
		tickSize:  tickSize,
		logger:    logger.With("component", "stop_loss_executor"),
	}
}

// Execute runs the full stop-loss procedure for one token: cancel this
// account's live orders on it, probe depth, and liquidate heldShares via the
// deep or thin path (SPEC_FULL.md §4.7).
func (e *Executor) Execute(ctx context.Context, tokenID string, heldShares decimal.Decimal) error {
	if heldShares.Sign() <= 0 {
		return nil
	}

	if err := e.cancelLiveOrders(ctx, tokenID); err != nil {
		e.logger.Warn("cancel live orders before stop-loss failed", "error", err)
	}

	book, err := e.client.GetOrderBook(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("stop-loss: fetch book: %w", err)
	}

	depth, bid1, ok := topBidDepth(book, depthProbeLevels)
	if !ok {
		return fmt.Errorf("stop-loss: no bid depth available on %s", tokenID)
	}

	if depth.GreaterThanOrEqual(e.minDepth) {
		return e.deepPath(ctx, tokenID, bid1, heldShares)
	}
	return e.thinPath(ctx, tokenID, heldShares)
}

// cancelLiveOrders cancels every order this account has resting on tokenID
// (SPEC_FULL.md §4.7 step 1: "Cancel any live bid and ask of this engine").
func (e *Executor) cancelLiveOrders(ctx context.Context, tokenID string) error {
	orders, err := e.client.GetOpenOrders(ctx, "")
	if err != nil {
		return err
	}
	var ids []string
	for _, o := range orders {
		if o.AssetID == tokenID {
			ids = append(ids, o.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = e.client.CancelOrders(ctx, ids)
	return err
}

// deepPath submits one limit sell at bid1 for the full remaining size,
// trusting marketable semantics to fill it promptly (SPEC_FULL.md §4.7 step 4).
func (e *Executor) deepPath(ctx context.Context, tokenID string, bid1, shares decimal.Decimal) error {
	priceF, _ := bid1.Float64()
	sharesF, _ := shares.Float64()
	e.logger.Info("stop-loss deep path", "token", tokenID, "price", bid1, "shares", shares)
	_, err := e.submitter.Submit(ctx, ordersubmit.Request{
		TokenID: tokenID, Side: types.SELL, Price: priceF, Size: sharesF, TickSize: e.tickSize,
	})
	return err
}

// thinPath iteratively sells into whatever bid is currently available,
// cancelling and resubmitting if the best bid moves, and reporting rather
// than retrying forever once the loop budget is exhausted (SPEC_FULL.md §4.7
// step 5).
func (e *Executor) thinPath(ctx context.Context, tokenID string, remaining decimal.Decimal) error {
	e.logger.Info("stop-loss thin path", "token", tokenID, "shares", remaining)

	for round := 0; round < thinPathMaxRounds && remaining.Sign() > 0; round++ {
		book, err := e.client.GetOrderBook(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("stop-loss thin path: fetch book: %w", err)
		}
		_, bid1, ok := topBidDepth(book, depthProbeLevels)
		if !ok {
			return fmt.Errorf("stop-loss thin path: no bid depth on round %d", round)
		}

		priceF, _ := bid1.Float64()
		sharesF, _ := remaining.Float64()
		result, err := e.submitter.Submit(ctx, ordersubmit.Request{
			TokenID: tokenID, Side: types.SELL, Price: priceF, Size: sharesF, TickSize: e.tickSize,
		})
		if err != nil {
			e.logger.Warn("thin path sell failed, retrying next round", "round", round, "error", err)
			continue
		}
		if result.OrderID == "" {
			continue
		}

		filled := e.pollUntilFilledOrMoved(ctx, tokenID, result.OrderID, bid1, remaining)
		remaining = remaining.Sub(filled)
	}

	if remaining.Sign() > 0 {
		e.logger.Warn("stop-loss thin path exhausted loop budget", "remaining_shares", remaining)
	}
	return nil
}

// pollUntilFilledOrMoved polls order status for up to thinPathPollFor,
// returning the shares matched. It cancels and stops polling early if the
// best bid moves away from the order's price.
func (e *Executor) pollUntilFilledOrMoved(ctx context.Context, tokenID, orderID string, placedAtBid, orderSize decimal.Decimal) decimal.Decimal {
	deadline := time.Now().Add(thinPathPollFor)
	ticker := time.NewTicker(thinPathPollEvery)
	defer ticker.Stop()

	lastMatched := decimal.Zero
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			e.cancelOrder(context.Background(), orderID)
			return lastMatched
		case <-ticker.C:
		}

		orders, err := e.client.GetOpenOrders(ctx, "")
		if err != nil {
			continue
		}
		matched, stillOpen := matchedSize(orders, orderID)
		lastMatched = matched
		if !stillOpen {
			return orderSize // fully matched: the venue dropped it from open orders
		}
		if matched.GreaterThanOrEqual(orderSize) {
			return matched
		}

		book, err := e.client.GetOrderBook(ctx, tokenID)
		if err != nil {
			continue
		}
		if _, bid1, ok := topBidDepth(book, depthProbeLevels); ok && !bid1.Equal(placedAtBid) {
			e.cancelOrder(ctx, orderID)
			return matched
		}
	}

	e.cancelOrder(ctx, orderID)
	return lastMatched
}

func (e *Executor) cancelOrder(ctx context.Context, orderID string) {
	if _, err := e.client.CancelOrders(ctx, []string{orderID}); err != nil {
		e.logger.Warn("cancel thin-path order failed", "order_id", orderID, "error", err)
	}
}

func matchedSize(orders []types.OpenOrder, orderID string) (decimal.Decimal, bool) {
	for _, o := range orders {
		if o.ID != orderID {
			continue
		}
		matched, err := decimal.NewFromString(o.SizeMatched)
		if err != nil {
			return decimal.Zero, true
		}
		return matched, true
	}
	return decimal.Zero, false
}

// topBidDepth sums size*price over the top `levels` bid levels and returns
// bid1 alongside it.
func topBidDepth(book *types.BookResponse, levels int) (decimal.Decimal, decimal.Decimal, bool) {
	if book == nil || len(book.Bids) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	bid1, err := decimal.NewFromString(book.Bids[0].Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}

	total := decimal.Zero
	for i, lvl := range book.Bids {
		if i >= levels {
			break
		}
		price, err1 := decimal.NewFromString(lvl.Price)
		size, err2 := decimal.NewFromString(lvl.Size)
		if err1 != nil || err2 != nil {
			continue
		}
		total = total.Add(price.Mul(size))
	}
	return total, bid1, true
}
