// Package ordersubmit builds and submits orders on behalf of the
// Market-Maker Engine and Stop-Loss Executor, retrying only transient
// network failures and normalizing the venue's delayed-success signal
// (SPEC_FULL.md §4.5).
package ordersubmit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
)

// Request describes one order to place, independent of wire encoding.
type Request struct {
	MarketID string
	TokenID  string
	Side     types.Side
	Price    float64
	Size     float64
	TickSize types.TickSize
}

// Result is what a caller gets back from Submit: either a live order ID or a
// structured error it can branch on.
type Result struct {
	OrderID       string
	DelayedTxHash string // set when the venue reported success via a stray tx-hash string
}

// Submitter places orders through a single account's venue client, retrying
// only venue.KindNetwork failures with linear backoff (2s, 4s, 6s — capped at
// 3 attempts total per SPEC_FULL.md §4.5).
type Submitter struct {
	client *venue.Client
	logger *slog.Logger
}

// New creates a Submitter bound to one account's venue client.
func New(client *venue.Client, logger *slog.Logger) *Submitter {
	return &Submitter{client: client, logger: logger}
}

// Build converts a Request into the high-level order the venue client signs
// and submits. Every order built by this facade is a GTC limit order — the
// venue's CTF exchange has no native market-order type (SPEC_FULL.md §9,
// Open Question 3).
func Build(req Request) types.UserOrder {
	tick := req.TickSize
	if tick == "" {
		tick = types.Tick001
	}
	return types.UserOrder{
		TokenID:   req.TokenID,
		Price:     req.Price,
		Size:      req.Size,
		Side:      req.Side,
		OrderType: types.OrderTypeGTC,
		TickSize:  tick,
	}
}

// Submit places a single order, retrying retryable network failures with
// backoff. A non-retryable *venue.Error (InsufficientBalance, PriceOutOfBand,
// etc.) is returned immediately so the caller's gate logic can react.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	order := Build(req)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		responses, err := s.client.PostOrders(ctx, []types.UserOrder{order}, false)
		if err == nil {
			if len(responses) == 0 {
				lastErr = nil
				break
			}
			resp := responses[0]
			if resp.Success {
				return &Result{OrderID: resp.OrderID}, nil
			}
			if hash, ok := venue.ExtractTxHash(resp.ErrorMsg); ok {
				s.logger.Info("order reported via delayed success", "tx_hash", hash)
				return &Result{DelayedTxHash: hash}, nil
			}
			lastErr = &venue.Error{Kind: venue.KindOther, Message: resp.ErrorMsg}
			break
		}

		if hash, ok := venue.ExtractTxHash(err.Error()); ok {
			s.logger.Info("order errored with delayed success marker", "tx_hash", hash)
			return &Result{DelayedTxHash: hash}, nil
		}

		venueErr, retryable := asRetryable(err)
		lastErr = err
		if !retryable {
			return nil, venueErr
		}

		s.logger.Warn("order submission failed, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(baseBackoff * time.Duration(attempt+1)):
		}
	}

	return nil, lastErr
}

func asRetryable(err error) (*venue.Error, bool) {
	// PostOrders wraps the *venue.Error with %w, so unwrap rather than assert.
	var ve *venue.Error
	if !errors.As(err, &ve) {
		ve = &venue.Error{Kind: venue.KindOther, Message: err.Error(), Cause: err}
	}
	return ve, ve.Retryable()
}
