// Package mergesplit wraps the venue client's merge/split/redeem calls with
// the retry and delayed-success normalization SPEC_FULL.md §4.10 requires:
// both operations retry up to 3x on network errors with 2s/4s backoff, and
// both tolerate a stray "Transaction hash:" string in error text as a
// delayed-success signal rather than a failure.
package mergesplit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

const maxAttempts = 3

// backoffs is the fixed 2s/4s delay schedule between the 3 attempts
// (SPEC_FULL.md §4.10: "retries up to 3x on network errors with 2s/4s backoff").
var backoffs = []time.Duration{2 * time.Second, 4 * time.Second}

// Service merges and splits YES/NO share pairs on behalf of one account.
type Service struct {
	client *venue.Client
	logger *slog.Logger
}

// New constructs a Service bound to one account's venue client.
func New(client *venue.Client, logger *slog.Logger) *Service {
	return &Service{client: client, logger: logger.With("component", "merge_split")}
}

// Merge converts shares of YES and shares of NO back into the quote token.
// The caller must ensure shares <= min(yesHeld, noHeld) (SPEC_FULL.md §4.10
// precondition); Service does not hold position state to check it itself.
func (s *Service) Merge(ctx context.Context, marketID string, shares decimal.Decimal) (*types.MergeResult, error) {
	var result *types.MergeResult
	err := s.retry(ctx, "merge", func() error {
		r, callErr := s.client.Merge(ctx, marketID, shares)
		if callErr == nil {
			result = r
		}
		return callErr
	})
	if err != nil {
		if hash, ok := venue.ExtractTxHash(err.Error()); ok {
			s.logger.Info("merge reported via delayed success", "tx_hash", hash)
			return &types.MergeResult{TxHash: hash}, nil
		}
		return nil, err
	}
	return result, nil
}

// Split mints amount quote tokens into amount YES + amount NO shares.
func (s *Service) Split(ctx context.Context, marketID string, amount decimal.Decimal) (*types.SplitResult, error) {
	var result *types.SplitResult
	err := s.retry(ctx, "split", func() error {
		r, callErr := s.client.Split(ctx, marketID, amount)
		if callErr == nil {
			result = r
		}
		return callErr
	})
	if err != nil {
		if hash, ok := venue.ExtractTxHash(err.Error()); ok {
			s.logger.Info("split reported via delayed success", "tx_hash", hash)
			return &types.SplitResult{TxHash: hash}, nil
		}
		return nil, err
	}
	return result, nil
}

// Redeem claims a resolved market's winning side for this account. Not named
// in SPEC_FULL.md §4.10's bullets but shares the same delayed-success
// exception convention, so it rides the same retry/normalize path.
func (s *Service) Redeem(ctx context.Context, marketID string) (*types.RedeemResult, error) {
	var result *types.RedeemResult
	err := s.retry(ctx, "redeem", func() error {
		r, callErr := s.client.Redeem(ctx, marketID)
		if callErr == nil {
			result = r
		}
		return callErr
	})
	if err != nil {
		if hash, ok := venue.ExtractTxHash(err.Error()); ok {
			s.logger.Info("redeem reported via delayed success", "tx_hash", hash)
			return &types.RedeemResult{TxHash: hash}, nil
		}
		return nil, err
	}
	return result, nil
}

// retry runs fn up to maxAttempts times, retrying only network-classified
// venue errors, sleeping the fixed 2s/4s schedule between attempts.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if _, ok := venue.ExtractTxHash(lastErr.Error()); ok {
			return lastErr // caller unwraps the hash; not a real failure
		}

		ve, ok := lastErr.(*venue.Error)
		if !ok || !ve.Retryable() {
			return fmt.Errorf("%s: %w", op, lastErr)
		}
		if attempt == maxAttempts-1 {
			break
		}

		s.logger.Warn("retrying after network error", "op", op, "attempt", attempt+1, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffs[attempt]):
		}
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}
