package mergesplit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"polymarket-mm/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	t.Parallel()

	s := &Service{logger: testLogger()}
	calls := 0
	err := s.retry(context.Background(), "merge", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryGivesUpOnNonRetryableError(t *testing.T) {
	t.Parallel()

	s := &Service{logger: testLogger()}
	calls := 0
	err := s.retry(context.Background(), "merge", func() error {
		calls++
		return &venue.Error{Kind: venue.KindInsufficientBalance, Message: "no funds"}
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-network error)", calls)
	}
}

func TestRetryRetriesNetworkErrors(t *testing.T) {
	t.Parallel()

	s := &Service{logger: testLogger()}
	calls := 0
	err := s.retry(context.Background(), "merge", func() error {
		calls++
		if calls < 3 {
			return &venue.Error{Kind: venue.KindNetwork, Message: "timeout"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry returned error after eventual success: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	s := &Service{logger: testLogger()}
	calls := 0
	err := s.retry(context.Background(), "merge", func() error {
		calls++
		return &venue.Error{Kind: venue.KindNetwork, Message: "timeout"}
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls != maxAttempts {
		t.Errorf("calls = %d, want %d", calls, maxAttempts)
	}
}

func TestRetryTreatsDelayedTxHashAsTerminal(t *testing.T) {
	t.Parallel()

	s := &Service{logger: testLogger()}
	calls := 0
	err := s.retry(context.Background(), "merge", func() error {
		calls++
		return errors.New("exception: Transaction hash: 0xabc123 recorded late")
	})
	if err == nil {
		t.Fatal("expected retry to return the error for the caller to unwrap")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (delayed tx hash is terminal, not retried)", calls)
	}
}
