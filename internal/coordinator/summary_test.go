package coordinator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/maker"
)

func TestSummarizeComputesRuntimeFromTimestamps(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(-time.Minute)
	end := start.Add(45 * time.Second)
	snap := maker.Snapshot{
		RealizedPnL:     decimal.RequireFromString("12.5"),
		MatchedShares:   decimal.RequireFromString("100"),
		TotalBuyShares:  decimal.RequireFromString("60"),
		TotalSellShares: decimal.RequireFromString("40"),
		StartTime:       start,
		EndTime:         end,
	}

	got := summarize("acct|tok", snap)

	if got.Key != "acct|tok" {
		t.Errorf("Key = %q, want acct|tok", got.Key)
	}
	if got.Runtime != 45*time.Second {
		t.Errorf("Runtime = %s, want 45s", got.Runtime)
	}
	if !got.RealizedPnL.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("RealizedPnL = %s, want 12.5", got.RealizedPnL)
	}
}

func TestSummarizeFallsBackToNowWithoutEndTime(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(-time.Second)
	snap := maker.Snapshot{StartTime: start}

	got := summarize("acct|tok", snap)

	if got.Runtime <= 0 {
		t.Errorf("Runtime = %s, want > 0", got.Runtime)
	}
}
