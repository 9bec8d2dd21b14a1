// Summary aggregation for StopAll, generalized from the teacher's
// risk.RiskSnapshot: a flat reporting struct (decimals, flags, runtime) built from a
// live engine snapshot for display once quoting has stopped.
package coordinator

import (
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/maker"
)

// Summary is one engine's final state as of StopAll, keyed by its slot key
// (account|token) so the caller can tell which account/market it belongs to.
type Summary struct {
	Key                  string
	RealizedPnL          decimal.Decimal
	MatchedShares        decimal.Decimal
	TotalBuyShares       decimal.Decimal
	TotalSellShares      decimal.Decimal
	GridPositionCount    int
	StopLossTriggered    bool
	PositionLimitReached bool
	DepthInsufficient    bool
	PriceBoundaryHit     bool
	DepthDropTriggered   bool
	Runtime              time.Duration
}

// summarize flattens an engine's Snapshot into a Summary, computing the
// elapsed runtime from its start/end timestamps.
func summarize(key string, snap maker.Snapshot) Summary {
	end := snap.EndTime
	if end.IsZero() {
		end = time.Now()
	}

	return Summary{
		Key:                  key,
		RealizedPnL:          snap.RealizedPnL,
		MatchedShares:        snap.MatchedShares,
		TotalBuyShares:       snap.TotalBuyShares,
		TotalSellShares:      snap.TotalSellShares,
		GridPositionCount:    snap.GridPositionCount,
		StopLossTriggered:    snap.StopLossTriggered,
		PositionLimitReached: snap.PositionLimitReached,
		DepthInsufficient:    snap.DepthInsufficient,
		PriceBoundaryHit:     snap.PriceBoundaryHit,
		DepthDropTriggered:   snap.DepthDropTriggered,
		Runtime:              end.Sub(snap.StartTime),
	}
}
