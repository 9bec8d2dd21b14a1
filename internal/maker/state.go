// Package maker implements the Market-Maker State Machine (SPEC_FULL.md §2
// C6/C7): per-account, per-token control loops that maintain simultaneous bid
// and ask orders under protection gates, in either dual-quote or grid mode.
//
// Generalized from the teacher's single-strategy Avellaneda-Stoikov Maker:
// State replaces strategy.Inventory's YES/NO position pair with every field
// SPEC_FULL.md §3 names for one engine (tallies, flags, depth histories,
// grid bookkeeping), since this repo has no "skew the quote by inventory"
// formula to carry — the tallies exist for boundary gates and stop-loss
// triggers instead.
package maker

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// GridPosition tracks one filled grid buy paired with its sell, per
// SPEC_FULL.md §3 "grid_positions".
type GridPosition = types.GridPosition

// State is the mutable run-state of exactly one engine. It is owned
// exclusively by that engine; every other reader must go through Snapshot.
type State struct {
	mu sync.RWMutex

	Running bool

	ReferenceBid1 decimal.Decimal
	ReferenceAsk1 decimal.Decimal
	ReferenceMid  decimal.Decimal

	BuyOrderID     string
	BuyOrderPrice  decimal.Decimal
	SellOrderID    string
	SellOrderPrice decimal.Decimal

	TotalBuyShares    decimal.Decimal
	TotalBuyCost      decimal.Decimal
	TotalSellShares   decimal.Decimal
	TotalSellRevenue  decimal.Decimal
	RealizedPnL       decimal.Decimal
	SpreadProfit      decimal.Decimal
	MatchedShares     decimal.Decimal
	BuyTradeCount     int
	SellTradeCount    int
	PeakPnL           decimal.Decimal
	MaxDrawdown       decimal.Decimal
	TotalFees         decimal.Decimal
	MinBuyPrice       decimal.Decimal
	MaxBuyPrice       decimal.Decimal
	MinSellPrice      decimal.Decimal
	MaxSellPrice      decimal.Decimal

	StopLossTriggered     bool
	PositionLimitReached  bool
	DepthInsufficient     bool
	PriceBoundaryHit      bool
	DepthDropTriggered    bool

	BidDepthHistory *RingBuffer
	AskDepthHistory *RingBuffer

	GridPositions  []GridPosition
	GridBuyOrders  map[string]decimal.Decimal // orderID -> price
	GridSellOrders map[string]decimal.Decimal // orderID -> price

	// LayeredBuyOrderIDs/LayeredSellOrderIDs hold the non-canonical orders of a
	// layered placement (SPEC_FULL.md §4.6.1 "Layered placement"); the
	// canonical (lowest-level) order is tracked as BuyOrderID/SellOrderID as
	// usual so the rest of the dual-quote reconcile logic needs no branching.
	LayeredBuyOrderIDs  []string
	LayeredSellOrderIDs []string

	StartTime time.Time
	EndTime   time.Time
}

// NewState creates a fresh engine state. historyWindow sizes the depth-drop
// ring buffers to `drop_window_ticks + 1` per SPEC_FULL.md §3.
func NewState(historyWindow int) *State {
	return &State{
		Running:         true,
		StartTime:       time.Now(),
		BidDepthHistory: NewRingBuffer(historyWindow),
		AskDepthHistory: NewRingBuffer(historyWindow),
		GridBuyOrders:   make(map[string]decimal.Decimal),
		GridSellOrders:  make(map[string]decimal.Decimal),
	}
}

// AvgBuyCost returns total_buy_cost/total_buy_shares, or zero if nothing has
// been bought yet. Used by the cost-based ask strategy (§4.6.1).
func (s *State) AvgBuyCost() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.TotalBuyShares.Sign() <= 0 {
		return decimal.Zero
	}
	return s.TotalBuyCost.Div(s.TotalBuyShares)
}

// RecordBuy applies a buy fill to the running tallies.
func (s *State) RecordBuy(price, shares decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := price.Mul(shares)
	s.TotalBuyShares = s.TotalBuyShares.Add(shares)
	s.TotalBuyCost = s.TotalBuyCost.Add(cost)
	s.BuyTradeCount++
	if s.MinBuyPrice.IsZero() || price.LessThan(s.MinBuyPrice) {
		s.MinBuyPrice = price
	}
	if price.GreaterThan(s.MaxBuyPrice) {
		s.MaxBuyPrice = price
	}
}

// RecordSell applies a sell fill to the running tallies and realizes PnL
// against the average buy cost at the time of sale.
func (s *State) RecordSell(price, shares decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revenue := price.Mul(shares)
	s.TotalSellShares = s.TotalSellShares.Add(shares)
	s.TotalSellRevenue = s.TotalSellRevenue.Add(revenue)
	s.SellTradeCount++
	if s.MinSellPrice.IsZero() || price.LessThan(s.MinSellPrice) {
		s.MinSellPrice = price
	}
	if price.GreaterThan(s.MaxSellPrice) {
		s.MaxSellPrice = price
	}

	if s.TotalBuyShares.Sign() > 0 {
		avgCost := s.TotalBuyCost.Div(s.TotalBuyShares)
		gain := price.Sub(avgCost).Mul(shares)
		s.RealizedPnL = s.RealizedPnL.Add(gain)
		s.SpreadProfit = s.SpreadProfit.Add(gain)
		if s.RealizedPnL.GreaterThan(s.PeakPnL) {
			s.PeakPnL = s.RealizedPnL
		}
		drawdown := s.PeakPnL.Sub(s.RealizedPnL)
		if drawdown.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = drawdown
		}
	}
	s.MatchedShares = s.MatchedShares.Add(shares)
}

// HeldShares returns shares bought minus shares sold — the position this
// engine still carries on the quoted token.
func (s *State) HeldShares() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TotalBuyShares.Sub(s.TotalSellShares)
}

// Stop flips running=false; the engine exits its loop at the next tick
// boundary (SPEC_FULL.md §5 "Cancellation").
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = false
	s.EndTime = time.Now()
}

// IsRunning reports the current running flag.
func (s *State) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Running
}

// Snapshot is the immutable, clone-on-read view external observers
// (internal/observe, shutdown summaries) receive — never the live State.
type Snapshot struct {
	Running              bool
	BuyOrderID           string
	BuyOrderPrice        decimal.Decimal
	SellOrderID          string
	SellOrderPrice       decimal.Decimal
	TotalBuyShares       decimal.Decimal
	TotalSellShares      decimal.Decimal
	RealizedPnL          decimal.Decimal
	MatchedShares        decimal.Decimal
	StopLossTriggered    bool
	PositionLimitReached bool
	DepthInsufficient    bool
	PriceBoundaryHit     bool
	DepthDropTriggered   bool
	GridPositionCount    int
	StartTime            time.Time
	EndTime              time.Time
}

// Snapshot clones the reportable fields of State under lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Running:              s.Running,
		BuyOrderID:           s.BuyOrderID,
		BuyOrderPrice:        s.BuyOrderPrice,
		SellOrderID:          s.SellOrderID,
		SellOrderPrice:       s.SellOrderPrice,
		TotalBuyShares:       s.TotalBuyShares,
		TotalSellShares:      s.TotalSellShares,
		RealizedPnL:          s.RealizedPnL,
		MatchedShares:        s.MatchedShares,
		StopLossTriggered:    s.StopLossTriggered,
		PositionLimitReached: s.PositionLimitReached,
		DepthInsufficient:    s.DepthInsufficient,
		PriceBoundaryHit:     s.PriceBoundaryHit,
		DepthDropTriggered:   s.DepthDropTriggered,
		GridPositionCount:    len(s.GridPositions),
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
	}
}
