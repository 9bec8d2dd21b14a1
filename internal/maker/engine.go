package maker

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/calc"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/filltracker"
	"polymarket-mm/internal/ordersubmit"
	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

const (
	depthGateLevels     = 5
	depthDropGateLevels = 10
	priceTolerance      = "0.000001" // SPEC_FULL.md §3 price-equality tolerance
	outbidTolerance     = "0.001"    // SPEC_FULL.md §4.6.1 "tolerance 10⁻³"
)

var tolerance = decimal.RequireFromString(priceTolerance)
var outbidTol = decimal.RequireFromString(outbidTolerance)

// StopLossExecutor liquidates a held position under bounded slippage. Engine
// depends only on this narrow interface, so internal/maker does not import
// internal/stoploss and tests can substitute a stub.
type StopLossExecutor interface {
	Execute(ctx context.Context, tokenID string, heldShares decimal.Decimal) error
}

// FillEvent is what internal/filltracker delivers to an Engine: a delta of
// shares filled at a price, idempotent against cumulative filled_shares
// (SPEC_FULL.md §4.9).
type FillEvent struct {
	Side  types.Side
	Price decimal.Decimal
	Shares decimal.Decimal
}

// Engine is the control loop for one (account, token) pair: it owns a State,
// reads a shared orderbook.Replica snapshot each tick, runs the protection
// gates, and executes one of two strategies (SPEC_FULL.md §4.6). Grounded on
// the teacher's strategy.Maker for the tick-loop *shape* (fetch snapshot →
// gate checks → compute quotes → reconcile-by-diff → sleep); the
// Avellaneda-Stoikov math itself has no counterpart here.
type Engine struct {
	cfg      config.MarketMakerConfig
	tokenID  string
	tickSize types.TickSize

	replica     *orderbook.Replica
	client      *venue.Client
	submitter   *ordersubmit.Submitter
	stopLoss    StopLossExecutor
	fillTracker *filltracker.Tracker
	state       *State

	fills  chan FillEvent
	logger *slog.Logger

	firstTick bool
}

// SetFillTracker wires this engine's dual-quote order placement to a Fill
// Tracker (C9): every bid/ask placed after this call is registered for
// polling-mode fill detection, and detected fills flow back through OnFill
// into the engine's own fills channel (SPEC_FULL.md §4.9). Grid mode
// reconciles fills itself via direct status polls (§4.6.2) and does not use
// this wiring.
func (e *Engine) SetFillTracker(t *filltracker.Tracker) { e.fillTracker = t }

// OnFill implements filltracker.Sink, translating a polling- or streaming-
// mode fill into this engine's own FillEvent shape for the tick loop to
// apply via handleFill.
func (e *Engine) OnFill(ev filltracker.FillEvent) {
	select {
	case e.fills <- FillEvent{Side: ev.Side, Price: ev.Price, Shares: ev.Delta}:
	default:
		e.logger.Warn("fill event dropped, fills channel full", "order_id", ev.OrderID)
	}
}

// NewEngine constructs an engine for one token under one account.
func NewEngine(
	cfg config.MarketMakerConfig,
	tokenID string,
	tickSize types.TickSize,
	replica *orderbook.Replica,
	client *venue.Client,
	submitter *ordersubmit.Submitter,
	stopLoss StopLossExecutor,
	logger *slog.Logger,
) *Engine {
	historyWindow := cfg.DropWindowTicks + 1
	return &Engine{
		cfg:       cfg,
		tokenID:   tokenID,
		tickSize:  tickSize,
		replica:   replica,
		client:    client,
		submitter: submitter,
		stopLoss:  stopLoss,
		state:     NewState(historyWindow),
		fills:     make(chan FillEvent, 64),
		logger:    logger.With("component", "maker_engine", "token", tokenID),
		firstTick: true,
	}
}

// State exposes the engine's run state for snapshot reporting.
func (e *Engine) State() *State { return e.state }

// Fills returns the channel the Fill Tracker (C9) delivers fill events on.
func (e *Engine) Fills() chan<- FillEvent { return e.fills }

// Run drives the tick loop until ctx is cancelled or the state stops itself
// (e.g. after a stop-loss trigger).
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	e.logger.Info("engine started", "check_interval", e.cfg.CheckInterval)

	for {
		select {
		case <-ctx.Done():
			e.cancelOwnOrders(context.Background())
			e.state.Stop()
			e.logger.Info("engine stopped", "reason", "context cancelled")
			return

		case fill := <-e.fills:
			e.handleFill(fill)

		case <-ticker.C:
			if !e.state.IsRunning() {
				e.logger.Info("engine stopped", "reason", "state.running=false")
				return
			}
			e.tick(ctx)
		}
	}
}

// tick runs one iteration of the protection-gate pipeline followed by a
// strategy step (SPEC_FULL.md §4.6).
func (e *Engine) tick(ctx context.Context) {
	snap := e.replica.Snapshot()
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return
	}

	if !e.cfg.GridEnabled && e.fillTracker != nil {
		if err := e.fillTracker.PollOnce(ctx); err != nil {
			e.logger.Warn("fill tracker poll failed", "error", err)
		}
	}

	mid, haveMid := snap.MidPrice()
	if e.firstTick {
		e.firstTick = false
		if len(snap.Bids) > 0 {
			e.state.ReferenceBid1 = snap.BestBid().Price
		}
		if len(snap.Asks) > 0 {
			e.state.ReferenceAsk1 = snap.BestAsk().Price
		}
		if haveMid {
			e.state.ReferenceMid = mid
		}
	}

	if e.depthGate(ctx, snap) {
		return
	}
	if e.depthDropGate(ctx, snap) {
		return
	}
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return
	}
	bid1, ask1 := snap.BestBid().Price, snap.BestAsk().Price
	if ask1.Sub(bid1).LessThan(decimal.NewFromFloat(e.cfg.MinSpread)) {
		return
	}

	e.positionGate()

	if e.stopLossGate(ctx, mid) {
		return
	}

	if e.cfg.GridEnabled {
		e.gridStep(ctx, snap)
	} else {
		e.dualQuoteStep(ctx, snap)
	}
}

// depthGate implements SPEC_FULL.md §4.6 step 3.
func (e *Engine) depthGate(ctx context.Context, snap orderbook.Snapshot) bool {
	if e.cfg.MinOrderbookDepthQuote <= 0 {
		return false
	}
	threshold := decimal.NewFromFloat(e.cfg.MinOrderbookDepthQuote)
	bidDepth := snap.DepthQuote(types.BUY, depthGateLevels)
	askDepth := snap.DepthQuote(types.SELL, depthGateLevels)

	if bidDepth.LessThan(threshold) || askDepth.LessThan(threshold) {
		e.cancelOwnOrders(ctx)
		e.state.DepthInsufficient = true
		e.logger.Warn("depth gate tripped", "bid_depth", bidDepth, "ask_depth", askDepth, "threshold", threshold)
		return true
	}
	e.state.DepthInsufficient = false
	return false
}

// depthDropGate implements SPEC_FULL.md §4.6 step 4.
func (e *Engine) depthDropGate(ctx context.Context, snap orderbook.Snapshot) bool {
	bidDepth := snap.DepthQuote(types.BUY, depthDropGateLevels)
	askDepth := snap.DepthQuote(types.SELL, depthDropGateLevels)
	e.state.BidDepthHistory.Append(bidDepth)
	e.state.AskDepthHistory.Append(askDepth)

	bidDrop, bidOK := e.state.BidDepthHistory.DropPercent()
	askDrop, askOK := e.state.AskDepthHistory.DropPercent()
	if !bidOK && !askOK {
		return false
	}

	threshold := decimal.NewFromFloat(e.cfg.DropThresholdPercent)
	tripped := (bidOK && bidDrop.GreaterThanOrEqual(threshold)) || (askOK && askDrop.GreaterThanOrEqual(threshold))
	if !tripped || !e.cfg.AutoCancelOnDepthDrop {
		return false
	}

	e.logger.Warn("depth-drop gate tripped", "bid_drop_pct", bidDrop, "ask_drop_pct", askDrop)
	e.cancelOwnOrders(ctx)
	e.state.DepthDropTriggered = true
	e.emergencyPositionAction(ctx)
	e.state.BidDepthHistory.Clear()
	e.state.AskDepthHistory.Clear()
	return true
}

// emergencyPositionAction executes the configured on_drop_action.
func (e *Engine) emergencyPositionAction(ctx context.Context) {
	held := e.state.HeldShares()
	if held.Sign() <= 0 {
		return
	}

	snap := e.replica.Snapshot()
	bid1 := snap.BestBid().Price

	var sellShares decimal.Decimal
	switch e.cfg.OnDropAction {
	case string(types.DropSellAll):
		sellShares = held
	case string(types.DropSellPartial):
		pct := decimal.NewFromFloat(e.cfg.DropSellPartialPct).Div(decimal.NewFromInt(100))
		sellShares = held.Mul(pct)
	default: // HOLD
		return
	}
	if sellShares.Sign() <= 0 {
		return
	}

	price, _ := bid1.Float64()
	shares, _ := sellShares.Float64()
	if _, err := e.submitter.Submit(ctx, ordersubmit.Request{
		TokenID:  e.tokenID,
		Side:     types.SELL,
		Price:    price,
		Size:     shares,
		TickSize: e.tickSize,
	}); err != nil {
		e.logger.Error("emergency position action sell failed", "error", err, "action", e.cfg.OnDropAction)
	}
}

// positionGate implements SPEC_FULL.md §4.6 step 6.
func (e *Engine) positionGate() {
	held := e.state.HeldShares()
	limitReached := false

	if e.cfg.MaxShares > 0 && held.GreaterThanOrEqual(decimal.NewFromFloat(e.cfg.MaxShares)) {
		limitReached = true
	}
	if e.cfg.MaxAmountQuote > 0 {
		avgCost := e.state.AvgBuyCost()
		if avgCost.Sign() > 0 && held.Mul(avgCost).GreaterThanOrEqual(decimal.NewFromFloat(e.cfg.MaxAmountQuote)) {
			limitReached = true
		}
	}
	e.state.PositionLimitReached = limitReached
}

// stopLossGate implements the trigger conditions of SPEC_FULL.md §4.6 step 7,
// handing liquidation to the §4.7 executor.
func (e *Engine) stopLossGate(ctx context.Context, mid decimal.Decimal) bool {
	held := e.state.HeldShares()
	if held.Sign() <= 0 {
		return false
	}

	triggered := false

	if e.cfg.StopLossPrice > 0 && mid.LessThan(decimal.NewFromFloat(e.cfg.StopLossPrice)) {
		triggered = true
	}

	avgCost := e.state.AvgBuyCost()
	if avgCost.Sign() > 0 {
		unrealized := mid.Sub(avgCost).Mul(held)
		if e.cfg.StopLossAmount > 0 && unrealized.LessThan(decimal.NewFromFloat(-e.cfg.StopLossAmount)) {
			triggered = true
		}
		if e.cfg.StopLossPercent > 0 {
			cost := avgCost.Mul(held)
			if cost.Sign() > 0 {
				pnlPct := unrealized.Div(cost).Mul(decimal.NewFromInt(100))
				if pnlPct.LessThan(decimal.NewFromFloat(-e.cfg.StopLossPercent)) {
					triggered = true
				}
			}
		}
	}

	if !triggered {
		return false
	}

	e.logger.Warn("stop-loss triggered", "held_shares", held, "mid", mid)
	if e.stopLoss != nil {
		if err := e.stopLoss.Execute(ctx, e.tokenID, held); err != nil {
			e.logger.Error("stop-loss execution failed", "error", err)
		}
	}
	e.state.StopLossTriggered = true
	e.state.Stop()
	return true
}

// dualQuoteStep implements SPEC_FULL.md §4.6.1.
func (e *Engine) dualQuoteStep(ctx context.Context, snap orderbook.Snapshot) {
	bid1, ask1 := snap.BestBid().Price, snap.BestAsk().Price
	minSpread := decimal.NewFromFloat(e.cfg.MinSpread)
	priceStep := decimal.NewFromFloat(e.cfg.PriceStep)

	if !e.state.PositionLimitReached {
		e.manageBid(ctx, snap, bid1, ask1, priceStep, minSpread)
	}
	e.manageAsk(ctx, snap, bid1, ask1, priceStep, minSpread)
}

func (e *Engine) manageBid(ctx context.Context, snap orderbook.Snapshot, bid1, ask1, priceStep, minSpread decimal.Decimal) {
	desired := decimal.Min(bid1.Add(priceStep), ask1.Sub(minSpread))
	desired = e.clampBid(desired)

	if e.state.BuyOrderID == "" {
		if e.cfg.LayeredEnabled {
			e.placeLayered(ctx, snap, types.BUY, desired)
		} else {
			e.placeBid(ctx, desired)
		}
		return
	}

	if bid1.Sub(e.state.BuyOrderPrice).Abs().LessThanOrEqual(outbidTol) {
		return // our own quote is still the best bid
	}
	if !bid1.GreaterThan(e.state.BuyOrderPrice) {
		return // we are still best; nothing outbid us
	}
	if !desired.GreaterThan(e.state.BuyOrderPrice) {
		e.state.PriceBoundaryHit = true
		return
	}

	if _, err := e.client.CancelOrders(ctx, []string{e.state.BuyOrderID}); err != nil {
		e.logger.Error("cancel outbid bid failed", "error", err)
		return
	}
	e.untrackFill(e.state.BuyOrderID)
	e.state.BuyOrderID = ""
	e.placeBid(ctx, desired)
}

func (e *Engine) clampBid(price decimal.Decimal) decimal.Decimal {
	if e.cfg.MaxBuyPrice > 0 {
		price = decimal.Min(price, decimal.NewFromFloat(e.cfg.MaxBuyPrice))
	}
	if e.cfg.MaxDeviation > 0 && e.state.ReferenceMid.Sign() > 0 {
		dev := decimal.NewFromFloat(e.cfg.MaxDeviation)
		upper := e.state.ReferenceMid.Mul(decimal.NewFromInt(1).Add(dev))
		price = decimal.Min(price, upper)
	}
	return price
}

func (e *Engine) clampAsk(price decimal.Decimal) decimal.Decimal {
	if e.cfg.MinSellPrice > 0 {
		price = decimal.Max(price, decimal.NewFromFloat(e.cfg.MinSellPrice))
	}
	if e.cfg.MaxDeviation > 0 && e.state.ReferenceMid.Sign() > 0 {
		dev := decimal.NewFromFloat(e.cfg.MaxDeviation)
		lower := e.state.ReferenceMid.Mul(decimal.NewFromInt(1).Sub(dev))
		price = decimal.Max(price, lower)
	}
	return price
}

func (e *Engine) placeBid(ctx context.Context, price decimal.Decimal) {
	size := randomAmount(e.cfg.OrderAmountMin, e.cfg.OrderAmountMax)
	priceF, _ := price.Float64()
	result, err := e.submitter.Submit(ctx, ordersubmit.Request{
		TokenID: e.tokenID, Side: types.BUY, Price: priceF, Size: size, TickSize: e.tickSize,
	})
	if err != nil {
		e.logger.Error("place bid failed", "error", err, "price", price)
		return
	}
	if result.OrderID != "" {
		e.state.BuyOrderID = result.OrderID
		e.state.BuyOrderPrice = price
		e.trackFill(result.OrderID, types.BUY, price, decimal.NewFromFloat(size))
	}
}

func (e *Engine) manageAsk(ctx context.Context, snap orderbook.Snapshot, bid1, ask1, priceStep, minSpread decimal.Decimal) {
	var desired decimal.Decimal
	marketFollow := ask1.Sub(priceStep)
	if marketFollow.LessThan(bid1.Add(minSpread)) {
		marketFollow = bid1.Add(minSpread)
	}
	desired = e.clampAsk(marketFollow)

	if e.cfg.CostSellEnabled && e.state.TotalBuyShares.Sign() > 0 {
		avgCost := e.state.AvgBuyCost()
		costAsk := avgCost.Add(decimal.NewFromFloat(e.cfg.SellProfitSpread))
		minProfit := decimal.NewFromFloat(e.cfg.MinCostProfitSpread)
		if costAsk.Sub(avgCost).GreaterThanOrEqual(minProfit) {
			if ask1.GreaterThan(e.state.SellOrderPrice) && ask1.GreaterThan(costAsk) {
				candidate := ask1.Sub(priceStep)
				if candidate.LessThan(costAsk) {
					candidate = costAsk
				}
				desired = decimal.Max(candidate, costAsk)
			} else {
				desired = costAsk
			}
		}
	}

	if e.state.SellOrderID == "" {
		if e.cfg.LayeredEnabled {
			e.placeLayered(ctx, snap, types.SELL, desired)
		} else {
			e.placeAsk(ctx, desired)
		}
		return
	}
	if ask1.Sub(e.state.SellOrderPrice).Abs().LessThanOrEqual(outbidTol) {
		return
	}
	if !ask1.LessThan(e.state.SellOrderPrice) {
		return
	}
	if !desired.LessThan(e.state.SellOrderPrice) {
		e.state.PriceBoundaryHit = true
		return
	}
	if _, err := e.client.CancelOrders(ctx, []string{e.state.SellOrderID}); err != nil {
		e.logger.Error("cancel outbid ask failed", "error", err)
		return
	}
	e.untrackFill(e.state.SellOrderID)
	e.state.SellOrderID = ""
	e.placeAsk(ctx, desired)
}

func (e *Engine) placeAsk(ctx context.Context, price decimal.Decimal) {
	size := randomAmount(e.cfg.OrderAmountMin, e.cfg.OrderAmountMax)
	priceF, _ := price.Float64()
	result, err := e.submitter.Submit(ctx, ordersubmit.Request{
		TokenID: e.tokenID, Side: types.SELL, Price: priceF, Size: size, TickSize: e.tickSize,
	})
	if err != nil {
		e.logger.Error("place ask failed", "error", err, "price", price)
		return
	}
	if result.OrderID != "" {
		e.state.SellOrderID = result.OrderID
		e.state.SellOrderPrice = price
		e.trackFill(result.OrderID, types.SELL, price, decimal.NewFromFloat(size))
	}
}

// trackFill registers a newly placed dual-quote order with the Fill Tracker,
// a no-op if none is wired (e.g. in unit tests).
func (e *Engine) trackFill(orderID string, side types.Side, price, size decimal.Decimal) {
	if e.fillTracker == nil {
		return
	}
	e.fillTracker.Track(orderID, e.tokenID, side, price, size, e)
}

// untrackFill stops fill detection for an order this engine just cancelled.
func (e *Engine) untrackFill(orderID string) {
	if e.fillTracker == nil || orderID == "" {
		return
	}
	e.fillTracker.Untrack(orderID)
}

// layeredLevelPrices reads the price at each configured price_levels index of
// the given side's ladder. It returns ok=false if the replica does not carry
// enough depth to reach every configured level, per SPEC_FULL.md §4.6.1
// "if the replica has enough depth".
func (e *Engine) layeredLevelPrices(snap orderbook.Snapshot, side types.Side) ([]decimal.Decimal, bool) {
	levels := e.cfg.PriceLevels
	if len(levels) == 0 {
		return nil, false
	}
	src := snap.Bids
	if side == types.SELL {
		src = snap.Asks
	}
	prices := make([]decimal.Decimal, len(levels))
	for i, lvl := range levels {
		if lvl < 0 || lvl >= len(src) {
			return nil, false
		}
		prices[i] = src[lvl].Price
	}
	return prices, true
}

// placeLayered implements SPEC_FULL.md §4.6.1's optional layered placement:
// instead of one order at the fallback price, it places len(price_levels)
// orders at the configured ladder depths, sized by distribution_ratios
// (C4). The lowest configured level (price_levels[0]) is tracked as the
// canonical BuyOrderID/SellOrderID so the rest of the reconcile logic needs
// no branching; the remaining orders are tracked only for cancellation.
func (e *Engine) placeLayered(ctx context.Context, snap orderbook.Snapshot, side types.Side, fallback decimal.Decimal) {
	prices, ok := e.layeredLevelPrices(snap, side)
	if !ok {
		if side == types.BUY {
			e.placeBid(ctx, fallback)
		} else {
			e.placeAsk(ctx, fallback)
		}
		return
	}

	ratios, err := calc.DistributionRatios(len(prices), types.DistributionMode(e.cfg.Distribution), e.cfg.CustomRatios)
	if err != nil {
		e.logger.Error("layered distribution ratios invalid, falling back to single order", "error", err)
		if side == types.BUY {
			e.placeBid(ctx, fallback)
		} else {
			e.placeAsk(ctx, fallback)
		}
		return
	}

	totalAmount := decimal.NewFromFloat(randomAmount(e.cfg.OrderAmountMin, e.cfg.OrderAmountMax))
	totalShares := calc.SharesFromAmount(totalAmount, prices[0])

	var extraIDs []string
	var canonicalID string
	var canonicalPrice decimal.Decimal

	for i, price := range prices {
		if side == types.BUY {
			price = e.clampBid(price)
		} else {
			price = e.clampAsk(price)
		}
		// Round before flooring so division drift (60 × 0.3333333333333333 =
		// 19.99…98) does not cost a whole share.
		shares := totalShares.Mul(ratios[i]).Round(6).Floor()
		if shares.Sign() <= 0 {
			continue
		}
		priceF, _ := price.Float64()
		sharesF, _ := shares.Float64()
		result, err := e.submitter.Submit(ctx, ordersubmit.Request{
			TokenID: e.tokenID, Side: side, Price: priceF, Size: sharesF, TickSize: e.tickSize,
		})
		if err != nil {
			e.logger.Error("layered order failed", "error", err, "level_index", i, "price", price)
			continue
		}
		if result.OrderID == "" {
			continue
		}
		e.trackFill(result.OrderID, side, price, shares)
		if i == 0 {
			canonicalID, canonicalPrice = result.OrderID, price
		} else {
			extraIDs = append(extraIDs, result.OrderID)
		}
	}

	if side == types.BUY {
		if canonicalID != "" {
			e.state.BuyOrderID, e.state.BuyOrderPrice = canonicalID, canonicalPrice
		}
		e.state.LayeredBuyOrderIDs = append(e.state.LayeredBuyOrderIDs, extraIDs...)
	} else {
		if canonicalID != "" {
			e.state.SellOrderID, e.state.SellOrderPrice = canonicalID, canonicalPrice
		}
		e.state.LayeredSellOrderIDs = append(e.state.LayeredSellOrderIDs, extraIDs...)
	}
}

// gridStep implements SPEC_FULL.md §4.6.2.
func (e *Engine) gridStep(ctx context.Context, snap orderbook.Snapshot) {
	bid1 := snap.BestBid().Price
	levelSpread := decimal.NewFromFloat(e.cfg.LevelSpread)
	profitSpread := decimal.NewFromFloat(e.cfg.ProfitSpread)
	minProfitSpread := decimal.NewFromFloat(e.cfg.MinProfitSpread)
	amountPerLevel := decimal.NewFromFloat(e.cfg.AmountPerLevel)

	e.reconcileGridSells(ctx, bid1)
	e.reconcileGridBuys(ctx, profitSpread, minProfitSpread)
	e.topUpGridBuys(ctx, bid1, levelSpread, amountPerLevel)
}

func (e *Engine) reconcileGridBuys(ctx context.Context, profitSpread, minProfitSpread decimal.Decimal) {
	orders, err := e.client.GetOpenOrders(ctx, "")
	if err != nil {
		e.logger.Error("grid buy status check failed", "error", err)
		return
	}
	for orderID, price := range e.state.GridBuyOrders {
		if !isFilled(orders, orderID) {
			continue
		}

		shares := calc.SharesFromAmount(decimal.NewFromFloat(e.cfg.AmountPerLevel), price)
		if profitSpread.LessThan(minProfitSpread) {
			delete(e.state.GridBuyOrders, orderID)
			continue
		}
		sellPrice := price.Add(profitSpread)
		sellPriceF, _ := sellPrice.Float64()
		sharesF, _ := shares.Float64()
		result, err := e.submitter.Submit(ctx, ordersubmit.Request{
			TokenID: e.tokenID, Side: types.SELL, Price: sellPriceF, Size: sharesF, TickSize: e.tickSize,
		})
		if err != nil {
			e.logger.Error("grid paired sell failed", "error", err)
			continue
		}
		e.state.GridPositions = append(e.state.GridPositions, GridPosition{
			BuyOrderID: orderID, BuyPrice: price.InexactFloat64(), Shares: shares.InexactFloat64(),
			SellOrderID: result.OrderID, SellPrice: sellPrice.InexactFloat64(), FilledAt: time.Now(),
		})
		e.state.RecordBuy(price, shares)
		if result.OrderID != "" {
			e.state.GridSellOrders[result.OrderID] = sellPrice
		}
		delete(e.state.GridBuyOrders, orderID)
	}
}

func (e *Engine) reconcileGridSells(ctx context.Context, bid1 decimal.Decimal) {
	orders, err := e.client.GetOpenOrders(ctx, "")
	if err != nil {
		e.logger.Error("grid sell status check failed", "error", err)
		return
	}
	for orderID, price := range e.state.GridSellOrders {
		if !isFilled(orders, orderID) {
			continue
		}
		delete(e.state.GridSellOrders, orderID)
		shares := e.removeGridPosition(orderID)
		e.state.RecordSell(price, shares)

		if e.cfg.AutoRebalance {
			e.topUpGridBuys(ctx, bid1, decimal.Zero, decimal.NewFromFloat(e.cfg.AmountPerLevel))
		}
	}
}

// removeGridPosition deletes the grid position paired with sellOrderID and
// returns the share count it held, so the caller can record the realized
// sell against the actual filled size rather than zero.
func (e *Engine) removeGridPosition(sellOrderID string) decimal.Decimal {
	for i, pos := range e.state.GridPositions {
		if pos.SellOrderID == sellOrderID {
			shares := decimal.NewFromFloat(pos.Shares)
			e.state.GridPositions = append(e.state.GridPositions[:i], e.state.GridPositions[i+1:]...)
			return shares
		}
	}
	return decimal.Zero
}

func (e *Engine) topUpGridBuys(ctx context.Context, bid1, levelSpread, amountPerLevel decimal.Decimal) {
	if e.state.PositionLimitReached {
		return
	}
	for len(e.state.GridBuyOrders) < e.cfg.GridLevels {
		i := len(e.state.GridBuyOrders)
		price := bid1.Sub(levelSpread.Mul(decimal.NewFromInt(int64(i))))
		shares := calc.SharesFromAmount(amountPerLevel, price)
		if shares.Sign() <= 0 {
			return
		}
		priceF, _ := price.Float64()
		sharesF, _ := shares.Float64()
		result, err := e.submitter.Submit(ctx, ordersubmit.Request{
			TokenID: e.tokenID, Side: types.BUY, Price: priceF, Size: sharesF, TickSize: e.tickSize,
		})
		if err != nil {
			e.logger.Error("grid top-up buy failed", "error", err)
			return
		}
		if result.OrderID == "" {
			return
		}
		e.state.GridBuyOrders[result.OrderID] = price
	}
}

// handleFill applies a detected fill to state tallies (SPEC_FULL.md §4.9).
func (e *Engine) handleFill(fill FillEvent) {
	switch fill.Side {
	case types.BUY:
		e.state.RecordBuy(fill.Price, fill.Shares)
	case types.SELL:
		e.state.RecordSell(fill.Price, fill.Shares)
	}
	e.logger.Info("fill processed", "side", fill.Side, "price", fill.Price, "shares", fill.Shares)
}

// cancelOwnOrders cancels this engine's live bid/ask, used by the depth and
// depth-drop gates.
func (e *Engine) cancelOwnOrders(ctx context.Context) {
	var ids []string
	if e.state.BuyOrderID != "" {
		ids = append(ids, e.state.BuyOrderID)
	}
	if e.state.SellOrderID != "" {
		ids = append(ids, e.state.SellOrderID)
	}
	ids = append(ids, e.state.LayeredBuyOrderIDs...)
	ids = append(ids, e.state.LayeredSellOrderIDs...)
	if len(ids) == 0 {
		return
	}
	if _, err := e.client.CancelOrders(ctx, ids); err != nil {
		e.logger.Error("cancel own orders failed", "error", err)
		return
	}
	for _, id := range ids {
		e.untrackFill(id)
	}
	e.state.BuyOrderID = ""
	e.state.SellOrderID = ""
	e.state.LayeredBuyOrderIDs = nil
	e.state.LayeredSellOrderIDs = nil
}

// isFilled reports whether orderID is fully matched: either it no longer
// appears among open orders (the venue drops fully-matched orders from the
// open-orders list) or its matched size has caught up to its original size.
func isFilled(orders []types.OpenOrder, orderID string) bool {
	for _, o := range orders {
		if o.ID != orderID {
			continue
		}
		original, err1 := decimal.NewFromString(o.OriginalSize)
		matched, err2 := decimal.NewFromString(o.SizeMatched)
		if err1 != nil || err2 != nil {
			return false
		}
		return matched.GreaterThanOrEqual(original)
	}
	return true // no longer open: fully matched (or cancelled, treated as terminal)
}

// randomAmount picks a uniform-random quote amount in [min, max] per
// SPEC_FULL.md §3 "Sizing".
func randomAmount(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.Float64()*(max-min)
}
