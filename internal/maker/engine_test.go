package maker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/calc"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/filltracker"
	"polymarket-mm/internal/orderbook"
	"polymarket-mm/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type stubStopLoss struct {
	called    bool
	tokenID   string
	shares    decimal.Decimal
}

func (s *stubStopLoss) Execute(ctx context.Context, tokenID string, heldShares decimal.Decimal) error {
	s.called = true
	s.tokenID = tokenID
	s.shares = heldShares
	return nil
}

func newTestEngine(cfg config.MarketMakerConfig, stopLoss StopLossExecutor) *Engine {
	return &Engine{
		cfg:       cfg,
		tokenID:   "tok-1",
		tickSize:  types.Tick001,
		stopLoss:  stopLoss,
		state:     NewState(cfg.DropWindowTicks + 1),
		fills:     make(chan FillEvent, 1),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		firstTick: true,
	}
}

func TestClampBidRespectsMaxBuyPrice(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{MaxBuyPrice: 0.5}, nil)
	got := e.clampBid(dec("0.8"))
	if !got.Equal(dec("0.5")) {
		t.Errorf("clampBid = %s, want 0.5", got)
	}
}

func TestClampBidRespectsMaxDeviation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{MaxDeviation: 0.1}, nil)
	e.state.ReferenceMid = dec("0.5")
	got := e.clampBid(dec("0.9"))
	if !got.Equal(dec("0.55")) {
		t.Errorf("clampBid = %s, want 0.55", got)
	}
}

func TestClampAskRespectsMinSellPrice(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{MinSellPrice: 0.4}, nil)
	got := e.clampAsk(dec("0.2"))
	if !got.Equal(dec("0.4")) {
		t.Errorf("clampAsk = %s, want 0.4", got)
	}
}

func TestPositionGateTripsOnMaxShares(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{MaxShares: 100}, nil)
	e.state.RecordBuy(dec("0.5"), dec("100"))
	e.positionGate()
	if !e.state.PositionLimitReached {
		t.Error("expected PositionLimitReached=true once held shares reach max_shares")
	}
}

func TestPositionGateTripsOnMaxAmountQuote(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{MaxAmountQuote: 40}, nil)
	e.state.RecordBuy(dec("0.5"), dec("100")) // cost 50 >= 40
	e.positionGate()
	if !e.state.PositionLimitReached {
		t.Error("expected PositionLimitReached=true once held cost reaches max_amount_quote")
	}
}

func TestPositionGateClearWithNoHoldings(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{MaxShares: 100}, nil)
	e.positionGate()
	if e.state.PositionLimitReached {
		t.Error("expected PositionLimitReached=false with no holdings")
	}
}

func TestStopLossGateTriggersOnStopLossPrice(t *testing.T) {
	t.Parallel()

	stub := &stubStopLoss{}
	e := newTestEngine(config.MarketMakerConfig{StopLossPrice: 0.4}, stub)
	e.state.RecordBuy(dec("0.5"), dec("10"))

	tripped := e.stopLossGate(context.Background(), dec("0.3"))
	if !tripped {
		t.Fatal("expected stop-loss gate to trip")
	}
	if !stub.called {
		t.Error("expected stop-loss executor to be invoked")
	}
	if e.state.IsRunning() {
		t.Error("expected engine state to stop after stop-loss trigger")
	}
}

func TestStopLossGateDoesNotTriggerWithoutHoldings(t *testing.T) {
	t.Parallel()

	stub := &stubStopLoss{}
	e := newTestEngine(config.MarketMakerConfig{StopLossPrice: 0.4}, stub)

	if e.stopLossGate(context.Background(), dec("0.1")) {
		t.Error("expected stop-loss gate not to trip with zero holdings")
	}
	if stub.called {
		t.Error("did not expect stop-loss executor to be invoked")
	}
}

func TestStopLossGateTriggersOnPercent(t *testing.T) {
	t.Parallel()

	stub := &stubStopLoss{}
	e := newTestEngine(config.MarketMakerConfig{StopLossPercent: 10}, stub)
	e.state.RecordBuy(dec("1.0"), dec("10")) // avg cost 1.0, cost basis 10

	// mid 0.85 -> unrealized = (0.85-1.0)*10 = -1.5, pct = -15% < -10%
	if !e.stopLossGate(context.Background(), dec("0.85")) {
		t.Error("expected stop-loss gate to trip on percent threshold")
	}
}

func TestIsFilledNotFoundMeansTerminal(t *testing.T) {
	t.Parallel()

	if !isFilled(nil, "order-1") {
		t.Error("expected isFilled=true when order no longer open")
	}
}

func TestIsFilledPartialMatchNotFilled(t *testing.T) {
	t.Parallel()

	orders := []types.OpenOrder{{ID: "order-1", OriginalSize: "100", SizeMatched: "40"}}
	if isFilled(orders, "order-1") {
		t.Error("expected isFilled=false for a partial match")
	}
}

func TestIsFilledFullMatch(t *testing.T) {
	t.Parallel()

	orders := []types.OpenOrder{{ID: "order-1", OriginalSize: "100", SizeMatched: "100"}}
	if !isFilled(orders, "order-1") {
		t.Error("expected isFilled=true for a full match")
	}
}

func TestRandomAmountWithinBounds(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		got := randomAmount(5, 10)
		if got < 5 || got > 10 {
			t.Fatalf("randomAmount = %f, want within [5, 10]", got)
		}
	}
}

func TestRandomAmountDegenerateRange(t *testing.T) {
	t.Parallel()

	if got := randomAmount(5, 5); got != 5 {
		t.Errorf("randomAmount(5,5) = %f, want 5", got)
	}
}

// TestLayeredLevelPricesReadsConfiguredDepths mirrors S5's book shape:
// price_levels=[1,3,5] against asks holding 0.60/0.62/0.64 at those indices.
func TestLayeredLevelPricesReadsConfiguredDepths(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{PriceLevels: []int{1, 3, 5}}, nil)
	snap := orderbook.Snapshot{
		Asks: []orderbook.Level{
			{Price: dec("0.58"), Size: dec("10")},
			{Price: dec("0.60"), Size: dec("10")},
			{Price: dec("0.61"), Size: dec("10")},
			{Price: dec("0.62"), Size: dec("10")},
			{Price: dec("0.63"), Size: dec("10")},
			{Price: dec("0.64"), Size: dec("10")},
		},
	}

	prices, ok := e.layeredLevelPrices(snap, types.SELL)
	if !ok {
		t.Fatal("expected layeredLevelPrices to succeed with sufficient depth")
	}
	want := []decimal.Decimal{dec("0.60"), dec("0.62"), dec("0.64")}
	for i, w := range want {
		if !prices[i].Equal(w) {
			t.Errorf("prices[%d] = %s, want %s", i, prices[i], w)
		}
	}
}

func TestLayeredLevelPricesInsufficientDepth(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{PriceLevels: []int{1, 3, 5}}, nil)
	snap := orderbook.Snapshot{
		Asks: []orderbook.Level{
			{Price: dec("0.58"), Size: dec("10")},
			{Price: dec("0.60"), Size: dec("10")},
		},
	}

	if _, ok := e.layeredLevelPrices(snap, types.SELL); ok {
		t.Error("expected layeredLevelPrices to fail when the book doesn't reach every configured level")
	}
}

func TestOnFillTranslatesAndEnqueues(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{}, nil)
	e.OnFill(filltracker.FillEvent{
		OrderID: "o1", TokenID: "tok-1", Side: types.BUY, Price: dec("0.5"), Delta: dec("10"),
	})

	select {
	case fill := <-e.fills:
		if fill.Side != types.BUY || !fill.Price.Equal(dec("0.5")) || !fill.Shares.Equal(dec("10")) {
			t.Errorf("unexpected translated fill: %+v", fill)
		}
	default:
		t.Fatal("expected OnFill to enqueue a FillEvent")
	}
}

func TestTrackUntrackFillNoOpWithoutTracker(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{}, nil)
	// Must not panic when no Fill Tracker has been wired (e.g. in tests).
	e.trackFill("o1", types.BUY, dec("0.5"), dec("10"))
	e.untrackFill("o1")
}

// TestRemoveGridPositionReturnsFilledShares guards against grid-mode realized
// PnL and TotalSellShares silently staying at zero on every fill.
func TestRemoveGridPositionReturnsFilledShares(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{}, nil)
	e.state.GridPositions = []types.GridPosition{
		{BuyOrderID: "b1", SellOrderID: "s1", Shares: 25},
		{BuyOrderID: "b2", SellOrderID: "s2", Shares: 40},
	}

	got := e.removeGridPosition("s1")
	if !got.Equal(dec("25")) {
		t.Errorf("removeGridPosition(s1) = %s, want 25", got)
	}
	if len(e.state.GridPositions) != 1 || e.state.GridPositions[0].SellOrderID != "s2" {
		t.Errorf("expected only s2's position to remain, got %+v", e.state.GridPositions)
	}

	if got := e.removeGridPosition("unknown"); !got.IsZero() {
		t.Errorf("removeGridPosition(unknown) = %s, want 0", got)
	}
}

// TestGridRecordSellUsesFilledSharesNotZero mirrors reconcileGridSells'
// record-sell call: RecordSell must receive the real share count so realized
// PnL and TotalSellShares both advance (§4.6.2 "on FILLED, record realized PnL").
func TestGridRecordSellUsesFilledSharesNotZero(t *testing.T) {
	t.Parallel()

	e := newTestEngine(config.MarketMakerConfig{}, nil)
	e.state.GridPositions = []types.GridPosition{{SellOrderID: "s1", Shares: 30}}
	e.state.RecordBuy(dec("0.40"), dec("30"))

	shares := e.removeGridPosition("s1")
	e.state.RecordSell(dec("0.45"), shares)

	if !e.state.TotalSellShares.Equal(dec("30")) {
		t.Errorf("TotalSellShares = %s, want 30", e.state.TotalSellShares)
	}
	if e.state.RealizedPnL.IsZero() {
		t.Error("expected realized PnL to be recorded on a real-shares sell")
	}
	if !e.state.HeldShares().IsZero() {
		t.Errorf("HeldShares() = %s, want 0 after matching buy/sell", e.state.HeldShares())
	}
}

// TestDistributionRatiosPyramidMatchesS5 checks the PYRAMID weights used by
// the layered-ask scenario: [1,2,3]/6 for three levels.
func TestDistributionRatiosPyramidMatchesS5(t *testing.T) {
	t.Parallel()

	ratios, err := calc.DistributionRatios(3, types.DistPyramid, nil)
	if err != nil {
		t.Fatalf("DistributionRatios: %v", err)
	}
	totalShares := dec("60")
	wantShares := []string{"10", "20", "30"}
	for i, w := range wantShares {
		got := totalShares.Mul(ratios[i]).Round(6).Floor()
		if got.String() != w {
			t.Errorf("level %d shares = %s, want %s", i, got, w)
		}
	}
}
