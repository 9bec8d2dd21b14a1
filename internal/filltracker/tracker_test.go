package filltracker

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

type recordingSink struct {
	events []FillEvent
}

func (r *recordingSink) OnFill(e FillEvent) { r.events = append(r.events, e) }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitIfIncreasedOnlyFiresOnNetIncrease(t *testing.T) {
	t.Parallel()

	tr := New(nil, testLogger())
	sink := &recordingSink{}
	to := &trackedOrder{tokenID: "tok", side: types.BUY, price: dec("0.5"), originalSize: dec("100"), sink: sink}

	tr.emitIfIncreased(to, "order-1", dec("40"))
	tr.emitIfIncreased(to, "order-1", dec("40")) // duplicate cumulative value: no-op
	tr.emitIfIncreased(to, "order-1", dec("70"))

	if len(sink.events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(sink.events))
	}
	if !sink.events[0].Delta.Equal(dec("40")) {
		t.Errorf("events[0].Delta = %s, want 40", sink.events[0].Delta)
	}
	if !sink.events[1].Delta.Equal(dec("30")) {
		t.Errorf("events[1].Delta = %s, want 30", sink.events[1].Delta)
	}
}

func TestOnTradeMessageIgnoresUntrackedOrder(t *testing.T) {
	t.Parallel()

	tr := New(nil, testLogger())
	sink := &recordingSink{}
	tr.Track("order-1", "tok", types.BUY, dec("0.5"), dec("100"), sink)

	tr.OnTradeMessage(venue.LastTradePayload{OrderID: "order-2", Size: "10"})
	if len(sink.events) != 0 {
		t.Error("expected no events for an order this tracker isn't watching")
	}
}

func TestOnTradeMessageEmitsAndUntracksOnFullFill(t *testing.T) {
	t.Parallel()

	tr := New(nil, testLogger())
	sink := &recordingSink{}
	tr.Track("order-1", "tok", types.SELL, dec("0.6"), dec("50"), sink)

	tr.OnTradeMessage(venue.LastTradePayload{OrderID: "order-1", Size: "50"})
	if len(sink.events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(sink.events))
	}
	if !sink.events[0].Delta.Equal(dec("50")) {
		t.Errorf("Delta = %s, want 50", sink.events[0].Delta)
	}

	tr.mu.Lock()
	_, stillTracked := tr.tracked["order-1"]
	tr.mu.Unlock()
	if stillTracked {
		t.Error("expected order to be untracked after reaching its full size")
	}
}

func TestUntrackRemovesOrder(t *testing.T) {
	t.Parallel()

	tr := New(nil, testLogger())
	sink := &recordingSink{}
	tr.Track("order-1", "tok", types.BUY, dec("0.5"), dec("10"), sink)
	tr.Untrack("order-1")

	tr.mu.Lock()
	_, ok := tr.tracked["order-1"]
	tr.mu.Unlock()
	if ok {
		t.Error("expected order to be removed after Untrack")
	}
}
