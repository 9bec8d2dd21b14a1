package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyLevelInsertsSorted(t *testing.T) {
	t.Parallel()

	var bids []Level
	bids = applyLevel(bids, dec("0.54"), dec("100"), true)
	bids = applyLevel(bids, dec("0.56"), dec("50"), true)
	bids = applyLevel(bids, dec("0.55"), dec("25"), true)

	want := []string{"0.56", "0.55", "0.54"}
	if len(bids) != len(want) {
		t.Fatalf("len(bids) = %d, want %d", len(bids), len(want))
	}
	for i, w := range want {
		if !bids[i].Price.Equal(dec(w)) {
			t.Errorf("bids[%d].Price = %s, want %s", i, bids[i].Price, w)
		}
	}
}

func TestApplyLevelUpdatesExisting(t *testing.T) {
	t.Parallel()

	bids := []Level{{Price: dec("0.55"), Size: dec("100")}}
	bids = applyLevel(bids, dec("0.55"), dec("250"), true)

	if len(bids) != 1 {
		t.Fatalf("len(bids) = %d, want 1", len(bids))
	}
	if !bids[0].Size.Equal(dec("250")) {
		t.Errorf("bids[0].Size = %s, want 250", bids[0].Size)
	}
}

func TestApplyLevelRemovesOnZeroSize(t *testing.T) {
	t.Parallel()

	bids := []Level{
		{Price: dec("0.55"), Size: dec("100")},
		{Price: dec("0.54"), Size: dec("200")},
	}
	bids = applyLevel(bids, dec("0.55"), dec("0"), true)

	if len(bids) != 1 {
		t.Fatalf("len(bids) = %d, want 1", len(bids))
	}
	if !bids[0].Price.Equal(dec("0.54")) {
		t.Errorf("remaining level price = %s, want 0.54", bids[0].Price)
	}
}

func TestSnapshotMidPrice(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		Bids: []Level{{Price: dec("0.50"), Size: dec("100")}},
		Asks: []Level{{Price: dec("0.60"), Size: dec("100")}},
	}
	mid, ok := snap.MidPrice()
	if !ok {
		t.Fatal("MidPrice returned ok=false for populated snapshot")
	}
	if !mid.Equal(dec("0.55")) {
		t.Errorf("mid = %s, want 0.55", mid)
	}
}

func TestSnapshotMidPriceEmpty(t *testing.T) {
	t.Parallel()

	var snap Snapshot
	if _, ok := snap.MidPrice(); ok {
		t.Error("MidPrice should return ok=false for empty snapshot")
	}
}

func TestSnapshotDepthQuote(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		Bids: []Level{
			{Price: dec("0.50"), Size: dec("100")},
			{Price: dec("0.49"), Size: dec("200")},
		},
	}
	depth := snap.DepthQuote(types.BUY, 1)
	if !depth.Equal(dec("50")) {
		t.Errorf("depth(1 level) = %s, want 50", depth)
	}

	depth = snap.DepthQuote(types.BUY, 2)
	if !depth.Equal(dec("148")) {
		t.Errorf("depth(2 levels) = %s, want 148", depth)
	}
}
