package stoploss

import (
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

func TestTopBidDepthSumsTopLevels(t *testing.T) {
	t.Parallel()

	book := &types.BookResponse{
		Bids: []types.PriceLevel{
			{Price: "0.50", Size: "100"},
			{Price: "0.49", Size: "200"},
			{Price: "0.48", Size: "300"},
		},
	}

	depth, bid1, ok := topBidDepth(book, 2)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !bid1.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("bid1 = %s, want 0.50", bid1)
	}
	want := decimal.RequireFromString("0.50").Mul(decimal.RequireFromString("100")).
		Add(decimal.RequireFromString("0.49").Mul(decimal.RequireFromString("200")))
	if !depth.Equal(want) {
		t.Errorf("depth = %s, want %s", depth, want)
	}
}

func TestTopBidDepthEmptyBook(t *testing.T) {
	t.Parallel()

	if _, _, ok := topBidDepth(&types.BookResponse{}, 5); ok {
		t.Error("expected ok=false for an empty book")
	}
}

func TestMatchedSizeFound(t *testing.T) {
	t.Parallel()

	orders := []types.OpenOrder{{ID: "o1", SizeMatched: "42.5"}}
	matched, open := matchedSize(orders, "o1")
	if !open {
		t.Fatal("expected open=true")
	}
	if !matched.Equal(decimal.RequireFromString("42.5")) {
		t.Errorf("matched = %s, want 42.5", matched)
	}
}

func TestMatchedSizeNotFound(t *testing.T) {
	t.Parallel()

	_, open := matchedSize(nil, "o1")
	if open {
		t.Error("expected open=false when order is absent")
	}
}
