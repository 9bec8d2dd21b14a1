package ordersubmit

import (
	"testing"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

func TestBuildIsAlwaysGTCLimit(t *testing.T) {
	t.Parallel()

	order := Build(Request{TokenID: "tok-1", Side: types.BUY, Price: 0.55, Size: 20})
	if order.OrderType != types.OrderTypeGTC {
		t.Errorf("OrderType = %v, want GTC", order.OrderType)
	}
	if order.TickSize != types.Tick001 {
		t.Errorf("TickSize defaulted to %v, want Tick001", order.TickSize)
	}
}

func TestBuildPreservesTickSize(t *testing.T) {
	t.Parallel()

	order := Build(Request{TokenID: "tok-1", Side: types.SELL, Price: 0.6, Size: 5, TickSize: types.Tick0001})
	if order.TickSize != types.Tick0001 {
		t.Errorf("TickSize = %v, want Tick0001", order.TickSize)
	}
}

func TestExtractTxHashFound(t *testing.T) {
	t.Parallel()

	hash, ok := venue.ExtractTxHash("submission failed but Transaction hash: 0xdeadbeef was recorded")
	if !ok {
		t.Fatal("expected tx hash to be found")
	}
	if hash != "0xdeadbeef" {
		t.Errorf("hash = %q, want 0xdeadbeef", hash)
	}
}

func TestExtractTxHashAbsent(t *testing.T) {
	t.Parallel()

	if _, ok := venue.ExtractTxHash("insufficient balance"); ok {
		t.Error("did not expect a tx hash to be found")
	}
}
