package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/maker"
	"polymarket-mm/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSlotKeyCombinesAccountAndToken(t *testing.T) {
	t.Parallel()

	got := slotKey("acct-1", "tok-1")
	if got != "acct-1|tok-1" {
		t.Errorf("slotKey = %q, want acct-1|tok-1", got)
	}
	if slotKey("acct", "1|tok") == slotKey("acct|1", "tok") {
		t.Error("slotKey should not collide across the account/token boundary in this test's inputs")
	}
}

func newDryRunSlot(t *testing.T, remark, tokenID string) (*slot, context.CancelFunc) {
	t.Helper()

	acc := config.AccountConfig{Remark: remark, PrivateKey: "0x1111111111111111111111111111111111111111111111111111111111111111"}
	auth, err := venue.NewAuth(acc)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	cfg := config.Config{DryRun: true}
	client := venue.NewClient(cfg, auth, testLogger())

	engine := maker.NewEngine(config.MarketMakerConfig{}, tokenID, "0.01", nil, client, nil, nil, testLogger())

	_, cancel := context.WithCancel(context.Background())
	return &slot{engine: engine, client: client, cancel: cancel}, cancel
}

func TestStopAllReturnsSummaryPerSlotAndClearsState(t *testing.T) {
	t.Parallel()

	c := New(config.Config{DryRun: true}, nil, testLogger())
	s, _ := newDryRunSlot(t, "acct-1", "tok-1")

	c.mu.Lock()
	c.slots["acct-1|tok-1"] = s
	c.mu.Unlock()

	summaries := c.StopAll(context.Background())
	if len(summaries) != 1 {
		t.Fatalf("len(summaries) = %d, want 1", len(summaries))
	}
	if summaries[0].Key != "acct-1|tok-1" {
		t.Errorf("Key = %q, want acct-1|tok-1", summaries[0].Key)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.slots) != 0 {
		t.Errorf("expected StopAll to clear the slots map, got %d remaining", len(c.slots))
	}
}

func TestStopAllOnEmptyCoordinatorReturnsEmptySlice(t *testing.T) {
	t.Parallel()

	c := New(config.Config{}, nil, testLogger())
	summaries := c.StopAll(context.Background())
	if len(summaries) != 0 {
		t.Errorf("len(summaries) = %d, want 0", len(summaries))
	}
}

func TestStartRejectsDuplicateSelection(t *testing.T) {
	t.Parallel()

	c := New(config.Config{}, nil, testLogger())
	s, _ := newDryRunSlot(t, "acct-1", "tok-1")
	c.mu.Lock()
	c.slots["acct-1|tok-1"] = s
	c.mu.Unlock()

	err := c.startOne(context.Background(), Selection{
		Account: config.AccountConfig{Remark: "acct-1"},
		TokenID: "tok-1",
	})
	if err == nil {
		t.Error("expected startOne to reject a selection already running")
	}
}
