package observe

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/maker"
)

type stubProvider struct {
	snapshots map[string]maker.Snapshot
}

func (p stubProvider) Snapshots() map[string]maker.Snapshot { return p.snapshots }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleStateServesEngineSnapshots(t *testing.T) {
	t.Parallel()

	provider := stubProvider{snapshots: map[string]maker.Snapshot{
		"acct-1|tok-1": {RealizedPnL: decimal.RequireFromString("5.5"), Running: true},
	}}
	s := New(config.ObserveConfig{Enabled: true, Port: 0}, provider, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	s.handleState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	snap, ok := got.Engines["acct-1|tok-1"]
	if !ok {
		t.Fatal("expected engine snapshot for acct-1|tok-1")
	}
	if !snap.RealizedPnL.Equal(decimal.RequireFromString("5.5")) {
		t.Errorf("RealizedPnL = %s, want 5.5", snap.RealizedPnL)
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	t.Parallel()

	s := New(config.ObserveConfig{}, stubProvider{}, testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}
