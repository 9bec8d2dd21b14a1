// Package marketregistry implements the Market Registry (SPEC_FULL.md
// §4.11): a background-refreshed, read-mostly cache of active markets
// sorted by end time, plus lookups for categorical parent markets whose
// tradeable CLOB tokens live on child markets rather than the parent itself.
//
// Adapted from the teacher's market.Scanner background-refresh worker
// (poll-on-a-ticker, replace-the-cached-slice, non-blocking publish), with
// its Gamma-API opportunity ranking dropped: this registry is a lookup
// table for the coordinator, not a market-selection strategy.
package marketregistry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

const defaultRefreshInterval = 60 * time.Second

// Registry caches the active-market list and serves cloned snapshots to
// concurrent readers (SPEC_FULL.md §5 "Market Registry guards its cache with
// a read/write mutex; the refresh worker writes, everyone else reads copies").
type Registry struct {
	client          *venue.Client
	refreshInterval time.Duration
	logger          *slog.Logger

	mu      sync.RWMutex
	markets []types.MarketInfo
}

// New constructs a Registry. Call Run to start the background refresh
// worker; until the first refresh completes, reads see an empty list.
func New(client *venue.Client, refreshInterval time.Duration, logger *slog.Logger) *Registry {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	return &Registry{
		client:          client,
		refreshInterval: refreshInterval,
		logger:          logger.With("component", "market_registry"),
	}
}

// Run performs an immediate refresh, then refetches on refreshInterval until
// ctx is cancelled (SPEC_FULL.md §4.11 "initialize(client, auto_refresh=true,
// refresh_interval=60s)").
func (r *Registry) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Registry) refresh(ctx context.Context) {
	markets, err := r.client.GetMarkets(ctx)
	if err != nil {
		r.logger.Error("market refresh failed", "error", err)
		return
	}

	sortByEndDate(markets)

	r.mu.Lock()
	r.markets = markets
	r.mu.Unlock()

	r.logger.Info("market registry refreshed", "count", len(markets))
}

// sortByEndDate orders markets by resolution time ascending, so the soonest
// to resolve appear first (SPEC_FULL.md §4.11).
func sortByEndDate(markets []types.MarketInfo) {
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].EndDate.Before(markets[j].EndDate)
	})
}

// All returns a cloned snapshot of the cached market list, sorted by end
// time ascending.
func (r *Registry) All() []types.MarketInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.MarketInfo, len(r.markets))
	copy(out, r.markets)
	return out
}

// GetByID performs an O(n) scan over the cached list for one market
// (SPEC_FULL.md §4.11: "acceptable at this scale").
func (r *Registry) GetByID(marketID string) (types.MarketInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.markets {
		if m.ConditionID == marketID {
			return m, true
		}
	}
	return types.MarketInfo{}, false
}

// ChildMarket is one tradeable leaf of a categorical parent market.
type ChildMarket struct {
	Title      string
	YesTokenID string
	NoTokenID  string
}

// GetCategoricalChildren fetches every child market of a categorical parent,
// grounded on the original implementation's get_all_child_markets_info: a
// categorical market's own condition id has no tradeable tokens, only its
// children do.
func (r *Registry) GetCategoricalChildren(ctx context.Context, parentID string) ([]ChildMarket, error) {
	cat, err := r.client.GetCategoricalMarket(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("fetch categorical market %s: %w", parentID, err)
	}

	children := make([]ChildMarket, 0, len(cat.Children))
	for _, child := range cat.Children {
		children = append(children, ChildMarket{
			Title:      child.Question,
			YesTokenID: child.YesTokenID,
			NoTokenID:  child.NoTokenID,
		})
	}
	return children, nil
}
