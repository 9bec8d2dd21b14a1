// Package coordinator implements the Account Fan-Out Coordinator
// (SPEC_FULL.md §4.8): it spawns one Market-Maker Engine per (account,
// market, outcome side) selection, wires each engine to its own signed
// venue client and a shared orderbook Replica, and owns bulk start/stop for
// both supported run topologies — single market × many accounts, and batch
// many markets × disjoint account subsets.
//
// Generalized from the teacher's Engine: the same marketSlot-map-plus-RWMutex
// shape, keyed here by (account, token) instead of conditionID alone, and
// startup fan-out uses golang.org/x/sync/errgroup so a single bad account's
// construction failure doesn't block the other engines from starting
// (SPEC_FULL.md §7: a fatal per-account error stops only that engine).
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/filltracker"
	"polymarket-mm/internal/maker"
	"polymarket-mm/internal/mergesplit"
	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/ordersubmit"
	"polymarket-mm/internal/stoploss"
	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

const defaultStopTimeout = 5 * time.Second

// Selection names one engine to spawn: a funded account quoting one outcome
// token of one market.
type Selection struct {
	Account       config.AccountConfig
	TokenID       string
	ConditionID   string // CTF condition ID, for cancel-market-orders scoping
	GammaMarketID int    // numeric market id the WS feed subscribes by
	TickSize      types.TickSize
}

// slotKey joins account remark and token id with '|', escaping '\' and '|'
// inside either part so that distinct pairs never share a key.
func slotKey(accountRemark, tokenID string) string {
	esc := strings.NewReplacer(`\`, `\\`, `|`, `\|`)
	return esc.Replace(accountRemark) + "|" + esc.Replace(tokenID)
}

// slot is everything the coordinator owns for one running engine.
type slot struct {
	engine      *maker.Engine
	client      *venue.Client
	mergeSplit  *mergesplit.Service
	fillTracker *filltracker.Tracker
	feed        *venue.WSFeed
	cancel      context.CancelFunc
}

// Coordinator owns the lifecycle of every engine across every account.
type Coordinator struct {
	cfg     config.Config
	obook   *orderbook.Registry
	logger  *slog.Logger

	mu    sync.RWMutex
	slots map[string]*slot
	wg    sync.WaitGroup
}

// New constructs a Coordinator. obook is shared across every engine so
// replicas for the same token are fetched once, not once per account.
func New(cfg config.Config, obook *orderbook.Registry, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		obook:  obook,
		logger: logger.With("component", "coordinator"),
		slots:  make(map[string]*slot),
	}
}

// Start spawns one engine per selection (SPEC_FULL.md §4.8 "start(selection)").
// Construction errors for one account do not prevent other accounts' engines
// from starting; all per-selection errors are joined and returned together.
func (c *Coordinator) Start(ctx context.Context, selections []Selection) error {
	// Engines outlive a cancelled start-call. A plain Group is used because
	// errgroup.WithContext cancels its context as soon as Wait returns.
	var g errgroup.Group
	gctx := context.WithoutCancel(ctx)
	var mu sync.Mutex
	var errs []error

	for _, sel := range selections {
		sel := sel
		g.Go(func() error {
			if err := c.startOne(gctx, sel); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s/%s: %w", sel.Account.Remark, sel.TokenID, err))
				mu.Unlock()
			}
			return nil // never fail the group: one bad account must not stop the rest
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("coordinator start: %d of %d selections failed: %w", len(errs), len(selections), errors.Join(errs...))
	}
	return nil
}

func (c *Coordinator) startOne(ctx context.Context, sel Selection) error {
	key := slotKey(sel.Account.Remark, sel.TokenID)

	c.mu.Lock()
	if _, exists := c.slots[key]; exists {
		c.mu.Unlock()
		return fmt.Errorf("engine already running for %s", key)
	}
	c.mu.Unlock()

	auth, err := venue.NewAuth(sel.Account)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	client := venue.NewClient(c.cfg, auth, c.logger)

	if !auth.HasL2Credentials() {
		creds, err := client.DeriveAPIKey(ctx)
		if err != nil {
			return fmt.Errorf("derive api key: %w", err)
		}
		auth.SetCredentials(*creds)
	}

	if c.cfg.MinAccountBalance > 0 {
		balance, err := client.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("balance probe: %w", err)
		}
		minBalance := decimal.NewFromFloat(c.cfg.MinAccountBalance)
		if balance.LessThan(minBalance) {
			c.logger.Warn("account excluded: insufficient balance",
				"account", sel.Account.Remark, "token", sel.TokenID,
				"balance", balance, "min_required", minBalance)
			return fmt.Errorf("account %s balance %s below required %s", sel.Account.Remark, balance, minBalance)
		}
	}

	replica, err := c.obook.AddToken(ctx, sel.TokenID, nil)
	if err != nil {
		return fmt.Errorf("orderbook replica: %w", err)
	}

	submitter := ordersubmit.New(client, c.logger)
	stopLossExec := stoploss.New(client, submitter, 0, sel.TickSize, c.logger) // 0: use SPEC_FULL.md §4.7's default min_depth_amount
	mergeSplitSvc := mergesplit.New(client, c.logger)
	fillTracker := filltracker.New(client, c.logger)

	engine := maker.NewEngine(c.cfg.MarketMaker, sel.TokenID, sel.TickSize, replica, client, submitter, stopLossExec, c.logger)
	engine.SetFillTracker(fillTracker)

	feed := venue.NewWSFeed(c.cfg.API.WSURL, auth, c.logger)
	feed.Subscribe(venue.ChannelLastTrade, sel.GammaMarketID)
	feed.OnMessage(func(msg venue.WSMessage) {
		if msg.Channel != venue.ChannelLastTrade {
			return
		}
		var trade venue.LastTradePayload
		if err := json.Unmarshal(msg.Raw, &trade); err != nil {
			c.logger.Warn("last-trade decode failed", "error", err)
			return
		}
		fillTracker.OnTradeMessage(trade)
	})

	engineCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.slots[key] = &slot{
		engine:      engine,
		client:      client,
		mergeSplit:  mergeSplitSvc,
		fillTracker: fillTracker,
		feed:        feed,
		cancel:      cancel,
	}
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		engine.Run(engineCtx)
	}()
	go func() {
		defer c.wg.Done()
		if err := feed.Run(engineCtx); err != nil && engineCtx.Err() == nil {
			c.logger.Warn("ws feed stopped", "account", sel.Account.Remark, "token", sel.TokenID, "error", err)
		}
	}()

	c.logger.Info("engine started", "account", sel.Account.Remark, "token", sel.TokenID, "market", sel.ConditionID)
	return nil
}

// Snapshots returns a read-only state snapshot for every currently running
// engine, keyed by its slot key. internal/observe polls this to serve
// SPEC_FULL.md §1's external run-time state surface.
func (c *Coordinator) Snapshots() map[string]maker.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]maker.Snapshot, len(c.slots))
	for key, s := range c.slots {
		out[key] = s.engine.State().Snapshot()
	}
	return out
}

// StopAll flips running=false on every engine, cancels all outstanding
// orders, awaits worker shutdown with a bounded timeout, and returns a
// summary for every engine that was running (SPEC_FULL.md §4.8 "stop_all").
func (c *Coordinator) StopAll(ctx context.Context) []Summary {
	c.mu.Lock()
	slots := make(map[string]*slot, len(c.slots))
	for k, v := range c.slots {
		slots[k] = v
	}
	c.slots = make(map[string]*slot)
	c.mu.Unlock()

	summaries := make([]Summary, 0, len(slots))
	for key, s := range slots {
		s.engine.State().Stop()
		s.cancel()

		if _, err := s.client.CancelAll(ctx); err != nil {
			c.logger.Error("cancel-all failed during shutdown", "slot", key, "error", err)
		}
		summaries = append(summaries, summarize(key, s.engine.State().Snapshot()))
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(defaultStopTimeout):
		c.logger.Warn("stop_all: worker join timed out", "timeout", defaultStopTimeout)
	}

	return summaries
}
