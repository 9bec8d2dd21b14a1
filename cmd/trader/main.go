// Trading agent core entrypoint — loads config, builds the fan-out
// selection list, starts the coordinator and the optional observe surface,
// and waits for a shutdown signal.
//
// Account/credential parsing, CLI flags, and any interactive menu for
// picking markets are explicitly non-core (SPEC_FULL.md §1); this binary is
// the thin runnable shell every repo in the corpus ships, grounded on the
// teacher's cmd/bot/main.go (config load → logger setup → construct →
// signal-wait → graceful stop), rewired to construct a
// coordinator.Coordinator instead of a single engine.Engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/coordinator"
	"polymarket-mm/internal/marketregistry"
	"polymarket-mm/internal/observe"
	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/venue"
	"polymarket-mm/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	selections, err := buildSelections(*cfg)
	if err != nil {
		logger.Error("failed to build market selections", "error", err)
		os.Exit(1)
	}
	if len(selections) == 0 {
		logger.Error("no market selections configured; nothing to quote")
		os.Exit(1)
	}

	readClient := venueClientForRegistry(*cfg, logger)
	obook := orderbook.NewRegistry(readClient, 10*time.Second)
	coord := coordinator.New(*cfg, obook, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := marketregistry.New(readClient, 0, logger)
	go registry.Run(ctx)

	var obsServer *observe.Server
	if cfg.Observe.Enabled {
		obsServer = observe.New(cfg.Observe, coord, logger)
		go func() {
			if err := obsServer.Start(); err != nil {
				logger.Error("observe server failed", "error", err)
			}
		}()
		logger.Info("observe surface started", "url", fmt.Sprintf("http://localhost:%d/state", cfg.Observe.Port))
	}

	if err := coord.Start(ctx, selections); err != nil {
		logger.Error("one or more engines failed to start", "error", err)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}
	logger.Info("trading agent started", "selections", len(selections), "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if obsServer != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := obsServer.Stop(stopCtx); err != nil {
			logger.Error("failed to stop observe server", "error", err)
		}
		stopCancel()
	}

	summaries := coord.StopAll(context.Background())
	for _, s := range summaries {
		logger.Info("engine shutdown summary",
			"slot", s.Key,
			"realized_pnl", s.RealizedPnL.String(),
			"matched_shares", s.MatchedShares.String(),
			"stop_loss_triggered", s.StopLossTriggered,
			"runtime", s.Runtime,
		)
	}
}

// buildSelections resolves each configured market-selection entry against
// the account list, expanding an empty Accounts list to every configured
// account (SPEC_FULL.md §4.8 "single market × many accounts" topology).
func buildSelections(cfg config.Config) ([]coordinator.Selection, error) {
	accountsByRemark := make(map[string]config.AccountConfig, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		accountsByRemark[acc.Remark] = acc
	}

	var selections []coordinator.Selection
	for _, m := range cfg.Markets {
		if m.TokenID == "" {
			return nil, fmt.Errorf("markets: token_id is required")
		}
		remarks := m.Accounts
		if len(remarks) == 0 {
			remarks = make([]string, 0, len(cfg.Accounts))
			for _, acc := range cfg.Accounts {
				remarks = append(remarks, acc.Remark)
			}
		}
		for _, remark := range remarks {
			acc, ok := accountsByRemark[remark]
			if !ok {
				return nil, fmt.Errorf("markets: unknown account remark %q", remark)
			}
			tickSize := types.Tick001
			if m.TickSize != "" {
				tickSize = types.TickSize(m.TickSize)
			}
			selections = append(selections, coordinator.Selection{
				Account:       acc,
				TokenID:       m.TokenID,
				ConditionID:   m.ConditionID,
				GammaMarketID: m.GammaMarketID,
				TickSize:      tickSize,
			})
		}
	}
	return selections, nil
}

// venueClientForRegistry constructs an unauthenticated-enough client for
// read-only market lookups; it shares no state with the per-account clients
// the coordinator builds for trading.
func venueClientForRegistry(cfg config.Config, logger *slog.Logger) *venue.Client {
	return venue.NewClient(cfg, &venue.Auth{}, logger.With("component", "registry_client"))
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
