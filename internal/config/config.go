// Package config defines all configuration for the trading agent.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// scalar settings overridable via TRADER_* environment variables; per-account
// credentials come from the YAML file only (see Load).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool              `mapstructure:"dry_run"`
	Accounts    []AccountConfig   `mapstructure:"accounts"`
	API         APIConfig         `mapstructure:"api"`
	MarketMaker MarketMakerConfig `mapstructure:"market_maker"`
	Proxy       ProxyConfig       `mapstructure:"proxy"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Observe     ObserveConfig     `mapstructure:"observe"`
	Markets     []MarketSelectionConfig `mapstructure:"markets"`

	// MinAccountBalance is the minimum quote-token balance an account must
	// hold before the Fan-Out Coordinator will spawn an engine for it
	// (SPEC_FULL.md §12's account balance pre-filtering). Zero disables the
	// probe.
	MinAccountBalance float64 `mapstructure:"min_account_balance"`
}

// MarketSelectionConfig names one outcome token to quote and which accounts
// should quote it, resolving SPEC_FULL.md §4.8's "(account, market, side)"
// selection tuple from the operator-authored config rather than a CLI menu
// (menu/selection UX is explicitly out of core scope).
type MarketSelectionConfig struct {
	TokenID       string   `mapstructure:"token_id"`
	ConditionID   string   `mapstructure:"condition_id"`
	GammaMarketID int      `mapstructure:"gamma_market_id"`
	TickSize      string   `mapstructure:"tick_size"`
	Accounts      []string `mapstructure:"accounts"` // account remarks; empty means every configured account
}

// AccountConfig is one funded trading identity the Fan-Out Coordinator can spawn
// engines against. EOAAddress/PrivateKey/ApiKey follow the venue's signing facade
// shape. If ProxyAddress is left empty, venue.NewAuth uses the EOA address as
// the funder; it is not looked up from the venue's profile endpoint or cached
// on this path (venue.ResolveProxyAddress and venue.ProxyCache are not called).
type AccountConfig struct {
	Remark        string `mapstructure:"remark"`
	EOAAddress    string `mapstructure:"eoa_address"`
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	ProxyAddress  string `mapstructure:"proxy_address"`
	ApiKey        string `mapstructure:"api_key"`
	Secret        string `mapstructure:"secret"`
	Passphrase    string `mapstructure:"passphrase"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds venue endpoints.
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	WSURL        string `mapstructure:"ws_url"`
}

// ProxyConfig controls the proxy-address-by-EOA cache.
type ProxyConfig struct {
	CacheDir string `mapstructure:"cache_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObserveConfig controls the read-only run-time state snapshot HTTP surface.
type ObserveConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MarketMakerConfig transcribes SPEC_FULL.md §3's "Market-maker config (per
// engine)" enumerated options. One instance is shared by every (account, token)
// engine spawned by the coordinator; there is no per-market override.
type MarketMakerConfig struct {
	// Position limits (at least one must be set).
	MaxShares            float64 `mapstructure:"max_shares"`
	MaxAmountQuote        float64 `mapstructure:"max_amount_quote"`
	MaxPercentOfNetWorth  float64 `mapstructure:"max_percent_of_net_worth"`

	// Price boundaries.
	MaxBuyPrice    float64 `mapstructure:"max_buy_price"`
	MinSellPrice   float64 `mapstructure:"min_sell_price"`
	MaxDeviation   float64 `mapstructure:"max_deviation"`

	// Depth gate.
	MinOrderbookDepthQuote float64 `mapstructure:"min_orderbook_depth_quote"`

	// Depth-drop gate.
	DropThresholdPercent float64       `mapstructure:"drop_threshold_percent"`
	DropWindowTicks      int           `mapstructure:"drop_window_ticks"`
	OnDropAction         string        `mapstructure:"on_drop_action"` // HOLD | SELL_ALL | SELL_PARTIAL
	DropSellPartialPct   float64       `mapstructure:"drop_sell_partial_pct"`
	AutoCancelOnDepthDrop bool         `mapstructure:"auto_cancel_on_depth_drop"`

	// Sizing.
	OrderAmountMin float64 `mapstructure:"order_amount_min"`
	OrderAmountMax float64 `mapstructure:"order_amount_max"`

	// Spread.
	MinSpread float64 `mapstructure:"min_spread"`
	PriceStep float64 `mapstructure:"price_step"`

	// Stop-loss (at most one should be set).
	StopLossPercent float64 `mapstructure:"stop_loss_percent"`
	StopLossAmount  float64 `mapstructure:"stop_loss_amount"`
	StopLossPrice   float64 `mapstructure:"stop_loss_price"`

	CheckInterval time.Duration `mapstructure:"check_interval"`

	// Strategy selector.
	GridEnabled    bool `mapstructure:"grid_enabled"`
	LayeredEnabled bool `mapstructure:"layered_enabled"`

	// Layered params.
	PriceLevels      []int   `mapstructure:"price_levels"`
	Distribution     string  `mapstructure:"distribution"` // UNIFORM | PYRAMID | INVERSE_PYRAMID | CUSTOM
	CustomRatios     []float64 `mapstructure:"custom_ratios"`

	// Grid params.
	ProfitSpread    float64 `mapstructure:"profit_spread"`
	MinProfitSpread float64 `mapstructure:"min_profit_spread"`
	GridLevels      int     `mapstructure:"grid_levels"`
	LevelSpread     float64 `mapstructure:"level_spread"`
	AmountPerLevel  float64 `mapstructure:"amount_per_level"`
	AutoRebalance   bool    `mapstructure:"auto_rebalance"`

	// Cost-based selling.
	CostSellEnabled     bool    `mapstructure:"cost_sell_enabled"`
	SellProfitSpread    float64 `mapstructure:"sell_profit_spread"`
	MinCostProfitSpread float64 `mapstructure:"min_cost_profit_spread"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive per-account fields are not overridden from the environment since
// there can be many accounts; operators supply them in the YAML file (or a
// secrets-manager-rendered copy of it) rather than via a single env var.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if os.Getenv("TRADER_DRY_RUN") == "true" || os.Getenv("TRADER_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	if cfg.MarketMaker.LayeredEnabled && cfg.MarketMaker.Distribution == "" {
		cfg.MarketMaker.Distribution = "UNIFORM"
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for i, acc := range c.Accounts {
		if acc.PrivateKey == "" {
			return fmt.Errorf("accounts[%d].private_key is required", i)
		}
		if acc.ChainID == 0 {
			return fmt.Errorf("accounts[%d].chain_id is required", i)
		}
		switch acc.SignatureType {
		case 0, 1, 2:
		default:
			return fmt.Errorf("accounts[%d].signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)", i)
		}
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	mm := c.MarketMaker
	if mm.MaxShares <= 0 && mm.MaxAmountQuote <= 0 && mm.MaxPercentOfNetWorth <= 0 {
		return fmt.Errorf("market_maker: at least one position limit (max_shares, max_amount_quote, max_percent_of_net_worth) must be set")
	}
	// max_percent_of_net_worth has no gating implementation: computing net worth
	// would need a wallet-balance read the venue client has no endpoint for, so
	// it cannot stand as an engine's only position limit (positionGate would
	// silently never trip).
	if mm.MaxPercentOfNetWorth > 0 && mm.MaxShares <= 0 && mm.MaxAmountQuote <= 0 {
		return fmt.Errorf("market_maker: max_percent_of_net_worth is not enforced by positionGate; set max_shares or max_amount_quote as well")
	}
	if mm.OrderAmountMin <= 0 || mm.OrderAmountMax < mm.OrderAmountMin {
		return fmt.Errorf("market_maker: order_amount_min/order_amount_max must be positive and ordered")
	}
	if mm.GridEnabled && mm.LayeredEnabled {
		return fmt.Errorf("market_maker: grid_enabled and layered_enabled are mutually exclusive")
	}
	if mm.GridEnabled {
		if mm.GridLevels <= 0 {
			return fmt.Errorf("market_maker: grid_levels must be > 0 when grid_enabled")
		}
		if mm.ProfitSpread < mm.MinProfitSpread {
			return fmt.Errorf("market_maker: profit_spread must be >= min_profit_spread")
		}
	}
	if mm.LayeredEnabled && len(mm.PriceLevels) == 0 {
		return fmt.Errorf("market_maker: price_levels must be non-empty when layered_enabled")
	}
	if mm.CheckInterval <= 0 {
		return fmt.Errorf("market_maker.check_interval must be > 0")
	}
	return nil
}
