package config

import "testing"

func baseValidConfig() Config {
	return Config{
		Accounts: []AccountConfig{{PrivateKey: "0xabc", ChainID: 137}},
		API:      APIConfig{CLOBBaseURL: "https://clob.example"},
		MarketMaker: MarketMakerConfig{
			MaxShares:      100,
			OrderAmountMin: 1,
			OrderAmountMax: 2,
			CheckInterval:  1,
		},
	}
}

func TestValidateAcceptsBaseConfig(t *testing.T) {
	t.Parallel()

	cfg := baseValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

// TestValidateRejectsNetWorthOnlyPositionLimit guards against a config whose
// only position limit is max_percent_of_net_worth, which positionGate never
// enforces (no wallet-balance read is wired to compute it).
func TestValidateRejectsNetWorthOnlyPositionLimit(t *testing.T) {
	t.Parallel()

	cfg := baseValidConfig()
	cfg.MarketMaker.MaxShares = 0
	cfg.MarketMaker.MaxPercentOfNetWorth = 5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject max_percent_of_net_worth as the sole position limit")
	}
}

func TestValidateAcceptsNetWorthPairedWithAnotherLimit(t *testing.T) {
	t.Parallel()

	cfg := baseValidConfig()
	cfg.MarketMaker.MaxPercentOfNetWorth = 5 // MaxShares from baseValidConfig still set

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil when max_percent_of_net_worth is paired with max_shares", err)
	}
}

func TestValidateRejectsLayeredEnabledWithoutPriceLevels(t *testing.T) {
	t.Parallel()

	cfg := baseValidConfig()
	cfg.MarketMaker.LayeredEnabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject layered_enabled without price_levels")
	}
}
