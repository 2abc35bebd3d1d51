package config

import "testing"

func validConfig() Config {
	return Config{
		DryRun:      true,
		DatabaseURL: "postgres://localhost/predictarb",
		Polymarket: PolymarketConfig{
			ChainID:     137,
			CLOBBaseURL: "https://clob.polymarket.com",
		},
		Sizing: SizingConfig{
			BasePosition: 10,
			MaxPosition:  20,
		},
		Arbitrage: ArbitrageConfig{MinProfitPct: 0.02},
		Matcher:   MatcherConfig{MinConfidence: 0.9},
		Risk: RiskConfig{
			MaxPositionPerMarket: 100,
			MaxGlobalExposure:    500,
			MaxMarketsActive:     5,
		},
	}
}

func TestValidateAcceptsDryRunWithoutPrivateKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected dry-run config to validate, got %v", err)
	}
}

func TestValidateRejectsLiveWithoutPrivateKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.DryRun = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for live config with no private key")
	}
}

func TestValidateRejectsMissingDatabaseURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database_url")
	}
}

func TestValidateRejectsMaxPositionBelowBase(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sizing.MaxPosition = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when max_position < base_position")
	}
}

func TestValidateDefaultsChainID(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Polymarket.ChainID = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Polymarket.ChainID != 137 {
		t.Errorf("chain id = %d, want 137 default", cfg.Polymarket.ChainID)
	}
}

func TestValidateRequiresFunderAddressForProxySignature(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Polymarket.SignatureType = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when proxy signature type has no funder address")
	}
}
