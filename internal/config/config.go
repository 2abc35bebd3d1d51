// Package config defines all configuration for the arbitrage bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLY_* environment variables, plus a
// handful of conventionally-named secrets (DATABASE_URL, WALLET_PRIVATE_KEY,
// POLYMARKET_WALLET_ADDRESS, KALSHI_ACCESS_KEY, KALSHI_PRIVATE_KEY_PEM)
// bound without the prefix, matching how deploy environments already name
// them.
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
	DatabaseURL string            `mapstructure:"database_url"`
	Polymarket  PolymarketConfig  `mapstructure:"polymarket"`
	Kalshi      KalshiConfig      `mapstructure:"kalshi"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Sizing      SizingConfig      `mapstructure:"sizing"`
	Arbitrage   ArbitrageConfig   `mapstructure:"arbitrage"`
	Matcher     MatcherConfig     `mapstructure:"matcher"`
	Exit        ExitConfig        `mapstructure:"exit"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Session     SessionConfig     `mapstructure:"session"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
}

// PolymarketConfig holds the Ethereum wallet and API endpoints used to
// trade on Polymarket's CLOB.
type PolymarketConfig struct {
	PrivateKeyHex string `mapstructure:"private_key"`
	WalletAddress string `mapstructure:"wallet_address"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int64  `mapstructure:"chain_id"`
	CLOBBaseURL   string `mapstructure:"clob_base_url"`
	GammaBaseURL  string `mapstructure:"gamma_base_url"`
	WSMarketURL   string `mapstructure:"ws_market_url"`
	WSUserURL     string `mapstructure:"ws_user_url"`
}

// KalshiConfig holds the RSA key pair used to sign Kalshi API requests.
type KalshiConfig struct {
	AccessKey     string `mapstructure:"access_key"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
	BaseURL       string `mapstructure:"base_url"`
	WSURL         string `mapstructure:"ws_url"`
}

// DiscoveryConfig controls how each venue's market list is polled and
// filtered before entering the matcher.
type DiscoveryConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MinLiquidity    float64       `mapstructure:"min_liquidity"`
	MinVolume24h    float64       `mapstructure:"min_volume_24h"`
	MinSpread       float64       `mapstructure:"min_spread"`
	MaxEndDateDays  int           `mapstructure:"max_end_date_days"`
	ExcludeSlugs    []string      `mapstructure:"exclude_slugs"`
	IncludeSlugs    []string      `mapstructure:"include_slugs"`
	IncludeKeywords []string      `mapstructure:"include_keywords"`
	ExcludeKeywords []string      `mapstructure:"exclude_keywords"`
}

// SizingConfig sets position sizing for the Trade Executor (C12).
type SizingConfig struct {
	BasePosition       float64 `mapstructure:"base_position"`
	MaxPosition        float64 `mapstructure:"max_position"`
	LiquidityThreshold float64 `mapstructure:"liquidity_threshold"`
	MaxTotalExposure   float64 `mapstructure:"max_total_exposure"`
}

// ArbitrageConfig tunes the Arbitrage Detector (C7), including the
// per-timeframe threshold tiering (short-term markets require tighter
// margins to trade since they resolve fastest and carry the most
// match-risk per unit time).
type ArbitrageConfig struct {
	MinProfitPct          float64       `mapstructure:"min_profit_pct"`
	MinLiquidity          float64       `mapstructure:"min_liquidity"`
	MinTimeToResolution   time.Duration `mapstructure:"min_time_to_resolution"`
	ShortTermMinProfitPct float64       `mapstructure:"short_term_min_profit_pct"`
	ShortTermMinLiquidity float64       `mapstructure:"short_term_min_liquidity"`
	ShortTermMinTimeToRes time.Duration `mapstructure:"short_term_min_time_to_resolution"`
	MaxPriceStaleness     time.Duration `mapstructure:"max_price_staleness"`
	MinMatchConfidence    float64       `mapstructure:"min_match_confidence"`
}

// MatcherConfig tunes the Entity Matcher (C6).
type MatcherConfig struct {
	MinConfidence      float64       `mapstructure:"min_confidence"`
	TimeTolerance15m   time.Duration `mapstructure:"time_tolerance_15m"`
	TimeTolerance1h    time.Duration `mapstructure:"time_tolerance_1h"`
	TimeToleranceDaily time.Duration `mapstructure:"time_tolerance_daily"`
	PriceTolerancePct  float64       `mapstructure:"price_tolerance_pct"`
}

// ExitConfig tunes the Exit Manager's trailing-stop/take-profit guard
// (C10).
type ExitConfig struct {
	TrailingStopPct float64 `mapstructure:"trailing_stop_pct"`
	HasTakeProfit   bool    `mapstructure:"has_take_profit"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`
}

// SettlementConfig tunes the Settlement Resolver's polling cadence (C11).
type SettlementConfig struct {
	BufferSecs            int           `mapstructure:"buffer_secs"`
	MaxResolutionRetries  int           `mapstructure:"max_resolution_retries"`
	ResolutionRateLimit   time.Duration `mapstructure:"resolution_rate_limit"`
}

// RiskConfig sets hard limits that trigger the risk manager's kill switch.
type RiskConfig struct {
	MaxPositionPerMarket float64       `mapstructure:"max_position_per_market"`
	MaxGlobalExposure    float64       `mapstructure:"max_global_exposure"`
	MaxMarketsActive     int           `mapstructure:"max_markets_active"`
	KillSwitchDropPct    float64       `mapstructure:"kill_switch_drop_pct"`
	KillSwitchWindowSec  int           `mapstructure:"kill_switch_window_sec"`
	MaxDailyLoss         float64       `mapstructure:"max_daily_loss"`
	CooldownAfterKill    time.Duration `mapstructure:"cooldown_after_kill"`
}

// SessionConfig sets the starting balance and the on-disk crash-recovery
// directory for the session's position cache (C13).
type SessionConfig struct {
	StartingBalance float64 `mapstructure:"starting_balance"`
	PersistDir      string  `mapstructure:"persist_dir"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the HTTP heartbeat server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Secrets use unprefixed env vars matching their conventional deploy
// names: DATABASE_URL, WALLET_PRIVATE_KEY, POLYMARKET_WALLET_ADDRESS,
// KALSHI_ACCESS_KEY, KALSHI_PRIVATE_KEY_PEM. Everything else binds through
// viper's automatic POLY_ prefixed env override.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	if key := os.Getenv("WALLET_PRIVATE_KEY"); key != "" {
		cfg.Polymarket.PrivateKeyHex = key
	}
	if addr := os.Getenv("POLYMARKET_WALLET_ADDRESS"); addr != "" {
		cfg.Polymarket.WalletAddress = addr
	}
	if key := os.Getenv("KALSHI_ACCESS_KEY"); key != "" {
		cfg.Kalshi.AccessKey = key
	}
	if pem := os.Getenv("KALSHI_PRIVATE_KEY_PEM"); pem != "" {
		cfg.Kalshi.PrivateKeyPEM = pem
	}
	if os.Getenv("POLY_DRY_RUN") == "true" || os.Getenv("POLY_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. A live
// (non-dry-run) config with no private key is rejected outright rather
// than failing later on the first signed request.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (set DATABASE_URL)")
	}
	if !c.DryRun && c.Polymarket.PrivateKeyHex == "" {
		return fmt.Errorf("polymarket.private_key is required for live trading (set WALLET_PRIVATE_KEY)")
	}
	if c.Polymarket.ChainID == 0 {
		c.Polymarket.ChainID = 137 // Polygon mainnet
	}
	switch c.Polymarket.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("polymarket.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Polymarket.SignatureType != 0 && c.Polymarket.FunderAddress == "" {
		return fmt.Errorf("polymarket.funder_address is required when polymarket.signature_type is 1 or 2")
	}
	if c.Polymarket.CLOBBaseURL == "" {
		return fmt.Errorf("polymarket.clob_base_url is required")
	}
	if c.Sizing.BasePosition <= 0 {
		return fmt.Errorf("sizing.base_position must be > 0")
	}
	if c.Sizing.MaxPosition < c.Sizing.BasePosition {
		return fmt.Errorf("sizing.max_position must be >= sizing.base_position")
	}
	if c.Arbitrage.MinProfitPct <= 0 {
		return fmt.Errorf("arbitrage.min_profit_pct must be > 0")
	}
	if c.Matcher.MinConfidence <= 0 || c.Matcher.MinConfidence > 1 {
		return fmt.Errorf("matcher.min_confidence must be in (0, 1]")
	}
	if c.Risk.MaxPositionPerMarket <= 0 {
		return fmt.Errorf("risk.max_position_per_market must be > 0")
	}
	if c.Risk.MaxGlobalExposure <= 0 {
		return fmt.Errorf("risk.max_global_exposure must be > 0")
	}
	if c.Risk.MaxMarketsActive <= 0 {
		return fmt.Errorf("risk.max_markets_active must be > 0")
	}
	return nil
}
