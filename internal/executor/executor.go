// Package executor implements the trade executor (C12), the orchestrator
// that ties together market discovery, arbitrage detection, order placement,
// and settlement into one cycle-at-a-time driver. Grounded on spec §4.10,
// the hardest and most detailed subsystem, plus
// original_source/src/common/src/executor.rs for the authentication-cache
// and dry-run-portfolio shapes, and the teacher's internal/engine/engine.go
// for the constructor-wiring and Start/Stop lifecycle this package reuses.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/arb"
	"predictarb/internal/match"
	"predictarb/internal/orders"
	"predictarb/internal/repo"
	"predictarb/internal/session"
	"predictarb/pkg/types"
)

// Timing and sizing constants named directly by spec §4.10.
const (
	OrderTimeoutSecs          = 30
	CancelRetryDelayMs        = 500
	CancelRetries             = 3
	MinOrderSizeShares        = 5
	UnfilledWaitSecs          = 10
	maxWarmedTokens           = 10_000
	incrementalWarmupPerCycle = 20
)

// TickInfo is a token's warmed-up tick size and fee rate (spec §4.10.2).
type TickInfo struct {
	TickSize   decimal.Decimal
	FeeRateBps int
}

// SDKWarmer fetches per-token trading parameters from the venue SDK. The SDK
// itself is an out-of-scope collaborator (spec §1); this is its only needed
// surface.
type SDKWarmer interface {
	WarmToken(ctx context.Context, tokenID string) (TickInfo, error)
}

// Authenticator manages the venue's authenticated trading handle. The
// concrete implementation (internal/venue/polymarket) owns EIP-712 signer
// derivation and L2 key derivation; the executor only needs to know whether
// it must re-authenticate.
type Authenticator interface {
	Authenticate(ctx context.Context) error
	IsAuthError(err error) bool
}

// OrderPlacer is the venue trading surface the placement state machine
// drives. It composes orders.VenueClient (cancel/query) with the additional
// operations spread-arbitrage placement needs.
type OrderPlacer interface {
	orders.VenueClient
	PlaceLimitOrder(ctx context.Context, tokenID string, side types.Side, price, shares decimal.Decimal) (orderID string, err error)
	PlaceMarketSellFOK(ctx context.Context, tokenID string, shares decimal.Decimal) (orderID string, err error)
	PlaceGTCSell(ctx context.Context, tokenID string, price, shares decimal.Decimal) (orderID string, err error)
	BestAsk(ctx context.Context, tokenID string) (decimal.Decimal, error)
	PositionBalance(ctx context.Context, tokenID string) (decimal.Decimal, error)
}

// AuthCache wraps an Authenticator with the first-call/reuse/invalidate-on-
// failure discipline of spec §4.10.1, tracking a hit/miss ratio.
type AuthCache struct {
	mu       sync.Mutex
	auth     Authenticator
	warm     bool
	hits     int64
	misses   int64
	log      *slog.Logger
}

// NewAuthCache wraps auth for cached use.
func NewAuthCache(auth Authenticator, log *slog.Logger) *AuthCache {
	return &AuthCache{auth: auth, log: log.With("component", "auth_cache")}
}

// Ensure authenticates on first use and reuses the cached handle thereafter.
func (c *AuthCache) Ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.warm {
		c.hits++
		return nil
	}
	c.misses++
	if err := c.auth.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	c.warm = true
	c.log.Info("authenticated", "hits", c.hits, "misses", c.misses)
	return nil
}

// NoteResult clears the cache when err looks like an auth-class failure, so
// the next Ensure call re-authenticates.
func (c *AuthCache) NoteResult(err error) {
	if err == nil || !c.auth.IsAuthError(err) {
		return
	}
	c.mu.Lock()
	c.warm = false
	c.mu.Unlock()
	c.log.Warn("auth cache invalidated", "error", err)
}

// HitRatio reports the cache's hit/(hit+miss) ratio for heartbeat logging.
func (c *AuthCache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// SDKCache memoizes per-token tick size/fee rate warmup (spec §4.10.2). It
// records every warmed token id, even failures, so invalid tokens are never
// retried every cycle, and self-clears once it holds more than
// maxWarmedTokens entries.
type SDKCache struct {
	mu     sync.Mutex
	warmer SDKWarmer
	warmed map[string]TickInfo
	log    *slog.Logger
}

// NewSDKCache builds a warmup cache around warmer.
func NewSDKCache(warmer SDKWarmer, log *slog.Logger) *SDKCache {
	return &SDKCache{warmer: warmer, warmed: make(map[string]TickInfo), log: log.With("component", "sdk_cache")}
}

// WarmAll warms every token in tokenIDs in two parallel batches, as spec
// §4.10.2 requires for startup warmup.
func (c *SDKCache) WarmAll(ctx context.Context, tokenIDs []string) {
	mid := len(tokenIDs) / 2
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.warmBatch(ctx, tokenIDs[:mid]) }()
	go func() { defer wg.Done(); c.warmBatch(ctx, tokenIDs[mid:]) }()
	wg.Wait()
}

// WarmIncremental warms up to incrementalWarmupPerCycle newly-observed
// tokens not already recorded, per spec §4.10.2's per-cycle topup.
func (c *SDKCache) WarmIncremental(ctx context.Context, tokenIDs []string) {
	c.mu.Lock()
	var fresh []string
	for _, id := range tokenIDs {
		if _, ok := c.warmed[id]; !ok {
			fresh = append(fresh, id)
		}
		if len(fresh) >= incrementalWarmupPerCycle {
			break
		}
	}
	c.mu.Unlock()
	c.warmBatch(ctx, fresh)
}

func (c *SDKCache) warmBatch(ctx context.Context, tokenIDs []string) {
	for _, id := range tokenIDs {
		info, err := c.warmer.WarmToken(ctx, id)
		c.mu.Lock()
		if err != nil {
			c.log.Warn("token warmup failed", "token", id, "error", err)
			c.warmed[id] = TickInfo{} // record even failures, never retry
		} else {
			c.warmed[id] = info
		}
		if len(c.warmed) > maxWarmedTokens {
			c.warmed = make(map[string]TickInfo)
			c.log.Info("sdk cache cleared", "reason", "exceeded max entries")
		}
		c.mu.Unlock()
	}
}

// Lookup returns the warmed tick info for tokenID, if any.
func (c *SDKCache) Lookup(tokenID string) (TickInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.warmed[tokenID]
	return info, ok
}

// SizingConfig parameterizes spec §4.10.4's sizing formula.
type SizingConfig struct {
	BasePosition      decimal.Decimal
	MaxPosition       decimal.Decimal
	LiquidityThreshold decimal.Decimal
	MaxTotalExposure  decimal.Decimal
}

// Size implements spec §4.10.4: available = balance - Σ open cost;
// target = liquidity >= threshold ? max : base; size = min(available, target).
// Rejects (ok=false) if size < base or committing it exceeds max exposure.
func Size(cfg SizingConfig, available, liquidity, currentExposure decimal.Decimal) (decimal.Decimal, bool) {
	target := cfg.BasePosition
	if liquidity.GreaterThanOrEqual(cfg.LiquidityThreshold) {
		target = cfg.MaxPosition
	}

	size := decimal.Min(available, target)
	if size.LessThan(cfg.BasePosition) {
		return decimal.Zero, false
	}
	if currentExposure.Add(size).GreaterThan(cfg.MaxTotalExposure) {
		return decimal.Zero, false
	}
	return size, true
}

// Config bundles the executor's tunables (spec §4.10 throughout).
type Config struct {
	Sizing              SizingConfig
	MaxOrderbookAge     time.Duration
	PriceMismatchThreshold decimal.Decimal
	SequentialPollInterval time.Duration
	SequentialPollTimeout  time.Duration
	MinProfit           decimal.Decimal
	Fees                decimal.Decimal
	DryRun              bool
}

// DefaultConfig returns conservative defaults consistent with spec §8's
// worked examples (base=10, max=20, liquidity_threshold=50).
func DefaultConfig() Config {
	return Config{
		Sizing: SizingConfig{
			BasePosition:       decimal.NewFromInt(10),
			MaxPosition:        decimal.NewFromInt(20),
			LiquidityThreshold: decimal.NewFromInt(50),
			MaxTotalExposure:   decimal.NewFromInt(500),
		},
		MaxOrderbookAge:        5 * time.Second,
		PriceMismatchThreshold: decimal.NewFromFloat(0.02),
		SequentialPollInterval: 500 * time.Millisecond,
		SequentialPollTimeout:  10 * time.Second,
		MinProfit:              decimal.NewFromFloat(0.01),
		Fees:                   decimal.Zero,
	}
}

// Executor is the C12 orchestrator: one RunCycle call performs the 5-step
// cycle of spec §4.10.3.
type Executor struct {
	cfg      Config
	repo     *repo.Repo
	orderMgr *orders.Manager
	placer   OrderPlacer
	auth     *AuthCache
	sdk      *SDKCache
	settler  *Settler
	sess     *session.State
	matchCfg match.Config
	arbCfg   arb.Config
	log      *slog.Logger
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(cfg Config, r *repo.Repo, orderMgr *orders.Manager, placer OrderPlacer, auth *AuthCache, sdk *SDKCache, settler *Settler, sess *session.State, log *slog.Logger) *Executor {
	return &Executor{
		cfg: cfg, repo: r, orderMgr: orderMgr, placer: placer,
		auth: auth, sdk: sdk, settler: settler, sess: sess,
		matchCfg: match.DefaultConfig(), arbCfg: arb.DefaultConfig(),
		log: log.With("component", "executor"),
	}
}

// CryptoAssets are the asset labels the executor prioritizes for the fresh
// crypto market query (spec §6's priority hybrid scan). Exported so other
// collaborators checking the same fresh-orderbook markets (the exit
// monitor) scan the identical asset set.
var CryptoAssets = []string{"BTC", "ETH", "SOL", "XRP"}

var cryptoAssets = CryptoAssets

// RunCycle performs one full trading cycle (spec §4.10.3):
//  1. query fresh-orderbook markets
//  2. incremental SDK warmup for newly-seen tokens
//  3. run the arbitrage detector, pick the single best opportunity
//  4. attempt execution if there's no open position in that market
//  5. settle expired positions
func (e *Executor) RunCycle(ctx context.Context) types.TradeResult {
	markets, err := e.repo.GetMarketsWithFreshOrderbooks(ctx, e.cfg.MaxOrderbookAge, cryptoAssets, 24*time.Hour)
	if err != nil {
		e.log.Error("fresh market query failed", "error", err)
		return types.Aborted("market query failed: " + err.Error())
	}
	defer e.settleExpiredDryRun(ctx)

	e.sdk.WarmIncremental(ctx, tokenIDsOf(markets))

	best, ok := e.bestOpportunity(markets)
	if !ok {
		return types.Aborted("no opportunity")
	}

	if e.sess.HasOpenPosition(best.MarketID) {
		return types.Aborted("position already open in market")
	}

	result := e.attemptExecution(ctx, best)

	return result
}

func tokenIDsOf(markets []repo.MarketWithPrices) []string {
	ids := make([]string, 0, len(markets)*2)
	for _, m := range markets {
		ids = append(ids, m.Market.YesTokenID, m.Market.NoTokenID)
	}
	return ids
}

// bestOpportunity runs the intra-venue spread detector over every fresh
// market and returns the single highest-profit opportunity.
func (e *Executor) bestOpportunity(markets []repo.MarketWithPrices) (types.Opportunity, bool) {
	var best types.Opportunity
	found := false

	for _, m := range markets {
		opp, ok := arb.SpreadOpportunity(m.Market, m.YesBestAsk, m.NoBestAsk, e.cfg.Fees, e.cfg.MinProfit)
		if !ok {
			continue
		}
		if !found || opp.ProfitPct.GreaterThan(best.ProfitPct) {
			best = opp
			found = true
		}
	}

	return best, found
}

// settleExpiredDryRun settles the session's expired open positions. RunCycle
// calls it on every cycle whose market query succeeds, in dry-run and live
// mode alike.
func (e *Executor) settleExpiredDryRun(ctx context.Context) {
	open := e.sess.OpenPositions()
	live := make([]LivePosition, 0, len(open))
	for _, p := range open {
		live = append(live, LivePosition{
			MarketID: p.MarketID, MarketName: p.MarketName,
			Shares: p.YesShares.Add(p.NoShares), Cost: p.TotalInvested, EndTime: p.EndTime,
		})
	}

	results, _ := e.settler.SettleExpired(ctx, live, time.Now())
	for _, r := range results {
		var payout decimal.Decimal
		if r.Won {
			payout = r.Payout
		}
		e.sess.ClosePosition(r.MarketID, payout, r.PnL)
	}
}
