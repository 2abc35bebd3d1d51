// Package arb implements the Arbitrage Detector (C7): intra-venue spread
// arbitrage, cross-venue arbitrage over matched pairs, and depth-bounded
// contract sizing. Grounded on
// original_source/src/cross-platform-arb/src/detector.rs (DetectorConfig
// defaults, passes_filters ordering, timeframe threshold dispatch) and
// spec §4.7 / §8 scenario 6 for the ladder-walk sizing function.
package arb

import (
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/match"
	"predictarb/pkg/types"
)

// Thresholds holds the per-timeframe filter values. The original
// implementation ties a lower bar to the 15m/intraday timeframe (tighter
// holding period, thinner edges are still worth taking) and a stricter bar
// to everything else (spec §4.7's "per-timeframe thresholds, stricter for
// longer horizons").
type Thresholds struct {
	MinProfitPct         decimal.Decimal
	MinLiquidity         decimal.Decimal
	MinTimeToResolution  time.Duration
}

// Config holds the detector's tunables, defaulted to the values confirmed
// from the original implementation.
type Config struct {
	Standard          Thresholds
	ShortTerm         Thresholds // 15m / intraday
	MaxPriceStaleness time.Duration
	MinMatchConfidence float64
}

func DefaultConfig() Config {
	return Config{
		Standard: Thresholds{
			MinProfitPct:        decimal.NewFromFloat(0.035),
			MinLiquidity:        decimal.NewFromInt(500),
			MinTimeToResolution: time.Hour,
		},
		ShortTerm: Thresholds{
			MinProfitPct:        decimal.NewFromFloat(0.01),
			MinLiquidity:        decimal.NewFromInt(100),
			MinTimeToResolution: 30 * time.Second,
		},
		MaxPriceStaleness:  30 * time.Second,
		MinMatchConfidence: 0.90,
	}
}

func thresholdsFor(cfg Config, timeframe string) Thresholds {
	switch timeframe {
	case "5m", "15m", "intraday":
		return cfg.ShortTerm
	default:
		return cfg.Standard
	}
}

// SpreadOpportunity evaluates a single market for intra-venue spread
// arbitrage: profit = 1 - (yesAsk + noAsk) - fees. Returns ok=false if the
// opportunity does not pass (zero side, insufficient profit).
func SpreadOpportunity(m types.Market, yesAsk, noAsk, fees, minProfit decimal.Decimal) (types.Opportunity, bool) {
	if yesAsk.IsZero() || noAsk.IsZero() {
		return types.Opportunity{}, false
	}
	spread := yesAsk.Add(noAsk)
	profit := decimal.NewFromInt(1).Sub(spread).Sub(fees)
	if profit.LessThan(minProfit) {
		return types.Opportunity{}, false
	}
	return types.Opportunity{
		MarketID:    m.ID,
		ConditionID: m.ConditionID,
		YesTokenID:  m.YesTokenID,
		NoTokenID:   m.NoTokenID,
		YesPrice:    yesAsk,
		NoPrice:     noAsk,
		Spread:      spread,
		ProfitPct:   profit,
		DetectedAt:  time.Now(),
	}, true
}

// LegQuote is one venue's current best ask on one outcome, with the
// freshness and liquidity data the filters need.
type LegQuote struct {
	Venue       types.Venue
	YesAsk      decimal.Decimal
	NoAsk       decimal.Decimal
	Liquidity   decimal.Decimal
	UpdatedAt   time.Time
	FeeRate     decimal.Decimal
}

// CrossVenueOpportunity evaluates a matched pair for cross-venue
// arbitrage: the cheaper venue is chosen independently per side, fees are
// applied only to the leg whose venue charges one, and the result passes
// filters in the same order as the original implementation — confidence,
// valid prices, freshness (both legs), liquidity, time-to-resolution.
func CrossVenueOpportunity(m match.Match, a, b LegQuote, cfg Config, now time.Time) (types.CrossVenueOpportunity, bool) {
	if m.Score < cfg.MinMatchConfidence {
		return types.CrossVenueOpportunity{}, false
	}
	if a.YesAsk.IsZero() || a.NoAsk.IsZero() || b.YesAsk.IsZero() || b.NoAsk.IsZero() {
		return types.CrossVenueOpportunity{}, false
	}
	if now.Sub(a.UpdatedAt) > cfg.MaxPriceStaleness || now.Sub(b.UpdatedAt) > cfg.MaxPriceStaleness {
		return types.CrossVenueOpportunity{}, false
	}

	yesVenue, yesAsk := a.Venue, a.YesAsk
	yesFee := a.FeeRate
	if b.YesAsk.LessThan(a.YesAsk) {
		yesVenue, yesAsk, yesFee = b.Venue, b.YesAsk, b.FeeRate
	}
	noVenue, noAsk := a.Venue, a.NoAsk
	noFee := a.FeeRate
	if b.NoAsk.LessThan(a.NoAsk) {
		noVenue, noAsk, noFee = b.Venue, b.NoAsk, b.FeeRate
	}

	totalCost := yesAsk.Add(noAsk)
	if totalCost.IsZero() {
		return types.CrossVenueOpportunity{}, false
	}
	fees := yesAsk.Mul(yesFee).Add(noAsk.Mul(noFee))
	netProfitPct := decimal.NewFromInt(1).Sub(totalCost).Sub(fees).Div(totalCost)

	th := thresholdsFor(cfg, m.A.Timeframe)
	minLiquidity := decimal.Min(a.Liquidity, b.Liquidity)
	if minLiquidity.LessThan(th.MinLiquidity) {
		return types.CrossVenueOpportunity{}, false
	}
	timeToResolution := m.A.EndTime.Sub(now)
	if timeToResolution < th.MinTimeToResolution {
		return types.CrossVenueOpportunity{}, false
	}
	if netProfitPct.LessThan(th.MinProfitPct) {
		return types.CrossVenueOpportunity{}, false
	}

	return types.CrossVenueOpportunity{
		MarketA:      m.A,
		MarketB:      m.B,
		YesLegVenue:  yesVenue,
		NoLegVenue:   noVenue,
		YesAsk:       yesAsk,
		NoAsk:        noAsk,
		TotalCost:    totalCost,
		FeesA:        a.FeeRate,
		FeesB:        b.FeeRate,
		NetProfitPct: netProfitPct,
		DetectedAt:   now,
		MatchScore:   m.Score,
		Reason:       m.Reason,
	}, true
}

// DepthSize walks both outcome ladders from best ask, accumulating
// contracts while the marginal effective cost stays within budget
// (1 - minProfitPct - fees). yesDepth and noDepth must be sorted ascending
// by price (best ask first). Returns the maximum contracts fillable and the
// resulting total investment (spec §4.7, §8 scenario 6).
func DepthSize(yesDepth, noDepth []types.PriceLevel, minProfitPct, fees decimal.Decimal) (maxContracts, investment decimal.Decimal) {
	budget := decimal.NewFromInt(1).Sub(minProfitPct).Sub(fees)

	yi, ni := 0, 0
	yRemaining, nRemaining := decimal.Zero, decimal.Zero
	if len(yesDepth) > 0 {
		yRemaining = yesDepth[0].Size
	}
	if len(noDepth) > 0 {
		nRemaining = noDepth[0].Size
	}

	maxContracts = decimal.Zero
	investment = decimal.Zero

	for yi < len(yesDepth) && ni < len(noDepth) {
		cost := yesDepth[yi].Price.Add(noDepth[ni].Price)
		if cost.GreaterThan(budget) {
			break
		}

		step := decimal.Min(yRemaining, nRemaining)
		if step.LessThanOrEqual(decimal.Zero) {
			break
		}

		maxContracts = maxContracts.Add(step)
		investment = investment.Add(step.Mul(cost))

		yRemaining = yRemaining.Sub(step)
		nRemaining = nRemaining.Sub(step)

		if yRemaining.LessThanOrEqual(decimal.Zero) {
			yi++
			if yi < len(yesDepth) {
				yRemaining = yesDepth[yi].Size
			}
		}
		if nRemaining.LessThanOrEqual(decimal.Zero) {
			ni++
			if ni < len(noDepth) {
				nRemaining = noDepth[ni].Size
			}
		}
	}

	return maxContracts, investment
}
