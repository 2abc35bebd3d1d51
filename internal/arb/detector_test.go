package arb

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/match"
	"predictarb/pkg/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSpreadOpportunityScenario(t *testing.T) {
	t.Parallel()
	// spec §8 scenario 1: yes_ask=0.48, no_ask=0.49, min_profit=0.01, fees=0
	// => spread=0.97, profit=0.03 => opportunity.
	opp, ok := SpreadOpportunity(types.Market{}, dec("0.48"), dec("0.49"), decimal.Zero, dec("0.01"))
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if !opp.Spread.Equal(dec("0.97")) {
		t.Errorf("spread = %v, want 0.97", opp.Spread)
	}
	if !opp.ProfitPct.Equal(dec("0.03")) {
		t.Errorf("profit = %v, want 0.03", opp.ProfitPct)
	}
}

func TestSpreadOpportunityEmptySideSkipped(t *testing.T) {
	t.Parallel()
	_, ok := SpreadOpportunity(types.Market{}, decimal.Zero, dec("0.49"), decimal.Zero, dec("0.01"))
	if ok {
		t.Error("expected no opportunity when a side is zero")
	}
}

func TestCrossVenueArbitrageScenario(t *testing.T) {
	t.Parallel()
	// spec §8 scenario 4.
	now := time.Now()
	m := match.Match{
		A:     types.Market{Timeframe: "1h", EndTime: now.Add(2 * time.Hour)},
		B:     types.Market{Timeframe: "1h", EndTime: now.Add(2 * time.Hour)},
		Score: 0.95,
	}
	a := LegQuote{Venue: types.Polymarket, YesAsk: dec("0.50"), NoAsk: dec("0.52"), Liquidity: dec("1000"), UpdatedAt: now, FeeRate: decimal.Zero}
	b := LegQuote{Venue: types.Kalshi, YesAsk: dec("0.55"), NoAsk: dec("0.44"), Liquidity: dec("1000"), UpdatedAt: now, FeeRate: dec("0.01")}

	cfg := DefaultConfig()
	cfg.Standard.MinProfitPct = dec("0.01")

	opp, ok := CrossVenueOpportunity(m, a, b, cfg, now)
	if !ok {
		t.Fatal("expected an opportunity at 1% min profit")
	}
	if opp.YesLegVenue != types.Polymarket {
		t.Errorf("expected YES leg on polymarket (cheaper ask), got %v", opp.YesLegVenue)
	}
	if opp.NoLegVenue != types.Kalshi {
		t.Errorf("expected NO leg on kalshi (cheaper ask), got %v", opp.NoLegVenue)
	}
	if !opp.TotalCost.Equal(dec("0.94")) {
		t.Errorf("total cost = %v, want 0.94", opp.TotalCost)
	}
	// net = (0.06 - 0.0044) / 0.94 ≈ 0.0591
	want := dec("0.0591")
	if opp.NetProfitPct.Sub(want).Abs().GreaterThan(dec("0.001")) {
		t.Errorf("net profit = %v, want ~0.0591", opp.NetProfitPct)
	}

	cfg.Standard.MinProfitPct = dec("0.06")
	_, ok = CrossVenueOpportunity(m, a, b, cfg, now)
	if ok {
		t.Error("expected no opportunity at 6% min profit threshold")
	}
}

func TestCrossVenueArbitrageStalePriceRejected(t *testing.T) {
	t.Parallel()
	now := time.Now()
	m := match.Match{A: types.Market{Timeframe: "1h", EndTime: now.Add(2 * time.Hour)}, Score: 0.95}
	a := LegQuote{Venue: types.Polymarket, YesAsk: dec("0.50"), NoAsk: dec("0.52"), Liquidity: dec("1000"), UpdatedAt: now.Add(-time.Minute), FeeRate: decimal.Zero}
	b := LegQuote{Venue: types.Kalshi, YesAsk: dec("0.55"), NoAsk: dec("0.44"), Liquidity: dec("1000"), UpdatedAt: now, FeeRate: dec("0.01")}

	cfg := DefaultConfig()
	_, ok := CrossVenueOpportunity(m, a, b, cfg, now)
	if ok {
		t.Error("expected rejection due to stale leg A price")
	}
}

func TestDepthSizeLadderWalk(t *testing.T) {
	t.Parallel()
	// Shaped after spec §8 scenario 6's sub-range breakdown
	// (1-10 @ 0.94, 11-15 @ 0.96, 16-20 @ 0.98) with a NO depth whose
	// second level is sized to exhaust exactly at contract 20.
	yesDepth := []types.PriceLevel{
		{Price: dec("0.50"), Size: dec("10")},
		{Price: dec("0.52"), Size: dec("20")},
	}
	noDepth := []types.PriceLevel{
		{Price: dec("0.44"), Size: dec("15")},
		{Price: dec("0.46"), Size: dec("5")},
	}

	maxContracts, investment := DepthSize(yesDepth, noDepth, dec("0.02"), decimal.Zero)
	if !maxContracts.Equal(dec("20")) {
		t.Errorf("max contracts = %v, want 20", maxContracts)
	}
	wantInvestment := dec("10").Mul(dec("0.94")).Add(dec("5").Mul(dec("0.96"))).Add(dec("5").Mul(dec("0.98")))
	if !investment.Equal(wantInvestment) {
		t.Errorf("investment = %v, want %v", investment, wantInvestment)
	}
}

func TestDepthSizeStopsWhenCostExceedsBudget(t *testing.T) {
	t.Parallel()
	yesDepth := []types.PriceLevel{{Price: dec("0.60"), Size: dec("100")}}
	noDepth := []types.PriceLevel{{Price: dec("0.60"), Size: dec("100")}}

	// cost 1.20 > budget (1 - 0.02) => no contracts at all.
	maxContracts, _ := DepthSize(yesDepth, noDepth, dec("0.02"), decimal.Zero)
	if !maxContracts.IsZero() {
		t.Errorf("expected zero contracts when cost exceeds budget, got %v", maxContracts)
	}
}

func TestDepthSizeEmptySide(t *testing.T) {
	t.Parallel()
	maxContracts, investment := DepthSize(nil, []types.PriceLevel{{Price: dec("0.5"), Size: dec("10")}}, dec("0.02"), decimal.Zero)
	if !maxContracts.IsZero() || !investment.IsZero() {
		t.Error("expected no opportunity when a side is empty")
	}
}
