package discovery

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

func TestNormalizeMarketExtractsAssetTimeframeDirection(t *testing.T) {
	t.Parallel()
	gm := GammaMarket{
		ConditionID:  "cond-1",
		Question:     "Will BTC be above $100,000 at 3PM ET (15 minute)?",
		Slug:         "btc-above-100000-15m",
		Active:       true,
		EndDate:      time.Now().Add(time.Hour).Format(time.RFC3339),
		ClobTokenIds: `["yes-token","no-token"]`,
	}

	m, ok := normalizeMarket(types.Polymarket, gm, time.Now())
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	if m.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", m.Asset)
	}
	if m.Timeframe != "15m" {
		t.Errorf("timeframe = %q, want 15m", m.Timeframe)
	}
	if m.Direction != types.Up {
		t.Errorf("direction = %q, want up", m.Direction)
	}
	if m.Kind != types.KindAbove {
		t.Errorf("kind = %q, want above", m.Kind)
	}
	if !m.HasStrike || !m.Strike.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("expected strike 100000 extracted, got %v present=%v", m.Strike, m.HasStrike)
	}
	if m.YesTokenID != "yes-token" || m.NoTokenID != "no-token" {
		t.Errorf("unexpected token ids: %+v", m)
	}
}

func TestNormalizeMarketRejectsMissingTokenIDs(t *testing.T) {
	t.Parallel()
	gm := GammaMarket{ConditionID: "cond-2", ClobTokenIds: ""}
	if _, ok := normalizeMarket(types.Polymarket, gm, time.Now()); ok {
		t.Error("expected normalization to fail without token ids")
	}
}

func TestNormalizeMarketRejectsDuplicateTokenIDs(t *testing.T) {
	t.Parallel()
	gm := GammaMarket{ConditionID: "cond-3", ClobTokenIds: `["same","same"]`}
	if _, ok := normalizeMarket(types.Polymarket, gm, time.Now()); ok {
		t.Error("expected normalization to fail with duplicate token ids")
	}
}

func TestExtractDirectionUpDownHasNoExplicitDirection(t *testing.T) {
	t.Parallel()
	dir, kind := extractDirection("Bitcoin Up or Down on August 1?")
	if dir != "" {
		t.Errorf("direction = %q, want empty for up-or-down market", dir)
	}
	if kind != types.KindUpDown {
		t.Errorf("kind = %q, want up_down", kind)
	}
}

func TestClientFilterMarketsAppliesIncludeAndExcludeLists(t *testing.T) {
	t.Parallel()
	c := &Client{cfg: Config{
		ExcludeSlugs:   []string{"excluded-one"},
		MinLiquidity:   0,
		MinVolume24h:   0,
		MinSpread:      0,
		MaxEndDateDays: 30,
	}}

	future := time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	markets := []GammaMarket{
		{Slug: "excluded-one", Active: true, AcceptingOrders: true, EnableOrderBook: true, EndDate: future, ClobTokenIds: `["a","b"]`},
		{Slug: "kept-market", Active: true, AcceptingOrders: true, EnableOrderBook: true, EndDate: future, ClobTokenIds: `["a","b"]`},
		{Slug: "inactive", Active: false, AcceptingOrders: true, EnableOrderBook: true, EndDate: future, ClobTokenIds: `["a","b"]`},
	}

	filtered := c.filterMarkets(markets)
	if len(filtered) != 1 || filtered[0].Slug != "kept-market" {
		t.Fatalf("got %+v", filtered)
	}
}
