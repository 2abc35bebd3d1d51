// Package venuetag implements spec §9's "small tagged variant" for venue
// dispatch: a lookup from types.Venue to its fee rate, price-staleness
// bound, and chain label. Downstream code branches on the tag rather than
// on venue-specific types.
package venuetag

import (
	"time"

	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

// Info is the per-venue metadata every venue-neutral component needs.
type Info struct {
	Venue          types.Venue
	FeeRateBps     int
	MaxPriceStale  time.Duration
	ChainLabel     string // "polygon", "n/a" (off-chain), "base"
}

var registry = map[types.Venue]Info{
	types.Polymarket: {
		Venue:         types.Polymarket,
		FeeRateBps:    0, // Polymarket CLOB charges no maker/taker fee on binary markets
		MaxPriceStale: 30 * time.Second,
		ChainLabel:    "polygon",
	},
	types.Kalshi: {
		Venue:         types.Kalshi,
		FeeRateBps:    100, // Kalshi's standard trading fee, ~1% of notional on most contracts
		MaxPriceStale: 30 * time.Second,
		ChainLabel:    "n/a",
	},
	types.Limitless: {
		Venue:         types.Limitless,
		FeeRateBps:    0,
		MaxPriceStale: 30 * time.Second,
		ChainLabel:    "base",
	},
}

// Lookup returns the registered Info for v, or the zero Info and false if v
// is not a known venue.
func Lookup(v types.Venue) (Info, bool) {
	info, ok := registry[v]
	return info, ok
}

// FeeRate returns v's fee as a decimal fraction (e.g. 0.01 for 100bps),
// or zero if v is unknown.
func (i Info) FeeRate() decimal.Decimal {
	return decimal.NewFromInt(int64(i.FeeRateBps)).Div(decimal.NewFromInt(10000))
}
