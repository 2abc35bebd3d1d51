// Package types defines the venue-neutral data model shared by every
// internal package: markets, orderbook snapshots, positions, trades, and
// opportunities. Venue-specific wire formats live inside each
// internal/venue/<venue> package and are translated into these types at
// the venue boundary.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Venue identifies which prediction-market venue a record came from.
type Venue string

const (
	Polymarket Venue = "polymarket"
	Kalshi     Venue = "kalshi"
	Limitless  Venue = "limitless"
)

// Side is a binary contract outcome side.
type Side string

const (
	Yes Side = "yes"
	No  Side = "no"
)

// Direction is a price-move direction used by the signal detectors.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MarketKind classifies the shape of a binary contract's question.
type MarketKind string

const (
	KindUpDown    MarketKind = "up_down"
	KindAbove     MarketKind = "above"
	KindPriceRange MarketKind = "price_range"
	KindUnknown   MarketKind = "unknown"
)

// OrderStatus is the lifecycle state recorded for a placed order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPartial  OrderStatus = "partial"
	OrderFilled   OrderStatus = "filled"
	OrderNotPlaced OrderStatus = "not_placed"
)

// Market is the persistent record of a binary contract on a venue.
// Mirrors spec §3's Market entity and the `markets` table in §6.
type Market struct {
	ID           uuid.UUID
	Venue        Venue
	ConditionID  string // venue-local condition/ticker/slug id
	Kind         MarketKind
	Asset        string // underlying label, e.g. BTC, ETH
	Timeframe    string // "15m", "1h", "daily", ...
	YesTokenID   string
	NoTokenID    string
	Name         string
	EndTime      time.Time
	Active       bool
	Direction    Direction // normalized direction this market resolves on (up/above = Up)
	Strike       decimal.Decimal
	HasStrike    bool
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

// OrderbookSnapshot is one row per market: best bid/ask for both sides plus
// optional depth. Mirrors spec §3's Orderbook Snapshot and the
// `orderbook_snapshots` table in §6.
type OrderbookSnapshot struct {
	MarketID   uuid.UUID
	YesBestBid decimal.Decimal
	YesBestAsk decimal.Decimal
	NoBestBid  decimal.Decimal
	NoBestAsk  decimal.Decimal
	YesAsks    []PriceLevel // ascending by price
	YesBids    []PriceLevel // descending by price
	NoAsks     []PriceLevel
	NoBids     []PriceLevel
	CapturedAt time.Time
}

// PriceLevel is a single depth level: price and available size.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Position is the persisted position record. Mirrors the `positions` table.
type Position struct {
	ID            uuid.UUID
	MarketID      uuid.UUID
	YesShares     decimal.Decimal
	NoShares      decimal.Decimal
	YesFilled     decimal.Decimal
	NoFilled      decimal.Decimal
	TotalInvested decimal.Decimal
	Status        string // "open" | "closed"
	IsDryRun      bool
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// Trade is one leg of an executed order, recorded for audit. Mirrors the
// `trades` table.
type Trade struct {
	ID            uuid.UUID
	PositionID    uuid.UUID
	Side          Side
	Action        string // "buy" | "sell"
	Price         decimal.Decimal
	Shares        decimal.Decimal
	OrderID       string
	FilledShares  decimal.Decimal
	OrderStatus   OrderStatus
}

// Resolution is a cached settlement outcome. Mirrors `market_resolutions`.
type Resolution struct {
	MarketID    uuid.UUID
	WinningSide Side
	EndTime     time.Time
	ResolvedAt  time.Time
}

// Opportunity is a detected spread-arbitrage candidate on a single market
// (C7 intra-venue mode). Mirrors spec §3's Opportunity entity.
type Opportunity struct {
	MarketID    uuid.UUID
	ConditionID string
	YesTokenID  string
	NoTokenID   string
	YesPrice    decimal.Decimal
	NoPrice     decimal.Decimal
	Spread      decimal.Decimal // YesPrice + NoPrice
	ProfitPct   decimal.Decimal // 1 - spread - fees
	DetectedAt  time.Time
}

// CrossVenueOpportunity is a matched-pair arbitrage candidate (C7
// cross-venue mode): the cheaper side is bought on each leg's venue.
type CrossVenueOpportunity struct {
	MarketA      Market
	MarketB      Market
	YesLegVenue  Venue // which venue's YES ask is used
	NoLegVenue   Venue // which venue's NO ask is used
	YesAsk       decimal.Decimal
	NoAsk        decimal.Decimal
	TotalCost    decimal.Decimal
	FeesA        decimal.Decimal
	FeesB        decimal.Decimal
	NetProfitPct decimal.Decimal
	MaxContracts decimal.Decimal // 0 = unbounded / not depth-sized
	Investment   decimal.Decimal
	DetectedAt   time.Time
	MatchScore   float64
	Reason       string // human-readable summary for heartbeat/session logs
}

// PriceTick is a single oracle observation, C1's input unit.
type PriceTick struct {
	Symbol string
	Value  decimal.Decimal
	Ts     time.Time
}

// Kline is a single candle, closed or in-progress, C2's input unit.
type Kline struct {
	Symbol    string
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	IsClosed  bool
}

// TradeResult is the outcome of one executor cycle attempt: either a
// concrete execution, or an abort carrying a human-readable reason. Mirrors
// original_source's `LiveTradeResult` enum (Executed | Aborted{reason}) —
// an aborted cycle is a value, never a returned error (spec §7).
type TradeResult struct {
	Executed     bool
	Invested     decimal.Decimal
	YesFilled    decimal.Decimal
	NoFilled     decimal.Decimal
	AbortReason  string
}

// Aborted builds a TradeResult carrying an abort reason.
func Aborted(reason string) TradeResult { return TradeResult{Executed: false, AbortReason: reason} }

// ExecutedResult builds a TradeResult describing a successful execution.
func ExecutedResult(invested, yesFilled, noFilled decimal.Decimal) TradeResult {
	return TradeResult{Executed: true, Invested: invested, YesFilled: yesFilled, NoFilled: noFilled}
}
