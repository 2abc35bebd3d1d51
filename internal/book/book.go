// Package book implements the Local Order Book (C3): one instance per
// subscribed market, holding separate YES/NO bid/ask level maps under a
// strictly increasing per-market sequence number. Generalized from the
// teacher's internal/market/book.go (RWMutex snapshot-replace pattern) to
// add the sequence-number discipline and single-sided (Kalshi) derivation
// spec §4.3 requires, neither of which the teacher's snapshot-only book
// implements.
package book

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/core"
	"predictarb/pkg/types"
)

// side packs outcome (yes/no) and direction (bid/ask) into one map key.
type side struct {
	outcome types.Side
	isBid   bool
}

// Book is a local mirror of one market's order book across both outcome
// tokens. Single-sided venues (Kalshi publishes only bids, for both YES and
// NO) set singleSided so BestAsk derives a missing ask from the opposite
// outcome's best bid (spec §4.3: best-ask-YES = 1 - best-bid-NO).
type Book struct {
	mu          sync.RWMutex
	marketID    string
	singleSided bool
	levels      map[side]map[string]decimal.Decimal // price.String() -> size
	seq         int64
	updatedAt   time.Time
}

// New constructs an empty book for marketID.
func New(marketID string, singleSided bool) *Book {
	return &Book{
		marketID:    marketID,
		singleSided: singleSided,
		levels:      make(map[side]map[string]decimal.Decimal),
	}
}

// ApplySnapshot clears all sides and loads the given non-zero levels,
// setting the book's sequence number to seq. A snapshot always wins
// regardless of the prior sequence number — it is the resync point after a
// reconnect or a dropped delta (spec §4.3, §4.4).
func (b *Book) ApplySnapshot(yesBids, yesAsks, noBids, noAsks []types.PriceLevel, seq int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.levels = make(map[side]map[string]decimal.Decimal)
	b.load(types.Yes, true, yesBids)
	b.load(types.Yes, false, yesAsks)
	b.load(types.No, true, noBids)
	b.load(types.No, false, noAsks)
	b.seq = seq
	b.updatedAt = time.Now()
}

func (b *Book) load(outcome types.Side, isBid bool, levels []types.PriceLevel) {
	m := make(map[string]decimal.Decimal, len(levels))
	for _, lvl := range levels {
		if lvl.Size.IsPositive() {
			m[lvl.Price.String()] = lvl.Size
		}
	}
	b.levels[side{outcome, isBid}] = m
}

// ApplyDelta adjusts a single level by delta (which may be negative),
// removing the entry if the resulting size is <= 0. The delta is dropped
// without effect if seq is not strictly greater than the book's current
// sequence number (spec §4.3's strict monotonicity guard, §5's ordering
// guarantee, §8's round-trip invariant).
func (b *Book) ApplyDelta(outcome types.Side, isBid bool, price, delta decimal.Decimal, seq int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq <= b.seq {
		return fmt.Errorf("%w: book seq=%d delta seq=%d", core.ErrSeqRegression, b.seq, seq)
	}

	key := side{outcome, isBid}
	m, ok := b.levels[key]
	if !ok {
		m = make(map[string]decimal.Decimal)
		b.levels[key] = m
	}

	newSize := m[price.String()].Add(delta)
	if newSize.IsPositive() {
		m[price.String()] = newSize
	} else {
		delete(m, price.String())
	}

	b.seq = seq
	b.updatedAt = time.Now()
	return nil
}

// Seq returns the book's current sequence number.
func (b *Book) Seq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// BestBid returns the highest price with a non-zero size on outcome's bid
// side, or false if that side is empty.
func (b *Book) BestBid(outcome types.Side) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestDirect(outcome, true)
}

// BestAsk returns the lowest price with a non-zero size on outcome's ask
// side. If the book is single-sided and that outcome's ask side has no
// direct levels, it derives the ask from the opposite outcome's best bid:
// best_ask_YES = 1 - best_bid_NO (and symmetrically for NO), per spec §4.3.
func (b *Book) BestAsk(outcome types.Side) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if price, ok := b.bestDirect(outcome, false); ok {
		return price, true
	}
	if !b.singleSided {
		return decimal.Zero, false
	}

	opposite := types.No
	if outcome == types.No {
		opposite = types.Yes
	}
	oppBid, ok := b.bestDirect(opposite, true)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(1).Sub(oppBid), true
}

func (b *Book) bestDirect(outcome types.Side, isBid bool) (decimal.Decimal, bool) {
	m := b.levels[side{outcome, isBid}]
	if len(m) == 0 {
		return decimal.Zero, false
	}

	var best decimal.Decimal
	found := false
	for priceStr := range m {
		p, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		if !found {
			best, found = p, true
			continue
		}
		if isBid && p.GreaterThan(best) {
			best = p
		}
		if !isBid && p.LessThan(best) {
			best = p
		}
	}
	return best, found
}

// Depth returns a snapshot of one side's levels, sorted best-first, for use
// by the depth-bounded sizing walk (C7).
func (b *Book) Depth(outcome types.Side, isBid bool) []types.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m := b.levels[side{outcome, isBid}]
	out := make([]types.PriceLevel, 0, len(m))
	for priceStr, size := range m {
		p, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: p, Size: size})
	}
	sortLevels(out, isBid)
	return out
}

func sortLevels(levels []types.PriceLevel, descending bool) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0; j-- {
			swap := levels[j].Price.LessThan(levels[j-1].Price)
			if descending {
				swap = levels[j].Price.GreaterThan(levels[j-1].Price)
			}
			if !swap {
				break
			}
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

// IsStale reports whether the book has not been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updatedAt.IsZero() {
		return true
	}
	return time.Since(b.updatedAt) > maxAge
}

// UpdatedAt returns the timestamp of the book's last applied frame.
func (b *Book) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}
