// Package buffer implements the Price Buffer (C1) and Kline Buffer (C2): the
// two in-memory reference-price structures every signal strategy reads from.
// Both are owned by exactly one ingest task (spec §5's ownership rule) and
// are safe for concurrent reads from other tasks via their own locking —
// the lock exists for the benefit of reporting/heartbeat readers, not to
// allow concurrent writers.
package buffer

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

const defaultHistoryCap = 512

type openKey struct {
	symbol string
	minute int64
}

// PriceBuffer maintains the latest tick and a bounded history per symbol,
// plus minute-keyed captured "epoch open" prices (spec §4.1).
type PriceBuffer struct {
	mu         sync.RWMutex
	historyCap int
	latest     map[string]types.PriceTick
	history    map[string][]types.PriceTick
	opens      map[openKey]decimal.Decimal
}

// NewPriceBuffer constructs an empty buffer with the default history cap.
func NewPriceBuffer() *PriceBuffer {
	return &PriceBuffer{
		historyCap: defaultHistoryCap,
		latest:     make(map[string]types.PriceTick),
		history:    make(map[string][]types.PriceTick),
		opens:      make(map[openKey]decimal.Decimal),
	}
}

// Update records a new tick for symbol, appending to the bounded FIFO
// history and replacing the latest value. O(1) amortized.
func (b *PriceBuffer) Update(symbol string, value decimal.Decimal, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tick := types.PriceTick{Symbol: symbol, Value: value, Ts: ts}
	b.latest[symbol] = tick

	h := append(b.history[symbol], tick)
	if len(h) > b.historyCap {
		h = h[len(h)-b.historyCap:]
	}
	b.history[symbol] = h
}

// GetLatest returns the most recent tick value for symbol, if any.
func (b *PriceBuffer) GetLatest(symbol string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.latest[symbol]
	return t.Value, ok
}

func minuteOf(ts time.Time) int64 { return ts.Unix() / 60 }

// GetOrCaptureOpen returns the already-captured open for (symbol,
// floor(startTime/60s)) if one exists; otherwise, if a latest price is
// known, it atomically captures that price as the open and returns it.
// Returns false only when neither an open nor a latest price exists.
// Idempotent for a fixed (symbol, minute) key (spec §4.1, §8 invariant).
func (b *PriceBuffer) GetOrCaptureOpen(symbol string, startTime time.Time) (decimal.Decimal, bool) {
	key := openKey{symbol: symbol, minute: minuteOf(startTime)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if v, ok := b.opens[key]; ok {
		return v, true
	}
	t, ok := b.latest[symbol]
	if !ok {
		return decimal.Zero, false
	}
	b.opens[key] = t.Value
	return t.Value, true
}

// GetOpen is the read-only variant of GetOrCaptureOpen: it never captures.
func (b *PriceBuffer) GetOpen(symbol string, startTime time.Time) (decimal.Decimal, bool) {
	key := openKey{symbol: symbol, minute: minuteOf(startTime)}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.opens[key]
	return v, ok
}

// CleanupOldOpens removes captured opens for minutes strictly before
// floor(cutoff/60s), bounding the map's growth over a long-running process.
func (b *PriceBuffer) CleanupOldOpens(cutoff time.Time) {
	cutMinute := minuteOf(cutoff)
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.opens {
		if k.minute < cutMinute {
			delete(b.opens, k)
		}
	}
}
