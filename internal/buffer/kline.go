package buffer

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

const defaultKlineCap = 256

// KlineBuffer maintains closed candles per symbol plus the latest
// real-time price derived from the order book, serving momentum
// calculations and point-in-time open lookups (spec §4.2).
type KlineBuffer struct {
	mu        sync.RWMutex
	cap       int
	closed    map[string][]types.Kline // FIFO, oldest first
	realtime  map[string]decimal.Decimal
}

// NewKlineBuffer constructs an empty buffer with the default capacity.
func NewKlineBuffer() *KlineBuffer {
	return &KlineBuffer{
		cap:      defaultKlineCap,
		closed:   make(map[string][]types.Kline),
		realtime: make(map[string]decimal.Decimal),
	}
}

// Add records a kline. Only closed klines are retained; an unclosed kline
// is never stored and never changes the retained list. A closed kline whose
// open_time equals the tail's replaces the tail instead of being appended,
// so an open_time is never stored twice; capacity is trimmed FIFO.
func (k *KlineBuffer) Add(kl types.Kline) {
	k.mu.Lock()
	defer k.mu.Unlock()

	list := k.closed[kl.Symbol]

	if len(list) > 0 && list[len(list)-1].OpenTime.Equal(kl.OpenTime) {
		if kl.IsClosed {
			list[len(list)-1] = kl
		}
		// an unclosed duplicate open_time is ignored for the retained list —
		// it never becomes part of momentum history.
		k.closed[kl.Symbol] = list
		return
	}

	if !kl.IsClosed {
		return
	}

	list = append(list, kl)
	if len(list) > k.cap {
		list = list[len(list)-k.cap:]
	}
	k.closed[kl.Symbol] = list
}

// UpdatePrice stores the latest real-time (order-book-derived) price for a
// symbol, used by CalculateMomentum in preference to the newest closed
// kline's close when present.
func (k *KlineBuffer) UpdatePrice(symbol string, price decimal.Decimal) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.realtime[symbol] = price
}

// CalculateMomentum returns the percentage change between the open of the
// oldest kline in the lookback window and the latest known price (real-time
// if present, else the newest closed kline's close), and the direction of
// that change. Requires at least `lookback` closed klines; fails closed
// (returns ok=false) if the window's oldest open is zero, to avoid a
// division by zero or a nonsensical giant percentage (spec §4.2, §8).
func (k *KlineBuffer) CalculateMomentum(symbol string, lookback int) (changePct float64, dir types.Direction, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	list := k.closed[symbol]
	if lookback <= 0 || len(list) < lookback {
		return 0, "", false
	}

	oldest := list[len(list)-lookback]
	if oldest.Open.IsZero() {
		return 0, "", false
	}

	var latest decimal.Decimal
	if rt, have := k.realtime[symbol]; have {
		latest = rt
	} else {
		latest = list[len(list)-1].Close
	}

	delta := latest.Sub(oldest.Open)
	pct, _ := delta.Div(oldest.Open).Mul(decimal.NewFromInt(100)).Float64()

	direction := types.Up
	if delta.IsNegative() {
		direction = types.Down
	}
	return pct, direction, true
}

// GetOpenAtTime returns the open of the closed kline whose [open_time,
// close_time] interval contains target. It never approximates or
// extrapolates: absence is reported as ok=false (spec §4.2 — trading
// correctness depends on this never guessing).
func (k *KlineBuffer) GetOpenAtTime(symbol string, target time.Time) (decimal.Decimal, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, kl := range k.closed[symbol] {
		if !target.Before(kl.OpenTime) && !target.After(kl.CloseTime) {
			return kl.Open, true
		}
	}
	return decimal.Zero, false
}
