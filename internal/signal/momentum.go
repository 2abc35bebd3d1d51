// Package signal implements the Momentum and Flip Detectors (C8): per-symbol
// strategy state with cooldowns and debounced confirmation, operating on
// the sliding price/kline buffers (C1/C2). Grounded directly on spec §4.8,
// which is fully specified including the exact debounce algorithm and
// scenario 3's tick-by-tick trace; the per-market state-table shape follows
// sdibella-kalshi-btc15m/internal/strategy/strategy.go's MarketState map.
package signal

import (
	"sync"
	"time"

	"predictarb/internal/buffer"
	"predictarb/pkg/types"
)

// MomentumSignal is emitted when a market's momentum crosses the
// configured threshold.
type MomentumSignal struct {
	ConditionID string
	Symbol      string
	Direction   types.Direction
	Magnitude   float64
}

// MomentumDetector emits at most one signal per conditionID per cooldown
// period, based on the kline buffer's momentum calculation (spec §4.8).
type MomentumDetector struct {
	mu          sync.Mutex
	klines      *buffer.KlineBuffer
	lookback    int
	minMomentum float64
	cooldown    time.Duration
	lastEmit    map[string]time.Time // conditionID -> last emit time
}

// NewMomentumDetector constructs a detector reading from klines.
func NewMomentumDetector(klines *buffer.KlineBuffer, lookback int, minMomentum float64, cooldown time.Duration) *MomentumDetector {
	return &MomentumDetector{
		klines:      klines,
		lookback:    lookback,
		minMomentum: minMomentum,
		cooldown:    cooldown,
		lastEmit:    make(map[string]time.Time),
	}
}

// Check evaluates symbol/conditionID and returns a signal if momentum
// exceeds the threshold and the per-market cooldown has elapsed.
func (d *MomentumDetector) Check(conditionID, symbol string, now time.Time) (MomentumSignal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastEmit[conditionID]; ok && now.Sub(last) < d.cooldown {
		return MomentumSignal{}, false
	}

	pct, dir, ok := d.klines.CalculateMomentum(symbol, d.lookback)
	if !ok {
		return MomentumSignal{}, false
	}
	// CalculateMomentum reports a percentage; minMomentum and Magnitude are
	// fractions (0.02 = 2%).
	magnitude := pct / 100
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < d.minMomentum {
		return MomentumSignal{}, false
	}

	d.lastEmit[conditionID] = now
	return MomentumSignal{ConditionID: conditionID, Symbol: symbol, Direction: dir, Magnitude: magnitude}, true
}

// Cleanup drops cooldown stamps for markets no longer in activeIDs.
func (d *MomentumDetector) Cleanup(activeIDs map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.lastEmit {
		if !activeIDs[id] {
			delete(d.lastEmit, id)
		}
	}
}
