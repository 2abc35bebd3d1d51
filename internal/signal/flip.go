package signal

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/buffer"
	"predictarb/pkg/types"
)

const debounceCount = 3

// FlipType names the confirmed-direction transition that triggers a trade.
type FlipType string

const (
	FlipDownToUp FlipType = "down_to_up" // buy YES
	FlipUpToDown FlipType = "up_to_down" // buy NO
)

// flipState is one market's debounce state (spec §3's Market State).
type flipState struct {
	openPrice          decimal.Decimal
	confirmedDirection types.Direction // "" = none yet
	rawDirection       types.Direction
	consecutiveCount   int
	hasTraded          bool
}

// FlipSignal is emitted on a confirmed direction flip.
type FlipSignal struct {
	MarketID string
	Type     FlipType
	Side     types.Side
}

// FlipDetector tracks per-market debounced direction flips relative to each
// market's captured epoch-open price (spec §4.8).
type FlipDetector struct {
	mu     sync.Mutex
	prices *buffer.PriceBuffer
	states map[string]*flipState // marketID -> state
}

// NewFlipDetector constructs a detector reading opens from prices.
func NewFlipDetector(prices *buffer.PriceBuffer) *FlipDetector {
	return &FlipDetector{prices: prices, states: make(map[string]*flipState)}
}

// Track begins tracking marketID, capturing its epoch open via the price
// buffer if not already captured. A market already tracked is left as-is.
func (d *FlipDetector) Track(marketID, symbol string, startTime time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.states[marketID]; ok {
		return
	}
	open, ok := d.prices.GetOrCaptureOpen(symbol, startTime)
	if !ok {
		return
	}
	d.states[marketID] = &flipState{openPrice: open}
}

// OnTick processes a new price observation for marketID and returns a
// signal if it confirms a flip. A market latched by a prior trade
// (hasTraded) never emits again until reset.
func (d *FlipDetector) OnTick(marketID string, current decimal.Decimal) (FlipSignal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[marketID]
	if !ok || st.hasTraded {
		return FlipSignal{}, false
	}

	raw := types.Up
	if current.LessThanOrEqual(st.openPrice) {
		raw = types.Down
	}

	if raw != st.rawDirection {
		st.rawDirection = raw
		st.consecutiveCount = 1
	} else {
		st.consecutiveCount++
	}

	if st.consecutiveCount < debounceCount {
		return FlipSignal{}, false
	}

	prior := st.confirmedDirection
	if prior == "" {
		// initial confirmation never emits — only a change from a known
		// prior confirmed direction is a "flip".
		st.confirmedDirection = raw
		return FlipSignal{}, false
	}
	if prior == raw {
		return FlipSignal{}, false
	}

	st.confirmedDirection = raw
	if prior == types.Down && raw == types.Up {
		return FlipSignal{MarketID: marketID, Type: FlipDownToUp, Side: types.Yes}, true
	}
	return FlipSignal{MarketID: marketID, Type: FlipUpToDown, Side: types.No}, true
}

// MarkTraded latches marketID so it never emits again (spec §4.8's
// has_traded ⇒ skip terminal state, spec §5's "traded at most once per
// flip" ordering guarantee).
func (d *FlipDetector) MarkTraded(marketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.states[marketID]; ok {
		st.hasTraded = true
	}
}

// Cleanup removes state for markets no longer in activeIDs.
func (d *FlipDetector) Cleanup(activeIDs map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.states {
		if !activeIDs[id] {
			delete(d.states, id)
		}
	}
}

// SeedConfirmedDirection is a test/recovery hook to set a market's prior
// confirmed direction directly (used to reproduce spec §8 scenario 3, where
// a flip is confirmed against a direction set by "some earlier run").
func (d *FlipDetector) SeedConfirmedDirection(marketID string, dir types.Direction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.states[marketID]; ok {
		st.confirmedDirection = dir
	}
}
