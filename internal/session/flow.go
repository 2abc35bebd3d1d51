package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// opportunityEvent is one detected opportunity, used only to compute the
// rolling-window diagnostics below.
type opportunityEvent struct {
	marketID  uuid.UUID
	timestamp time.Time
}

// OpportunityRateTracker keeps a rolling window of detected opportunities
// and reports how concentrated they are in a single market, the signal
// that a stale or bad entity match is repeatedly firing rather than real
// distinct arbitrage.
//
// Adapted from the teacher's internal/strategy/flow_tracker.go: the same
// mutex-protected rolling-window-with-eviction shape, repurposed from
// per-fill directional-imbalance scoring to per-opportunity
// market-concentration scoring.
type OpportunityRateTracker struct {
	mu sync.Mutex

	windowDuration time.Duration
	events         []opportunityEvent

	concentrationThreshold float64 // share of events in one market considered suspicious
}

// NewOpportunityRateTracker constructs a tracker over the given window.
func NewOpportunityRateTracker(windowDuration time.Duration, concentrationThreshold float64) *OpportunityRateTracker {
	return &OpportunityRateTracker{
		windowDuration:         windowDuration,
		events:                 make([]opportunityEvent, 0, 64),
		concentrationThreshold: concentrationThreshold,
	}
}

// Record adds a detected opportunity for marketID to the window.
func (t *OpportunityRateTracker) Record(marketID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, opportunityEvent{marketID: marketID, timestamp: time.Now()})
	t.evictStaleLocked()
}

func (t *OpportunityRateTracker) evictStaleLocked() {
	if len(t.events) == 0 {
		return
	}
	cutoff := time.Now().Add(-t.windowDuration)
	i := 0
	for i < len(t.events) && !t.events[i].timestamp.After(cutoff) {
		i++
	}
	t.events = t.events[i:]
}

// RateMetrics summarizes the current window.
type RateMetrics struct {
	TotalEvents       int
	OpportunitiesPerMin float64
	TopMarketShare    float64 // fraction of events from the single most frequent market
	IsConcentrated    bool
}

// Metrics computes the current window's rate and concentration.
func (t *OpportunityRateTracker) Metrics() RateMetrics {
	t.mu.Lock()
	t.evictStaleLocked()
	events := make([]opportunityEvent, len(t.events))
	copy(events, t.events)
	t.mu.Unlock()

	if len(events) == 0 {
		return RateMetrics{}
	}

	counts := make(map[uuid.UUID]int, len(events))
	for _, e := range events {
		counts[e.marketID]++
	}
	top := 0
	for _, c := range counts {
		if c > top {
			top = c
		}
	}
	topShare := float64(top) / float64(len(events))
	perMin := float64(len(events)) / t.windowDuration.Minutes()

	return RateMetrics{
		TotalEvents:         len(events),
		OpportunitiesPerMin: perMin,
		TopMarketShare:      topShare,
		IsConcentrated:      topShare > t.concentrationThreshold,
	}
}
