// Package session implements the Session & Metrics component (C13):
// process-lifetime counters, running balance, and an in-memory cache of
// open positions for fast per-cycle lookup without a database round trip.
//
// Grounded on original_source/src/trade-executor/src/models.rs's
// SessionState/PositionCache structs — field-for-field, since spec §3
// names this state but does not redefine it beyond what the original
// already specifies exactly.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionCache is the in-memory mirror of one open position, kept current
// without a database read on every cycle.
type PositionCache struct {
	ID            uuid.UUID
	MarketID      uuid.UUID
	MarketName    string
	YesShares     decimal.Decimal
	NoShares      decimal.Decimal
	TotalInvested decimal.Decimal
	EndTime       time.Time
}

// State is the session's running counters and balance, owned by exactly
// one goroutine (the trading-cycle driver, spec §5).
type State struct {
	mu sync.RWMutex

	ID                 uuid.UUID
	DryRun             bool
	StartingBalance    decimal.Decimal
	CurrentBalance     decimal.Decimal
	TotalTrades        int
	WinningTrades      int
	TotalOpportunities int
	PositionsOpened    int
	PositionsClosed    int
	GrossProfit        decimal.Decimal
	FeesPaid           decimal.Decimal
	NetProfit          decimal.Decimal
	StartedAt          time.Time

	openPositions map[uuid.UUID]PositionCache
}

// New starts a session with the given starting balance.
func New(dryRun bool, startingBalance decimal.Decimal) *State {
	return &State{
		ID:              uuid.New(),
		DryRun:          dryRun,
		StartingBalance: startingBalance,
		CurrentBalance:  startingBalance,
		StartedAt:       time.Now(),
		openPositions:   make(map[uuid.UUID]PositionCache),
	}
}

// RecordOpportunitySeen increments the opportunities counter, independent
// of whether it was actually traded.
func (s *State) RecordOpportunitySeen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalOpportunities++
}

// OpenPosition records a newly opened position both in the counters and
// the fast-lookup cache, and debits its cost from the current balance.
func (s *State) OpenPosition(pos PositionCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPositions[pos.MarketID] = pos
	s.PositionsOpened++
	s.TotalTrades++
	s.CurrentBalance = s.CurrentBalance.Sub(pos.TotalInvested)
}

// ClosePosition removes a position from the cache and applies its
// realized P&L to the session's running totals.
func (s *State) ClosePosition(marketID uuid.UUID, payout, pnl decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.openPositions, marketID)
	s.PositionsClosed++
	s.CurrentBalance = s.CurrentBalance.Add(payout)
	s.NetProfit = s.NetProfit.Add(pnl)
	if pnl.GreaterThan(decimal.Zero) {
		s.WinningTrades++
		s.GrossProfit = s.GrossProfit.Add(pnl)
	}
}

// RecordFees adds venue fees paid to the running total and debits the
// balance.
func (s *State) RecordFees(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FeesPaid = s.FeesPaid.Add(amount)
	s.CurrentBalance = s.CurrentBalance.Sub(amount)
}

// HasOpenPosition reports whether marketID already has an open position,
// the check that gates a new execution attempt (spec §4.10.3 step 4).
func (s *State) HasOpenPosition(marketID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.openPositions[marketID]
	return ok
}

// OpenPositionsCost sums TotalInvested across every cached open position —
// the Σ in spec §4.10.4's `available = current_balance − Σ open-positions.cost`.
func (s *State) OpenPositionsCost() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, p := range s.openPositions {
		total = total.Add(p.TotalInvested)
	}
	return total
}

// Available computes the spendable balance per spec §4.10.4.
func (s *State) Available() decimal.Decimal {
	s.mu.RLock()
	balance := s.CurrentBalance
	s.mu.RUnlock()
	return balance.Sub(s.OpenPositionsCost())
}

// OpenPositions returns a snapshot of every cached open position.
func (s *State) OpenPositions() []PositionCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PositionCache, 0, len(s.openPositions))
	for _, p := range s.openPositions {
		out = append(out, p)
	}
	return out
}

// Snapshot is a read-only copy of the session's counters, safe to log or
// serve from the heartbeat endpoint.
type Snapshot struct {
	ID                 uuid.UUID
	DryRun             bool
	StartingBalance    decimal.Decimal
	CurrentBalance     decimal.Decimal
	TotalTrades        int
	WinningTrades      int
	TotalOpportunities int
	PositionsOpened    int
	PositionsClosed    int
	GrossProfit        decimal.Decimal
	FeesPaid           decimal.Decimal
	NetProfit          decimal.Decimal
	StartedAt          time.Time
	OpenPositionCount  int
}

// Snapshot returns a copy of the session's current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:                 s.ID,
		DryRun:             s.DryRun,
		StartingBalance:    s.StartingBalance,
		CurrentBalance:     s.CurrentBalance,
		TotalTrades:        s.TotalTrades,
		WinningTrades:      s.WinningTrades,
		TotalOpportunities: s.TotalOpportunities,
		PositionsOpened:    s.PositionsOpened,
		PositionsClosed:    s.PositionsClosed,
		GrossProfit:        s.GrossProfit,
		FeesPaid:           s.FeesPaid,
		NetProfit:          s.NetProfit,
		StartedAt:          s.StartedAt,
		OpenPositionCount:  len(s.openPositions),
	}
}

// WinRate returns WinningTrades/TotalTrades, or 0 if no trades yet.
func (snap Snapshot) WinRate() float64 {
	if snap.TotalTrades == 0 {
		return 0
	}
	return float64(snap.WinningTrades) / float64(snap.TotalTrades)
}
