// Package exit implements the Exit Manager (C10): trailing-stop and
// optional take-profit exits for active positions, with bounded retry on
// failed sell attempts.
//
// Grounded on
// original_source/src/misprice-trader/src/exit_manager.rs (two-pass
// check_exits algorithm, MAX_EXIT_ATTEMPTS/EXIT_RETRY_DELAY_SECS constants).
// The original's boxed ASCII-art summary is replaced with plain structured
// logging, matching the teacher's log/slog usage throughout
// internal/engine/engine.go.
package exit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MaxExitAttempts bounds retries before a position is abandoned.
	MaxExitAttempts = 3
	// ExitRetryDelaySecs is the minimum delay between retry attempts.
	ExitRetryDelaySecs = 30
)

// Reason names why an exit was triggered.
type Reason string

const (
	ReasonTrailingStop Reason = "trailing_stop"
	ReasonTakeProfit   Reason = "take_profit"
	ReasonMarketExpiry Reason = "market_expiry"
)

// ActivePosition is a position being watched for an exit trigger.
type ActivePosition struct {
	MarketID        uuid.UUID
	MarketName      string
	TokenID         string
	Side            string // YES or NO
	Shares          decimal.Decimal
	EntryPrice      decimal.Decimal
	PeakPrice       decimal.Decimal
	EnteredAt       time.Time
	ExitAttempts    int
	LastExitAttempt time.Time
}

// Result is the outcome of one exit attempt.
type Result struct {
	MarketID   uuid.UUID
	MarketName string
	Side       string
	Shares     decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PeakPrice  decimal.Decimal
	PnL        decimal.Decimal
	PnLPct     decimal.Decimal
	Reason     Reason
	Success    bool
	OrderID    string
	Err        error
}

// MarketQuote is the subset of live market data the exit check needs: the
// best bid to sell into, for both outcome sides.
type MarketQuote struct {
	MarketID   uuid.UUID
	YesBestBid decimal.Decimal
	NoBestBid  decimal.Decimal
}

// SellExecutor places a live sell order and returns the resulting order ID.
type SellExecutor interface {
	ExecuteSell(ctx context.Context, tokenID string, shares, price decimal.Decimal, marketName string) (orderID string, err error)
}

// Manager tracks active positions and their exit logic.
type Manager struct {
	mu               sync.Mutex
	positions        map[uuid.UUID]*ActivePosition
	trailingStopPct  decimal.Decimal
	hasTakeProfit    bool
	takeProfitPct    decimal.Decimal
	dryRun           bool
	executor         SellExecutor
	log              *slog.Logger
}

// NewManager constructs an exit manager. Pass hasTakeProfit=false to
// disable the take-profit leg entirely (spec §4.9's "optional hard take
// profit target").
func NewManager(trailingStopPct decimal.Decimal, hasTakeProfit bool, takeProfitPct decimal.Decimal, dryRun bool, executor SellExecutor, log *slog.Logger) *Manager {
	return &Manager{
		positions:       make(map[uuid.UUID]*ActivePosition),
		trailingStopPct: trailingStopPct,
		hasTakeProfit:   hasTakeProfit,
		takeProfitPct:   takeProfitPct,
		dryRun:          dryRun,
		executor:        executor,
		log:             log,
	}
}

// IsEnabled reports whether trailing-stop exits are active at all.
func (m *Manager) IsEnabled() bool {
	return m.trailingStopPct.GreaterThan(decimal.Zero)
}

// AddPosition starts tracking marketID for exit, seeding peak price with
// the entry price.
func (m *Manager) AddPosition(marketID uuid.UUID, marketName, tokenID, side string, shares, entryPrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[marketID] = &ActivePosition{
		MarketID:   marketID,
		MarketName: marketName,
		TokenID:    tokenID,
		Side:       side,
		Shares:     shares,
		EntryPrice: entryPrice,
		PeakPrice:  entryPrice,
		EnteredAt:  time.Now(),
	}
	m.log.Info("tracking position for exit", "market", marketName, "side", side, "entry_price", entryPrice, "shares", shares)
}

// HasPosition reports whether marketID is currently tracked.
func (m *Manager) HasPosition(marketID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[marketID]
	return ok
}

// PositionCount returns the number of tracked positions.
func (m *Manager) PositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

type triggeredExit struct {
	position ActivePosition
	price    decimal.Decimal
	reason   Reason
}

// CheckExits runs the two-pass trigger scan: pass one updates peaks and
// collects positions whose trailing-stop or take-profit condition has
// fired; pass two actually executes the exit order, respecting the
// per-position retry delay and attempt cap.
func (m *Manager) CheckExits(ctx context.Context, quotes map[uuid.UUID]MarketQuote) []Result {
	m.mu.Lock()
	if len(m.positions) == 0 {
		m.mu.Unlock()
		return nil
	}

	var toProcess []triggeredExit
	for marketID, pos := range m.positions {
		quote, ok := quotes[marketID]
		if !ok {
			continue
		}
		var currentPrice decimal.Decimal
		switch pos.Side {
		case "YES":
			currentPrice = quote.YesBestBid
		case "NO":
			currentPrice = quote.NoBestBid
		default:
			continue
		}
		if currentPrice.LessThanOrEqual(decimal.Zero) {
			continue
		}

		if currentPrice.GreaterThan(pos.PeakPrice) {
			pos.PeakPrice = currentPrice
		}

		profitPct := decimal.Zero
		if pos.EntryPrice.GreaterThan(decimal.Zero) {
			profitPct = currentPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice)
		}

		if m.hasTakeProfit && profitPct.GreaterThanOrEqual(m.takeProfitPct) {
			m.log.Info("take profit triggered", "market", pos.MarketName, "side", pos.Side, "price", currentPrice, "profit_pct", profitPct)
			toProcess = append(toProcess, triggeredExit{position: *pos, price: currentPrice, reason: ReasonTakeProfit})
			continue
		}

		drawdown := decimal.Zero
		if pos.PeakPrice.GreaterThan(decimal.Zero) {
			drawdown = pos.PeakPrice.Sub(currentPrice).Div(pos.PeakPrice)
		}
		if drawdown.GreaterThanOrEqual(m.trailingStopPct) {
			m.log.Info("trailing stop triggered", "market", pos.MarketName, "side", pos.Side, "price", currentPrice, "peak", pos.PeakPrice, "drawdown", drawdown)
			toProcess = append(toProcess, triggeredExit{position: *pos, price: currentPrice, reason: ReasonTrailingStop})
		}
	}
	m.mu.Unlock()

	var results []Result
	for _, trig := range toProcess {
		marketID := trig.position.MarketID

		m.mu.Lock()
		pos, ok := m.positions[marketID]
		if !ok {
			m.mu.Unlock()
			continue
		}
		if !pos.LastExitAttempt.IsZero() && time.Since(pos.LastExitAttempt) < ExitRetryDelaySecs*time.Second {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		result := m.executeExit(ctx, trig.position, trig.price, trig.reason)

		m.mu.Lock()
		if result.Success {
			delete(m.positions, marketID)
		} else if pos, ok := m.positions[marketID]; ok {
			pos.ExitAttempts++
			pos.LastExitAttempt = time.Now()
			if pos.ExitAttempts >= MaxExitAttempts {
				m.log.Warn("max exit attempts reached, abandoning position", "market", pos.MarketName, "attempts", pos.ExitAttempts)
				delete(m.positions, marketID)
			}
		}
		m.mu.Unlock()

		results = append(results, result)
	}

	return results
}

func (m *Manager) executeExit(ctx context.Context, position ActivePosition, exitPrice decimal.Decimal, reason Reason) Result {
	pnl := position.Shares.Mul(exitPrice.Sub(position.EntryPrice))
	pnlPct := decimal.Zero
	if position.EntryPrice.GreaterThan(decimal.Zero) {
		pnlPct = exitPrice.Sub(position.EntryPrice).Div(position.EntryPrice).Mul(decimal.NewFromInt(100))
	}

	base := Result{
		MarketID:   position.MarketID,
		MarketName: position.MarketName,
		Side:       position.Side,
		Shares:     position.Shares,
		EntryPrice: position.EntryPrice,
		ExitPrice:  exitPrice,
		PeakPrice:  position.PeakPrice,
		Reason:     reason,
	}

	if m.dryRun {
		base.PnL = pnl
		base.PnLPct = pnlPct
		base.Success = true
		base.OrderID = "DRY_RUN"
		m.log.Info("dry run exit", "reason", reason, "side", position.Side, "shares", position.Shares, "price", exitPrice, "pnl", pnl, "pnl_pct", pnlPct)
		return base
	}

	orderID, err := m.executor.ExecuteSell(ctx, position.TokenID, position.Shares, exitPrice, position.MarketName)
	if err != nil {
		m.log.Warn("exit failed", "reason", reason, "market", position.MarketName, "side", position.Side, "err", err)
		base.PnL = decimal.Zero
		base.PnLPct = decimal.Zero
		base.Success = false
		base.Err = err
		return base
	}

	m.log.Info("exit executed", "reason", reason, "market", position.MarketName, "side", position.Side, "price", exitPrice, "order_id", orderID)
	base.PnL = pnl
	base.PnLPct = pnlPct
	base.Success = true
	base.OrderID = orderID
	return base
}

// RemovePosition removes a position directly, e.g. on settlement.
func (m *Manager) RemovePosition(marketID uuid.UUID) (ActivePosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[marketID]
	if !ok {
		return ActivePosition{}, false
	}
	delete(m.positions, marketID)
	return *pos, true
}

// Positions returns a snapshot of all tracked positions.
func (m *Manager) Positions() []ActivePosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActivePosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// CleanupExpiredPositions drops positions whose market is no longer in the
// active set, logging them as expired-without-exit.
func (m *Manager) CleanupExpiredPositions(activeMarketIDs map[uuid.UUID]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pos := range m.positions {
		if !activeMarketIDs[id] {
			m.log.Warn("position expired without exit", "market", pos.MarketName, "side", pos.Side, "entry_price", pos.EntryPrice)
			delete(m.positions, id)
		}
	}
}

// LogSummary logs the current set of active positions at info level.
func (m *Manager) LogSummary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.positions) == 0 {
		return
	}
	m.log.Info("active positions summary", "count", len(m.positions), "trailing_stop_pct", m.trailingStopPct)
	for _, pos := range m.positions {
		m.log.Info("active position", "market", pos.MarketName, "side", pos.Side, "entry_price", pos.EntryPrice, "peak_price", pos.PeakPrice)
	}
}
