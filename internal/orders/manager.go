// Package orders implements the Order Manager (C9): tracks pending limit
// orders placed against a venue, auto-cancels them after a timeout, and
// reconciles the actual fill size rather than assuming cancel success means
// zero fill.
//
// Grounded on
// original_source/src/misprice-trader/src/order_manager.rs, translated from
// its JoinSet-of-futures model to a goroutine-per-order plus a result
// channel, following the teacher's internal/exchange/ratelimit.go style of
// a small mutex-protected struct with a blocking/async split.
package orders

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// CancelTimeoutSecs is the default wait before auto-cancelling an
	// unfilled pending order (spec §4.9).
	CancelTimeoutSecs = 30
	// CancelRetryDelayMs is the delay between cancel-attempt retries.
	CancelRetryDelayMs = 500
)

// Status is the lifecycle state of a tracked order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// PendingOrder is one order being tracked toward fill or auto-cancel.
type PendingOrder struct {
	OrderID    string
	MarketID   uuid.UUID
	MarketName string
	Side       string
	PlacedAt   time.Time
	Status     Status

	TokenID string
	Shares  decimal.Decimal
	Price   decimal.Decimal
}

// CancelResult is what a completed auto-cancel attempt reports back.
type CancelResult struct {
	OrderID    string
	MarketID   uuid.UUID
	MarketName string
	Side       string
	Success    bool
	WasFilled  bool
	FilledSize decimal.Decimal
	Err        error

	TokenID string
	Shares  decimal.Decimal
	Price   decimal.Decimal
}

// VenueClient is the subset of a venue's trading client the manager needs
// to cancel an order and query its fill size. Each venue package
// (internal/venue/polymarket, internal/venue/kalshi) implements this.
type VenueClient interface {
	CancelOrder(ctx context.Context, orderID string) error
	QueryFilledSize(ctx context.Context, orderID string) (decimal.Decimal, error)
}

// Manager tracks pending orders and runs their auto-cancel timers.
type Manager struct {
	mu                 sync.Mutex
	pending            map[string]*PendingOrder
	cancelTimeoutSecs  int
	results            chan CancelResult
	venue              VenueClient
	log                *slog.Logger
	wg                 sync.WaitGroup
}

// NewManager constructs an order manager with the given auto-cancel timeout.
func NewManager(venue VenueClient, cancelTimeoutSecs int, log *slog.Logger) *Manager {
	if cancelTimeoutSecs <= 0 {
		cancelTimeoutSecs = CancelTimeoutSecs
	}
	return &Manager{
		pending:           make(map[string]*PendingOrder),
		cancelTimeoutSecs: cancelTimeoutSecs,
		results:           make(chan CancelResult, 64),
		venue:             venue,
		log:               log,
	}
}

// Results returns the channel completed cancel attempts are published on.
// Callers should drain it (e.g. via a select in the owning loop).
func (m *Manager) Results() <-chan CancelResult {
	return m.results
}

// TrackOrder begins tracking orderID and schedules its auto-cancel after
// the manager's timeout. Returns false without tracking if orderID is
// already tracked (spec §4.9's duplicate-track no-op).
func (m *Manager) TrackOrder(ctx context.Context, orderID string, marketID uuid.UUID, marketName, side string, tokenID string, shares, price decimal.Decimal) bool {
	m.mu.Lock()
	if _, exists := m.pending[orderID]; exists {
		m.mu.Unlock()
		m.log.Warn("duplicate order id, not tracking again", "order_id", orderID)
		return false
	}
	order := &PendingOrder{
		OrderID:    orderID,
		MarketID:   marketID,
		MarketName: marketName,
		Side:       side,
		PlacedAt:   time.Now(),
		Status:     StatusPending,
		TokenID:    tokenID,
		Shares:     shares,
		Price:      price,
	}
	m.pending[orderID] = order
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runAutoCancel(ctx, order)

	m.log.Debug("tracking order", "order_id", orderID, "market", marketName, "side", side, "cancel_in_secs", m.cancelTimeoutSecs)
	return true
}

func (m *Manager) runAutoCancel(ctx context.Context, order *PendingOrder) {
	defer m.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(m.cancelTimeoutSecs) * time.Second):
	}

	cancelErr := m.venue.CancelOrder(ctx, order.OrderID)
	cancelSuccess := cancelErr == nil

	filledSize, queryErr := m.venue.QueryFilledSize(ctx, order.OrderID)
	var wasFilled bool
	if queryErr == nil {
		wasFilled = filledSize.GreaterThan(decimal.Zero)
		if wasFilled {
			m.log.Info("order was filled", "order_id", order.OrderID, "shares", filledSize)
		} else {
			m.log.Info("order cancelled after timeout", "order_id", order.OrderID, "timeout_secs", m.cancelTimeoutSecs)
		}
	} else {
		m.log.Warn("failed to query order fill, falling back to cancel-error heuristic", "order_id", order.OrderID, "err", queryErr)
		wasFilled = cancelErr != nil && looksLikeAlreadyFilled(cancelErr.Error())
		filledSize = decimal.Zero
	}

	result := CancelResult{
		OrderID:    order.OrderID,
		MarketID:   order.MarketID,
		MarketName: order.MarketName,
		Side:       order.Side,
		Success:    cancelSuccess && !wasFilled,
		WasFilled:  wasFilled,
		Err:        cancelErr,
		TokenID:    order.TokenID,
		Price:      order.Price,
	}
	if wasFilled {
		result.FilledSize = filledSize
		result.Shares = filledSize
	} else {
		result.Shares = order.Shares
	}

	m.mu.Lock()
	if o, ok := m.pending[order.OrderID]; ok {
		switch {
		case result.Success:
			o.Status = StatusCancelled
		case result.WasFilled:
			o.Status = StatusFilled
		default:
			o.Status = StatusUnknown
		}
	}
	delete(m.pending, order.OrderID)
	m.mu.Unlock()

	select {
	case m.results <- result:
	case <-ctx.Done():
	}
}

func looksLikeAlreadyFilled(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"not found", "already", "filled", "does not exist"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// HasPendingOrder reports whether marketID has a tracked pending order on
// the given side. This is what enforces spec §5's per-(market,side)
// serialization: the caller checks this before placing a new order.
func (m *Manager) HasPendingOrder(marketID uuid.UUID, side string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.pending {
		if o.MarketID == marketID && o.Side == side {
			return true
		}
	}
	return false
}

// PendingCount returns the number of orders currently tracked.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CancelAllPending cancels every tracked order immediately, for graceful
// shutdown. Cancel errors are logged but not treated as fatal, since the
// order may simply already be filled.
func (m *Manager) CancelAllPending(ctx context.Context) {
	m.mu.Lock()
	orderIDs := make([]string, 0, len(m.pending))
	for id := range m.pending {
		orderIDs = append(orderIDs, id)
	}
	m.mu.Unlock()

	if len(orderIDs) == 0 {
		return
	}
	m.log.Info("cancelling pending orders on shutdown", "count", len(orderIDs))

	for _, id := range orderIDs {
		if err := m.venue.CancelOrder(ctx, id); err != nil {
			m.log.Debug("shutdown cancel returned error, may be filled", "order_id", id, "err", err)
		} else {
			m.log.Info("cancelled order on shutdown", "order_id", id)
		}
	}

	m.mu.Lock()
	m.pending = make(map[string]*PendingOrder)
	m.mu.Unlock()
}

// Wait blocks until all in-flight auto-cancel goroutines have returned.
// Intended for use after the manager's context has been cancelled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Status returns the tracked status of orderID, if still tracked.
func (m *Manager) Status(orderID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.pending[orderID]
	if !ok {
		return "", false
	}
	return o.Status, true
}
