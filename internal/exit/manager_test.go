package exit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeExecutor struct {
	orderID string
	err     error
}

func (f *fakeExecutor) ExecuteSell(ctx context.Context, tokenID string, shares, price decimal.Decimal, marketName string) (string, error) {
	return f.orderID, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExitManagerDisabledWhenZeroPct(t *testing.T) {
	t.Parallel()
	m := NewManager(decimal.Zero, false, decimal.Zero, true, &fakeExecutor{}, testLogger())
	if m.IsEnabled() {
		t.Error("expected exit manager disabled at zero trailing stop pct")
	}
}

func TestExitManagerAddAndTrackPosition(t *testing.T) {
	t.Parallel()
	m := NewManager(dd("0.10"), false, decimal.Zero, true, &fakeExecutor{}, testLogger())
	marketID := uuid.New()
	m.AddPosition(marketID, "Test Market", "tok1", "YES", dd("10"), dd("0.42"))

	if !m.HasPosition(marketID) {
		t.Error("expected position to be tracked")
	}
	if m.PositionCount() != 1 {
		t.Errorf("position count = %d, want 1", m.PositionCount())
	}
}

func TestExitManagerTrailingStopTriggersDryRun(t *testing.T) {
	t.Parallel()
	m := NewManager(dd("0.10"), false, decimal.Zero, true, &fakeExecutor{}, testLogger())
	marketID := uuid.New()
	m.AddPosition(marketID, "Test Market", "tok1", "YES", dd("10"), dd("0.50"))

	// price rises to 0.60 (new peak), then drops to 0.53 (> 10% down from peak).
	quotes := map[uuid.UUID]MarketQuote{marketID: {MarketID: marketID, YesBestBid: dd("0.60")}}
	results := m.CheckExits(context.Background(), quotes)
	if len(results) != 0 {
		t.Fatalf("expected no exit on the peak-only tick, got %d", len(results))
	}

	quotes[marketID] = MarketQuote{MarketID: marketID, YesBestBid: dd("0.53")}
	results = m.CheckExits(context.Background(), quotes)
	if len(results) != 1 {
		t.Fatalf("expected one triggered exit, got %d", len(results))
	}
	if results[0].Reason != ReasonTrailingStop || !results[0].Success {
		t.Errorf("got %+v, want a successful trailing-stop exit", results[0])
	}
	if m.HasPosition(marketID) {
		t.Error("expected position removed after a successful exit")
	}
}

func TestExitManagerTakeProfitTriggersBeforeTrailingStop(t *testing.T) {
	t.Parallel()
	m := NewManager(dd("0.50"), true, dd("0.20"), true, &fakeExecutor{}, testLogger())
	marketID := uuid.New()
	m.AddPosition(marketID, "Test Market", "tok1", "YES", dd("10"), dd("0.50"))

	quotes := map[uuid.UUID]MarketQuote{marketID: {MarketID: marketID, YesBestBid: dd("0.61")}}
	results := m.CheckExits(context.Background(), quotes)
	if len(results) != 1 || results[0].Reason != ReasonTakeProfit {
		t.Fatalf("expected a take-profit exit, got %+v", results)
	}
}

func TestExitManagerFailedExitRetriesThenAbandons(t *testing.T) {
	t.Parallel()
	m := NewManager(dd("0.10"), false, decimal.Zero, false, &fakeExecutor{err: errors.New("venue rejected")}, testLogger())
	marketID := uuid.New()
	m.AddPosition(marketID, "Test Market", "tok1", "YES", dd("10"), dd("0.50"))

	quotes := map[uuid.UUID]MarketQuote{marketID: {MarketID: marketID, YesBestBid: dd("0.40")}}

	for i := 0; i < MaxExitAttempts; i++ {
		results := m.CheckExits(context.Background(), quotes)
		if len(results) != 1 || results[0].Success {
			t.Fatalf("attempt %d: expected a failed exit result, got %+v", i, results)
		}
		// force the retry delay to have elapsed for the next attempt
		m.mu.Lock()
		if pos, ok := m.positions[marketID]; ok {
			pos.LastExitAttempt = pos.LastExitAttempt.Add(-2 * ExitRetryDelaySecs * time.Second)
		}
		m.mu.Unlock()
	}

	if m.HasPosition(marketID) {
		t.Error("expected position abandoned after MaxExitAttempts failures")
	}
}

func TestExitManagerCleanupExpiredPositions(t *testing.T) {
	t.Parallel()
	m := NewManager(dd("0.10"), false, decimal.Zero, true, &fakeExecutor{}, testLogger())
	marketID := uuid.New()
	m.AddPosition(marketID, "Test Market", "tok1", "YES", dd("10"), dd("0.50"))

	m.CleanupExpiredPositions(map[uuid.UUID]bool{})
	if m.HasPosition(marketID) {
		t.Error("expected position removed once no longer in the active set")
	}
}
