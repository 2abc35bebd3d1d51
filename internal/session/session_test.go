package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestSessionOpenAndCloseAccounting(t *testing.T) {
	t.Parallel()
	s := New(true, decimal.NewFromInt(1000))
	marketID := uuid.New()

	s.OpenPosition(PositionCache{MarketID: marketID, TotalInvested: decimal.NewFromInt(100)})
	if !s.HasOpenPosition(marketID) {
		t.Fatal("expected position tracked as open")
	}
	if !s.Available().Equal(decimal.NewFromInt(800)) {
		t.Errorf("available = %v, want 800", s.Available())
	}

	s.ClosePosition(marketID, decimal.NewFromInt(150), decimal.NewFromInt(50))
	if s.HasOpenPosition(marketID) {
		t.Error("expected position removed after close")
	}
	snap := s.Snapshot()
	if !snap.NetProfit.Equal(decimal.NewFromInt(50)) {
		t.Errorf("net profit = %v, want 50", snap.NetProfit)
	}
	if snap.WinningTrades != 1 {
		t.Errorf("winning trades = %d, want 1", snap.WinningTrades)
	}
}

func TestSessionAvailableSubtractsOpenCost(t *testing.T) {
	t.Parallel()
	s := New(true, decimal.NewFromInt(1000))
	s.OpenPosition(PositionCache{MarketID: uuid.New(), TotalInvested: decimal.NewFromInt(100)})
	s.OpenPosition(PositionCache{MarketID: uuid.New(), TotalInvested: decimal.NewFromInt(200)})

	if !s.OpenPositionsCost().Equal(decimal.NewFromInt(300)) {
		t.Errorf("open positions cost = %v, want 300", s.OpenPositionsCost())
	}
}

func TestSessionWinRate(t *testing.T) {
	t.Parallel()
	snap := Snapshot{TotalTrades: 4, WinningTrades: 3}
	if got := snap.WinRate(); got != 0.75 {
		t.Errorf("win rate = %v, want 0.75", got)
	}
	if (Snapshot{}).WinRate() != 0 {
		t.Error("expected zero win rate with no trades")
	}
}
