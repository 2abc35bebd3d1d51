package buffer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

func mkKline(symbol string, openTime time.Time, open, close float64, closed bool) types.Kline {
	return types.Kline{
		Symbol:    symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(time.Minute),
		Open:      decimal.NewFromFloat(open),
		Close:     decimal.NewFromFloat(close),
		IsClosed:  closed,
	}
}

func TestKlineBufferDropsUnclosed(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	kb.Add(mkKline("BTCUSDT", time.Unix(0, 0), 100, 105, false))

	if _, _, ok := kb.CalculateMomentum("BTCUSDT", 1); ok {
		t.Error("unclosed kline must not contribute to momentum")
	}
}

func TestKlineBufferOverwritesTailOnClose(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	openTime := time.Unix(0, 0)
	kb.Add(mkKline("BTCUSDT", openTime, 100, 103, false))
	kb.Add(mkKline("BTCUSDT", openTime, 100, 110, true))

	open, ok := kb.GetOpenAtTime("BTCUSDT", openTime.Add(30*time.Second))
	if !ok || !open.Equal(decimal.NewFromFloat(100)) {
		t.Fatalf("expected open 100 at time within candle, got %v ok=%v", open, ok)
	}
}

func TestKlineBufferCalculateMomentumUsesRealtimePrice(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	base := time.Unix(0, 0)
	kb.Add(mkKline("BTCUSDT", base, 100, 101, true))
	kb.Add(mkKline("BTCUSDT", base.Add(time.Minute), 101, 102, true))
	kb.UpdatePrice("BTCUSDT", decimal.NewFromFloat(110))

	pct, dir, ok := kb.CalculateMomentum("BTCUSDT", 2)
	if !ok {
		t.Fatal("expected a momentum result")
	}
	if dir != types.Up {
		t.Errorf("direction = %v, want Up", dir)
	}
	if pct < 9.9 || pct > 10.1 {
		t.Errorf("pct = %v, want ~10", pct)
	}
}

func TestKlineBufferCalculateMomentumFailsClosedOnZeroOpen(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	kb.Add(mkKline("BTCUSDT", time.Unix(0, 0), 0, 5, true))

	if _, _, ok := kb.CalculateMomentum("BTCUSDT", 1); ok {
		t.Error("expected momentum to fail closed when oldest open is zero")
	}
}

func TestKlineBufferCalculateMomentumRequiresLookbackLen(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	kb.Add(mkKline("BTCUSDT", time.Unix(0, 0), 100, 101, true))

	if _, _, ok := kb.CalculateMomentum("BTCUSDT", 5); ok {
		t.Error("expected no momentum result when lookback exceeds history length")
	}
}

func TestKlineBufferGetOpenAtTimeNeverExtrapolates(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	kb.Add(mkKline("BTCUSDT", time.Unix(0, 0), 100, 101, true))

	if _, ok := kb.GetOpenAtTime("BTCUSDT", time.Unix(0, 0).Add(time.Hour)); ok {
		t.Error("expected no data far outside any candle's interval")
	}
}

func TestKlineBufferDuplicateOpenTimeReplacesTail(t *testing.T) {
	t.Parallel()
	kb := NewKlineBuffer()

	openTime := time.Unix(0, 0)
	kb.Add(mkKline("BTCUSDT", openTime, 100, 101, true))
	kb.Add(mkKline("BTCUSDT", openTime, 100, 999, true))

	pct, _, ok := kb.CalculateMomentum("BTCUSDT", 1)
	if !ok {
		t.Fatal("expected a momentum result")
	}
	// the duplicate open_time replaces the tail rather than appending —
	// so the lone retained kline's close is 999, not 101.
	if pct < 898 || pct > 900 {
		t.Errorf("pct = %v, want ~899 from the deduped tail", pct)
	}
}
