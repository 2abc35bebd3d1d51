package signal

import (
	"testing"
	"time"

	"predictarb/internal/buffer"
	"predictarb/pkg/types"
)

func mkClosedKline(symbol string, openTime time.Time, open, close string) types.Kline {
	return types.Kline{
		Symbol:    symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(time.Minute),
		Open:      d(open),
		Close:     d(close),
		IsClosed:  true,
	}
}

func TestMomentumDetectorEmitsAboveThreshold(t *testing.T) {
	t.Parallel()
	base := time.Unix(0, 0)
	kb := buffer.NewKlineBuffer()
	for i := 0; i < 3; i++ {
		kb.Add(mkClosedKline("BTCUSDT", base.Add(time.Duration(i)*time.Minute), "100", "100"))
	}
	kb.Add(mkClosedKline("BTCUSDT", base.Add(3*time.Minute), "100", "103"))

	md := NewMomentumDetector(kb, 3, 0.02, time.Minute)
	sig, ok := md.Check("cond1", "BTCUSDT", base.Add(4*time.Minute))
	if !ok {
		t.Fatal("expected a momentum signal above threshold")
	}
	if sig.Direction != types.Up {
		t.Errorf("direction = %v, want Up", sig.Direction)
	}
}

func TestMomentumDetectorBelowThresholdNoEmit(t *testing.T) {
	t.Parallel()
	base := time.Unix(0, 0)
	kb := buffer.NewKlineBuffer()
	for i := 0; i < 4; i++ {
		kb.Add(mkClosedKline("BTCUSDT", base.Add(time.Duration(i)*time.Minute), "100", "100.50"))
	}

	md := NewMomentumDetector(kb, 3, 0.05, time.Minute)
	if _, ok := md.Check("cond1", "BTCUSDT", base.Add(5*time.Minute)); ok {
		t.Error("expected no signal below threshold")
	}
}

func TestMomentumDetectorCooldownGatesRepeatedEmission(t *testing.T) {
	t.Parallel()
	base := time.Unix(0, 0)
	kb := buffer.NewKlineBuffer()
	for i := 0; i < 3; i++ {
		kb.Add(mkClosedKline("BTCUSDT", base.Add(time.Duration(i)*time.Minute), "100", "100"))
	}
	kb.Add(mkClosedKline("BTCUSDT", base.Add(3*time.Minute), "100", "110"))

	md := NewMomentumDetector(kb, 3, 0.02, time.Minute)
	if _, ok := md.Check("cond1", "BTCUSDT", base.Add(4*time.Minute)); !ok {
		t.Fatal("expected first emission")
	}
	if _, ok := md.Check("cond1", "BTCUSDT", base.Add(4*time.Minute+30*time.Second)); ok {
		t.Error("expected cooldown to suppress a second emission")
	}
	if _, ok := md.Check("cond1", "BTCUSDT", base.Add(5*time.Minute+1*time.Second)); !ok {
		t.Error("expected emission to resume once cooldown has elapsed")
	}
}

func TestMomentumDetectorCleanupDropsInactiveStamps(t *testing.T) {
	t.Parallel()
	base := time.Unix(0, 0)
	kb := buffer.NewKlineBuffer()
	for i := 0; i < 3; i++ {
		kb.Add(mkClosedKline("BTCUSDT", base.Add(time.Duration(i)*time.Minute), "100", "100"))
	}
	kb.Add(mkClosedKline("BTCUSDT", base.Add(3*time.Minute), "100", "110"))

	md := NewMomentumDetector(kb, 3, 0.02, time.Minute)
	md.Check("cond1", "BTCUSDT", base.Add(4*time.Minute))
	md.Cleanup(map[string]bool{})
	if _, ok := md.Check("cond1", "BTCUSDT", base.Add(4*time.Minute+time.Second)); !ok {
		t.Error("expected cooldown to no longer apply after cleanup dropped the stamp")
	}
}
