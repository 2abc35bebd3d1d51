package buffer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceBufferUpdateAndLatest(t *testing.T) {
	t.Parallel()
	b := NewPriceBuffer()

	b.Update("BTCUSDT", decimal.NewFromFloat(100), time.Unix(1000, 0))
	b.Update("BTCUSDT", decimal.NewFromFloat(101), time.Unix(1001, 0))

	v, ok := b.GetLatest("BTCUSDT")
	if !ok {
		t.Fatal("expected a latest value")
	}
	if !v.Equal(decimal.NewFromFloat(101)) {
		t.Errorf("latest = %v, want 101", v)
	}
}

func TestPriceBufferGetOrCaptureOpenIdempotent(t *testing.T) {
	t.Parallel()
	b := NewPriceBuffer()

	start := time.Unix(0, 0).Add(90 * time.Second) // minute 1
	b.Update("BTCUSDT", decimal.NewFromFloat(100), start)

	open1, ok := b.GetOrCaptureOpen("BTCUSDT", start)
	if !ok || !open1.Equal(decimal.NewFromFloat(100)) {
		t.Fatalf("expected captured open 100, got %v ok=%v", open1, ok)
	}

	// a later tick in the same minute must not change the captured open
	b.Update("BTCUSDT", decimal.NewFromFloat(999), start.Add(20*time.Second))
	open2, ok := b.GetOrCaptureOpen("BTCUSDT", start)
	if !ok || !open2.Equal(decimal.NewFromFloat(100)) {
		t.Errorf("open changed after second capture call: got %v", open2)
	}
}

func TestPriceBufferGetOrCaptureOpenNoLatest(t *testing.T) {
	t.Parallel()
	b := NewPriceBuffer()

	_, ok := b.GetOrCaptureOpen("UNKNOWN", time.Now())
	if ok {
		t.Error("expected no open for a symbol with no ticks")
	}
}

func TestPriceBufferGetOpenReadOnly(t *testing.T) {
	t.Parallel()
	b := NewPriceBuffer()

	start := time.Unix(0, 0)
	if _, ok := b.GetOpen("BTCUSDT", start); ok {
		t.Fatal("expected no open before any capture")
	}

	b.Update("BTCUSDT", decimal.NewFromFloat(50), start)
	if _, ok := b.GetOpen("BTCUSDT", start); ok {
		t.Error("GetOpen must not capture as a side effect")
	}

	b.GetOrCaptureOpen("BTCUSDT", start)
	v, ok := b.GetOpen("BTCUSDT", start)
	if !ok || !v.Equal(decimal.NewFromFloat(50)) {
		t.Errorf("expected GetOpen to see the captured value, got %v ok=%v", v, ok)
	}
}

func TestPriceBufferCleanupOldOpens(t *testing.T) {
	t.Parallel()
	b := NewPriceBuffer()

	old := time.Unix(0, 0)
	recent := old.Add(time.Hour)

	b.Update("BTCUSDT", decimal.NewFromFloat(1), old)
	b.GetOrCaptureOpen("BTCUSDT", old)
	b.Update("BTCUSDT", decimal.NewFromFloat(2), recent)
	b.GetOrCaptureOpen("BTCUSDT", recent)

	b.CleanupOldOpens(recent)

	if _, ok := b.GetOpen("BTCUSDT", old); ok {
		t.Error("expected old open to be cleaned up")
	}
	if _, ok := b.GetOpen("BTCUSDT", recent); !ok {
		t.Error("expected recent open to survive cleanup")
	}
}
