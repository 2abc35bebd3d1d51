package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/buffer"
	"predictarb/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFlipDetectorScenario3WithPriorConfirmedDirection(t *testing.T) {
	t.Parallel()
	// spec §8 scenario 3: open=100, ticks 99,101,102,103.
	prices := buffer.NewPriceBuffer()
	prices.Update("BTCUSDT", d("100"), time.Unix(0, 0))

	fd := NewFlipDetector(prices)
	fd.Track("m1", "BTCUSDT", time.Unix(0, 0))
	fd.SeedConfirmedDirection("m1", types.Down)

	if _, ok := fd.OnTick("m1", d("99")); ok {
		t.Error("no emit expected after first tick")
	}
	if _, ok := fd.OnTick("m1", d("101")); ok {
		t.Error("no emit expected on direction-change reset tick")
	}
	if _, ok := fd.OnTick("m1", d("102")); ok {
		t.Error("no emit expected at count=2")
	}
	sig, ok := fd.OnTick("m1", d("103"))
	if !ok {
		t.Fatal("expected a flip emission at count=3 with a changed confirmed direction")
	}
	if sig.Type != FlipDownToUp || sig.Side != types.Yes {
		t.Errorf("got %+v, want DownToUp/Yes", sig)
	}
}

func TestFlipDetectorNoEmitWithoutPriorConfirmedDirection(t *testing.T) {
	t.Parallel()
	prices := buffer.NewPriceBuffer()
	prices.Update("BTCUSDT", d("100"), time.Unix(0, 0))

	fd := NewFlipDetector(prices)
	fd.Track("m1", "BTCUSDT", time.Unix(0, 0))

	fd.OnTick("m1", d("99"))
	fd.OnTick("m1", d("101"))
	fd.OnTick("m1", d("102"))
	if _, ok := fd.OnTick("m1", d("103")); ok {
		t.Error("initial confirmation must not emit")
	}
}

func TestFlipDetectorHasTradedLatch(t *testing.T) {
	t.Parallel()
	prices := buffer.NewPriceBuffer()
	prices.Update("BTCUSDT", d("100"), time.Unix(0, 0))

	fd := NewFlipDetector(prices)
	fd.Track("m1", "BTCUSDT", time.Unix(0, 0))
	fd.SeedConfirmedDirection("m1", types.Down)
	fd.MarkTraded("m1")

	fd.OnTick("m1", d("101"))
	fd.OnTick("m1", d("102"))
	if _, ok := fd.OnTick("m1", d("103")); ok {
		t.Error("a traded market must never emit again")
	}
}

func TestFlipDetectorDirectionChangeResetsCount(t *testing.T) {
	t.Parallel()
	prices := buffer.NewPriceBuffer()
	prices.Update("BTCUSDT", d("100"), time.Unix(0, 0))

	fd := NewFlipDetector(prices)
	fd.Track("m1", "BTCUSDT", time.Unix(0, 0))
	fd.SeedConfirmedDirection("m1", types.Up)

	fd.OnTick("m1", d("99")) // down, count=1
	fd.OnTick("m1", d("99")) // down, count=2
	fd.OnTick("m1", d("101")) // up, resets count=1
	if _, ok := fd.OnTick("m1", d("99")); ok { // down, count=1 again
		t.Error("expected no emit: count was reset by the direction change")
	}
}
