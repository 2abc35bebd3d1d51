package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClampBoundsValue(t *testing.T) {
	t.Parallel()
	lo, hi := decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.99)
	if !Clamp(decimal.NewFromFloat(-0.5), lo, hi).Equal(lo) {
		t.Error("expected clamp to lower bound")
	}
	if !Clamp(decimal.NewFromFloat(1.5), lo, hi).Equal(hi) {
		t.Error("expected clamp to upper bound")
	}
	mid := decimal.NewFromFloat(0.5)
	if !Clamp(mid, lo, hi).Equal(mid) {
		t.Error("expected value unchanged within bounds")
	}
}

func TestRoundDown2TruncatesWithoutRounding(t *testing.T) {
	t.Parallel()
	got := RoundDown2(decimal.RequireFromString("0.4567"))
	if !got.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("got %v, want 0.45", got)
	}
}

func TestRoundUp2CeilsToNextCent(t *testing.T) {
	t.Parallel()
	got := RoundUp2(decimal.RequireFromString("0.4512"))
	if !got.Equal(decimal.RequireFromString("0.46")) {
		t.Errorf("got %v, want 0.46", got)
	}
	exact := RoundUp2(decimal.RequireFromString("0.45"))
	if !exact.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("got %v, want 0.45 unchanged on an exact value", exact)
	}
}
