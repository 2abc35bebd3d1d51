package app

import (
	"testing"

	"github.com/shopspring/decimal"

	"predictarb/internal/session"
)

func TestDominantSideYes(t *testing.T) {
	t.Parallel()
	pos := session.PositionCache{YesShares: decimal.NewFromInt(10), NoShares: decimal.NewFromInt(3)}
	if side := dominantSide(pos); side != "YES" {
		t.Errorf("side = %q, want YES", side)
	}
	if !dominantShares(pos).Equal(decimal.NewFromInt(10)) {
		t.Errorf("shares = %v, want 10", dominantShares(pos))
	}
}

func TestDominantSideNo(t *testing.T) {
	t.Parallel()
	pos := session.PositionCache{YesShares: decimal.NewFromInt(2), NoShares: decimal.NewFromInt(8)}
	if side := dominantSide(pos); side != "NO" {
		t.Errorf("side = %q, want NO", side)
	}
}

func TestDominantSideBalancedIsUnset(t *testing.T) {
	t.Parallel()
	pos := session.PositionCache{YesShares: decimal.NewFromInt(5), NoShares: decimal.NewFromInt(5)}
	if side := dominantSide(pos); side != "" {
		t.Errorf("side = %q, want empty for a balanced position", side)
	}
}
