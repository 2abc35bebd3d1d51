package book

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"predictarb/internal/core"
	"predictarb/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lvl(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: d(price), Size: d(size)}
}

func TestBookBestBidAskFromSnapshot(t *testing.T) {
	t.Parallel()
	b := New("m1", false)

	b.ApplySnapshot(
		[]types.PriceLevel{lvl("0.48", "10"), lvl("0.49", "5")}, // yes bids
		[]types.PriceLevel{lvl("0.52", "10"), lvl("0.51", "5")}, // yes asks
		nil, nil,
		1,
	)

	bid, ok := b.BestBid(types.Yes)
	if !ok || !bid.Equal(d("0.49")) {
		t.Fatalf("best bid = %v ok=%v, want 0.49", bid, ok)
	}
	ask, ok := b.BestAsk(types.Yes)
	if !ok || !ask.Equal(d("0.51")) {
		t.Fatalf("best ask = %v ok=%v, want 0.51", ask, ok)
	}
	if bid.GreaterThanOrEqual(ask) {
		t.Errorf("bid %v >= ask %v", bid, ask)
	}
}

func TestBookEmptySideReturnsNone(t *testing.T) {
	t.Parallel()
	b := New("m1", false)
	b.ApplySnapshot(nil, nil, nil, nil, 1)

	if _, ok := b.BestBid(types.Yes); ok {
		t.Error("expected no best bid on an empty book")
	}
	if _, ok := b.BestAsk(types.Yes); ok {
		t.Error("expected no best ask on an empty book")
	}
}

func TestBookDeltaSequenceRegressionDropped(t *testing.T) {
	t.Parallel()
	b := New("m1", false)
	b.ApplySnapshot([]types.PriceLevel{lvl("0.49", "5")}, nil, nil, nil, 10)

	err := b.ApplyDelta(types.Yes, true, d("0.50"), d("3"), 5)
	if !errors.Is(err, core.ErrSeqRegression) {
		t.Fatalf("expected ErrSeqRegression, got %v", err)
	}

	// the stale delta must not have been applied
	if _, ok := b.BestBid(types.Yes); !ok {
		t.Fatal("expected the snapshot's bid to remain")
	}
	bid, _ := b.BestBid(types.Yes)
	if !bid.Equal(d("0.49")) {
		t.Errorf("bid changed despite dropped delta: got %v", bid)
	}
}

func TestBookDeltaAppliesAndRemovesExhaustedLevel(t *testing.T) {
	t.Parallel()
	b := New("m1", false)
	b.ApplySnapshot([]types.PriceLevel{lvl("0.49", "5")}, nil, nil, nil, 1)

	if err := b.ApplyDelta(types.Yes, true, d("0.49"), d("-5"), 2); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if _, ok := b.BestBid(types.Yes); ok {
		t.Error("expected level to be removed once size reaches zero")
	}
}

func TestBookDeltaMonotonicSequenceAccepted(t *testing.T) {
	t.Parallel()
	b := New("m1", false)
	b.ApplySnapshot(nil, nil, nil, nil, 1)

	if err := b.ApplyDelta(types.Yes, false, d("0.55"), d("10"), 2); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if err := b.ApplyDelta(types.Yes, false, d("0.54"), d("10"), 3); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	ask, ok := b.BestAsk(types.Yes)
	if !ok || !ask.Equal(d("0.54")) {
		t.Fatalf("best ask = %v ok=%v, want 0.54", ask, ok)
	}
}

func TestBookSingleSidedDerivesOppositeAsk(t *testing.T) {
	t.Parallel()
	b := New("m1", true)
	// Kalshi-style: only bids are published directly.
	b.ApplySnapshot(
		[]types.PriceLevel{lvl("0.40", "10")}, nil,
		[]types.PriceLevel{lvl("0.55", "10")}, nil,
		1,
	)

	yesAsk, ok := b.BestAsk(types.Yes)
	if !ok {
		t.Fatal("expected a derived YES ask")
	}
	// best_ask_YES = 1 - best_bid_NO = 1 - 0.55 = 0.45
	if !yesAsk.Equal(d("0.45")) {
		t.Errorf("derived YES ask = %v, want 0.45", yesAsk)
	}

	noAsk, ok := b.BestAsk(types.No)
	if !ok {
		t.Fatal("expected a derived NO ask")
	}
	// best_ask_NO = 1 - best_bid_YES = 1 - 0.40 = 0.60
	if !noAsk.Equal(d("0.60")) {
		t.Errorf("derived NO ask = %v, want 0.60", noAsk)
	}
}

func TestBookDepthSortedBestFirst(t *testing.T) {
	t.Parallel()
	b := New("m1", false)
	b.ApplySnapshot(nil, []types.PriceLevel{lvl("0.55", "1"), lvl("0.50", "1"), lvl("0.52", "1")}, nil, nil, 1)

	depth := b.Depth(types.Yes, false)
	if len(depth) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(depth))
	}
	if !depth[0].Price.Equal(d("0.50")) || !depth[1].Price.Equal(d("0.52")) || !depth[2].Price.Equal(d("0.55")) {
		t.Errorf("asks not sorted ascending: %+v", depth)
	}
}
