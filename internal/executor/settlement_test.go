package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

type fakeCache struct {
	entries map[uuid.UUID]types.Resolution
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[uuid.UUID]types.Resolution{}} }

func (c *fakeCache) GetResolution(_ context.Context, marketID uuid.UUID) (types.Resolution, bool, error) {
	r, ok := c.entries[marketID]
	return r, ok, nil
}

func (c *fakeCache) PutResolution(_ context.Context, r types.Resolution) error {
	c.entries[r.MarketID] = r
	return nil
}

type fakeResolver struct {
	side     types.Side
	resolved bool
	err      error
}

func (f *fakeResolver) QueryResolution(_ context.Context, _ string) (types.Side, bool, error) {
	return f.side, f.resolved, f.err
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSettlerWinUsesCachedResolution(t *testing.T) {
	t.Parallel()
	cache := newFakeCache()
	marketID := uuid.New()
	cache.entries[marketID] = types.Resolution{MarketID: marketID, WinningSide: types.Yes}

	s := NewSettler(cache, &fakeResolver{}, true, testLogger())
	pos := LivePosition{
		MarketID: marketID, Side: types.Yes,
		Shares: decimal.NewFromInt(10), Cost: decimal.NewFromInt(6),
		EndTime: time.Now().Add(-2 * time.Minute),
	}

	results, stillOpen := s.SettleExpired(context.Background(), []LivePosition{pos}, time.Now())
	if len(stillOpen) != 0 {
		t.Fatalf("expected no still-open positions, got %d", len(stillOpen))
	}
	if len(results) != 1 || !results[0].Won {
		t.Fatalf("expected a win result, got %+v", results)
	}
	if !results[0].PnL.Equal(decimal.NewFromInt(4)) {
		t.Errorf("pnl = %v, want 4", results[0].PnL)
	}
}

func TestSettlerLossWhenSideDoesNotMatch(t *testing.T) {
	t.Parallel()
	cache := newFakeCache()
	s := NewSettler(cache, &fakeResolver{side: types.No, resolved: true}, true, testLogger())
	pos := LivePosition{
		MarketID: uuid.New(), Side: types.Yes,
		Shares: decimal.NewFromInt(10), Cost: decimal.NewFromInt(6),
		EndTime: time.Now().Add(-2 * time.Minute),
	}

	results, _ := s.SettleExpired(context.Background(), []LivePosition{pos}, time.Now())
	if len(results) != 1 || results[0].Won {
		t.Fatalf("expected a loss result, got %+v", results)
	}
	if !results[0].PnL.Equal(decimal.NewFromInt(-6)) {
		t.Errorf("pnl = %v, want -6", results[0].PnL)
	}
}

func TestSettlerNotYetExpiredStaysOpen(t *testing.T) {
	t.Parallel()
	s := NewSettler(newFakeCache(), &fakeResolver{}, true, testLogger())
	pos := LivePosition{MarketID: uuid.New(), EndTime: time.Now().Add(time.Hour)}

	results, stillOpen := s.SettleExpired(context.Background(), []LivePosition{pos}, time.Now())
	if len(results) != 0 || len(stillOpen) != 1 {
		t.Fatalf("expected position untouched before expiry, got results=%+v open=%+v", results, stillOpen)
	}
}

func TestSettlerUnresolvedForcesLossAfterMaxRetries(t *testing.T) {
	t.Parallel()
	s := NewSettler(newFakeCache(), &fakeResolver{resolved: false}, true, testLogger())
	pos := LivePosition{
		MarketID: uuid.New(), Cost: decimal.NewFromInt(5),
		EndTime: time.Now().Add(-2 * time.Minute), ResolutionRetries: MaxResolutionRetriesDry - 1,
		LastRetryTime: time.Now().Add(-20 * time.Minute),
	}

	results, stillOpen := s.SettleExpired(context.Background(), []LivePosition{pos}, time.Now())
	if len(stillOpen) != 0 {
		t.Fatalf("expected position removed once retries exhausted, got %+v", stillOpen)
	}
	if len(results) != 1 || !results[0].ForcedLoss || results[0].Won {
		t.Fatalf("expected forced loss, got %+v", results)
	}
}

func TestSettlerExitedPositionsAreSkipped(t *testing.T) {
	t.Parallel()
	s := NewSettler(newFakeCache(), &fakeResolver{side: types.Yes, resolved: true}, true, testLogger())
	pos := LivePosition{MarketID: uuid.New(), Exited: true, EndTime: time.Now().Add(-time.Hour)}

	results, stillOpen := s.SettleExpired(context.Background(), []LivePosition{pos}, time.Now())
	if len(results) != 0 || len(stillOpen) != 0 {
		t.Fatalf("expected exited position to be dropped entirely, got results=%+v open=%+v", results, stillOpen)
	}
}

func TestBackoffForCapsAt600Seconds(t *testing.T) {
	t.Parallel()
	if got := backoffFor(0); got != 60*time.Second {
		t.Errorf("backoffFor(0) = %v, want 60s", got)
	}
	if got := backoffFor(10); got != 600*time.Second {
		t.Errorf("backoffFor(10) = %v, want capped at 600s", got)
	}
}
