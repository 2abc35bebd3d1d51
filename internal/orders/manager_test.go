package orders

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

type fakeVenue struct {
	cancelErr  error
	filledSize decimal.Decimal
	queryErr   error
}

func (f *fakeVenue) CancelOrder(ctx context.Context, orderID string) error {
	return f.cancelErr
}

func (f *fakeVenue) QueryFilledSize(ctx context.Context, orderID string) (decimal.Decimal, error) {
	return f.filledSize, f.queryErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerHasPendingOrder(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeVenue{}, 3600, testLogger())
	marketID := uuid.New()

	if m.HasPendingOrder(marketID, "YES") {
		t.Fatal("expected no pending order initially")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ok := m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "tok1", decimal.NewFromInt(10), decimal.NewFromFloat(0.5))
	if !ok {
		t.Fatal("expected TrackOrder to succeed")
	}

	if !m.HasPendingOrder(marketID, "YES") {
		t.Error("expected pending order on YES")
	}
	if m.HasPendingOrder(marketID, "NO") {
		t.Error("expected no pending order on NO")
	}
	if m.PendingCount() != 1 {
		t.Errorf("pending count = %d, want 1", m.PendingCount())
	}
}

func TestManagerDuplicateTrackRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeVenue{}, 3600, testLogger())
	marketID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "", decimal.Zero, decimal.Zero)
	if !first {
		t.Fatal("expected first track to succeed")
	}
	second := m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "", decimal.Zero, decimal.Zero)
	if second {
		t.Error("expected duplicate track to be rejected")
	}
	if m.PendingCount() != 1 {
		t.Errorf("pending count = %d, want 1 after duplicate", m.PendingCount())
	}
}

func TestManagerAutoCancelReportsUnfilled(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeVenue{filledSize: decimal.Zero}, 0, testLogger())
	m.cancelTimeoutSecs = 0 // fire immediately for the test

	marketID := uuid.New()
	ctx := context.Background()
	m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "", decimal.NewFromInt(5), decimal.NewFromFloat(0.5))

	select {
	case res := <-m.Results():
		if !res.Success || res.WasFilled {
			t.Errorf("expected a clean cancel, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel result")
	}
	if m.HasPendingOrder(marketID, "YES") {
		t.Error("expected order removed from pending after cancel result")
	}
}

func TestManagerAutoCancelReportsFilled(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeVenue{filledSize: decimal.NewFromInt(10)}, 0, testLogger())
	m.cancelTimeoutSecs = 0

	marketID := uuid.New()
	ctx := context.Background()
	m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "", decimal.NewFromInt(10), decimal.NewFromFloat(0.5))

	select {
	case res := <-m.Results():
		if !res.WasFilled || !res.FilledSize.Equal(decimal.NewFromInt(10)) {
			t.Errorf("expected a filled result with size 10, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel result")
	}
}

func TestManagerAutoCancelFallsBackToErrorHeuristic(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeVenue{
		cancelErr: errors.New("order not found"),
		queryErr:  errors.New("query failed"),
	}, 0, testLogger())
	m.cancelTimeoutSecs = 0

	marketID := uuid.New()
	ctx := context.Background()
	m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "", decimal.NewFromInt(5), decimal.NewFromFloat(0.5))

	select {
	case res := <-m.Results():
		if !res.WasFilled {
			t.Errorf("expected heuristic to classify as filled, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel result")
	}
}

func TestManagerCancelAllPendingClearsState(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeVenue{}, 3600, testLogger())
	marketID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.TrackOrder(ctx, "order1", marketID, "Test Market", "YES", "", decimal.Zero, decimal.Zero)
	m.TrackOrder(ctx, "order2", marketID, "Test Market", "NO", "", decimal.Zero, decimal.Zero)

	m.CancelAllPending(context.Background())
	if m.PendingCount() != 0 {
		t.Errorf("pending count = %d, want 0 after CancelAllPending", m.PendingCount())
	}
}
