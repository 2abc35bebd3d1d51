package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSizeScenario1FromSpecWorkedExample(t *testing.T) {
	t.Parallel()
	cfg := SizingConfig{
		BasePosition:       decimal.NewFromInt(10),
		MaxPosition:        decimal.NewFromInt(20),
		LiquidityThreshold: decimal.NewFromInt(50),
		MaxTotalExposure:   decimal.NewFromInt(1000),
	}
	size, ok := Size(cfg, decimal.NewFromInt(100), decimal.NewFromInt(60), decimal.Zero)
	if !ok {
		t.Fatal("expected sizing to accept the opportunity")
	}
	if !size.Equal(decimal.NewFromInt(20)) {
		t.Errorf("size = %v, want 20", size)
	}
}

func TestSizeRejectsBelowBase(t *testing.T) {
	t.Parallel()
	cfg := SizingConfig{
		BasePosition:       decimal.NewFromInt(10),
		MaxPosition:        decimal.NewFromInt(20),
		LiquidityThreshold: decimal.NewFromInt(50),
		MaxTotalExposure:   decimal.NewFromInt(1000),
	}
	_, ok := Size(cfg, decimal.NewFromInt(5), decimal.NewFromInt(60), decimal.Zero)
	if ok {
		t.Error("expected sizing to reject an available balance below base")
	}
}

func TestSizeRejectsExceedingMaxExposure(t *testing.T) {
	t.Parallel()
	cfg := SizingConfig{
		BasePosition:       decimal.NewFromInt(10),
		MaxPosition:        decimal.NewFromInt(20),
		LiquidityThreshold: decimal.NewFromInt(50),
		MaxTotalExposure:   decimal.NewFromInt(15),
	}
	_, ok := Size(cfg, decimal.NewFromInt(100), decimal.NewFromInt(60), decimal.NewFromInt(10))
	if ok {
		t.Error("expected sizing to reject once max exposure would be exceeded")
	}
}

type fakeAuthenticator struct {
	calls   int
	authErr error
}

func (f *fakeAuthenticator) Authenticate(context.Context) error { f.calls++; return f.authErr }
func (f *fakeAuthenticator) IsAuthError(err error) bool         { return errors.Is(err, errAuthClass) }

var errAuthClass = errors.New("auth class failure")

func TestAuthCacheReusesAfterFirstAuthenticate(t *testing.T) {
	t.Parallel()
	fa := &fakeAuthenticator{}
	c := NewAuthCache(fa, testLogger())

	if err := c.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := c.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if fa.calls != 1 {
		t.Errorf("authenticate called %d times, want 1", fa.calls)
	}
	if c.HitRatio() != 0.5 {
		t.Errorf("hit ratio = %v, want 0.5", c.HitRatio())
	}
}

func TestAuthCacheInvalidatesOnAuthClassFailure(t *testing.T) {
	t.Parallel()
	fa := &fakeAuthenticator{}
	c := NewAuthCache(fa, testLogger())
	_ = c.Ensure(context.Background())

	c.NoteResult(errAuthClass)
	_ = c.Ensure(context.Background())
	if fa.calls != 2 {
		t.Errorf("authenticate called %d times after invalidation, want 2", fa.calls)
	}
}

type fakeWarmer struct{ calls int }

func (f *fakeWarmer) WarmToken(context.Context, string) (TickInfo, error) {
	f.calls++
	return TickInfo{TickSize: decimal.NewFromFloat(0.01), FeeRateBps: 0}, nil
}

func TestSDKCacheWarmIncrementalSkipsAlreadyWarmed(t *testing.T) {
	t.Parallel()
	fw := &fakeWarmer{}
	c := NewSDKCache(fw, testLogger())

	c.WarmIncremental(context.Background(), []string{"a", "b"})
	c.WarmIncremental(context.Background(), []string{"a", "b", "c"})

	if fw.calls != 3 {
		t.Errorf("warmer called %d times, want 3 (a, b once each, c once)", fw.calls)
	}
	if _, ok := c.Lookup("c"); !ok {
		t.Error("expected c to be warmed")
	}
}
