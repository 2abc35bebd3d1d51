package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/internal/money"
	"predictarb/pkg/types"
)

// leg is one side of a two-sided spread-arbitrage bet.
type leg struct {
	side    types.Side
	tokenID string
	price   decimal.Decimal
	shares  decimal.Decimal
	orderID string
	filled  decimal.Decimal
	failed  bool
}

// attemptExecution runs the full placement state machine of spec §4.10.5
// for a detected intra-venue spread opportunity, then performs fill
// bookkeeping and conditionally spawns a rebalance (spec §4.10.6).
func (e *Executor) attemptExecution(ctx context.Context, opp types.Opportunity) types.TradeResult {
	if err := e.auth.Ensure(ctx); err != nil {
		return types.Aborted("authentication failed: " + err.Error())
	}

	size, ok := Size(e.cfg.Sizing, e.sess.Available(), opp.YesPrice.Add(opp.NoPrice), e.sess.OpenPositionsCost())
	if !ok {
		return types.Aborted("sizing rejected opportunity")
	}

	yesPrice := money.RoundDown2(opp.YesPrice)
	noPrice := money.RoundDown2(opp.NoPrice)
	yesShares := money.RoundDown2(size)
	noShares := money.RoundDown2(size)

	yesOK := yesShares.Mul(yesPrice).GreaterThanOrEqual(decimal.NewFromInt(1))
	noOK := noShares.Mul(noPrice).GreaterThanOrEqual(decimal.NewFromInt(1))
	switch {
	case yesOK && noOK:
		// both sides trade at full size
	case yesOK:
		noShares = decimal.Zero
		yesShares = money.RoundDown2(yesShares.Div(decimal.NewFromInt(2)))
		if yesShares.Mul(yesPrice).LessThan(decimal.NewFromInt(1)) {
			return types.Aborted("single-sided half-size bet below the $1 minimum order size")
		}
	case noOK:
		yesShares = decimal.Zero
		noShares = money.RoundDown2(noShares.Div(decimal.NewFromInt(2)))
		if noShares.Mul(noPrice).LessThan(decimal.NewFromInt(1)) {
			return types.Aborted("single-sided half-size bet below the $1 minimum order size")
		}
	default:
		return types.Aborted("neither side meets the $1 minimum order size")
	}

	yesLeg := leg{side: types.Yes, tokenID: opp.YesTokenID, price: yesPrice, shares: yesShares}
	noLeg := leg{side: types.No, tokenID: opp.NoTokenID, price: noPrice, shares: noShares}

	sequential, priorityIsYes := e.checkPriceMismatch(ctx, &yesLeg, &noLeg)

	var result types.TradeResult
	if sequential {
		result = e.placeSequential(ctx, opp, &yesLeg, &noLeg, priorityIsYes)
	} else {
		result = e.placeSimultaneous(ctx, opp, &yesLeg, &noLeg)
	}

	e.recordFills(ctx, opp, yesLeg, noLeg, result)
	return result
}

// checkPriceMismatch fetches live best asks and compares them to the
// detection-time prices. If either side's deviation exceeds the configured
// threshold, placement switches to sequential mode with the larger-deviation
// side going first.
func (e *Executor) checkPriceMismatch(ctx context.Context, yesLeg, noLeg *leg) (sequential bool, priorityIsYes bool) {
	if yesLeg.shares.IsZero() || noLeg.shares.IsZero() {
		return false, true
	}

	liveYes, errY := e.placer.BestAsk(ctx, yesLeg.tokenID)
	liveNo, errN := e.placer.BestAsk(ctx, noLeg.tokenID)
	if errY != nil || errN != nil {
		return false, true
	}

	yesDiff := yesLeg.price.Sub(liveYes).Abs()
	noDiff := noLeg.price.Sub(liveNo).Abs()

	if yesDiff.LessThanOrEqual(e.cfg.PriceMismatchThreshold) && noDiff.LessThanOrEqual(e.cfg.PriceMismatchThreshold) {
		return false, true
	}
	return true, yesDiff.GreaterThanOrEqual(noDiff)
}

// placeSimultaneous builds, signs, and posts both legs in parallel. If one
// fails, the other is cancelled with retries; an orphaned order after
// retries is logged at error level (spec's CRITICAL).
func (e *Executor) placeSimultaneous(ctx context.Context, opp types.Opportunity, yesLeg, noLeg *leg) types.TradeResult {
	type placed struct {
		l   *leg
		err error
	}
	results := make(chan placed, 2)

	place := func(l *leg) {
		if l.shares.IsZero() {
			results <- placed{l, nil}
			return
		}
		octx, cancel := context.WithTimeout(ctx, OrderTimeoutSecs*time.Second)
		defer cancel()
		orderID, err := e.placer.PlaceLimitOrder(octx, l.tokenID, l.side, l.price, l.shares)
		l.orderID = orderID
		l.failed = err != nil
		e.auth.NoteResult(err)
		results <- placed{l, err}
	}
	go place(yesLeg)
	go place(noLeg)

	first, second := <-results, <-results
	_ = first
	_ = second

	if yesLeg.failed && noLeg.failed {
		return types.Aborted("both legs failed to place")
	}
	if yesLeg.failed || noLeg.failed {
		surviving := yesLeg
		if yesLeg.failed {
			surviving = noLeg
		}
		e.cancelWithRetries(ctx, surviving)
		return types.Aborted("one leg failed, cancelled the other")
	}

	e.awaitFills(ctx, yesLeg, noLeg)
	return types.ExecutedResult(yesLeg.filled.Mul(yesLeg.price).Add(noLeg.filled.Mul(noLeg.price)), yesLeg.filled, noLeg.filled)
}

// placeSequential implements the priority-side-first algorithm of spec
// §4.10.5 step 2-5, including the recovery paths.
func (e *Executor) placeSequential(ctx context.Context, opp types.Opportunity, yesLeg, noLeg *leg, priorityIsYes bool) types.TradeResult {
	priority, secondary := yesLeg, noLeg
	if !priorityIsYes {
		priority, secondary = noLeg, yesLeg
	}

	if priority.shares.IsZero() {
		priority, secondary = secondary, priority
	}

	octx, cancel := context.WithTimeout(ctx, OrderTimeoutSecs*time.Second)
	orderID, err := e.placer.PlaceLimitOrder(octx, priority.tokenID, priority.side, priority.price, priority.shares)
	cancel()
	e.auth.NoteResult(err)
	if err != nil {
		return types.Aborted("priority leg failed to place: " + err.Error())
	}
	priority.orderID = orderID

	fill := e.pollOrPartial(ctx, priority)
	if fill.IsZero() {
		return types.Aborted("priority leg filled 0 shares")
	}
	priority.filled = fill

	secondSize := money.RoundDown2(decimal.Min(fill, secondary.shares))
	if secondSize.LessThan(decimal.NewFromInt(MinOrderSizeShares)) {
		return e.recoverPriority(ctx, priority)
	}

	sctx, scancel := context.WithTimeout(ctx, OrderTimeoutSecs*time.Second)
	secondOrderID, err := e.placer.PlaceLimitOrder(sctx, secondary.tokenID, secondary.side, secondary.price, secondSize)
	scancel()
	e.auth.NoteResult(err)
	if err != nil {
		recoveryID, recErr := e.placer.PlaceMarketSellFOK(ctx, priority.tokenID, priority.filled)
		status := fmt.Sprintf("second leg failed, market-FOK recovery sell %s", recoveryOutcome(recoveryID, recErr))
		return types.Aborted(status)
	}
	secondary.orderID = secondOrderID
	secondary.shares = secondSize
	secondary.filled = e.pollOrPartial(ctx, secondary)

	return types.ExecutedResult(
		priority.filled.Mul(priority.price).Add(secondary.filled.Mul(secondary.price)),
		yesLeg.filled, noLeg.filled,
	)
}

// recoverPriority places a GTC sell of the priority leg's acquired shares
// when the secondary leg's adjusted size would fall below the venue minimum.
func (e *Executor) recoverPriority(ctx context.Context, priority *leg) types.TradeResult {
	recoveryPrice := decimal.Max(
		decimal.NewFromInt(1).Sub(priority.price).Sub(decimal.NewFromFloat(0.01)),
		decimal.NewFromFloat(0.01),
	)
	recoveryID, err := e.placer.PlaceGTCSell(ctx, priority.tokenID, recoveryPrice, priority.filled)
	if err != nil {
		e.log.Error("MANUAL INTERVENTION REQUIRED: recovery sell placement failed",
			"token", priority.tokenID, "shares", priority.filled, "error", err)
		return types.Aborted("second leg below minimum, recovery sell FAILED")
	}
	_ = recoveryID
	return types.Aborted("second leg below minimum, recovery sell placed")
}

func recoveryOutcome(orderID string, err error) string {
	if err != nil {
		return "FAILED: " + err.Error()
	}
	if orderID == "" {
		return "FAILED: no order id returned"
	}
	return "SUCCEEDED"
}

// pollOrPartial polls the order's fill size at the configured interval until
// either fully filled or the poll timeout elapses, at which point it cancels
// with retries and returns whatever filled before that.
func (e *Executor) pollOrPartial(ctx context.Context, l *leg) decimal.Decimal {
	deadline := time.Now().Add(e.cfg.SequentialPollTimeout)
	ticker := time.NewTicker(e.cfg.SequentialPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		filled, err := e.placer.QueryFilledSize(ctx, l.orderID)
		if err == nil {
			if filled.GreaterThanOrEqual(l.shares) {
				return l.shares
			}
			if filled.GreaterThan(decimal.Zero) {
				// Partial but still resting; keep polling until timeout,
				// spec §4.10.5 step 2 allows proceeding on eventual timeout
				// with whatever is filled then.
			}
		}
		select {
		case <-ctx.Done():
			return decimal.Zero
		case <-ticker.C:
		}
	}

	e.cancelWithRetries(ctx, l)
	filled, err := e.placer.QueryFilledSize(ctx, l.orderID)
	if err != nil {
		return decimal.Zero
	}
	return filled
}

func (e *Executor) awaitFills(ctx context.Context, yesLeg, noLeg *leg) {
	for _, l := range []*leg{yesLeg, noLeg} {
		if l.orderID == "" {
			continue
		}
		if filled, err := e.placer.QueryFilledSize(ctx, l.orderID); err == nil {
			l.filled = filled
		}
	}
}

// cancelWithRetries attempts to cancel l's resting order up to CancelRetries
// times, spaced CancelRetryDelayMs apart. An order still uncancelled after
// all retries is logged as an orphan (spec's CRITICAL).
func (e *Executor) cancelWithRetries(ctx context.Context, l *leg) {
	if l.orderID == "" {
		return
	}
	for attempt := 0; attempt < CancelRetries; attempt++ {
		if err := e.placer.CancelOrder(ctx, l.orderID); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(CancelRetryDelayMs * time.Millisecond):
		}
	}
	e.log.Error("orphan order: cancel failed after all retries", "order_id", l.orderID, "token", l.tokenID)
}
