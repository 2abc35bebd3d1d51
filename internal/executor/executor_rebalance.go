package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictarb/internal/session"
	"predictarb/pkg/types"
)

// rebalanceBackoff is the wait before each retry of the rebalance sell:
// 3 attempts in all, the second after 2s and the third after 4s more.
var rebalanceBackoff = []time.Duration{2 * time.Second, 4 * time.Second}

// recordFills writes the position/trade rows, updates session accounting,
// and spawns a rebalance task when the two legs filled unevenly (spec
// §4.10.6).
func (e *Executor) recordFills(ctx context.Context, opp types.Opportunity, yesLeg, noLeg leg, result types.TradeResult) {
	if !result.Executed {
		return
	}

	positionID, err := e.repo.CreatePosition(ctx, opp.MarketID, yesLeg.shares, noLeg.shares, result.Invested, e.cfg.DryRun)
	if err != nil {
		e.log.Error("failed to record position", "market", opp.MarketID, "error", err)
		return
	}

	for _, l := range []leg{yesLeg, noLeg} {
		if l.shares.IsZero() {
			continue
		}
		status := types.OrderFilled
		switch {
		case l.filled.IsZero():
			status = types.OrderNotPlaced
		case l.filled.LessThan(l.shares):
			status = types.OrderPartial
		}
		_, _ = e.repo.RecordTrade(ctx, types.Trade{
			PositionID: positionID, Side: l.side, Action: "buy",
			Price: l.price, Shares: l.shares, OrderID: l.orderID,
			FilledShares: l.filled, OrderStatus: status,
		})
	}

	if err := e.repo.UpdatePositionFills(ctx, positionID, yesLeg.filled, noLeg.filled); err != nil {
		e.log.Error("failed to update position fills", "position", positionID, "error", err)
	}

	e.sess.OpenPosition(session.PositionCache{
		ID: positionID, MarketID: opp.MarketID,
		YesShares: yesLeg.filled, NoShares: noLeg.filled,
		TotalInvested: result.Invested,
	})

	twoSided := yesLeg.shares.GreaterThan(decimal.Zero) && noLeg.shares.GreaterThan(decimal.Zero)
	partiallyFilled := !yesLeg.filled.Equal(yesLeg.shares) || !noLeg.filled.Equal(noLeg.shares)
	if twoSided && partiallyFilled {
		go e.rebalance(context.Background(), positionID, yesLeg, noLeg)
	}
}

// rebalance waits UNFILLED_WAIT_SECS, cancels remaining resting orders,
// re-queries fills, and market-sells the excess side's imbalance. Spec
// §4.10.6: sell amount is min(imbalance, on-chain balance); falls back to
// 98% of imbalance if the position API reports zero; retries at 90% on an
// insufficient-balance failure; 3 attempts with exponential backoff.
func (e *Executor) rebalance(ctx context.Context, positionID uuid.UUID, yesLeg, noLeg leg) {
	select {
	case <-time.After(UnfilledWaitSecs * time.Second):
	case <-ctx.Done():
		return
	}

	e.cancelWithRetries(ctx, &yesLeg)
	e.cancelWithRetries(ctx, &noLeg)
	e.awaitFills(ctx, &yesLeg, &noLeg)

	imbalance := yesLeg.filled.Sub(noLeg.filled)
	if imbalance.IsZero() {
		return
	}

	excessSide, tokenID, amount := types.Yes, yesLeg.tokenID, imbalance
	if imbalance.LessThan(decimal.Zero) {
		excessSide, tokenID, amount = types.No, noLeg.tokenID, imbalance.Neg()
	}

	balance, err := e.placer.PositionBalance(ctx, tokenID)
	sellAmount := amount
	if err == nil && balance.GreaterThan(decimal.Zero) {
		sellAmount = decimal.Min(amount, balance)
	} else {
		sellAmount = amount.Mul(decimal.NewFromFloat(0.98))
	}

	for attempt := 0; attempt < 1+len(rebalanceBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(rebalanceBackoff[attempt-1]):
			case <-ctx.Done():
				return
			}
		}

		_, err := e.placer.PlaceMarketSellFOK(ctx, tokenID, sellAmount)
		if err == nil {
			e.log.Info("rebalance sell succeeded", "position", positionID, "side", excessSide, "amount", sellAmount)
			return
		}
		if isInsufficientBalance(err) {
			sellAmount = amount.Mul(decimal.NewFromFloat(0.90))
		}
		e.log.Warn("rebalance sell attempt failed", "position", positionID, "attempt", attempt+1, "error", err)
	}

	e.log.Error("rebalance sell exhausted all attempts", "position", positionID, "side", excessSide)
}

func isInsufficientBalance(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient") && strings.Contains(msg, "balance")
}
