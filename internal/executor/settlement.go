package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

// Settlement buffer and retry tuning (spec §4.10.7).
const (
	SettlementBufferSecs    = 60
	MaxResolutionRetriesDry  = 10
	MaxResolutionRetriesLive = 30
	resolutionRateLimit      = 500 * time.Millisecond // max 2 req/s
)

// LivePosition is the settlement tracker's view of an open position.
// Mirrors spec §3's Live Position entity.
type LivePosition struct {
	MarketID          uuid.UUID
	YesTokenID        string
	Side              types.Side
	Shares            decimal.Decimal
	Cost              decimal.Decimal
	EndTime           time.Time
	MarketName        string
	Exited            bool // closed already by the exit manager; not accounted here
	ResolutionRetries int
	LastRetryTime     time.Time
}

// ResolutionCache is the local-first lookup consulted before a venue query.
// Grounded on `common::get_market_resolutions_batch`/`upsert_market_resolution`:
// the repository (internal/repo) backs this with the `market_resolutions` table.
type ResolutionCache interface {
	GetResolution(ctx context.Context, marketID uuid.UUID) (types.Resolution, bool, error)
	PutResolution(ctx context.Context, r types.Resolution) error
}

// Resolver queries a venue directly for a market's winning side when the
// cache has no entry yet.
type Resolver interface {
	QueryResolution(ctx context.Context, yesTokenID string) (side types.Side, resolved bool, err error)
}

// SettleResult is one position's settlement outcome.
type SettleResult struct {
	MarketID   uuid.UUID
	Won        bool
	Payout     decimal.Decimal
	PnL        decimal.Decimal
	ForcedLoss bool // settled by exceeding MAX_RESOLUTION_RETRIES, not an actual resolution
}

// Settler resolves expired positions against cached or live venue data,
// computing P&L per spec §4.10.7. Grounded on
// original_source/src/common/src/executor.rs's DryRunPortfolio::resolve_expired,
// adapted from a single embedded dry-run portfolio to a standalone component
// shared by both the dry-run and live paths.
type Settler struct {
	cache     ResolutionCache
	resolver  Resolver
	dryRun    bool
	log       *slog.Logger
	lastQuery time.Time
}

// NewSettler builds a settlement resolver. dryRun selects the retry cap
// (10 dry-run / 30 live, spec §4.10.7).
func NewSettler(cache ResolutionCache, resolver Resolver, dryRun bool, log *slog.Logger) *Settler {
	return &Settler{cache: cache, resolver: resolver, dryRun: dryRun, log: log.With("component", "settler")}
}

func (s *Settler) maxRetries() int {
	if s.dryRun {
		return MaxResolutionRetriesDry
	}
	return MaxResolutionRetriesLive
}

// SettleExpired checks every position past end_time+60s for resolution,
// returning results for positions that settled (won/lost/force-expired) and
// the still-pending positions (retry count incremented as needed) via the
// stillOpen return.
func (s *Settler) SettleExpired(ctx context.Context, positions []LivePosition, now time.Time) (results []SettleResult, stillOpen []LivePosition) {
	cutoff := now.Add(-SettlementBufferSecs * time.Second)

	for _, pos := range positions {
		if pos.Exited {
			continue
		}
		if pos.EndTime.After(cutoff) {
			stillOpen = append(stillOpen, pos)
			continue
		}

		// Honor the backoff schedule before retrying an unresolved position.
		if pos.ResolutionRetries > 0 {
			wait := backoffFor(pos.ResolutionRetries)
			if now.Before(pos.LastRetryTime.Add(wait)) {
				stillOpen = append(stillOpen, pos)
				continue
			}
		}

		side, resolved, err := s.resolve(ctx, pos)
		if err != nil {
			s.log.Warn("resolution query failed", "market", pos.MarketName, "error", err)
		}

		if !resolved || err != nil {
			pos.ResolutionRetries++
			pos.LastRetryTime = now
			if pos.ResolutionRetries >= s.maxRetries() {
				s.log.Warn("settlement retries exhausted, forcing loss",
					"market", pos.MarketName, "retries", pos.ResolutionRetries)
				results = append(results, SettleResult{
					MarketID: pos.MarketID, Won: false, Payout: decimal.Zero,
					PnL: pos.Cost.Neg(), ForcedLoss: true,
				})
				continue
			}
			stillOpen = append(stillOpen, pos)
			continue
		}

		won := side == pos.Side
		var payout, pnl decimal.Decimal
		if won {
			payout = pos.Shares
			pnl = pos.Shares.Sub(pos.Cost)
		} else {
			payout = decimal.Zero
			pnl = pos.Cost.Neg()
		}

		s.log.Info("position settled", "market", pos.MarketName, "won", won, "pnl", pnl)
		results = append(results, SettleResult{MarketID: pos.MarketID, Won: won, Payout: payout, PnL: pnl})
	}

	return results, stillOpen
}

// resolve checks the local cache first, then rate-limits the venue query to
// at most 2/s (spec §4.10.7).
func (s *Settler) resolve(ctx context.Context, pos LivePosition) (types.Side, bool, error) {
	if cached, ok, err := s.cache.GetResolution(ctx, pos.MarketID); err == nil && ok {
		return cached.WinningSide, true, nil
	}

	if wait := resolutionRateLimit - time.Since(s.lastQuery); wait > 0 {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(wait):
		}
	}
	s.lastQuery = time.Now()

	side, resolved, err := s.resolver.QueryResolution(ctx, pos.YesTokenID)
	if err != nil || !resolved {
		return "", false, err
	}
	if side != types.Yes && side != types.No {
		return "", false, nil
	}

	_ = s.cache.PutResolution(ctx, types.Resolution{
		MarketID: pos.MarketID, WinningSide: side, EndTime: pos.EndTime, ResolvedAt: time.Now(),
	})
	return side, true, nil
}

// backoffFor returns the exponential backoff before retry attempt n,
// min(60*2^retries, 600)s per spec §4.10.7.
func backoffFor(retries int) time.Duration {
	secs := 60 * math.Pow(2, float64(retries))
	if secs > 600 {
		secs = 600
	}
	return time.Duration(secs) * time.Second
}
