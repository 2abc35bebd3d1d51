// Package match implements the Entity Matcher (C6): extraction of a
// unified (asset, timeframe, direction, end_time, strike) view from a
// market and weighted-and-normalized scoring of candidate pairs. Ported
// near 1:1 from original_source/src/cross-platform-arb/src/event_matcher.rs
// — same weights, same family-equivalence tables, same linear end-time
// decay, same conditionally-accumulated denominator for the price-target
// weight.
package match

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

// Config holds the matcher's tunables, defaulted to the values confirmed
// from the original implementation.
type Config struct {
	MinConfidence     float64
	TimeTolerance15m  time.Duration
	TimeTolerance1h   time.Duration
	TimeToleranceDaily time.Duration
	PriceTolerancePct float64
}

// DefaultConfig returns the original implementation's defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.90,
		TimeTolerance15m:   5 * time.Minute,
		TimeTolerance1h:    10 * time.Minute,
		TimeToleranceDaily: time.Hour,
		PriceTolerancePct:  0.01,
	}
}

var shortTermFamily = map[string]bool{"5m": true, "15m": true, "intraday": true}
var hourlyFamily = map[string]bool{"1h": true, "hourly": true}
var dailyFamily = map[string]bool{"daily": true, "24h": true, "eod": true}

var bullishFamily = map[string]bool{"up": true, "above": true, "higher": true, "yes": true}
var bearishFamily = map[string]bool{"down": true, "below": true, "lower": true, "no": true}

// Match is a scored pairing of two markets across venues.
type Match struct {
	A          types.Market
	B          types.Market
	Score      float64
	Reason     string
}

// ScoreMatch computes the weighted-and-normalized confidence score for
// pairing a and b. Asset mismatch is a hard filter returning 0. The
// denominator accumulates only the weights that were actually scored: the
// strike-price weight (0.10) is included in the denominator only when both
// markets carry a strike, matching the original's conditional max_score.
func ScoreMatch(a, b types.Market, cfg Config) (float64, string) {
	var raw, maxScore float64
	var reasons []string

	// asset: 0.30, required — mismatch is a hard filter on the raw score,
	// not just the normalized one, matching score_match's early return
	// before any other weight accumulates.
	maxScore += 0.30
	if !sameAsset(a.Asset, b.Asset) {
		return 0, "asset mismatch"
	}
	raw += 0.30

	// timeframe: 0.20
	maxScore += 0.20
	switch {
	case a.Timeframe == b.Timeframe:
		raw += 0.20
		reasons = append(reasons, "timeframe exact")
	case compatibleTimeframe(a.Timeframe, b.Timeframe):
		raw += 0.10
		reasons = append(reasons, "timeframe family")
	}

	// direction: 0.20
	maxScore += 0.20
	dirScore, dirReason := scoreDirection(a.Direction, b.Direction)
	raw += dirScore
	reasons = append(reasons, dirReason)

	// end time: 0.30, linear decay to the timeframe's tolerance
	maxScore += 0.30
	tolerance := toleranceFor(a.Timeframe)
	diff := absDuration(a.EndTime.Sub(b.EndTime))
	if diff <= tolerance {
		frac := 1.0
		if tolerance > 0 {
			frac = 1.0 - float64(diff)/float64(tolerance)
		}
		raw += 0.30 * frac
		reasons = append(reasons, fmt.Sprintf("end_time within %s", diff))
	}

	// strike price: 0.10, only scored (and only counted in the denominator)
	// if both markets carry one.
	if a.HasStrike && b.HasStrike {
		maxScore += 0.10
		pctDiff := pctDifference(a.Strike, b.Strike)
		switch {
		case pctDiff <= cfg.PriceTolerancePct:
			raw += 0.10
			reasons = append(reasons, "strike within 1%")
		case pctDiff <= 2*cfg.PriceTolerancePct:
			raw += 0.05
			reasons = append(reasons, "strike within 2%")
		}
	}

	if maxScore == 0 {
		return 0, "no comparable features"
	}
	return raw / maxScore, joinReasons(reasons)
}

func sameAsset(a, b string) bool { return a != "" && a == b }

func compatibleTimeframe(a, b string) bool {
	for _, fam := range []map[string]bool{shortTermFamily, hourlyFamily, dailyFamily} {
		if fam[a] && fam[b] {
			return true
		}
	}
	return false
}

func scoreDirection(a, b types.Direction) (float64, string) {
	as, bs := string(a), string(b)
	switch {
	case as == "" && bs == "":
		return 0.10, "direction both unknown"
	case as == "" || bs == "":
		known := as
		if known == "" {
			known = bs
		}
		if known == "up" || known == "down" || known == "above" || known == "below" {
			return 0.15, "direction one unknown"
		}
		return 0, "direction one unknown, unrecognized"
	case as == bs:
		return 0.20, "direction exact"
	case (bullishFamily[as] && bullishFamily[bs]) || (bearishFamily[as] && bearishFamily[bs]):
		return 0.15, "direction equivalent"
	default:
		return 0, "direction mismatch"
	}
}

func toleranceFor(timeframe string) time.Duration {
	switch {
	case shortTermFamily[timeframe]:
		return 5 * time.Minute
	case hourlyFamily[timeframe]:
		return 10 * time.Minute
	case dailyFamily[timeframe]:
		return time.Hour
	default:
		return 10 * time.Minute
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func pctDifference(a, b decimal.Decimal) float64 {
	if a.IsZero() {
		return 1
	}
	diff := a.Sub(b).Abs().Div(a)
	f, _ := diff.Float64()
	return f
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

// MatchMarkets greedily pairs each market in left with at most one market
// in right: for each left entity, the highest-scoring eligible (score >=
// cfg.MinConfidence) counterpart in right is chosen. This is intentionally
// a greedy best-match-per-left-entity algorithm, not a bipartite-optimal
// assignment, matching the original implementation and spec §4.6 ("each
// market on one side is paired with at most one counterpart — the
// highest-scoring eligible match").
func MatchMarkets(left, right []types.Market, cfg Config) []Match {
	used := make(map[int]bool, len(right))
	matches := make([]Match, 0, len(left))

	for _, l := range left {
		bestIdx := -1
		bestScore := 0.0
		bestReason := ""
		for j, r := range right {
			if used[j] {
				continue
			}
			score, reason := ScoreMatch(l, r, cfg)
			if score > bestScore {
				bestScore, bestIdx, bestReason = score, j, reason
			}
		}
		if bestIdx >= 0 && bestScore >= cfg.MinConfidence {
			used[bestIdx] = true
			matches = append(matches, Match{A: l, B: right[bestIdx], Score: bestScore, Reason: bestReason})
		}
	}
	return matches
}
