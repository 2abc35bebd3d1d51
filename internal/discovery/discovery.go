// Package discovery implements the REST market-discovery client. It is the
// normalized-market boundary named but not specified in detail: the core
// only depends on it producing types.Market records with non-empty, distinct
// token ids and an optional types.OrderbookSnapshot per market.
//
// Adapted from the teacher's internal/market/scanner.go: same paginated
// resty polling loop and slug/keyword filter set, generalized from a single
// Gamma-API shape to any venue that can be normalized into a GammaMarket-like
// page, and extended with the asset/timeframe/direction/strike extraction
// that C6 (internal/match) requires on its input markets.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

// GammaMarket is the JSON shape returned by Polymarket's Gamma API. Other
// venues' REST discovery endpoints are adapted into this shape at the
// client boundary before normalization; Kalshi's markets endpoint has an
// analogous set of fields under different names.
type GammaMarket struct {
	ID                    string  `json:"id"`
	Question              string  `json:"question"`
	ConditionID           string  `json:"conditionId"`
	Slug                  string  `json:"slug"`
	Active                bool    `json:"active"`
	Closed                bool    `json:"closed"`
	AcceptingOrders       bool    `json:"acceptingOrders"`
	EnableOrderBook       bool    `json:"enableOrderBook"`
	EndDate               string  `json:"endDate"`
	Liquidity             string  `json:"liquidity"`
	Volume24hr            float64 `json:"volume24hr"`
	ClobTokenIds          string  `json:"clobTokenIds"`
	Spread                float64 `json:"spread"`
	BestBid               float64 `json:"bestBid"`
	BestAsk               float64 `json:"bestAsk"`
}

// Config tunes the discovery client's polling and filtering.
type Config struct {
	GammaBaseURL    string
	PollInterval    time.Duration
	MinLiquidity    float64
	MinVolume24h    float64
	MinSpread       float64
	MaxEndDateDays  int
	ExcludeSlugs    []string
	IncludeSlugs    []string
	IncludeKeywords []string
	ExcludeKeywords []string
}

// Result is one discovery pass: normalized markets and, where the venue's
// listing response carries top-of-book prices, an accompanying snapshot.
type Result struct {
	Markets    []types.Market
	Snapshots  map[string]types.OrderbookSnapshot // keyed by Market.ConditionID
	ScannedAt  time.Time
}

// Client polls a Gamma-shaped REST endpoint and normalizes the response
// into venue-neutral markets.
type Client struct {
	venue      types.Venue
	httpClient *resty.Client
	cfg        Config
	logger     *slog.Logger
	resultCh   chan Result
}

// NewClient builds a discovery client for venue against cfg.GammaBaseURL.
func NewClient(venue types.Venue, cfg Config, logger *slog.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.GammaBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Client{
		venue:      venue,
		httpClient: client,
		cfg:        cfg,
		logger:     logger.With("component", "discovery", "venue", venue),
		resultCh:   make(chan Result, 1),
	}
}

// Results returns the channel callers read normalized discovery passes from.
func (c *Client) Results() <-chan Result {
	return c.resultCh
}

// Run polls on cfg.PollInterval until ctx is cancelled, doing an immediate
// pass on startup.
func (c *Client) Run(ctx context.Context) {
	c.scan(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scan(ctx)
		}
	}
}

func (c *Client) scan(ctx context.Context) {
	raw, err := c.fetchMarkets(ctx)
	if err != nil {
		c.logger.Error("discovery scan failed", "error", err)
		return
	}

	filtered := c.filterMarkets(raw)

	markets := make([]types.Market, 0, len(filtered))
	snapshots := make(map[string]types.OrderbookSnapshot, len(filtered))
	now := time.Now()

	for _, gm := range filtered {
		m, ok := normalizeMarket(c.venue, gm, now)
		if !ok {
			continue
		}
		markets = append(markets, m)
		if snap, ok := snapshotFrom(m, gm, now); ok {
			snapshots[m.ConditionID] = snap
		}
	}

	c.logger.Info("discovery scan complete",
		"total", len(raw), "filtered", len(filtered), "normalized", len(markets))

	result := Result{Markets: markets, Snapshots: snapshots, ScannedAt: now}

	select {
	case c.resultCh <- result:
	default:
		select {
		case <-c.resultCh:
		default:
		}
		c.resultCh <- result
	}
}

func (c *Client) fetchMarkets(ctx context.Context) ([]GammaMarket, error) {
	var all []GammaMarket
	offset := 0
	const limit = 100

	for {
		var page []GammaMarket
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(limit),
				"offset": strconv.Itoa(offset),
				"active": "true",
				"closed": "false",
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetch markets page %d: %w", offset, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("fetch markets: status %d", resp.StatusCode())
		}

		all = append(all, page...)
		if len(page) < limit {
			break
		}
		offset += limit
	}

	return all, nil
}

// filterMarkets applies the same hard filters the teacher's scanner used:
// inactive/closed/no-orderbook, include/exclude slug and keyword lists,
// liquidity/volume/spread floors, end-date window, missing token ids.
func (c *Client) filterMarkets(markets []GammaMarket) []GammaMarket {
	excluded := toLowerSet(c.cfg.ExcludeSlugs)
	includeSlugs := toLowerSet(c.cfg.IncludeSlugs)
	includeKeywords := toLowerSlice(c.cfg.IncludeKeywords)
	excludeKeywords := toLowerSlice(c.cfg.ExcludeKeywords)
	hasIncludeFilter := len(includeSlugs) > 0 || len(includeKeywords) > 0

	now := time.Now()
	maxEnd := now.AddDate(0, 0, c.cfg.MaxEndDateDays)

	var result []GammaMarket
	for _, m := range markets {
		if !m.Active || m.Closed || !m.AcceptingOrders || !m.EnableOrderBook {
			continue
		}

		slugLower := strings.ToLower(m.Slug)
		questionLower := strings.ToLower(m.Question)

		if hasIncludeFilter {
			matched := includeSlugs[slugLower]
			if !matched {
				for _, kw := range includeKeywords {
					if strings.Contains(slugLower, kw) || strings.Contains(questionLower, kw) {
						matched = true
						break
					}
				}
			}
			if !matched {
				continue
			}
		}

		if excluded[slugLower] {
			continue
		}
		excludedByKeyword := false
		for _, kw := range excludeKeywords {
			if strings.Contains(slugLower, kw) || strings.Contains(questionLower, kw) {
				excludedByKeyword = true
				break
			}
		}
		if excludedByKeyword {
			continue
		}

		liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)
		if liquidity < c.cfg.MinLiquidity {
			continue
		}
		if m.Volume24hr < c.cfg.MinVolume24h {
			continue
		}
		if m.Spread < c.cfg.MinSpread {
			continue
		}

		if m.EndDate != "" {
			endDate, err := time.Parse(time.RFC3339, m.EndDate)
			if err != nil {
				continue
			}
			if endDate.Before(now) || endDate.After(maxEnd) {
				continue
			}
		}

		if m.ClobTokenIds == "" {
			continue
		}

		result = append(result, m)
	}

	return result
}

var (
	assetPattern     = regexp.MustCompile(`(?i)\b(BTC|ETH|SOL|XRP|DOGE|BITCOIN|ETHEREUM|SOLANA)\b`)
	strikePattern    = regexp.MustCompile(`\$\s?([\d,]+(?:\.\d+)?)`)
	assetAliases     = map[string]string{"BITCOIN": "BTC", "ETHEREUM": "ETH", "SOLANA": "SOL"}
	fifteenMinWords  = []string{"15 minute", "15-minute", "15m"}
	hourlyWords      = []string{"hourly", "1 hour", "1-hour", "1h "}
	dailyWords       = []string{"daily", "today", "by end of day", "eod"}
)

// normalizeMarket converts a raw Gamma market into the venue-neutral
// Market type, extracting asset/timeframe/direction/strike from its question
// text the way C6's matcher (internal/match) requires on its inputs.
// Returns ok=false when the market lacks distinct, non-empty token ids.
func normalizeMarket(venue types.Venue, gm GammaMarket, now time.Time) (types.Market, bool) {
	yesToken, noToken := extractTokenIDs(gm.ClobTokenIds)
	if yesToken == "" || noToken == "" || yesToken == noToken {
		return types.Market{}, false
	}

	endTime, _ := time.Parse(time.RFC3339, gm.EndDate)
	asset := extractAsset(gm.Question + " " + gm.Slug)
	timeframe := extractTimeframe(gm.Question + " " + gm.Slug)
	direction, kind := extractDirection(gm.Question)
	strike, hasStrike := extractStrike(gm.Question)

	return types.Market{
		ID:           uuid.New(),
		Venue:        venue,
		ConditionID:  gm.ConditionID,
		Kind:         kind,
		Asset:        asset,
		Timeframe:    timeframe,
		YesTokenID:   yesToken,
		NoTokenID:    noToken,
		Name:         gm.Question,
		EndTime:      endTime,
		Active:       gm.Active && !gm.Closed,
		Direction:    direction,
		Strike:       strike,
		HasStrike:    hasStrike,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}, true
}

// snapshotFrom builds a best-effort orderbook snapshot from the listing
// response's top-of-book fields, when the venue supplies them there. Depth
// vectors are left nil; C3/C5 fill those in from a dedicated orderbook feed.
func snapshotFrom(m types.Market, gm GammaMarket, now time.Time) (types.OrderbookSnapshot, bool) {
	if gm.BestBid == 0 && gm.BestAsk == 0 {
		return types.OrderbookSnapshot{}, false
	}
	yesAsk := decimal.NewFromFloat(gm.BestAsk)
	yesBid := decimal.NewFromFloat(gm.BestBid)
	one := decimal.NewFromInt(1)
	return types.OrderbookSnapshot{
		MarketID:   m.ID,
		YesBestBid: yesBid,
		YesBestAsk: yesAsk,
		NoBestBid:  one.Sub(yesAsk),
		NoBestAsk:  one.Sub(yesBid),
		CapturedAt: now,
	}, true
}

func extractTokenIDs(raw string) (string, string) {
	if raw == "" {
		return "", ""
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || len(ids) < 2 {
		return "", ""
	}
	return ids[0], ids[1]
}

func extractAsset(text string) string {
	m := assetPattern.FindString(text)
	if m == "" {
		return ""
	}
	upper := strings.ToUpper(m)
	if alias, ok := assetAliases[upper]; ok {
		return alias
	}
	return upper
}

func extractTimeframe(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, fifteenMinWords):
		return "15m"
	case containsAny(lower, hourlyWords):
		return "1h"
	case containsAny(lower, dailyWords):
		return "daily"
	default:
		return "unknown"
	}
}

// extractDirection classifies a question's resolution direction and shape.
// "Up or down" style questions carry no explicit direction (either side can
// win) and are classified KindUpDown; "above $X" style questions resolve Yes
// only above the strike and are classified KindAbove.
func extractDirection(question string) (types.Direction, types.MarketKind) {
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "above") || strings.Contains(lower, "higher") || strings.Contains(lower, "over "):
		return types.Up, types.KindAbove
	case strings.Contains(lower, "below") || strings.Contains(lower, "lower") || strings.Contains(lower, "under "):
		return types.Down, types.KindAbove
	case strings.Contains(lower, "up or down") || strings.Contains(lower, "up/down"):
		return "", types.KindUpDown
	case strings.Contains(lower, "range") || strings.Contains(lower, "between"):
		return "", types.KindPriceRange
	default:
		return "", types.KindUnknown
	}
}

func extractStrike(question string) (decimal.Decimal, bool) {
	matches := strikePattern.FindStringSubmatch(question)
	if len(matches) < 2 {
		return decimal.Zero, false
	}
	cleaned := strings.ReplaceAll(matches[1], ",", "")
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func toLowerSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = true
		}
	}
	return out
}

func toLowerSlice(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
