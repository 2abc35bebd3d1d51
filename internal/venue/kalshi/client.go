package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"predictarb/internal/executor"
	"predictarb/pkg/types"
)

// Config bundles the tunables a Client needs. Wiring from environment
// variables happens in internal/config.
type Config struct {
	BaseURL string
	DryRun  bool
	Auth    AuthConfig
}

// Client is the Kalshi REST API client. Built on resty, matching
// internal/venue/polymarket's client rather than the raw net/http style of
// its grounding reference, so both venue packages share one HTTP
// convention inside this module.
type Client struct {
	http   *resty.Client
	auth   *Auth
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with retry and RSA-PSS auth.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	auth, err := NewAuth(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("build auth: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		dryRun: cfg.DryRun,
		logger: logger.With("component", "kalshi_client"),
	}, nil
}

// Authenticate is a no-op: Kalshi's RSA-PSS signature needs no derived
// session key, unlike Polymarket's L1-to-L2 bootstrap. Satisfies
// executor.Authenticator.
func (c *Client) Authenticate(ctx context.Context) error { return nil }

// IsAuthError reports whether err looks like a rejected signature or an
// unknown access key.
func (c *Client) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "status 401") || strings.Contains(msg, "status 403")
}

func (c *Client) authed(ctx context.Context, method, path string) (map[string]string, error) {
	return c.auth.Headers(method, path)
}

// splitToken parses a compound "TICKER:YES"/"TICKER:NO" token id into its
// market ticker and side. Kalshi has one ticker per market rather than a
// distinct token per outcome, so the venue-neutral tokenID this module's
// callers pass around is a compound key encoded at the discovery boundary.
func splitToken(tokenID string) (ticker string, side types.Side, err error) {
	parts := strings.SplitN(tokenID, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed kalshi token id %q", tokenID)
	}
	switch strings.ToUpper(parts[1]) {
	case "YES":
		return parts[0], types.Yes, nil
	case "NO":
		return parts[0], types.No, nil
	default:
		return "", "", fmt.Errorf("malformed kalshi token id %q", tokenID)
	}
}

// orderbookResponse mirrors Kalshi's GET /markets/{ticker}/orderbook shape:
// each side is a list of [priceCents, quantity] pairs.
type orderbookResponse struct {
	Orderbook struct {
		Yes [][2]int `json:"yes"`
		No  [][2]int `json:"no"`
	} `json:"orderbook"`
}

// GetOrderbook fetches the two-sided book for ticker.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*orderbookResponse, error) {
	var result orderbookResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/markets/" + ticker + "/orderbook")
	if err != nil {
		return nil, fmt.Errorf("get orderbook: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get orderbook: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// bestYesAsk derives the best YES ask from the book. Kalshi quotes only one
// side's depth per direction; the YES ask is Kalshi's mirror identity
// 100 - bestNoBid when the book itself carries no resting YES asks.
func bestYesAsk(book *orderbookResponse) (decimal.Decimal, bool) {
	if len(book.Orderbook.No) > 0 {
		bestNoBid := book.Orderbook.No[0][0]
		return centsToDecimal(100 - bestNoBid), true
	}
	return decimal.Zero, false
}

func bestNoAsk(book *orderbookResponse) (decimal.Decimal, bool) {
	if len(book.Orderbook.Yes) > 0 {
		bestYesBid := book.Orderbook.Yes[0][0]
		return centsToDecimal(100 - bestYesBid), true
	}
	return decimal.Zero, false
}

func centsToDecimal(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}

func decimalToCents(d decimal.Decimal) int {
	return int(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// BestAsk returns the lowest resting ask price for tokenID. Satisfies
// executor.OrderPlacer.
func (c *Client) BestAsk(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	ticker, side, err := splitToken(tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	book, err := c.GetOrderbook(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	var ask decimal.Decimal
	var ok bool
	if side == types.Yes {
		ask, ok = bestYesAsk(book)
	} else {
		ask, ok = bestNoAsk(book)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("no resting asks for %s", tokenID)
	}
	return ask, nil
}

// orderRequest mirrors Kalshi's POST /portfolio/orders body.
type orderRequest struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"` // buy | sell
	Side        string `json:"side"`   // yes | no
	Type        string `json:"type"`   // limit | market
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price,omitempty"`
	NoPrice     int    `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"`
}

type orderResponse struct {
	Order struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"order"`
}

func (c *Client) placeOrder(ctx context.Context, req orderRequest) (string, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "ticker", req.Ticker, "action", req.Action, "side", req.Side, "count", req.Count)
		return fmt.Sprintf("dry-run-%s-%s", req.Ticker, req.Action), nil
	}

	path := "/portfolio/orders"
	headers, err := c.authed(ctx, http.MethodPost, path)
	if err != nil {
		return "", fmt.Errorf("auth headers: %w", err)
	}
	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(req).
		SetResult(&result).
		Post(path)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Order.OrderID, nil
}

// PlaceLimitOrder places a single GTC limit order entering a position.
// Entering a spread-arbitrage leg is always a buy, on whichever side
// tokenID's compound key names. Satisfies executor.OrderPlacer.
func (c *Client) PlaceLimitOrder(ctx context.Context, tokenID string, side types.Side, price, shares decimal.Decimal) (string, error) {
	ticker, outcome, err := splitToken(tokenID)
	if err != nil {
		return "", err
	}
	req := orderRequest{Ticker: ticker, Action: "buy", Side: string(outcome), Type: "limit", Count: int(shares.IntPart()), TimeInForce: "GTC"}
	if outcome == types.Yes {
		req.YesPrice = decimalToCents(price)
	} else {
		req.NoPrice = decimalToCents(price)
	}
	return c.placeOrder(ctx, req)
}

// PlaceMarketSellFOK places an aggressive fill-or-kill sell, used for
// recovery and rebalance sells.
func (c *Client) PlaceMarketSellFOK(ctx context.Context, tokenID string, shares decimal.Decimal) (string, error) {
	ticker, outcome, err := splitToken(tokenID)
	if err != nil {
		return "", err
	}
	req := orderRequest{Ticker: ticker, Action: "sell", Side: string(outcome), Type: "market", Count: int(shares.IntPart()), TimeInForce: "FOK"}
	return c.placeOrder(ctx, req)
}

// PlaceGTCSell places a resting GTC sell at the given price, used by the
// priority-leg recovery path and the exit manager.
func (c *Client) PlaceGTCSell(ctx context.Context, tokenID string, price, shares decimal.Decimal) (string, error) {
	ticker, outcome, err := splitToken(tokenID)
	if err != nil {
		return "", err
	}
	req := orderRequest{Ticker: ticker, Action: "sell", Side: string(outcome), Type: "limit", Count: int(shares.IntPart()), TimeInForce: "GTC"}
	if outcome == types.Yes {
		req.YesPrice = decimalToCents(price)
	} else {
		req.NoPrice = decimalToCents(price)
	}
	return c.placeOrder(ctx, req)
}

// ExecuteSell satisfies exit.SellExecutor.
func (c *Client) ExecuteSell(ctx context.Context, tokenID string, shares, price decimal.Decimal, marketName string) (string, error) {
	orderID, err := c.PlaceGTCSell(ctx, tokenID, price, shares)
	if err != nil {
		c.logger.Error("exit sell failed", "market", marketName, "token", tokenID, "error", err)
	}
	return orderID, err
}

// positionsResponse mirrors Kalshi's GET /portfolio/positions shape for one
// market: a signed integer, positive meaning a net YES position.
type positionsResponse struct {
	MarketPositions []struct {
		Ticker   string `json:"ticker"`
		Position int    `json:"position"`
	} `json:"market_positions"`
}

// PositionBalance queries Kalshi's reported net position for tokenID's
// market and returns it signed to the requested side.
func (c *Client) PositionBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	ticker, side, err := splitToken(tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	headers, err := c.authed(ctx, http.MethodGet, "/portfolio/positions")
	if err != nil {
		return decimal.Zero, fmt.Errorf("auth headers: %w", err)
	}
	var result positionsResponse
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).SetResult(&result).Get("/portfolio/positions")
	if err != nil {
		return decimal.Zero, fmt.Errorf("get positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("get positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	for _, p := range result.MarketPositions {
		if p.Ticker != ticker {
			continue
		}
		count := p.Position
		if side == types.No {
			count = -count
		}
		if count < 0 {
			count = 0
		}
		return decimal.NewFromInt(int64(count)), nil
	}
	return decimal.Zero, nil
}

// CancelOrder cancels a single resting order. Satisfies orders.VenueClient.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return nil
	}
	path := "/portfolio/orders/" + orderID
	headers, err := c.authed(ctx, http.MethodDelete, path)
	if err != nil {
		return fmt.Errorf("auth headers: %w", err)
	}
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).Delete(path)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type orderStatusResponse struct {
	Order struct {
		Status         string `json:"status"`
		RemainingCount int    `json:"remaining_count"`
		Count          int    `json:"count"`
	} `json:"order"`
}

// QueryFilledSize reports how much of orderID has filled so far. Satisfies
// orders.VenueClient.
func (c *Client) QueryFilledSize(ctx context.Context, orderID string) (decimal.Decimal, error) {
	path := "/portfolio/orders/" + orderID
	headers, err := c.authed(ctx, http.MethodGet, path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("auth headers: %w", err)
	}
	var result orderStatusResponse
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).SetResult(&result).Get(path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query order: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("order %s not found", orderID)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("query order: status %d: %s", resp.StatusCode(), resp.String())
	}
	filled := result.Order.Count - result.Order.RemainingCount
	return decimal.NewFromInt(int64(filled)), nil
}

// WarmToken reports Kalshi's fixed tick size (1 cent) and fee rate. Kalshi
// publishes no per-market SDK warmup call the way Polymarket's CLOB does;
// the tick size is a platform-wide constant and the fee rate is computed
// per-trade from the published schedule rather than warmed ahead of time,
// so FeeRateBps is left at 0 and internal/venuetag's Kalshi entry carries
// the real estimate used for profit-threshold checks. Satisfies
// executor.SDKWarmer.
func (c *Client) WarmToken(ctx context.Context, tokenID string) (executor.TickInfo, error) {
	return executor.TickInfo{TickSize: decimal.NewFromFloat(0.01), FeeRateBps: 0}, nil
}

type marketResponse struct {
	Market struct {
		Status string `json:"status"`
		Result string `json:"result"` // "yes" | "no" | ""
	} `json:"market"`
}

// QueryResolution checks GET /markets/{ticker} for a settled result.
// Satisfies executor.Resolver.
func (c *Client) QueryResolution(ctx context.Context, yesTokenID string) (types.Side, bool, error) {
	ticker, _, err := splitToken(yesTokenID)
	if err != nil {
		return "", false, err
	}
	var result marketResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/markets/" + ticker)
	if err != nil {
		return "", false, fmt.Errorf("get market: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", false, fmt.Errorf("get market: status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Market.Status != "finalized" {
		return "", false, nil
	}
	switch result.Market.Result {
	case "yes":
		return types.Yes, true, nil
	case "no":
		return types.No, true, nil
	default:
		return "", false, nil
	}
}
