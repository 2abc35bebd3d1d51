// Package polymarket implements the Polymarket CLOB venue client: L1/L2
// authentication, REST order placement, and the data this module's callers
// need (executor.OrderPlacer, executor.Authenticator, executor.SDKWarmer,
// orders.VenueClient, exit.SellExecutor, executor.Resolver).
//
// The REST surface mirrors the teacher's internal/exchange/client.go:
//   - GetOrderBook:       GET  /book                  — fetch L2 book for a token
//   - PostOrders:         POST /orders                — batch-place up to 15 signed orders
//   - CancelOrders:       DELETE /orders              — cancel specific orders by ID
//   - CancelAll:          DELETE /cancel-all          — emergency cancel everything
//   - CancelMarketOrders: DELETE /cancel-market-orders — cancel one market's orders
//   - DeriveAPIKey:       GET  /auth/derive-api-key   — bootstrap L2 creds from L1 wallet
//
// Every request is retried on 5xx errors. Book reads, order posts and
// cancels wait on per-category TokenBuckets; order posts and cancels carry
// L2-HMAC headers and DeriveAPIKey carries L1 headers. Book reads and the
// single-order fill query (GET /order/{id}) are sent without auth headers,
// and neither the fill query nor DeriveAPIKey is rate-limited.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"predictarb/internal/executor"
	"predictarb/internal/money"
	"predictarb/pkg/types"
)

// Config bundles the tunables a Client needs. Wiring from environment
// variables happens in internal/config.
type Config struct {
	CLOBBaseURL string
	DryRun      bool
	Auth        AuthConfig
}

// Client is the Polymarket CLOB REST API client. It wraps a resty HTTP
// client with rate limiting, retry, and L1/L2 auth.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	auth, err := NewAuth(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("build auth: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.CLOBBaseURL).
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
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "polymarket_client"),
	}, nil
}

// Authenticate derives L2 credentials via L1 auth if not already configured.
// Satisfies executor.Authenticator for the C12 AuthCache.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.auth.HasL2Credentials() {
		return nil
	}
	_, err := c.DeriveAPIKey(ctx)
	return err
}

// IsAuthError reports whether err looks like an expired or rejected L2
// session.
func (c *Client) IsAuthError(err error) bool { return c.auth.IsAuthError(err) }

// GetOrderBook fetches the order book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// BestAsk returns the lowest resting ask price for tokenID. Satisfies
// executor.OrderPlacer.
func (c *Client) BestAsk(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(book.Asks) == 0 {
		return decimal.Zero, fmt.Errorf("no resting asks for token %s", tokenID)
	}
	return decimal.NewFromString(book.Asks[0].Price)
}

func (c *Client) buildOrderPayload(order UserOrder) OrderPayload {
	tickSize := order.TickSize
	if tickSize == "" {
		tickSize = Tick001
	}
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side, tickSize)

	return OrderPayload{
		Order: SignedOrder{
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       order.TokenID,
			MakerAmount:   makerAmt,
			TakerAmount:   takerAmt,
			Side:          order.Side,
			Expiration:    fmt.Sprintf("%d", order.Expiration),
			Nonce:         "0",
			FeeRateBps:    fmt.Sprintf("%d", order.FeeRateBps),
			SignatureType: c.auth.sigType,
		},
		Owner:     c.auth.creds.ApiKey,
		OrderType: order.OrderType,
	}
}

// PostOrders places up to 15 orders in a batch.
func (c *Client) PostOrders(ctx context.Context, orders []UserOrder) ([]OrderResponse, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > 15 {
		return nil, fmt.Errorf("batch limit is 15 orders, got %d", len(orders))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post orders", "count", len(orders))
		results := make([]OrderResponse, len(orders))
		for i := range orders {
			results[i] = OrderResponse{Success: true, OrderID: fmt.Sprintf("dry-run-%d", i), Status: "live"}
		}
		return results, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payloads := make([]OrderPayload, len(orders))
	for i, order := range orders {
		payloads[i] = c.buildOrderPayload(order)
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var results []OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payloads).
		SetResult(&results).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return results, nil
}

func (c *Client) postOne(ctx context.Context, order UserOrder) (string, error) {
	results, err := c.PostOrders(ctx, []UserOrder{order})
	if err != nil {
		return "", err
	}
	if len(results) == 0 || !results[0].Success {
		return "", fmt.Errorf("order rejected: %s", results[0].ErrorMsg)
	}
	return results[0].OrderID, nil
}

// PlaceLimitOrder places a single GTC limit order entering a position in
// tokenID. side (the outcome, Yes or No) only selects which token the
// caller already resolved into tokenID; entering a spread-arbitrage leg is
// always a wire-level BUY. Satisfies executor.OrderPlacer.
func (c *Client) PlaceLimitOrder(ctx context.Context, tokenID string, side types.Side, price, shares decimal.Decimal) (string, error) {
	return c.postOne(ctx, UserOrder{
		TokenID: tokenID, Price: mustFloat(price), Size: mustFloat(shares),
		Side: BUY, OrderType: OrderTypeGTC, TickSize: Tick001,
	})
}

// PlaceMarketSellFOK places an aggressive fill-or-kill sell at a
// deeply-crossing price, used for recovery and rebalance sells.
func (c *Client) PlaceMarketSellFOK(ctx context.Context, tokenID string, shares decimal.Decimal) (string, error) {
	return c.postOne(ctx, UserOrder{
		TokenID: tokenID, Price: 0.01, Size: mustFloat(shares),
		Side: SELL, OrderType: OrderType("FOK"), TickSize: Tick001,
	})
}

// PlaceGTCSell places a resting GTC sell at the given price, used by the
// priority-leg recovery path and the exit manager.
func (c *Client) PlaceGTCSell(ctx context.Context, tokenID string, price, shares decimal.Decimal) (string, error) {
	return c.postOne(ctx, UserOrder{
		TokenID: tokenID, Price: mustFloat(price), Size: mustFloat(shares),
		Side: SELL, OrderType: OrderTypeGTC, TickSize: Tick001,
	})
}

// ExecuteSell satisfies exit.SellExecutor.
func (c *Client) ExecuteSell(ctx context.Context, tokenID string, shares, price decimal.Decimal, marketName string) (string, error) {
	orderID, err := c.PlaceGTCSell(ctx, tokenID, price, shares)
	if err != nil {
		c.logger.Error("exit sell failed", "market", marketName, "token", tokenID, "error", err)
	}
	return orderID, err
}

// PositionBalance queries the on-chain CTF token balance for tokenID.
// Polymarket exposes this only through the Data API, outside this client's
// scope (spec §1 treats external data providers as out-of-scope
// collaborators); callers fall back to the traded amount when this errors.
func (c *Client) PositionBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("position balance lookup not implemented")
}

// CancelOrder cancels a single resting order. Satisfies orders.VenueClient.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.CancelOrders(ctx, []string{orderID})
	return err
}

// CancelOrders cancels multiple orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) (*CancelResponse, error) {
	if len(orderIDs) == 0 {
		return &CancelResponse{}, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return &CancelResponse{Canceled: orderIDs}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		OrderIDs []string `json:"orderIDs"`
	}{OrderIDs: orderIDs}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.L2Headers("DELETE", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) (*CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return &CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	var result CancelResponse
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).SetResult(&result).Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return &result, nil
}

// CancelMarketOrders cancels all orders for a specific market.
func (c *Client) CancelMarketOrders(ctx context.Context, conditionID string) (*CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel market orders", "market", conditionID)
		return &CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}
	body := fmt.Sprintf(`{"market":"%s"}`, conditionID)
	headers, err := c.auth.L2Headers("DELETE", "/cancel-market-orders", body)
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	var result CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).SetHeaders(headers).SetBody(json.RawMessage(body)).SetResult(&result).
		Delete("/cancel-market-orders")
	if err != nil {
		return nil, fmt.Errorf("cancel market orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel market orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// QueryFilledSize reports how much of orderID has filled so far. Satisfies
// orders.VenueClient. It reads size_matched from GET /order/{id}; a 404 is
// returned as an "order ... not found" error, not as a fill size.
func (c *Client) QueryFilledSize(ctx context.Context, orderID string) (decimal.Decimal, error) {
	var order OpenOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&order).
		Get("/order/" + orderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query order: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("order %s not found", orderID)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("query order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return decimal.NewFromString(order.SizeMatched)
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}
	var result Credentials
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).SetResult(&result).Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}

// WarmToken fetches a token's tick size and fee rate. Satisfies
// executor.SDKWarmer.
func (c *Client) WarmToken(ctx context.Context, tokenID string) (executor.TickInfo, error) {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return executor.TickInfo{}, err
	}
	tick, err := decimal.NewFromString(book.TickSize)
	if err != nil {
		tick = decimal.NewFromFloat(0.01)
	}
	return executor.TickInfo{TickSize: tick, FeeRateBps: 0}, nil
}

// QueryResolution infers a resolution from the YES token's CLOB book: a
// first bid level at or above 0.99 reports YES, one at or below 0.01
// reports NO, and anything else (an empty bid side included) reports
// unresolved. Satisfies executor.Resolver.
func (c *Client) QueryResolution(ctx context.Context, yesTokenID string) (winningSide types.Side, resolved bool, err error) {
	book, err := c.GetOrderBook(ctx, yesTokenID)
	if err != nil {
		return "", false, err
	}
	if len(book.Bids) > 0 {
		price, perr := decimal.NewFromString(book.Bids[0].Price)
		if perr == nil {
			if price.GreaterThanOrEqual(decimal.NewFromFloat(0.99)) {
				return types.Yes, true, nil
			}
			if price.LessThanOrEqual(decimal.NewFromFloat(0.01)) {
				return types.No, true, nil
			}
		}
	}
	return "", false, nil
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// PriceToAmounts converts a human-readable price and size to makerAmount
// and takerAmount big.Int values scaled to 6 decimals (USDC).
//
// For BUY:  maker pays makerAmount USDC, receives takerAmount tokens.
// For SELL: maker gives makerAmount tokens, receives takerAmount USDC.
func PriceToAmounts(price, size float64, side Side, tickSize TickSize) (makerAmt, takerAmt *big.Int) {
	amtDecimals := tickSize.AmountDecimals()
	scale := new(big.Float).SetFloat64(1e6)

	sizeRounded := money.RoundDown2(decimal.NewFromFloat(size))
	sizeF, _ := sizeRounded.Float64()

	switch side {
	case BUY:
		cost := truncate(sizeF*price, amtDecimals)
		makerF := new(big.Float).Mul(new(big.Float).SetFloat64(cost), scale)
		makerAmt, _ = makerF.Int(nil)
		takerF := new(big.Float).Mul(new(big.Float).SetFloat64(sizeF), scale)
		takerAmt, _ = takerF.Int(nil)
	case SELL:
		makerF := new(big.Float).Mul(new(big.Float).SetFloat64(sizeF), scale)
		makerAmt, _ = makerF.Int(nil)
		revenue := truncate(sizeF*price, amtDecimals)
		takerF := new(big.Float).Mul(new(big.Float).SetFloat64(revenue), scale)
		takerAmt, _ = takerF.Int(nil)
	}
	return makerAmt, takerAmt
}

func truncate(val float64, decimals int) float64 {
	d := decimal.NewFromFloat(val).Truncate(int32(decimals))
	f, _ := d.Float64()
	return f
}
