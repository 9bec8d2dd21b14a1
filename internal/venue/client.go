// Package venue implements the Venue Client Facade (SPEC_FULL.md §4.1): the
// typed REST + WebSocket surface every other component talks to. It wraps a
// resty HTTP client with rate limiting, retry, L1/L2 signing, and unwraps the
// venue's uniform {errno, errmsg, result} response envelope into a typed
// result or a structured venue.Error (SPEC_FULL.md §6, §7).
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

// Client is the REST half of the Venue Client Facade. It is constructed once
// per account: each carries its own Auth (signing facade) and RateLimiter so
// the Fan-Out Coordinator can run many accounts concurrently without sharing
// mutable client state.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry for one account.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(15 * time.Second).
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
		logger: logger,
	}
}

// doEnvelope performs a request whose body/result follow the venue's
// {errno, errmsg, result} envelope and classifies any errno/HTTP failure into
// a structured *Error per SPEC_FULL.md §6/§7.
func doEnvelope[T any](req *resty.Request, method, path string) (T, error) {
	var env types.Envelope[T]
	var resp *resty.Response
	var err error

	switch method {
	case "GET":
		resp, err = req.SetResult(&env).Get(path)
	case "POST":
		resp, err = req.SetResult(&env).Post(path)
	case "DELETE":
		resp, err = req.SetResult(&env).Delete(path)
	default:
		var zero T
		return zero, fmt.Errorf("unsupported method %s", method)
	}

	var zero T
	if err != nil {
		return zero, wrapTransport(err)
	}
	if resp.StatusCode() >= 400 {
		if e := classifyHTTPStatus(resp.StatusCode(), resp.String()); e != nil {
			return zero, e
		}
	}
	if e := classifyEnvelope(env.Errno, env.Errmsg); e != nil {
		return zero, e
	}
	return env.Result, nil
}

// GetOrderBook fetches the order book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := doEnvelope[types.BookResponse](
		c.http.R().SetContext(ctx).SetQueryParam("token_id", tokenID),
		"GET", "/book",
	)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &result, nil
}

// buildOrderPayload converts a high-level UserOrder into the on-chain
// SignedOrder + metadata the REST API expects.
func (c *Client) buildOrderPayload(order types.UserOrder) types.OrderPayload {
	tickSize := order.TickSize
	if tickSize == "" {
		tickSize = types.Tick001
	}
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side, tickSize)

	return types.OrderPayload{
		Order: types.SignedOrder{
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
func (c *Client) PostOrders(ctx context.Context, orders []types.UserOrder, negRisk bool) ([]types.OrderResponse, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > 15 {
		return nil, fmt.Errorf("batch limit is 15 orders, got %d", len(orders))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post orders", "count", len(orders))
		results := make([]types.OrderResponse, len(orders))
		for i := range orders {
			results[i] = types.OrderResponse{Success: true, OrderID: fmt.Sprintf("dry-run-%d", i), Status: "live"}
		}
		return results, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payloads := make([]types.OrderPayload, len(orders))
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

	result, err := doEnvelope[[]types.OrderResponse](
		c.http.R().SetContext(ctx).SetHeaders(headers).SetBody(payloads),
		"POST", "/orders",
	)
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	return result, nil
}

// CancelOrders cancels multiple orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error) {
	if len(orderIDs) == 0 {
		return &types.CancelResponse{}, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return &types.CancelResponse{Canceled: orderIDs}, nil
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

	result, err := doEnvelope[types.CancelResponse](
		c.http.R().SetContext(ctx).SetHeaders(headers).SetBody(json.RawMessage(body)),
		"DELETE", "/orders",
	)
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	return &result, nil
}

// CancelAll cancels every open order across all markets for this account.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return &types.CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	result, err := doEnvelope[types.CancelResponse](
		c.http.R().SetContext(ctx).SetHeaders(headers),
		"DELETE", "/cancel-all",
	)
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	return &result, nil
}

// CancelMarketOrders cancels all orders for a specific market.
func (c *Client) CancelMarketOrders(ctx context.Context, conditionID string) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel market orders", "market", conditionID)
		return &types.CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}
	body := fmt.Sprintf(`{"market":"%s"}`, conditionID)
	headers, err := c.auth.L2Headers("DELETE", "/cancel-market-orders", body)
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	result, err := doEnvelope[types.CancelResponse](
		c.http.R().SetContext(ctx).SetHeaders(headers).SetBody(json.RawMessage(body)),
		"DELETE", "/cancel-market-orders",
	)
	if err != nil {
		return nil, fmt.Errorf("cancel market orders: %w", err)
	}
	return &result, nil
}

// GetOpenOrders fetches this account's resting orders, optionally filtered by market.
func (c *Client) GetOpenOrders(ctx context.Context, marketID string) ([]types.OpenOrder, error) {
	headers, err := c.auth.L2Headers("GET", "/orders", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if marketID != "" {
		req = req.SetQueryParam("market", marketID)
	}
	result, err := doEnvelope[[]types.OpenOrder](req, "GET", "/orders")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	return result, nil
}

// GetPositions fetches held balances, optionally scoped to one market.
func (c *Client) GetPositions(ctx context.Context, marketID string) ([]types.Position, error) {
	headers, err := c.auth.L2Headers("GET", "/positions", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if marketID != "" {
		req = req.SetQueryParam("market_id", marketID)
	}
	result, err := doEnvelope[[]types.Position](req, "GET", "/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return result, nil
}

// GetBalance fetches this account's available quote-token (collateral)
// balance, per SPEC_FULL.md §12's account balance pre-filtering.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	headers, err := c.auth.L2Headers("GET", "/balance-allowance", "")
	if err != nil {
		return decimal.Zero, fmt.Errorf("l2 headers: %w", err)
	}
	req := c.http.R().SetContext(ctx).SetHeaders(headers).SetQueryParam("asset_type", "COLLATERAL")
	result, err := doEnvelope[types.BalanceResponse](req, "GET", "/balance-allowance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	balance, err := decimal.NewFromString(result.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", result.Balance, err)
	}
	return balance, nil
}

// GetMarket fetches a plain binary market by ID.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*types.MarketInfo, error) {
	result, err := doEnvelope[types.MarketInfo](
		c.http.R().SetContext(ctx).SetQueryParam("id", marketID),
		"GET", "/market",
	)
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}
	return &result, nil
}

// GetCategoricalMarket fetches a multi-outcome parent market and its children,
// per SPEC_FULL.md §12.
func (c *Client) GetCategoricalMarket(ctx context.Context, parentID string) (*types.CategoricalMarket, error) {
	result, err := doEnvelope[types.CategoricalMarket](
		c.http.R().SetContext(ctx).SetQueryParam("parent_id", parentID),
		"GET", "/categorical-market",
	)
	if err != nil {
		return nil, fmt.Errorf("get categorical market: %w", err)
	}
	return &result, nil
}

// GetMarkets lists active markets, sorted by end-time ascending by the venue.
func (c *Client) GetMarkets(ctx context.Context) ([]types.MarketInfo, error) {
	result, err := doEnvelope[[]types.MarketInfo](
		c.http.R().SetContext(ctx),
		"GET", "/markets",
	)
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	return result, nil
}

// Merge converts shares*1 YES + shares*1 NO back into the quote token
// (SPEC_FULL.md §4.10). Beyond the HTTP client's own transport/5xx retries,
// the 2s/4s retry schedule is applied by the caller (internal/mergesplit).
func (c *Client) Merge(ctx context.Context, marketID string, shares decimal.Decimal) (*types.MergeResult, error) {
	if c.dryRun {
		return &types.MergeResult{TxHash: "dry-run"}, nil
	}
	headers, err := c.auth.L2Headers("POST", "/merge", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	body := map[string]string{"market_id": marketID, "shares": shares.String()}
	result, err := doEnvelope[types.MergeResult](
		c.http.R().SetContext(ctx).SetHeaders(headers).SetBody(body),
		"POST", "/merge",
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Split mints `amount` quote tokens into `amount` YES + `amount` NO shares.
func (c *Client) Split(ctx context.Context, marketID string, amount decimal.Decimal) (*types.SplitResult, error) {
	if c.dryRun {
		return &types.SplitResult{TxHash: "dry-run"}, nil
	}
	headers, err := c.auth.L2Headers("POST", "/split", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	body := map[string]string{"market_id": marketID, "amount": amount.String()}
	result, err := doEnvelope[types.SplitResult](
		c.http.R().SetContext(ctx).SetHeaders(headers).SetBody(body),
		"POST", "/split",
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Redeem claims a resolved market's winning side for this account.
func (c *Client) Redeem(ctx context.Context, marketID string) (*types.RedeemResult, error) {
	if c.dryRun {
		return &types.RedeemResult{TxHash: "dry-run"}, nil
	}
	headers, err := c.auth.L2Headers("POST", "/redeem", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	body := map[string]string{"market_id": marketID}
	result, err := doEnvelope[types.RedeemResult](
		c.http.R().SetContext(ctx).SetHeaders(headers).SetBody(body),
		"POST", "/redeem",
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveProxyAddress looks up the on-chain proxy wallet for this account's
// EOA from the venue's profile endpoint, per SPEC_FULL.md §6.
func (c *Client) ResolveProxyAddress(ctx context.Context, eoa string) (string, error) {
	result, err := doEnvelope[struct {
		ProxyAddress string `json:"proxy_address"`
	}](
		c.http.R().SetContext(ctx).SetQueryParam("address", eoa),
		"GET", "/profile",
	)
	if err != nil {
		return "", fmt.Errorf("resolve proxy address: %w", err)
	}
	return result.ProxyAddress, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}
	result, err := doEnvelope[Credentials](
		c.http.R().SetContext(ctx).SetHeaders(headers),
		"GET", "/auth/derive-api-key",
	)
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}

// AuthAddress returns the hex address of this client's signing account.
func (c *Client) AuthAddress() string { return c.auth.Address().Hex() }

// parsePriceLevel converts a wire PriceLevel into decimal price/size.
func parsePriceLevel(p types.PriceLevel) (decimal.Decimal, decimal.Decimal, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse price %q: %w", p.Price, err)
	}
	size, err := decimal.NewFromString(p.Size)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse size %q: %w", p.Size, err)
	}
	return price, size, nil
}

// unused helper retained for parity with the wire format's string-encoded
// quantities elsewhere in the facade.
var _ = strconv.FormatFloat
