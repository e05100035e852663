// Package venue implements the signed REST client for the prediction-market
// trading API.
//
// The client supports:
//   - GetMarket:    GET  /markets/{id}        — normalized market + contracts
//   - PlaceOrder:   POST /portfolio/orders    — buy yes/no contracts
//   - ListFills:    GET  /portfolio/fills     — execution reports
//   - TransferOut:  POST /portfolio/transfers — withdrawal transfer
//
// Every request carries the ACCESS-KEY / ACCESS-TIMESTAMP / ACCESS-SIGNATURE
// header triplet produced by Signer.  Order placement is paced through a shared
// token bucket.  In DRY-RUN mode the mutating calls (PlaceOrder, TransferOut)
// perform no network I/O: they log the full would-be request and return a
// synthetic success, so everything downstream behaves identically.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
)

// Client is the venue REST API client.  A process constructs exactly one,
// bound to one environment's base URL and credential pair for its lifetime.
type Client struct {
	http    *resty.Client
	signer  *Signer
	orderTB *TokenBucket // paces PlaceOrder calls
	dryRun  bool
	logger  *slog.Logger
}

// NewClient builds a client for the process's active environment.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	keyID, privateKey := cfg.ActiveVenueKey()
	signer, err := NewSigner(keyID, privateKey)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New().
		SetBaseURL(cfg.ActiveVenueBaseURL()).
		SetTimeout(cfg.Venue.RequestTimeout).
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

	rps := cfg.Venue.OrderRateRPS
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		http:    httpClient,
		signer:  signer,
		orderTB: NewTokenBucket(1, rps), // burst 1 → >=1/rps gap between orders
		dryRun:  cfg.DryRun,
		logger:  logger,
	}, nil
}

// DryRun reports whether the client is in log-only mode.
func (c *Client) DryRun() bool { return c.dryRun }

// ──────────────────────────────────────────────────────────────────────────────
// Market lookup
// ──────────────────────────────────────────────────────────────────────────────

// GetMarket fetches one market with its yes/no contracts.  Unknown markets
// fail with ErrMarketNotFound.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	path := "/markets/" + marketID

	var result struct {
		Market Market `json:"market"`
	}
	req, err := c.signedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetResult(&result).Get(path)
	if err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("get market %s: %w", marketID, err)}
	}
	if err := c.checkStatus(resp, "get market"); err != nil {
		return nil, err
	}
	return &result.Market, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Order placement
// ──────────────────────────────────────────────────────────────────────────────

// PlaceOrder submits one order.  Submission is idempotent at the venue keyed
// on ClientOrderID, so a retried call cannot double-fill.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResult, error) {
	if order.Count < 1 {
		return nil, fmt.Errorf("%w: count must be >= 1", ErrOrderRejected)
	}
	order.Action = "buy"
	order.CancelOrderOnPause = true

	if c.dryRun {
		payload, _ := json.Marshal(order)
		c.logger.Info("DRY-RUN: would place order",
			"endpoint", "POST /portfolio/orders",
			"payload", string(payload))
		return &OrderResult{
			VenueOrderID: "dryrun-" + order.ClientOrderID,
			Status:       "accepted",
		}, nil
	}

	// Self-pacing: order placements within one batch are spaced by the bucket.
	if err := c.orderTB.Wait(ctx); err != nil {
		return nil, err
	}

	const path = "/portfolio/orders"
	var result struct {
		Order OrderResult `json:"order"`
	}
	req, err := c.signedRequest(ctx, http.MethodPost, path)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetBody(order).SetResult(&result).Post(path)
	if err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("place order %s: %w", order.ClientOrderID, err)}
	}
	if err := c.checkStatus(resp, "place order"); err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fills
// ──────────────────────────────────────────────────────────────────────────────

// ListFills returns execution reports, optionally filtered by ticker and a
// millisecond-epoch lower bound.
func (c *Client) ListFills(ctx context.Context, q FillsQuery) ([]Fill, error) {
	const path = "/portfolio/fills"

	req, err := c.signedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if q.Ticker != "" {
		req.SetQueryParam("ticker", q.Ticker)
	}
	if q.SinceMS > 0 {
		req.SetQueryParam("min_ts", fmt.Sprintf("%d", q.SinceMS))
	}

	var result struct {
		Fills []Fill `json:"fills"`
	}
	resp, err := req.SetResult(&result).Get(path)
	if err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("list fills: %w", err)}
	}
	if err := c.checkStatus(resp, "list fills"); err != nil {
		return nil, err
	}
	return result.Fills, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────────────────────────────────

// TransferOut moves funds to a user's venue account.  Used by withdrawal
// completion.  Honors DRY-RUN identically to PlaceOrder.
func (c *Client) TransferOut(ctx context.Context, userHandle string, amount decimal.Decimal) (string, error) {
	body := TransferRequest{UserHandle: userHandle, AmountUSD: amount.StringFixed(2)}

	if c.dryRun {
		payload, _ := json.Marshal(body)
		c.logger.Info("DRY-RUN: would transfer out",
			"endpoint", "POST /portfolio/transfers",
			"payload", string(payload))
		return "dryrun-transfer-" + userHandle, nil
	}

	const path = "/portfolio/transfers"
	var result struct {
		TransferID string `json:"transfer_id"`
	}
	req, err := c.signedRequest(ctx, http.MethodPost, path)
	if err != nil {
		return "", err
	}
	resp, err := req.SetBody(body).SetResult(&result).Post(path)
	if err != nil {
		return "", &RetryableError{Err: fmt.Errorf("transfer out: %w", err)}
	}
	if err := c.checkStatus(resp, "transfer out"); err != nil {
		return "", err
	}
	return result.TransferID, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

// signedRequest builds a resty request with the signature headers for
// method+path already attached.
func (c *Client) signedRequest(ctx context.Context, method, path string) (*resty.Request, error) {
	headers, err := c.signer.Headers(method, path)
	if err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetHeaders(headers), nil
}

// checkStatus translates non-2xx responses into typed errors:
// 401 → fatal signing-key configuration, 4xx → mapped order errors,
// 5xx → retryable.
func (c *Client) checkStatus(resp *resty.Response, op string) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: venue returned 401 (check key id and key material)", op, ErrBadSigningKey)
	case code >= 500:
		return &RetryableError{Err: fmt.Errorf("%s: venue status %d: %s", op, code, resp.String())}
	default:
		var envelope apiError
		if err := json.Unmarshal(resp.Body(), &envelope); err == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %w", op, mapOrderError(envelope.Error.Code, envelope.Error.Message))
		}
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrOrderRejected, code, resp.String())
	}
}
