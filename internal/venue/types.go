package venue

import (
	"errors"
	"fmt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Wire types
// ──────────────────────────────────────────────────────────────────────────────

// Contract is one tradeable side of a binary market.
type Contract struct {
	Ticker      string  `json:"ticker"`
	Side        string  `json:"side"` // "yes" | "no"
	Label       string  `json:"label"`
	ProbPercent float64 `json:"prob_percent"`
	PriceCents  int64   `json:"price_cents"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// Market is the normalized venue market view.  Result is empty while the
// market is open; "yes", "no" or "void" once settled.
type Market struct {
	Ticker    string     `json:"ticker"`
	Title     string     `json:"title"`
	ImageURL  string     `json:"image_url"`
	Status    string     `json:"status"` // "open" | "paused" | "settled"
	Result    string     `json:"result"` // "" | "yes" | "no" | "void"
	Contracts []Contract `json:"contracts"`
}

// OrderRequest is the venue order payload.  LimitPriceCents is nil for market
// orders.  CancelOrderOnPause is always sent true so paused markets reject
// instead of queueing.
type OrderRequest struct {
	Ticker             string `json:"ticker"`
	Side               string `json:"side"`   // "yes" | "no"
	Action             string `json:"action"` // always "buy"
	Count              int64  `json:"count"`
	Type               string `json:"type"` // "market" | "limit"
	LimitPriceCents    *int64 `json:"limit_price,omitempty"`
	ClientOrderID      string `json:"client_order_id"`
	CancelOrderOnPause bool   `json:"cancel_order_on_pause"`
}

// OrderResult is the venue's acknowledgement of an order.
type OrderResult struct {
	VenueOrderID string `json:"order_id"`
	Status       string `json:"status"`
}

// Fill is one execution report for a placed order.
type Fill struct {
	VenueOrderID string `json:"order_id"`
	FilledCount  int64  `json:"count"`
	AvgPrice     int64  `json:"price_cents"`
	FilledAt     string `json:"created_time"`
}

// FillsQuery filters ListFills.  Zero values mean "no filter".
type FillsQuery struct {
	Ticker  string
	SinceMS int64
}

// TransferRequest moves funds out to a user's venue account (withdrawals).
type TransferRequest struct {
	UserHandle string `json:"user_handle"`
	AmountUSD  string `json:"amount"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Typed errors
// ──────────────────────────────────────────────────────────────────────────────

// Non-retryable order rejections, mapped from venue 4xx error codes.
var (
	ErrMarketNotFound         = errors.New("venue market not found")
	ErrVenueInsufficientFunds = errors.New("venue account has insufficient funds")
	ErrInvalidTicker          = errors.New("venue rejected the ticker")
	ErrMarketPaused           = errors.New("venue market is paused")
	ErrOrderRejected          = errors.New("venue rejected the order")
)

// RetryableError wraps transient venue failures (network, 5xx) so callers can
// distinguish them from permanent rejections with errors.As.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("venue transient error: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err represents a transient venue failure that
// the caller may retry.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// apiError is the venue's JSON error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapOrderError translates a venue 4xx error code into a typed sentinel.
func mapOrderError(code, message string) error {
	switch code {
	case "insufficient_funds":
		return fmt.Errorf("%w: %s", ErrVenueInsufficientFunds, message)
	case "invalid_ticker":
		return fmt.Errorf("%w: %s", ErrInvalidTicker, message)
	case "market_paused":
		return fmt.Errorf("%w: %s", ErrMarketPaused, message)
	case "not_found":
		return fmt.Errorf("%w: %s", ErrMarketNotFound, message)
	default:
		return fmt.Errorf("%w: %s: %s", ErrOrderRejected, code, message)
	}
}
