package venue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func buildVenueConfig(t *testing.T, baseURL string, dryRun bool) *config.Config {
	t.Helper()
	_, pemKey, _ := generateTestKey(t)
	return &config.Config{
		Environment: config.EnvDemo,
		DryRun:      dryRun,
		Venue: config.VenueConfig{
			DemoBaseURL:    baseURL,
			DemoKeyID:      "test-key",
			DemoPrivateKey: pemKey,
			RequestTimeout: 3 * time.Second,
			OrderRateRPS:   1000, // effectively no pacing in tests
		},
	}
}

func newTestClient(t *testing.T, baseURL string, dryRun bool) *venue.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := venue.NewClient(buildVenueConfig(t, baseURL, dryRun), logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// ── Market lookup ─────────────────────────────────────────────────────────────

func TestGetMarket(t *testing.T) {
	var gotKey, gotTS, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("ACCESS-KEY")
		gotTS = r.Header.Get("ACCESS-TIMESTAMP")
		gotSig = r.Header.Get("ACCESS-SIGNATURE")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"market":{"ticker":"BTC-50K","title":"BTC above 50k?",
			"status":"settled","result":"yes",
			"contracts":[{"ticker":"BTC-50K","side":"yes","prob_percent":62,"price_cents":62}]}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	market, err := client.GetMarket(context.Background(), "BTC-50K")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}

	if market.Ticker != "BTC-50K" || market.Status != "settled" || market.Result != "yes" {
		t.Errorf("market = %+v, want settled yes BTC-50K", market)
	}
	if len(market.Contracts) != 1 || market.Contracts[0].PriceCents != 62 {
		t.Errorf("contracts = %+v", market.Contracts)
	}
	if gotKey != "test-key" || gotTS == "" || gotSig == "" {
		t.Errorf("auth headers missing: key=%q ts=%q sig=%q", gotKey, gotTS, gotSig)
	}
}

func TestGetMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"no such market"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	_, err := client.GetMarket(context.Background(), "NOPE")
	if !errors.Is(err, venue.ErrMarketNotFound) {
		t.Errorf("got %v, want ErrMarketNotFound", err)
	}
	if venue.IsRetryable(err) {
		t.Error("404 must not be retryable")
	}
}

func TestUnauthorizedMapsToBadSigningKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	_, err := client.GetMarket(context.Background(), "X")
	if !errors.Is(err, venue.ErrBadSigningKey) {
		t.Errorf("got %v, want ErrBadSigningKey", err)
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	_, err := client.GetMarket(context.Background(), "X")
	if err == nil {
		t.Fatal("expected error from 503")
	}
	if !venue.IsRetryable(err) {
		t.Errorf("5xx should be retryable, got %v", err)
	}
	// The client retries transport-level 5xx before surfacing the error.
	if hits.Load() < 2 {
		t.Errorf("server hit %d times, expected internal retries", hits.Load())
	}
}

// ── Orders ────────────────────────────────────────────────────────────────────

func TestPlaceOrderDryRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, true)
	result, err := client.PlaceOrder(context.Background(), venue.OrderRequest{
		Ticker:        "BTC-50K",
		Side:          "yes",
		Count:         10,
		Type:          "market",
		ClientOrderID: "hedge-abc-1-1",
	})
	if err != nil {
		t.Fatalf("dry-run PlaceOrder: %v", err)
	}
	if result.VenueOrderID != "dryrun-hedge-abc-1-1" {
		t.Errorf("venue order id = %q, want synthetic dryrun id", result.VenueOrderID)
	}
	if hits.Load() != 0 {
		t.Errorf("dry-run must not touch the network, server hit %d times", hits.Load())
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/portfolio/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order":{"order_id":"ord-777","status":"accepted"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	result, err := client.PlaceOrder(context.Background(), venue.OrderRequest{
		Ticker:        "BTC-50K",
		Side:          "no",
		Count:         3,
		Type:          "market",
		ClientOrderID: "co-1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.VenueOrderID != "ord-777" || result.Status != "accepted" {
		t.Errorf("result = %+v", result)
	}
}

func TestPlaceOrderRejections(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"insufficient_funds", venue.ErrVenueInsufficientFunds},
		{"invalid_ticker", venue.ErrInvalidTicker},
		{"market_paused", venue.ErrMarketPaused},
		{"whatever_else", venue.ErrOrderRejected},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"` + tt.code + `","message":"rejected"}}`))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, false)
			_, err := client.PlaceOrder(context.Background(), venue.OrderRequest{
				Ticker: "T", Side: "yes", Count: 1, Type: "market", ClientOrderID: "co-x",
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if venue.IsRetryable(err) {
				t.Error("4xx rejection must not be retryable")
			}
		})
	}
}

func TestPlaceOrderZeroCount(t *testing.T) {
	client := newTestClient(t, "http://invalid.invalid", false)
	_, err := client.PlaceOrder(context.Background(), venue.OrderRequest{Count: 0})
	if !errors.Is(err, venue.ErrOrderRejected) {
		t.Errorf("got %v, want ErrOrderRejected without any network call", err)
	}
}

// ── Fills & transfers ─────────────────────────────────────────────────────────

func TestListFills(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ticker") != "BTC-50K" || r.URL.Query().Get("min_ts") != "1700000000000" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fills":[
			{"order_id":"ord-1","count":5,"price_cents":62},
			{"order_id":"ord-1","count":5,"price_cents":64}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	fills, err := client.ListFills(context.Background(), venue.FillsQuery{
		Ticker:  "BTC-50K",
		SinceMS: 1700000000000,
	})
	if err != nil {
		t.Fatalf("ListFills: %v", err)
	}
	if len(fills) != 2 || fills[0].FilledCount != 5 || fills[1].AvgPrice != 64 {
		t.Errorf("fills = %+v", fills)
	}
}

func TestTransferOutDryRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, true)
	id, err := client.TransferOut(context.Background(), "user-42", decimal.NewFromFloat(25.50))
	if err != nil {
		t.Fatalf("dry-run TransferOut: %v", err)
	}
	if id == "" {
		t.Error("expected synthetic transfer id")
	}
	if hits.Load() != 0 {
		t.Errorf("dry-run must not touch the network, server hit %d times", hits.Load())
	}
}

func TestTransferOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) == "" {
			t.Error("transfer body empty")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transfer_id":"tr-900"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, false)
	id, err := client.TransferOut(context.Background(), "user-42", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("TransferOut: %v", err)
	}
	if id != "tr-900" {
		t.Errorf("transfer id = %q, want tr-900", id)
	}
}
