package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// ── Fakes & helpers ───────────────────────────────────────────────────────────

// fakeAdviser returns a canned analysis or error.
type fakeAdviser struct {
	analysis domain.CorrelationAnalysis
	err      error
}

func (f *fakeAdviser) Analyze(_ context.Context, _ []domain.QuoteLeg, _ decimal.Decimal) (domain.CorrelationAnalysis, error) {
	return f.analysis, f.err
}

func quoteCfg(beta float64) *config.Config {
	return &config.Config{
		Hedge: config.HedgeConfig{
			Beta:      beta,
			AlphaMax:  0.40,
			MarginMin: 0.10,
			MarginMax: 0.15,
		},
	}
}

func buildQuoteService(adviser service.CorrelationAdviser, beta float64) *service.QuoteService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewQuoteService(adviser, quoteCfg(beta), logger)
}

// 50% and 40% legs: naive joint = 0.20, weakest leg = 0.40.
func twoLegs() []domain.QuoteLeg {
	return []domain.QuoteLeg{
		{MarketTitle: "A", Ticker: "A-T", Side: domain.SideYes, Prob: decimal.NewFromInt(50)},
		{MarketTitle: "B", Ticker: "B-T", Side: domain.SideYes, Prob: decimal.NewFromInt(40)},
	}
}

// ── Pricing pipeline ──────────────────────────────────────────────────────────

// TestQuoteFallbackPricing: adviser down → naive independence pricing.
//
//	naive  = 0.50 × 0.40 = 0.20
//	stake  = 100, margin = 0.10
//	naive payout   = 100 / 0.20        = 500.00
//	fair payout    = 500.00 (adjusted == naive)
//	offered payout = 500 × (1 - 0.10)  = 450.00
func TestQuoteFallbackPricing(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{err: errors.New("adviser down")}, 0.10)

	q, err := svc.GenerateQuote(context.Background(), twoLegs(), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("GenerateQuote: %v", err)
	}

	if !q.NaiveProb.Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("naive prob = %s, want 0.2", q.NaiveProb)
	}
	if !q.AdjustedProb.Equal(q.NaiveProb) {
		t.Errorf("fallback adjusted prob = %s, want naive %s", q.AdjustedProb, q.NaiveProb)
	}
	if !q.NaivePayout.Equal(decimal.NewFromInt(500)) {
		t.Errorf("naive payout = %s, want 500.00", q.NaivePayout)
	}
	if !q.OfferedPayout.Equal(decimal.NewFromInt(450)) {
		t.Errorf("offered payout = %s, want 450.00", q.OfferedPayout)
	}
	if q.Analysis.RiskAssessment != domain.RiskUnknown {
		t.Errorf("fallback risk = %s, want unknown", q.Analysis.RiskAssessment)
	}
	if !q.Analysis.CorrelationFactor.Equal(decimal.NewFromInt(1)) {
		t.Errorf("fallback factor = %s, want 1", q.Analysis.CorrelationFactor)
	}
}

func TestQuoteUsesAdviserAdjustment(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{analysis: domain.CorrelationAnalysis{
		AdjustedProb:      decimal.NewFromFloat(0.25),
		CorrelationFactor: decimal.NewFromFloat(1.25),
		Reasoning:         "correlated",
		RiskAssessment:    domain.RiskMedium,
	}}, 0.10)

	q, err := svc.GenerateQuote(context.Background(), twoLegs(), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("GenerateQuote: %v", err)
	}

	if !q.AdjustedProb.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("adjusted prob = %s, want 0.25", q.AdjustedProb)
	}
	// fair = 100/0.25 = 400, offered = 400 × 0.9 = 360
	if !q.FairPayout.Equal(decimal.NewFromInt(400)) {
		t.Errorf("fair payout = %s, want 400.00", q.FairPayout)
	}
	if !q.OfferedPayout.Equal(decimal.NewFromInt(360)) {
		t.Errorf("offered payout = %s, want 360.00", q.OfferedPayout)
	}

	// Offered ≤ fair ≤ naive must always hold.
	if q.OfferedPayout.GreaterThan(q.FairPayout) || q.FairPayout.GreaterThan(q.NaivePayout) {
		t.Errorf("payout monotonicity violated: offered=%s fair=%s naive=%s",
			q.OfferedPayout, q.FairPayout, q.NaivePayout)
	}
}

// The adviser can never make the odds better than independence.
func TestQuoteClampsBelowNaive(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{analysis: domain.CorrelationAnalysis{
		AdjustedProb:      decimal.NewFromFloat(0.10), // below naive 0.20
		CorrelationFactor: decimal.NewFromFloat(0.5),
		RiskAssessment:    domain.RiskLow,
	}}, 0.10)

	q, err := svc.GenerateQuote(context.Background(), twoLegs(), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("GenerateQuote: %v", err)
	}
	if !q.AdjustedProb.Equal(q.NaiveProb) {
		t.Errorf("adjusted prob = %s, want clamped to naive %s", q.AdjustedProb, q.NaiveProb)
	}
	if !q.Analysis.CorrelationFactor.Equal(decimal.NewFromInt(1)) {
		t.Errorf("factor after clamp = %s, want 1", q.Analysis.CorrelationFactor)
	}
}

// The joint probability can never exceed the weakest single leg.
func TestQuoteClampsAboveWeakestLeg(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{analysis: domain.CorrelationAnalysis{
		AdjustedProb:      decimal.NewFromFloat(0.45), // above weakest leg 0.40
		CorrelationFactor: decimal.NewFromFloat(2.25),
		RiskAssessment:    domain.RiskHigh,
	}}, 0.10)

	q, err := svc.GenerateQuote(context.Background(), twoLegs(), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("GenerateQuote: %v", err)
	}
	if !q.AdjustedProb.Equal(decimal.NewFromFloat(0.40)) {
		t.Errorf("adjusted prob = %s, want ceiling 0.40", q.AdjustedProb)
	}
	// Factor recomputed from the clamped value: 0.40 / 0.20 = 2
	if !q.Analysis.CorrelationFactor.Equal(decimal.NewFromInt(2)) {
		t.Errorf("factor = %s, want 2", q.Analysis.CorrelationFactor)
	}
}

// ── Margin band ───────────────────────────────────────────────────────────────

func TestMarginClampedToBand(t *testing.T) {
	tests := []struct {
		beta float64
		want float64
	}{
		{0.12, 0.12},
		{0.01, 0.10}, // below MARGIN_MIN
		{0.50, 0.15}, // above MARGIN_MAX
	}
	for _, tt := range tests {
		svc := buildQuoteService(&fakeAdviser{err: errors.New("n/a")}, tt.beta)
		if got := svc.Margin(); !got.Equal(decimal.NewFromFloat(tt.want)) {
			t.Errorf("Margin(beta=%.2f) = %s, want %.2f", tt.beta, got, tt.want)
		}
	}
}

// ── Validation & hedge plan ───────────────────────────────────────────────────

func TestQuoteValidation(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{err: errors.New("n/a")}, 0.10)
	ctx := context.Background()

	if _, err := svc.GenerateQuote(ctx, twoLegs(), decimal.Zero); !errors.Is(err, domain.ErrInvalidStake) {
		t.Errorf("zero stake: got %v, want ErrInvalidStake", err)
	}
	if _, err := svc.GenerateQuote(ctx, twoLegs()[:1], decimal.NewFromInt(10)); !errors.Is(err, domain.ErrTooFewLegs) {
		t.Errorf("one leg: got %v, want ErrTooFewLegs", err)
	}

	bad := twoLegs()
	bad[1].Prob = decimal.NewFromInt(100)
	if _, err := svc.GenerateQuote(ctx, bad, decimal.NewFromInt(10)); !errors.Is(err, domain.ErrInvalidProbability) {
		t.Errorf("prob=100: got %v, want ErrInvalidProbability", err)
	}
}

func TestQuoteCarriesHedgePlan(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{err: errors.New("n/a")}, 0.10)

	quoteLegs := []domain.QuoteLeg{
		{Ticker: "HI", Side: domain.SideYes, Prob: decimal.NewFromInt(70)},
		{Ticker: "LO", Side: domain.SideNo, Prob: decimal.NewFromInt(30)},
	}
	q, err := svc.GenerateQuote(context.Background(), quoteLegs, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("GenerateQuote: %v", err)
	}

	if len(q.HedgePlan.Legs) != 1 {
		t.Fatalf("hedge legs = %d, want 1 (only the 70%% leg qualifies)", len(q.HedgePlan.Legs))
	}
	if !q.HedgePlan.Legs[0].Notional.Equal(decimal.NewFromInt(40)) {
		t.Errorf("hedge notional = %s, want 40.00 (α=0.40 × stake 100)", q.HedgePlan.Legs[0].Notional)
	}
}

// Leg ordering must not change the price.
func TestQuotePermutationInvariant(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{err: errors.New("n/a")}, 0.10)
	ctx := context.Background()
	stake := decimal.NewFromInt(50)

	forward := twoLegs()
	reversed := []domain.QuoteLeg{forward[1], forward[0]}

	q1, err := svc.GenerateQuote(ctx, forward, stake)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	q2, err := svc.GenerateQuote(ctx, reversed, stake)
	if err != nil {
		t.Fatalf("reversed: %v", err)
	}

	if !q1.OfferedPayout.Equal(q2.OfferedPayout) || !q1.NaiveProb.Equal(q2.NaiveProb) {
		t.Errorf("order changed the price: %s vs %s", q1.OfferedPayout, q2.OfferedPayout)
	}
}

func TestExplainQuote(t *testing.T) {
	svc := buildQuoteService(&fakeAdviser{err: errors.New("n/a")}, 0.10)
	q, err := svc.GenerateQuote(context.Background(), twoLegs(), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("GenerateQuote: %v", err)
	}
	if s := service.ExplainQuote(q); s == "" {
		t.Error("ExplainQuote returned empty summary")
	} else {
		t.Log(s)
	}
}
