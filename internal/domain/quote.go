package domain

import (
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Quote inputs
// ──────────────────────────────────────────────────────────────────────────────

// QuoteLeg is one leg as submitted to the quote engine.  Prob is a percent in
// the open interval (0, 100).
type QuoteLeg struct {
	MarketTitle string          `json:"market_title"`
	OptionLabel string          `json:"option_label"`
	Ticker      string          `json:"ticker,omitempty"`
	Side        Side            `json:"side,omitempty"`
	Prob        decimal.Decimal `json:"prob"`
}

// Fraction returns the leg probability as a fraction in (0, 1).
func (l QuoteLeg) Fraction() decimal.Decimal {
	return l.Prob.Div(decimal.NewFromInt(100))
}

// ValidateQuoteLegs checks leg count and probability ranges.
func ValidateQuoteLegs(legs []QuoteLeg) error {
	if len(legs) < 2 {
		return ErrTooFewLegs
	}
	hundred := decimal.NewFromInt(100)
	for _, l := range legs {
		if !l.Prob.IsPositive() || l.Prob.GreaterThanOrEqual(hundred) {
			return ErrInvalidProbability
		}
	}
	return nil
}

// NaiveProbability is the independence assumption: the product of all leg
// probabilities.  Insensitive to leg ordering.
func NaiveProbability(legs []QuoteLeg) decimal.Decimal {
	p := decimal.NewFromInt(1)
	for _, l := range legs {
		p = p.Mul(l.Fraction())
	}
	return p
}

// ──────────────────────────────────────────────────────────────────────────────
// Correlation analysis (AI adviser output, post-clamp)
// ──────────────────────────────────────────────────────────────────────────────

// RiskLevel is the adviser's qualitative correlation assessment.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown" // adviser unavailable
)

// CorrelationAnalysis carries the adjusted probability for a set of legs.
// Invariants (enforced by the quote engine after the adviser call):
// AdjustedProb >= the naive product, CorrelationFactor >= 1.
type CorrelationAnalysis struct {
	AdjustedProb      decimal.Decimal `json:"adjusted_probability"` // fraction in (0, 1]
	CorrelationFactor decimal.Decimal `json:"correlation_factor"`
	Reasoning         string          `json:"reasoning"`
	RiskAssessment    RiskLevel       `json:"risk_assessment"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Quote
// ──────────────────────────────────────────────────────────────────────────────

// Quote is the priced offer for a candidate parlay.  It is a pure value: it
// persists only once attached to a placed parlay as a JSON snapshot.
//
// Invariants: OfferedPayout <= FairPayout <= NaivePayout and
// AdjustedProb >= NaiveProb.
type Quote struct {
	Stake         decimal.Decimal     `json:"stake"`
	NaiveProb     decimal.Decimal     `json:"naive_probability"`
	AdjustedProb  decimal.Decimal     `json:"adjusted_probability"`
	NaivePayout   decimal.Decimal     `json:"naive_payout"`
	FairPayout    decimal.Decimal     `json:"fair_payout"`
	OfferedPayout decimal.Decimal     `json:"offered_payout"`
	Margin        decimal.Decimal     `json:"margin"`
	Analysis      CorrelationAnalysis `json:"analysis"`
	HedgePlan     HedgePlan           `json:"hedge_plan"`
}

// ExpectedHouseMargin returns S - p_adj * U_offer, the expected house take on
// this parlay under the adjusted probability.
func (q Quote) ExpectedHouseMargin() decimal.Decimal {
	return q.Stake.Sub(q.AdjustedProb.Mul(q.OfferedPayout))
}
