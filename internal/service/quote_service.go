package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// CorrelationAdviser is the minimal interface QuoteService needs from the AI
// adviser.  Implemented by ai.Adviser.
type CorrelationAdviser interface {
	Analyze(ctx context.Context, legs []domain.QuoteLeg, naive decimal.Decimal) (domain.CorrelationAnalysis, error)
}

// QuoteService prices candidate parlays.  The pipeline is
//
//	naive product → adviser adjustment (clamped) → house margin → hedge plan
//
// and never blocks on the adviser being up: any adviser failure degrades to
// naive independence pricing.
type QuoteService struct {
	adviser CorrelationAdviser
	cfg     *config.Config
	logger  *slog.Logger
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(adviser CorrelationAdviser, cfg *config.Config, logger *slog.Logger) *QuoteService {
	return &QuoteService{adviser: adviser, cfg: cfg, logger: logger}
}

// Margin returns the effective house margin m: HEDGE_BETA clamped into the
// configured band.  A misconfigured beta is clamped, not rejected, so pricing
// keeps working with a sane margin.
func (s *QuoteService) Margin() decimal.Decimal {
	m := decimal.NewFromFloat(s.cfg.Hedge.Beta)
	lo := decimal.NewFromFloat(s.cfg.Hedge.MarginMin)
	hi := decimal.NewFromFloat(s.cfg.Hedge.MarginMax)
	if m.LessThan(lo) {
		return lo
	}
	if m.GreaterThan(hi) {
		return hi
	}
	return m
}

// GenerateQuote prices a candidate parlay.
//
// Invariants on the result: AdjustedProb >= NaiveProb, and
// OfferedPayout <= FairPayout <= NaivePayout.  The adviser output is clamped
// into [naive, min leg probability] before it touches any payout.
func (s *QuoteService) GenerateQuote(ctx context.Context, legs []domain.QuoteLeg, stake decimal.Decimal) (*domain.Quote, error) {
	if !stake.IsPositive() {
		return nil, domain.ErrInvalidStake
	}
	if err := domain.ValidateQuoteLegs(legs); err != nil {
		return nil, err
	}

	naive := domain.NaiveProbability(legs)
	analysis := s.analyze(ctx, legs, naive)

	margin := s.Margin()
	one := decimal.NewFromInt(1)

	naivePayout := stake.Div(naive).RoundDown(2)
	fairPayout := stake.Div(analysis.AdjustedProb).RoundDown(2)
	offeredPayout := stake.Div(analysis.AdjustedProb).Mul(one.Sub(margin)).RoundDown(2)

	quote := &domain.Quote{
		Stake:         stake,
		NaiveProb:     naive,
		AdjustedProb:  analysis.AdjustedProb,
		NaivePayout:   naivePayout,
		FairPayout:    fairPayout,
		OfferedPayout: offeredPayout,
		Margin:        margin,
		Analysis:      analysis,
		HedgePlan:     domain.BuildHedgePlan(legs, stake, decimal.NewFromFloat(s.cfg.Hedge.AlphaMax)),
	}

	s.logger.Info("quote generated",
		"legs", len(legs),
		"stake", stake.StringFixed(2),
		"naive_prob", naive.StringFixed(6),
		"adjusted_prob", analysis.AdjustedProb.StringFixed(6),
		"offered_payout", offeredPayout.StringFixed(2),
		"risk", string(analysis.RiskAssessment))
	return quote, nil
}

// analyze calls the adviser and clamps its output.  Never fails: every error
// path returns the naive fallback analysis.
func (s *QuoteService) analyze(ctx context.Context, legs []domain.QuoteLeg, naive decimal.Decimal) domain.CorrelationAnalysis {
	fallback := domain.CorrelationAnalysis{
		AdjustedProb:      naive,
		CorrelationFactor: decimal.NewFromInt(1),
		Reasoning:         "correlation adviser unavailable; assuming independence",
		RiskAssessment:    domain.RiskUnknown,
	}

	analysis, err := s.adviser.Analyze(ctx, legs, naive)
	if err != nil {
		s.logger.Warn("correlation adviser failed, using naive pricing", "error", err)
		return fallback
	}

	// The joint probability can be neither below the independence product nor
	// above the weakest single leg.
	ceiling := decimal.NewFromInt(1)
	for _, l := range legs {
		if f := l.Fraction(); f.LessThan(ceiling) {
			ceiling = f
		}
	}

	adjusted := analysis.AdjustedProb
	if adjusted.LessThan(naive) {
		s.logger.Warn("adviser adjusted probability below naive product, clamping",
			"adjusted", adjusted.StringFixed(6), "naive", naive.StringFixed(6))
		adjusted = naive
	}
	if adjusted.GreaterThan(ceiling) {
		s.logger.Warn("adviser adjusted probability above weakest leg, clamping",
			"adjusted", adjusted.StringFixed(6), "ceiling", ceiling.StringFixed(6))
		adjusted = ceiling
	}

	analysis.AdjustedProb = adjusted
	// Recompute the factor from the clamped value so the pair stays consistent.
	analysis.CorrelationFactor = adjusted.Div(naive)
	if analysis.RiskAssessment == "" {
		analysis.RiskAssessment = domain.RiskUnknown
	}
	return analysis
}

// ExplainQuote renders a one-line human summary, used in logs and the
// back-office parlay view.
func ExplainQuote(q *domain.Quote) string {
	return fmt.Sprintf("stake %s at adjusted %s%% (naive %s%%, factor %s) pays %s (margin %s)",
		q.Stake.StringFixed(2),
		q.AdjustedProb.Mul(decimal.NewFromInt(100)).StringFixed(2),
		q.NaiveProb.Mul(decimal.NewFromInt(100)).StringFixed(2),
		q.Analysis.CorrelationFactor.StringFixed(3),
		q.OfferedPayout.StringFixed(2),
		q.Margin.StringFixed(3))
}
