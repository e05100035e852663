package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Hedge tier policy
// ──────────────────────────────────────────────────────────────────────────────

// Tier boundaries for the per-leg hedge fraction.  The policy hedges variance
// on the user's own side: only high-probability legs are hedged, sized as a
// fraction of the parlay stake.
var (
	tierFloor = decimal.NewFromFloat(0.50)
	tierMid   = decimal.NewFromFloat(0.55)
	tierHigh  = decimal.NewFromFloat(0.65)

	alphaLow  = decimal.NewFromFloat(0.15)
	alphaMid  = decimal.NewFromFloat(0.25)
	alphaHigh = decimal.NewFromFloat(0.40)
)

// HedgeFraction returns the hedge fraction α for a leg with probability p
// (a fraction in (0,1)), capped at alphaMax for the top tier.
//
//	p < 0.50         → 0
//	0.50 ≤ p < 0.55  → 0.15
//	0.55 ≤ p < 0.65  → 0.25
//	p ≥ 0.65         → min(0.40, alphaMax)
func HedgeFraction(p, alphaMax decimal.Decimal) decimal.Decimal {
	switch {
	case p.LessThan(tierFloor):
		return decimal.Zero
	case p.LessThan(tierMid):
		return alphaLow
	case p.LessThan(tierHigh):
		return alphaMid
	default:
		if alphaMax.LessThan(alphaHigh) {
			return alphaMax
		}
		return alphaHigh
	}
}

// ContractCostCents converts a leg probability to the venue contract price in
// whole cents: round(p * 100).
func ContractCostCents(p decimal.Decimal) int64 {
	return p.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// ContractCount converts a hedge notional into whole contracts at the leg's
// price: floor(notional * 100 / costCents).  Returns 0 when the notional does
// not cover a single contract.
func ContractCount(notional decimal.Decimal, costCents int64) int64 {
	if costCents <= 0 {
		return 0
	}
	return notional.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(costCents)).Floor().IntPart()
}

// AvgFillPriceCents returns the volume-weighted average fill price in whole
// cents, rounded to the nearest cent.  weightedCents is the sum of
// count * price over all fills; filled is the total contract count.
func AvgFillPriceCents(weightedCents, filled int64) int64 {
	if filled <= 0 {
		return 0
	}
	return decimal.NewFromInt(weightedCents).Div(decimal.NewFromInt(filled)).Round(0).IntPart()
}

// HedgeOrderPnLCents returns the pool P&L in cents for a filled hedge order
// once its leg resolved.  Contracts pay out $1 each on a win; the premium is
// lost on a loss and refunded by the venue on a void.
//
//	win:  count * (100 - avg price)
//	loss: -count * avg price
//	void: 0
func HedgeOrderPnLCents(outcome LegResult, filledCount, avgPriceCents int64) int64 {
	switch outcome {
	case LegWin:
		return filledCount * (100 - avgPriceCents)
	case LegLoss:
		return -filledCount * avgPriceCents
	default:
		return 0
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Hedge plan (part of the quote)
// ──────────────────────────────────────────────────────────────────────────────

// HedgeLeg is one planned same-side hedge bet.  Side always equals the user's
// side: the plan reduces variance conditional on the high-probability leg
// occurring, it does not bet against the parlay.
type HedgeLeg struct {
	LegNumber    int             `json:"leg_number"`
	Ticker       string          `json:"ticker"`
	Side         Side            `json:"side"`
	Prob         decimal.Decimal `json:"prob"` // fraction in (0,1)
	Alpha        decimal.Decimal `json:"alpha"`
	Notional     decimal.Decimal `json:"notional"`      // α · stake
	ProjectedWin decimal.Decimal `json:"projected_win"` // notional / prob
}

// HedgePlan is the set of hedged legs for one quote.  Legs below the tier
// floor are omitted entirely.
type HedgePlan struct {
	Legs          []HedgeLeg      `json:"legs"`
	TotalNotional decimal.Decimal `json:"total_notional"`
}

// BuildHedgePlan applies the tier policy to every leg of a quoted parlay.
func BuildHedgePlan(legs []QuoteLeg, stake, alphaMax decimal.Decimal) HedgePlan {
	plan := HedgePlan{TotalNotional: decimal.Zero}
	for i, leg := range legs {
		p := leg.Fraction()
		alpha := HedgeFraction(p, alphaMax)
		if alpha.IsZero() {
			continue
		}
		notional := alpha.Mul(stake)
		plan.Legs = append(plan.Legs, HedgeLeg{
			LegNumber:    i + 1,
			Ticker:       leg.Ticker,
			Side:         leg.Side,
			Prob:         p,
			Alpha:        alpha,
			Notional:     notional,
			ProjectedWin: notional.Div(p).RoundDown(4),
		})
		plan.TotalNotional = plan.TotalNotional.Add(notional)
	}
	return plan
}

// ──────────────────────────────────────────────────────────────────────────────
// Hedge orders (persisted execution record)
// ──────────────────────────────────────────────────────────────────────────────

// HedgeOrderStatus tracks a hedge order through submission and reconciliation.
type HedgeOrderStatus string

const (
	HedgeSubmitting HedgeOrderStatus = "submitting" // persisted, venue call in flight
	HedgeAccepted   HedgeOrderStatus = "accepted"
	HedgeFailed     HedgeOrderStatus = "failed"
	HedgeFilled     HedgeOrderStatus = "filled"
	HedgeSettled    HedgeOrderStatus = "settled" // P&L applied to the pool
)

// HedgeOrder is the persisted record of one venue hedge order.  At most one
// exists per (parlay, leg); legs below the hedge threshold have none.
// ClientOrderID is the idempotency key for venue submission and replay.
type HedgeOrder struct {
	ClientOrderID   string           `json:"client_order_id"   db:"client_order_id"`
	ParlaySessionID string           `json:"parlay_session_id" db:"parlay_session_id"`
	LegNumber       int              `json:"leg_number"        db:"leg_number"`
	Ticker          string           `json:"ticker"            db:"ticker"`
	Side            Side             `json:"side"              db:"side"`
	Count           int64            `json:"count"             db:"count"`
	LimitPriceCents *int64           `json:"limit_price_cents" db:"limit_price_cents"`
	Status          HedgeOrderStatus `json:"status"            db:"status"`
	VenueOrderID    *string          `json:"venue_order_id"    db:"venue_order_id"`
	FailureReason   *string          `json:"failure_reason"    db:"failure_reason"`
	FilledCount     *int64           `json:"filled_count"      db:"filled_count"`
	AvgPriceCents   *int64           `json:"avg_price_cents"   db:"avg_price_cents"`
	PnlApplied      bool             `json:"pnl_applied"       db:"pnl_applied"`
	CreatedAt       time.Time        `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"        db:"updated_at"`
}
