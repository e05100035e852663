package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// TestHedgeFractionTiers verifies the tier policy at and around each boundary.
func TestHedgeFractionTiers(t *testing.T) {
	alphaMax := decimal.NewFromFloat(0.40)

	tests := []struct {
		p    float64
		want float64
	}{
		{0.10, 0},
		{0.4999, 0},
		{0.50, 0.15},
		{0.5499, 0.15},
		{0.55, 0.25},
		{0.6499, 0.25},
		{0.65, 0.40},
		{0.90, 0.40},
	}
	for _, tt := range tests {
		got := domain.HedgeFraction(decimal.NewFromFloat(tt.p), alphaMax)
		if !got.Equal(decimal.NewFromFloat(tt.want)) {
			t.Errorf("HedgeFraction(%.4f) = %s, want %.2f", tt.p, got, tt.want)
		}
	}
}

// A lower alphaMax caps only the top tier.
func TestHedgeFractionAlphaMaxCap(t *testing.T) {
	alphaMax := decimal.NewFromFloat(0.30)

	got := domain.HedgeFraction(decimal.NewFromFloat(0.70), alphaMax)
	if !got.Equal(alphaMax) {
		t.Errorf("top tier with alphaMax 0.30 = %s, want 0.30", got)
	}
	got = domain.HedgeFraction(decimal.NewFromFloat(0.56), alphaMax)
	if !got.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("mid tier should ignore alphaMax, got %s", got)
	}
}

func TestContractCostCents(t *testing.T) {
	tests := []struct {
		p    float64
		want int64
	}{
		{0.65, 65},
		{0.50, 50},
		{0.999, 100}, // rounds up
		{0.004, 0},   // rounds down to zero
	}
	for _, tt := range tests {
		if got := domain.ContractCostCents(decimal.NewFromFloat(tt.p)); got != tt.want {
			t.Errorf("ContractCostCents(%.3f) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestContractCount(t *testing.T) {
	// $10 notional at 65¢ per contract → floor(1000/65) = 15 contracts
	got := domain.ContractCount(decimal.NewFromInt(10), 65)
	if got != 15 {
		t.Errorf("ContractCount(10, 65) = %d, want 15", got)
	}
	// 50¢ notional at 65¢ does not cover one contract
	if got := domain.ContractCount(decimal.NewFromFloat(0.50), 65); got != 0 {
		t.Errorf("sub-contract notional should yield 0, got %d", got)
	}
	// Degenerate price
	if got := domain.ContractCount(decimal.NewFromInt(10), 0); got != 0 {
		t.Errorf("zero cost should yield 0, got %d", got)
	}
}

func TestAvgFillPriceCents(t *testing.T) {
	tests := []struct {
		weighted int64
		filled   int64
		want     int64
	}{
		{650, 10, 65},
		{125, 2, 63}, // 62.5 rounds to the nearest cent, not down
		{100, 3, 33}, // 33.3 rounds down
		{0, 0, 0},
		{50, 0, 0}, // no fills, no price
	}
	for _, tt := range tests {
		if got := domain.AvgFillPriceCents(tt.weighted, tt.filled); got != tt.want {
			t.Errorf("AvgFillPriceCents(%d, %d) = %d, want %d", tt.weighted, tt.filled, got, tt.want)
		}
	}
}

// TestHedgeOrderPnLCents: a won leg pays $1 per contract minus the premium, a
// lost leg burns the premium, and a voided leg is flat because the venue
// refunds it.
func TestHedgeOrderPnLCents(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.LegResult
		count   int64
		avg     int64
		want    int64
	}{
		{"win pays payout minus premium", domain.LegWin, 15, 65, 15 * 35},
		{"loss burns the premium", domain.LegLoss, 15, 65, -15 * 65},
		{"void is flat", domain.LegVoid, 15, 65, 0},
		{"win at 99 cents leaves a penny per contract", domain.LegWin, 10, 99, 10},
		{"pending resolves to nothing", domain.LegPending, 15, 65, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.HedgeOrderPnLCents(tt.outcome, tt.count, tt.avg); got != tt.want {
				t.Errorf("HedgeOrderPnLCents(%s, %d, %d) = %d, want %d",
					tt.outcome, tt.count, tt.avg, got, tt.want)
			}
		})
	}
}

// TestBuildHedgePlan: only legs at or above the tier floor are hedged, notional
// is α·stake, and the projected win is notional/p.
func TestBuildHedgePlan(t *testing.T) {
	stake := decimal.NewFromInt(100)
	alphaMax := decimal.NewFromFloat(0.40)
	quoteLegs := []domain.QuoteLeg{
		{Ticker: "HIGH-YES", Side: domain.SideYes, Prob: decimal.NewFromInt(70)},
		{Ticker: "LOW-NO", Side: domain.SideNo, Prob: decimal.NewFromInt(40)},
		{Ticker: "MID-YES", Side: domain.SideYes, Prob: decimal.NewFromInt(55)},
	}

	plan := domain.BuildHedgePlan(quoteLegs, stake, alphaMax)

	if len(plan.Legs) != 2 {
		t.Fatalf("hedged legs = %d, want 2 (the 40%% leg is below the floor)", len(plan.Legs))
	}

	first := plan.Legs[0]
	if first.LegNumber != 1 || first.Ticker != "HIGH-YES" {
		t.Errorf("first hedge leg = #%d %s, want #1 HIGH-YES", first.LegNumber, first.Ticker)
	}
	if first.Side != domain.SideYes {
		t.Errorf("hedge side = %s, want the user's own side yes", first.Side)
	}
	if !first.Alpha.Equal(decimal.NewFromFloat(0.40)) {
		t.Errorf("70%% leg alpha = %s, want 0.40", first.Alpha)
	}
	if !first.Notional.Equal(decimal.NewFromInt(40)) {
		t.Errorf("notional = %s, want 40.00", first.Notional)
	}
	// 40 / 0.70 = 57.1428...
	wantWin := decimal.NewFromFloat(57.1428)
	if !first.ProjectedWin.Equal(wantWin) {
		t.Errorf("projected win = %s, want %s", first.ProjectedWin, wantWin)
	}

	second := plan.Legs[1]
	if second.LegNumber != 3 || !second.Alpha.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("second hedge leg = #%d alpha %s, want #3 alpha 0.25", second.LegNumber, second.Alpha)
	}

	// Total = 40 + 25
	if !plan.TotalNotional.Equal(decimal.NewFromInt(65)) {
		t.Errorf("total notional = %s, want 65.00", plan.TotalNotional)
	}
}

func TestBuildHedgePlanNoEligibleLegs(t *testing.T) {
	plan := domain.BuildHedgePlan([]domain.QuoteLeg{
		{Ticker: "A", Prob: decimal.NewFromInt(30)},
		{Ticker: "B", Prob: decimal.NewFromInt(45)},
	}, decimal.NewFromInt(100), decimal.NewFromFloat(0.40))

	if len(plan.Legs) != 0 {
		t.Errorf("no leg reaches the floor, got %d hedge legs", len(plan.Legs))
	}
	if !plan.TotalNotional.IsZero() {
		t.Errorf("total notional = %s, want 0", plan.TotalNotional)
	}
}
