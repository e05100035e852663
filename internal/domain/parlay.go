package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// Environment scopes a draft or parlay to the demo or production venue.
// Legs of one parlay always share one environment.
type Environment string

const (
	EnvDemo       Environment = "demo"
	EnvProduction Environment = "production"
)

// IsValid reports whether e names a known environment.
func (e Environment) IsValid() bool {
	return e == EnvDemo || e == EnvProduction
}

// Side is the user's chosen side of a binary contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// IsValid reports whether s is yes or no.
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ParlayStatus is the lifecycle state of a placed parlay.
type ParlayStatus string

const (
	ParlayPending ParlayStatus = "pending"
	ParlayWon     ParlayStatus = "won"
	ParlayLost    ParlayStatus = "lost"
	// ParlayNeedsAttention is an operational state: settlement hit a permanent
	// error or the venue disagreed with local state.  Operators requeue it.
	ParlayNeedsAttention ParlayStatus = "needs_attention"
)

// IsTerminal reports whether further settlement passes may still mutate the
// parlay.  won and lost are final; needs_attention waits for an operator.
func (s ParlayStatus) IsTerminal() bool {
	return s == ParlayWon || s == ParlayLost
}

// ──────────────────────────────────────────────────────────────────────────────
// Drafts
// ──────────────────────────────────────────────────────────────────────────────

// LegDraft is one selection in a user's parlay slip, persisted between
// extension sessions until the parlay is placed.
type LegDraft struct {
	ID             uuid.UUID       `json:"id"               db:"id"`
	UserID         uuid.UUID       `json:"user_id"          db:"user_id"`
	Environment    Environment     `json:"environment"      db:"environment"`
	MarketID       string          `json:"market_id"        db:"market_id"`
	Ticker         string          `json:"ticker"           db:"ticker"`
	MarketTitle    string          `json:"market_title"     db:"market_title"`
	OptionLabel    string          `json:"option_label"     db:"option_label"`
	Side           Side            `json:"side"             db:"side"`
	Prob           decimal.Decimal `json:"prob"             db:"prob"` // percent in (0, 100)
	MarketURL      string          `json:"market_url"       db:"market_url"`
	MarketImageURL string          `json:"market_image_url" db:"market_image_url"`
	OptionImageURL string          `json:"option_image_url" db:"option_image_url"`
	CreatedAt      time.Time       `json:"created_at"       db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Parlay
// ──────────────────────────────────────────────────────────────────────────────

// Parlay is a placed compound bet.  The JSON blob columns (ParlayData,
// QuoteSnapshot, HedgingPlan) are captured at placement time and never mutated
// afterwards.
type Parlay struct {
	SessionID            string          `json:"session_id"       db:"session_id"`
	UserID               uuid.UUID       `json:"user_id"          db:"user_id"`
	Environment          Environment     `json:"environment"      db:"environment"`
	Stake                decimal.Decimal `json:"stake"            db:"stake"`
	Payout               decimal.Decimal `json:"payout"           db:"payout"` // promised if all legs win
	ParlayData           json.RawMessage `json:"parlay_data"      db:"parlay_data"`
	QuoteSnapshot        json.RawMessage `json:"quote_snapshot"   db:"quote_snapshot"`
	HedgingPlan          json.RawMessage `json:"hedging_plan"     db:"hedging_plan"`
	Status               ParlayStatus    `json:"status"           db:"status"`
	ClaimableAmount      decimal.Decimal `json:"claimable_amount" db:"claimable_amount"`
	ClaimedAt            *time.Time      `json:"claimed_at"       db:"claimed_at"`
	SettleAttempts       int             `json:"settle_attempts"  db:"settle_attempts"`
	NeedsAttentionReason *string         `json:"needs_attention_reason" db:"needs_attention_reason"`
	CreatedAt            time.Time       `json:"created_at"       db:"created_at"`
}

// MarketStatus is the venue-reported lifecycle of a leg's market.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "open"
	MarketSettled MarketStatus = "settled"
)

// LegResult is the per-leg resolution against the user's selection.
type LegResult string

const (
	LegPending LegResult = "pending"
	LegWin     LegResult = "win"
	LegLoss    LegResult = "loss"
	LegVoid    LegResult = "void"
)

// LegOutcome is the settlement record for one leg of a placed parlay.
// Exactly one row exists per leg, created pending at placement.
type LegOutcome struct {
	ParlaySessionID string       `json:"parlay_session_id" db:"parlay_session_id"`
	LegNumber       int          `json:"leg_number"        db:"leg_number"`
	Ticker          string       `json:"ticker"            db:"ticker"`
	Side            Side         `json:"side"              db:"side"`
	ExpectedOutcome Side         `json:"expected_outcome"  db:"expected_outcome"`
	MarketStatus    MarketStatus `json:"market_status"     db:"market_status"`
	Outcome         LegResult    `json:"outcome"           db:"outcome"`
	SettledAt       *time.Time   `json:"settled_at"        db:"settled_at"`
}

// IsSettled reports whether the leg's market has resolved.
func (l *LegOutcome) IsSettled() bool {
	return l.MarketStatus == MarketSettled && l.Outcome != LegPending
}

// ──────────────────────────────────────────────────────────────────────────────
// API views
// ──────────────────────────────────────────────────────────────────────────────

// ParlayWithLegs is the history view: a parlay with its embedded leg outcomes.
type ParlayWithLegs struct {
	Parlay
	LegOutcomes []LegOutcome `json:"leg_outcomes"`
}

// DecideParlayOutcome folds settled leg outcomes into a parlay-level decision.
//
//	any settled loss                          → lost (remaining legs irrelevant)
//	all settled, at least one win, no loss    → won, claimable = promised payout
//	all settled, all void                     → won, claimable = stake (full refund)
//	otherwise                                 → still pending
//
// Void legs count as wins for payout purposes; this is a declared product
// policy and is surfaced to users in the history view.
func DecideParlayOutcome(stake, payout decimal.Decimal, legs []LegOutcome) (ParlayStatus, decimal.Decimal) {
	wins := 0
	settled := 0
	for _, l := range legs {
		switch l.Outcome {
		case LegLoss:
			return ParlayLost, decimal.Zero
		case LegWin:
			wins++
			settled++
		case LegVoid:
			settled++
		}
	}
	if settled < len(legs) {
		return ParlayPending, decimal.Zero
	}
	if wins == 0 {
		// Every leg voided: refund the stake rather than paying quoted odds.
		return ParlayWon, stake
	}
	return ParlayWon, payout
}

// ResolveLeg maps a settled market result onto the user's selection.
// A voided market voids the leg regardless of the selection.
func ResolveLeg(expected Side, result string) LegResult {
	switch result {
	case "void":
		return LegVoid
	case string(expected):
		return LegWin
	default:
		return LegLoss
	}
}
