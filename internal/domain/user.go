package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// User & Wallet
// ──────────────────────────────────────────────────────────────────────────────

// User is created from the identity-provider signup webhook.  The id is the
// provider's opaque subject; the platform never authenticates users itself.
type User struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Email     string    `json:"email"      db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Wallet holds a user's spendable balance.  Invariant: Balance >= 0 at all
// times; the only writers are ledger transactions.
type Wallet struct {
	ID                  uuid.UUID       `json:"id"                    db:"id"`
	UserID              uuid.UUID       `json:"user_id"               db:"user_id"`
	Balance             decimal.Decimal `json:"balance"               db:"balance"`
	CryptoWalletAddress *string         `json:"crypto_wallet_address" db:"crypto_wallet_address"`
	UpdatedAt           time.Time       `json:"updated_at"            db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger events
// ──────────────────────────────────────────────────────────────────────────────

// LedgerEventKind labels one monetary movement in the append-only audit log.
type LedgerEventKind string

const (
	EventDeposit            LedgerEventKind = "deposit"
	EventParlayStake        LedgerEventKind = "parlay_stake"       // wallet → pool at placement
	EventParlayLost         LedgerEventKind = "parlay_lost"        // stake retained by pool, no balance move
	EventClaimableRecorded  LedgerEventKind = "claimable_recorded" // liability noted on a won parlay
	EventClaim              LedgerEventKind = "claim"              // pool → wallet
	EventWithdrawOpen       LedgerEventKind = "withdraw_open"      // wallet debited, request pending
	EventWithdrawComplete   LedgerEventKind = "withdraw_complete"
	EventWithdrawFailed     LedgerEventKind = "withdraw_failed" // wallet credited back
	EventHedgeWin           LedgerEventKind = "hedge_win"       // venue fill paid out to pool
	EventHedgeLoss          LedgerEventKind = "hedge_loss"      // venue fill cost borne by pool
	EventAdminPoolAdjust    LedgerEventKind = "admin_pool_adjust"
	EventAdminWalletAdjust  LedgerEventKind = "admin_wallet_adjust"
	EventWalletProvisioning LedgerEventKind = "wallet_provisioning" // demo starting balance
)

// LedgerEvent is one append-only audit row.  WalletDelta and PoolDelta are
// signed; their sum over any window reconciles against deposits minus
// completed withdrawals (conservation).
type LedgerEvent struct {
	ID              uuid.UUID       `json:"id"                db:"id"`
	Kind            LedgerEventKind `json:"kind"              db:"kind"`
	Actor           string          `json:"actor"             db:"actor"` // "user:<id>", "settlement", "backoffice", "webhook"
	UserID          *uuid.UUID      `json:"user_id"           db:"user_id"`
	ParlaySessionID *string         `json:"parlay_session_id" db:"parlay_session_id"`
	WalletDelta     decimal.Decimal `json:"wallet_delta"      db:"wallet_delta"`
	PoolDelta       decimal.Decimal `json:"pool_delta"        db:"pool_delta"`
	Description     string          `json:"description"       db:"description"`
	CreatedAt       time.Time       `json:"created_at"        db:"created_at"`
}

// LiquidityPool is the platform's aggregated P&L account.  The balance is
// signed: a negative balance represents expected future liability.
type LiquidityPool struct {
	ID          int16           `json:"id"          db:"id"`
	Balance     decimal.Decimal `json:"balance"     db:"balance"`
	Description string          `json:"description" db:"description"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────────────────────────────────

// WithdrawalStatus is the lifecycle state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// WithdrawalRequest tracks funds leaving the platform.  The wallet is debited
// when the request opens; a failed request credits the wallet back.
type WithdrawalRequest struct {
	ID              uuid.UUID        `json:"id"                db:"id"`
	UserID          uuid.UUID        `json:"user_id"           db:"user_id"`
	Amount          decimal.Decimal  `json:"amount"            db:"amount"`
	Status          WithdrawalStatus `json:"status"            db:"status"`
	VenueTransferID *string          `json:"venue_transfer_id" db:"venue_transfer_id"`
	FailureReason   *string          `json:"failure_reason"    db:"failure_reason"`
	CreatedAt       time.Time        `json:"created_at"        db:"created_at"`
	ReviewedAt      *time.Time       `json:"reviewed_at"       db:"reviewed_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Deposits (on-ramp)
// ──────────────────────────────────────────────────────────────────────────────

// PurchaseStatus is the lifecycle state of a pending deposit.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// PendingPurchase records an on-ramp deposit awaiting the payment processor's
// webhook.  The processor carries only the session id; amounts live here.
type PendingPurchase struct {
	SessionID   string          `json:"session_id"   db:"session_id"`
	UserID      uuid.UUID       `json:"user_id"      db:"user_id"`
	Amount      decimal.Decimal `json:"amount"       db:"amount"`
	Status      PurchaseStatus  `json:"status"       db:"status"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at" db:"completed_at"`
}
