package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// WalletRepository handles all database operations for wallets, the liquidity
// pool singleton, the append-only ledger, withdrawal requests, and pending
// purchases.  Balance mutations only ever run inside a caller-owned
// transaction so every money move commits together with its ledger row.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// ── Wallets ──────────────────────────────────────────────────────────────────

// Create inserts a wallet for a user inside a transaction.  Idempotent: a
// second provisioning attempt for the same user is a no-op.
func (r *WalletRepository) Create(ctx context.Context, tx *sqlx.Tx, w *domain.Wallet) (bool, error) {
	query := `
		INSERT INTO wallets (id, user_id, balance, crypto_wallet_address, updated_at)
		VALUES (:id, :user_id, :balance, :crypto_wallet_address, :updated_at)
		ON CONFLICT (user_id) DO NOTHING`
	res, err := tx.NamedExecContext(ctx, query, w)
	if err != nil {
		return false, fmt.Errorf("wallet_repo.Create: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetByUserID fetches the wallet belonging to a specific user.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetByUserID: %w", err)
	}
	return &w, nil
}

// Debit subtracts amount from a user's balance inside a transaction.  Uses
// FOR UPDATE to serialize concurrent spends; returns ErrInsufficientFunds when
// the balance would go negative.
func (r *WalletRepository) Debit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrWalletNotFound
		}
		return fmt.Errorf("wallet_repo.Debit lock: %w", err)
	}

	if balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = now() WHERE user_id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("wallet_repo.Debit update: %w", err)
	}
	return nil
}

// Credit adds amount to a user's wallet inside a transaction.
func (r *WalletRepository) Credit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = now() WHERE user_id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("wallet_repo.Credit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// SetCryptoAddress stores the user's external wallet address for withdrawals.
func (r *WalletRepository) SetCryptoAddress(ctx context.Context, userID uuid.UUID, address string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET crypto_wallet_address = $1, updated_at = now() WHERE user_id = $2`,
		address, userID)
	if err != nil {
		return fmt.Errorf("wallet_repo.SetCryptoAddress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// ── Liquidity pool ───────────────────────────────────────────────────────────
// The pool is a singleton row (id = 1) holding the platform's aggregated P&L.

// GetPool returns the liquidity pool row.
func (r *WalletRepository) GetPool(ctx context.Context) (*domain.LiquidityPool, error) {
	var p domain.LiquidityPool
	err := r.db.GetContext(ctx, &p, `SELECT * FROM liquidity_pool WHERE id = 1`)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetPool: %w", err)
	}
	return &p, nil
}

// AdjustPool applies a signed delta to the pool balance inside a transaction.
// The pool balance may go negative; that represents expected future liability
// and is surfaced on the back-office dashboard rather than rejected here.
func (r *WalletRepository) AdjustPool(ctx context.Context, tx *sqlx.Tx, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE liquidity_pool SET balance = balance + $1 WHERE id = 1`,
		delta)
	if err != nil {
		return fmt.Errorf("wallet_repo.AdjustPool: %w", err)
	}
	return nil
}

// ── Ledger events ────────────────────────────────────────────────────────────

// LogEvent appends one audit row inside a transaction.  Every balance-changing
// write path calls this in the same transaction as the balance update.
func (r *WalletRepository) LogEvent(ctx context.Context, tx *sqlx.Tx, ev *domain.LedgerEvent) error {
	query := `
		INSERT INTO ledger_events
			(id, kind, actor, user_id, parlay_session_id, wallet_delta, pool_delta, description, created_at)
		VALUES
			(:id, :kind, :actor, :user_id, :parlay_session_id, :wallet_delta, :pool_delta, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("wallet_repo.LogEvent: %w", err)
	}
	return nil
}

// GetEventsByUser returns a user's ledger history, newest first, paginated.
func (r *WalletRepository) GetEventsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM ledger_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetEventsByUser: %w", err)
	}
	return events, nil
}

// GetRecentEvents returns the most recent ledger rows across all users
// (back-office view).
func (r *WalletRepository) GetRecentEvents(ctx context.Context, limit, offset int) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM ledger_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetRecentEvents: %w", err)
	}
	return events, nil
}

// ConservationCheck recomputes the money-conservation identity from live data:
//
//	sum(wallets) + pool + sum(pending withdrawals)
//	  == sum(completed deposits) - sum(completed withdrawals)
//	     + pool seed + demo provisioning
//
// Rather than encode the full right-hand side, it returns the left-hand total
// and the signed sum of all ledger deltas; the two must match.  A mismatch
// means a balance was written without its ledger row (or vice versa).
func (r *WalletRepository) ConservationCheck(ctx context.Context) (held, ledgered decimal.Decimal, err error) {
	err = r.db.GetContext(ctx, &held, `
		SELECT COALESCE((SELECT SUM(balance) FROM wallets), 0)
		     + (SELECT balance FROM liquidity_pool WHERE id = 1)`)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("wallet_repo.ConservationCheck held: %w", err)
	}
	err = r.db.GetContext(ctx, &ledgered, `
		SELECT COALESCE(SUM(wallet_delta + pool_delta), 0) FROM ledger_events`)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("wallet_repo.ConservationCheck ledgered: %w", err)
	}
	return held, ledgered, nil
}

// ── Withdrawal requests ──────────────────────────────────────────────────────

// CreateWithdrawal inserts a pending withdrawal request inside a transaction
// (the same one that debits the wallet).
func (r *WalletRepository) CreateWithdrawal(ctx context.Context, tx *sqlx.Tx, req *domain.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests
			(id, user_id, amount, status, venue_transfer_id, failure_reason, created_at, reviewed_at)
		VALUES
			(:id, :user_id, :amount, :status, :venue_transfer_id, :failure_reason, :created_at, :reviewed_at)`
	if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("wallet_repo.CreateWithdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal fetches one withdrawal request by id.
func (r *WalletRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := r.db.GetContext(ctx, &req, `SELECT * FROM withdrawal_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetWithdrawal: %w", err)
	}
	return &req, nil
}

// ListWithdrawals returns paginated withdrawal requests filtered by status.
// status="" means all statuses.
func (r *WalletRepository) ListWithdrawals(ctx context.Context, status string, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	var reqs []*domain.WithdrawalRequest
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &reqs, `
			SELECT * FROM withdrawal_requests
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &reqs, `
			SELECT * FROM withdrawal_requests
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.ListWithdrawals: %w", err)
	}
	return reqs, nil
}

// ResolveWithdrawal moves a pending request to completed or failed inside a
// transaction.  Only pending rows transition, so a double review is rejected
// with ErrWithdrawalNotPending instead of silently overwriting.
func (r *WalletRepository) ResolveWithdrawal(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.WithdrawalStatus, transferID, failureReason *string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status            = $1,
		    venue_transfer_id = $2,
		    failure_reason    = $3,
		    reviewed_at       = now()
		WHERE id = $4 AND status = 'pending'`,
		string(status), transferID, failureReason, id)
	if err != nil {
		return fmt.Errorf("wallet_repo.ResolveWithdrawal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrWithdrawalNotPending
	}
	return nil
}

// ── Pending purchases (deposit on-ramp) ──────────────────────────────────────

// CreatePurchase records a deposit intent keyed by the payment provider's
// session id.
func (r *WalletRepository) CreatePurchase(ctx context.Context, p *domain.PendingPurchase) error {
	query := `
		INSERT INTO pending_purchases
			(session_id, user_id, amount, status, created_at, completed_at)
		VALUES
			(:session_id, :user_id, :amount, :status, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("wallet_repo.CreatePurchase: %w", err)
	}
	return nil
}

// GetPurchase fetches a pending purchase by provider session id.
func (r *WalletRepository) GetPurchase(ctx context.Context, sessionID string) (*domain.PendingPurchase, error) {
	var p domain.PendingPurchase
	err := r.db.GetContext(ctx, &p, `SELECT * FROM pending_purchases WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetPurchase: %w", err)
	}
	return &p, nil
}

// ResolvePurchase moves a pending purchase to completed or failed inside a
// transaction.  Only pending rows transition, which makes webhook redelivery
// idempotent: the second delivery affects zero rows.
func (r *WalletRepository) ResolvePurchase(ctx context.Context, tx *sqlx.Tx, sessionID string, status domain.PurchaseStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE pending_purchases
		SET status       = $1,
		    completed_at = now()
		WHERE session_id = $2 AND status = 'pending'`,
		string(status), sessionID)
	if err != nil {
		return false, fmt.Errorf("wallet_repo.ResolvePurchase: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListPurchasesByUser returns a user's deposit history, newest first.
func (r *WalletRepository) ListPurchasesByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.PendingPurchase, error) {
	var ps []*domain.PendingPurchase
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM pending_purchases
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.ListPurchasesByUser: %w", err)
	}
	return ps, nil
}
