package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/repository"
)

// VenueTransferer is the minimal interface LedgerService needs from the venue
// client for withdrawal completion.
type VenueTransferer interface {
	TransferOut(ctx context.Context, userHandle string, amount decimal.Decimal) (string, error)
}

// LedgerService owns every balance-changing write path: wallet provisioning,
// deposits, withdrawals, and the back-office adjustments.  Each mutation runs
// in one PostgreSQL transaction together with its ledger_events row, so
// balances and the audit log can never disagree.
type LedgerService struct {
	db         *sqlx.DB
	userRepo   *repository.UserRepository
	walletRepo *repository.WalletRepository
	venue      VenueTransferer
	cfg        *config.Config
	logger     *slog.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	db *sqlx.DB,
	userRepo *repository.UserRepository,
	walletRepo *repository.WalletRepository,
	venue VenueTransferer,
	cfg *config.Config,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		db:         db,
		userRepo:   userRepo,
		walletRepo: walletRepo,
		venue:      venue,
		cfg:        cfg,
		logger:     logger,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Provisioning
// ──────────────────────────────────────────────────────────────────────────────

// ProvisionUser upserts a user from the identity-provider signup webhook and
// creates their wallet.  Demo wallets start with the configured balance;
// production wallets start empty.  Idempotent across webhook redelivery: the
// wallet insert is ON CONFLICT DO NOTHING and the starting balance is only
// credited when the insert actually created a row.
func (s *LedgerService) ProvisionUser(ctx context.Context, userID uuid.UUID, email string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.ProvisionUser: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if err = s.userRepo.Upsert(ctx, tx, &domain.User{ID: userID, Email: email, CreatedAt: now}); err != nil {
		return fmt.Errorf("ledger_service.ProvisionUser: upsert user: %w", err)
	}

	starting := decimal.Zero
	if !s.cfg.IsProd() {
		starting = decimal.NewFromFloat(s.cfg.Wallet.DemoStartingBalance)
	}

	created, err := s.walletRepo.Create(ctx, tx, &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   starting,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("ledger_service.ProvisionUser: create wallet: %w", err)
	}

	if created && starting.IsPositive() {
		ev := &domain.LedgerEvent{
			ID:          uuid.New(),
			Kind:        domain.EventWalletProvisioning,
			Actor:       "webhook",
			UserID:      &userID,
			WalletDelta: starting,
			PoolDelta:   decimal.Zero,
			Description: "demo starting balance",
			CreatedAt:   now,
		}
		if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("ledger_service.ProvisionUser: log event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.ProvisionUser: commit: %w", err)
	}
	if created {
		s.logger.Info("wallet provisioned", "user_id", userID, "starting_balance", starting.StringFixed(2))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetWallet returns a user's wallet.
func (s *LedgerService) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return s.walletRepo.GetByUserID(ctx, userID)
}

// GetTransactions returns a user's ledger history, newest first.
func (s *LedgerService) GetTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LedgerEvent, error) {
	return s.walletRepo.GetEventsByUser(ctx, userID, limit, offset)
}

// SetCryptoAddress stores the user's external wallet address.
func (s *LedgerService) SetCryptoAddress(ctx context.Context, userID uuid.UUID, address string) error {
	return s.walletRepo.SetCryptoAddress(ctx, userID, address)
}

// ──────────────────────────────────────────────────────────────────────────────
// Deposits (on-ramp)
// ──────────────────────────────────────────────────────────────────────────────

// CreatePurchaseIntent records a deposit intent before the user is redirected
// to the payment provider.  The provider webhook later carries only the
// session id; the amount lives here.
func (s *LedgerService) CreatePurchaseIntent(ctx context.Context, userID uuid.UUID, sessionID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidStake
	}
	if _, err := s.walletRepo.GetByUserID(ctx, userID); err != nil {
		return err
	}
	p := &domain.PendingPurchase{
		SessionID: sessionID,
		UserID:    userID,
		Amount:    amount,
		Status:    domain.PurchasePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.walletRepo.CreatePurchase(ctx, p); err != nil {
		return fmt.Errorf("ledger_service.CreatePurchaseIntent: %w", err)
	}
	return nil
}

// CompletePurchase settles a deposit from the payment-provider webhook.
// Idempotent: only a pending purchase transitions, so a redelivered webhook
// credits nothing the second time.
func (s *LedgerService) CompletePurchase(ctx context.Context, sessionID string, succeeded bool) (err error) {
	purchase, err := s.walletRepo.GetPurchase(ctx, sessionID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.CompletePurchase: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	status := domain.PurchaseCompleted
	if !succeeded {
		status = domain.PurchaseFailed
	}
	transitioned, err := s.walletRepo.ResolvePurchase(ctx, tx, sessionID, status)
	if err != nil {
		return err
	}
	if !transitioned {
		// Already resolved; webhook redelivery.
		_ = tx.Rollback()
		return nil
	}

	if succeeded {
		if err = s.walletRepo.Credit(ctx, tx, purchase.UserID, purchase.Amount); err != nil {
			return fmt.Errorf("ledger_service.CompletePurchase: credit: %w", err)
		}
		userID := purchase.UserID
		ev := &domain.LedgerEvent{
			ID:          uuid.New(),
			Kind:        domain.EventDeposit,
			Actor:       "webhook",
			UserID:      &userID,
			WalletDelta: purchase.Amount,
			PoolDelta:   decimal.Zero,
			Description: fmt.Sprintf("deposit %s (session %s)", purchase.Amount.StringFixed(2), sessionID),
			CreatedAt:   time.Now().UTC(),
		}
		if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("ledger_service.CompletePurchase: log event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.CompletePurchase: commit: %w", err)
	}
	s.logger.Info("purchase resolved", "session_id", sessionID, "succeeded", succeeded)
	return nil
}

// GetPurchaseHistory returns a user's deposit history, newest first.
func (s *LedgerService) GetPurchaseHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.PendingPurchase, error) {
	return s.walletRepo.ListPurchasesByUser(ctx, userID, limit, offset)
}

// ──────────────────────────────────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────────────────────────────────

// RequestWithdrawal debits the wallet and opens a pending withdrawal request
// in one transaction.  The funds are held by the request until an operator
// completes or fails it.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (req *domain.WithdrawalRequest, err error) {
	if amount.LessThan(decimal.NewFromFloat(s.cfg.Wallet.MinWithdraw)) {
		return nil, domain.ErrBelowMinWithdraw
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.RequestWithdrawal: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.walletRepo.Debit(ctx, tx, userID, amount); err != nil {
		return nil, fmt.Errorf("ledger_service.RequestWithdrawal: debit: %w", err)
	}

	now := time.Now().UTC()
	req = &domain.WithdrawalRequest{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Status:    domain.WithdrawalPending,
		CreatedAt: now,
	}
	if err = s.walletRepo.CreateWithdrawal(ctx, tx, req); err != nil {
		return nil, fmt.Errorf("ledger_service.RequestWithdrawal: create request: %w", err)
	}

	ev := &domain.LedgerEvent{
		ID:          uuid.New(),
		Kind:        domain.EventWithdrawOpen,
		Actor:       "user:" + userID.String(),
		UserID:      &userID,
		WalletDelta: amount.Neg(),
		PoolDelta:   decimal.Zero,
		Description: fmt.Sprintf("withdrawal %s opened (request %s)", amount.StringFixed(2), req.ID),
		CreatedAt:   now,
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return nil, fmt.Errorf("ledger_service.RequestWithdrawal: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledger_service.RequestWithdrawal: commit: %w", err)
	}
	return req, nil
}

// CompleteWithdrawal executes a pending withdrawal: transfers the funds out
// through the venue, then marks the request completed.  The wallet was already
// debited at open, so no balance moves here.  Operator action.
func (s *LedgerService) CompleteWithdrawal(ctx context.Context, requestID uuid.UUID) (err error) {
	req, err := s.walletRepo.GetWithdrawal(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.WithdrawalPending {
		return domain.ErrWithdrawalNotPending
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return err
	}
	handle := req.UserID.String()
	if wallet.CryptoWalletAddress != nil && *wallet.CryptoWalletAddress != "" {
		handle = *wallet.CryptoWalletAddress
	}

	// Venue call outside the transaction: it can be slow or fail, and its own
	// idempotency is per transfer attempt.
	transferID, err := s.venue.TransferOut(ctx, handle, req.Amount)
	if err != nil {
		return fmt.Errorf("ledger_service.CompleteWithdrawal: venue transfer: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.CompleteWithdrawal: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.walletRepo.ResolveWithdrawal(ctx, tx, requestID, domain.WithdrawalCompleted, &transferID, nil); err != nil {
		return err
	}

	userID := req.UserID
	ev := &domain.LedgerEvent{
		ID:          uuid.New(),
		Kind:        domain.EventWithdrawComplete,
		Actor:       "backoffice",
		UserID:      &userID,
		WalletDelta: decimal.Zero, // debited at open
		PoolDelta:   decimal.Zero,
		Description: fmt.Sprintf("withdrawal %s completed, venue transfer %s", req.Amount.StringFixed(2), transferID),
		CreatedAt:   time.Now().UTC(),
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("ledger_service.CompleteWithdrawal: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.CompleteWithdrawal: commit: %w", err)
	}
	s.logger.Info("withdrawal completed", "request_id", requestID, "transfer_id", transferID)
	return nil
}

// FailWithdrawal rejects a pending withdrawal and refunds the held amount to
// the wallet.  Operator action.
func (s *LedgerService) FailWithdrawal(ctx context.Context, requestID uuid.UUID, reason string) (err error) {
	req, err := s.walletRepo.GetWithdrawal(ctx, requestID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.FailWithdrawal: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.walletRepo.ResolveWithdrawal(ctx, tx, requestID, domain.WithdrawalFailed, nil, &reason); err != nil {
		return err
	}
	if err = s.walletRepo.Credit(ctx, tx, req.UserID, req.Amount); err != nil {
		return fmt.Errorf("ledger_service.FailWithdrawal: refund: %w", err)
	}

	userID := req.UserID
	ev := &domain.LedgerEvent{
		ID:          uuid.New(),
		Kind:        domain.EventWithdrawFailed,
		Actor:       "backoffice",
		UserID:      &userID,
		WalletDelta: req.Amount,
		PoolDelta:   decimal.Zero,
		Description: fmt.Sprintf("withdrawal %s failed: %s", req.Amount.StringFixed(2), reason),
		CreatedAt:   time.Now().UTC(),
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("ledger_service.FailWithdrawal: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.FailWithdrawal: commit: %w", err)
	}
	s.logger.Info("withdrawal failed", "request_id", requestID, "reason", reason)
	return nil
}

// ListWithdrawals returns withdrawal requests filtered by status (back-office).
func (s *LedgerService) ListWithdrawals(ctx context.Context, status string, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	return s.walletRepo.ListWithdrawals(ctx, status, limit, offset)
}

// ──────────────────────────────────────────────────────────────────────────────
// Back-office adjustments & dashboard
// ──────────────────────────────────────────────────────────────────────────────

// AdminAdjustWallet applies a signed adjustment to a user's wallet with an
// audit trail.  Negative adjustments still respect the non-negative balance
// invariant.
func (s *LedgerService) AdminAdjustWallet(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, note string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustWallet: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if delta.IsNegative() {
		err = s.walletRepo.Debit(ctx, tx, userID, delta.Neg())
	} else {
		err = s.walletRepo.Credit(ctx, tx, userID, delta)
	}
	if err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustWallet: %w", err)
	}

	ev := &domain.LedgerEvent{
		ID:          uuid.New(),
		Kind:        domain.EventAdminWalletAdjust,
		Actor:       "backoffice",
		UserID:      &userID,
		WalletDelta: delta,
		PoolDelta:   decimal.Zero,
		Description: note,
		CreatedAt:   time.Now().UTC(),
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustWallet: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustWallet: commit: %w", err)
	}
	return nil
}

// AdminAdjustPool applies a signed adjustment to the liquidity pool (seeding
// or draining house capital) with an audit trail.
func (s *LedgerService) AdminAdjustPool(ctx context.Context, delta decimal.Decimal, note string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustPool: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.walletRepo.AdjustPool(ctx, tx, delta); err != nil {
		return err
	}
	ev := &domain.LedgerEvent{
		ID:          uuid.New(),
		Kind:        domain.EventAdminPoolAdjust,
		Actor:       "backoffice",
		WalletDelta: decimal.Zero,
		PoolDelta:   delta,
		Description: note,
		CreatedAt:   time.Now().UTC(),
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustPool: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.AdminAdjustPool: commit: %w", err)
	}
	return nil
}

// PoolSnapshot is the back-office liquidity dashboard payload.
type PoolSnapshot struct {
	Pool            *domain.LiquidityPool `json:"pool"`
	HeldTotal       decimal.Decimal       `json:"held_total"`
	LedgeredTotal   decimal.Decimal       `json:"ledgered_total"`
	ConservationOK  bool                  `json:"conservation_ok"`
	RecentEvents    []*domain.LedgerEvent `json:"recent_events"`
}

// GetPoolSnapshot returns the pool balance plus the conservation check: the
// sum of all held balances must equal the signed sum of all ledger deltas.
func (s *LedgerService) GetPoolSnapshot(ctx context.Context) (*PoolSnapshot, error) {
	pool, err := s.walletRepo.GetPool(ctx)
	if err != nil {
		return nil, err
	}
	held, ledgered, err := s.walletRepo.ConservationCheck(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.walletRepo.GetRecentEvents(ctx, 50, 0)
	if err != nil {
		return nil, err
	}
	if !held.Equal(ledgered) {
		s.logger.Error("ledger conservation mismatch",
			"held", held.StringFixed(4), "ledgered", ledgered.StringFixed(4))
	}
	return &PoolSnapshot{
		Pool:           pool,
		HeldTotal:      held,
		LedgeredTotal:  ledgered,
		ConservationOK: held.Equal(ledgered),
		RecentEvents:   events,
	}, nil
}
