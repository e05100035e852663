package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/repository"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// MarketReader is the minimal interface SettlementService needs from the
// venue client.
type MarketReader interface {
	GetMarket(ctx context.Context, marketID string) (*venue.Market, error)
}

// FillRefresher is the minimal interface SettlementService needs from
// HedgingService.
type FillRefresher interface {
	RefreshFills(ctx context.Context, sessionID string) ([]*domain.HedgeOrder, error)
	ReconcileStale(ctx context.Context) error
}

// SettlementService resolves pending parlays against the venue.  It is
// pull-based: each pass polls leg markets, folds the results into a parlay
// decision, and books the outcome plus hedge P&L in one transaction per
// parlay.  Terminal states are monotonic; a settled parlay is never revisited.
type SettlementService struct {
	db         *sqlx.DB
	parlayRepo *repository.ParlayRepository
	hedgeRepo  *repository.HedgeRepository
	walletRepo *repository.WalletRepository
	markets    MarketReader
	hedges     FillRefresher
	cfg        *config.Config
	logger     *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	db *sqlx.DB,
	parlayRepo *repository.ParlayRepository,
	hedgeRepo *repository.HedgeRepository,
	walletRepo *repository.WalletRepository,
	markets MarketReader,
	hedges FillRefresher,
	cfg *config.Config,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		db:         db,
		parlayRepo: parlayRepo,
		hedgeRepo:  hedgeRepo,
		walletRepo: walletRepo,
		markets:    markets,
		hedges:     hedges,
		cfg:        cfg,
		logger:     logger,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Pass orchestration
// ──────────────────────────────────────────────────────────────────────────────

// passBatchLimit bounds how many pending parlays one pass visits.  Backlogs
// drain across passes rather than making any single pass unbounded.
const passBatchLimit = 500

// RunPass visits pending parlays with bounded parallelism.  The pass as a
// whole is capped at the configured T_PASS_MAX; parlays not reached this pass
// are picked up by the next one.  Safe to run concurrently with itself: the
// per-parlay advisory lock makes double-visits no-ops.
func (s *SettlementService) RunPass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Settlement.PassMax)
	defer cancel()

	if err := s.hedges.ReconcileStale(ctx); err != nil {
		s.logger.Warn("stale hedge reconciliation failed", "error", err)
	}

	ids, err := s.parlayRepo.ListPendingSessionIDs(ctx, passBatchLimit)
	if err != nil {
		s.logger.Error("settlement pass: list pending", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	s.logger.Info("settlement pass started", "pending", len(ids))

	sem := make(chan struct{}, s.cfg.Settlement.Parallelism)
	var wg sync.WaitGroup
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("settlement panic", "session_id", sessionID, "panic", r)
				}
			}()
			s.settleOne(ctx, sessionID)
		}(id)
	}
	wg.Wait()
}

// settleRetryBase is the first in-pass backoff delay for transient venue
// failures; it doubles per attempt.
const settleRetryBase = 200 * time.Millisecond

// RetryTransient runs fn up to attempts times, doubling the backoff between
// tries while the failure stays venue-transient.  Permanent errors, success,
// and context cancellation all end the loop immediately.
func RetryTransient(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !venue.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(base << i):
		}
	}
	return err
}

// settleOne runs the settlement attempt for a single parlay and routes
// failures into the retry/needs_attention machinery.  Transient venue errors
// retry within the pass with exponential backoff; if the venue stays down the
// parlay is simply left pending for the next pass.  Only permanent errors
// burn the attempt counter that pins to needs_attention.
func (s *SettlementService) settleOne(ctx context.Context, sessionID string) {
	err := RetryTransient(ctx, s.cfg.Settlement.MaxAttempts, settleRetryBase, func() error {
		return s.trySettle(ctx, sessionID)
	})
	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrParlaySettled):
		// Lost a race with a concurrent pass; nothing to do.
		return
	case venue.IsRetryable(err):
		// Venue outage outlasted the in-pass retries.  The parlay stays
		// pending and the next pass tries again; an outage must never pin
		// parlays to needs_attention.
		s.logger.Warn("venue unavailable, parlay left pending", "session_id", sessionID, "error", err)
	case errors.Is(err, venue.ErrMarketNotFound):
		// Permanent disagreement with the venue: operators must look.
		s.logger.Error("settlement pinned to needs_attention", "session_id", sessionID, "error", err)
		if pinErr := s.parlayRepo.MarkNeedsAttention(ctx, sessionID, err.Error()); pinErr != nil && !errors.Is(pinErr, domain.ErrParlaySettled) {
			s.logger.Error("mark needs_attention failed", "session_id", sessionID, "error", pinErr)
		}
	default:
		status, recErr := s.parlayRepo.RecordSettleFailure(ctx, sessionID, err.Error(), s.cfg.Settlement.MaxAttempts)
		if recErr != nil && !errors.Is(recErr, domain.ErrParlaySettled) {
			s.logger.Error("record settle failure", "session_id", sessionID, "error", recErr)
			return
		}
		if status == domain.ParlayNeedsAttention {
			s.logger.Error("settlement failures exhausted", "session_id", sessionID, "error", err)
		} else {
			s.logger.Warn("settlement attempt failed, will retry", "session_id", sessionID, "error", err)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Per-parlay settlement
// ──────────────────────────────────────────────────────────────────────────────

// legUpdate is a venue-observed change to one leg, staged outside the
// transaction and applied inside it.
type legUpdate struct {
	legNumber int
	status    domain.MarketStatus
	outcome   domain.LegResult
}

// trySettle polls the venue for a parlay's pending legs, then books whatever
// it learned.  All venue I/O happens before the transaction opens; the
// transaction itself only writes.
func (s *SettlementService) trySettle(ctx context.Context, sessionID string) error {
	p, err := s.parlayRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if p.Status != domain.ParlayPending {
		return nil
	}
	legs, err := s.parlayRepo.GetLegOutcomes(ctx, sessionID)
	if err != nil {
		return err
	}

	// ── 1. Poll the venue for every still-pending leg ────────────────────────
	var updates []legUpdate
	projected := make([]domain.LegOutcome, len(legs))
	copy(projected, legs)
	for i, leg := range legs {
		if leg.Outcome != domain.LegPending {
			continue
		}
		market, err := s.markets.GetMarket(ctx, leg.Ticker)
		if err != nil {
			return fmt.Errorf("settlement: leg %d market %s: %w", leg.LegNumber, leg.Ticker, err)
		}
		if market.Status != "settled" {
			continue
		}
		outcome := domain.ResolveLeg(leg.ExpectedOutcome, market.Result)
		updates = append(updates, legUpdate{
			legNumber: leg.LegNumber,
			status:    domain.MarketSettled,
			outcome:   outcome,
		})
		projected[i].MarketStatus = domain.MarketSettled
		projected[i].Outcome = outcome
	}

	status, claimable := domain.DecideParlayOutcome(p.Stake, p.Payout, projected)
	if len(updates) == 0 && status == domain.ParlayPending {
		return nil // nothing new
	}

	// ── 2. Hedge fills (venue I/O, still outside the tx) ─────────────────────
	// P&L applies only once the parlay goes terminal; until then fills just
	// get recorded.
	var hedgeOrders []*domain.HedgeOrder
	if status != domain.ParlayPending {
		hedgeOrders, err = s.hedges.RefreshFills(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("settlement: refresh fills: %w", err)
		}
	}

	// ── 3. Book everything in one transaction ────────────────────────────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	got, err := s.parlayRepo.AcquireSettleLock(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if !got {
		_ = tx.Rollback()
		return nil // concurrent pass owns this parlay
	}
	if _, err = s.parlayRepo.GetForSettlement(ctx, tx, sessionID); err != nil {
		return err
	}

	for _, u := range updates {
		if err = s.parlayRepo.UpdateLegOutcome(ctx, tx, sessionID, u.legNumber, u.status, u.outcome); err != nil {
			return err
		}
	}

	if status != domain.ParlayPending {
		if err = s.parlayRepo.Settle(ctx, tx, sessionID, status, claimable); err != nil {
			return err
		}
		if err = s.logDecision(ctx, tx, p, status, claimable); err != nil {
			return err
		}
		if err = s.applyHedgePnL(ctx, tx, sessionID, projected, hedgeOrders); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement: commit: %w", err)
	}

	if status != domain.ParlayPending {
		s.logger.Info("parlay settled",
			"session_id", sessionID, "status", string(status),
			"claimable", claimable.StringFixed(2))
	}
	return nil
}

// logDecision writes the ledger row for a terminal parlay decision.  Neither
// outcome moves a balance here: the stake moved at placement, and winnings
// move at claim.  The rows exist so the audit trail shows WHEN each parlay
// resolved and for how much.
func (s *SettlementService) logDecision(ctx context.Context, tx *sqlx.Tx, p *domain.Parlay, status domain.ParlayStatus, claimable decimal.Decimal) error {
	userID := p.UserID
	sessionID := p.SessionID
	ev := &domain.LedgerEvent{
		ID:              uuid.New(),
		Actor:           "settlement",
		UserID:          &userID,
		ParlaySessionID: &sessionID,
		WalletDelta:     decimal.Zero,
		PoolDelta:       decimal.Zero,
		CreatedAt:       time.Now().UTC(),
	}
	if status == domain.ParlayWon {
		ev.Kind = domain.EventClaimableRecorded
		ev.Description = fmt.Sprintf("parlay won, %s claimable", claimable.StringFixed(2))
	} else {
		ev.Kind = domain.EventParlayLost
		ev.Description = fmt.Sprintf("parlay lost, stake %s retained by pool", p.Stake.StringFixed(2))
	}
	return s.walletRepo.LogEvent(ctx, tx, ev)
}

// applyHedgePnL books each filled hedge order's profit or loss into the pool,
// exactly once per order (guarded by pnl_applied).
func (s *SettlementService) applyHedgePnL(ctx context.Context, tx *sqlx.Tx, sessionID string, legs []domain.LegOutcome, orders []*domain.HedgeOrder) error {
	outcomeByLeg := make(map[int]domain.LegResult, len(legs))
	for _, l := range legs {
		outcomeByLeg[l.LegNumber] = l.Outcome
	}

	for _, order := range orders {
		if order.Status != domain.HedgeFilled || order.FilledCount == nil || order.AvgPriceCents == nil {
			continue
		}
		outcome, ok := outcomeByLeg[order.LegNumber]
		if !ok || outcome == domain.LegPending {
			continue
		}

		pnlCents := domain.HedgeOrderPnLCents(outcome, *order.FilledCount, *order.AvgPriceCents)

		transitioned, err := s.hedgeRepo.MarkSettled(ctx, tx, order.ClientOrderID)
		if err != nil {
			return err
		}
		if !transitioned || pnlCents == 0 {
			continue
		}

		pnl := decimal.NewFromInt(pnlCents).Div(decimal.NewFromInt(100))
		if err := s.walletRepo.AdjustPool(ctx, tx, pnl); err != nil {
			return err
		}
		kind := domain.EventHedgeWin
		if pnl.IsNegative() {
			kind = domain.EventHedgeLoss
		}
		ev := &domain.LedgerEvent{
			ID:              uuid.New(),
			Kind:            kind,
			Actor:           "settlement",
			ParlaySessionID: &sessionID,
			WalletDelta:     decimal.Zero,
			PoolDelta:       pnl,
			Description: fmt.Sprintf("hedge %s: %d contracts at %d¢, pnl %s",
				order.ClientOrderID, *order.FilledCount, *order.AvgPriceCents, pnl.StringFixed(2)),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Operator surface
// ──────────────────────────────────────────────────────────────────────────────

// SettleNow triggers a settlement attempt for one parlay outside the polling
// cadence (back-office action).
func (s *SettlementService) SettleNow(ctx context.Context, sessionID string) error {
	return s.trySettle(ctx, sessionID)
}

// Requeue returns a needs_attention parlay to the pending queue.
func (s *SettlementService) Requeue(ctx context.Context, sessionID string) error {
	if err := s.parlayRepo.Requeue(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("parlay requeued for settlement", "session_id", sessionID)
	return nil
}

// ListNeedsAttention returns parlays pinned for operator review.
func (s *SettlementService) ListNeedsAttention(ctx context.Context, limit, offset int) ([]*domain.Parlay, error) {
	return s.parlayRepo.ListByStatus(ctx, domain.ParlayNeedsAttention, limit, offset)
}
