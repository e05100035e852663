package service

import (
	"context"
	"encoding/json"
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

// Hedger is the minimal interface ParlayService needs from HedgingService.
type Hedger interface {
	ExecutePlan(ctx context.Context, sessionID string, plan domain.HedgePlan)
}

// ParlayService orchestrates the parlay lifecycle on the user side: draft
// slip management, atomic placement, history, and claiming winnings.
// Settlement lives in SettlementService.
type ParlayService struct {
	db         *sqlx.DB
	parlayRepo *repository.ParlayRepository
	draftRepo  *repository.DraftRepository
	walletRepo *repository.WalletRepository
	quotes     *QuoteService
	hedger     Hedger
	cfg        *config.Config
	logger     *slog.Logger
}

// NewParlayService creates a ParlayService.
func NewParlayService(
	db *sqlx.DB,
	parlayRepo *repository.ParlayRepository,
	draftRepo *repository.DraftRepository,
	walletRepo *repository.WalletRepository,
	quotes *QuoteService,
	cfg *config.Config,
	logger *slog.Logger,
) *ParlayService {
	return &ParlayService{
		db:         db,
		parlayRepo: parlayRepo,
		draftRepo:  draftRepo,
		walletRepo: walletRepo,
		quotes:     quotes,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetHedger injects the HedgingService dependency post-construction.
func (s *ParlayService) SetHedger(h Hedger) { s.hedger = h }

// ──────────────────────────────────────────────────────────────────────────────
// Draft slip
// ──────────────────────────────────────────────────────────────────────────────

// AddDraftLeg appends one selection to the user's slip.  The leg environment
// must match the process environment; drafts never cross universes.
func (s *ParlayService) AddDraftLeg(ctx context.Context, leg *domain.LegDraft) error {
	if !leg.Side.IsValid() {
		return fmt.Errorf("parlay_service.AddDraftLeg: %w: got %q", domain.ErrInvalidSide, leg.Side)
	}
	if !leg.Prob.IsPositive() || leg.Prob.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return domain.ErrInvalidProbability
	}
	if leg.Environment != domain.Environment(s.cfg.Environment) {
		return domain.ErrEnvironmentMismatch
	}
	leg.ID = uuid.New()
	leg.CreatedAt = time.Now().UTC()
	return s.draftRepo.Add(ctx, leg)
}

// GetDraftLegs returns the user's slip for the process environment.
func (s *ParlayService) GetDraftLegs(ctx context.Context, userID uuid.UUID) ([]*domain.LegDraft, error) {
	return s.draftRepo.ListByUser(ctx, userID, domain.Environment(s.cfg.Environment))
}

// DeleteDraftLeg removes one selection from the user's slip.
func (s *ParlayService) DeleteDraftLeg(ctx context.Context, userID, legID uuid.UUID) error {
	return s.draftRepo.Delete(ctx, userID, legID)
}

// ClearDraftLegs empties the user's slip for the process environment.
func (s *ParlayService) ClearDraftLegs(ctx context.Context, userID uuid.UUID) error {
	return s.draftRepo.Clear(ctx, userID, domain.Environment(s.cfg.Environment))
}

// ──────────────────────────────────────────────────────────────────────────────
// Quoting
// ──────────────────────────────────────────────────────────────────────────────

// QuoteParlay prices an explicit leg list (stateless; the caller may quote
// without touching the slip).
func (s *ParlayService) QuoteParlay(ctx context.Context, legs []domain.QuoteLeg, stake decimal.Decimal) (*domain.Quote, error) {
	return s.quotes.GenerateQuote(ctx, legs, stake)
}

// ──────────────────────────────────────────────────────────────────────────────
// Placement
// ──────────────────────────────────────────────────────────────────────────────

// PlaceParlayRequest is the placement input.  Legs are the slip content as
// confirmed by the user; the server re-prices them rather than trusting a
// client-side quote.
type PlaceParlayRequest struct {
	UserID      uuid.UUID          `json:"user_id"`
	Environment domain.Environment `json:"environment"`
	Stake       decimal.Decimal    `json:"stake"`
	Legs        []domain.QuoteLeg  `json:"legs"`
}

// PlaceParlay atomically books a parlay: re-prices the legs, debits the
// wallet, moves the stake into the liquidity pool, persists the parlay with
// its quote and hedge-plan snapshots plus one pending leg outcome per leg,
// clears the slip, and writes the ledger row — all in one transaction.
//
// After commit, the hedge plan executes asynchronously; its failures never
// unwind the placement.
func (s *ParlayService) PlaceParlay(ctx context.Context, req PlaceParlayRequest) (p *domain.Parlay, err error) {
	if req.Environment != domain.Environment(s.cfg.Environment) {
		return nil, domain.ErrEnvironmentMismatch
	}

	quote, err := s.quotes.GenerateQuote(ctx, req.Legs, req.Stake)
	if err != nil {
		return nil, err
	}

	parlayData, err := json.Marshal(req.Legs)
	if err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: marshal legs: %w", err)
	}
	quoteSnapshot, err := json.Marshal(quote)
	if err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: marshal quote: %w", err)
	}
	hedgePlan, err := json.Marshal(quote.HedgePlan)
	if err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: marshal hedge plan: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Stake moves wallet → pool at placement.  A lost parlay then needs no
	// further balance move; a won one claims from the pool.
	if err = s.walletRepo.Debit(ctx, tx, req.UserID, req.Stake); err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: debit: %w", err)
	}
	if err = s.walletRepo.AdjustPool(ctx, tx, req.Stake); err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: pool credit: %w", err)
	}

	now := time.Now().UTC()
	sessionID := "ps-" + uuid.NewString()
	p = &domain.Parlay{
		SessionID:       sessionID,
		UserID:          req.UserID,
		Environment:     req.Environment,
		Stake:           req.Stake,
		Payout:          quote.OfferedPayout,
		ParlayData:      parlayData,
		QuoteSnapshot:   quoteSnapshot,
		HedgingPlan:     hedgePlan,
		Status:          domain.ParlayPending,
		ClaimableAmount: decimal.Zero,
		CreatedAt:       now,
	}
	if err = s.parlayRepo.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: create parlay: %w", err)
	}

	for i, leg := range req.Legs {
		outcome := &domain.LegOutcome{
			ParlaySessionID: sessionID,
			LegNumber:       i + 1,
			Ticker:          leg.Ticker,
			Side:            leg.Side,
			ExpectedOutcome: leg.Side,
			MarketStatus:    domain.MarketOpen,
			Outcome:         domain.LegPending,
		}
		if err = s.parlayRepo.CreateLegOutcome(ctx, tx, outcome); err != nil {
			return nil, fmt.Errorf("parlay_service.PlaceParlay: create leg %d: %w", i+1, err)
		}
	}

	if err = s.draftRepo.ClearForUser(ctx, tx, req.UserID, req.Environment); err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: clear drafts: %w", err)
	}

	userID := req.UserID
	ev := &domain.LedgerEvent{
		ID:              uuid.New(),
		Kind:            domain.EventParlayStake,
		Actor:           "user:" + userID.String(),
		UserID:          &userID,
		ParlaySessionID: &sessionID,
		WalletDelta:     req.Stake.Neg(),
		PoolDelta:       req.Stake,
		Description:     fmt.Sprintf("parlay placed: %s", ExplainQuote(quote)),
		CreatedAt:       now,
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("parlay_service.PlaceParlay: commit: %w", err)
	}

	s.logger.Info("parlay placed",
		"session_id", sessionID, "user_id", req.UserID,
		"stake", req.Stake.StringFixed(2), "payout", quote.OfferedPayout.StringFixed(2),
		"legs", len(req.Legs), "hedged_legs", len(quote.HedgePlan.Legs))

	if s.hedger != nil && len(quote.HedgePlan.Legs) > 0 {
		plan := quote.HedgePlan
		go func() {
			hctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.hedger.ExecutePlan(hctx, sessionID, plan)
		}()
	}
	return p, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Lookup
// ──────────────────────────────────────────────────────────────────────────────

// GetHistory returns a user's parlays with leg outcomes, newest first.
func (s *ParlayService) GetHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.ParlayWithLegs, error) {
	return s.parlayRepo.ListByUser(ctx, userID, limit, offset)
}

// GetStatus returns one parlay with its legs, only to the owning user.
func (s *ParlayService) GetStatus(ctx context.Context, sessionID string, userID uuid.UUID) (*domain.ParlayWithLegs, error) {
	p, err := s.parlayRepo.GetWithLegs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim
// ──────────────────────────────────────────────────────────────────────────────

// ClaimWinnings moves a won parlay's claimable amount from the pool to the
// user's wallet, exactly once.  The claimed_at IS NULL row guard serializes
// concurrent claims: the loser of the race sees ErrAlreadyClaimed and no
// second payout happens.
func (s *ParlayService) ClaimWinnings(ctx context.Context, sessionID string, userID uuid.UUID) (amount decimal.Decimal, err error) {
	p, err := s.parlayRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	if p.UserID != userID {
		return decimal.Zero, domain.ErrForbidden
	}
	if p.Status != domain.ParlayWon {
		return decimal.Zero, domain.ErrNotClaimable
	}
	if p.ClaimedAt != nil {
		return decimal.Zero, domain.ErrAlreadyClaimed
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parlay_service.ClaimWinnings: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.parlayRepo.MarkClaimed(ctx, tx, sessionID); err != nil {
		return decimal.Zero, err
	}
	if err = s.walletRepo.AdjustPool(ctx, tx, p.ClaimableAmount.Neg()); err != nil {
		return decimal.Zero, fmt.Errorf("parlay_service.ClaimWinnings: pool debit: %w", err)
	}
	if err = s.walletRepo.Credit(ctx, tx, userID, p.ClaimableAmount); err != nil {
		return decimal.Zero, fmt.Errorf("parlay_service.ClaimWinnings: credit: %w", err)
	}

	ev := &domain.LedgerEvent{
		ID:              uuid.New(),
		Kind:            domain.EventClaim,
		Actor:           "user:" + userID.String(),
		UserID:          &userID,
		ParlaySessionID: &sessionID,
		WalletDelta:     p.ClaimableAmount,
		PoolDelta:       p.ClaimableAmount.Neg(),
		Description:     fmt.Sprintf("winnings claimed: %s", p.ClaimableAmount.StringFixed(2)),
		CreatedAt:       time.Now().UTC(),
	}
	if err = s.walletRepo.LogEvent(ctx, tx, ev); err != nil {
		return decimal.Zero, fmt.Errorf("parlay_service.ClaimWinnings: log event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("parlay_service.ClaimWinnings: commit: %w", err)
	}
	s.logger.Info("winnings claimed",
		"session_id", sessionID, "user_id", userID, "amount", p.ClaimableAmount.StringFixed(2))
	return p.ClaimableAmount, nil
}
