package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// ParlayRepository handles all database operations for placed parlays and
// their per-leg outcome rows.
type ParlayRepository struct {
	db *sqlx.DB
}

// NewParlayRepository creates a new ParlayRepository.
func NewParlayRepository(db *sqlx.DB) *ParlayRepository {
	return &ParlayRepository{db: db}
}

// BeginTx starts a database transaction.  Services own transaction scope; the
// repository only exposes the handle so placement, claim, and settlement can
// compose multi-table writes.
func (r *ParlayRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("parlay_repo.BeginTx: %w", err)
	}
	return tx, nil
}

// ── Creation ─────────────────────────────────────────────────────────────────

// Create inserts a new parlay inside an existing transaction.
func (r *ParlayRepository) Create(ctx context.Context, tx *sqlx.Tx, p *domain.Parlay) error {
	query := `
		INSERT INTO parlays
			(session_id, user_id, environment, stake, payout, parlay_data, quote_snapshot,
			 hedging_plan, status, claimable_amount, claimed_at, settle_attempts,
			 needs_attention_reason, created_at)
		VALUES
			(:session_id, :user_id, :environment, :stake, :payout, :parlay_data, :quote_snapshot,
			 :hedging_plan, :status, :claimable_amount, :claimed_at, :settle_attempts,
			 :needs_attention_reason, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("parlay_repo.Create: %w", err)
	}
	return nil
}

// CreateLegOutcome inserts one pending leg outcome row inside a transaction.
func (r *ParlayRepository) CreateLegOutcome(ctx context.Context, tx *sqlx.Tx, l *domain.LegOutcome) error {
	query := `
		INSERT INTO leg_outcomes
			(parlay_session_id, leg_number, ticker, side, expected_outcome,
			 market_status, outcome, settled_at)
		VALUES
			(:parlay_session_id, :leg_number, :ticker, :side, :expected_outcome,
			 :market_status, :outcome, :settled_at)`
	if _, err := tx.NamedExecContext(ctx, query, l); err != nil {
		return fmt.Errorf("parlay_repo.CreateLegOutcome: %w", err)
	}
	return nil
}

// ── Lookup ───────────────────────────────────────────────────────────────────

// GetBySessionID fetches a parlay by its session id.
func (r *ParlayRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Parlay, error) {
	var p domain.Parlay
	err := r.db.GetContext(ctx, &p, `SELECT * FROM parlays WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrParlayNotFound
		}
		return nil, fmt.Errorf("parlay_repo.GetBySessionID: %w", err)
	}
	return &p, nil
}

// GetLegOutcomes returns the leg outcome rows of one parlay in leg order.
func (r *ParlayRepository) GetLegOutcomes(ctx context.Context, sessionID string) ([]domain.LegOutcome, error) {
	var legs []domain.LegOutcome
	err := r.db.SelectContext(ctx, &legs, `
		SELECT * FROM leg_outcomes
		WHERE parlay_session_id = $1
		ORDER BY leg_number ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("parlay_repo.GetLegOutcomes: %w", err)
	}
	return legs, nil
}

// GetWithLegs returns one parlay together with its leg outcomes.
func (r *ParlayRepository) GetWithLegs(ctx context.Context, sessionID string) (*domain.ParlayWithLegs, error) {
	p, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	legs, err := r.GetLegOutcomes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &domain.ParlayWithLegs{Parlay: *p, LegOutcomes: legs}, nil
}

// ListByUser returns a user's parlays, newest first, each with its legs.
func (r *ParlayRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.ParlayWithLegs, error) {
	var parlays []domain.Parlay
	err := r.db.SelectContext(ctx, &parlays, `
		SELECT * FROM parlays
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("parlay_repo.ListByUser: %w", err)
	}

	out := make([]*domain.ParlayWithLegs, 0, len(parlays))
	for i := range parlays {
		legs, err := r.GetLegOutcomes(ctx, parlays[i].SessionID)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.ParlayWithLegs{Parlay: parlays[i], LegOutcomes: legs})
	}
	return out, nil
}

// ListPendingSessionIDs returns the session ids of parlays the settlement
// worker should visit, oldest first.
func (r *ParlayRepository) ListPendingSessionIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT session_id FROM parlays
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("parlay_repo.ListPendingSessionIDs: %w", err)
	}
	return ids, nil
}

// ListByStatus returns parlays in one status, newest first (back-office view).
func (r *ParlayRepository) ListByStatus(ctx context.Context, status domain.ParlayStatus, limit, offset int) ([]*domain.Parlay, error) {
	var parlays []*domain.Parlay
	err := r.db.SelectContext(ctx, &parlays, `
		SELECT * FROM parlays
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("parlay_repo.ListByStatus: %w", err)
	}
	return parlays, nil
}

// CountByStatus returns the parlay count per status (dashboard).
func (r *ParlayRepository) CountByStatus(ctx context.Context) (map[domain.ParlayStatus]int, error) {
	rows := []struct {
		Status domain.ParlayStatus `db:"status"`
		N      int                 `db:"n"`
	}{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS n FROM parlays GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("parlay_repo.CountByStatus: %w", err)
	}
	out := make(map[domain.ParlayStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

// ── Settlement writes ────────────────────────────────────────────────────────

// AcquireSettleLock takes a transaction-scoped advisory lock for one parlay.
// Returns false without blocking when another settlement pass holds it.  The
// lock releases automatically at commit or rollback.
func (r *ParlayRepository) AcquireSettleLock(ctx context.Context, tx *sqlx.Tx, sessionID string) (bool, error) {
	var got bool
	err := tx.GetContext(ctx, &got,
		`SELECT pg_try_advisory_xact_lock(hashtext($1))`,
		sessionID)
	if err != nil {
		return false, fmt.Errorf("parlay_repo.AcquireSettleLock: %w", err)
	}
	return got, nil
}

// GetForSettlement re-reads a parlay inside the settlement transaction with
// FOR UPDATE.  Returns ErrParlaySettled when the row already left pending, so
// a concurrent pass that lost the race backs off cleanly.
func (r *ParlayRepository) GetForSettlement(ctx context.Context, tx *sqlx.Tx, sessionID string) (*domain.Parlay, error) {
	var p domain.Parlay
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM parlays WHERE session_id = $1 FOR UPDATE`,
		sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrParlayNotFound
		}
		return nil, fmt.Errorf("parlay_repo.GetForSettlement: %w", err)
	}
	if p.Status != domain.ParlayPending {
		return nil, domain.ErrParlaySettled
	}
	return &p, nil
}

// UpdateLegOutcome records a leg's settled market state inside a transaction.
func (r *ParlayRepository) UpdateLegOutcome(ctx context.Context, tx *sqlx.Tx, sessionID string, legNumber int, status domain.MarketStatus, outcome domain.LegResult) error {
	var settledAt *time.Time
	if outcome != domain.LegPending {
		now := time.Now().UTC()
		settledAt = &now
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE leg_outcomes
		SET market_status = $1,
		    outcome       = $2,
		    settled_at    = $3
		WHERE parlay_session_id = $4 AND leg_number = $5`,
		string(status), string(outcome), settledAt, sessionID, legNumber)
	if err != nil {
		return fmt.Errorf("parlay_repo.UpdateLegOutcome: %w", err)
	}
	return nil
}

// Settle writes the terminal status of a parlay inside a transaction.  Only
// pending rows transition; terminal states are monotonic.
func (r *ParlayRepository) Settle(ctx context.Context, tx *sqlx.Tx, sessionID string, status domain.ParlayStatus, claimable decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE parlays
		SET status           = $1,
		    claimable_amount = $2
		WHERE session_id = $3 AND status = 'pending'`,
		string(status), claimable, sessionID)
	if err != nil {
		return fmt.Errorf("parlay_repo.Settle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParlaySettled
	}
	return nil
}

// RecordSettleFailure increments the attempt counter and, past maxAttempts,
// pins the parlay to needs_attention with the given reason.  Returns the new
// status.
func (r *ParlayRepository) RecordSettleFailure(ctx context.Context, sessionID, reason string, maxAttempts int) (domain.ParlayStatus, error) {
	var status domain.ParlayStatus
	err := r.db.GetContext(ctx, &status, `
		UPDATE parlays
		SET settle_attempts = settle_attempts + 1,
		    status = CASE WHEN settle_attempts + 1 >= $1 THEN 'needs_attention' ELSE status END,
		    needs_attention_reason = CASE WHEN settle_attempts + 1 >= $1 THEN $2 ELSE needs_attention_reason END
		WHERE session_id = $3 AND status = 'pending'
		RETURNING status`,
		maxAttempts, reason, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrParlaySettled
		}
		return "", fmt.Errorf("parlay_repo.RecordSettleFailure: %w", err)
	}
	return status, nil
}

// MarkNeedsAttention pins a pending parlay immediately, bypassing the attempt
// counter.  Used for permanent disagreements (e.g. venue says a leg's market
// does not exist).
func (r *ParlayRepository) MarkNeedsAttention(ctx context.Context, sessionID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE parlays
		SET status                 = 'needs_attention',
		    needs_attention_reason = $1
		WHERE session_id = $2 AND status = 'pending'`,
		reason, sessionID)
	if err != nil {
		return fmt.Errorf("parlay_repo.MarkNeedsAttention: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParlaySettled
	}
	return nil
}

// Requeue returns a needs_attention parlay to pending and resets its attempt
// counter (operator action).
func (r *ParlayRepository) Requeue(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE parlays
		SET status                 = 'pending',
		    settle_attempts        = 0,
		    needs_attention_reason = NULL
		WHERE session_id = $1 AND status = 'needs_attention'`,
		sessionID)
	if err != nil {
		return fmt.Errorf("parlay_repo.Requeue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParlayNotFound
	}
	return nil
}

// ── Claim ────────────────────────────────────────────────────────────────────

// MarkClaimed stamps claimed_at inside a transaction.  The claimed_at IS NULL
// guard makes the claim exactly-once: a concurrent duplicate affects zero rows
// and gets ErrAlreadyClaimed without any balance move.
func (r *ParlayRepository) MarkClaimed(ctx context.Context, tx *sqlx.Tx, sessionID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE parlays
		SET claimed_at = now()
		WHERE session_id = $1 AND status = 'won' AND claimed_at IS NULL`,
		sessionID)
	if err != nil {
		return fmt.Errorf("parlay_repo.MarkClaimed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyClaimed
	}
	return nil
}
