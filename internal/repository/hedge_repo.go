package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// HedgeRepository handles all database operations for hedge orders.
type HedgeRepository struct {
	db *sqlx.DB
}

// NewHedgeRepository creates a new HedgeRepository.
func NewHedgeRepository(db *sqlx.DB) *HedgeRepository {
	return &HedgeRepository{db: db}
}

// Create persists a hedge order in submitting state.  Written BEFORE the venue
// call so a crash mid-submission leaves a row that reconciliation can replay
// (the ClientOrderID makes the venue-side retry idempotent).
func (r *HedgeRepository) Create(ctx context.Context, o *domain.HedgeOrder) error {
	query := `
		INSERT INTO hedge_orders
			(client_order_id, parlay_session_id, leg_number, ticker, side, count,
			 limit_price_cents, status, venue_order_id, failure_reason,
			 filled_count, avg_price_cents, pnl_applied, created_at, updated_at)
		VALUES
			(:client_order_id, :parlay_session_id, :leg_number, :ticker, :side, :count,
			 :limit_price_cents, :status, :venue_order_id, :failure_reason,
			 :filled_count, :avg_price_cents, :pnl_applied, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("hedge_repo.Create: %w", err)
	}
	return nil
}

// MarkAccepted records the venue's acknowledgement of a submitted order.
func (r *HedgeRepository) MarkAccepted(ctx context.Context, clientOrderID, venueOrderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE hedge_orders
		SET status         = 'accepted',
		    venue_order_id = $1,
		    updated_at     = now()
		WHERE client_order_id = $2`,
		venueOrderID, clientOrderID)
	if err != nil {
		return fmt.Errorf("hedge_repo.MarkAccepted: %w", err)
	}
	return nil
}

// MarkFailed records a permanent submission failure.  Failed hedges never
// block settlement; they only show up on the back-office dashboard.
func (r *HedgeRepository) MarkFailed(ctx context.Context, clientOrderID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE hedge_orders
		SET status         = 'failed',
		    failure_reason = $1,
		    updated_at     = now()
		WHERE client_order_id = $2`,
		reason, clientOrderID)
	if err != nil {
		return fmt.Errorf("hedge_repo.MarkFailed: %w", err)
	}
	return nil
}

// MarkFilled records execution details from the venue's fill reports.
func (r *HedgeRepository) MarkFilled(ctx context.Context, clientOrderID string, filledCount, avgPriceCents int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE hedge_orders
		SET status          = 'filled',
		    filled_count    = $1,
		    avg_price_cents = $2,
		    updated_at      = now()
		WHERE client_order_id = $3 AND status IN ('accepted', 'filled')`,
		filledCount, avgPriceCents, clientOrderID)
	if err != nil {
		return fmt.Errorf("hedge_repo.MarkFilled: %w", err)
	}
	return nil
}

// MarkSettled flips pnl_applied inside the settlement transaction.  The
// pnl_applied = FALSE guard means a hedge's P&L hits the pool exactly once;
// callers must skip the pool adjustment when no row transitions.
func (r *HedgeRepository) MarkSettled(ctx context.Context, tx *sqlx.Tx, clientOrderID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE hedge_orders
		SET status      = 'settled',
		    pnl_applied = TRUE,
		    updated_at  = now()
		WHERE client_order_id = $1 AND pnl_applied = FALSE`,
		clientOrderID)
	if err != nil {
		return false, fmt.Errorf("hedge_repo.MarkSettled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetByClientOrderID fetches one hedge order.
func (r *HedgeRepository) GetByClientOrderID(ctx context.Context, clientOrderID string) (*domain.HedgeOrder, error) {
	var o domain.HedgeOrder
	err := r.db.GetContext(ctx, &o,
		`SELECT * FROM hedge_orders WHERE client_order_id = $1`, clientOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("hedge_repo.GetByClientOrderID: no such order %s", clientOrderID)
		}
		return nil, fmt.Errorf("hedge_repo.GetByClientOrderID: %w", err)
	}
	return &o, nil
}

// ListBySession returns all hedge orders of one parlay in leg order.
func (r *HedgeRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.HedgeOrder, error) {
	var orders []*domain.HedgeOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM hedge_orders
		WHERE parlay_session_id = $1
		ORDER BY leg_number ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("hedge_repo.ListBySession: %w", err)
	}
	return orders, nil
}

// ListStaleSubmitting returns orders stuck in submitting state for longer
// than the given interval (e.g. '5 minutes').  These are crash leftovers that
// reconciliation replays against the venue.
func (r *HedgeRepository) ListStaleSubmitting(ctx context.Context, olderThan string) ([]*domain.HedgeOrder, error) {
	var orders []*domain.HedgeOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM hedge_orders
		WHERE status = 'submitting'
		  AND updated_at < now() - $1::interval
		ORDER BY created_at ASC`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("hedge_repo.ListStaleSubmitting: %w", err)
	}
	return orders, nil
}

// ListFailed returns failed hedge orders, newest first (back-office view).
func (r *HedgeRepository) ListFailed(ctx context.Context, limit, offset int) ([]*domain.HedgeOrder, error) {
	var orders []*domain.HedgeOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM hedge_orders
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("hedge_repo.ListFailed: %w", err)
	}
	return orders, nil
}
