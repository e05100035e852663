package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// DraftRepository handles the parlay slip: leg selections persisted between
// sessions until the parlay is placed.
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Add inserts one draft leg.
func (r *DraftRepository) Add(ctx context.Context, leg *domain.LegDraft) error {
	query := `
		INSERT INTO parlay_drafts
			(id, user_id, environment, market_id, ticker, market_title, option_label,
			 side, prob, market_url, market_image_url, option_image_url, created_at)
		VALUES
			(:id, :user_id, :environment, :market_id, :ticker, :market_title, :option_label,
			 :side, :prob, :market_url, :market_image_url, :option_image_url, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leg); err != nil {
		return fmt.Errorf("draft_repo.Add: %w", err)
	}
	return nil
}

// ListByUser returns a user's draft legs for one environment, oldest first,
// so leg numbering at placement matches insertion order.
func (r *DraftRepository) ListByUser(ctx context.Context, userID uuid.UUID, env domain.Environment) ([]*domain.LegDraft, error) {
	var legs []*domain.LegDraft
	err := r.db.SelectContext(ctx, &legs, `
		SELECT * FROM parlay_drafts
		WHERE user_id = $1 AND environment = $2
		ORDER BY created_at ASC`,
		userID, string(env))
	if err != nil {
		return nil, fmt.Errorf("draft_repo.ListByUser: %w", err)
	}
	return legs, nil
}

// Delete removes one draft leg, scoped to the owning user.
func (r *DraftRepository) Delete(ctx context.Context, userID, legID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM parlay_drafts WHERE id = $1 AND user_id = $2`,
		legID, userID)
	if err != nil {
		return fmt.Errorf("draft_repo.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDraftLegNotFound
	}
	return nil
}

// ClearForUser deletes all of a user's draft legs in one environment inside a
// transaction.  Called by placement so the slip empties atomically with the
// parlay insert.
func (r *DraftRepository) ClearForUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, env domain.Environment) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM parlay_drafts WHERE user_id = $1 AND environment = $2`,
		userID, string(env))
	if err != nil {
		return fmt.Errorf("draft_repo.ClearForUser: %w", err)
	}
	return nil
}

// Clear empties a user's slip for one environment outside any transaction
// (explicit reset from the API).
func (r *DraftRepository) Clear(ctx context.Context, userID uuid.UUID, env domain.Environment) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM parlay_drafts WHERE user_id = $1 AND environment = $2`,
		userID, string(env))
	if err != nil {
		return fmt.Errorf("draft_repo.Clear: %w", err)
	}
	return nil
}
