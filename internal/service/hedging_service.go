package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/repository"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// VenueTrader is the minimal interface HedgingService needs from the venue
// client.
type VenueTrader interface {
	PlaceOrder(ctx context.Context, order venue.OrderRequest) (*venue.OrderResult, error)
	ListFills(ctx context.Context, q venue.FillsQuery) ([]venue.Fill, error)
}

// HedgingService executes hedge plans against the venue.  Hedging is
// best-effort by design: the user's parlay is already committed when hedging
// runs, so a hedge failure is a house-risk event, never a user-facing error.
type HedgingService struct {
	trader    VenueTrader
	hedgeRepo *repository.HedgeRepository
	logger    *slog.Logger
}

// NewHedgingService creates a HedgingService.
func NewHedgingService(trader VenueTrader, hedgeRepo *repository.HedgeRepository, logger *slog.Logger) *HedgingService {
	return &HedgingService{trader: trader, hedgeRepo: hedgeRepo, logger: logger}
}

// ──────────────────────────────────────────────────────────────────────────────
// Plan execution
// ──────────────────────────────────────────────────────────────────────────────

// ExecutePlan submits every hedge leg of a placed parlay.  Runs after the
// placement transaction committed, typically in a goroutine.  Legs fail
// independently: one rejected order never stops the rest of the plan.
//
// Crash safety: each order row is persisted in submitting state BEFORE the
// venue call.  A crash between persist and acknowledgement leaves a stale
// submitting row that ReconcileStale replays; the ClientOrderID makes the
// replay idempotent at the venue.
func (s *HedgingService) ExecutePlan(ctx context.Context, sessionID string, plan domain.HedgePlan) {
	for _, leg := range plan.Legs {
		costCents := domain.ContractCostCents(leg.Prob)
		count := domain.ContractCount(leg.Notional, costCents)
		if count < 1 {
			s.logger.Info("hedge leg below one contract, skipping",
				"session_id", sessionID, "leg", leg.LegNumber,
				"notional", leg.Notional.StringFixed(2), "cost_cents", costCents)
			continue
		}

		clientOrderID := fmt.Sprintf("hedge-%s-%d-%d", sessionID, leg.LegNumber, time.Now().UnixMilli())
		now := time.Now().UTC()
		order := &domain.HedgeOrder{
			ClientOrderID:   clientOrderID,
			ParlaySessionID: sessionID,
			LegNumber:       leg.LegNumber,
			Ticker:          leg.Ticker,
			Side:            leg.Side,
			Count:           count,
			Status:          domain.HedgeSubmitting,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.hedgeRepo.Create(ctx, order); err != nil {
			s.logger.Error("persist hedge order failed, leg skipped",
				"session_id", sessionID, "leg", leg.LegNumber, "error", err)
			continue
		}

		s.submit(ctx, order)
	}
}

// submit sends one persisted order to the venue and records the outcome.
func (s *HedgingService) submit(ctx context.Context, order *domain.HedgeOrder) {
	result, err := s.trader.PlaceOrder(ctx, venue.OrderRequest{
		Ticker:        order.Ticker,
		Side:          string(order.Side),
		Count:         order.Count,
		Type:          "market",
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		if venue.IsRetryable(err) {
			// Leave the row in submitting; ReconcileStale replays it later.
			s.logger.Warn("hedge order transient failure, left for reconciliation",
				"client_order_id", order.ClientOrderID, "error", err)
			return
		}
		if markErr := s.hedgeRepo.MarkFailed(ctx, order.ClientOrderID, err.Error()); markErr != nil {
			s.logger.Error("mark hedge failed", "client_order_id", order.ClientOrderID, "error", markErr)
		}
		s.logger.Warn("hedge order rejected",
			"client_order_id", order.ClientOrderID, "ticker", order.Ticker, "error", err)
		return
	}

	if err := s.hedgeRepo.MarkAccepted(ctx, order.ClientOrderID, result.VenueOrderID); err != nil {
		s.logger.Error("mark hedge accepted", "client_order_id", order.ClientOrderID, "error", err)
		return
	}
	s.logger.Info("hedge order accepted",
		"client_order_id", order.ClientOrderID,
		"venue_order_id", result.VenueOrderID,
		"ticker", order.Ticker, "count", order.Count)
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────────────────────────────────

// ReconcileStale replays hedge orders stuck in submitting state (crash or
// transient-failure leftovers).  Safe to run repeatedly: the venue dedupes on
// ClientOrderID, so a replay of an order that actually went through just
// returns the original acknowledgement.
func (s *HedgingService) ReconcileStale(ctx context.Context) error {
	stale, err := s.hedgeRepo.ListStaleSubmitting(ctx, "5 minutes")
	if err != nil {
		return fmt.Errorf("hedging_service.ReconcileStale: %w", err)
	}
	for _, order := range stale {
		s.logger.Info("replaying stale hedge order", "client_order_id", order.ClientOrderID)
		s.submit(ctx, order)
	}
	return nil
}

// RefreshFills pulls execution reports for a parlay's accepted hedge orders
// and records fill counts and average prices.  Called by settlement before it
// applies hedge P&L.
func (s *HedgingService) RefreshFills(ctx context.Context, sessionID string) ([]*domain.HedgeOrder, error) {
	orders, err := s.hedgeRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for _, order := range orders {
		if order.Status != domain.HedgeAccepted || order.VenueOrderID == nil {
			continue
		}
		fills, err := s.trader.ListFills(ctx, venue.FillsQuery{
			Ticker:  order.Ticker,
			SinceMS: order.CreatedAt.UnixMilli(),
		})
		if err != nil {
			// Transient: settlement retries next pass.
			return nil, fmt.Errorf("hedging_service.RefreshFills: %w", err)
		}

		var filled, weighted int64
		for _, f := range fills {
			if f.VenueOrderID != *order.VenueOrderID {
				continue
			}
			filled += f.FilledCount
			weighted += f.FilledCount * f.AvgPrice
		}
		if filled == 0 {
			continue
		}
		avg := domain.AvgFillPriceCents(weighted, filled)
		if err := s.hedgeRepo.MarkFilled(ctx, order.ClientOrderID, filled, avg); err != nil {
			return nil, err
		}
		order.Status = domain.HedgeFilled
		order.FilledCount = &filled
		order.AvgPriceCents = &avg
	}
	return orders, nil
}

// ListBySession returns a parlay's hedge orders (API and back-office views).
func (s *HedgingService) ListBySession(ctx context.Context, sessionID string) ([]*domain.HedgeOrder, error) {
	return s.hedgeRepo.ListBySession(ctx, sessionID)
}

// FailedOrders returns permanently failed hedge orders (back-office view).
func (s *HedgingService) FailedOrders(ctx context.Context, limit, offset int) ([]*domain.HedgeOrder, error) {
	return s.hedgeRepo.ListFailed(ctx, limit, offset)
}
