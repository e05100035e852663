package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/api/middleware"
	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// ParlayOps is the slice of ParlayService the handler uses, narrowed to an
// interface so handler tests can run against a fake.
type ParlayOps interface {
	AddDraftLeg(ctx context.Context, leg *domain.LegDraft) error
	GetDraftLegs(ctx context.Context, userID uuid.UUID) ([]*domain.LegDraft, error)
	DeleteDraftLeg(ctx context.Context, userID, legID uuid.UUID) error
	ClearDraftLegs(ctx context.Context, userID uuid.UUID) error
	QuoteParlay(ctx context.Context, legs []domain.QuoteLeg, stake decimal.Decimal) (*domain.Quote, error)
	PlaceParlay(ctx context.Context, req service.PlaceParlayRequest) (*domain.Parlay, error)
	GetHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.ParlayWithLegs, error)
	GetStatus(ctx context.Context, sessionID string, userID uuid.UUID) (*domain.ParlayWithLegs, error)
	ClaimWinnings(ctx context.Context, sessionID string, userID uuid.UUID) (decimal.Decimal, error)
}

// SettlementPoller triggers an on-demand settlement attempt for one parlay.
type SettlementPoller interface {
	SettleNow(ctx context.Context, sessionID string) error
}

// ParlayHandler serves the parlay lifecycle: draft slip, quoting, placement,
// history, status, and claims.
type ParlayHandler struct {
	parlaySvc ParlayOps
	settler   SettlementPoller
}

// NewParlayHandler creates a ParlayHandler.  settler may be nil, in which
// case status reads skip the on-demand settlement attempt.
func NewParlayHandler(parlaySvc ParlayOps, settler SettlementPoller) *ParlayHandler {
	return &ParlayHandler{parlaySvc: parlaySvc, settler: settler}
}

// ──────────────────────────────────────────────────────────────────────────────
// Draft slip
// ──────────────────────────────────────────────────────────────────────────────

// AddDraftLeg godoc
// POST /api/parlay-draft [JWT]
func (h *ParlayHandler) AddDraftLeg(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Environment    string `json:"environment"  binding:"required"`
		MarketID       string `json:"market_id"    binding:"required"`
		Ticker         string `json:"ticker"       binding:"required"`
		MarketTitle    string `json:"market_title" binding:"required"`
		OptionLabel    string `json:"option_label" binding:"required"`
		Side           string `json:"side"         binding:"required"`
		Prob           string `json:"prob"         binding:"required"`
		MarketURL      string `json:"market_url"`
		MarketImageURL string `json:"market_image_url"`
		OptionImageURL string `json:"option_image_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	prob, err := decimal.NewFromString(body.Prob)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PROB", "prob must be a decimal string")
		return
	}

	leg := &domain.LegDraft{
		UserID:         userID,
		Environment:    domain.Environment(body.Environment),
		MarketID:       body.MarketID,
		Ticker:         body.Ticker,
		MarketTitle:    body.MarketTitle,
		OptionLabel:    body.OptionLabel,
		Side:           domain.Side(body.Side),
		Prob:           prob,
		MarketURL:      body.MarketURL,
		MarketImageURL: body.MarketImageURL,
		OptionImageURL: body.OptionImageURL,
	}
	if err := h.parlaySvc.AddDraftLeg(c.Request.Context(), leg); err != nil {
		respondDomainError(c, err, "could not add draft leg")
		return
	}
	respondSuccess(c, http.StatusCreated, leg)
}

// GetDraftLegs godoc
// GET /api/parlay-draft [JWT]
func (h *ParlayHandler) GetDraftLegs(c *gin.Context) {
	userID := middleware.GetUserID(c)
	legs, err := h.parlaySvc.GetDraftLegs(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err, "could not fetch draft legs")
		return
	}
	respondSuccess(c, http.StatusOK, legs)
}

// DeleteDraftLeg godoc
// DELETE /api/parlay-draft/:legId [JWT]
func (h *ParlayHandler) DeleteDraftLeg(c *gin.Context) {
	userID := middleware.GetUserID(c)
	legID, err := uuid.Parse(c.Param("legId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LEG_ID", "invalid leg id")
		return
	}
	if err := h.parlaySvc.DeleteDraftLeg(c.Request.Context(), userID, legID); err != nil {
		respondDomainError(c, err, "could not delete draft leg")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": legID})
}

// ClearDraftLegs godoc
// DELETE /api/parlay-draft [JWT]
func (h *ParlayHandler) ClearDraftLegs(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if err := h.parlaySvc.ClearDraftLegs(c.Request.Context(), userID); err != nil {
		respondDomainError(c, err, "could not clear draft legs")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"cleared": true})
}

// ──────────────────────────────────────────────────────────────────────────────
// Quote & placement
// ──────────────────────────────────────────────────────────────────────────────

// legsBody is the shared legs+stake request payload for quote and placement.
type legsBody struct {
	Stake string `json:"stake" binding:"required"`
	Legs  []struct {
		MarketTitle string `json:"market_title" binding:"required"`
		OptionLabel string `json:"option_label" binding:"required"`
		Ticker      string `json:"ticker"`
		Side        string `json:"side"`
		Prob        string `json:"prob"         binding:"required"`
	} `json:"legs" binding:"required"`
}

// toQuoteLegs converts the wire legs into domain legs.
func (b legsBody) toQuoteLegs() ([]domain.QuoteLeg, decimal.Decimal, error) {
	stake, err := decimal.NewFromString(b.Stake)
	if err != nil {
		return nil, decimal.Zero, err
	}
	legs := make([]domain.QuoteLeg, 0, len(b.Legs))
	for _, l := range b.Legs {
		prob, err := decimal.NewFromString(l.Prob)
		if err != nil {
			return nil, decimal.Zero, err
		}
		legs = append(legs, domain.QuoteLeg{
			MarketTitle: l.MarketTitle,
			OptionLabel: l.OptionLabel,
			Ticker:      l.Ticker,
			Side:        domain.Side(l.Side),
			Prob:        prob,
		})
	}
	return legs, stake, nil
}

// Quote godoc
// POST /api/quote [JWT]
// Body: {"stake":"10.00","legs":[{"market_title":"...","option_label":"...","prob":"62.5"},...]}
func (h *ParlayHandler) Quote(c *gin.Context) {
	var body legsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	legs, stake, err := body.toQuoteLegs()
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DECIMAL", "stake and prob must be decimal strings")
		return
	}

	quote, err := h.parlaySvc.QuoteParlay(c.Request.Context(), legs, stake)
	if err != nil {
		respondDomainError(c, err, "could not generate quote")
		return
	}
	respondSuccess(c, http.StatusOK, quote)
}

// PlaceParlay godoc
// POST /api/place-parlay [JWT]
// Body: legsBody plus {"environment":"demo"}
func (h *ParlayHandler) PlaceParlay(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		legsBody
		Environment string `json:"environment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	legs, stake, err := body.toQuoteLegs()
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DECIMAL", "stake and prob must be decimal strings")
		return
	}
	// Quotes tolerate legs without a ticker or side; placement does not.
	for i, leg := range legs {
		if leg.Ticker == "" || !leg.Side.IsValid() {
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION",
				fmt.Sprintf("leg %d: ticker and side are required", i+1))
			return
		}
	}

	parlay, err := h.parlaySvc.PlaceParlay(c.Request.Context(), service.PlaceParlayRequest{
		UserID:      userID,
		Environment: domain.Environment(body.Environment),
		Stake:       stake,
		Legs:        legs,
	})
	if err != nil {
		respondDomainError(c, err, "could not place parlay")
		return
	}
	respondSuccess(c, http.StatusCreated, parlay)
}

// ──────────────────────────────────────────────────────────────────────────────
// Lookup & claim
// ──────────────────────────────────────────────────────────────────────────────

// GetHistory godoc
// GET /api/parlay-history/:userId?page=1&limit=20 [JWT, owner]
func (h *ParlayHandler) GetHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	parlays, err := h.parlaySvc.GetHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err, "could not fetch parlay history")
		return
	}
	respondList(c, parlays, len(parlays), page, limit)
}

// GetStatus godoc
// GET /api/parlay-status/:sessionId [JWT]
//
// A status read doubles as an on-demand settlement poll: a pending parlay
// gets one best-effort settlement attempt before the response is built, so
// users see resolved outcomes without waiting for the worker's next pass.
func (h *ParlayHandler) GetStatus(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("sessionId")

	parlay, err := h.parlaySvc.GetStatus(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondDomainError(c, err, "could not fetch parlay")
		return
	}

	if parlay.Status == domain.ParlayPending && h.settler != nil {
		// Swallow the error: venue trouble must never fail a status read.
		_ = h.settler.SettleNow(c.Request.Context(), sessionID)
		if fresh, err := h.parlaySvc.GetStatus(c.Request.Context(), sessionID, userID); err == nil {
			parlay = fresh
		}
	}
	respondSuccess(c, http.StatusOK, parlay)
}

// ClaimWinnings godoc
// POST /api/claim-winnings/:sessionId [JWT]
func (h *ParlayHandler) ClaimWinnings(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("sessionId")

	amount, err := h.parlaySvc.ClaimWinnings(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondDomainError(c, err, "could not claim winnings")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"session_id": sessionID,
		"claimed":    amount.StringFixed(2),
	})
}
