package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// SettlementHandler serves the operator's settlement controls: the
// needs_attention queue, requeue, manual settle, and hedge-order views.
type SettlementHandler struct {
	settlementSvc *service.SettlementService
	hedgingSvc    *service.HedgingService
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlementSvc *service.SettlementService, hedgingSvc *service.HedgingService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, hedgingSvc: hedgingSvc}
}

// NeedsAttention godoc
// GET /admin/settlement/needs-attention?page=1&limit=50
func (h *SettlementHandler) NeedsAttention(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	parlays, err := h.settlementSvc.ListNeedsAttention(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list parlays")
		return
	}
	respondList(c, parlays, len(parlays), page, limit)
}

// Requeue godoc
// POST /admin/settlement/:sessionId/requeue
func (h *SettlementHandler) Requeue(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.settlementSvc.Requeue(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrParlayNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "no needs_attention parlay with that session id")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not requeue parlay")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"requeued": sessionID})
}

// SettleNow godoc
// POST /admin/settlement/:sessionId/settle
// Runs one settlement attempt immediately, outside the polling cadence.
func (h *SettlementHandler) SettleNow(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.settlementSvc.SettleNow(c.Request.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, domain.ErrParlayNotFound):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "parlay not found")
		case errors.Is(err, domain.ErrParlaySettled):
			respondError(c, http.StatusConflict, "ERR_ALREADY_SETTLED", "parlay is already settled")
		default:
			respondError(c, http.StatusBadGateway, "ERR_SETTLE_FAILED", err.Error())
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"settled": sessionID})
}

// HedgeOrders godoc
// GET /admin/settlement/:sessionId/hedges
func (h *SettlementHandler) HedgeOrders(c *gin.Context) {
	orders, err := h.hedgingSvc.ListBySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list hedge orders")
		return
	}
	respondSuccess(c, http.StatusOK, orders)
}

// FailedHedges godoc
// GET /admin/hedges/failed?page=1&limit=50
func (h *SettlementHandler) FailedHedges(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	orders, err := h.hedgingSvc.FailedOrders(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list failed hedges")
		return
	}
	respondList(c, orders, len(orders), page, limit)
}
