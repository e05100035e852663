package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/domain"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// FinanceHandler serves the operator's money controls: withdrawal review,
// wallet and pool adjustments, and the liquidity dashboard.
type FinanceHandler struct {
	ledgerSvc *service.LedgerService
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(ledgerSvc *service.LedgerService) *FinanceHandler {
	return &FinanceHandler{ledgerSvc: ledgerSvc}
}

// ──────────────────────────────────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────────────────────────────────

// Withdrawals godoc
// GET /admin/finance/withdrawals?status=pending&page=1&limit=50
func (h *FinanceHandler) Withdrawals(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	reqs, err := h.ledgerSvc.ListWithdrawals(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list withdrawals")
		return
	}
	respondList(c, reqs, len(reqs), page, limit)
}

// CompleteWithdrawal godoc
// POST /admin/finance/withdrawals/:id/complete
// Executes the venue transfer and marks the request completed.
func (h *FinanceHandler) CompleteWithdrawal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid withdrawal id")
		return
	}
	if err := h.ledgerSvc.CompleteWithdrawal(c.Request.Context(), id); err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "withdrawal not found")
		case domain.IsConflict(err):
			respondError(c, http.StatusConflict, "ERR_NOT_PENDING", "withdrawal already reviewed")
		default:
			respondError(c, http.StatusBadGateway, "ERR_TRANSFER_FAILED", err.Error())
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"completed": id})
}

// FailWithdrawal godoc
// POST /admin/finance/withdrawals/:id/fail
// Body: {"reason":"..."}
func (h *FinanceHandler) FailWithdrawal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid withdrawal id")
		return
	}
	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if err := h.ledgerSvc.FailWithdrawal(c.Request.Context(), id, body.Reason); err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "withdrawal not found")
		case domain.IsConflict(err):
			respondError(c, http.StatusConflict, "ERR_NOT_PENDING", "withdrawal already reviewed")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fail withdrawal")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"failed": id})
}

// ──────────────────────────────────────────────────────────────────────────────
// Adjustments & dashboard
// ──────────────────────────────────────────────────────────────────────────────

// AdjustWallet godoc
// POST /admin/finance/wallets/:userId/adjust
// Body: {"delta":"-5.00","note":"chargeback"}
func (h *FinanceHandler) AdjustWallet(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	var body struct {
		Delta string `json:"delta" binding:"required"`
		Note  string `json:"note"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	delta, err := decimal.NewFromString(body.Delta)
	if err != nil || delta.IsZero() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DELTA", "delta must be a nonzero decimal string")
		return
	}

	if err := h.ledgerSvc.AdminAdjustWallet(c.Request.Context(), userID, delta, body.Note); err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "wallet not found")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not adjust wallet")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user_id": userID, "delta": delta.StringFixed(2)})
}

// AdjustPool godoc
// POST /admin/finance/pool/adjust
// Body: {"delta":"1000.00","note":"seed capital"}
func (h *FinanceHandler) AdjustPool(c *gin.Context) {
	var body struct {
		Delta string `json:"delta" binding:"required"`
		Note  string `json:"note"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	delta, err := decimal.NewFromString(body.Delta)
	if err != nil || delta.IsZero() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DELTA", "delta must be a nonzero decimal string")
		return
	}

	if err := h.ledgerSvc.AdminAdjustPool(c.Request.Context(), delta, body.Note); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not adjust pool")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"delta": delta.StringFixed(2)})
}

// Pool godoc
// GET /admin/finance/pool
// The liquidity dashboard: pool balance, conservation check, recent ledger.
func (h *FinanceHandler) Pool(c *gin.Context) {
	snapshot, err := h.ledgerSvc.GetPoolSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not build pool snapshot")
		return
	}
	respondSuccess(c, http.StatusOK, snapshot)
}
