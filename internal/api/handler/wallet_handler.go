package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/api/middleware"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// WalletHandler serves wallet balance, ledger history, withdrawals, and the
// deposit on-ramp.
type WalletHandler struct {
	ledgerSvc *service.LedgerService
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(ledgerSvc *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetWallet godoc
// GET /api/wallet/:userId [JWT, owner]
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID := middleware.GetUserID(c)
	wallet, err := h.ledgerSvc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err, "could not fetch wallet")
		return
	}
	respondSuccess(c, http.StatusOK, wallet)
}

// GetTransactions godoc
// GET /api/wallet/:userId/transactions?page=1&limit=20 [JWT, owner]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	events, err := h.ledgerSvc.GetTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err, "could not fetch transactions")
		return
	}
	respondList(c, events, len(events), page, limit)
}

// SetCryptoAddress godoc
// PUT /api/wallet/:userId/address [JWT, owner]
func (h *WalletHandler) SetCryptoAddress(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if err := h.ledgerSvc.SetCryptoAddress(c.Request.Context(), userID, body.Address); err != nil {
		respondDomainError(c, err, "could not store address")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"address": body.Address})
}

// Withdraw godoc
// POST /api/withdraw/:userId [JWT, owner]
// Body: {"amount":"25.00"}
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	req, err := h.ledgerSvc.RequestWithdrawal(c.Request.Context(), userID, amount)
	if err != nil {
		respondDomainError(c, err, "could not open withdrawal")
		return
	}
	respondSuccess(c, http.StatusCreated, req)
}

// PurchaseIntent godoc
// POST /api/purchase-intent [JWT]
// Body: {"session_id":"cs_...","amount":"50.00"}
func (h *WalletHandler) PurchaseIntent(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		SessionID string `json:"session_id" binding:"required"`
		Amount    string `json:"amount"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	if err := h.ledgerSvc.CreatePurchaseIntent(c.Request.Context(), userID, body.SessionID, amount); err != nil {
		respondDomainError(c, err, "could not record purchase intent")
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"session_id": body.SessionID})
}

// GetPurchaseHistory godoc
// GET /api/purchase-history/:userId?page=1&limit=20 [JWT, owner]
func (h *WalletHandler) GetPurchaseHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	purchases, err := h.ledgerSvc.GetPurchaseHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err, "could not fetch purchase history")
		return
	}
	respondList(c, purchases, len(purchases), page, limit)
}
