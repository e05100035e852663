package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// WebhookHandler serves inbound webhooks: identity-provider signups and
// payment-provider deposit confirmations.  Both callers redeliver on failure,
// so every handler here is idempotent.
type WebhookHandler struct {
	ledgerSvc *service.LedgerService
	cfg       *config.Config
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(ledgerSvc *service.LedgerService, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{ledgerSvc: ledgerSvc, cfg: cfg}
}

// SignupCallback godoc
// POST /auth/callback
// Body: {"id":"<uuid>","email":"user@example.com"}
// Called by the identity provider on signup; provisions the user's wallet.
func (h *WebhookHandler) SignupCallback(c *gin.Context) {
	var body struct {
		ID    string `json:"id"    binding:"required"`
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	userID, err := uuid.Parse(body.ID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_USER_ID", "id must be a uuid")
		return
	}

	if err := h.ledgerSvc.ProvisionUser(c.Request.Context(), userID, body.Email); err != nil {
		respondDomainError(c, err, "could not provision user")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"provisioned": userID})
}

// PaymentWebhook godoc
// POST /webhooks/payments
// Headers: X-Webhook-Signature: hex(hmac-sha256(body, secret))
// Body: {"session_id":"cs_...","status":"completed"|"failed"}
func (h *WebhookHandler) PaymentWebhook(c *gin.Context) {
	if h.cfg.Payment.WebhookSecret == "" {
		respondError(c, http.StatusNotFound, "ERR_WEBHOOK_DISABLED", "payment webhook is not configured")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_BODY", "could not read body")
		return
	}
	if !h.verifySignature(raw, c.GetHeader("X-Webhook-Signature")) {
		respondError(c, http.StatusUnauthorized, "ERR_BAD_SIGNATURE", "webhook signature mismatch")
		return
	}

	var body struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.SessionID == "" {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "session_id and status are required")
		return
	}

	if err := h.ledgerSvc.CompletePurchase(c.Request.Context(), body.SessionID, body.Status == "completed"); err != nil {
		respondDomainError(c, err, "could not resolve purchase")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"session_id": body.SessionID})
}

// verifySignature checks the hex HMAC-SHA256 of the raw body against the
// configured secret, in constant time.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.cfg.Payment.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
