package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/config"
)

// MetaHandler serves health and public client configuration.
type MetaHandler struct {
	cfg *config.Config
}

// NewMetaHandler creates a MetaHandler.
func NewMetaHandler(cfg *config.Config) *MetaHandler {
	return &MetaHandler{cfg: cfg}
}

// Health godoc
// GET /api/health
func (h *MetaHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"environment": string(h.cfg.Environment),
		"dry_run":     h.cfg.DryRun,
	})
}

// ClientConfig godoc
// GET /api/config
// Public identity-provider settings the browser extension needs at startup.
// Only publishable values leave this endpoint; secrets never do.
func (h *MetaHandler) ClientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"environment":  string(h.cfg.Environment),
		"idp_url":      h.cfg.Identity.URL,
		"idp_anon_key": h.cfg.Identity.AnonKey,
	})
}
