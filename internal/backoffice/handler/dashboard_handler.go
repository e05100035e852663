package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/repository"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// DashboardHandler serves the operator overview: parlay counts by status,
// pool health, and process mode.
type DashboardHandler struct {
	parlayRepo *repository.ParlayRepository
	ledgerSvc  *service.LedgerService
	cfg        *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(parlayRepo *repository.ParlayRepository, ledgerSvc *service.LedgerService, cfg *config.Config) *DashboardHandler {
	return &DashboardHandler{parlayRepo: parlayRepo, ledgerSvc: ledgerSvc, cfg: cfg}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	counts, err := h.parlayRepo.CountByStatus(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not count parlays")
		return
	}
	snapshot, err := h.ledgerSvc.GetPoolSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not build pool snapshot")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"environment":     string(h.cfg.Environment),
		"dry_run":         h.cfg.DryRun,
		"parlays":         counts,
		"pool":            snapshot.Pool,
		"conservation_ok": snapshot.ConservationOK,
	})
}
