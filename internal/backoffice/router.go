// Package backoffice builds the operator HTTP surface, served on its own port
// and protected by an IP allowlist.  Everything here mutates platform state on
// behalf of a human operator, never an end user.
package backoffice

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/backoffice/handler"
	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/repository"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	SettlementSvc *service.SettlementService
	HedgingSvc    *service.HedgingService
	LedgerSvc     *service.LedgerService
	ParlayRepo    *repository.ParlayRepository
	Cfg           *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipAllowlistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.ParlayRepo, deps.LedgerSvc, deps.Cfg)
	settleH := handler.NewSettlementHandler(deps.SettlementSvc, deps.HedgingSvc)
	financeH := handler.NewFinanceHandler(deps.LedgerSvc)

	admin := r.Group("/admin")
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Settlement queue
		settle := admin.Group("/settlement")
		{
			settle.GET("/needs-attention", settleH.NeedsAttention)
			settle.POST("/:sessionId/requeue", settleH.Requeue)
			settle.POST("/:sessionId/settle", settleH.SettleNow)
			settle.GET("/:sessionId/hedges", settleH.HedgeOrders)
		}
		admin.GET("/hedges/failed", settleH.FailedHedges)

		// Finance
		fin := admin.Group("/finance")
		{
			fin.GET("/withdrawals", financeH.Withdrawals)
			fin.POST("/withdrawals/:id/complete", financeH.CompleteWithdrawal)
			fin.POST("/withdrawals/:id/fail", financeH.FailWithdrawal)
			fin.POST("/wallets/:userId/adjust", financeH.AdjustWallet)
			fin.GET("/pool", financeH.Pool)
			fin.POST("/pool/adjust", financeH.AdjustPool)
		}
	}

	return r
}

// ── IP allowlist middleware ───────────────────────────────────────────────────

// ipAllowlistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all (dev mode).
func ipAllowlistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() }
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: your IP is not allowlisted",
			})
			return
		}
		c.Next()
	}
}
