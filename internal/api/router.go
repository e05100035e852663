// Package api builds the public HTTP surface: the JSON API the browser
// extension talks to, plus the inbound webhooks.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/api/handler"
	"github.com/skumar2006/kalshiparlay/internal/api/middleware"
	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/service"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	ParlaySvc     *service.ParlayService
	LedgerSvc     *service.LedgerService
	SettlementSvc *service.SettlementService
	Venue         *venue.Client
	Cfg           *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(deps.Cfg))

	// ── Handlers ─────────────────────────────────────────────────────────────
	metaH := handler.NewMetaHandler(deps.Cfg)
	marketH := handler.NewMarketHandler(deps.Venue)
	var settler handler.SettlementPoller
	if deps.SettlementSvc != nil {
		settler = deps.SettlementSvc
	}
	parlayH := handler.NewParlayHandler(deps.ParlaySvc, settler)
	walletH := handler.NewWalletHandler(deps.LedgerSvc)
	webhookH := handler.NewWebhookHandler(deps.LedgerSvc, deps.Cfg)

	// ── Middleware ────────────────────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.Cfg.Identity.JWTSecret)
	ownerMW := middleware.RequireOwner("userId")
	webhookRL := middleware.RateLimitMiddleware(10)
	placeRL := middleware.RateLimitMiddleware(30)

	// ── Webhooks (public; authenticated by signature / provider) ─────────────
	r.POST("/auth/callback", webhookRL, webhookH.SignupCallback)
	r.POST("/webhooks/payments", webhookRL, webhookH.PaymentWebhook)

	api := r.Group("/api")
	{
		// ── Public ───────────────────────────────────────────────────────────
		api.GET("/health", metaH.Health)
		api.GET("/config", metaH.ClientConfig)

		// ── Authenticated ────────────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Venue market proxy
			authed.GET("/kalshi/market/:id", marketH.GetMarket)

			// Draft slip
			authed.POST("/parlay-draft", parlayH.AddDraftLeg)
			authed.GET("/parlay-draft", parlayH.GetDraftLegs)
			authed.DELETE("/parlay-draft", parlayH.ClearDraftLegs)
			authed.DELETE("/parlay-draft/:legId", parlayH.DeleteDraftLeg)

			// Quote & placement
			authed.POST("/quote", parlayH.Quote)
			authed.POST("/place-parlay", placeRL, parlayH.PlaceParlay)

			// Parlay lookup & claim
			authed.GET("/parlay-history/:userId", ownerMW, parlayH.GetHistory)
			authed.GET("/parlay-status/:sessionId", parlayH.GetStatus)
			authed.POST("/claim-winnings/:sessionId", placeRL, parlayH.ClaimWinnings)

			// Wallet & money movement
			authed.GET("/wallet/:userId", ownerMW, walletH.GetWallet)
			authed.GET("/wallet/:userId/transactions", ownerMW, walletH.GetTransactions)
			authed.PUT("/wallet/:userId/address", ownerMW, walletH.SetCryptoAddress)
			authed.POST("/withdraw/:userId", ownerMW, placeRL, walletH.Withdraw)
			authed.POST("/purchase-intent", walletH.PurchaseIntent)
			authed.GET("/purchase-history/:userId", ownerMW, walletH.GetPurchaseHistory)
		}
	}

	return r
}

// corsMiddleware sets CORS headers.  The API is called from a browser
// extension, whose origin is extension-scheme, so demo allows any origin;
// production echoes the origin back rather than wildcarding so credentials
// keep working.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
