package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// MarketLookup is the minimal venue-client interface the market proxy needs.
type MarketLookup interface {
	GetMarket(ctx context.Context, marketID string) (*venue.Market, error)
}

// MarketHandler proxies normalized venue market data to the extension, so the
// client never needs venue credentials.
type MarketHandler struct {
	markets MarketLookup
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketLookup) *MarketHandler {
	return &MarketHandler{markets: markets}
}

// GetMarket godoc
// GET /api/kalshi/market/:id [JWT]
func (h *MarketHandler) GetMarket(c *gin.Context) {
	market, err := h.markets.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, venue.ErrMarketNotFound):
			respondError(c, http.StatusNotFound, "ERR_MARKET_NOT_FOUND", err.Error())
		case venue.IsRetryable(err):
			respondError(c, http.StatusBadGateway, "ERR_VENUE_UNAVAILABLE", "venue is temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch market")
		}
		return
	}
	respondSuccess(c, http.StatusOK, market)
}
