package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondDomainError maps a service-layer error onto the HTTP taxonomy:
// not-found → 404, conflicts → 409, bad input → 400, insufficient funds → 402,
// ownership → 403, anything else → 500 with a generic message.
func respondDomainError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", "access denied")
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case domain.IsInputError(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallbackMsg)
	}
}

// parsePagination reads ?page & ?limit with sane defaults and caps.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
