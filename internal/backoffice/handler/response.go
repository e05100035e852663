package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// The admin surface wraps every payload in the same success envelope the
// public API uses, so the dashboard frontend shares one response parser.

func envelope(data interface{}) gin.H {
	return gin.H{"success": true, "data": data}
}

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope(data))
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "code": code, "error": msg})
}

func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	body := envelope(items)
	body["meta"] = gin.H{"total": total, "page": page, "limit": limit}
	c.JSON(http.StatusOK, body)
}

// Operators page through bigger result sets than end users, so the default
// and ceiling sit above the public API's.
const (
	adminDefaultLimit = 50
	adminLimitCeiling = 500
)

// adminPagination reads ?page and ?limit with admin-view defaults.
func adminPagination(c *gin.Context) (page, limit int) {
	if page, _ = strconv.Atoi(c.DefaultQuery("page", "1")); page < 1 {
		page = 1
	}
	if limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50")); limit < 1 || limit > adminLimitCeiling {
		limit = adminDefaultLimit
	}
	return page, limit
}
