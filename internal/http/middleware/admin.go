package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

// AdminMiddleware gates the operational trigger endpoints behind a shared
// secret so cron and operators are distinguishable from anonymous traffic.
type AdminMiddleware struct {
	log   *logger.Logger
	token string
}

func NewAdminMiddleware(log *logger.Logger, token string) *AdminMiddleware {
	return &AdminMiddleware{log: log.With("middleware", "AdminMiddleware"), token: token}
}

func (am *AdminMiddleware) RequireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.token == "" {
			// No token configured means the admin surface is disabled, not open.
			am.log.Warn("admin request rejected, ADMIN_API_TOKEN not configured")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin surface disabled"})
			return
		}
		provided := c.GetHeader("X-Admin-Token")
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(am.token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid admin token"})
			return
		}
		c.Next()
	}
}
