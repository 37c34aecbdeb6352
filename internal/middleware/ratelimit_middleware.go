// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/pkg/response"
)

// APILimiter is satisfied by session.RateLimiter.
type APILimiter interface {
	CheckAPIRateLimit(ctx context.Context, caller, endpoint string, maxRequests int64, window time.Duration) (bool, error)
}

// RateLimit is a fixed window per caller and route. Authenticated callers are
// keyed by identity, everyone else by client IP. Limiter failures let the
// request through.
func RateLimit(limiter APILimiter, max int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	limit := strconv.FormatInt(max, 10)
	return func(c *gin.Context) {
		caller := "ip:" + c.ClientIP()
		if id, ok := GetIdentityID(c); ok {
			caller = fmt.Sprintf("id:%d", id)
		}

		ok, err := limiter.CheckAPIRateLimit(c.Request.Context(), caller, c.FullPath(), max, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", limit)
		if !ok {
			c.Header("X-RateLimit-Remaining", "0")
			response.Error(c, http.StatusTooManyRequests, "rate limit exceeded, try again later", nil)
			return
		}
		c.Next()
	}
}
