package middleware

import (
	"strconv"
	"time"

	"daohub_backend/internal/logger"
	"daohub_backend/internal/metrics"
	"daohub_backend/internal/ratelimit"
	"daohub_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware applies a fixed window per authenticated user, or per
// client IP before authentication.
func RateLimitMiddleware(limiter *ratelimit.Limiter, scope string, window time.Duration, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := GetUserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		key := scope + ":" + subject

		res, err := limiter.Check(c.Request.Context(), key, window, max)
		if err != nil {
			logger.CtxWithError(c.Request.Context(), "rate limiter check failed", err, "key", key)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if res.Limited {
			metrics.RateLimited(scope)
			apperrors.HandleError(c, res.Err())
			return
		}
		c.Next()
	}
}
