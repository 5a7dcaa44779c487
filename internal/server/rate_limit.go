package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicedesk/internal/observability/logger"
	"go.uber.org/zap"
)

// SubmitRateLimit throttles invoice submissions per client IP. The check
// fails closed when Redis cannot be reached.
func (s *Server) SubmitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.submitLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		client := c.ClientIP()
		res, err := s.submitLimiter.Allow(ctx, client)
		if err != nil {
			logger.FromContext(ctx).Warn("submit rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("submit rate limit exceeded",
				zap.String("client", client),
				zap.Duration("retry_after", res.RetryAfter),
			)
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
