package middleware

import (
	"github.com/gin-gonic/gin"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/infrastructure/persistence/redis"
	"ppt-gen-api/internal/interfaces/http/dto"
	"ppt-gen-api/pkg/logger"
)

// RateLimit 按客户端 IP 的滑动窗口限流。Redis 故障时放行，
// 限流不应成为可用性瓶颈。
func RateLimit(limiter *redis.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || limiter == nil {
			c.Next()
			return
		}

		key := redis.BuildRateLimitKey(c.ClientIP(), c.FullPath())
		allowed, err := limiter.Allow(c.Request.Context(), key, cfg.Requests, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request",
				"error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			dto.TooManyRequests(c, "rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
