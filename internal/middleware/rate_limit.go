package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campus_live/internal/repository"
	"campus_live/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimit repository.RateLimitRepository
	log       logger.Logger
}

func NewRateLimitMiddleware(rateLimit repository.RateLimitRepository, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimit: rateLimit,
		log:       log,
	}
}

func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:http:" + c.ClientIP()
		limit := 100
		window := time.Minute

		allowed, err := m.rateLimit.CheckLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			// Redis недоступен - пропускаем, лимит не критичный путь
			m.log.Warn("Rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		count, err := m.rateLimit.Increment(c.Request.Context(), key, window)
		if err != nil {
			m.log.Warn("Rate limit increment failed", "error", err)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
