// Package middleware 提供业务 API 的 HTTP 中间件
package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/zkpush-server/internal/config"
)

// RateLimiter 基于 Token Bucket 的全局限流器
type RateLimiter struct {
	limiter       *rate.Limiter
	ratePerSec    int
	burst         int
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter ratePerSec 为稳定速率，burst 为桶容量
func NewRateLimiter(ratePerSec, burst int) *RateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	if burst <= 0 {
		burst = ratePerSec * 2
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Allow 非阻塞检查
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// RateLimiterStats 限流统计
type RateLimiterStats struct {
	RatePerSecond int   `json:"rate_per_second"`
	Burst         int   `json:"burst"`
	AllowedTotal  int64 `json:"allowed_total"`
	RejectedTotal int64 `json:"rejected_total"`
}

func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RatePerSecond: l.ratePerSec,
		Burst:         l.burst,
		AllowedTotal:  l.allowedCount.Load(),
		RejectedTotal: l.rejectedCount.Load(),
	}
}

// RateLimit 超出速率时返回 429；cfg.Enabled 为 false 时直接放行
func RateLimit(cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	l := NewRateLimiter(cfg.RequestsPerSec, cfg.Burst)
	return func(c *gin.Context) {
		if !l.Allow() {
			if logger != nil {
				logger.Warn("api rate limited",
					zap.String("path", c.Request.URL.Path),
					zap.String("remote_addr", c.ClientIP()),
					zap.Int64("rejected_total", l.rejectedCount.Load()))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
