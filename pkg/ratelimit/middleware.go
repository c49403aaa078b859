package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ingest/internal/config"
	"ingest/pkg/errors"
	"ingest/pkg/metrics"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// Limiters keeps one token bucket per client IP and forgets clients idle
// for longer than MaxAge.
type Limiters struct {
	cfg      config.RateLimitConfig
	mu       sync.RWMutex
	limiters map[string]*clientLimiter
	now      func() time.Time
}

func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	return &Limiters{
		cfg:      cfg,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

func (l *Limiters) get(clientIP string) *clientLimiter {
	l.mu.RLock()
	limiter, exists := l.limiters[clientIP]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists = l.limiters[clientIP]
	if !exists {
		limiter = &clientLimiter{
			limiter:  rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst),
			lastSeen: l.now(),
		}
		l.limiters[clientIP] = limiter
	}
	return limiter
}

// Cleanup drops limiters idle for longer than MaxAge.
func (l *Limiters) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for ip, limiter := range l.limiters {
		limiter.mu.Lock()
		lastSeen := limiter.lastSeen
		limiter.mu.Unlock()
		if now.Sub(lastSeen) > l.cfg.MaxAge {
			delete(l.limiters, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every CleanupInterval until ctx is done.
func (l *Limiters) RunCleanup(ctx context.Context) {
	if l.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

func (l *Limiters) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		limiter := l.get(clientIP)
		limiter.mu.Lock()
		limiter.lastSeen = l.now()
		limiter.mu.Unlock()

		c.Header("X-RateLimit-Limit", formatRate(l.cfg.RPS))

		if !limiter.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(errors.ErrRateLimited.Status, errors.ToErrorResponse(errors.ErrRateLimited))
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		remaining := int(limiter.limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

func formatRate(rps float64) string {
	return strconv.FormatFloat(rps, 'f', -1, 64)
}
