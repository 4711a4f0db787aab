package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimit - For IP and User limit info
type RateLimit struct {
	Count      int
	ResetAt    time.Time
	LastAccess time.Time
	Blocked    bool
	BlockUntil time.Time
}

// RateLimiter - in-memory fixed window limiter
type RateLimiter struct {
	store       map[string]*RateLimit
	mutex       sync.Mutex
	cleanupTime time.Duration
	now         func() time.Time
}

// RateLimitConfig - Rate limiter configurations
type RateLimitConfig struct {
	MaxRequests   int
	TimeWindow    time.Duration
	BlockDuration time.Duration
}

// NewRateLimiter creates a RateLimiter whose cleanup loop stops with ctx
func NewRateLimiter(ctx context.Context, cleanupTime time.Duration) *RateLimiter {
	if cleanupTime <= 0 {
		cleanupTime = time.Hour
	}
	limiter := &RateLimiter{
		store:       make(map[string]*RateLimit),
		cleanupTime: cleanupTime,
		now:         time.Now,
	}

	go limiter.cleanup(ctx)

	return limiter
}

// cleanup - Remove records idle for a day
func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.cleanupTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mutex.Lock()
			now := rl.now()
			for key, limit := range rl.store {
				if now.Sub(limit.LastAccess) > 24*time.Hour {
					delete(rl.store, key)
				}
			}
			rl.mutex.Unlock()
		}
	}
}

// isAllowed - Checks if the request is allowed based on rate limiting
func (rl *RateLimiter) isAllowed(key string, config RateLimitConfig) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	limit, exists := rl.store[key]

	if !exists {
		rl.store[key] = &RateLimit{
			Count:      1,
			ResetAt:    now.Add(config.TimeWindow),
			LastAccess: now,
		}
		return true
	}

	if limit.Blocked {
		if now.After(limit.BlockUntil) {
			limit.Blocked = false
			limit.Count = 1
			limit.ResetAt = now.Add(config.TimeWindow)
			limit.LastAccess = now
			return true
		}
		return false
	}

	if now.After(limit.ResetAt) {
		limit.Count = 1
		limit.ResetAt = now.Add(config.TimeWindow)
		limit.LastAccess = now
		return true
	}

	if limit.Count >= config.MaxRequests {
		limit.Blocked = true
		limit.BlockUntil = now.Add(config.BlockDuration)
		limit.LastAccess = now
		return false
	}

	limit.Count++
	limit.LastAccess = now
	return true
}

// RateLimitMiddleware - rate limiting keyed by client IP. scope keeps the
// budgets of different routes apart.
func (rl *RateLimiter) RateLimitMiddleware(scope string, config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.isAllowed(scope+":"+c.ClientIP(), config) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many requests",
				"message": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ImpersonationStartRateLimitMiddleware limits impersonation starts per admin.
// Falls back to the client IP when no session is in the context.
func (rl *RateLimiter) ImpersonationStartRateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "impersonation-start:" + c.ClientIP()
		if session, ok := CurrentSession(c); ok {
			key = "impersonation-start:" + session.OwnerUserID()
		}

		if !rl.isAllowed(key, config) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many impersonation attempts",
				"message": "Too many impersonation attempts. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
