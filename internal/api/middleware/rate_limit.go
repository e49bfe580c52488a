package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
)

// RateLimiter is a per-client-IP token bucket registry. Constructor-injected
// so its lifecycle is owned by the router, not a package global.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a registry allowing requestsPerMinute sustained with
// the given burst per client IP.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the given IP may proceed, and prunes idle entries.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now

	// Opportunistic prune keeps the registry bounded without a sweeper.
	if len(rl.limiters) > 1024 {
		for key, e := range rl.limiters {
			if now.Sub(e.lastSeen) > 10*time.Minute {
				delete(rl.limiters, key)
			}
		}
	}

	return entry.limiter.Allow()
}

// Middleware rejects requests over the per-IP budget with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"code":    apperrors.CodeRateLimited,
				"message": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
