package middleware

import (
	"fmt"
	"sync"
	"time"

	pkgerrors "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitPolicy allows Requests per Window for each client IP.
type RateLimitPolicy struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	policy RateLimitPolicy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewIPRateLimiter(policy RateLimitPolicy) *IPRateLimiter {
	return &IPRateLimiter{
		policy:   policy,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[ip]
	if !ok {
		perSecond := float64(l.policy.Requests) / l.policy.Window.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), l.policy.Requests)
		l.limiters[ip] = limiter
	}
	return limiter
}

// Allow consumes one token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	if l.policy.Requests <= 0 || l.policy.Window <= 0 {
		return true
	}
	return l.limiter(ip).Allow()
}

// Prune drops buckets that are full again, i.e. idle clients.
func (l *IPRateLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.policy.Requests) {
			delete(l.limiters, ip)
		}
	}
}

// RateLimitMiddleware rejects requests over the per-IP budget with 429.
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		response.AbortWithErrorCode(c, pkgerrors.TooManyRequests,
			fmt.Sprintf("rate limit exceeded: %d requests per %s", limiter.policy.Requests, limiter.policy.Window))
	}
}
