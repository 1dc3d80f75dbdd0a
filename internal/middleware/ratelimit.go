package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RPS        float64
	Burst      int
	MaxClients int
	IdleTTL    time.Duration
}

// RateLimiter hands out one token bucket per client key. Buckets live in a
// bounded LRU and are dropped after IdleTTL without traffic.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter, filling zero fields with defaults
// (10 rps, burst 20, 10000 clients, 10m idle).
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.MaxClients, nil, cfg.IdleTTL),
		limit:    rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
	}
}

// Allow reports whether a request from key may proceed now, and if not,
// how long the client should wait.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle expiry.
	l.limiters.Add(key, lim)
	l.mu.Unlock()

	r := lim.Reserve()
	if !r.OK() {
		return false, time.Second
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// Middleware limits requests per client IP, answering 429 with a
// Retry-After header once the bucket is empty.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			pkg.Abort(c, domain.ErrRateLimited)
			return
		}
		c.Next()
	}
}
