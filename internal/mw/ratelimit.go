package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// KeyedRateLimiter hands out one token bucket per client key. Buckets of
// clients that stay quiet for limiterIdleTTL are forgotten.
type KeyedRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL),
		r:        r,
		b:        b,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (k *KeyedRateLimiter) Limiter(key string) *rate.Limiter {
	if l, ok := k.limiters.Get(key); ok {
		k.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(k.r, k.b)
	if err := k.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same client.
		if existing, ok := k.limiters.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

// RateLimiter limits requests per caller, falling back to the client IP for
// anonymous requests.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b)
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if caller, ok := CallerFrom(c); ok {
			key = "user:" + caller.ID
		}
		if !limiter.Limiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
