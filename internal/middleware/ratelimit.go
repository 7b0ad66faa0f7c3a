package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/medassist/booking-api/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// ClientTTL drops the limiter of a client that has been idle this long.
	ClientTTL time.Duration
}

// RateLimiter keeps one token bucket per client. Authenticated callers are
// keyed by user id, everyone else by IP.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.ClientTTL <= 0 {
		config.ClientTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:   config,
		limiters: cache.New(config.ClientTTL, 2*config.ClientTTL),
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(clientKey(c)).Allow() {
			httputil.RespondWithStatus(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, found := rl.limiters.Get(key); found {
		rl.limiters.Set(key, v, cache.DefaultExpiration)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// Lost the race with another request from the same client.
		if v, found := rl.limiters.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return l
}

func clientKey(c *gin.Context) string {
	if principal, ok := GetPrincipal(c); ok {
		return "user:" + principal.ID.String()
	}
	return "ip:" + c.ClientIP()
}
