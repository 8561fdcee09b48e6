package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig is deliberately small: one global rate, identified by
// user when signed in and by IP otherwise, with skip prefixes for health and
// stream endpoints.
type RateLimiterConfig struct {
	Rate      string   `json:"rate"` // e.g. "100-M", "10-S"
	SkipPaths []string `json:"skip_paths"`
}

// RateLimiter caches one limiter instance instead of rebuilding per request.
type RateLimiter struct {
	cfg RateLimiterConfig
	lim *limiter.Limiter
}

func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		rate = limiter.Rate{Period: time.Minute, Limit: 100}
	}
	return &RateLimiter{cfg: cfg, lim: limiter.New(store, rate)}
}

// Middleware returns the Gin middleware.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.pathSkipped(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if uid, ok := c.Get("user_id"); ok {
			if s, ok := uid.(string); ok && s != "" {
				key = "user:" + s
			}
		}

		res, err := l.lim.Get(c, key)
		if err != nil {
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if res.Reached {
			retry := int(time.Until(time.Unix(res.Reset, 0)).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) pathSkipped(path string) bool {
	for _, pref := range l.cfg.SkipPaths {
		if pref != "" && strings.HasPrefix(path, pref) {
			return true
		}
	}
	return false
}
