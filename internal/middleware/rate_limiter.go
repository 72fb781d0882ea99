package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// cleanupThreshold bounds the per-IP limiter map. Past it the map is reset
// wholesale; a reset only grants a fresh burst, it never blocks anyone.
const cleanupThreshold = 1000

// RateLimiterConfig sets the steady request rate and the burst allowance
// granted to each client IP.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   RateLimiterConfig
}

func newRateLimiterMap(config RateLimiterConfig) *rateLimiterMap {
	rl := &rateLimiterMap{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiterMap) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.limiters[ip] = l
	}
	return l
}

func (rl *rateLimiterMap) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		if len(rl.limiters) > cleanupThreshold {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// RateLimiterMiddleware throttles requests per client IP. Rejected requests
// get a 429 with the delay until the next token.
func RateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	limiters := newRateLimiterMap(config)

	return func(c *gin.Context) {
		l := limiters.limiter(c.ClientIP())
		if !l.Allow() {
			reservation := l.Reserve()
			retryAfter := reservation.DelayFrom(time.Now()).Seconds()
			reservation.Cancel()

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded. Please try again later.",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
