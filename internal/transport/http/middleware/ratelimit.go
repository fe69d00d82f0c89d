package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "promo-code-service/internal/transport/http/response"
)

// RateLimit is the engine-wide token bucket.
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		resp.AbortMessage(c, http.StatusTooManyRequests, "Too many requests")
	}
}

// keyedLimiter hands out one token bucket per key (user id, client IP).
type keyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	lim, ok := k.buckets[key]
	if !ok {
		lim = rate.NewLimiter(k.rps, k.burst)
		k.buckets[key] = lim
	}
	k.mu.Unlock()
	return lim.Allow()
}

// ThrottleValidation rate-limits the promo validation endpoint by the
// authenticated identity and by network origin; both buckets must admit
// the request. Runs after AuthJWT so the user id is present (falls back to
// the client IP when it is not).
func ThrottleValidation(perUserPerMin, perIPPerMin int) gin.HandlerFunc {
	byUser := newKeyedLimiter(perUserPerMin)
	byIP := newKeyedLimiter(perIPPerMin)
	return func(c *gin.Context) {
		key := c.GetString(CtxUserID)
		if key == "" {
			key = c.ClientIP()
		}
		if !byUser.allow(key) || !byIP.allow(c.ClientIP()) {
			resp.AbortMessage(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}
