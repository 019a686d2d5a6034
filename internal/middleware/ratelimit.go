package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RateLimiter limits requests per client IP in a fixed time window backed by
// redis. A nil client or a redis failure fails open: throttling is
// protection, not a correctness requirement.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRateLimiter builds a limiter; pass a nil client to disable it.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:"}
}

// Middleware enforces the limit keyed by route and client IP.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.client == nil || l.limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s%s:%s", l.prefix, c.FullPath(), c.ClientIP())
		count, err := fixedWindowScript.Run(c.Request.Context(), l.client,
			[]string{key}, l.window.Milliseconds()).Int64()
		if err != nil {
			log.Printf("rate limiter unavailable, allowing request: %v", err)
			c.Next()
			return
		}

		if count > int64(l.limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
