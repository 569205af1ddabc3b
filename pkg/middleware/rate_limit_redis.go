package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/metrics"
)

// RedisRateLimitMiddleware is a fixed-window limiter shared by every replica:
// each caller gets floor(rps*window)+burst requests per window. When Redis is
// unreachable the request is checked against a local token bucket instead.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	local := RateLimitMiddleware(rps, burst)
	if client == nil {
		return local
	}
	if window < time.Second {
		window = time.Second
	}
	windowSeconds := int64(window / time.Second)
	limit := int64(rps*float64(windowSeconds)) + int64(burst)

	return func(c *gin.Context) {
		now := time.Now().Unix()
		bucket := now / windowSeconds
		key := rateKey(c, "rl:") + ":" + strconv.FormatInt(bucket, 10)
		resetIn := (bucket+1)*windowSeconds - now

		var incr *redis.IntCmd
		_, err := client.TxPipelined(c.Request.Context(), func(p redis.Pipeliner) error {
			incr = p.Incr(c.Request.Context(), key)
			p.Expire(c.Request.Context(), key, time.Duration(resetIn+1)*time.Second)
			return nil
		})
		if err != nil {
			logger.Warnf("redis rate limit unavailable, using local limiter: %v", err)
			local(c)
			return
		}

		count := incr.Val()
		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > limit {
			c.Header("Retry-After", strconv.FormatInt(resetIn, 10))
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
