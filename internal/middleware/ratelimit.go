package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit allows at most max requests per caller per window, counted in
// fixed Redis windows. The caller is the user ID when authenticated, else the IP.
// Redis failures let the request through.
func RateLimit(rdb *redis.Client, scope string, max int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if max <= 0 {
			c.Next()
			return
		}
		caller := CurrentUserID(c)
		if caller == "" {
			caller = c.ClientIP()
		}
		if caller == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("papergrade:rate_limit:%s:%s:%d", scope, caller, bucket)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, window+time.Second)
		}

		if count > int64(max) {
			logger.Warn("rate limited", zap.String("scope", scope), zap.String("caller", caller), zap.String("path", c.Request.URL.Path))
			response.TooManyRequests(c, strconv.Itoa(int(window.Seconds())))
			return
		}
		c.Next()
	}
}
