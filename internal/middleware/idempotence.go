package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/pkg/contenthash"
	"github.com/redis/go-redis/v9"
)

const (
	idempotenceHeader = "Idempotency-Key"
	idempotenceTTL    = 60 * time.Second
	idempotencePrefix = "papergrade:idempotence:"
)

// Idempotence rejects a repeated POST/PUT with the same key while the first is
// in flight, and for idempotenceTTL after it succeeded. The key comes from the
// Idempotency-Key header, or is derived from method, URL, body and caller.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
			c.Next()
			return
		}

		key, release, err := resolveIdempotenceKey(c)
		defer release()
		if err != nil || key == "" {
			c.Next()
			return
		}

		redisKey := idempotencePrefix + key
		ctx := c.Request.Context()

		ok, err := rdb.SetNX(ctx, redisKey, "0", idempotenceTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !ok {
			val, getErr := rdb.Get(ctx, redisKey).Result()
			msg := "identical request already succeeded, retry after 60 seconds"
			if errors.Is(getErr, redis.Nil) {
				c.Next()
				return
			}
			if val == "0" {
				msg = "identical request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      0,
				"code":    http.StatusConflict,
				"message": msg,
			})
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, "1", redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}

// resolveIdempotenceKey returns the key for the current request. The body is
// consumed for hashing and replaced with an unread copy; release frees that copy.
func resolveIdempotenceKey(c *gin.Context) (key string, release func(), err error) {
	release = func() {}
	if hdr := strings.TrimSpace(c.GetHeader(idempotenceHeader)); hdr != "" {
		return hashKey("hdr|" + CurrentUserID(c) + "|" + hdr), release, nil
	}

	digest, release, err := digestBody(c)
	if err != nil {
		return "", release, err
	}

	ua := c.Request.UserAgent()
	ip := c.ClientIP()
	token := NormalizeToken(c.GetHeader("Authorization"))
	if digest == "" && ua == "" && ip == "" && token == "" {
		return "", release, nil
	}
	raw := c.Request.Method + "|" + c.Request.URL.String() + "|" + digest + "|" + ua + "|" + ip + "|" + token
	return hashKey(raw), release, nil
}

// digestBody hashes the request body. Multipart uploads are spooled to a
// temp file while hashing so they are never held in memory twice.
func digestBody(c *gin.Context) (string, func(), error) {
	noop := func() {}
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return "", noop, nil
	}

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return "", noop, err
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		if len(body) == 0 {
			return "", noop, nil
		}
		return contenthash.Hash(body), noop, nil
	}

	spool, err := os.CreateTemp("", "papergrade-body-*")
	if err != nil {
		return "", noop, err
	}
	release := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}
	digest, err := contenthash.HashReader(io.TeeReader(c.Request.Body, spool))
	if err == nil {
		_, err = spool.Seek(0, io.SeekStart)
	}
	if err != nil {
		release()
		return "", noop, err
	}
	c.Request.Body = spool
	return digest, release, nil
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
