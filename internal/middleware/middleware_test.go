package middleware

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestAuthAndAdmin(t *testing.T) {
	jwt.SetSecret("mw-secret")
	r := gin.New()
	r.GET("/me", Auth(), func(c *gin.Context) { c.String(http.StatusOK, CurrentUserID(c)) })
	r.DELETE("/admin", Auth(), AdminOnly(func(id string) bool { return id == "root" }), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userToken, err := jwt.Sign("alice", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	req = httptest.NewRequest(http.MethodDelete, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	rootToken, err := jwt.Sign("root", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodDelete, "/admin?token="+rootToken, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOptionalAuthIgnoresBadToken(t *testing.T) {
	r := gin.New()
	r.GET("/", OptionalAuth(), func(c *gin.Context) { c.String(http.StatusOK, "[%s]", CurrentUserID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "[]", w.Body.String())
}

func TestIdempotenceBlocksRepeatAfterSuccess(t *testing.T) {
	rdb := newRedis(t)
	calls := 0
	r := gin.New()
	r.Use(Idempotence(rdb))
	r.POST("/x", func(c *gin.Context) { calls++; c.Status(http.StatusCreated) })

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(idempotenceHeader, "abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusConflict, send())
	assert.Equal(t, 1, calls)
}

func TestIdempotenceReleasesKeyOnFailure(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.Use(Idempotence(rdb))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(idempotenceHeader, "abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.POST("/grade", RateLimit(rdb, "grading", 2, time.Minute, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/grade", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestIdempotenceKeysOnBody(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.Use(Idempotence(rdb))
	r.PUT("/entry", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/entry", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(`{"content":"v1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"content":"v1"}`, w.Body.String())

	// Same length, different content.
	w = send(`{"content":"v2"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"content":"v2"}`, w.Body.String())

	assert.Equal(t, http.StatusConflict, send(`{"content":"v2"}`).Code)
}

func TestIdempotenceMultipartUploads(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.Use(Idempotence(rdb))
	r.POST("/upload", func(c *gin.Context) {
		fh, err := c.FormFile("image")
		require.NoError(t, err)
		f, err := fh.Open()
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		c.String(http.StatusCreated, string(data))
	})

	send := func(content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("image", "sheet.png")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("page-one")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "page-one", w.Body.String())

	w = send("page-two")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "page-two", w.Body.String())

	assert.Equal(t, http.StatusConflict, send("page-two").Code)
}
