package cache

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/database/dbtest"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	jwt.SetSecret("cache-handler-secret")
	r := gin.New()
	h := NewHandler(NewStore(dbtest.Open(t)))
	h.RegisterRoutes(r.Group("/api/v1"), middleware.Auth(), middleware.AdminOnly(func(id string) bool { return id == "admin" }))
	return r
}

func do(t *testing.T, r *gin.Engine, method, url, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := jwt.Sign(user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCacheAdminFlow(t *testing.T) {
	r := newRouter(t)
	body := `{"module":"science","content_type":"chapter_summary","identifier":"ch-1","content":"Plants make food."}`
	entryURL := "/api/v1/cache/entry?module=science&content_type=chapter_summary&identifier=ch-1"

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPut, "/api/v1/cache/entry", "", body).Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPut, "/api/v1/cache/entry", "student", body).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, "/api/v1/cache/entry", "admin", body).Code)

	w := do(t, r, http.MethodGet, entryURL, "student", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Content     string `json:"content"`
		Source      string `json:"source"`
		AccessCount int64  `json:"access_count"`
		CreatedBy   string `json:"created_by"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Plants make food.", got.Content)
	assert.Equal(t, "manual", got.Source)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.Equal(t, "admin", got.CreatedBy)

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodDelete, entryURL, "student", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, entryURL, "admin", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, entryURL, "student", "").Code)
}

func TestCacheValidation(t *testing.T) {
	r := newRouter(t)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/cache/entry?module=x", "student", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/v1/cache/entry", "admin", `{"module":"x","content_type":"y","identifier":"z","content":"c","source":"bogus"}`).Code)
}
