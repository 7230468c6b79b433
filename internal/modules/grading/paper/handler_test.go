package paper

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/modules/grading/analyzer/analyzertest"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, field string, data []byte, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "paper.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestPaperHandlerFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwt.SetSecret("paper-handler-secret")
	token, err := jwt.Sign("teacher-1", time.Hour)
	require.NoError(t, err)

	svc, _ := newService(t, analyzertest.Text(threeQuestions, "unused"))
	temp, err := blob.NewTemp(t.TempDir())
	require.NoError(t, err)
	r := gin.New()
	NewHandler(svc, temp, 1<<20).RegisterRoutes(r.Group("/api/v1"), middleware.Auth())

	data := samplePNG(t, 70)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "image", data, token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Reused bool `json:"reused"`
		Paper  struct {
			ID        string `json:"id"`
			Questions []struct {
				Number string `json:"question_number"`
			} `json:"questions"`
		} `json:"paper"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.False(t, created.Reused)
	assert.Len(t, created.Paper.Questions, 3)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "image", data, token))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/"+created.Paper.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/papers/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "wrong", data, token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(temp.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPaperHandlerDegradedExtraction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwt.SetSecret("paper-handler-secret")
	token, err := jwt.Sign("teacher-1", time.Hour)
	require.NoError(t, err)

	svc, _ := newService(t, analyzertest.Text("no questions visible"))
	temp, err := blob.NewTemp(t.TempDir())
	require.NoError(t, err)
	r := gin.New()
	NewHandler(svc, temp, 1<<20).RegisterRoutes(r.Group("/api/v1"), middleware.Auth())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "image", samplePNG(t, 80), token))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no questions visible")
}
