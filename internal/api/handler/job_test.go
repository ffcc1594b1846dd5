package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/api/middleware"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/response"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/service"
	"github.com/puppetops/puppet_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func setupJobHandler(t *testing.T) (*JobHandler, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{DailyConnectionLimit: 20, DailyMessageLimit: 40},
	}
	statsRepo := repository.NewStatsRepository(db)
	rateLimit := service.NewRateLimitService(statsRepo, repository.NewSettingsRepository(db), cfg)
	jobService := service.NewJobService(repository.NewJobRepository(db), rateLimit)

	return NewJobHandler(jobService, nil), db
}

func TestJobHandler_Enqueue(t *testing.T) {
	handler, _ := setupJobHandler(t)

	router := gin.New()
	router.POST("/jobs", mockAuth(1), handler.Enqueue)

	body, _ := json.Marshal(EnqueueRequest{
		ProfileURL: "https://www.linkedin.com/in/jane-doe",
		Message:    "Hello",
		Priority:   8,
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", data["profile_url"])
	assert.Equal(t, float64(8), data["priority"])
	assert.Equal(t, model.JobStatusPending, data["status"])
}

func TestJobHandler_Enqueue_InvalidURL(t *testing.T) {
	handler, _ := setupJobHandler(t)

	router := gin.New()
	router.POST("/jobs", mockAuth(1), handler.Enqueue)

	body, _ := json.Marshal(EnqueueRequest{ProfileURL: "https://twitter.com/someone"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_Enqueue_RateLimited(t *testing.T) {
	handler, db := setupJobHandler(t)

	statsRepo := repository.NewStatsRepository(db)
	require.NoError(t, statsRepo.Increment(1, model.StatDateOf(time.Now()), repository.StatDelta{ConnectionsSent: 20}))

	router := gin.New()
	router.POST("/jobs", mockAuth(1), handler.Enqueue)

	body, _ := json.Marshal(EnqueueRequest{ProfileURL: "https://www.linkedin.com/in/jane-doe"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeRateLimited, resp.Code)
}

func TestJobHandler_Enqueue_MissingBody(t *testing.T) {
	handler, _ := setupJobHandler(t)

	router := gin.New()
	router.POST("/jobs", mockAuth(1), handler.Enqueue)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_List(t *testing.T) {
	handler, db := setupJobHandler(t)

	testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusCompleted))
	testutil.TestJob(t, db, 2)

	router := gin.New()
	router.GET("/jobs", mockAuth(1), handler.List)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.Len(t, resp.Data.([]interface{}), 2)
}

func TestJobHandler_List_StatusFilter(t *testing.T) {
	handler, db := setupJobHandler(t)

	testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusCompleted))

	router := gin.New()
	router.GET("/jobs", mockAuth(1), handler.List)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs?status=completed", nil)
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.([]interface{}), 1)
}

func TestJobHandler_Get(t *testing.T) {
	handler, db := setupJobHandler(t)

	job := testutil.TestJob(t, db, 1)

	router := gin.New()
	router.GET("/jobs/:id", mockAuth(1), handler.Get)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/jobs/%d", job.ID), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestJobHandler_Get_OtherUsersJob(t *testing.T) {
	handler, db := setupJobHandler(t)

	job := testutil.TestJob(t, db, 2)

	router := gin.New()
	router.GET("/jobs/:id", mockAuth(1), handler.Get)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/jobs/%d", job.ID), nil)
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodePermissionDenied, resp.Code)
}

func TestJobHandler_Get_NotFound(t *testing.T) {
	handler, _ := setupJobHandler(t)

	router := gin.New()
	router.GET("/jobs/:id", mockAuth(1), handler.Get)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/99999", nil)
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}
