package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/internal/api/middleware"
	"github.com/puppetops/puppet_go_server/internal/pkg/response"
	"github.com/puppetops/puppet_go_server/internal/service"
	"github.com/puppetops/puppet_go_server/internal/worker"
)

type JobHandler struct {
	jobService *service.JobService
	scheduler  *worker.Scheduler
}

func NewJobHandler(jobService *service.JobService, scheduler *worker.Scheduler) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		scheduler:  scheduler,
	}
}

// EnqueueRequest 入队请求
type EnqueueRequest struct {
	ProfileURL  string     `json:"profile_url" binding:"required"`
	Message     string     `json:"message"`
	Priority    int        `json:"priority"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// Enqueue 创建木偶任务
// POST /api/v1/puppet/jobs
func (h *JobHandler) Enqueue(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.Enqueue(userID, req.ProfileURL, req.Message, req.Priority, req.ScheduledAt)
	if err != nil {
		var rateErr *service.RateLimitError
		switch {
		case errors.Is(err, service.ErrInvalidProfileURL):
			response.ParamError(c, err.Error())
		case errors.As(err, &rateErr):
			response.RateLimitError(c, rateErr.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "任务已入队", job)
}

// List 查询当前用户的任务
// GET /api/v1/puppet/jobs
func (h *JobHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := h.jobService.List(userID, status, limit)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, jobs)
}

// Get 查询单个任务
// GET /api/v1/puppet/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务 ID")
		return
	}

	job, err := h.jobService.Get(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFoundError(c, "")
		return
	}
	if err != nil {
		response.ServerError(c, "")
		return
	}
	if job.UserID != userID {
		response.PermissionError(c, "")
		return
	}

	response.Success(c, job)
}

// TriggerTick 手动触发一轮批处理（运营排障用）
// POST /api/v1/puppet/jobs/tick
func (h *JobHandler) TriggerTick(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.AuthError(c, "")
		return
	}

	summary, err := h.scheduler.ProcessBatch(context.Background())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, summary)
}
