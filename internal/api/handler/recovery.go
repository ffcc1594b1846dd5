package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/puppetops/puppet_go_server/internal/api/middleware"
	"github.com/puppetops/puppet_go_server/internal/pkg/response"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/service"
)

type RecoveryHandler struct {
	recoveryService *service.RecoveryService
	incidentRepo    *repository.IncidentRepository
}

func NewRecoveryHandler(recoveryService *service.RecoveryService, incidentRepo *repository.IncidentRepository) *RecoveryHandler {
	return &RecoveryHandler{
		recoveryService: recoveryService,
		incidentRepo:    incidentRepo,
	}
}

// ResumeRequest 手动恢复请求
type ResumeRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Notes  string `json:"notes"`
}

// Resume 操作员手动恢复用户
// POST /api/v1/puppet/recovery/resume
func (h *RecoveryHandler) Resume(c *gin.Context) {
	operatorID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result, err := h.recoveryService.ResumeUser(c.Request.Context(), req.UserID, operatorID, req.Notes)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "用户已恢复", result)
}

// ListIncidents 某用户未解决事故列表
// GET /api/v1/puppet/incidents?user_id=x
func (h *RecoveryHandler) ListIncidents(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.AuthError(c, "")
		return
	}

	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的 user_id")
		return
	}

	incidents, err := h.incidentRepo.ListOpenByUser(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, incidents)
}

// Acknowledge 操作员确认事故
// POST /api/v1/puppet/incidents/:id/ack
func (h *RecoveryHandler) Acknowledge(c *gin.Context) {
	operatorID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的事故 ID")
		return
	}

	if err := h.incidentRepo.Acknowledge(id, operatorID); err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "已确认", nil)
}

// CooldownStatus 用户当前冷却状态
// GET /api/v1/puppet/recovery/cooldown?user_id=x
func (h *RecoveryHandler) CooldownStatus(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.AuthError(c, "")
		return
	}

	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的 user_id")
		return
	}

	incident, err := h.incidentRepo.ActiveCooldown(userID, time.Now().UTC())
	if err != nil {
		response.ServerError(c, "")
		return
	}

	if incident == nil {
		response.Success(c, gin.H{"in_cooldown": false})
		return
	}
	response.Success(c, gin.H{
		"in_cooldown":    true,
		"incident_id":    incident.ID,
		"detection_type": incident.DetectionType,
		"cooldown_until": incident.CooldownUntil,
	})
}
