package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/puppetops/puppet_go_server/internal/api/middleware"
	"github.com/puppetops/puppet_go_server/internal/pkg/response"
	"github.com/puppetops/puppet_go_server/internal/service"
)

type StatsHandler struct {
	statsService *service.StatsService
}

func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// Health 系统健康汇总
// GET /api/v1/puppet/stats/health?window_hours=24
func (h *StatsHandler) Health(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.AuthError(c, "")
		return
	}

	windowHours, _ := strconv.Atoi(c.DefaultQuery("window_hours", "24"))
	summary, err := h.statsService.Health(time.Now().UTC(), windowHours)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, summary)
}

// Today 当前用户当日用量与剩余额度
// GET /api/v1/puppet/stats/today
func (h *StatsHandler) Today(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	summary, err := h.statsService.UserToday(userID, time.Now().UTC())
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, summary)
}
