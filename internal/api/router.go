package api

import (
	"github.com/gin-gonic/gin"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/api/handler"
	"github.com/puppetops/puppet_go_server/internal/api/middleware"
)

type Router struct {
	jobHandler       *handler.JobHandler
	recoveryHandler  *handler.RecoveryHandler
	statsHandler     *handler.StatsHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	jobHandler *handler.JobHandler,
	recoveryHandler *handler.RecoveryHandler,
	statsHandler *handler.StatsHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		jobHandler:       jobHandler,
		recoveryHandler:  recoveryHandler,
		statsHandler:     statsHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 全部接口需要认证
		puppet := api.Group("/puppet")
		puppet.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			jobs := puppet.Group("/jobs")
			{
				jobs.POST("", r.jobHandler.Enqueue)
				jobs.GET("", r.jobHandler.List)
				jobs.POST("/tick", r.jobHandler.TriggerTick)
				jobs.GET("/:id", r.jobHandler.Get)
			}

			puppet.GET("/incidents", r.recoveryHandler.ListIncidents)
			puppet.POST("/incidents/:id/ack", r.recoveryHandler.Acknowledge)

			recovery := puppet.Group("/recovery")
			{
				recovery.POST("/resume", r.recoveryHandler.Resume)
				recovery.GET("/cooldown", r.recoveryHandler.CooldownStatus)
			}

			stats := puppet.Group("/stats")
			{
				stats.GET("/health", r.statsHandler.Health)
				stats.GET("/today", r.statsHandler.Today)
			}
		}
	}

	return engine
}
