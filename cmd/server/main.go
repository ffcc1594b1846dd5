package main

import (
	"context"
	"fmt"
	"log"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/api"
	"github.com/puppetops/puppet_go_server/internal/api/handler"
	"github.com/puppetops/puppet_go_server/internal/database"
	"github.com/puppetops/puppet_go_server/internal/pkg/credentials"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/pkg/notify"
	"github.com/puppetops/puppet_go_server/internal/pkg/oss"
	"github.com/puppetops/puppet_go_server/internal/pkg/pubsub"
	"github.com/puppetops/puppet_go_server/internal/pkg/ws"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/service"
	"github.com/puppetops/puppet_go_server/internal/worker"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Mode); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		logger.L.Fatalw("failed to connect database", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.L.Fatalw("failed to migrate database", "error", err)
	}
	logger.L.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logger.L.Fatalw("failed to connect redis", "error", err)
	}
	logger.L.Info("redis connected")

	// 初始化 OSS（可选）
	var uploader service.EvidenceUploader
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logger.L.Warnw("failed to init oss client", "error", err)
		} else {
			uploader = ossClient
			logger.L.Info("oss client initialized")
		}
	}

	sealer, err := credentials.NewSealer(cfg.Security.CookieKey)
	if err != nil {
		logger.L.Fatalw("invalid cookie key", "error", err)
	}

	publisher := pubsub.NewPublisher(rdb)
	notifier := notify.NewNotifier(&cfg.Notify)

	// WebSocket Hub 将 Redis 告警频道推送给在线用户
	wsHub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.AlertMessage) {
			_ = wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil {
			logger.L.Errorw("alert subscription stopped", "error", err)
		}
	}()
	logger.L.Info("websocket hub started")

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	proxyRepo := repository.NewProxyRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// 初始化 Service
	rateLimitService := service.NewRateLimitService(statsRepo, settingsRepo, cfg)
	execConfigService := service.NewExecConfigService(settingsRepo, proxyRepo, sealer)
	incidentService := service.NewIncidentService(incidentRepo, statsRepo, uploader)
	recoveryService := service.NewRecoveryService(jobRepo, incidentRepo, proxyRepo, settingsRepo, publisher, notifier, cfg)
	jobService := service.NewJobService(jobRepo, rateLimitService)
	statsService := service.NewStatsService(jobRepo, proxyRepo, incidentRepo, statsRepo, rateLimitService)

	// 手动触发批次使用与调度器进程相同的执行管线
	executor := worker.NewHTTPExecutor(&cfg.Executor)
	scheduler := worker.NewScheduler(
		jobRepo,
		settingsRepo,
		incidentRepo,
		statsRepo,
		execConfigService,
		rateLimitService,
		incidentService,
		recoveryService,
		publisher,
		executor,
		cfg,
	)

	// 初始化 Handler
	jobHandler := handler.NewJobHandler(jobService, scheduler)
	recoveryHandler := handler.NewRecoveryHandler(recoveryService, incidentRepo)
	statsHandler := handler.NewStatsHandler(statsService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// 初始化 Router
	router := api.NewRouter(
		jobHandler,
		recoveryHandler,
		statsHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.L.Infow("server starting", "addr", addr)
	if err := engine.Run(addr); err != nil {
		logger.L.Fatalw("failed to start server", "error", err)
	}
}
