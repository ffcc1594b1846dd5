package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/database"
	"github.com/puppetops/puppet_go_server/internal/pkg/credentials"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/pkg/notify"
	"github.com/puppetops/puppet_go_server/internal/pkg/oss"
	"github.com/puppetops/puppet_go_server/internal/pkg/pubsub"
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

	// 初始化 OSS（可选,无 OSS 时证据截图不会上传）
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

	// Cookie 加密器
	sealer, err := credentials.NewSealer(cfg.Security.CookieKey)
	if err != nil {
		logger.L.Fatalw("invalid cookie key", "error", err)
	}

	publisher := pubsub.NewPublisher(rdb)
	notifier := notify.NewNotifier(&cfg.Notify)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 批次串行执行,上一轮未结束时跳过本轮
	var running sync.Mutex
	tickSpec := cfg.Scheduler.TickSpec
	if tickSpec == "" {
		tickSpec = "@every 1m"
	}

	c := cron.New()
	_, err = c.AddFunc(tickSpec, func() {
		if !running.TryLock() {
			logger.L.Warn("previous batch still running, skipping tick")
			return
		}
		defer running.Unlock()

		summary, err := scheduler.ProcessBatch(ctx)
		if err != nil {
			logger.L.Errorw("batch failed", "error", err)
			return
		}
		logger.L.Infow("batch finished",
			"batch_id", summary.BatchID,
			"due", summary.Due,
			"completed", summary.Completed,
			"failed", summary.Failed,
			"warnings", summary.Warnings,
			"skipped", summary.Skipped,
			"stuck_reset", summary.StuckReset,
		)
	})
	if err != nil {
		logger.L.Fatalw("invalid tick spec", "spec", tickSpec, "error", err)
	}

	c.Start()
	logger.L.Infow("scheduler started", "tick_spec", tickSpec)

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.L.Info("received shutdown signal")
	cancel()
	<-c.Stop().Done()
	running.Lock() // wait for the in-flight batch
	logger.L.Info("scheduler shutdown complete")
}
