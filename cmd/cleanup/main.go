package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/database"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/service"
)

var retentionDays = flag.Int("retention-days", 0, "Override retention days from config (0 = use config value)")

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *retentionDays > 0 {
		cfg.Recovery.RetentionDays = *retentionDays
	}

	if err := logger.Init(cfg.Server.Mode); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		logger.L.Fatalw("failed to connect database", "error", err)
	}

	jobRepo := repository.NewJobRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	cleanup := service.NewCleanupService(jobRepo, incidentRepo, statsRepo, cfg)
	summary := cleanup.Run(time.Now().UTC())

	logger.L.Infow("cleanup finished",
		"jobs", summary.Jobs,
		"incidents", summary.Incidents,
		"actions", summary.Actions,
		"stats", summary.Stats,
	)
}
