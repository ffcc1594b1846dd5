package service

import (
	"time"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

// CleanupSummary 一次保留期清理的删除计数
type CleanupSummary struct {
	Jobs      int64 `json:"jobs"`
	Incidents int64 `json:"incidents"`
	Actions   int64 `json:"actions"`
	Stats     int64 `json:"stats"`
}

// CleanupService 按保留期清理终态任务、已解决事件、审计记录和日统计
type CleanupService struct {
	jobRepo      *repository.JobRepository
	incidentRepo *repository.IncidentRepository
	statsRepo    *repository.StatsRepository
	cfg          *config.Config
}

func NewCleanupService(jobRepo *repository.JobRepository, incidentRepo *repository.IncidentRepository, statsRepo *repository.StatsRepository, cfg *config.Config) *CleanupService {
	return &CleanupService{
		jobRepo:      jobRepo,
		incidentRepo: incidentRepo,
		statsRepo:    statsRepo,
		cfg:          cfg,
	}
}

// Run 执行一轮清理,单表失败不影响其他表
func (s *CleanupService) Run(now time.Time) *CleanupSummary {
	retention := s.cfg.Recovery.RetentionDays
	if retention <= 0 {
		retention = config.DefaultRetentionDays
	}
	cutoff := now.AddDate(0, 0, -retention)
	summary := &CleanupSummary{}

	var err error
	if summary.Jobs, err = s.jobRepo.DeleteTerminalBefore(cutoff); err != nil {
		logger.L.Warnw("job cleanup failed", "error", err)
	}
	if summary.Incidents, err = s.incidentRepo.DeleteResolvedBefore(cutoff); err != nil {
		logger.L.Warnw("incident cleanup failed", "error", err)
	}
	if summary.Actions, err = s.incidentRepo.DeleteActionsBefore(cutoff); err != nil {
		logger.L.Warnw("audit cleanup failed", "error", err)
	}
	if summary.Stats, err = s.statsRepo.DeleteBefore(model.StatDateOf(cutoff)); err != nil {
		logger.L.Warnw("stats cleanup failed", "error", err)
	}

	logger.L.Infow("retention cleanup finished",
		"cutoff", cutoff.Format("2006-01-02"),
		"jobs", summary.Jobs,
		"incidents", summary.Incidents,
		"actions", summary.Actions,
		"stats", summary.Stats)
	return summary
}
