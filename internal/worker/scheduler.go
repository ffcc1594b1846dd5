package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/pkg/pubsub"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/service"
)

// ExecutionResult 浏览器执行器返回的任务结果
type ExecutionResult struct {
	ConnectionSent bool   `json:"connection_sent"`
	MessageSent    bool   `json:"message_sent"`
	PageURL        string `json:"page_url,omitempty"`
}

// Executor 浏览器自动化执行器。执行中检测到安全挑战时
// 返回 *service.SecurityDetectionError
type Executor interface {
	Execute(ctx context.Context, cfg *service.ExecutionConfig) (*ExecutionResult, error)
}

// BatchSummary 一轮批处理的统计
type BatchSummary struct {
	BatchID    string `json:"batch_id"`
	StuckReset int64  `json:"stuck_reset"`
	Due        int    `json:"due"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Warnings   int    `json:"warnings"`
	Skipped    int    `json:"skipped"`
}

// Scheduler 木偶任务调度器,每个 tick 取一批到期任务串行执行
type Scheduler struct {
	jobRepo      *repository.JobRepository
	settingsRepo *repository.SettingsRepository
	incidentRepo *repository.IncidentRepository
	statsRepo    *repository.StatsRepository
	execConfig   *service.ExecConfigService
	rateLimit    *service.RateLimitService
	incidents    *service.IncidentService
	recovery     *service.RecoveryService
	publisher    *pubsub.Publisher
	executor     Executor
	cfg          *config.Config
}

func NewScheduler(
	jobRepo *repository.JobRepository,
	settingsRepo *repository.SettingsRepository,
	incidentRepo *repository.IncidentRepository,
	statsRepo *repository.StatsRepository,
	execConfig *service.ExecConfigService,
	rateLimit *service.RateLimitService,
	incidents *service.IncidentService,
	recovery *service.RecoveryService,
	publisher *pubsub.Publisher,
	executor Executor,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		jobRepo:      jobRepo,
		settingsRepo: settingsRepo,
		incidentRepo: incidentRepo,
		statsRepo:    statsRepo,
		execConfig:   execConfig,
		rateLimit:    rateLimit,
		incidents:    incidents,
		recovery:     recovery,
		publisher:    publisher,
		executor:     executor,
		cfg:          cfg,
	}
}

// ProcessBatch 处理一轮到期任务。上下文取消时提前返回已完成部分的统计
func (s *Scheduler) ProcessBatch(ctx context.Context) (*BatchSummary, error) {
	now := time.Now().UTC()
	summary := &BatchSummary{BatchID: uuid.NewString()}
	log := logger.L.With("batch_id", summary.BatchID)

	// 回收卡死的 running 任务
	stuckBefore := now.Add(-time.Duration(s.cfg.Scheduler.StuckJobMinutes) * time.Minute)
	reset, err := s.jobRepo.ResetStuckJobs(stuckBefore)
	if err != nil {
		log.Warnw("stuck job sweep failed", "error", err)
	} else if reset > 0 {
		log.Infow("stuck jobs reset", "count", reset)
	}
	summary.StuckReset = reset

	jobs, err := s.jobRepo.GetDueJobs(now, s.cfg.Scheduler.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch due jobs: %w", err)
	}
	summary.Due = len(jobs)
	if len(jobs) == 0 {
		return summary, nil
	}
	log.Infow("batch started", "due", len(jobs))

	for i, job := range jobs {
		if ctx.Err() != nil {
			log.Infow("batch aborted", "remaining", len(jobs)-i)
			break
		}

		s.processJob(ctx, job, summary)

		// 任务间随机间隔,模拟人工节奏;上下文取消立即中断等待
		if i < len(jobs)-1 {
			if !s.sleepBetweenJobs(ctx) {
				log.Infow("batch aborted during delay", "remaining", len(jobs)-i-1)
				break
			}
		}
	}

	log.Infow("batch finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"warnings", summary.Warnings,
		"skipped", summary.Skipped)
	return summary, nil
}

func (s *Scheduler) processJob(ctx context.Context, job *model.PuppetJob, summary *BatchSummary) {
	now := time.Now().UTC()
	log := logger.WithJob(job.ID)

	// 冷却中的用户整批跳过,任务保持 pending
	cooldown, err := s.incidentRepo.ActiveCooldown(job.UserID, now)
	if err != nil {
		log.Warnw("cooldown check failed", "error", err)
		summary.Skipped++
		return
	}
	if cooldown != nil {
		log.Infow("user in cooldown, job skipped",
			"user_id", job.UserID,
			"cooldown_until", cooldown.CooldownUntil)
		summary.Skipped++
		return
	}

	// 自动化关闭的用户不执行
	settings, err := s.settingsRepo.GetByUserID(job.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnw("settings lookup failed", "error", err)
		summary.Skipped++
		return
	}
	if settings != nil && !settings.AutomationEnabled {
		log.Infow("automation disabled, job skipped", "user_id", job.UserID)
		summary.Skipped++
		return
	}

	// CAS 认领,并发 worker 下只有一个能拿到
	claimed, err := s.jobRepo.MarkRunning(job.ID, now)
	if err != nil {
		log.Warnw("claim job failed", "error", err)
		summary.Skipped++
		return
	}
	if !claimed {
		summary.Skipped++
		return
	}

	// 额度用尽按失败处理,错误信息记录当前用量与上限
	if err := s.rateLimit.CheckConnectionLimit(job.UserID, now); err != nil {
		var rateErr *service.RateLimitError
		if errors.As(err, &rateErr) {
			log.Infow("daily limit reached",
				"user_id", job.UserID,
				"current", rateErr.Current,
				"limit", rateErr.Limit)
			s.failJob(ctx, job, rateErr.Error(), summary, log)
			return
		}
		s.failJob(ctx, job, fmt.Sprintf("rate limit check failed: %v", err), summary, log)
		return
	}

	execCfg, err := s.execConfig.Build(job)
	if err != nil {
		var cfgErr *service.ConfigError
		if errors.As(err, &cfgErr) {
			s.failJob(ctx, job, cfgErr.Reason, summary, log)
			return
		}
		s.failJob(ctx, job, fmt.Sprintf("config build failed: %v", err), summary, log)
		return
	}

	log.Infow("job started", "user_id", job.UserID, "profile_url", job.ProfileURL)
	result, execErr := s.executor.Execute(ctx, execCfg)
	if execErr == nil {
		s.completeJob(ctx, job, result, summary, log)
		return
	}

	var detection *service.SecurityDetectionError
	if errors.As(execErr, &detection) {
		s.handleDetection(ctx, job, execCfg, detection, summary, log)
		return
	}
	s.failJob(ctx, job, execErr.Error(), summary, log)
}

func (s *Scheduler) completeJob(ctx context.Context, job *model.PuppetJob, result *ExecutionResult, summary *BatchSummary, log *zap.SugaredLogger) {
	now := time.Now().UTC()
	resultData := ""
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			resultData = string(data)
		}
	}
	if err := s.jobRepo.Complete(job.ID, resultData, now); err != nil {
		log.Warnw("mark completed failed", "error", err)
		summary.Failed++
		return
	}

	delta := repository.StatDelta{JobsCompleted: 1}
	if result != nil && result.ConnectionSent {
		delta.ConnectionsSent = 1
	}
	if result != nil && result.MessageSent {
		delta.MessagesSent = 1
	}
	if err := s.statsRepo.Increment(job.UserID, model.StatDateOf(now), delta); err != nil {
		log.Warnw("stats update failed", "error", err)
	}

	if s.publisher != nil {
		s.publisher.PublishAlert(ctx, &pubsub.AlertMessage{
			Type:   pubsub.EventJobCompleted,
			UserID: job.UserID,
			JobID:  job.ID,
			Status: model.JobStatusCompleted,
		})
	}

	log.Infow("job completed", "user_id", job.UserID)
	summary.Completed++
}

func (s *Scheduler) failJob(ctx context.Context, job *model.PuppetJob, reason string, summary *BatchSummary, log *zap.SugaredLogger) {
	now := time.Now().UTC()
	if err := s.jobRepo.Fail(job.ID, reason, now); err != nil {
		log.Warnw("mark failed failed", "error", err)
	}
	if err := s.statsRepo.Increment(job.UserID, model.StatDateOf(now), repository.StatDelta{JobsFailed: 1}); err != nil {
		log.Warnw("stats update failed", "error", err)
	}

	if s.publisher != nil {
		s.publisher.PublishAlert(ctx, &pubsub.AlertMessage{
			Type:   pubsub.EventJobFailed,
			UserID: job.UserID,
			JobID:  job.ID,
			Status: model.JobStatusFailed,
			Error:  reason,
		})
	}

	log.Infow("job failed", "user_id", job.UserID, "reason", reason)
	summary.Failed++
}

func (s *Scheduler) handleDetection(ctx context.Context, job *model.PuppetJob, execCfg *service.ExecutionConfig, detection *service.SecurityDetectionError, summary *BatchSummary, log *zap.SugaredLogger) {
	log.Warnw("security detection during execution",
		"user_id", job.UserID,
		"detection_type", detection.Type,
		"confidence", detection.Confidence)

	incident, err := s.incidents.Record(job, execCfg.ProxyID, detection)
	if err != nil {
		// 事故落库失败兜底:至少把任务停掉
		log.Warnw("incident record failed", "error", err)
		now := time.Now().UTC()
		if err := s.jobRepo.MarkWarning(job.ID, detection.Type, "", detection.Error(), now); err != nil {
			log.Warnw("mark warning failed", "error", err)
		}
		summary.Warnings++
		return
	}

	s.recovery.HandleIncident(ctx, job, incident)

	now := time.Now().UTC()
	if err := s.statsRepo.Increment(job.UserID, model.StatDateOf(now), repository.StatDelta{JobsWarned: 1}); err != nil {
		log.Warnw("stats update failed", "error", err)
	}
	summary.Warnings++
}

// sleepBetweenJobs 返回 false 表示上下文已取消
func (s *Scheduler) sleepBetweenJobs(ctx context.Context) bool {
	min := s.cfg.Scheduler.MinJobDelaySeconds
	max := s.cfg.Scheduler.MaxJobDelaySeconds
	delay := time.Duration(min) * time.Second
	if max > min {
		delay += time.Duration(rand.Intn((max-min)*1000)) * time.Millisecond
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
