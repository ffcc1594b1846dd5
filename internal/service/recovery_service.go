package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/pkg/notify"
	"github.com/puppetops/puppet_go_server/internal/pkg/pubsub"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

const ResolutionAdminManualResume = "admin_manual_resume"

// RecoveryOutcome 一次事故恢复各步骤的执行结果
type RecoveryOutcome struct {
	JobHalted        bool  `json:"job_halted"`
	ProxyDisabled    bool  `json:"proxy_disabled"`
	ProxyRotated     bool  `json:"proxy_rotated"`
	UserCooldownSet  bool  `json:"user_cooldown_set"`
	JobsCancelled    int64 `json:"jobs_cancelled"`
	AutomationPaused bool  `json:"automation_paused"`
	AlertSent        bool  `json:"alert_sent"`
}

// ResumeResult 手动恢复的执行结果
type ResumeResult struct {
	IncidentsResolved  int64 `json:"incidents_resolved"`
	ProxiesReactivated int   `json:"proxies_reactivated"`
	AutomationEnabled  bool  `json:"automation_enabled"`
}

// RecoveryService 安全事故的自动恢复与手动恢复编排。
// 每个恢复步骤独立执行,单步失败记日志后继续,不中断整个流程
type RecoveryService struct {
	jobRepo      *repository.JobRepository
	incidentRepo *repository.IncidentRepository
	proxyRepo    *repository.ProxyRepository
	settingsRepo *repository.SettingsRepository
	publisher    *pubsub.Publisher
	notifier     *notify.Notifier
	cfg          *config.Config
}

func NewRecoveryService(
	jobRepo *repository.JobRepository,
	incidentRepo *repository.IncidentRepository,
	proxyRepo *repository.ProxyRepository,
	settingsRepo *repository.SettingsRepository,
	publisher *pubsub.Publisher,
	notifier *notify.Notifier,
	cfg *config.Config,
) *RecoveryService {
	return &RecoveryService{
		jobRepo:      jobRepo,
		incidentRepo: incidentRepo,
		proxyRepo:    proxyRepo,
		settingsRepo: settingsRepo,
		publisher:    publisher,
		notifier:     notifier,
		cfg:          cfg,
	}
}

// HandleIncident 执行事故恢复流程:停任务、禁代理、设冷却、
// 可选换代理、发告警。每步写入审计日志
func (s *RecoveryService) HandleIncident(ctx context.Context, job *model.PuppetJob, incident *model.Incident) *RecoveryOutcome {
	now := time.Now().UTC()
	log := logger.WithIncident(incident.ID)
	outcome := &RecoveryOutcome{}

	s.haltJob(job, incident, now, outcome, log)
	s.disableProxy(incident, now, outcome, log)
	s.applyCooldown(job.UserID, incident, now, outcome, log)
	s.pauseAutomation(job.UserID, outcome, log)
	s.rotateProxy(job.UserID, incident, outcome, log)
	s.sendAlerts(ctx, job, incident, outcome, log)

	log.Infow("incident recovery finished",
		"job_halted", outcome.JobHalted,
		"proxy_disabled", outcome.ProxyDisabled,
		"proxy_rotated", outcome.ProxyRotated,
		"cooldown_set", outcome.UserCooldownSet,
		"jobs_cancelled", outcome.JobsCancelled,
		"alert_sent", outcome.AlertSent)
	return outcome
}

// haltJob 破坏性检测直接取消任务,其余标记 warning
func (s *RecoveryService) haltJob(job *model.PuppetJob, incident *model.Incident, now time.Time, outcome *RecoveryOutcome, log *zap.SugaredLogger) {
	var err error
	reason := fmt.Sprintf("security detection: %s (confidence: %.2f)", incident.DetectionType, incident.Confidence)
	if model.Destructive(incident.DetectionType) {
		err = s.jobRepo.Cancel(job.ID, reason, now)
	} else {
		err = s.jobRepo.MarkWarning(job.ID, incident.DetectionType, incident.EvidenceURL, reason, now)
	}
	if err != nil {
		log.Warnw("halt job failed", "job_id", job.ID, "error", err)
		return
	}
	outcome.JobHalted = true
}

func (s *RecoveryService) disableProxy(incident *model.Incident, now time.Time, outcome *RecoveryOutcome, log *zap.SugaredLogger) {
	if incident.ProxyID == nil {
		return
	}

	until := now.Add(time.Duration(s.cfg.Recovery.ProxyDisableHours) * time.Hour)
	disabled, err := s.proxyRepo.DisableAssignment(incident.UserID, *incident.ProxyID, incident.ID, until, incident.DetectionType)
	s.logAction(&model.RecoveryAction{
		ActionType:    model.ActionProxyDisable,
		UserID:        incident.UserID,
		ProxyID:       incident.ProxyID,
		IncidentID:    &incident.ID,
		Reason:        incident.DetectionType,
		DurationHours: s.cfg.Recovery.ProxyDisableHours,
		Automatic:     true,
		Success:       err == nil,
	})
	if err != nil {
		log.Warnw("proxy disable failed", "proxy_id", *incident.ProxyID, "error", err)
		return
	}
	if disabled {
		if err := s.incidentRepo.SetProxyDisabled(incident.ID); err != nil {
			log.Warnw("mark incident proxy_disabled failed", "error", err)
		}
	}
	outcome.ProxyDisabled = true
}

func (s *RecoveryService) applyCooldown(userID int64, incident *model.Incident, now time.Time, outcome *RecoveryOutcome, log *zap.SugaredLogger) {
	until := now.Add(time.Duration(s.cfg.Recovery.CooldownHours) * time.Hour)
	err := s.incidentRepo.SetCooldown(incident.ID, until)
	s.logAction(&model.RecoveryAction{
		ActionType:    model.ActionUserCooldown,
		UserID:        userID,
		IncidentID:    &incident.ID,
		Reason:        incident.DetectionType,
		DurationHours: s.cfg.Recovery.CooldownHours,
		Automatic:     true,
		Success:       err == nil,
	})
	if err != nil {
		log.Warnw("set cooldown failed", "error", err)
		return
	}
	outcome.UserCooldownSet = true

	cancelled, err := s.jobRepo.CancelPendingByUser(userID, "user cooldown after security detection", now)
	if err != nil {
		log.Warnw("cancel pending jobs failed", "error", err)
		return
	}
	outcome.JobsCancelled = cancelled
}

func (s *RecoveryService) pauseAutomation(userID int64, outcome *RecoveryOutcome, log *zap.SugaredLogger) {
	settings, err := s.settingsRepo.GetByUserID(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnw("load settings failed", "error", err)
		}
		return
	}
	if !settings.AutoPauseOnWarning || !settings.AutomationEnabled {
		return
	}
	if err := s.settingsRepo.SetAutomationEnabled(userID, false); err != nil {
		log.Warnw("pause automation failed", "error", err)
		return
	}
	outcome.AutomationPaused = true
}

// rotateProxy 开启代理轮换时为用户分配替代代理。
// 无可用替代代理则仅保留冷却,不视为失败
func (s *RecoveryService) rotateProxy(userID int64, incident *model.Incident, outcome *RecoveryOutcome, log *zap.SugaredLogger) {
	if !s.cfg.Recovery.RotateProxy || incident.ProxyID == nil {
		return
	}
	if model.Destructive(incident.DetectionType) {
		return
	}

	alternate, err := s.proxyRepo.FindAlternateProxy(userID, *incident.ProxyID)
	if err != nil {
		log.Warnw("find alternate proxy failed", "error", err)
		return
	}
	if alternate == nil {
		s.logAction(&model.RecoveryAction{
			ActionType: model.ActionProxyRotation,
			UserID:     userID,
			ProxyID:    incident.ProxyID,
			IncidentID: &incident.ID,
			Reason:     "no alternate proxy available",
			Automatic:  true,
			Success:    false,
		})
		return
	}

	if err := s.proxyRepo.MarkRotated(userID, *incident.ProxyID, incident.DetectionType); err != nil {
		log.Warnw("mark old assignment rotated failed", "error", err)
		return
	}
	if err := s.proxyRepo.CreateAssignment(&model.ProxyAssignment{
		UserID:  userID,
		ProxyID: alternate.ID,
		Status:  model.AssignmentStatusActive,
	}); err != nil {
		log.Warnw("create new assignment failed", "proxy_id", alternate.ID, "error", err)
		return
	}
	if err := s.settingsRepo.SetProxy(userID, &alternate.ID); err != nil {
		log.Warnw("bind new proxy failed", "proxy_id", alternate.ID, "error", err)
		return
	}

	s.logAction(&model.RecoveryAction{
		ActionType: model.ActionProxyRotation,
		UserID:     userID,
		ProxyID:    &alternate.ID,
		IncidentID: &incident.ID,
		Reason:     incident.DetectionType,
		Automatic:  true,
		Success:    true,
	})
	outcome.ProxyRotated = true
}

func (s *RecoveryService) sendAlerts(ctx context.Context, job *model.PuppetJob, incident *model.Incident, outcome *RecoveryOutcome, log *zap.SugaredLogger) {
	if s.publisher != nil {
		err := s.publisher.PublishAlert(ctx, &pubsub.AlertMessage{
			Type:          pubsub.EventSecurityWarning,
			UserID:        job.UserID,
			JobID:         job.ID,
			IncidentID:    incident.ID,
			DetectionType: incident.DetectionType,
			Status:        incident.Status,
		})
		if err != nil {
			log.Warnw("publish alert failed", "error", err)
		} else {
			outcome.AlertSent = true
		}
	}

	if s.notifier == nil {
		return
	}
	webhook := s.cfg.Notify.SlackWebhookURL
	settings, err := s.settingsRepo.GetByUserID(job.UserID)
	if err == nil {
		if !settings.WantsNotification("warning") {
			return
		}
		if settings.SlackWebhookURL != "" {
			webhook = settings.SlackWebhookURL
		}
	}
	if webhook == "" {
		return
	}
	err = s.notifier.SendSecurityAlert(ctx, webhook, notify.SecurityAlert{
		JobID:         job.ID,
		UserID:        job.UserID,
		DetectionType: incident.DetectionType,
		Confidence:    incident.Confidence,
		ProfileURL:    job.ProfileURL,
		PageURL:       incident.PageURL,
		ScreenshotURL: incident.EvidenceURL,
		DetectedAt:    incident.DetectedAt,
	})
	if err != nil {
		log.Warnw("slack notification failed", "error", err)
		return
	}
	outcome.AlertSent = true
}

// ResumeUser 操作员手动恢复:解除事故冷却、重新启用代理与自动化
func (s *RecoveryService) ResumeUser(ctx context.Context, userID, operatorID int64, notes string) (*ResumeResult, error) {
	result := &ResumeResult{}

	open, err := s.incidentRepo.ListOpenByUser(userID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.incidentRepo.ResolveAllByUser(userID, operatorID, ResolutionAdminManualResume, notes)
	if err != nil {
		return nil, err
	}
	result.IncidentsResolved = resolved

	seen := make(map[int64]bool)
	for _, incident := range open {
		if incident.ProxyID == nil || seen[*incident.ProxyID] {
			continue
		}
		seen[*incident.ProxyID] = true
		if err := s.proxyRepo.ReactivateAssignment(userID, *incident.ProxyID); err != nil {
			logger.WithIncident(incident.ID).Warnw("reactivate proxy failed", "proxy_id", *incident.ProxyID, "error", err)
			continue
		}
		result.ProxiesReactivated++
	}

	if err := s.settingsRepo.SetAutomationEnabled(userID, true); err != nil {
		logger.L.Warnw("enable automation failed", "user_id", userID, "error", err)
	} else {
		result.AutomationEnabled = true
	}

	s.logAction(&model.RecoveryAction{
		ActionType: model.ActionManualReview,
		UserID:     userID,
		Reason:     notes,
		Automatic:  false,
		Success:    true,
	})

	if s.publisher != nil {
		err := s.publisher.PublishAlert(ctx, &pubsub.AlertMessage{
			Type:   pubsub.EventOperationsResume,
			UserID: userID,
		})
		if err != nil {
			logger.L.Warnw("publish resume event failed", "user_id", userID, "error", err)
		}
	}

	logger.L.Infow("user resumed",
		"user_id", userID,
		"operator_id", operatorID,
		"incidents_resolved", result.IncidentsResolved,
		"proxies_reactivated", result.ProxiesReactivated)
	return result, nil
}

// logAction 审计日志写入失败只记日志
func (s *RecoveryService) logAction(action *model.RecoveryAction) {
	if err := s.incidentRepo.LogAction(action); err != nil {
		logger.L.Warnw("recovery audit write failed", "action_type", action.ActionType, "error", err)
	}
}
