package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/credentials"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

// ProxyEndpoint 浏览器执行器使用的代理连接信息
type ProxyEndpoint struct {
	Endpoint string `json:"endpoint"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ExecutionConfig 单个任务的完整执行配置
type ExecutionConfig struct {
	JobID      int64  `json:"job_id"`
	UserID     int64  `json:"user_id"`
	ProfileURL string `json:"profile_url"`
	Message    string `json:"message,omitempty"`

	SessionCookie  string `json:"-"`
	CookieDegraded bool   `json:"cookie_degraded"`

	Proxy   *ProxyEndpoint `json:"proxy,omitempty"`
	ProxyID *int64         `json:"proxy_id,omitempty"`

	MinDelaySeconds int `json:"min_delay_seconds"`
	MaxDelaySeconds int `json:"max_delay_seconds"`

	DetectionEnabled   bool   `json:"detection_enabled"`
	AutoPauseOnWarning bool   `json:"auto_pause_on_warning"`
	SlackWebhookURL    string `json:"-"`
}

// ExecConfigService 组装任务执行配置
type ExecConfigService struct {
	settingsRepo *repository.SettingsRepository
	proxyRepo    *repository.ProxyRepository
	sealer       *credentials.Sealer
}

func NewExecConfigService(settingsRepo *repository.SettingsRepository, proxyRepo *repository.ProxyRepository, sealer *credentials.Sealer) *ExecConfigService {
	return &ExecConfigService{
		settingsRepo: settingsRepo,
		proxyRepo:    proxyRepo,
		sealer:       sealer,
	}
}

// Build 为任务组装执行配置。
// 缺少会话 Cookie 返回 *ConfigError;代理缺失或被禁用时静默降级为无代理
func (s *ExecConfigService) Build(job *model.PuppetJob) (*ExecutionConfig, error) {
	settings, err := s.settingsRepo.GetByUserID(job.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ConfigError{Reason: fmt.Sprintf("user %d has no puppet settings", job.UserID)}
	}
	if err != nil {
		return nil, err
	}

	if settings.SessionCookie == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("user %d has no session cookie", job.UserID)}
	}

	cookie, degraded, err := s.sealer.Open(settings.SessionCookie)
	if err != nil {
		// 解密失败时原样使用存量值降级运行,只有完全没有值才算配置错误
		logger.WithJob(job.ID).Warnw("session cookie decrypt failed, using stored value",
			"user_id", job.UserID, "error", err)
		cookie = settings.SessionCookie
		degraded = true
	} else if degraded {
		logger.WithJob(job.ID).Warnw("session cookie stored unencrypted", "user_id", job.UserID)
	}

	cfg := &ExecutionConfig{
		JobID:              job.ID,
		UserID:             job.UserID,
		ProfileURL:         job.ProfileURL,
		Message:            job.Message,
		SessionCookie:      cookie,
		CookieDegraded:     degraded,
		MinDelaySeconds:    clampDelay(settings.MinDelaySeconds, config.DefaultMinActionDelay),
		MaxDelaySeconds:    clampDelay(settings.MaxDelaySeconds, config.DefaultMaxActionDelay),
		DetectionEnabled:   settings.DetectionEnabled,
		AutoPauseOnWarning: settings.AutoPauseOnWarning,
		SlackWebhookURL:    settings.SlackWebhookURL,
	}
	if cfg.MaxDelaySeconds < cfg.MinDelaySeconds {
		cfg.MaxDelaySeconds = cfg.MinDelaySeconds
	}

	cfg.Proxy = s.resolveProxy(job, settings, cfg)
	return cfg, nil
}

// resolveProxy 代理解析失败不阻断任务,返回 nil 走直连
func (s *ExecConfigService) resolveProxy(job *model.PuppetJob, settings *model.UserSettings, cfg *ExecutionConfig) *ProxyEndpoint {
	if settings.ProxyID == nil {
		return nil
	}

	proxy, err := s.proxyRepo.GetActiveByID(*settings.ProxyID)
	if err != nil {
		logger.WithJob(job.ID).Warnw("proxy lookup failed", "proxy_id", *settings.ProxyID, "error", err)
		return nil
	}
	if proxy == nil {
		return nil
	}

	assignment, err := s.proxyRepo.GetAssignment(job.UserID, proxy.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithJob(job.ID).Warnw("proxy assignment lookup failed", "proxy_id", proxy.ID, "error", err)
		return nil
	}
	if assignment != nil && assignment.Status != model.AssignmentStatusActive {
		return nil
	}

	cfg.ProxyID = &proxy.ID
	return &ProxyEndpoint{
		Endpoint: proxy.Endpoint,
		Port:     proxy.Port,
		Username: proxy.Username,
		Password: proxy.Password,
	}
}

func clampDelay(value, fallback int) int {
	if value <= 0 {
		value = fallback
	}
	if value < config.MinActionDelayFloor {
		value = config.MinActionDelayFloor
	}
	if value > config.MaxActionDelayCeil {
		value = config.MaxActionDelayCeil
	}
	return value
}
