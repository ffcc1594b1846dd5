package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

// RateLimitService 按 UTC 自然日校验连接/消息额度,只读不计数,
// 计数由任务执行成功后统一写入 daily stats
type RateLimitService struct {
	statsRepo    *repository.StatsRepository
	settingsRepo *repository.SettingsRepository
	cfg          *config.Config
}

func NewRateLimitService(statsRepo *repository.StatsRepository, settingsRepo *repository.SettingsRepository, cfg *config.Config) *RateLimitService {
	return &RateLimitService{
		statsRepo:    statsRepo,
		settingsRepo: settingsRepo,
		cfg:          cfg,
	}
}

// EffectiveConnectionLimit 用户连接限额,未配置取默认值,上限封顶
func (s *RateLimitService) EffectiveConnectionLimit(settings *model.UserSettings) int {
	limit := s.cfg.Scheduler.DailyConnectionLimit
	if settings != nil && settings.DailyConnectionLimit > 0 {
		limit = settings.DailyConnectionLimit
	}
	if limit <= 0 {
		limit = config.DefaultConnectionLimit
	}
	if limit > config.MaxDailyConnectionLimit {
		limit = config.MaxDailyConnectionLimit
	}
	return limit
}

// EffectiveMessageLimit 用户消息限额
func (s *RateLimitService) EffectiveMessageLimit(settings *model.UserSettings) int {
	limit := s.cfg.Scheduler.DailyMessageLimit
	if settings != nil && settings.DailyMessageLimit > 0 {
		limit = settings.DailyMessageLimit
	}
	if limit <= 0 {
		limit = config.DefaultMessageLimit
	}
	return limit
}

// 未配置 settings 的用户按默认限额处理
func (s *RateLimitService) loadSettings(userID int64) (*model.UserSettings, error) {
	settings, err := s.settingsRepo.GetByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return settings, err
}

// CheckConnectionLimit 校验当日连接额度,超限返回 *RateLimitError
func (s *RateLimitService) CheckConnectionLimit(userID int64, now time.Time) error {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return err
	}

	stat, err := s.statsRepo.Get(userID, model.StatDateOf(now))
	if err != nil {
		return err
	}

	limit := s.EffectiveConnectionLimit(settings)
	if stat.ConnectionsSent >= limit {
		return &RateLimitError{Limit: limit, Current: stat.ConnectionsSent}
	}
	return nil
}

// CheckMessageLimit 校验当日消息额度
func (s *RateLimitService) CheckMessageLimit(userID int64, now time.Time) error {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return err
	}

	stat, err := s.statsRepo.Get(userID, model.StatDateOf(now))
	if err != nil {
		return err
	}

	limit := s.EffectiveMessageLimit(settings)
	if stat.MessagesSent >= limit {
		return &RateLimitError{Limit: limit, Current: stat.MessagesSent}
	}
	return nil
}

// Remaining 当日剩余额度,供运营端查询
func (s *RateLimitService) Remaining(userID int64, now time.Time) (connections, messages int, err error) {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return 0, 0, err
	}

	stat, err := s.statsRepo.Get(userID, model.StatDateOf(now))
	if err != nil {
		return 0, 0, err
	}

	connections = s.EffectiveConnectionLimit(settings) - stat.ConnectionsSent
	if connections < 0 {
		connections = 0
	}
	messages = s.EffectiveMessageLimit(settings) - stat.MessagesSent
	if messages < 0 {
		messages = 0
	}
	return connections, messages, nil
}
