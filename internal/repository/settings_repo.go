package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/internal/model"
)

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Create(settings *model.UserSettings) error {
	return r.db.Create(settings).Error
}

func (r *SettingsRepository) GetByUserID(userID int64) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := r.db.Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *SettingsRepository) Update(settings *model.UserSettings) error {
	return r.db.Save(settings).Error
}

// SetAutomationEnabled 开关用户自动化（检测命中且 auto_pause 时关闭）
func (r *SettingsRepository) SetAutomationEnabled(userID int64, enabled bool) error {
	return r.db.Model(&model.UserSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"automation_enabled": enabled,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// SetProxy 更新用户绑定的代理，nil 表示解绑
func (r *SettingsRepository) SetProxy(userID int64, proxyID *int64) error {
	return r.db.Model(&model.UserSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"proxy_id":   proxyID,
			"updated_at": time.Now().UTC(),
		}).Error
}
