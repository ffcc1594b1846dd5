package model

import (
	"strings"
	"time"
)

// UserSettings 用户自动化配置：会话凭证、节奏、检测开关、日限额
type UserSettings struct {
	ID                     int64     `gorm:"primaryKey" json:"id"`
	UserID                 int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	SessionCookie          string    `gorm:"type:text" json:"-"` // 加密存储的 li_at
	ProxyID                *int64    `gorm:"index" json:"proxy_id,omitempty"`
	DailyConnectionLimit   int       `gorm:"default:20" json:"daily_connection_limit"`
	DailyMessageLimit      int       `gorm:"default:40" json:"daily_message_limit"`
	MinDelaySeconds        int       `gorm:"default:60" json:"min_delay_seconds"`
	MaxDelaySeconds        int       `gorm:"default:180" json:"max_delay_seconds"`
	// 布尔开关不挂列默认值,否则 Create 写不进 false
	DetectionEnabled       bool      `json:"detection_enabled"`
	AutoPauseOnWarning     bool      `json:"auto_pause_on_warning"`
	AutomationEnabled      bool      `json:"automation_enabled"`
	SlackWebhookURL        string    `gorm:"size:500" json:"-"`
	NotificationEvents     string    `gorm:"size:200;default:warning,failed" json:"notification_events"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (UserSettings) TableName() string {
	return "puppet_user_settings"
}

// WantsNotification 用户是否订阅了该类事件的通知
func (s *UserSettings) WantsNotification(event string) bool {
	for _, e := range strings.Split(s.NotificationEvents, ",") {
		if strings.TrimSpace(e) == event {
			return true
		}
	}
	return false
}
