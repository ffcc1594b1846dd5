package model

import (
	"time"
)

// DailyStat 每用户每日计数，只增不减。
// (user_id, stat_date) 唯一，写入走原子累加 upsert。
type DailyStat struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	UserID           int64     `gorm:"not null;uniqueIndex:idx_stats_user_date" json:"user_id"`
	StatDate         string    `gorm:"size:10;not null;uniqueIndex:idx_stats_user_date" json:"stat_date"` // YYYY-MM-DD (UTC)
	ConnectionsSent  int       `gorm:"default:0" json:"connections_sent"`
	MessagesSent     int       `gorm:"default:0" json:"messages_sent"`
	JobsCompleted    int       `gorm:"default:0" json:"jobs_completed"`
	JobsFailed       int       `gorm:"default:0" json:"jobs_failed"`
	JobsWarned       int       `gorm:"default:0" json:"jobs_warned"`
	CaptchaDetections int      `gorm:"default:0" json:"captcha_detections"`
	SecurityWarnings int       `gorm:"default:0" json:"security_warnings"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (DailyStat) TableName() string {
	return "puppet_daily_stats"
}

// StatDateOf 统一用 UTC 日历日，避免因时区导致日界抖动
func StatDateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
