package model

import (
	"time"

	"gorm.io/gorm"
)

// 任务状态。pending → running → completed/failed/warning/cancelled，
// 终态不再变更。
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusWarning   = "warning"
	JobStatusCancelled = "cancelled"
)

// PuppetJob 单个 LinkedIn 外联任务（加好友/发消息）
type PuppetJob struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	UserID        int64      `gorm:"not null;index" json:"user_id"`
	ProfileURL    string     `gorm:"size:500;not null" json:"profile_url"`
	Message       string     `gorm:"type:text" json:"message,omitempty"`
	Priority      int        `gorm:"not null;default:5;index" json:"priority"`
	ScheduledAt   time.Time  `gorm:"not null;index" json:"scheduled_at"`
	Status        string     `gorm:"size:20;default:pending;index" json:"status"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`
	DetectionType string     `gorm:"size:30" json:"detection_type,omitempty"`
	EvidenceURL   string     `gorm:"size:500" json:"evidence_url,omitempty"`
	ResultData    string     `gorm:"type:text" json:"result_data,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (PuppetJob) TableName() string {
	return "puppet_jobs"
}

// IsTerminal 终态任务不允许再次变更状态
func (j *PuppetJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusWarning, JobStatusCancelled:
		return true
	}
	return false
}

// BeforeCreate 缺省调度时间为立即执行
func (j *PuppetJob) BeforeCreate(tx *gorm.DB) error {
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now().UTC()
	}
	return nil
}
