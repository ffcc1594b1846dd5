package model

import (
	"time"
)

// 检测类型，六类 LinkedIn 安全挑战
const (
	DetectionCaptcha            = "captcha"
	DetectionPhoneVerification  = "phone_verification"
	DetectionSecurityCheckpoint = "security_checkpoint"
	DetectionAccountRestriction = "account_restriction"
	DetectionSuspiciousActivity = "suspicious_activity"
	DetectionLoginChallenge     = "login_challenge"
)

// 事件生命周期
const (
	IncidentStatusDetected      = "detected"
	IncidentStatusAcknowledged  = "acknowledged"
	IncidentStatusInvestigating = "investigating"
	IncidentStatusResolved      = "resolved"
)

// Incident 一次已检测到的安全挑战及其处置过程
type Incident struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	UserID           int64      `gorm:"not null;index" json:"user_id"`
	JobID            *int64     `gorm:"index" json:"job_id,omitempty"`
	ProxyID          *int64     `gorm:"index" json:"proxy_id,omitempty"`
	DetectionType    string     `gorm:"size:30;not null" json:"detection_type"`
	DetectionMethod  string     `gorm:"size:30" json:"detection_method"` // url_pattern / element_selector / text_content
	Confidence       float64    `json:"confidence"`
	EvidenceURL      string     `gorm:"size:500" json:"evidence_url,omitempty"`
	PageURL          string     `gorm:"size:500" json:"page_url,omitempty"`
	Status           string     `gorm:"size:20;default:detected;index" json:"status"`
	CooldownUntil    *time.Time `gorm:"index" json:"cooldown_until,omitempty"`
	ProxyDisabled    bool       `gorm:"default:false" json:"proxy_disabled"`
	ResolutionMethod string     `gorm:"size:50" json:"resolution_method,omitempty"`
	ResolvedBy       *int64     `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	AdminNotes       string     `gorm:"type:text" json:"admin_notes,omitempty"`
	DetectedAt       time.Time  `gorm:"index" json:"detected_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Incident) TableName() string {
	return "puppet_captcha_incidents"
}

// Open 事件尚未进入 resolved
func (i *Incident) Open() bool {
	return i.Status != IncidentStatusResolved
}

// Destructive 该检测类型是否意味着账号已不可恢复地受限。
// 这类任务直接取消而不是转 warning。
func Destructive(detectionType string) bool {
	return detectionType == DetectionAccountRestriction
}

// RecoveryAction 恢复流程审计记录
type RecoveryAction struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ActionType    string    `gorm:"size:30;not null;index" json:"action_type"` // proxy_disable / user_cooldown / proxy_rotation / manual_review
	UserID        int64     `gorm:"not null;index" json:"user_id"`
	ProxyID       *int64    `json:"proxy_id,omitempty"`
	IncidentID    *int64    `gorm:"index" json:"incident_id,omitempty"`
	Reason        string    `gorm:"size:300" json:"reason"`
	DurationHours int       `json:"duration_hours,omitempty"`
	Automatic     bool      `json:"automatic"` // 列默认值会吞掉 Create 里的 false,调用方显式赋值
	Success       bool      `json:"success"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (RecoveryAction) TableName() string {
	return "puppet_recovery_actions"
}

const (
	ActionProxyDisable  = "proxy_disable"
	ActionUserCooldown  = "user_cooldown"
	ActionProxyRotation = "proxy_rotation"
	ActionManualReview  = "manual_review"
)
