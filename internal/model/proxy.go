package model

import (
	"time"
)

// 代理及分配状态
const (
	ProxyStatusActive   = "active"
	ProxyStatusDisabled = "disabled"

	AssignmentStatusActive          = "active"
	AssignmentStatusDisabledCaptcha = "disabled_captcha"
	AssignmentStatusRotated         = "rotated"
)

// Proxy 代理池条目
type Proxy struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Endpoint string `gorm:"size:200;not null" json:"endpoint"`
	Port     int    `gorm:"not null" json:"port"`
	Username string `gorm:"size:100" json:"-"`
	Password string `gorm:"size:100" json:"-"`
	Location string `gorm:"size:50" json:"location"`
	Provider string `gorm:"size:50" json:"provider"`
	Status   string `gorm:"size:20;default:active;index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Proxy) TableName() string {
	return "puppet_proxies"
}

// ProxyAssignment 用户与代理的绑定关系，禁用与轮换只由恢复流程修改
type ProxyAssignment struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	UserID         int64      `gorm:"not null;index:idx_assignment_user_proxy" json:"user_id"`
	ProxyID        int64      `gorm:"not null;index:idx_assignment_user_proxy" json:"proxy_id"`
	Status         string     `gorm:"size:30;default:active;index" json:"status"`
	AssignedAt     time.Time  `json:"assigned_at"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
	DisabledUntil  *time.Time `json:"disabled_until,omitempty"`
	DisabledReason string     `gorm:"size:300" json:"disabled_reason,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ProxyAssignment) TableName() string {
	return "puppet_proxy_assignments"
}

// DisabledNow 分配当前是否处于禁用窗口内
func (a *ProxyAssignment) DisabledNow(now time.Time) bool {
	return a.Status != AssignmentStatusActive && a.DisabledUntil != nil && a.DisabledUntil.After(now)
}
