package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/internal/model"
)

// TestSettings 创建测试用户配置
func TestSettings(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.UserSettings)) *model.UserSettings {
	t.Helper()

	settings := &model.UserSettings{
		UserID:               userID,
		SessionCookie:        "AQEDAtestSessionCookie",
		DailyConnectionLimit: 20,
		DailyMessageLimit:    40,
		MinDelaySeconds:      60,
		MaxDelaySeconds:      180,
		DetectionEnabled:     true,
		AutoPauseOnWarning:   true,
		AutomationEnabled:    true,
		NotificationEvents:   "warning,failed",
	}

	for _, opt := range opts {
		opt(settings)
	}

	if err := db.Create(settings).Error; err != nil {
		t.Fatalf("Failed to create test settings: %v", err)
	}

	return settings
}

// WithSessionCookie 设置会话 Cookie
func WithSessionCookie(cookie string) func(*model.UserSettings) {
	return func(s *model.UserSettings) {
		s.SessionCookie = cookie
	}
}

// WithProxy 绑定代理
func WithProxy(proxyID int64) func(*model.UserSettings) {
	return func(s *model.UserSettings) {
		s.ProxyID = &proxyID
	}
}

// WithConnectionLimit 设置日连接限额
func WithConnectionLimit(limit int) func(*model.UserSettings) {
	return func(s *model.UserSettings) {
		s.DailyConnectionLimit = limit
	}
}

// WithAutomationEnabled 开关自动化
func WithAutomationEnabled(enabled bool) func(*model.UserSettings) {
	return func(s *model.UserSettings) {
		s.AutomationEnabled = enabled
	}
}

// WithAutoPause 开关告警自动暂停
func WithAutoPause(enabled bool) func(*model.UserSettings) {
	return func(s *model.UserSettings) {
		s.AutoPauseOnWarning = enabled
	}
}

// WithSlackWebhook 设置 Slack Webhook
func WithSlackWebhook(url string) func(*model.UserSettings) {
	return func(s *model.UserSettings) {
		s.SlackWebhookURL = url
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.PuppetJob)) *model.PuppetJob {
	t.Helper()

	job := &model.PuppetJob{
		UserID:      userID,
		ProfileURL:  fmt.Sprintf("https://www.linkedin.com/in/test-%d", time.Now().UnixNano()%100000),
		Priority:    5,
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
		Status:      model.JobStatusPending,
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithStatus 设置任务状态
func WithStatus(status string) func(*model.PuppetJob) {
	return func(j *model.PuppetJob) {
		j.Status = status
	}
}

// WithPriority 设置优先级
func WithPriority(priority int) func(*model.PuppetJob) {
	return func(j *model.PuppetJob) {
		j.Priority = priority
	}
}

// WithScheduledAt 设置调度时间
func WithScheduledAt(at time.Time) func(*model.PuppetJob) {
	return func(j *model.PuppetJob) {
		j.ScheduledAt = at
	}
}

// WithMessage 设置私信内容
func WithMessage(message string) func(*model.PuppetJob) {
	return func(j *model.PuppetJob) {
		j.Message = message
	}
}

// WithCreatedAt 设置创建时间（排序测试用）
func WithCreatedAt(at time.Time) func(*model.PuppetJob) {
	return func(j *model.PuppetJob) {
		j.CreatedAt = at
	}
}

// WithStartedAt 设置开始时间（配合 running 状态模拟卡死任务）
func WithStartedAt(at time.Time) func(*model.PuppetJob) {
	return func(j *model.PuppetJob) {
		j.StartedAt = &at
	}
}

// TestProxy 创建测试代理
func TestProxy(t *testing.T, db *gorm.DB, opts ...func(*model.Proxy)) *model.Proxy {
	t.Helper()

	proxy := &model.Proxy{
		Endpoint: fmt.Sprintf("proxy-%d.example.com", time.Now().UnixNano()%100000),
		Port:     8080,
		Username: "proxyuser",
		Password: "proxypass",
		Location: "us-east",
		Provider: "test",
		Status:   model.ProxyStatusActive,
	}

	for _, opt := range opts {
		opt(proxy)
	}

	if err := db.Create(proxy).Error; err != nil {
		t.Fatalf("Failed to create test proxy: %v", err)
	}

	return proxy
}

// WithProxyStatus 设置代理状态
func WithProxyStatus(status string) func(*model.Proxy) {
	return func(p *model.Proxy) {
		p.Status = status
	}
}

// TestAssignment 创建测试代理分配
func TestAssignment(t *testing.T, db *gorm.DB, userID, proxyID int64, opts ...func(*model.ProxyAssignment)) *model.ProxyAssignment {
	t.Helper()

	assignment := &model.ProxyAssignment{
		UserID:     userID,
		ProxyID:    proxyID,
		Status:     model.AssignmentStatusActive,
		AssignedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(assignment)
	}

	if err := db.Create(assignment).Error; err != nil {
		t.Fatalf("Failed to create test assignment: %v", err)
	}

	return assignment
}

// WithAssignmentStatus 设置分配状态
func WithAssignmentStatus(status string) func(*model.ProxyAssignment) {
	return func(a *model.ProxyAssignment) {
		a.Status = status
	}
}

// TestIncident 创建测试事故记录
func TestIncident(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Incident)) *model.Incident {
	t.Helper()

	incident := &model.Incident{
		UserID:          userID,
		DetectionType:   model.DetectionCaptcha,
		DetectionMethod: "element_selector",
		Confidence:      0.95,
		Status:          model.IncidentStatusDetected,
		DetectedAt:      time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(incident)
	}

	if err := db.Create(incident).Error; err != nil {
		t.Fatalf("Failed to create test incident: %v", err)
	}

	return incident
}

// WithDetectionType 设置检测类型
func WithDetectionType(detectionType string) func(*model.Incident) {
	return func(i *model.Incident) {
		i.DetectionType = detectionType
	}
}

// WithIncidentProxy 关联代理
func WithIncidentProxy(proxyID int64) func(*model.Incident) {
	return func(i *model.Incident) {
		i.ProxyID = &proxyID
	}
}

// WithIncidentJob 关联任务
func WithIncidentJob(jobID int64) func(*model.Incident) {
	return func(i *model.Incident) {
		i.JobID = &jobID
	}
}

// WithCooldownUntil 设置冷却截止
func WithCooldownUntil(until time.Time) func(*model.Incident) {
	return func(i *model.Incident) {
		i.CooldownUntil = &until
	}
}

// WithIncidentStatus 设置事故状态
func WithIncidentStatus(status string) func(*model.Incident) {
	return func(i *model.Incident) {
		i.Status = status
	}
}

// TestStat 创建测试日统计
func TestStat(t *testing.T, db *gorm.DB, userID int64, statDate string, opts ...func(*model.DailyStat)) *model.DailyStat {
	t.Helper()

	stat := &model.DailyStat{
		UserID:   userID,
		StatDate: statDate,
	}

	for _, opt := range opts {
		opt(stat)
	}

	if err := db.Create(stat).Error; err != nil {
		t.Fatalf("Failed to create test stat: %v", err)
	}

	return stat
}

// WithConnectionsSent 设置已发连接数
func WithConnectionsSent(n int) func(*model.DailyStat) {
	return func(s *model.DailyStat) {
		s.ConnectionsSent = n
	}
}

// WithMessagesSent 设置已发消息数
func WithMessagesSent(n int) func(*model.DailyStat) {
	return func(s *model.DailyStat) {
		s.MessagesSent = n
	}
}
