package service

import (
	"time"

	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

// HealthSummary 运营端健康汇总
type HealthSummary struct {
	JobCounts         map[string]int64 `json:"job_counts"`
	AssignmentCounts  map[string]int64 `json:"assignment_counts"`
	ActionCounts      map[string]int64 `json:"action_counts"`
	ActionSuccessRate float64          `json:"action_success_rate"`
	WindowHours       int              `json:"window_hours"`
}

// UserDaySummary 用户当日用量与剩余额度
type UserDaySummary struct {
	StatDate             string `json:"stat_date"`
	ConnectionsSent      int    `json:"connections_sent"`
	MessagesSent         int    `json:"messages_sent"`
	JobsCompleted        int    `json:"jobs_completed"`
	JobsFailed           int    `json:"jobs_failed"`
	JobsWarned           int    `json:"jobs_warned"`
	CaptchaDetections    int    `json:"captcha_detections"`
	SecurityWarnings     int    `json:"security_warnings"`
	ConnectionsRemaining int    `json:"connections_remaining"`
	MessagesRemaining    int    `json:"messages_remaining"`
}

// StatsService 统计查询
type StatsService struct {
	jobRepo   *repository.JobRepository
	proxyRepo *repository.ProxyRepository
	incidents *repository.IncidentRepository
	statsRepo *repository.StatsRepository
	rateLimit *RateLimitService
}

func NewStatsService(
	jobRepo *repository.JobRepository,
	proxyRepo *repository.ProxyRepository,
	incidents *repository.IncidentRepository,
	statsRepo *repository.StatsRepository,
	rateLimit *RateLimitService,
) *StatsService {
	return &StatsService{
		jobRepo:   jobRepo,
		proxyRepo: proxyRepo,
		incidents: incidents,
		statsRepo: statsRepo,
		rateLimit: rateLimit,
	}
}

// Health 最近窗口内的任务、代理与恢复动作汇总
func (s *StatsService) Health(now time.Time, windowHours int) (*HealthSummary, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := now.Add(-time.Duration(windowHours) * time.Hour)

	jobCounts, err := s.jobRepo.CountByStatusSince(since)
	if err != nil {
		return nil, err
	}
	assignmentCounts, err := s.proxyRepo.CountAssignmentsByStatusSince(since)
	if err != nil {
		return nil, err
	}
	actionCounts, successRate, err := s.incidents.ActionStats(since)
	if err != nil {
		return nil, err
	}

	return &HealthSummary{
		JobCounts:         jobCounts,
		AssignmentCounts:  assignmentCounts,
		ActionCounts:      actionCounts,
		ActionSuccessRate: successRate,
		WindowHours:       windowHours,
	}, nil
}

// UserToday 用户当日统计与剩余额度
func (s *StatsService) UserToday(userID int64, now time.Time) (*UserDaySummary, error) {
	statDate := model.StatDateOf(now)
	stat, err := s.statsRepo.Get(userID, statDate)
	if err != nil {
		return nil, err
	}

	connRemaining, msgRemaining, err := s.rateLimit.Remaining(userID, now)
	if err != nil {
		return nil, err
	}

	return &UserDaySummary{
		StatDate:             statDate,
		ConnectionsSent:      stat.ConnectionsSent,
		MessagesSent:         stat.MessagesSent,
		JobsCompleted:        stat.JobsCompleted,
		JobsFailed:           stat.JobsFailed,
		JobsWarned:           stat.JobsWarned,
		CaptchaDetections:    stat.CaptchaDetections,
		SecurityWarnings:     stat.SecurityWarnings,
		ConnectionsRemaining: connRemaining,
		MessagesRemaining:    msgRemaining,
	}, nil
}
