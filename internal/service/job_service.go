package service

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

var ErrInvalidProfileURL = errors.New("不是有效的 LinkedIn 个人主页地址")

// JobService 任务入队与查询
type JobService struct {
	jobRepo   *repository.JobRepository
	rateLimit *RateLimitService
}

func NewJobService(jobRepo *repository.JobRepository, rateLimit *RateLimitService) *JobService {
	return &JobService{
		jobRepo:   jobRepo,
		rateLimit: rateLimit,
	}
}

// ValidateProfileURL 校验 LinkedIn 个人主页地址
func ValidateProfileURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidProfileURL
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return ErrInvalidProfileURL
	}
	if !strings.HasPrefix(u.Path, "/in/") || len(u.Path) <= len("/in/") {
		return ErrInvalidProfileURL
	}
	return nil
}

// Enqueue 创建任务。入队时做额度预检,超限返回 *RateLimitError
func (s *JobService) Enqueue(userID int64, profileURL, message string, priority int, scheduledAt *time.Time) (*model.PuppetJob, error) {
	if err := ValidateProfileURL(profileURL); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.rateLimit.CheckConnectionLimit(userID, now); err != nil {
		return nil, err
	}

	job := &model.PuppetJob{
		UserID:     userID,
		ProfileURL: profileURL,
		Message:    message,
		Status:     model.JobStatusPending,
	}
	if priority > 0 {
		job.Priority = priority
	}
	if scheduledAt != nil {
		job.ScheduledAt = scheduledAt.UTC()
	}

	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	logger.WithJob(job.ID).Infow("job enqueued",
		"user_id", userID,
		"priority", job.Priority,
		"scheduled_at", job.ScheduledAt)
	return job, nil
}

// Get 查询单个任务
func (s *JobService) Get(id int64) (*model.PuppetJob, error) {
	return s.jobRepo.GetByID(id)
}

// List 查询用户任务,status 为空表示全部
func (s *JobService) List(userID int64, status string, limit int) ([]*model.PuppetJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.jobRepo.ListByUser(userID, status, limit)
}
