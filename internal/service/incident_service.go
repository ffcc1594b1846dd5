package service

import (
	"time"

	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/pkg/logger"
	"github.com/puppetops/puppet_go_server/internal/repository"
)

// EvidenceUploader 证据截图存储,生产环境为 OSS 客户端
type EvidenceUploader interface {
	UploadScreenshot(jobID int64, detectionType string, data []byte) (string, error)
}

// IncidentService 将安全检测结果落库为事故记录
type IncidentService struct {
	incidentRepo *repository.IncidentRepository
	statsRepo    *repository.StatsRepository
	uploader     EvidenceUploader
}

func NewIncidentService(incidentRepo *repository.IncidentRepository, statsRepo *repository.StatsRepository, uploader EvidenceUploader) *IncidentService {
	return &IncidentService{
		incidentRepo: incidentRepo,
		statsRepo:    statsRepo,
		uploader:     uploader,
	}
}

// Record 落库事故记录并更新当日安全统计。
// 截图上传失败只记日志,不阻断事故记录
func (s *IncidentService) Record(job *model.PuppetJob, proxyID *int64, detection *SecurityDetectionError) (*model.Incident, error) {
	now := time.Now().UTC()

	evidenceURL := ""
	if s.uploader != nil && len(detection.Screenshot) > 0 {
		url, err := s.uploader.UploadScreenshot(job.ID, detection.Type, detection.Screenshot)
		if err != nil {
			logger.WithJob(job.ID).Warnw("evidence upload failed", "detection_type", detection.Type, "error", err)
		} else {
			evidenceURL = url
		}
	}

	incident := &model.Incident{
		UserID:          job.UserID,
		JobID:           &job.ID,
		ProxyID:         proxyID,
		DetectionType:   detection.Type,
		DetectionMethod: detection.Method,
		Confidence:      detection.Confidence,
		EvidenceURL:     evidenceURL,
		PageURL:         detection.PageURL,
		Status:          model.IncidentStatusDetected,
		DetectedAt:      now,
	}
	if err := s.incidentRepo.Create(incident); err != nil {
		return nil, err
	}

	delta := repository.StatDelta{SecurityWarnings: 1}
	if detection.Type == model.DetectionCaptcha {
		delta.CaptchaDetections = 1
	}
	if err := s.statsRepo.Increment(job.UserID, model.StatDateOf(now), delta); err != nil {
		logger.WithIncident(incident.ID).Warnw("stats update failed", "error", err)
	}

	logger.WithIncident(incident.ID).Infow("security incident recorded",
		"job_id", job.ID,
		"user_id", job.UserID,
		"detection_type", detection.Type,
		"detection_method", detection.Method,
		"confidence", detection.Confidence)
	return incident, nil
}
