package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.PuppetJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.PuppetJob, error) {
	var job model.PuppetJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetDueJobs 获取到期待处理任务：优先级降序、创建时间升序
func (r *JobRepository) GetDueJobs(now time.Time, limit int) ([]*model.PuppetJob, error) {
	var jobs []*model.PuppetJob
	err := r.db.Where("status = ? AND scheduled_at <= ?", model.JobStatusPending, now).
		Order("priority DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// MarkRunning 条件更新 pending → running。返回 false 表示任务已被
// 其他进程抢走或状态已变，调用方必须跳过该任务。
func (r *JobRepository) MarkRunning(id int64, now time.Time) (bool, error) {
	res := r.db.Model(&model.PuppetJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     model.JobStatusRunning,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete 任务成功结束
func (r *JobRepository) Complete(id int64, resultData string, now time.Time) error {
	return r.finish(id, map[string]interface{}{
		"status":       model.JobStatusCompleted,
		"result_data":  resultData,
		"completed_at": now,
		"updated_at":   now,
	})
}

// Fail 任务失败，记录错误信息
func (r *JobRepository) Fail(id int64, errMsg string, now time.Time) error {
	return r.finish(id, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": errMsg,
		"completed_at":  now,
		"updated_at":    now,
	})
}

// MarkWarning 安全检测命中后转 warning，携带检测类型与证据
func (r *JobRepository) MarkWarning(id int64, detectionType, evidenceURL, errMsg string, now time.Time) error {
	return r.finish(id, map[string]interface{}{
		"status":         model.JobStatusWarning,
		"detection_type": detectionType,
		"evidence_url":   evidenceURL,
		"error_message":  errMsg,
		"completed_at":   now,
		"updated_at":     now,
	})
}

// Cancel 取消单个任务
func (r *JobRepository) Cancel(id int64, reason string, now time.Time) error {
	return r.finish(id, map[string]interface{}{
		"status":        model.JobStatusCancelled,
		"error_message": reason,
		"completed_at":  now,
		"updated_at":    now,
	})
}

// finish 只允许 running 任务进入终态，终态不会被二次覆盖
func (r *JobRepository) finish(id int64, updates map[string]interface{}) error {
	return r.db.Model(&model.PuppetJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusRunning).
		Updates(updates).Error
}

// CancelPendingByUser 批量取消用户的待处理任务，返回取消数量
func (r *JobRepository) CancelPendingByUser(userID int64, reason string, now time.Time) (int64, error) {
	res := r.db.Model(&model.PuppetJob{}).
		Where("user_id = ? AND status = ?", userID, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":        model.JobStatusCancelled,
			"error_message": reason,
			"completed_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

// ResetStuckJobs 回收卡在 running 超过阈值的任务（进程崩溃残留）
func (r *JobRepository) ResetStuckJobs(olderThan time.Time) (int64, error) {
	res := r.db.Model(&model.PuppetJob{}).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, olderThan).
		Updates(map[string]interface{}{
			"status":     model.JobStatusPending,
			"started_at": nil,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteTerminalBefore 清理保留期外的终态任务
func (r *JobRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("status IN ? AND completed_at < ?",
		[]string{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled, model.JobStatusWarning},
		cutoff).
		Delete(&model.PuppetJob{})
	return res.RowsAffected, res.Error
}

// ListByUser 按用户查询任务，status 为空表示全部
func (r *JobRepository) ListByUser(userID int64, status string, limit int) ([]*model.PuppetJob, error) {
	q := r.db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []*model.PuppetJob
	err := q.Order("created_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// CountByStatusSince 统计窗口内各状态任务数（健康汇总用）
func (r *JobRepository) CountByStatusSince(since time.Time) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.db.Model(&model.PuppetJob{}).
		Select("status, COUNT(*) as n").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.N
	}
	return out, nil
}
