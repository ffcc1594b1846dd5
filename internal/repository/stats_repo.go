package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/puppetops/puppet_go_server/internal/model"
)

type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// StatDelta 一次任务结果对日计数的增量
type StatDelta struct {
	ConnectionsSent   int
	MessagesSent      int
	JobsCompleted     int
	JobsFailed        int
	JobsWarned        int
	CaptchaDetections int
	SecurityWarnings  int
}

// Increment 原子累加 upsert：冲突时在存量上做加法，而不是读改写。
// 并发调用同一 (user, date) 不会丢计数。
func (r *StatsRepository) Increment(userID int64, statDate string, d StatDelta) error {
	row := &model.DailyStat{
		UserID:            userID,
		StatDate:          statDate,
		ConnectionsSent:   d.ConnectionsSent,
		MessagesSent:      d.MessagesSent,
		JobsCompleted:     d.JobsCompleted,
		JobsFailed:        d.JobsFailed,
		JobsWarned:        d.JobsWarned,
		CaptchaDetections: d.CaptchaDetections,
		SecurityWarnings:  d.SecurityWarnings,
		UpdatedAt:         time.Now().UTC(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "stat_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"connections_sent":   gorm.Expr("connections_sent + ?", d.ConnectionsSent),
			"messages_sent":      gorm.Expr("messages_sent + ?", d.MessagesSent),
			"jobs_completed":     gorm.Expr("jobs_completed + ?", d.JobsCompleted),
			"jobs_failed":        gorm.Expr("jobs_failed + ?", d.JobsFailed),
			"jobs_warned":        gorm.Expr("jobs_warned + ?", d.JobsWarned),
			"captcha_detections": gorm.Expr("captcha_detections + ?", d.CaptchaDetections),
			"security_warnings":  gorm.Expr("security_warnings + ?", d.SecurityWarnings),
			"updated_at":         time.Now().UTC(),
		}),
	}).Create(row).Error
}

// Get 返回某天计数；无记录返回零值行而不是错误
func (r *StatsRepository) Get(userID int64, statDate string) (*model.DailyStat, error) {
	var stat model.DailyStat
	err := r.db.Where("user_id = ? AND stat_date = ?", userID, statDate).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.DailyStat{UserID: userID, StatDate: statDate}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// DeleteBefore 清理保留期外的历史计数
func (r *StatsRepository) DeleteBefore(cutoffDate string) (int64, error) {
	res := r.db.Where("stat_date < ?", cutoffDate).Delete(&model.DailyStat{})
	return res.RowsAffected, res.Error
}
