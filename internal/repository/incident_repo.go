package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/internal/model"
)

type IncidentRepository struct {
	db *gorm.DB
}

func NewIncidentRepository(db *gorm.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

func (r *IncidentRepository) Create(incident *model.Incident) error {
	if incident.DetectedAt.IsZero() {
		incident.DetectedAt = time.Now().UTC()
	}
	return r.db.Create(incident).Error
}

func (r *IncidentRepository) GetByID(id int64) (*model.Incident, error) {
	var incident model.Incident
	err := r.db.Where("id = ?", id).First(&incident).Error
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

func (r *IncidentRepository) Update(incident *model.Incident) error {
	return r.db.Save(incident).Error
}

// SetCooldown 为事件写入冷却截止时间
func (r *IncidentRepository) SetCooldown(id int64, until time.Time) error {
	return r.db.Model(&model.Incident{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cooldown_until": until,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// SetProxyDisabled 标记事件已触发代理禁用
func (r *IncidentRepository) SetProxyDisabled(id int64) error {
	return r.db.Model(&model.Incident{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"proxy_disabled": true,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// ListOpenByUser 用户所有未解决事件，按检测时间倒序
func (r *IncidentRepository) ListOpenByUser(userID int64) ([]*model.Incident, error) {
	var incidents []*model.Incident
	err := r.db.Where("user_id = ? AND status <> ?", userID, model.IncidentStatusResolved).
		Order("detected_at DESC").
		Find(&incidents).Error
	return incidents, err
}

// ActiveCooldown 返回用户当前生效的冷却事件，无则返回 nil
func (r *IncidentRepository) ActiveCooldown(userID int64, now time.Time) (*model.Incident, error) {
	var incident model.Incident
	err := r.db.Where("user_id = ? AND status <> ? AND cooldown_until > ?",
		userID, model.IncidentStatusResolved, now).
		Order("cooldown_until DESC").
		First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// Acknowledge 操作员确认事件
func (r *IncidentRepository) Acknowledge(id int64, operatorID int64) error {
	return r.db.Model(&model.Incident{}).
		Where("id = ? AND status = ?", id, model.IncidentStatusDetected).
		Updates(map[string]interface{}{
			"status":      model.IncidentStatusAcknowledged,
			"resolved_by": operatorID,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// ResolveAllByUser 清除用户所有未解决事件的冷却并标记 resolved。
// 操作员手动恢复时调用，返回受影响事件数。
func (r *IncidentRepository) ResolveAllByUser(userID, operatorID int64, method, notes string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.Model(&model.Incident{}).
		Where("user_id = ? AND status <> ?", userID, model.IncidentStatusResolved).
		Updates(map[string]interface{}{
			"status":            model.IncidentStatusResolved,
			"cooldown_until":    nil,
			"resolution_method": method,
			"resolved_by":       operatorID,
			"resolved_at":       now,
			"admin_notes":       notes,
			"updated_at":        now,
		})
	return res.RowsAffected, res.Error
}

// DeleteResolvedBefore 清理保留期外的已解决事件
func (r *IncidentRepository) DeleteResolvedBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("status = ? AND resolved_at < ?", model.IncidentStatusResolved, cutoff).
		Delete(&model.Incident{})
	return res.RowsAffected, res.Error
}

// DeleteActionsBefore 清理保留期外的审计记录
func (r *IncidentRepository) DeleteActionsBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&model.RecoveryAction{})
	return res.RowsAffected, res.Error
}

// LogAction 追加恢复动作审计记录
func (r *IncidentRepository) LogAction(action *model.RecoveryAction) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	return r.db.Create(action).Error
}

// ActionStats 窗口内各恢复动作计数与成功率
func (r *IncidentRepository) ActionStats(since time.Time) (map[string]int64, float64, error) {
	type row struct {
		ActionType string
		Success    bool
		N          int64
	}
	var rows []row
	err := r.db.Model(&model.RecoveryAction{}).
		Select("action_type, success, COUNT(*) as n").
		Where("created_at >= ?", since).
		Group("action_type, success").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	counts := make(map[string]int64)
	var total, succeeded int64
	for _, rw := range rows {
		counts[rw.ActionType] += rw.N
		total += rw.N
		if rw.Success {
			succeeded += rw.N
		}
	}
	rate := 0.0
	if total > 0 {
		rate = float64(succeeded) / float64(total) * 100
	}
	return counts, rate, nil
}
