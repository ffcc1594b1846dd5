package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/internal/model"
)

type ProxyRepository struct {
	db *gorm.DB
}

func NewProxyRepository(db *gorm.DB) *ProxyRepository {
	return &ProxyRepository{db: db}
}

func (r *ProxyRepository) Create(proxy *model.Proxy) error {
	return r.db.Create(proxy).Error
}

func (r *ProxyRepository) GetByID(id int64) (*model.Proxy, error) {
	var proxy model.Proxy
	err := r.db.Where("id = ?", id).First(&proxy).Error
	if err != nil {
		return nil, err
	}
	return &proxy, nil
}

// GetActiveByID 只返回 active 状态的代理；禁用或不存在都返回 nil
func (r *ProxyRepository) GetActiveByID(id int64) (*model.Proxy, error) {
	var proxy model.Proxy
	err := r.db.Where("id = ? AND status = ?", id, model.ProxyStatusActive).First(&proxy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proxy, nil
}

func (r *ProxyRepository) CreateAssignment(a *model.ProxyAssignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	return r.db.Create(a).Error
}

func (r *ProxyRepository) GetAssignment(userID, proxyID int64) (*model.ProxyAssignment, error) {
	var a model.ProxyAssignment
	err := r.db.Where("user_id = ? AND proxy_id = ?", userID, proxyID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DisableAssignment 事件触发的代理禁用。按事件号幂等：同一事件重复
// 调用不会延长禁用窗口。返回 true 表示本次调用实际执行了禁用。
func (r *ProxyRepository) DisableAssignment(userID, proxyID, incidentID int64, until time.Time, reason string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.Model(&model.ProxyAssignment{}).
		Where("user_id = ? AND proxy_id = ? AND status = ?", userID, proxyID, model.AssignmentStatusActive).
		Updates(map[string]interface{}{
			"status":          model.AssignmentStatusDisabledCaptcha,
			"disabled_at":     now,
			"disabled_until":  until,
			"disabled_reason": fmt.Sprintf("%s - incident %d", reason, incidentID),
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReactivateAssignment 禁用窗口结束后恢复分配
func (r *ProxyRepository) ReactivateAssignment(userID, proxyID int64) error {
	return r.db.Model(&model.ProxyAssignment{}).
		Where("user_id = ? AND proxy_id = ?", userID, proxyID).
		Updates(map[string]interface{}{
			"status":          model.AssignmentStatusActive,
			"disabled_at":     nil,
			"disabled_until":  nil,
			"disabled_reason": "",
			"updated_at":      time.Now().UTC(),
		}).Error
}

// FindAlternateProxy 为用户挑选一个未绑定过的 active 代理，无可用返回 nil
func (r *ProxyRepository) FindAlternateProxy(userID, excludeProxyID int64) (*model.Proxy, error) {
	var proxy model.Proxy
	sub := r.db.Model(&model.ProxyAssignment{}).
		Select("proxy_id").
		Where("user_id = ?", userID)
	err := r.db.Where("status = ? AND id <> ? AND id NOT IN (?)",
		model.ProxyStatusActive, excludeProxyID, sub).
		Order("id ASC").
		First(&proxy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proxy, nil
}

// MarkRotated 旧分配标记为已轮换
func (r *ProxyRepository) MarkRotated(userID, proxyID int64, reason string) error {
	return r.db.Model(&model.ProxyAssignment{}).
		Where("user_id = ? AND proxy_id = ?", userID, proxyID).
		Updates(map[string]interface{}{
			"status":          model.AssignmentStatusRotated,
			"disabled_reason": reason,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// CountAssignmentsByStatusSince 窗口内各状态分配数（健康汇总用）
func (r *ProxyRepository) CountAssignmentsByStatusSince(since time.Time) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.db.Model(&model.ProxyAssignment{}).
		Select("status, COUNT(*) as n").
		Where("assigned_at >= ?", since).
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
