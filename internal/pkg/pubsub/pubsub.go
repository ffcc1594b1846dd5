package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelPuppetAlerts = "puppet_alerts"
)

// 告警事件类型
const (
	EventJobCompleted     = "job_completed"
	EventJobFailed        = "job_failed"
	EventSecurityWarning  = "security_warning"
	EventRecoveryDone     = "recovery_done"
	EventOperationsResume = "operations_resume"
)

// AlertMessage 推送给运营端的告警消息
type AlertMessage struct {
	Type          string    `json:"type"`
	UserID        int64     `json:"user_id"`
	JobID         int64     `json:"job_id,omitempty"`
	IncidentID    int64     `json:"incident_id,omitempty"`
	DetectionType string    `json:"detection_type,omitempty"`
	Status        string    `json:"status,omitempty"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// 事件的默认说明文案
var EventMessages = map[string]string{
	EventJobCompleted:     "任务执行完成",
	EventJobFailed:        "任务执行失败",
	EventSecurityWarning:  "检测到安全挑战,自动化已暂停",
	EventRecoveryDone:     "事故恢复流程已执行",
	EventOperationsResume: "自动化已恢复",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishAlert 发布告警消息
func (p *Publisher) PublishAlert(ctx context.Context, msg *AlertMessage) error {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	if msg.Message == "" && msg.Type != "" {
		if text, ok := EventMessages[msg.Type]; ok {
			msg.Message = text
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}

	return p.client.Publish(ctx, ChannelPuppetAlerts, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅告警消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*AlertMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelPuppetAlerts)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var alert AlertMessage
			if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
				continue // 忽略解析错误
			}

			handler(&alert)
		}
	}
}
