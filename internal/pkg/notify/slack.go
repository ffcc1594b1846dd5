package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/puppetops/puppet_go_server/config"
)

// SecurityAlert Slack 安全告警内容
type SecurityAlert struct {
	JobID         int64
	UserID        int64
	DetectionType string
	Confidence    float64
	ProfileURL    string
	PageURL       string
	ScreenshotURL string
	DetectedAt    time.Time
}

// Notifier 按用户配置的 Webhook 发送 Slack 消息
type Notifier struct {
	httpClient   *http.Client
	dashboardURL string
}

func NewNotifier(cfg *config.NotifyConfig) *Notifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		httpClient:   &http.Client{Timeout: timeout},
		dashboardURL: cfg.DashboardURL,
	}
}

type block struct {
	Type     string  `json:"type"`
	Text     *text   `json:"text,omitempty"`
	Fields   []text  `json:"fields,omitempty"`
	Elements []text  `json:"elements,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	AltText  string  `json:"alt_text,omitempty"`
}

type text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

var detectionEmoji = map[string]string{
	"captcha":             "🤖",
	"phone_verification":  "📱",
	"security_checkpoint": "🛑",
	"account_restriction": "🚫",
	"suspicious_activity": "⚠️",
	"login_challenge":     "🔐",
}

// SendSecurityAlert 发送安全检测告警到用户的 Slack Webhook
func (n *Notifier) SendSecurityAlert(ctx context.Context, webhookURL string, alert SecurityAlert) error {
	if webhookURL == "" {
		return nil
	}

	emoji := detectionEmoji[alert.DetectionType]
	blocks := []block{
		{
			Type: "header",
			Text: &text{
				Type:  "plain_text",
				Text:  fmt.Sprintf("🚨 Puppet Security Alert: %s", strings.ToUpper(alert.DetectionType)),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []text{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Job ID:*\n`%d`", alert.JobID)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*User ID:*\n`%d`", alert.UserID)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Detection Type:*\n%s %s", emoji, alert.DetectionType)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Confidence:*\n%d%%", int(alert.Confidence*100+0.5))},
			},
		},
		{
			Type: "section",
			Text: &text{
				Type: "mrkdwn",
				Text: n.linksText(alert),
			},
		},
		{
			Type: "context",
			Elements: []text{
				{Type: "mrkdwn", Text: fmt.Sprintf("⏰ %s", alert.DetectedAt.UTC().Format(time.RFC3339))},
			},
		},
	}
	if alert.ScreenshotURL != "" {
		blocks = append(blocks, block{
			Type:     "image",
			ImageURL: alert.ScreenshotURL,
			AltText:  fmt.Sprintf("Security detection screenshot for %s", alert.DetectionType),
		})
	}

	return n.post(ctx, webhookURL, map[string]interface{}{"blocks": blocks})
}

func (n *Notifier) linksText(alert SecurityAlert) string {
	s := fmt.Sprintf("*LinkedIn Profile:*\n<%s|View Profile>\n\n*Page URL:*\n<%s|Current Page>", alert.ProfileURL, alert.PageURL)
	if n.dashboardURL != "" {
		s += fmt.Sprintf("\n\n*Dashboard:*\n<%s/incidents?user_id=%d|View Incidents>", strings.TrimRight(n.dashboardURL, "/"), alert.UserID)
	}
	return s
}

// SendText 发送纯文本消息,用于恢复完成等简单通知
func (n *Notifier) SendText(ctx context.Context, webhookURL, message string) error {
	if webhookURL == "" {
		return nil
	}
	return n.post(ctx, webhookURL, map[string]interface{}{"text": message})
}

func (n *Notifier) post(ctx context.Context, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
