package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/pkg/captcha"
	"github.com/puppetops/puppet_go_server/internal/service"
)

// 执行器返回的任务状态
const (
	executorStatusCompleted = "completed"
	executorStatusDetection = "security_detection"
	executorStatusFailed    = "failed"
)

type executorResponse struct {
	Status         string   `json:"status"`
	ConnectionSent bool     `json:"connection_sent"`
	MessageSent    bool     `json:"message_sent"`
	PageURL        string   `json:"page_url,omitempty"`
	PageTitle      string   `json:"page_title,omitempty"`
	BodyText       string   `json:"body_text,omitempty"`
	Selectors      []string `json:"selectors,omitempty"`
	Error          string   `json:"error,omitempty"`
	Detection      *struct {
		Type       string  `json:"type"`
		Method     string  `json:"method"`
		Confidence float64 `json:"confidence"`
		Evidence   string  `json:"evidence"`
		PageURL    string  `json:"page_url"`
		Screenshot []byte  `json:"screenshot,omitempty"`
	} `json:"detection,omitempty"`
}

// HTTPExecutor 调用外部浏览器执行器服务完成实际的页面操作
type HTTPExecutor struct {
	url        string
	httpClient *http.Client
	detector   *captcha.Detector
}

func NewHTTPExecutor(cfg *config.ExecutorConfig) *HTTPExecutor {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPExecutor{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		detector:   captcha.NewDetector(),
	}
}

// Execute 提交执行配置并等待结果。
// 执行器报告安全检测时返回 *service.SecurityDetectionError
func (e *HTTPExecutor) Execute(ctx context.Context, cfg *service.ExecutionConfig) (*ExecutionResult, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, &service.ExecutionError{Reason: "marshal execution config", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, &service.ExecutionError{Reason: "build executor request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &service.ExecutionError{Reason: "executor unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &service.ExecutionError{Reason: fmt.Sprintf("executor returned status %d", resp.StatusCode)}
	}

	var out executorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &service.ExecutionError{Reason: "decode executor response", Err: err}
	}

	switch out.Status {
	case executorStatusCompleted:
		return &ExecutionResult{
			ConnectionSent: out.ConnectionSent,
			MessageSent:    out.MessageSent,
			PageURL:        out.PageURL,
		}, nil
	case executorStatusDetection:
		if out.Detection == nil {
			return nil, &service.ExecutionError{Reason: "detection status without detection payload"}
		}
		return nil, &service.SecurityDetectionError{
			Type:       out.Detection.Type,
			Method:     out.Detection.Method,
			Confidence: out.Detection.Confidence,
			Evidence:   out.Detection.Evidence,
			PageURL:    out.Detection.PageURL,
			Screenshot: out.Detection.Screenshot,
		}
	case executorStatusFailed:
		// 失败可能是安全挑战页导致的,先对最终页面快照做一次本地检测
		if cfg.DetectionEnabled {
			hit := e.detector.Classify(captcha.PageState{
				URL:       out.PageURL,
				Title:     out.PageTitle,
				BodyText:  out.BodyText,
				Selectors: out.Selectors,
			})
			if hit != nil {
				return nil, &service.SecurityDetectionError{
					Type:       hit.Type,
					Method:     hit.Method,
					Confidence: hit.Confidence,
					Evidence:   hit.Evidence,
					PageURL:    hit.PageURL,
				}
			}
		}
		return nil, &service.ExecutionError{Reason: out.Error}
	default:
		return nil, &service.ExecutionError{Reason: fmt.Sprintf("unknown executor status %q", out.Status)}
	}
}
