package service

import "fmt"

// ConfigError 执行配置缺失或不可用,任务应直接失败
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("execution config error: %s", e.Reason)
}

// RateLimitError 当日额度已用尽,任务按失败处理
type RateLimitError struct {
	Limit   int
	Current int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily limit reached: %d/%d", e.Current, e.Limit)
}

// SecurityDetectionError 执行中检测到安全挑战,触发事故恢复
type SecurityDetectionError struct {
	Type       string
	Method     string
	Confidence float64
	Evidence   string
	PageURL    string
	Screenshot []byte
}

func (e *SecurityDetectionError) Error() string {
	return fmt.Sprintf("security detection: %s (confidence: %.2f)", e.Type, e.Confidence)
}

// ExecutionError 浏览器执行失败,任务标记 failed
type ExecutionError struct {
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("execution failed: %s", e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
