package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L 全局日志实例
var L *zap.SugaredLogger = zap.NewNop().Sugar()

// Init 初始化全局日志,mode 与服务运行模式一致(release 使用生产编码,其余为开发模式)
func Init(mode string) error {
	var cfg zap.Config
	if mode == "release" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	L = l.Sugar()
	return nil
}

// WithJob 返回携带 job_id 字段的日志器
func WithJob(jobID int64) *zap.SugaredLogger {
	return L.With("job_id", jobID)
}

// WithIncident 返回携带 incident_id 字段的日志器
func WithIncident(incidentID int64) *zap.SugaredLogger {
	return L.With("incident_id", incidentID)
}

// Sync 刷新缓冲日志
func Sync() {
	_ = L.Sync()
}
