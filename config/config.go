package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OSS       OSSConfig       `mapstructure:"oss"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	Security  SecurityConfig  `mapstructure:"security"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// SchedulerConfig 调度器批处理参数
type SchedulerConfig struct {
	BatchSize            int    `mapstructure:"batch_size"`             // 每轮最多处理任务数
	MinJobDelaySeconds   int    `mapstructure:"min_job_delay_seconds"`  // 任务间最小间隔
	MaxJobDelaySeconds   int    `mapstructure:"max_job_delay_seconds"`  // 任务间最大间隔
	StuckJobMinutes      int    `mapstructure:"stuck_job_minutes"`      // running 超时回收阈值
	TickSpec             string `mapstructure:"tick_spec"`              // cron 表达式
	DailyConnectionLimit int    `mapstructure:"daily_connection_limit"` // 用户未配置时的默认日限额
	DailyMessageLimit    int    `mapstructure:"daily_message_limit"`
}

// ExecutorConfig 浏览器执行器服务
type ExecutorConfig struct {
	URL            string `mapstructure:"url"`             // 执行器 HTTP 地址
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 单任务执行超时
}

// RecoveryConfig 安全事件恢复参数
type RecoveryConfig struct {
	CooldownHours     int  `mapstructure:"cooldown_hours"`      // 用户冷却时长
	ProxyDisableHours int  `mapstructure:"proxy_disable_hours"` // 代理禁用时长
	RotateProxy       bool `mapstructure:"rotate_proxy"`        // 冷却时是否尝试轮换代理
	RetentionDays     int  `mapstructure:"retention_days"`      // 事件/统计保留天数
}

type SecurityConfig struct {
	CookieKey string `mapstructure:"cookie_key"` // base64 编码的 32 字节密钥，用于会话 cookie 加密
}

type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	DashboardURL    string `mapstructure:"dashboard_url"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// 未配置时的调度/恢复默认值
const (
	DefaultBatchSize         = 10
	DefaultMinJobDelay       = 5
	DefaultMaxJobDelay       = 15
	DefaultStuckJobMinutes   = 5
	DefaultConnectionLimit   = 20
	MaxDailyConnectionLimit  = 50
	DefaultMinActionDelay    = 60 // 页面动作间隔秒数
	DefaultMaxActionDelay    = 180
	MinActionDelayFloor      = 30
	MaxActionDelayCeil       = 300
	DefaultMessageLimit      = 40
	DefaultCooldownHours     = 24
	DefaultProxyDisableHours = 24
	DefaultRetentionDays     = 30
)

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults 填充未配置的调度/恢复参数
func (c *Config) ApplyDefaults() {
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = DefaultBatchSize
	}
	if c.Scheduler.MinJobDelaySeconds <= 0 {
		c.Scheduler.MinJobDelaySeconds = DefaultMinJobDelay
	}
	if c.Scheduler.MaxJobDelaySeconds < c.Scheduler.MinJobDelaySeconds {
		c.Scheduler.MaxJobDelaySeconds = c.Scheduler.MinJobDelaySeconds + (DefaultMaxJobDelay - DefaultMinJobDelay)
	}
	if c.Scheduler.StuckJobMinutes <= 0 {
		c.Scheduler.StuckJobMinutes = DefaultStuckJobMinutes
	}
	if c.Scheduler.DailyConnectionLimit <= 0 {
		c.Scheduler.DailyConnectionLimit = DefaultConnectionLimit
	}
	if c.Scheduler.DailyConnectionLimit > MaxDailyConnectionLimit {
		c.Scheduler.DailyConnectionLimit = MaxDailyConnectionLimit
	}
	if c.Scheduler.DailyMessageLimit <= 0 {
		c.Scheduler.DailyMessageLimit = DefaultMessageLimit
	}
	if c.Recovery.CooldownHours <= 0 {
		c.Recovery.CooldownHours = DefaultCooldownHours
	}
	if c.Recovery.ProxyDisableHours <= 0 {
		c.Recovery.ProxyDisableHours = DefaultProxyDisableHours
	}
	if c.Recovery.RetentionDays <= 0 {
		c.Recovery.RetentionDays = DefaultRetentionDays
	}
	if c.Notify.TimeoutSeconds <= 0 {
		c.Notify.TimeoutSeconds = 10
	}
}
