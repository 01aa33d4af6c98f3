package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述 arenad 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Cache    CacheConfig    `json:"cache"`
	Fanout   FanoutConfig   `json:"fanout"`
	Auth     AuthConfig     `json:"auth"`
	Alerting AlertingConfig `json:"alerting"`
	Logging  LoggingConfig  `json:"logging"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// StorageConfig 描述持久化后端的连接信息。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// CacheConfig 描述观战人数计数与状态快照所用的 Redis 连接。
// 缓存不可用时观战计数退化为零，不影响对局推进。
type CacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// FanoutConfig 描述事件广播的投递方式。
type FanoutConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述跨节点广播所用的 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Durable  bool   `json:"durable"`
}

// AuthConfig 控制参赛凭证的校验方式。
type AuthConfig struct {
	Mode   string `json:"mode"`
	Secret string `json:"secret"`
}

// AlertingConfig 控制结算失败等关键事件的告警投递。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// LoggingConfig 控制日志输出行为。
type LoggingConfig struct {
	Level        string   `json:"level"`
	Format       string   `json:"format"`
	Outputs      []string `json:"outputs"`
	AuditEnabled bool     `json:"audit_enabled"`
	AuditPath    string   `json:"audit_path"`
	AuditMaxSize int      `json:"audit_max_size_mb"`
	AuditBackups int      `json:"audit_max_backups"`
	AuditMaxDays int      `json:"audit_max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir   string `json:"data_dir"`
	RulesPath string `json:"rules_path"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Fanout.Driver == "" {
		c.Fanout.Driver = "memory"
	}
	if c.Fanout.RabbitMQ.Exchange == "" {
		c.Fanout.RabbitMQ.Exchange = "arena.events"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "token"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Runtime.RulesPath == "" {
		c.Runtime.RulesPath = filepath.Join(baseDir, "rules.yaml")
	} else if !filepath.IsAbs(c.Runtime.RulesPath) {
		c.Runtime.RulesPath = filepath.Join(baseDir, c.Runtime.RulesPath)
	}
}
