// Package config 提供了条目服务平台的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过环境变量覆盖敏感配置项
// （如密码和密钥）。配置包含了服务器、认证、存储、事件流、缓存、
// 指标、遥测和保留策略等多个方面的设置。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Server 服务器配置，包括 HTTP 端口、指标端口等
	Server ServerConfig `yaml:"server"`
	// Auth 认证配置，包括 JWT 和 API Key 相关设置
	Auth AuthConfig `yaml:"auth"`
	// Storage 存储配置，包括 PostgreSQL 和 Redis
	Storage StorageConfig `yaml:"storage"`
	// Events 事件流配置（NATS JetStream）
	Events EventsConfig `yaml:"events"`
	// Aggregator 事件聚合消费者配置
	Aggregator AggregatorConfig `yaml:"aggregator"`
	// Cache 进程内响应缓存配置
	Cache CacheConfig `yaml:"cache"`
	// Metrics 指标配置（Prometheus 与进程内性能统计）
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 遥测配置（OpenTelemetry 追踪）
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Retention 数据保留策略配置
	Retention RetentionConfig `yaml:"retention"`
	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
	// Environment 是运行环境标识（dev/staging/prod）
	Environment string `yaml:"environment"`
}

// ServerConfig 是 HTTP 服务器配置。
type ServerConfig struct {
	// HTTPPort 是主服务监听端口
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 是 Prometheus 指标监听端口
	MetricsPort int `yaml:"metrics_port"`
	// ShutdownTimeout 是优雅关闭的最长等待时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig 是认证配置。
type AuthConfig struct {
	// Enabled 控制是否启用认证中间件
	Enabled bool `yaml:"enabled"`
	// JWTSecret 是 JWT 签名密钥，应通过环境变量注入
	JWTSecret string `yaml:"jwt_secret"`
	// JWTExpiration 是令牌有效期
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	// APIKeyHeader 是携带 API Key 的请求头名称
	APIKeyHeader string `yaml:"api_key_header"`
}

// StorageConfig 是存储层配置。
type StorageConfig struct {
	// Postgres 是 PostgreSQL 连接配置
	Postgres PostgresConfig `yaml:"postgres"`
	// Redis 是 Redis 连接配置
	Redis RedisConfig `yaml:"redis"`
}

// PostgresConfig 是 PostgreSQL 连接配置。
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	// MaxOpenConns 是连接池的最大连接数
	MaxOpenConns int `yaml:"max_open_conns"`
	// MaxIdleConns 是连接池的最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// RedisConfig 是 Redis 连接配置。
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig 是事件流配置。
type EventsConfig struct {
	// URL 是 NATS 服务器地址
	URL string `yaml:"url"`
	// Subject 是使用事件发布的主题
	Subject string `yaml:"subject"`
	// Durable 是聚合消费者的持久化名称
	Durable string `yaml:"durable"`
}

// AggregatorConfig 是事件聚合消费者配置。
type AggregatorConfig struct {
	// BatchSize 是单次拉取的最大事件数
	BatchSize int `yaml:"batch_size"`
	// MaxWait 是拉取批次的最长等待时间
	MaxWait time.Duration `yaml:"max_wait"`
}

// CacheConfig 是进程内响应缓存配置。
type CacheConfig struct {
	// Enabled 是缓存的运行时特性开关
	Enabled bool `yaml:"enabled"`
	// TTL 是缓存条目的存活时长
	TTL time.Duration `yaml:"ttl"`
	// MaxEntries 是缓存条目数上限
	MaxEntries int `yaml:"max_entries"`
}

// MetricsConfig 是指标配置。
type MetricsConfig struct {
	// Enabled 控制 Prometheus 指标采集
	Enabled bool `yaml:"enabled"`
	// Namespace 是 Prometheus 指标名前缀
	Namespace string `yaml:"namespace"`
	// PerfEnabled 是进程内性能统计的运行时特性开关
	PerfEnabled bool `yaml:"perf_enabled"`
}

// TelemetryConfig 是遥测配置。
type TelemetryConfig struct {
	// Enabled 控制是否启用分布式追踪
	Enabled bool `yaml:"enabled"`
	// Endpoint 是 OTLP gRPC 接收端点（如 tempo:4317）
	Endpoint string `yaml:"endpoint"`
	// ServiceName 是追踪数据的服务标识
	ServiceName string `yaml:"service_name"`
	// SampleRate 是采样率（0.0-1.0）
	SampleRate float64 `yaml:"sample_rate"`
}

// RetentionConfig 是数据保留策略配置。
type RetentionConfig struct {
	// Enabled 控制保留清理任务是否启用
	Enabled bool `yaml:"enabled"`
	// Schedule 是清理任务的 cron 表达式（6 字段，含秒）
	Schedule string `yaml:"schedule"`
}

// LoggingConfig 是日志配置。
type LoggingConfig struct {
	// Level 是日志级别（debug/info/warn/error）
	Level string `yaml:"level"`
	// Format 是日志格式（json/text）
	Format string `yaml:"format"`
}

// Load 从指定路径加载配置文件。
// 加载流程：读取 YAML → 应用环境变量覆盖 → 填充默认值 → 基本校验。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth is enabled but jwt_secret is not set")
	}

	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 敏感配置项支持两种注入方式：
//  1. 直接设置环境变量（如 CIRRUS_POSTGRES_PASSWORD）
//  2. 通过 _FILE 后缀指定包含密钥的文件路径（适用于 Docker Secrets）
//
// _FILE 方式优先级更高。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFile("CIRRUS_POSTGRES_PASSWORD", "CIRRUS_POSTGRES_PASSWORD_FILE"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := readEnvOrFile("CIRRUS_REDIS_PASSWORD", "CIRRUS_REDIS_PASSWORD_FILE"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := readEnvOrFile("CIRRUS_AUTH_JWT_SECRET", "CIRRUS_AUTH_JWT_SECRET_FILE"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("CIRRUS_NATS_URL")); v != "" {
		c.Events.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("CIRRUS_ENVIRONMENT")); v != "" {
		c.Environment = v
	}
}

// readEnvOrFile 从环境变量或文件读取配置值。
// 优先从 fileKey 指定的文件路径读取，文件不存在或读取失败时
// 退回 envKey 指定的环境变量。
func readEnvOrFile(envKey, fileKey string) string {
	if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
		if b, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	// HTTP 端口默认为 8080
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	// 指标端口默认为 9090
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	// 优雅关闭超时默认为 30 秒
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	// JWT 过期时间默认为 24 小时
	if c.Auth.JWTExpiration == 0 {
		c.Auth.JWTExpiration = 24 * time.Hour
	}
	// API Key 请求头默认为 X-API-Key
	if c.Auth.APIKeyHeader == "" {
		c.Auth.APIKeyHeader = "X-API-Key"
	}
	// PostgreSQL 默认连接参数
	if c.Storage.Postgres.Host == "" {
		c.Storage.Postgres.Host = "localhost"
	}
	if c.Storage.Postgres.Port == 0 {
		c.Storage.Postgres.Port = 5432
	}
	if c.Storage.Postgres.SSLMode == "" {
		c.Storage.Postgres.SSLMode = "disable"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 25
	}
	if c.Storage.Postgres.MaxIdleConns == 0 {
		c.Storage.Postgres.MaxIdleConns = 5
	}
	// Redis 默认连接参数
	if c.Storage.Redis.Host == "" {
		c.Storage.Redis.Host = "localhost"
	}
	if c.Storage.Redis.Port == 0 {
		c.Storage.Redis.Port = 6379
	}
	// NATS 默认地址与主题
	if c.Events.URL == "" {
		c.Events.URL = "nats://localhost:4222"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "usage.api"
	}
	if c.Events.Durable == "" {
		c.Events.Durable = "usage-aggregator"
	}
	// 聚合消费者默认单批 100 条，最长等待 5 秒
	if c.Aggregator.BatchSize == 0 {
		c.Aggregator.BatchSize = 100
	}
	if c.Aggregator.MaxWait == 0 {
		c.Aggregator.MaxWait = 5 * time.Second
	}
	// 缓存默认 TTL 为 5 分钟，上限 10000 条
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	// 指标命名空间默认为 cirrus
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "cirrus"
	}
	// 遥测服务名称默认为 cirrus-gateway
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "cirrus-gateway"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "tempo:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	// 保留清理默认每小时执行一次
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 0 * * * *"
	}
	// 日志默认级别与格式
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	// 环境默认为 dev
	if c.Environment == "" {
		c.Environment = "dev"
	}
}
