// Package domain 定义了条目服务与使用分析的核心领域模型。
// 本文件定义使用指标记录与洞察计数器：前者是事件流聚合引擎逐条持久化的
// 不可变记录，后者是按开发者与洞察类别维护的单调递增计数。
package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/cirrus/internal/validation"
)

// 使用事件的字段限制常量
const (
	// MaxEventPayloadSize 是单条事件载荷的最大字节数（10KB）
	MaxEventPayloadSize = 10 * 1024
	// MaxEndpointLength 是端点路径的最大长度
	MaxEndpointLength = 200
	// MaxUserAgentLength 是 User-Agent 的最大长度
	MaxUserAgentLength = 500
	// MaxResponseTimeMs 是响应耗时的上限（5 分钟，单位毫秒）
	MaxResponseTimeMs = 300000
	// TimestampMaxAge 是事件时间戳允许的最大历史跨度
	TimestampMaxAge = 365 * 24 * time.Hour
	// TimestampMaxSkew 是事件时间戳允许的最大未来偏移
	TimestampMaxSkew = time.Hour
	// MetricTTL 是使用指标记录的保留时长，超期记录由存储端清理
	MetricTTL = 30 * 24 * time.Hour
	// AnonymousAPIKey 是未认证请求使用的 API Key 哨兵值
	AnonymousAPIKey = "anonymous"
	// SlowRequestThresholdMs 是慢请求洞察的耗时阈值（毫秒）
	SlowRequestThresholdMs = 1000
)

// allowedMethods 是使用事件接受的 HTTP 方法集合。
var allowedMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"DELETE":  true,
	"OPTIONS": true,
}

// apiKeyPattern 匹配合法的 API Key：20-50 位字母数字。
var apiKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]{20,50}$`)

// IsValidAPIKey 检查 API Key 格式是否合法。
// 匿名哨兵值也视为合法。
func IsValidAPIKey(key string) bool {
	if key == AnonymousAPIKey {
		return true
	}
	return apiKeyPattern.MatchString(key)
}

// markupReplacer 移除 User-Agent 中的标记敏感字符，避免其进入下游展示层。
var markupReplacer = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "", "`", "")

// SanitizeUserAgent 返回移除标记敏感字符后的 User-Agent。
func SanitizeUserAgent(ua string) string {
	return markupReplacer.Replace(ua)
}

// UsageEvent 表示事件流投递的一条使用事件（反序列化后的结构）。
// 事件由网关在每次 API 调用后发布，聚合引擎逐条校验并落库。
type UsageEvent struct {
	// MetricType 是指标类型（如 "api_request"）
	MetricType string `json:"metric_type"`
	// Timestamp 是事件发生时刻的 Unix 秒级时间戳
	Timestamp int64 `json:"timestamp"`
	// Endpoint 是被调用的端点路径，必须以 / 开头
	Endpoint string `json:"endpoint"`
	// Method 是 HTTP 方法
	Method string `json:"method"`
	// APIKey 是调用方的 API Key，未认证请求为 "anonymous"
	APIKey string `json:"api_key"`
	// ResponseTimeMs 是请求处理耗时（毫秒）
	ResponseTimeMs int64 `json:"response_time_ms"`
	// StatusCode 是响应状态码
	StatusCode int `json:"status_code"`
	// UserAgent 是调用方的 User-Agent
	UserAgent string `json:"user_agent,omitempty"`
	// Environment 是事件来源环境（dev/staging/prod）
	Environment string `json:"environment,omitempty"`
}

// rules 返回使用事件的校验规则，以 now 为处理时刻判定时间窗口。
// 快速失败与全量收集两种模式共用这一份定义。
func (e *UsageEvent) rules(now time.Time) []validation.Rule {
	return []validation.Rule{
		{
			Field: "metric_type",
			Check: func() error {
				if strings.TrimSpace(e.MetricType) == "" {
					return ErrMetricTypeRequired
				}
				return nil
			},
		},
		{
			Field: "timestamp",
			Check: func() error {
				ts := time.Unix(e.Timestamp, 0)
				if ts.Before(now.Add(-TimestampMaxAge)) || ts.After(now.Add(TimestampMaxSkew)) {
					return ErrTimestampOutOfRange
				}
				return nil
			},
		},
		{
			Field: "endpoint",
			Check: func() error {
				if !strings.HasPrefix(e.Endpoint, "/") || len(e.Endpoint) > MaxEndpointLength {
					return ErrInvalidEndpoint
				}
				for _, seg := range strings.Split(e.Endpoint, "/") {
					if seg == ".." {
						return ErrInvalidEndpoint
					}
				}
				return nil
			},
		},
		{
			Field: "method",
			Check: func() error {
				if !allowedMethods[e.Method] {
					return ErrInvalidMethod
				}
				return nil
			},
		},
		{
			Field: "api_key",
			Check: func() error {
				if !IsValidAPIKey(e.APIKey) {
					return ErrInvalidAPIKey
				}
				return nil
			},
		},
		{
			Field: "response_time_ms",
			Check: func() error {
				if e.ResponseTimeMs < 0 || e.ResponseTimeMs > MaxResponseTimeMs {
					return ErrInvalidResponseTime
				}
				return nil
			},
			Advise: func() string {
				if e.ResponseTimeMs > SlowRequestThresholdMs {
					return "response time above slow request threshold"
				}
				return ""
			},
		},
		{
			Field: "status_code",
			Check: func() error {
				if e.StatusCode < 100 || e.StatusCode > 599 {
					return ErrInvalidStatusCode
				}
				return nil
			},
		},
		{
			Field: "user_agent",
			Check: func() error {
				if len(e.UserAgent) > MaxUserAgentLength {
					return ErrUserAgentTooLong
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验事件。聚合引擎的热路径使用该模式。
func (e *UsageEvent) Validate(now time.Time) error {
	return validation.FirstError(e.rules(now))
}

// ValidateAll 以全量收集模式校验事件，汇总所有错误与告警。
func (e *UsageEvent) ValidateAll(now time.Time) *validation.Result {
	return validation.Collect(e.rules(now))
}

// Record 由已通过校验的事件构建一条待持久化的使用指标记录。
// 记录 ID 每次重新生成，重复投递产生重复行而非覆盖，
// 分析侧消费时按至少一次语义自行容忍重复。
func (e *UsageEvent) Record() *UsageMetric {
	return &UsageMetric{
		ID:             "metric-" + uuid.New().String(),
		MetricType:     e.MetricType,
		Timestamp:      e.Timestamp,
		Endpoint:       e.Endpoint,
		Method:         e.Method,
		APIKey:         e.APIKey,
		ResponseTimeMs: e.ResponseTimeMs,
		StatusCode:     e.StatusCode,
		UserAgent:      SanitizeUserAgent(e.UserAgent),
		Environment:    e.Environment,
		TTL:            e.Timestamp + int64(MetricTTL/time.Second),
	}
}

// UsageMetric 表示一条已持久化的使用指标记录。
// 记录创建后不再修改，到达 TTL 后由存储端保留机制清理。
type UsageMetric struct {
	// ID 是记录的唯一标识符（每次写入重新生成）
	ID string `json:"id"`
	// MetricType 是指标类型
	MetricType string `json:"metric_type"`
	// Timestamp 是事件发生时刻的 Unix 秒级时间戳
	Timestamp int64 `json:"timestamp"`
	// Endpoint 是被调用的端点路径
	Endpoint string `json:"endpoint"`
	// Method 是 HTTP 方法
	Method string `json:"method"`
	// APIKey 是调用方的 API Key
	APIKey string `json:"api_key"`
	// ResponseTimeMs 是请求处理耗时（毫秒）
	ResponseTimeMs int64 `json:"response_time_ms"`
	// StatusCode 是响应状态码
	StatusCode int `json:"status_code"`
	// UserAgent 是净化后的 User-Agent
	UserAgent string `json:"user_agent,omitempty"`
	// Environment 是事件来源环境
	Environment string `json:"environment,omitempty"`
	// TTL 是记录的过期时刻（Unix 秒级时间戳 = Timestamp + 30 天）
	TTL int64 `json:"ttl"`
}

// InsightCounter 表示一个洞察计数器。
// 计数器按 (开发者 ID, 洞察键) 定位，首次递增时创建，之后通过
// 存储端的原子加法更新，不会被显式删除。
type InsightCounter struct {
	// DeveloperID 是计数器所属开发者的标识
	DeveloperID string `json:"developer_id"`
	// InsightKey 是洞察键，形如 "insightType#subKey"
	InsightKey string `json:"insight_key"`
	// Count 是单调递增的计数值
	Count int64 `json:"count"`
	// LastUpdated 是最后一次递增的时间
	LastUpdated time.Time `json:"last_updated"`
}

// 洞察键构造函数
// 洞察键的格式为 "insightType#subKey"，如 "endpoint_usage#/items"。

// EndpointUsageKey 返回端点使用量洞察键。
func EndpointUsageKey(endpoint string) string {
	return "endpoint_usage#" + endpoint
}

// ErrorCountKey 返回错误计数洞察键（按状态码细分）。
func ErrorCountKey(statusCode int) string {
	return fmt.Sprintf("error_count#%d", statusCode)
}

// SlowRequestKey 是慢请求计数的洞察键（耗时超过 1 秒的请求）。
const SlowRequestKey = "slow_requests#over_1s"

// DailyUsageKey 返回按 UTC 日历日分桶的日用量洞察键。
func DailyUsageKey(ts int64) string {
	return "daily_usage#" + time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// MetricRepository 定义了使用指标记录存储的接口。
type MetricRepository interface {
	// InsertMetric 持久化一条使用指标记录
	InsertMetric(ctx context.Context, metric *UsageMetric) error
	// QueryMetrics 按指标类型与时间范围查询记录
	QueryMetrics(ctx context.Context, metricType string, from, to int64, limit int) ([]*UsageMetric, error)
	// DeleteExpiredMetrics 删除 TTL 已过期的记录，返回删除的行数
	DeleteExpiredMetrics(ctx context.Context, now time.Time) (int64, error)
}

// CounterRepository 定义了洞察计数器存储的接口。
// IncrementCounter 必须由存储端以原子加法实现，调用方不得使用
// 读-改-写，因为多个实例可能并发更新同一计数器键。
type CounterRepository interface {
	// IncrementCounter 将指定计数器原子递增 delta
	IncrementCounter(ctx context.Context, developerID, insightKey string, delta int64) error
	// GetCounter 读取单个计数器
	GetCounter(ctx context.Context, developerID, insightKey string) (*InsightCounter, error)
	// ListCounters 列出开发者的全部计数器
	ListCounters(ctx context.Context, developerID string) ([]*InsightCounter, error)
}
