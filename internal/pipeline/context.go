// Package pipeline 提供贯穿所有 API 操作的分阶段请求处理管道。
// 每个操作依次经过输入校验、业务校验、执行、响应装饰四个阶段；
// 任一校验阶段失败都会在触碰外部存储的写路径之前短路返回。
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// RequestIDPrefix 是请求 ID 的统一前缀，便于在日志与响应中识别。
const RequestIDPrefix = "req-"

// ServiceContext 是单次管道调用的数据载体。
// 它在管道入口创建，被各阶段依次读写，管道返回或抛错后即被丢弃。
// 上下文由一次调用独占，绝不跨并发请求共享，因此字段访问无需加锁。
type ServiceContext struct {
	// RequestID 是本次调用的唯一标识，创建后不可变
	RequestID string
	// RequestTime 是上下文的创建时间，创建后不可变
	RequestTime time.Time
	// State 是状态机的当前状态，由管道在进入各阶段前推进，
	// 终态为 COMPLETE 或 FAILED。阶段钩子只读该字段。
	State State
	// Metadata 是各阶段累积的元数据。键按 "阶段.操作.字段" 的约定
	// 命名空间化，避免不同阶段之间的冲突。
	Metadata map[string]any
}

// 跨阶段通用的元数据键
const (
	// MetaOperation 记录操作名，在上下文创建时写入
	MetaOperation = "pipeline.operation"
	// MetaEntityID 记录本次操作涉及的实体 ID
	MetaEntityID = "pipeline.entity_id"
	// MetaUserID 记录发起操作的用户 ID
	MetaUserID = "pipeline.user_id"
)

// NewServiceContext 创建一个新的服务上下文。
// 操作名在创建时写入元数据，保证任一阶段的失败都能归因到具体操作。
func NewServiceContext(operation string) *ServiceContext {
	return &ServiceContext{
		RequestID:   RequestIDPrefix + uuid.New().String(),
		RequestTime: time.Now(),
		Metadata: map[string]any{
			MetaOperation: operation,
		},
	}
}

// Set 写入一个元数据键值。
func (c *ServiceContext) Set(key string, value any) {
	c.Metadata[key] = value
}

// Get 读取一个元数据键值。
func (c *ServiceContext) Get(key string) (any, bool) {
	v, ok := c.Metadata[key]
	return v, ok
}

// GetString 读取一个字符串类型的元数据键值，不存在或类型不符时返回空串。
func (c *ServiceContext) GetString(key string) string {
	if v, ok := c.Metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Operation 返回上下文关联的操作名。
func (c *ServiceContext) Operation() string {
	return c.GetString(MetaOperation)
}
