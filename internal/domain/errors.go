// Package domain 定义了条目服务与使用分析的核心领域模型。
package domain

import "errors"

// 领域错误定义
// 这些错误用于在应用程序的不同层之间传递业务逻辑相关的错误信息。

var (
	// ========== 条目相关错误 ==========

	// ErrItemNotFound 表示请求的条目不存在
	ErrItemNotFound = errors.New("item not found")
	// ErrItemMessageRequired 表示条目内容为空或仅包含空白字符
	ErrItemMessageRequired = errors.New("message is required")
	// ErrItemMessageTooLong 表示条目内容超出 1000 字符限制
	ErrItemMessageTooLong = errors.New("message exceeds 1000 character limit")
	// ErrItemIDRequired 表示条目 ID 为空
	ErrItemIDRequired = errors.New("item id is required")
	// ErrItemForbidden 表示条目不属于当前用户
	ErrItemForbidden = errors.New("item does not belong to user")
	// ErrContentPolicy 表示条目内容违反内容策略
	ErrContentPolicy = errors.New("message violates content policy")
	// ErrInvalidLimit 表示分页参数超出有效范围
	ErrInvalidLimit = errors.New("limit must be between 1 and 1000")

	// ========== 用户相关错误 ==========

	// ErrUserNotFound 表示请求的用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 表示邮箱已被注册
	ErrUserExists = errors.New("user already exists")
	// ErrUserIDRequired 表示用户 ID 为空
	ErrUserIDRequired = errors.New("user id is required")
	// ErrInvalidEmail 表示邮箱格式无效
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword 表示密码不满足最小长度要求
	ErrInvalidPassword = errors.New("password must be at least 8 characters")
	// ErrInvalidCredentials 表示邮箱或密码不匹配
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ========== 使用事件相关错误 ==========

	// ErrEmptyPayload 表示事件载荷为空
	ErrEmptyPayload = errors.New("empty event payload")
	// ErrPayloadTooLarge 表示事件载荷超出 10KB 限制
	ErrPayloadTooLarge = errors.New("event payload exceeds size limit")
	// ErrMalformedPayload 表示事件载荷无法解析为结构化记录
	ErrMalformedPayload = errors.New("malformed event payload")
	// ErrMetricTypeRequired 表示指标类型为空
	ErrMetricTypeRequired = errors.New("metric type is required")
	// ErrTimestampOutOfRange 表示事件时间戳超出处理窗口（过去 1 年至未来 1 小时）
	ErrTimestampOutOfRange = errors.New("timestamp outside allowed window")
	// ErrInvalidEndpoint 表示端点路径无效（缺少前导斜杠、包含路径穿越或超长）
	ErrInvalidEndpoint = errors.New("invalid endpoint path")
	// ErrInvalidMethod 表示 HTTP 方法不在允许集合内
	ErrInvalidMethod = errors.New("invalid http method")
	// ErrInvalidAPIKey 表示 API Key 格式无效
	ErrInvalidAPIKey = errors.New("invalid api key format")
	// ErrInvalidResponseTime 表示响应耗时超出有效范围（0-300000 毫秒）
	ErrInvalidResponseTime = errors.New("response time out of range")
	// ErrInvalidStatusCode 表示状态码超出有效范围（100-599）
	ErrInvalidStatusCode = errors.New("status code out of range")
	// ErrUserAgentTooLong 表示 User-Agent 超出 500 字符限制
	ErrUserAgentTooLong = errors.New("user agent exceeds 500 character limit")

	// ========== 存储相关错误 ==========

	// ErrStorageConnection 表示存储连接错误（如数据库连接失败）
	ErrStorageConnection = errors.New("storage connection error")
	// ErrStorageQuery 表示存储查询错误（如 SQL 查询失败）
	ErrStorageQuery = errors.New("storage query error")

	// ========== 认证相关错误 ==========

	// ErrAPIKeyNotFound 表示 API Key 不存在或已被吊销
	ErrAPIKeyNotFound = errors.New("api key not found")
)
