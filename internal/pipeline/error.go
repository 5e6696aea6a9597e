// Package pipeline 提供贯穿所有 API 操作的分阶段请求处理管道。
package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/oriys/cirrus/internal/domain"
)

// Phase 表示管道阶段。
type Phase string

// 管道阶段常量定义
const (
	// PhaseInputValidation 是输入校验阶段（仅做语法检查，不触碰外部存储）
	PhaseInputValidation Phase = "input_validation"
	// PhaseBusinessValidation 是业务校验阶段（可只读访问外部存储）
	PhaseBusinessValidation Phase = "business_validation"
	// PhaseExecution 是执行阶段（唯一允许变更外部状态的阶段）
	PhaseExecution Phase = "execution"
	// PhaseDecoration 是响应装饰阶段（只读富化，失败不影响整体结果）
	PhaseDecoration Phase = "decoration"
)

// ErrorKind 区分失败的责任方，调用方据此映射传输层状态码，
// 无需检查具体的错误类型层次。
type ErrorKind string

const (
	// KindClient 表示客户端导致的失败（校验不通过、引用不存在的实体等）
	KindClient ErrorKind = "client"
	// KindServer 表示服务端导致的失败（存储不可用、内部冲突等）
	KindServer ErrorKind = "server"
)

// Error 是携带上下文元数据的管道错误。
// 任何执行逻辑抛出的原始错误在越过管道边界之前都会被包装为 Error，
// 附带请求 ID、操作名与失败阶段，保证不重放请求也能还原失败现场。
// Context 在错误抛出之前是追加式的，抛出之后只读。
type Error struct {
	// Op 是失败的操作名
	Op string
	// RequestID 是失败请求的唯一标识
	RequestID string
	// Phase 是失败发生的管道阶段
	Phase Phase
	// Kind 是失败的责任方分类
	Kind ErrorKind
	// Context 是附加的上下文键值对
	Context map[string]any
	// Err 是被包装的原始错误
	Err error
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Op, e.Phase, e.Err)
}

// Unwrap 返回被包装的原始错误，支持 errors.Is / errors.As。
func (e *Error) Unwrap() error {
	return e.Err
}

// WithContext 追加一个上下文键值对并返回自身，便于链式调用。
// 只应在错误抛出之前调用。
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus 将错误分类映射为 HTTP 状态码。
// 引用不存在实体的客户端错误映射为 404，其余客户端错误映射为 400，
// 服务端错误统一映射为 500。
func (e *Error) HTTPStatus() int {
	if e.Kind == KindClient {
		if errors.Is(e.Err, domain.ErrItemNotFound) || errors.Is(e.Err, domain.ErrUserNotFound) {
			return http.StatusNotFound
		}
		if errors.Is(e.Err, domain.ErrInvalidCredentials) {
			return http.StatusUnauthorized
		}
		if errors.Is(e.Err, domain.ErrItemForbidden) {
			return http.StatusForbidden
		}
		if errors.Is(e.Err, domain.ErrUserExists) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// newError 构建一个管道错误，从服务上下文提取请求 ID 与操作名。
func newError(sc *ServiceContext, phase Phase, kind ErrorKind, err error) *Error {
	return &Error{
		Op:        sc.Operation(),
		RequestID: sc.RequestID,
		Phase:     phase,
		Kind:      kind,
		Err:       err,
		Context: map[string]any{
			"requestId": sc.RequestID,
			"operation": sc.Operation(),
		},
	}
}

// classifyKind 推断错误的责任方。
// 存储层错误归为服务端，其余在校验阶段产生的错误归为客户端。
func classifyKind(err error, fallback ErrorKind) ErrorKind {
	if errors.Is(err, domain.ErrStorageConnection) || errors.Is(err, domain.ErrStorageQuery) {
		return KindServer
	}
	return fallback
}
