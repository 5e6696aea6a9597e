// Package pipeline 提供贯穿所有 API 操作的分阶段请求处理管道。
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Response 是管道的输出：一个可 JSON 序列化的字符串键映射。
// 管道从上下文字段构建响应，绝不把上下文本身交给调用方，
// 避免调用方观察或篡改内部阶段状态。
type Response map[string]any

// State 表示管道状态机的状态。当前状态由管道推进并记录在
// ServiceContext.State 上，供阶段钩子与观察者读取。
type State string

// 状态机定义：INPUT_VALIDATION → BUSINESS_VALIDATION → EXECUTION →
// DECORATION → COMPLETE，任意状态都可能转入 FAILED。
const (
	StateInputValidation    State = "INPUT_VALIDATION"
	StateBusinessValidation State = "BUSINESS_VALIDATION"
	StateExecution          State = "EXECUTION"
	StateDecoration         State = "DECORATION"
	StateComplete           State = "COMPLETE"
	StateFailed             State = "FAILED"
)

// Operation 定义一个具体操作在各阶段的行为。
// 除 Execute 与 BuildResponse 外，各阶段钩子均为可选。
type Operation[R any] struct {
	// Name 是操作名（如 "items.create"），写入上下文与错误元数据
	Name string

	// ValidateInput 执行语法层面的输入校验（存在性、长度、格式）。
	// 该阶段不得访问外部存储。
	ValidateInput func(sc *ServiceContext, req R) error

	// ValidateBusiness 执行需要外部状态的语义校验
	// （如用户是否存在、内容是否违反策略）。只允许只读访问存储。
	ValidateBusiness func(ctx context.Context, sc *ServiceContext, req R) error

	// Execute 是唯一允许变更外部状态的阶段。
	Execute func(ctx context.Context, sc *ServiceContext, req R) error

	// BuildResponse 从上下文字段构建响应映射。
	BuildResponse func(sc *ServiceContext) Response

	// Decorate 对响应做只读富化（附加计算字段、预热缓存等）。
	// 返回错误只会降级为部分响应，绝不使整个操作失败。
	Decorate func(sc *ServiceContext, resp Response) error
}

// Observer 在每次管道运行结束后被回调，用于接入性能统计与指标上报。
type Observer func(operation string, state State, duration time.Duration, err error)

// Pipeline 是分阶段执行器。同一个 Pipeline 可被并发调用：
// 每次 Run 创建独立的服务上下文，Pipeline 自身不持有可变状态。
type Pipeline[R any] struct {
	op       Operation[R]
	logger   *logrus.Logger
	observer Observer
}

// New 创建一个管道执行器。
func New[R any](op Operation[R], logger *logrus.Logger) *Pipeline[R] {
	return &Pipeline[R]{op: op, logger: logger}
}

// WithObserver 注册运行结束回调并返回自身，便于链式构建。
func (p *Pipeline[R]) WithObserver(obs Observer) *Pipeline[R] {
	p.observer = obs
	return p
}

// Run 驱动一次请求走完整个状态机。
// 返回响应映射或一个 *Error；原始内部错误绝不会未经包装越过该边界。
func (p *Pipeline[R]) Run(ctx context.Context, req R) (Response, error) {
	sc := NewServiceContext(p.op.Name)
	started := time.Now()

	resp, state, err := p.run(ctx, sc, req)
	if p.observer != nil {
		p.observer(p.op.Name, state, time.Since(started), err)
	}
	return resp, err
}

func (p *Pipeline[R]) run(ctx context.Context, sc *ServiceContext, req R) (Response, State, error) {
	// 输入校验：语法检查，失败短路，执行阶段不会被触达
	sc.State = StateInputValidation
	if p.op.ValidateInput != nil {
		if err := p.op.ValidateInput(sc, req); err != nil {
			sc.State = StateFailed
			perr := newError(sc, PhaseInputValidation, KindClient, err)
			p.logFailure(perr)
			return nil, StateFailed, perr
		}
	}

	// 业务校验：依赖外部状态的语义检查，失败同样短路
	sc.State = StateBusinessValidation
	if p.op.ValidateBusiness != nil {
		if err := p.op.ValidateBusiness(ctx, sc, req); err != nil {
			sc.State = StateFailed
			perr := newError(sc, PhaseBusinessValidation, classifyKind(err, KindClient), err)
			p.logFailure(perr)
			return nil, StateFailed, perr
		}
	}

	// 执行：唯一的变更阶段。失败不在管道内重试，包装后直接上抛。
	sc.State = StateExecution
	if err := p.op.Execute(ctx, sc, req); err != nil {
		sc.State = StateFailed
		perr := newError(sc, PhaseExecution, classifyKind(err, KindServer), err)
		p.logFailure(perr)
		return nil, StateFailed, perr
	}

	// 装饰：构建响应并做只读富化。请求 ID 由管道统一附加；
	// 自定义装饰失败只降级为部分响应
	sc.State = StateDecoration
	resp := p.op.BuildResponse(sc)
	if resp == nil {
		resp = Response{}
	}

	resp["requestId"] = sc.RequestID
	if p.op.Decorate != nil {
		if err := p.op.Decorate(sc, resp); err != nil {
			p.logger.WithFields(logrus.Fields{
				"operation":  p.op.Name,
				"request_id": sc.RequestID,
			}).WithError(err).Warn("Response decoration failed, returning partial response")
		}
	}

	sc.State = StateComplete
	return resp, StateComplete, nil
}

// logFailure 记录一次管道失败，附带还原现场所需的全部元数据。
func (p *Pipeline[R]) logFailure(perr *Error) {
	p.logger.WithFields(logrus.Fields{
		"operation":  perr.Op,
		"request_id": perr.RequestID,
		"phase":      perr.Phase,
		"kind":       perr.Kind,
	}).WithError(perr.Err).Warn("Pipeline request failed")
}
