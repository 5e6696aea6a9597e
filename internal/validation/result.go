// Package validation 提供字段级校验结果的收集与呈现。
// 同一组校验规则支持两种执行模式：快速失败（返回第一个违规的哨兵错误，
// 适用于低延迟路径）与全量收集（汇总所有违规和告警，适用于需要向
// 客户端返回完整诊断信息的场景）。两种模式共享同一份规则定义，
// 保证不会出现判定分歧。
package validation

import (
	"encoding/json"
	"strings"
)

// Severity 表示校验问题的严重级别。
type Severity string

const (
	// SeverityError 表示导致请求被拒绝的校验错误
	SeverityError Severity = "error"
	// SeverityWarning 表示不影响有效性的建议性告警
	SeverityWarning Severity = "warning"
)

// Issue 表示单个字段级校验问题。
type Issue struct {
	// Field 是触发问题的字段名
	Field string `json:"field"`
	// Message 是问题的描述信息
	Message string `json:"message"`
	// Severity 是问题的严重级别（error 或 warning）
	Severity Severity `json:"severity"`
}

// Result 收集一次校验调用产生的全部错误与告警。
// 错误与告警分别保持加入顺序；Result 返回给调用方后不应再被修改。
type Result struct {
	errors   []Issue
	warnings []Issue
}

// NewResult 创建一个空的校验结果。
func NewResult() *Result {
	return &Result{}
}

// AddError 追加一个字段级错误。
func (r *Result) AddError(field, message string) {
	r.errors = append(r.errors, Issue{Field: field, Message: message, Severity: SeverityError})
}

// AddWarning 追加一个字段级告警。告警不影响 IsValid 的判定。
func (r *Result) AddWarning(field, message string) {
	r.warnings = append(r.warnings, Issue{Field: field, Message: message, Severity: SeverityWarning})
}

// IsValid 当且仅当没有任何错误时返回 true。
func (r *Result) IsValid() bool {
	return len(r.errors) == 0
}

// HasWarnings 返回是否存在告警。
func (r *Result) HasWarnings() bool {
	return len(r.warnings) > 0
}

// Errors 返回按加入顺序排列的错误列表。
func (r *Result) Errors() []Issue {
	return r.errors
}

// Warnings 返回按加入顺序排列的告警列表。
func (r *Result) Warnings() []Issue {
	return r.warnings
}

// ErrorString 将所有错误渲染为单行字符串，便于日志输出。
func (r *Result) ErrorString() string {
	return renderIssues(r.errors)
}

// WarningString 将所有告警渲染为单行字符串，便于日志输出。
func (r *Result) WarningString() string {
	return renderIssues(r.warnings)
}

func renderIssues(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, is.Field+": "+is.Message)
	}
	return strings.Join(parts, "; ")
}

// Response 是面向客户端的校验结果表示。
type Response struct {
	// Valid 表示校验是否通过（没有错误）
	Valid bool `json:"valid"`
	// Errors 是全部字段级错误
	Errors []Issue `json:"errors"`
	// Warnings 是全部字段级告警
	Warnings []Issue `json:"warnings"`
}

// Response 构建面向客户端的校验结果。
// 错误与告警切片始终非 nil，保证 JSON 序列化为空数组而非 null。
func (r *Result) Response() Response {
	resp := Response{
		Valid:    r.IsValid(),
		Errors:   r.errors,
		Warnings: r.warnings,
	}
	if resp.Errors == nil {
		resp.Errors = []Issue{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []Issue{}
	}
	return resp
}

// MarshalJSON 使 Result 可以直接序列化为客户端表示。
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Response())
}

// Rule 是一条可复用的校验规则。
// Check 返回非 nil 错误表示该字段存在违规；Advise 返回非空字符串表示
// 该字段存在建议性告警。两者均为可选。
type Rule struct {
	// Field 是规则作用的字段名
	Field string
	// Check 执行硬性校验，返回 nil 表示通过
	Check func() error
	// Advise 执行建议性检查，返回非空字符串作为告警内容
	Advise func() string
}

// FirstError 按顺序执行规则并返回第一个违规的错误（快速失败模式）。
// 所有规则通过时返回 nil。告警检查在该模式下不执行。
func FirstError(rules []Rule) error {
	for _, rule := range rules {
		if rule.Check == nil {
			continue
		}
		if err := rule.Check(); err != nil {
			return err
		}
	}
	return nil
}

// Collect 无条件执行所有规则，汇总全部错误与告警（全量收集模式）。
func Collect(rules []Rule) *Result {
	res := NewResult()
	for _, rule := range rules {
		if rule.Check != nil {
			if err := rule.Check(); err != nil {
				res.AddError(rule.Field, err.Error())
			}
		}
		if rule.Advise != nil {
			if msg := rule.Advise(); msg != "" {
				res.AddWarning(rule.Field, msg)
			}
		}
	}
	return res
}
