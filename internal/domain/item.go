// Package domain 定义了条目服务与使用分析的核心领域模型。
// 该包包含了条目、用户、使用指标等核心实体的定义，以及相关的接口和请求/响应结构体。
// 这是整个应用程序的领域层，遵循领域驱动设计(DDD)原则。
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/oriys/cirrus/internal/validation"
)

// 条目内容限制常量
const (
	// MaxMessageLength 是条目内容的最大长度（字符数）
	MaxMessageLength = 1000
	// MaxListLimit 是单次列表查询允许的最大条数
	MaxListLimit = 1000
	// LargeListLimit 是触发性能告警的列表条数阈值
	LargeListLimit = 100
	// DefaultListLimit 是未指定时的默认列表条数
	DefaultListLimit = 50
)

// bannedPhrases 是内容策略禁止出现的片段。
// 命中任意片段的条目在业务校验阶段被拒绝。
var bannedPhrases = []string{
	"<script",
	"javascript:",
	"drop table",
}

// ViolatesContentPolicy 检查条目内容是否违反内容策略。
func ViolatesContentPolicy(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Item 表示一个用户条目实体。
type Item struct {
	// ID 是条目的唯一标识符
	ID string `json:"id"`
	// Message 是条目的文本内容
	Message string `json:"message"`
	// UserID 是条目所属用户的 ID
	UserID string `json:"userId"`
	// CreatedAt 是条目的创建时间
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt 是条目的最后更新时间
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateItemRequest 表示创建条目的请求结构体。
type CreateItemRequest struct {
	// Message 是条目内容，必填，长度限制为 1-1000 字符
	Message string `json:"message"`
	// UserID 是发起请求的用户 ID（由认证层注入，不参与 JSON 序列化）
	UserID string `json:"-"`
}

// rules 返回创建条目请求的校验规则。
// 快速失败与全量收集两种模式共用这一份定义。
func (r *CreateItemRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "message",
			Check: func() error {
				if strings.TrimSpace(r.Message) == "" {
					return ErrItemMessageRequired
				}
				return nil
			},
		},
		{
			Field: "message",
			Check: func() error {
				if len(r.Message) > MaxMessageLength {
					return ErrItemMessageTooLong
				}
				return nil
			},
			Advise: func() string {
				if strings.Contains(strings.ToLower(r.Message), "urgent") {
					return "message flagged urgent"
				}
				return ""
			},
		},
		{
			Field: "userId",
			Check: func() error {
				if r.UserID == "" {
					return ErrUserIDRequired
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验请求，返回第一个违规的错误。
func (r *CreateItemRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求，汇总所有错误与告警。
func (r *CreateItemRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// UpdateItemRequest 表示更新条目的请求结构体。
type UpdateItemRequest struct {
	// ItemID 是要更新的条目 ID（从 URL 路径中获取，不参与 JSON 序列化）
	ItemID string `json:"-"`
	// Message 是更新后的条目内容
	Message string `json:"message"`
	// UserID 是发起请求的用户 ID（由认证层注入）
	UserID string `json:"-"`
}

func (r *UpdateItemRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "id",
			Check: func() error {
				if r.ItemID == "" {
					return ErrItemIDRequired
				}
				return nil
			},
		},
		{
			Field: "message",
			Check: func() error {
				if strings.TrimSpace(r.Message) == "" {
					return ErrItemMessageRequired
				}
				return nil
			},
		},
		{
			Field: "message",
			Check: func() error {
				if len(r.Message) > MaxMessageLength {
					return ErrItemMessageTooLong
				}
				return nil
			},
			Advise: func() string {
				if strings.Contains(strings.ToLower(r.Message), "urgent") {
					return "message flagged urgent"
				}
				return ""
			},
		},
		{
			Field: "userId",
			Check: func() error {
				if r.UserID == "" {
					return ErrUserIDRequired
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验请求。
func (r *UpdateItemRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求。
func (r *UpdateItemRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// GetItemRequest 表示查询单个条目的请求。
type GetItemRequest struct {
	// ItemID 是要查询的条目 ID
	ItemID string `json:"-"`
}

func (r *GetItemRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "id",
			Check: func() error {
				if r.ItemID == "" {
					return ErrItemIDRequired
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验请求。
func (r *GetItemRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求。
func (r *GetItemRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// DeleteItemRequest 表示删除条目的请求。
type DeleteItemRequest struct {
	// ItemID 是要删除的条目 ID
	ItemID string `json:"-"`
	// UserID 是发起请求的用户 ID（由认证层注入）
	UserID string `json:"-"`
}

func (r *DeleteItemRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "id",
			Check: func() error {
				if r.ItemID == "" {
					return ErrItemIDRequired
				}
				return nil
			},
		},
		{
			Field: "userId",
			Check: func() error {
				if r.UserID == "" {
					return ErrUserIDRequired
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验请求。
func (r *DeleteItemRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求。
func (r *DeleteItemRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// ListItemsRequest 表示分页查询条目列表的请求。
type ListItemsRequest struct {
	// UserID 是发起请求的用户 ID（由认证层注入）
	UserID string `json:"-"`
	// Offset 是分页偏移量
	Offset int `json:"offset"`
	// Limit 是单页条数，0 表示使用默认值
	Limit int `json:"limit"`
}

// Normalize 为未指定的分页参数填充默认值。
func (r *ListItemsRequest) Normalize() {
	if r.Limit == 0 {
		r.Limit = DefaultListLimit
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

func (r *ListItemsRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "userId",
			Check: func() error {
				if r.UserID == "" {
					return ErrUserIDRequired
				}
				return nil
			},
		},
		{
			Field: "limit",
			Check: func() error {
				if r.Limit < 0 || r.Limit > MaxListLimit {
					return ErrInvalidLimit
				}
				return nil
			},
			Advise: func() string {
				if r.Limit > LargeListLimit {
					return "large limit may impact performance"
				}
				return ""
			},
		},
	}
}

// Validate 以快速失败模式校验请求。
func (r *ListItemsRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求。
func (r *ListItemsRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// ItemRepository 定义了条目存储的接口。
// 该接口抽象了条目的持久化操作，允许不同的存储实现（如数据库、内存等）。
type ItemRepository interface {
	// CreateItem 创建一个新的条目记录
	CreateItem(ctx context.Context, item *Item) error
	// GetItem 根据 ID 获取条目
	GetItem(ctx context.Context, id string) (*Item, error)
	// ListItems 分页获取用户的条目列表，返回条目列表、总数和可能的错误
	ListItems(ctx context.Context, userID string, offset, limit int) ([]*Item, int, error)
	// UpdateItem 更新条目内容
	UpdateItem(ctx context.Context, item *Item) error
	// DeleteItem 根据 ID 删除条目
	DeleteItem(ctx context.Context, id string) error
}
