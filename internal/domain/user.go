// Package domain 定义了条目服务与使用分析的核心领域模型。
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/oriys/cirrus/internal/validation"
)

// MinPasswordLength 是注册密码的最小长度。
const MinPasswordLength = 8

// User 表示一个注册用户实体。
type User struct {
	// ID 是用户的唯一标识符
	ID string `json:"id"`
	// Email 是用户的登录邮箱（全局唯一）
	Email string `json:"email"`
	// Name 是用户的显示名称
	Name string `json:"name,omitempty"`
	// PasswordHash 是密码的 bcrypt 哈希，不参与 JSON 序列化
	PasswordHash string `json:"-"`
	// Role 是用户角色（如 "user"、"admin"）
	Role string `json:"role"`
	// CreatedAt 是用户的注册时间
	CreatedAt time.Time `json:"createdAt"`
}

// isValidEmail 做最小限度的邮箱格式检查。
// 完整的邮箱有效性由身份提供方在发送验证邮件时确认。
func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t")
}

// RegisterRequest 表示用户注册请求。
type RegisterRequest struct {
	// Email 是登录邮箱，必填
	Email string `json:"email"`
	// Password 是登录密码，必填，最少 8 字符
	Password string `json:"password"`
	// Name 是显示名称，可选
	Name string `json:"name,omitempty"`
}

func (r *RegisterRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "email",
			Check: func() error {
				if !isValidEmail(strings.TrimSpace(r.Email)) {
					return ErrInvalidEmail
				}
				return nil
			},
		},
		{
			Field: "password",
			Check: func() error {
				if len(r.Password) < MinPasswordLength {
					return ErrInvalidPassword
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验请求。
func (r *RegisterRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求。
func (r *RegisterRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// LoginRequest 表示用户登录请求。
type LoginRequest struct {
	// Email 是登录邮箱
	Email string `json:"email"`
	// Password 是登录密码
	Password string `json:"password"`
}

func (r *LoginRequest) rules() []validation.Rule {
	return []validation.Rule{
		{
			Field: "email",
			Check: func() error {
				if strings.TrimSpace(r.Email) == "" {
					return ErrInvalidEmail
				}
				return nil
			},
		},
		{
			Field: "password",
			Check: func() error {
				if r.Password == "" {
					return ErrInvalidPassword
				}
				return nil
			},
		},
	}
}

// Validate 以快速失败模式校验请求。
func (r *LoginRequest) Validate() error {
	return validation.FirstError(r.rules())
}

// ValidateAll 以全量收集模式校验请求。
func (r *LoginRequest) ValidateAll() *validation.Result {
	return validation.Collect(r.rules())
}

// UserRepository 定义了用户存储的接口。
type UserRepository interface {
	// CreateUser 创建一个新的用户记录
	CreateUser(ctx context.Context, user *User) error
	// GetUserByID 根据 ID 获取用户
	GetUserByID(ctx context.Context, id string) (*User, error)
	// GetUserByEmail 根据邮箱获取用户
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}
