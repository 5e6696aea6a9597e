// Package auth 提供 JWT 与 API Key 认证功能。
// JWT 用于控制台会话（注册/登录后签发），API Key 用于程序化调用。
// 两种凭证都在 HTTP 中间件中解析，解析结果以 UserContext 注入请求上下文。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 认证错误定义
var (
	// ErrInvalidToken 表示令牌格式无效或签名不匹配
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 表示令牌已过期
	ErrExpiredToken = errors.New("token expired")
	// ErrRevokedToken 表示令牌已被吊销
	ErrRevokedToken = errors.New("token revoked")
)

// Claims 是平台使用的 JWT 声明。
// Subject 承载用户 ID，ID（jti）承载令牌唯一标识，供吊销检查使用。
type Claims struct {
	// Email 是用户邮箱
	Email string `json:"email,omitempty"`
	// Role 是用户角色
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager 负责令牌的签发与验证。
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager 创建 JWT 管理器。
func NewJWTManager(secret string, expiration time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), expiration: expiration}
}

// Generate 为指定用户签发令牌，返回令牌字符串与令牌 ID（jti）。
func (m *JWTManager) Generate(userID, email, role string) (string, string, error) {
	tokenID := uuid.New().String()
	now := time.Now()

	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			Issuer:    "cirrus",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, tokenID, nil
}

// Validate 验证令牌并返回其中的声明。
// 过期令牌返回 ErrExpiredToken，其余验证失败统一返回 ErrInvalidToken。
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expiration 返回签发令牌的有效期。
func (m *JWTManager) Expiration() time.Duration {
	return m.expiration
}
