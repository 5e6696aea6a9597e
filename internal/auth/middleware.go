// Package auth 提供 JWT 与 API Key 认证功能。
// 本文件实现 HTTP 认证中间件：优先识别 API Key 请求头，
// 其次识别 Authorization Bearer 令牌，两者都缺失或无效时拒绝请求。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/domain"
)

// contextKey 是请求上下文的私有键类型，避免与其他包冲突。
type contextKey string

// userContextKey 是 UserContext 在请求上下文中的键。
const userContextKey contextKey = "cirrus.user"

// UserContext 是认证成功后注入请求上下文的调用方身份。
type UserContext struct {
	// UserID 是调用方的用户 ID
	UserID string
	// Email 是用户邮箱（仅 JWT 认证时存在）
	Email string
	// Role 是用户角色
	Role string
	// APIKey 是调用方使用的 API Key 明文（仅 API Key 认证时存在），
	// 供使用事件发布时归属开发者
	APIKey string
	// TokenID 是 JWT 的 jti（仅 JWT 认证时存在）
	TokenID string
}

// TokenStore 定义了令牌吊销状态查询接口，由 Redis 存储实现。
type TokenStore interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// APIKeyResolver 定义了 API Key 归属解析接口，由 PostgreSQL 存储实现。
type APIKeyResolver interface {
	GetAPIKeyUser(ctx context.Context, keyHash string) (string, error)
}

// Middleware 是 HTTP 认证中间件。
type Middleware struct {
	jwtManager *JWTManager
	tokens     TokenStore
	keys       APIKeyResolver
	header     string
	logger     *logrus.Logger
}

// NewMiddleware 创建认证中间件。
// header 是携带 API Key 的请求头名称（默认 X-API-Key）。
func NewMiddleware(jwtManager *JWTManager, tokens TokenStore, keys APIKeyResolver, header string, logger *logrus.Logger) *Middleware {
	if header == "" {
		header = "X-API-Key"
	}
	return &Middleware{
		jwtManager: jwtManager,
		tokens:     tokens,
		keys:       keys,
		header:     header,
		logger:     logger,
	}
}

// Handler 返回认证中间件处理器。
// 认证顺序：API Key 请求头 → Bearer JWT。认证失败统一返回 401。
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(m.header); key != "" {
			uc, err := m.authenticateAPIKey(r.Context(), key)
			if err != nil {
				m.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), uc)))
			return
		}

		authz := r.Header.Get("Authorization")
		if strings.HasPrefix(authz, "Bearer ") {
			uc, err := m.authenticateJWT(r.Context(), strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				m.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), uc)))
			return
		}

		m.reject(w, r, ErrInvalidToken)
	})
}

// authenticateAPIKey 校验 API Key 格式并解析其归属用户。
func (m *Middleware) authenticateAPIKey(ctx context.Context, key string) (*UserContext, error) {
	if !domain.IsValidAPIKey(key) || key == domain.AnonymousAPIKey {
		return nil, domain.ErrInvalidAPIKey
	}
	userID, err := m.keys.GetAPIKeyUser(ctx, HashAPIKey(key))
	if err != nil {
		return nil, err
	}
	return &UserContext{UserID: userID, Role: "user", APIKey: key}, nil
}

// authenticateJWT 验证令牌签名、有效期与吊销状态。
func (m *Middleware) authenticateJWT(ctx context.Context, token string) (*UserContext, error) {
	claims, err := m.jwtManager.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := m.tokens.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		// 吊销状态不可查时拒绝请求，宁可误杀不可放行
		return nil, err
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	return &UserContext{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
		TokenID: claims.ID,
	}, nil
}

// reject 以 401 拒绝请求并记录原因。
func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
	}).WithError(err).Debug("Authentication rejected")

	status := http.StatusUnauthorized
	message := "authentication required"
	switch {
	case errors.Is(err, ErrExpiredToken):
		message = "token expired"
	case errors.Is(err, ErrRevokedToken):
		message = "token revoked"
	case errors.Is(err, domain.ErrInvalidAPIKey), errors.Is(err, domain.ErrAPIKeyNotFound):
		message = "invalid api key"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// withUser 将用户身份注入请求上下文。
func withUser(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// UserFromContext 从请求上下文中取出认证用户身份。
func UserFromContext(ctx context.Context) (*UserContext, bool) {
	uc, ok := ctx.Value(userContextKey).(*UserContext)
	return uc, ok
}
