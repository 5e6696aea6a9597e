// Package service 实现各 API 操作的业务逻辑。
// 本文件实现用户注册与登录操作。凭证校验放在业务校验阶段（只读），
// 令牌签发与会话写入放在执行阶段。
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/pipeline"
)

// 认证操作的上下文元数据键
const (
	metaUser    = "auth.user"
	metaToken   = "auth.token"
	metaTokenID = "auth.token_id"
)

// SessionStore 定义了会话写入接口，由 Redis 存储实现。
type SessionStore interface {
	SaveSession(ctx context.Context, tokenID, userID string, ttl time.Duration) error
}

// AuthService 提供用户注册与登录操作。
type AuthService struct {
	users      domain.UserRepository
	sessions   SessionStore
	jwtManager *auth.JWTManager
	logger     *logrus.Logger

	registerPipe *pipeline.Pipeline[*domain.RegisterRequest]
	loginPipe    *pipeline.Pipeline[*domain.LoginRequest]
}

// NewAuthService 创建认证服务并装配管道。
func NewAuthService(users domain.UserRepository, sessions SessionStore, jwtManager *auth.JWTManager, obs pipeline.Observer, logger *logrus.Logger) *AuthService {
	s := &AuthService{users: users, sessions: sessions, jwtManager: jwtManager, logger: logger}

	s.registerPipe = pipeline.New(s.registerOperation(), logger).WithObserver(obs)
	s.loginPipe = pipeline.New(s.loginOperation(), logger).WithObserver(obs)

	return s
}

// Register 注册新用户。
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (pipeline.Response, error) {
	return s.registerPipe.Run(ctx, req)
}

// Login 登录并签发令牌。
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (pipeline.Response, error) {
	return s.loginPipe.Run(ctx, req)
}

// ========== 用户注册 ==========

func (s *AuthService) registerOperation() pipeline.Operation[*domain.RegisterRequest] {
	return pipeline.Operation[*domain.RegisterRequest]{
		Name: "auth.register",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.RegisterRequest) error {
			return req.Validate()
		},
		ValidateBusiness: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.RegisterRequest) error {
			_, err := s.users.GetUserByEmail(ctx, req.Email)
			if err == nil {
				return domain.ErrUserExists
			}
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil
			}
			return err
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.RegisterRequest) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			user := &domain.User{
				ID:           "user-" + uuid.New().String(),
				Email:        req.Email,
				Name:         req.Name,
				PasswordHash: string(hash),
				Role:         "user",
				CreatedAt:    time.Now(),
			}
			if err := s.users.CreateUser(ctx, user); err != nil {
				return err
			}
			sc.Set(metaUser, user)
			sc.Set(pipeline.MetaEntityID, user.ID)
			sc.Set(pipeline.MetaUserID, user.ID)
			return nil
		},
		BuildResponse: func(sc *pipeline.ServiceContext) pipeline.Response {
			user, ok := userFromContext(sc)
			if !ok {
				return pipeline.Response{}
			}
			return pipeline.Response{
				"id":        user.ID,
				"email":     user.Email,
				"name":      user.Name,
				"role":      user.Role,
				"createdAt": user.CreatedAt,
			}
		},
	}
}

// ========== 用户登录 ==========

func (s *AuthService) loginOperation() pipeline.Operation[*domain.LoginRequest] {
	return pipeline.Operation[*domain.LoginRequest]{
		Name: "auth.login",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.LoginRequest) error {
			return req.Validate()
		},
		ValidateBusiness: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.LoginRequest) error {
			user, err := s.users.GetUserByEmail(ctx, req.Email)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					// 不区分"用户不存在"与"密码错误"，避免邮箱枚举
					return domain.ErrInvalidCredentials
				}
				return err
			}
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
				return domain.ErrInvalidCredentials
			}
			sc.Set(metaUser, user)
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.LoginRequest) error {
			user, _ := userFromContext(sc)

			token, tokenID, err := s.jwtManager.Generate(user.ID, user.Email, user.Role)
			if err != nil {
				return err
			}
			if err := s.sessions.SaveSession(ctx, tokenID, user.ID, s.jwtManager.Expiration()); err != nil {
				return err
			}

			sc.Set(metaToken, token)
			sc.Set(metaTokenID, tokenID)
			sc.Set(pipeline.MetaUserID, user.ID)
			return nil
		},
		BuildResponse: func(sc *pipeline.ServiceContext) pipeline.Response {
			user, ok := userFromContext(sc)
			if !ok {
				return pipeline.Response{}
			}
			return pipeline.Response{
				"token":     sc.GetString(metaToken),
				"expiresIn": int64(s.jwtManager.Expiration().Seconds()),
				"user": map[string]any{
					"id":    user.ID,
					"email": user.Email,
					"name":  user.Name,
					"role":  user.Role,
				},
			}
		},
	}
}

// userFromContext 从服务上下文取出当前操作涉及的用户。
func userFromContext(sc *pipeline.ServiceContext) (*domain.User, bool) {
	v, ok := sc.Get(metaUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}
