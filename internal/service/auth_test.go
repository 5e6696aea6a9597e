package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/domain"
)

// fakeSessionStore 是内存实现的会话存储。
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]string)}
}

func (s *fakeSessionStore) SaveSession(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenID] = userID
	return nil
}

func newTestAuthService(users *fakeUserRepo) (*AuthService, *fakeSessionStore) {
	sessions := newFakeSessionStore()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	return NewAuthService(users, sessions, jwtManager, nil, testLogger()), sessions
}

func TestRegisterAndLoginFlow(t *testing.T) {
	users := newFakeUserRepo()
	svc, sessions := newTestAuthService(users)

	resp, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:    "dev@example.com",
		Password: "supersecret",
		Name:     "Dev",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	userID, _ := resp["id"].(string)
	if !strings.HasPrefix(userID, "user-") {
		t.Errorf("id = %q, want user- prefix", userID)
	}
	if resp["email"] != "dev@example.com" || resp["role"] != "user" {
		t.Errorf("register response = %v", resp)
	}

	// 密码哈希绝不进入响应
	for key := range resp {
		if strings.Contains(strings.ToLower(key), "password") {
			t.Errorf("response leaks password field %q", key)
		}
	}

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "dev@example.com",
		Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	token, _ := login["token"].(string)
	if token == "" {
		t.Fatal("empty token")
	}
	if len(sessions.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(sessions.sessions))
	}

	user, ok := login["user"].(map[string]any)
	if !ok || user["id"] != userID {
		t.Errorf("login user = %v", login["user"])
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     *domain.RegisterRequest
		wantErr error
	}{
		{"bad email", &domain.RegisterRequest{Email: "not-an-email", Password: "supersecret"}, domain.ErrInvalidEmail},
		{"short password", &domain.RegisterRequest{Email: "a@b.com", Password: "short"}, domain.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(newFakeUserRepo())
			if _, err := svc.Register(context.Background(), tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestAuthService(newFakeUserRepo())

	req := &domain.RegisterRequest{Email: "dev@example.com", Password: "supersecret"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Register(context.Background(), req)
	if !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("Register() = %v, want %v", err, domain.ErrUserExists)
	}
}

// 用户不存在与密码错误返回同一个错误，避免邮箱枚举
func TestLoginInvalidCredentials(t *testing.T) {
	svc, sessions := newTestAuthService(newFakeUserRepo())

	if _, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email: "dev@example.com", Password: "supersecret",
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  *domain.LoginRequest
	}{
		{"wrong password", &domain.LoginRequest{Email: "dev@example.com", Password: "wrong-password"}},
		{"unknown email", &domain.LoginRequest{Email: "ghost@example.com", Password: "supersecret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Errorf("Login() = %v, want %v", err, domain.ErrInvalidCredentials)
			}
		})
	}

	// 失败的登录不创建会话
	if len(sessions.sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(sessions.sessions))
	}
}
