package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJWTGenerateAndValidate(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, tokenID, err := m.Generate("user-123", "dev@example.com", "user")
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if token == "" || tokenID == "" {
		t.Fatal("empty token or token ID")
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("Subject = %q, want user-123", claims.Subject)
	}
	if claims.Email != "dev@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.ID != tokenID {
		t.Errorf("jti = %q, want %q", claims.ID, tokenID)
	}
}

// 每次签发生成不同的令牌 ID
func TestJWTUniqueTokenIDs(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	_, id1, _ := m.Generate("user-123", "", "user")
	_, id2, _ := m.Generate("user-123", "", "user")
	if id1 == id2 {
		t.Error("expected unique token IDs per issuance")
	}
}

func TestJWTValidateRejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	token, _, _ := m.Generate("user-123", "", "user")

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not.a.token", ErrInvalidToken},
		{"empty", "", ErrInvalidToken},
		{"tampered", token[:len(token)-4] + "XXXX", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Validate(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// 其他密钥签发的令牌被拒绝
func TestJWTRejectsWrongSecret(t *testing.T) {
	token, _, _ := NewJWTManager("other-secret", time.Hour).Generate("user-123", "", "user")

	if _, err := NewJWTManager("test-secret", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() = %v, want %v", err, ErrInvalidToken)
	}
}

func TestJWTExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)
	token, _, _ := m.Generate("user-123", "", "user")

	if _, err := m.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Validate() = %v, want %v", err, ErrExpiredToken)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() failed: %v", err)
	}
	if len(key) != apiKeyBytes*2 {
		t.Errorf("key length = %d, want %d", len(key), apiKeyBytes*2)
	}

	other, _ := GenerateAPIKey()
	if key == other {
		t.Error("expected unique keys")
	}
}

func TestHashAPIKey(t *testing.T) {
	h1 := HashAPIKey("some-key")
	h2 := HashAPIKey("some-key")
	if h1 != h2 {
		t.Error("hash must be deterministic")
	}
	if h1 == HashAPIKey("other-key") {
		t.Error("distinct keys produced the same hash")
	}
	// SHA-256 十六进制长度为 64
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}
	if strings.ToLower(h1) != h1 {
		t.Error("hash should be lowercase hex")
	}
}
