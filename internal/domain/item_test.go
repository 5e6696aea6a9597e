package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateItemRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateItemRequest
		wantErr error
	}{
		{
			name:    "valid request",
			req:     CreateItemRequest{Message: "Test item", UserID: "user-123"},
			wantErr: nil,
		},
		{
			name:    "empty message",
			req:     CreateItemRequest{Message: "", UserID: "user-123"},
			wantErr: ErrItemMessageRequired,
		},
		{
			name:    "whitespace only message",
			req:     CreateItemRequest{Message: "   ", UserID: "user-123"},
			wantErr: ErrItemMessageRequired,
		},
		{
			name:    "message at limit",
			req:     CreateItemRequest{Message: strings.Repeat("a", MaxMessageLength), UserID: "user-123"},
			wantErr: nil,
		},
		{
			name:    "message over limit",
			req:     CreateItemRequest{Message: strings.Repeat("a", MaxMessageLength+1), UserID: "user-123"},
			wantErr: ErrItemMessageTooLong,
		},
		{
			name:    "missing user",
			req:     CreateItemRequest{Message: "Test item"},
			wantErr: ErrUserIDRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}

			// 全量收集模式必须与快速失败模式给出一致的判定
			res := tt.req.ValidateAll()
			if res.IsValid() != (tt.wantErr == nil) {
				t.Errorf("ValidateAll().IsValid() = %v, disagrees with Validate() = %v", res.IsValid(), err)
			}
		})
	}
}

// 全量收集模式汇总多个字段的错误
func TestCreateItemRequestValidateAllCollectsAll(t *testing.T) {
	req := CreateItemRequest{Message: strings.Repeat("a", MaxMessageLength+1)}
	res := req.ValidateAll()

	if res.IsValid() {
		t.Fatal("expected invalid result")
	}
	// 超长 message 与缺失 userId 两个错误都应被收集
	if len(res.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d: %s", len(res.Errors()), res.ErrorString())
	}
}

func TestCreateItemRequestUrgentWarning(t *testing.T) {
	req := CreateItemRequest{Message: "this is URGENT please", UserID: "user-123"}
	res := req.ValidateAll()

	if !res.IsValid() {
		t.Fatalf("expected valid request, got %s", res.ErrorString())
	}
	if !res.HasWarnings() {
		t.Fatal("expected urgent warning")
	}
	if res.Warnings()[0].Message != "message flagged urgent" {
		t.Errorf("unexpected warning %q", res.Warnings()[0].Message)
	}
}

func TestViolatesContentPolicy(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"hello world", false},
		{"<script>alert(1)</script>", true},
		{"Click javascript:void(0)", true},
		{"DROP TABLE items;", true},
		{"dropped the ball", false},
	}

	for _, tt := range tests {
		if got := ViolatesContentPolicy(tt.message); got != tt.want {
			t.Errorf("ViolatesContentPolicy(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestListItemsRequestNormalize(t *testing.T) {
	req := ListItemsRequest{UserID: "user-123", Offset: -5}
	req.Normalize()

	if req.Limit != DefaultListLimit {
		t.Errorf("Limit = %d, want default %d", req.Limit, DefaultListLimit)
	}
	if req.Offset != 0 {
		t.Errorf("Offset = %d, want 0", req.Offset)
	}
}

func TestListItemsRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ListItemsRequest
		wantErr error
	}{
		{"valid", ListItemsRequest{UserID: "user-123", Limit: 50}, nil},
		{"limit at max", ListItemsRequest{UserID: "user-123", Limit: MaxListLimit}, nil},
		{"limit over max", ListItemsRequest{UserID: "user-123", Limit: MaxListLimit + 1}, ErrInvalidLimit},
		{"negative limit", ListItemsRequest{UserID: "user-123", Limit: -1}, ErrInvalidLimit},
		{"missing user", ListItemsRequest{Limit: 50}, ErrUserIDRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// 大分页触发性能告警但不拒绝请求
func TestListItemsRequestLargeLimitWarning(t *testing.T) {
	req := ListItemsRequest{UserID: "user-123", Limit: LargeListLimit + 1}
	res := req.ValidateAll()

	if !res.IsValid() {
		t.Fatalf("expected valid request, got %s", res.ErrorString())
	}
	if !res.HasWarnings() {
		t.Error("expected large limit warning")
	}
}

func TestUpdateItemRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     UpdateItemRequest
		wantErr error
	}{
		{"valid", UpdateItemRequest{ItemID: "item-1", Message: "updated", UserID: "user-123"}, nil},
		{"missing id", UpdateItemRequest{Message: "updated", UserID: "user-123"}, ErrItemIDRequired},
		{"missing message", UpdateItemRequest{ItemID: "item-1", UserID: "user-123"}, ErrItemMessageRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
