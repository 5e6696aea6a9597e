package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestResultCollectsErrorsAndWarnings(t *testing.T) {
	res := NewResult()
	if !res.IsValid() {
		t.Fatal("empty result should be valid")
	}

	res.AddError("message", "message is required")
	res.AddWarning("limit", "large limit may impact performance")

	if res.IsValid() {
		t.Error("result with errors should be invalid")
	}
	if !res.HasWarnings() {
		t.Error("expected warnings to be present")
	}
	if len(res.Errors()) != 1 || len(res.Warnings()) != 1 {
		t.Errorf("expected 1 error and 1 warning, got %d and %d", len(res.Errors()), len(res.Warnings()))
	}
}

// 告警不影响有效性判定
func TestWarningsDoNotAffectValidity(t *testing.T) {
	res := NewResult()
	res.AddWarning("message", "message flagged urgent")

	if !res.IsValid() {
		t.Error("warnings alone should not invalidate the result")
	}
}

func TestErrorStringRendering(t *testing.T) {
	res := NewResult()
	res.AddError("email", "invalid email address")
	res.AddError("password", "password too short")

	got := res.ErrorString()
	want := "email: invalid email address; password: password too short"
	if got != want {
		t.Errorf("ErrorString() = %q, want %q", got, want)
	}
}

// 客户端表示中的切片必须序列化为空数组而非 null
func TestResponseMarshalsEmptySlices(t *testing.T) {
	data, err := json.Marshal(NewResult())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "null") {
		t.Errorf("expected empty arrays, got %s", s)
	}
	if !strings.Contains(s, `"valid":true`) {
		t.Errorf("expected valid:true, got %s", s)
	}
}

// 快速失败与全量收集必须对同一份规则给出一致的判定
func TestFirstErrorAndCollectAgree(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	tests := []struct {
		name      string
		rules     []Rule
		wantFirst error
		wantCount int
	}{
		{
			name: "all pass",
			rules: []Rule{
				{Field: "a", Check: func() error { return nil }},
				{Field: "b", Check: func() error { return nil }},
			},
			wantFirst: nil,
			wantCount: 0,
		},
		{
			name: "first rule fails",
			rules: []Rule{
				{Field: "a", Check: func() error { return errA }},
				{Field: "b", Check: func() error { return errB }},
			},
			wantFirst: errA,
			wantCount: 2,
		},
		{
			name: "later rule fails",
			rules: []Rule{
				{Field: "a", Check: func() error { return nil }},
				{Field: "b", Check: func() error { return errB }},
			},
			wantFirst: errB,
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstError(tt.rules); !errors.Is(got, tt.wantFirst) && got != tt.wantFirst {
				t.Errorf("FirstError() = %v, want %v", got, tt.wantFirst)
			}

			res := Collect(tt.rules)
			if len(res.Errors()) != tt.wantCount {
				t.Errorf("Collect() produced %d errors, want %d", len(res.Errors()), tt.wantCount)
			}
			// 两种模式的通过判定必须一致
			if (FirstError(tt.rules) == nil) != res.IsValid() {
				t.Error("fail-fast and collect modes disagree on validity")
			}
		})
	}
}

func TestCollectGathersAdvisories(t *testing.T) {
	rules := []Rule{
		{Field: "a", Check: func() error { return nil }, Advise: func() string { return "heads up" }},
		{Field: "b", Advise: func() string { return "" }},
	}

	res := Collect(rules)
	if !res.IsValid() {
		t.Error("expected valid result")
	}
	if len(res.Warnings()) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(res.Warnings()))
	}
	if res.Warnings()[0].Message != "heads up" {
		t.Errorf("unexpected warning message %q", res.Warnings()[0].Message)
	}
}
