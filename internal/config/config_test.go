package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "environment: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Storage.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want 5432", cfg.Storage.Postgres.Port)
	}
	if cfg.Events.Subject != "usage.api" {
		t.Errorf("Events.Subject = %q", cfg.Events.Subject)
	}
	if cfg.Aggregator.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Aggregator.BatchSize)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("APIKeyHeader = %q", cfg.Auth.APIKeyHeader)
	}
	if cfg.Environment != "test" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
}

func TestLoadParsesValues(t *testing.T) {
	path := writeConfig(t, `
environment: prod
server:
  http_port: 9000
cache:
  enabled: true
  ttl: 30s
  max_entries: 500
metrics:
  perf_enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d", cfg.Server.HTTPPort)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 30*time.Second || cfg.Cache.MaxEntries != 500 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if !cfg.Metrics.PerfEnabled {
		t.Error("PerfEnabled not parsed")
	}
}

// 环境变量覆盖文件中的敏感配置
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CIRRUS_POSTGRES_PASSWORD", "env-secret")
	t.Setenv("CIRRUS_AUTH_JWT_SECRET", "env-jwt")

	path := writeConfig(t, `
auth:
  enabled: true
storage:
  postgres:
    password: file-secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Storage.Postgres.Password != "env-secret" {
		t.Errorf("Password = %q, want env override", cfg.Storage.Postgres.Password)
	}
	if cfg.Auth.JWTSecret != "env-jwt" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

// _FILE 方式的密钥注入优先于环境变量
func TestLoadSecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secretPath, []byte("file-jwt\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CIRRUS_AUTH_JWT_SECRET", "env-jwt")
	t.Setenv("CIRRUS_AUTH_JWT_SECRET_FILE", secretPath)

	path := writeConfig(t, "auth:\n  enabled: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Auth.JWTSecret != "file-jwt" {
		t.Errorf("JWTSecret = %q, want file content", cfg.Auth.JWTSecret)
	}
}

// 启用认证但缺失密钥时拒绝启动
func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	t.Setenv("CIRRUS_AUTH_JWT_SECRET", "")
	t.Setenv("CIRRUS_AUTH_JWT_SECRET_FILE", "")

	path := writeConfig(t, "auth:\n  enabled: true\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for enabled auth without jwt_secret")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
