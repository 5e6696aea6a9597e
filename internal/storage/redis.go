// Package storage 提供 PostgreSQL 与 Redis 存储实现。
// RedisStore 承担会话与令牌吊销状态：两者都有天然的过期语义，
// 适合放在带 TTL 的键值存储中而不是主数据库。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/config"
	"github.com/oriys/cirrus/internal/domain"
)

// Redis 键前缀
const (
	sessionKeyPrefix = "cirrus:session:"
	revokedKeyPrefix = "cirrus:revoked:"
)

// RedisStore 是基于 Redis 的会话与令牌状态存储。
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisStore 创建 Redis 存储实例并验证连通性。
func NewRedisStore(cfg config.RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}

	logger.WithField("addr", client.Options().Addr).Info("Connected to Redis")
	return &RedisStore{client: client, logger: logger}, nil
}

// SaveSession 记录一次登录会话，键为令牌 ID（jti），随令牌过期自动清理。
func (s *RedisStore) SaveSession(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKeyPrefix+tokenID, userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// RevokeToken 将令牌标记为已吊销，标记随令牌剩余有效期过期。
func (s *RedisStore) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// 令牌已过期，无需吊销标记
		return nil
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// IsTokenRevoked 检查令牌是否已被吊销。
func (s *RedisStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := s.client.Get(ctx, revokedKeyPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return true, nil
}

// Ping 检查 Redis 连通性，供健康检查端点使用。
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}
	return nil
}

// Close 关闭 Redis 客户端。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
