// Package storage 提供 PostgreSQL 与 Redis 存储实现。
// PostgresStore 实现领域层定义的全部仓储接口（条目、用户、使用指标、
// 洞察计数器），并负责启动时的表结构初始化。
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/config"
	"github.com/oriys/cirrus/internal/domain"
)

// PostgresStore 是基于 PostgreSQL 的持久化存储。
// 同一实例被网关与聚合器的多个并发调用共享，连接池由 database/sql 管理。
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore 创建 PostgreSQL 存储实例并初始化表结构。
func NewPostgresStore(cfg config.PostgresConfig, logger *logrus.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}

	s := &PostgresStore{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("Connected to PostgreSQL")

	return s, nil
}

// ensureSchema 创建缺失的表与索引。语句均为幂等，可安全重复执行。
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id         TEXT PRIMARY KEY,
			message    TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_user ON items (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			key_hash   TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			label      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS usage_metrics (
			id               TEXT PRIMARY KEY,
			metric_type      TEXT NOT NULL,
			ts               BIGINT NOT NULL,
			endpoint         TEXT NOT NULL,
			method           TEXT NOT NULL,
			api_key          TEXT NOT NULL,
			response_time_ms BIGINT NOT NULL,
			status_code      INT NOT NULL,
			user_agent       TEXT NOT NULL DEFAULT '',
			environment      TEXT NOT NULL DEFAULT '',
			ttl              BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_metrics_type_ts ON usage_metrics (metric_type, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_metrics_ttl ON usage_metrics (ttl)`,
		`CREATE TABLE IF NOT EXISTS insight_counters (
			developer_id TEXT NOT NULL,
			insight_key  TEXT NOT NULL,
			count        BIGINT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (developer_id, insight_key)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
		}
	}
	return nil
}

// Ping 检查数据库连通性，供健康检查端点使用。
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}
	return nil
}

// Close 关闭数据库连接池。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ========== 条目存储 ==========

// CreateItem 创建一个新的条目记录。
func (s *PostgresStore) CreateItem(ctx context.Context, item *domain.Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, message, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.Message, item.UserID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// GetItem 根据 ID 获取条目。条目不存在时返回 domain.ErrItemNotFound。
func (s *PostgresStore) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item := &domain.Item{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message, user_id, created_at, updated_at FROM items WHERE id = $1`,
		id).Scan(&item.ID, &item.Message, &item.UserID, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return item, nil
}

// ListItems 分页获取用户的条目列表，按创建时间倒序排列。
func (s *PostgresStore) ListItems(ctx context.Context, userID string, offset, limit int) ([]*domain.Item, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, user_id, created_at, updated_at
		 FROM items WHERE user_id = $1
		 ORDER BY created_at DESC
		 OFFSET $2 LIMIT $3`,
		userID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	items := make([]*domain.Item, 0, limit)
	for rows.Next() {
		item := &domain.Item{}
		if err := rows.Scan(&item.ID, &item.Message, &item.UserID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return items, total, nil
}

// UpdateItem 更新条目内容。条目不存在时返回 domain.ErrItemNotFound。
func (s *PostgresStore) UpdateItem(ctx context.Context, item *domain.Item) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET message = $2, updated_at = $3 WHERE id = $1`,
		item.ID, item.Message, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	if n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// DeleteItem 根据 ID 删除条目。条目不存在时返回 domain.ErrItemNotFound。
func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	if n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// CountItems 返回条目总数，供指标采集使用。
func (s *PostgresStore) CountItems(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return total, nil
}

// ========== 用户存储 ==========

// CreateUser 创建一个新的用户记录。邮箱冲突时返回 domain.ErrUserExists。
func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// GetUserByID 根据 ID 获取用户。用户不存在时返回 domain.ErrUserNotFound。
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx,
		`SELECT id, email, name, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

// GetUserByEmail 根据邮箱获取用户。用户不存在时返回 domain.ErrUserNotFound。
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx,
		`SELECT id, email, name, password_hash, role, created_at FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query, arg string) (*domain.User, error) {
	user := &domain.User{}
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return user, nil
}

// ========== API Key 存储 ==========

// CreateAPIKey 记录一个新签发的 API Key 哈希。
// 明文 Key 只在签发时返回给用户一次，存储端只保留哈希。
func (s *PostgresStore) CreateAPIKey(ctx context.Context, keyHash, userID, label string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, user_id, label, created_at) VALUES ($1, $2, $3, NOW())`,
		keyHash, userID, label)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// GetAPIKeyUser 根据 Key 哈希解析所属用户。
// Key 不存在或已吊销时返回 domain.ErrAPIKeyNotFound。
func (s *PostgresStore) GetAPIKeyUser(ctx context.Context, keyHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		keyHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrAPIKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return userID, nil
}

// RevokeAPIKey 吊销一个 API Key。Key 不存在时返回 domain.ErrAPIKeyNotFound。
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, keyHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE key_hash = $1 AND revoked_at IS NULL`,
		keyHash)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	if n == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// ========== 使用指标存储 ==========

// InsertMetric 持久化一条使用指标记录。
func (s *PostgresStore) InsertMetric(ctx context.Context, metric *domain.UsageMetric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_metrics
		 (id, metric_type, ts, endpoint, method, api_key, response_time_ms, status_code, user_agent, environment, ttl)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		metric.ID, metric.MetricType, metric.Timestamp, metric.Endpoint, metric.Method,
		metric.APIKey, metric.ResponseTimeMs, metric.StatusCode, metric.UserAgent,
		metric.Environment, metric.TTL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// QueryMetrics 按指标类型与时间范围查询记录，按时间倒序返回。
func (s *PostgresStore) QueryMetrics(ctx context.Context, metricType string, from, to int64, limit int) ([]*domain.UsageMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, metric_type, ts, endpoint, method, api_key, response_time_ms, status_code, user_agent, environment, ttl
		 FROM usage_metrics
		 WHERE metric_type = $1 AND ts >= $2 AND ts <= $3
		 ORDER BY ts DESC
		 LIMIT $4`,
		metricType, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	metrics := make([]*domain.UsageMetric, 0, limit)
	for rows.Next() {
		m := &domain.UsageMetric{}
		if err := rows.Scan(&m.ID, &m.MetricType, &m.Timestamp, &m.Endpoint, &m.Method,
			&m.APIKey, &m.ResponseTimeMs, &m.StatusCode, &m.UserAgent, &m.Environment, &m.TTL); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return metrics, nil
}

// DeleteExpiredMetrics 删除 TTL 已过期的记录，返回删除的行数。
func (s *PostgresStore) DeleteExpiredMetrics(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_metrics WHERE ttl < $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return n, nil
}

// ========== 洞察计数器存储 ==========

// IncrementCounter 将指定计数器原子递增 delta。
// 递增通过单条 UPSERT 在数据库端完成，多个聚合器实例并发更新
// 同一计数器时不会丢失增量。
func (s *PostgresStore) IncrementCounter(ctx context.Context, developerID, insightKey string, delta int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insight_counters (developer_id, insight_key, count, last_updated)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (developer_id, insight_key)
		 DO UPDATE SET count = insight_counters.count + EXCLUDED.count, last_updated = NOW()`,
		developerID, insightKey, delta)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// GetCounter 读取单个计数器。尚未创建的计数器视为零值，返回 nil 而非错误。
func (s *PostgresStore) GetCounter(ctx context.Context, developerID, insightKey string) (*domain.InsightCounter, error) {
	c := &domain.InsightCounter{}
	err := s.db.QueryRowContext(ctx,
		`SELECT developer_id, insight_key, count, last_updated
		 FROM insight_counters WHERE developer_id = $1 AND insight_key = $2`,
		developerID, insightKey).
		Scan(&c.DeveloperID, &c.InsightKey, &c.Count, &c.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return c, nil
}

// ListCounters 列出开发者的全部计数器，按洞察键排序。
func (s *PostgresStore) ListCounters(ctx context.Context, developerID string) ([]*domain.InsightCounter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT developer_id, insight_key, count, last_updated
		 FROM insight_counters WHERE developer_id = $1
		 ORDER BY insight_key`,
		developerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	counters := make([]*domain.InsightCounter, 0)
	for rows.Next() {
		c := &domain.InsightCounter{}
		if err := rows.Scan(&c.DeveloperID, &c.InsightKey, &c.Count, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageQuery, err)
	}
	return counters, nil
}

// isUniqueViolation 判断错误是否为唯一约束冲突（PostgreSQL 错误码 23505）。
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
