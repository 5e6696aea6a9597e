// Package cache 提供进程内的 TTL 响应缓存。
// 缓存由运行时特性开关控制：关闭时所有读写都退化为无副作用的未命中，
// 而不是报错。过期条目在下一次命中它的读写时被惰性清除，每次写入后
// 还会触发一次机会性的全量清扫。条目总数有上限，超限时优先淘汰
// 最早过期的条目。
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// 缓存默认配置常量
const (
	// DefaultTTL 是条目的默认存活时长
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries 是缓存条目数的默认上限
	DefaultMaxEntries = 10000
)

// Config 是缓存配置。
type Config struct {
	// Enabled 控制缓存是否启用，关闭时所有操作均为无副作用的未命中
	Enabled bool `yaml:"enabled"`
	// TTL 是条目的存活时长，0 表示使用默认值
	TTL time.Duration `yaml:"ttl"`
	// MaxEntries 是条目数上限，0 表示使用默认值
	MaxEntries int `yaml:"max_entries"`
}

// entry 是单个缓存条目。
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache 是并发安全的 TTL 缓存。
// 同一实例上的多个并发调用可能同时读写，因此所有访问都经过互斥锁；
// 特性开关使用原子布尔，允许配置热更新时无锁翻转。
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	enabled    atomic.Bool
}

// New 根据配置创建缓存实例。
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	c := &Cache{
		entries:    make(map[string]entry),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
	}
	c.enabled.Store(cfg.Enabled)
	return c
}

// SetEnabled 翻转特性开关。关闭后已有条目保留在内存中但不可见，
// 重新开启后未过期的条目恢复可见。
func (c *Cache) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled 返回特性开关当前状态。
func (c *Cache) Enabled() bool {
	return c.enabled.Load()
}

// Get 读取缓存条目。缓存关闭、键不存在或条目已过期均返回未命中；
// 过期条目在本次读取中被顺手清除。
func (c *Cache) Get(key string) (any, bool) {
	if !c.enabled.Load() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set 写入缓存条目并触发一次机会性清扫。缓存关闭时为空操作。
func (c *Cache) Set(key string, value any) {
	if !c.enabled.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.sweepLocked()
	c.enforceCapLocked()
}

// Delete 移除指定条目。缓存关闭时为空操作。
func (c *Cache) Delete(key string) {
	if !c.enabled.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len 返回当前条目数（含尚未被清扫的过期条目）。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge 清除所有已过期的条目，返回清除数量。
// 供定期维护任务调用，补充惰性清除的覆盖面。
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	c.sweepLocked()
	return before - len(c.entries)
}

// sweepLocked 清除全部过期条目。调用方必须持有 c.mu。
func (c *Cache) sweepLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// enforceCapLocked 在条目数超限时淘汰最早过期的条目。
// 调用方必须持有 c.mu。
func (c *Cache) enforceCapLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldestExpiry time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldestExpiry) {
				oldestKey = k
				oldestExpiry = e.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Key 由存储名、操作名与有序参数列表确定性地构造缓存键。
// 相同的调用必然产生相同的键，使重复请求可预测地命中。
func Key(store, operation string, args ...string) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, store, operation)
	parts = append(parts, args...)
	return strings.Join(parts, ":")
}
