// Package retention 实现数据保留的定期清理任务。
// 任务按 cron 计划运行：删除 TTL 已过期的使用指标记录，
// 并清扫响应缓存中的过期条目。
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/cache"
	"github.com/oriys/cirrus/internal/domain"
)

// sweepTimeout 是单次清理的最长执行时间。
const sweepTimeout = 5 * time.Minute

// Janitor 是数据保留清理器。
// metricStore 与 responseCache 均可为 nil，对应的清理被跳过，
// 网关与聚合器因此可以只装配各自需要的部分。
type Janitor struct {
	cron          *cron.Cron
	metricStore   domain.MetricRepository
	responseCache *cache.Cache
	schedule      string
	logger        *logrus.Logger
}

// NewJanitor 创建清理器。schedule 是 6 字段 cron 表达式（含秒）。
func NewJanitor(metricStore domain.MetricRepository, responseCache *cache.Cache, schedule string, logger *logrus.Logger) *Janitor {
	return &Janitor{
		cron:          cron.New(cron.WithSeconds()),
		metricStore:   metricStore,
		responseCache: responseCache,
		schedule:      schedule,
		logger:        logger,
	}
}

// Start 注册清理任务并启动调度。
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("Retention janitor started")
	return nil
}

// Stop 停止调度并等待进行中的清理完成。
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("Retention janitor stopped")
}

// sweep 执行一轮清理。
func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	started := time.Now()
	fields := logrus.Fields{}

	if j.metricStore != nil {
		deleted, err := j.metricStore.DeleteExpiredMetrics(ctx, time.Now())
		if err != nil {
			j.logger.WithError(err).Warn("Failed to delete expired usage metrics")
		} else {
			fields["metrics_deleted"] = deleted
		}
	}

	if j.responseCache != nil {
		fields["cache_purged"] = j.responseCache.Purge()
	}

	fields["duration_ms"] = time.Since(started).Milliseconds()
	j.logger.WithFields(fields).Info("Retention sweep completed")
}
