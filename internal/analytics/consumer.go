// Package analytics 实现使用事件的批量聚合引擎。
// 本文件实现 JetStream 拉取消费者：循环拉取批次、交给引擎处理、
// 确认全部消息。被拒绝的事件同样确认，避免坏消息无限重投。
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/events"
)

// Consumer 是使用事件流的批量消费者。
type Consumer struct {
	bus       *events.EventBus
	engine    *Engine
	durable   string
	batchSize int
	maxWait   time.Duration
	logger    *logrus.Logger
}

// NewConsumer 创建消费者。
func NewConsumer(bus *events.EventBus, engine *Engine, durable string, batchSize int, maxWait time.Duration, logger *logrus.Logger) *Consumer {
	return &Consumer{
		bus:       bus,
		engine:    engine,
		durable:   durable,
		batchSize: batchSize,
		maxWait:   maxWait,
		logger:    logger,
	}
}

// Run 启动消费循环，直到 ctx 取消才返回。
// 每轮拉取至多 batchSize 条消息，流为空时 Fetch 在 maxWait 后超时，
// 循环继续下一轮。
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.bus.PullSubscribe(c.durable)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	c.logger.WithFields(logrus.Fields{
		"durable":    c.durable,
		"batch_size": c.batchSize,
	}).Info("Usage event consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Usage event consumer stopped")
			return nil
		default:
		}

		msgs, err := sub.Fetch(c.batchSize, nats.MaxWait(c.maxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Warn("Failed to fetch usage events, retrying")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		payloads := make([][]byte, len(msgs))
		for i, msg := range msgs {
			payloads[i] = msg.Data
		}

		c.engine.ProcessBatch(ctx, payloads)

		// 成功与失败的消息一律确认：失败是记录级的，重投不会改变结果
		for _, msg := range msgs {
			if err := msg.Ack(); err != nil {
				c.logger.WithError(err).Warn("Failed to ack usage event")
			}
		}
	}
}
