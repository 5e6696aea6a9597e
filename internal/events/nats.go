// Package events 提供基于 NATS JetStream 的使用事件流。
// 网关在每次 API 调用后把使用事件发布到流中，聚合器以持久化拉取
// 消费者批量消费。流提供至少一次投递语义，重复投递由下游容忍。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/domain"
)

// 事件流常量
const (
	// StreamName 是使用事件流的名称
	StreamName = "USAGE_EVENTS"
	// StreamMaxAge 是流内消息的最长保留时间
	StreamMaxAge = 7 * 24 * time.Hour
)

// EventBus 是使用事件的发布与订阅入口。
type EventBus struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	logger  *logrus.Logger
}

// NewEventBus 连接 NATS 并确保使用事件流存在。
func NewEventBus(url, subject string, logger *logrus.Logger) (*EventBus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// 流已存在时 AddStream 返回已有配置，不报错
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"usage.>"},
		Storage:  nats.FileStorage,
		MaxAge:   StreamMaxAge,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"url":     url,
		"stream":  StreamName,
		"subject": subject,
	}).Info("Connected to NATS JetStream")

	return &EventBus{nc: nc, js: js, subject: subject, logger: logger}, nil
}

// PublishUsage 发布一条使用事件。
// 发布失败只影响分析数据，不影响主请求路径，调用方通常只记录日志。
func (b *EventBus) PublishUsage(ctx context.Context, event *domain.UsageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal usage event: %w", err)
	}
	if _, err := b.js.Publish(b.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish usage event: %w", err)
	}
	return nil
}

// PullSubscribe 创建使用事件流的持久化拉取订阅。
// 同一 durable 名称的多个订阅共享消费进度，允许水平扩展聚合器。
func (b *EventBus) PullSubscribe(durable string) (*nats.Subscription, error) {
	sub, err := b.js.PullSubscribe("usage.>", durable,
		nats.BindStream(StreamName),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull subscription: %w", err)
	}
	return sub, nil
}

// Close 排空并关闭 NATS 连接。
func (b *EventBus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.logger.WithError(err).Warn("Failed to drain NATS connection")
	}
}
