// Package api 实现 HTTP 传输层。
// 本文件实现使用事件记录中间件：每个请求结束后异步发布一条使用事件
// 到事件流，供聚合器离线处理。发布失败只记录日志，绝不影响主请求。
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/events"
)

// publishTimeout 是异步发布单条使用事件的超时时间。
const publishTimeout = 5 * time.Second

// statusRecorder 捕获写出的响应状态码。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// UsageRecorder 是使用事件记录中间件。
type UsageRecorder struct {
	bus         *events.EventBus
	environment string
	logger      *logrus.Logger
}

// NewUsageRecorder 创建使用事件记录中间件。bus 为 nil 时中间件为透传。
func NewUsageRecorder(bus *events.EventBus, environment string, logger *logrus.Logger) *UsageRecorder {
	return &UsageRecorder{bus: bus, environment: environment, logger: logger}
}

// Handler 返回中间件处理器。
func (u *UsageRecorder) Handler(next http.Handler) http.Handler {
	if u.bus == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()

		next.ServeHTTP(rec, r)

		event := &domain.UsageEvent{
			MetricType:     "api_request",
			Timestamp:      started.Unix(),
			Endpoint:       r.URL.Path,
			Method:         r.Method,
			APIKey:         callerAPIKey(r),
			ResponseTimeMs: time.Since(started).Milliseconds(),
			StatusCode:     rec.status,
			UserAgent:      r.UserAgent(),
			Environment:    u.environment,
		}

		// 发布脱离请求生命周期，请求返回后照常完成
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := u.bus.PublishUsage(ctx, event); err != nil {
				u.logger.WithFields(logrus.Fields{
					"endpoint": event.Endpoint,
					"method":   event.Method,
				}).WithError(err).Warn("Failed to publish usage event")
			}
		}()
	})
}

// callerAPIKey 返回调用方的 API Key，未认证或会话认证的请求为匿名。
func callerAPIKey(r *http.Request) string {
	if uc, ok := auth.UserFromContext(r.Context()); ok && uc.APIKey != "" {
		return uc.APIKey
	}
	return domain.AnonymousAPIKey
}
