// Package api 实现 HTTP 传输层。
// 本文件实现实时统计的 WebSocket 推送：客户端连接后按固定间隔
// 收到性能统计快照，连接断开即停止推送。
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/metrics"
)

// 推送参数
const (
	// statsPushInterval 是快照推送间隔
	statsPushInterval = 5 * time.Second
	// statsWriteTimeout 是单次写入的超时时间
	statsWriteTimeout = 10 * time.Second
)

// StatsStream 通过 WebSocket 推送性能统计快照。
type StatsStream struct {
	perf     *metrics.PerfTracker
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewStatsStream 创建实时统计推送器。
func NewStatsStream(perf *metrics.PerfTracker, logger *logrus.Logger) *StatsStream {
	return &StatsStream{
		perf: perf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 跨域校验交给路由层的 CORS 中间件
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve 把 HTTP 连接升级为 WebSocket 并开始周期推送。
func (s *StatsStream) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// 读协程只为感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(statsWriteTimeout))
			payload := map[string]any{
				"timestamp":  time.Now().Unix(),
				"enabled":    s.perf.Enabled(),
				"operations": s.perf.Snapshot(),
			}
			if err := conn.WriteJSON(payload); err != nil {
				s.logger.WithError(err).Debug("WebSocket push failed, closing")
				return
			}
		}
	}
}
