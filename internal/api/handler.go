// Package api 实现 HTTP 传输层。
// 处理器只做解码、调用服务管道、编码三件事，业务规则全部在服务层。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/metrics"
	"github.com/oriys/cirrus/internal/pipeline"
	"github.com/oriys/cirrus/internal/service"
)

// maxRequestBody 是请求体的最大字节数。
const maxRequestBody = 1 << 20

// Pinger 定义健康检查依赖的连通性探测接口。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler 聚合全部 HTTP 处理器及其依赖。
type Handler struct {
	authService  *service.AuthService
	itemService  *service.ItemService
	usageService *service.UsageService
	perf         *metrics.PerfTracker
	keys         APIKeyStore
	postgres     Pinger
	redis        Pinger
	logger       *logrus.Logger
}

// NewHandler 创建处理器集合。
func NewHandler(
	authService *service.AuthService,
	itemService *service.ItemService,
	usageService *service.UsageService,
	perf *metrics.PerfTracker,
	keys APIKeyStore,
	postgres, redis Pinger,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		authService:  authService,
		itemService:  itemService,
		usageService: usageService,
		perf:         perf,
		keys:         keys,
		postgres:     postgres,
		redis:        redis,
		logger:       logger,
	}
}

// ========== 认证端点 ==========

// Register 处理用户注册请求。
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req := &domain.RegisterRequest{}
	if !h.decode(w, r, req) {
		return
	}
	resp, err := h.authService.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Login 处理用户登录请求。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req := &domain.LoginRequest{}
	if !h.decode(w, r, req) {
		return
	}
	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ========== 条目端点 ==========

// CreateItem 处理创建条目请求。
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	req := &domain.CreateItemRequest{}
	if !h.decode(w, r, req) {
		return
	}
	req.UserID = userID(r)

	resp, err := h.itemService.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetItem 处理查询单个条目请求。
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	req := &domain.GetItemRequest{ItemID: chi.URLParam(r, "id")}

	resp, err := h.itemService.Get(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListItems 处理分页查询条目列表请求。
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	req := &domain.ListItemsRequest{
		UserID: userID(r),
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 0),
	}

	resp, err := h.itemService.List(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateItem 处理更新条目请求。
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	req := &domain.UpdateItemRequest{}
	if !h.decode(w, r, req) {
		return
	}
	req.ItemID = chi.URLParam(r, "id")
	req.UserID = userID(r)

	resp, err := h.itemService.Update(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteItem 处理删除条目请求。
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	req := &domain.DeleteItemRequest{
		ItemID: chi.URLParam(r, "id"),
		UserID: userID(r),
	}

	resp, err := h.itemService.Delete(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ========== 使用分析端点 ==========

// Stats 返回调用方的洞察计数器汇总。
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	uc, _ := auth.UserFromContext(r.Context())
	developerID := ""
	if uc != nil {
		// API Key 调用按 Key 归属，控制台会话按用户 ID 归属
		if uc.APIKey != "" {
			developerID = uc.APIKey
		} else {
			developerID = uc.UserID
		}
	}

	resp, err := h.usageService.Stats(r.Context(), &service.StatsRequest{DeveloperID: developerID})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// QueryMetrics 按类型与时间范围查询使用指标记录。
func (h *Handler) QueryMetrics(w http.ResponseWriter, r *http.Request) {
	now := time.Now().Unix()
	req := &service.MetricsQueryRequest{
		MetricType: r.URL.Query().Get("type"),
		From:       queryInt64(r, "from", now-24*3600),
		To:         queryInt64(r, "to", now),
		Limit:      queryInt(r, "limit", 0),
	}

	resp, err := h.usageService.QueryMetrics(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PerfStats 返回进程内性能统计快照。
func (h *Handler) PerfStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":    h.perf.Enabled(),
		"operations": h.perf.Snapshot(),
	})
}

// ========== 健康检查端点 ==========

// Health 返回整体健康状态，任一依赖不可达时返回 503。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, p := range map[string]Pinger{"postgres": h.postgres, "redis": h.redis} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unreachable"
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	h.writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// Live 返回存活状态，进程在即为通过。
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ========== 编解码辅助 ==========

// decode 解析 JSON 请求体。失败时写出 400 并返回 false。
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeJSON 写出 JSON 响应。
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("Failed to encode response")
	}
}

// writeError 把服务层错误映射为 HTTP 响应。
// 管道错误携带状态码映射与请求 ID；其他错误一律按 500 处理，
// 不泄漏内部细节。
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		h.writeJSON(w, perr.HTTPStatus(), map[string]any{
			"error":     perr.Err.Error(),
			"requestId": perr.RequestID,
			"phase":     string(perr.Phase),
		})
		return
	}
	h.logger.WithError(err).Error("Unhandled service error")
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// userID 从请求上下文取出认证用户 ID。
func userID(r *http.Request) string {
	if uc, ok := auth.UserFromContext(r.Context()); ok {
		return uc.UserID
	}
	return ""
}

// queryInt 解析整型查询参数，缺失或非法时返回默认值。
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryInt64 解析 64 位整型查询参数，缺失或非法时返回默认值。
func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
