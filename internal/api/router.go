// Package api 实现 HTTP 传输层。
// 本文件装配路由：公共端点（注册、登录、健康检查）与受保护端点
// （条目、使用分析、实时统计）分组挂载，认证中间件只作用于后者。
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/telemetry"
)

// requestTimeout 是单个请求的处理超时时间。
const requestTimeout = 30 * time.Second

// NewRouter 装配完整的 HTTP 路由。
// authMW 为 nil 时受保护端点不做认证（仅用于本地开发）。
func NewRouter(h *Handler, authMW *auth.Middleware, usage *UsageRecorder, stats *StatsStream, serviceName string) http.Handler {
	r := chi.NewRouter()

	r.Use(telemetry.HTTPMiddleware(serviceName))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(corsMiddleware)
	r.Use(usage.Handler)

	// 公共端点
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Health)
	r.Get("/livez", h.Live)
	r.Post("/api/v1/auth/register", h.Register)
	r.Post("/api/v1/auth/login", h.Login)

	// 受保护端点
	r.Group(func(r chi.Router) {
		if authMW != nil {
			r.Use(authMW.Handler)
		}

		r.Route("/api/v1/items", func(r chi.Router) {
			r.Post("/", h.CreateItem)
			r.Get("/", h.ListItems)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		r.Route("/api/v1/keys", func(r chi.Router) {
			r.Post("/", h.CreateAPIKey)
			r.Post("/revoke", h.RevokeAPIKey)
		})

		r.Route("/api/v1/usage", func(r chi.Router) {
			r.Get("/stats", h.Stats)
			r.Get("/metrics", h.QueryMetrics)
			r.Get("/perf", h.PerfStats)
		})

		if stats != nil {
			r.Get("/api/v1/usage/live", stats.Serve)
		}
	})

	return r
}

// corsMiddleware 为浏览器跨域请求附加 CORS 头。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
