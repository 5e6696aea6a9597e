// Package telemetry 提供基于 OpenTelemetry 的分布式追踪。
// 本文件提供 HTTP 服务端追踪中间件的装配入口。
package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware 返回为每个请求开启服务端跨度的中间件。
// 跨度名取 "METHOD path" 的形式，传播头按 W3C Trace Context 解析。
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
