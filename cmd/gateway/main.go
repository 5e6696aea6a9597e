// gateway 是平台的 API 网关进程。
// 它装配存储、事件流、认证与各业务服务，对外提供 HTTP API，
// 并把每次调用的使用事件发布到事件流供聚合器离线处理。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/api"
	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/cache"
	"github.com/oriys/cirrus/internal/config"
	"github.com/oriys/cirrus/internal/events"
	"github.com/oriys/cirrus/internal/metrics"
	"github.com/oriys/cirrus/internal/retention"
	"github.com/oriys/cirrus/internal/service"
	"github.com/oriys/cirrus/internal/storage"
	"github.com/oriys/cirrus/internal/telemetry"
)

// itemsGaugeInterval 是条目总数指标的刷新间隔。
const itemsGaugeInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "/etc/cirrus/config.yaml", "path to config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	applyLogging(logger, cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 遥测
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
		Environment: cfg.Environment,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize telemetry")
	}
	defer tel.Shutdown(context.Background())
	logger.AddHook(telemetry.NewLogrusHook())

	// 存储
	pg, err := storage.NewPostgresStore(cfg.Storage.Postgres, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer pg.Close()

	rd, err := storage.NewRedisStore(cfg.Storage.Redis, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer rd.Close()

	// 事件流
	bus, err := events.NewEventBus(cfg.Events.URL, cfg.Events.Subject, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer bus.Close()

	// 指标与性能统计
	var prom *metrics.Metrics
	if cfg.Metrics.Enabled {
		prom = metrics.NewMetrics(cfg.Metrics.Namespace)
	}
	perf := metrics.NewPerfTracker(cfg.Metrics.PerfEnabled)

	// 响应缓存
	responseCache := cache.New(cache.Config{
		Enabled:    cfg.Cache.Enabled,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})

	// 保留清理：网关侧只清扫响应缓存，指标行删除由聚合器负责
	if cfg.Retention.Enabled {
		janitor := retention.NewJanitor(nil, responseCache, cfg.Retention.Schedule, logger)
		if err := janitor.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start retention janitor")
		}
		defer janitor.Stop()
	}

	// 配置热更新：只翻转运行时特性开关，其余配置仍需重启生效
	watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
		responseCache.SetEnabled(next.Cache.Enabled)
		perf.SetEnabled(next.Metrics.PerfEnabled)
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Config watcher unavailable, feature flags require restart")
	} else {
		defer watcher.Close()
	}

	// 服务装配
	obs := service.NewObserver(perf, prom)
	authService := service.NewAuthService(pg, rd, auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration), obs, logger)
	itemService := service.NewItemService(pg, pg, responseCache, prom, obs, logger)
	usageService := service.NewUsageService(pg, pg, obs, logger)

	var authMW *auth.Middleware
	if cfg.Auth.Enabled {
		authMW = auth.NewMiddleware(
			auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration),
			rd, pg, cfg.Auth.APIKeyHeader, logger)
	}

	handler := api.NewHandler(authService, itemService, usageService, perf, pg, pg, rd, logger)
	usageRecorder := api.NewUsageRecorder(bus, cfg.Environment, logger)
	statsStream := api.NewStatsStream(perf, logger)
	router := api.NewRouter(handler, authMW, usageRecorder, statsStream, cfg.Telemetry.ServiceName)

	// 条目总数指标刷新
	if prom != nil {
		go func() {
			ticker := time.NewTicker(itemsGaugeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if total, err := pg.CountItems(ctx); err == nil {
						prom.ItemsTotal.Set(float64(total))
					}
				}
			}
		}()
	}

	// 指标服务
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	// 主服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}
	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Server.HTTPPort,
			"environment": cfg.Environment,
		}).Info("Gateway started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Gateway server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Gateway shutdown incomplete")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown incomplete")
	}
}

// applyLogging 按配置调整日志级别与格式。
func applyLogging(logger *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
