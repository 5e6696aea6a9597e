// aggregator 是使用事件的聚合进程。
// 它从事件流批量拉取使用事件，逐条校验并落库指标记录，
// 更新洞察计数器，并定期清理过期数据。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/analytics"
	"github.com/oriys/cirrus/internal/config"
	"github.com/oriys/cirrus/internal/events"
	"github.com/oriys/cirrus/internal/metrics"
	"github.com/oriys/cirrus/internal/retention"
	"github.com/oriys/cirrus/internal/storage"
	"github.com/oriys/cirrus/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "/etc/cirrus/config.yaml", "path to config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 遥测
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: "cirrus-aggregator",
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

	// 事件流
	bus, err := events.NewEventBus(cfg.Events.URL, cfg.Events.Subject, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer bus.Close()

	// 指标
	var prom *metrics.Metrics
	if cfg.Metrics.Enabled {
		prom = metrics.NewMetrics(cfg.Metrics.Namespace + "_aggregator")
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler: promhttp.Handler(),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// 保留清理
	if cfg.Retention.Enabled {
		janitor := retention.NewJanitor(pg, nil, cfg.Retention.Schedule, logger)
		if err := janitor.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start retention janitor")
		}
		defer janitor.Stop()
	}

	// 聚合消费
	engine := analytics.NewEngine(pg, pg, prom, logger).WithTracer(tel.Tracer("analytics"))
	consumer := analytics.NewConsumer(bus, engine,
		cfg.Events.Durable, cfg.Aggregator.BatchSize, cfg.Aggregator.MaxWait, logger)

	logger.WithField("environment", cfg.Environment).Info("Aggregator started")
	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Consumer failed")
	}
	logger.Info("Aggregator stopped")
}
