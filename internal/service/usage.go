// Package service 实现各 API 操作的业务逻辑。
// 本文件实现使用分析的查询操作：洞察计数器汇总与指标记录查询。
package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/pipeline"
)

// 使用分析操作的上下文元数据键
const (
	metaCounters = "usage.counters"
	metaMetrics  = "usage.metrics"
)

// DefaultMetricsQueryLimit 是指标查询的默认返回条数。
const DefaultMetricsQueryLimit = 100

// StatsRequest 表示洞察计数器查询请求。
type StatsRequest struct {
	// DeveloperID 是要查询的开发者标识（API Key）
	DeveloperID string `json:"-"`
}

// MetricsQueryRequest 表示指标记录查询请求。
type MetricsQueryRequest struct {
	// MetricType 是要查询的指标类型
	MetricType string `json:"metricType"`
	// From 是起始时间（Unix 秒级时间戳，含）
	From int64 `json:"from"`
	// To 是结束时间（Unix 秒级时间戳，含）
	To int64 `json:"to"`
	// Limit 是最大返回条数，0 表示默认值
	Limit int `json:"limit"`
}

// UsageService 提供使用分析的查询操作。
type UsageService struct {
	counters domain.CounterRepository
	metrics  domain.MetricRepository
	logger   *logrus.Logger

	statsPipe *pipeline.Pipeline[*StatsRequest]
	queryPipe *pipeline.Pipeline[*MetricsQueryRequest]
}

// NewUsageService 创建使用分析服务并装配管道。
func NewUsageService(counters domain.CounterRepository, metricStore domain.MetricRepository, obs pipeline.Observer, logger *logrus.Logger) *UsageService {
	s := &UsageService{counters: counters, metrics: metricStore, logger: logger}

	s.statsPipe = pipeline.New(s.statsOperation(), logger).WithObserver(obs)
	s.queryPipe = pipeline.New(s.queryOperation(), logger).WithObserver(obs)

	return s
}

// Stats 查询开发者的全部洞察计数器。
func (s *UsageService) Stats(ctx context.Context, req *StatsRequest) (pipeline.Response, error) {
	return s.statsPipe.Run(ctx, req)
}

// QueryMetrics 按类型与时间范围查询指标记录。
func (s *UsageService) QueryMetrics(ctx context.Context, req *MetricsQueryRequest) (pipeline.Response, error) {
	return s.queryPipe.Run(ctx, req)
}

// ========== 洞察计数器查询 ==========

func (s *UsageService) statsOperation() pipeline.Operation[*StatsRequest] {
	return pipeline.Operation[*StatsRequest]{
		Name: "usage.stats",
		ValidateInput: func(sc *pipeline.ServiceContext, req *StatsRequest) error {
			if req.DeveloperID == "" {
				return domain.ErrUserIDRequired
			}
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *StatsRequest) error {
			counters, err := s.counters.ListCounters(ctx, req.DeveloperID)
			if err != nil {
				return err
			}
			sc.Set(metaCounters, counters)
			sc.Set(pipeline.MetaUserID, req.DeveloperID)
			return nil
		},
		BuildResponse: func(sc *pipeline.ServiceContext) pipeline.Response {
			v, _ := sc.Get(metaCounters)
			counters, _ := v.([]*domain.InsightCounter)
			if counters == nil {
				counters = []*domain.InsightCounter{}
			}
			return pipeline.Response{"counters": counters}
		},
		Decorate: func(sc *pipeline.ServiceContext, resp pipeline.Response) error {
			counters, ok := resp["counters"].([]*domain.InsightCounter)
			if !ok {
				return nil
			}
			// 按洞察类别汇总，便于控制台直接展示
			byType := make(map[string]int64)
			for _, c := range counters {
				insightType := c.InsightKey
				if i := strings.Index(c.InsightKey, "#"); i > 0 {
					insightType = c.InsightKey[:i]
				}
				byType[insightType] += c.Count
			}
			resp["totalsByType"] = byType
			return nil
		},
	}
}

// ========== 指标记录查询 ==========

func (s *UsageService) queryOperation() pipeline.Operation[*MetricsQueryRequest] {
	return pipeline.Operation[*MetricsQueryRequest]{
		Name: "usage.metrics",
		ValidateInput: func(sc *pipeline.ServiceContext, req *MetricsQueryRequest) error {
			if strings.TrimSpace(req.MetricType) == "" {
				return domain.ErrMetricTypeRequired
			}
			if req.Limit < 0 || req.Limit > domain.MaxListLimit {
				return domain.ErrInvalidLimit
			}
			if req.Limit == 0 {
				req.Limit = DefaultMetricsQueryLimit
			}
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *MetricsQueryRequest) error {
			records, err := s.metrics.QueryMetrics(ctx, req.MetricType, req.From, req.To, req.Limit)
			if err != nil {
				return err
			}
			sc.Set(metaMetrics, records)
			return nil
		},
		BuildResponse: func(sc *pipeline.ServiceContext) pipeline.Response {
			v, _ := sc.Get(metaMetrics)
			records, _ := v.([]*domain.UsageMetric)
			if records == nil {
				records = []*domain.UsageMetric{}
			}
			return pipeline.Response{
				"metrics": records,
				"count":   len(records),
			}
		},
	}
}
