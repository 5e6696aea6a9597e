// Package service 实现各 API 操作的业务逻辑。
// 每个操作都是一条分阶段管道：输入校验、业务校验、执行、响应装饰。
// 本文件实现条目的增删改查与列表操作。
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/cache"
	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/metrics"
	"github.com/oriys/cirrus/internal/pipeline"
	"github.com/oriys/cirrus/internal/validation"
)

// 条目操作的上下文元数据键
const (
	metaItem       = "items.item"
	metaItemList   = "items.list"
	metaItemTotal  = "items.total"
	metaValidation = "items.validation"
)

// itemCacheKey 构造单条目响应的缓存键。
func itemCacheKey(id string) string {
	return cache.Key("items", "get", id)
}

// ItemService 提供条目的增删改查操作。
// 服务自身无状态，可被多个 HTTP 处理协程并发调用。
type ItemService struct {
	items  domain.ItemRepository
	users  domain.UserRepository
	cache  *cache.Cache
	prom   *metrics.Metrics
	logger *logrus.Logger

	createPipe *pipeline.Pipeline[*domain.CreateItemRequest]
	getPipe    *pipeline.Pipeline[*domain.GetItemRequest]
	listPipe   *pipeline.Pipeline[*domain.ListItemsRequest]
	updatePipe *pipeline.Pipeline[*domain.UpdateItemRequest]
	deletePipe *pipeline.Pipeline[*domain.DeleteItemRequest]
}

// NewItemService 创建条目服务并装配各操作的管道。
// observer 接入性能统计，prom 接入 Prometheus 指标，两者均可为 nil。
func NewItemService(items domain.ItemRepository, users domain.UserRepository, c *cache.Cache, prom *metrics.Metrics, obs pipeline.Observer, logger *logrus.Logger) *ItemService {
	s := &ItemService{items: items, users: users, cache: c, prom: prom, logger: logger}

	s.createPipe = pipeline.New(s.createOperation(), logger).WithObserver(obs)
	s.getPipe = pipeline.New(s.getOperation(), logger).WithObserver(obs)
	s.listPipe = pipeline.New(s.listOperation(), logger).WithObserver(obs)
	s.updatePipe = pipeline.New(s.updateOperation(), logger).WithObserver(obs)
	s.deletePipe = pipeline.New(s.deleteOperation(), logger).WithObserver(obs)

	return s
}

// Create 创建条目。
func (s *ItemService) Create(ctx context.Context, req *domain.CreateItemRequest) (pipeline.Response, error) {
	return s.createPipe.Run(ctx, req)
}

// Get 查询单个条目。
func (s *ItemService) Get(ctx context.Context, req *domain.GetItemRequest) (pipeline.Response, error) {
	return s.getPipe.Run(ctx, req)
}

// List 分页查询条目列表。
func (s *ItemService) List(ctx context.Context, req *domain.ListItemsRequest) (pipeline.Response, error) {
	return s.listPipe.Run(ctx, req)
}

// Update 更新条目内容。
func (s *ItemService) Update(ctx context.Context, req *domain.UpdateItemRequest) (pipeline.Response, error) {
	return s.updatePipe.Run(ctx, req)
}

// Delete 删除条目。
func (s *ItemService) Delete(ctx context.Context, req *domain.DeleteItemRequest) (pipeline.Response, error) {
	return s.deletePipe.Run(ctx, req)
}

// ========== 创建条目 ==========

func (s *ItemService) createOperation() pipeline.Operation[*domain.CreateItemRequest] {
	return pipeline.Operation[*domain.CreateItemRequest]{
		Name: "items.create",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.CreateItemRequest) error {
			// 创建走全量收集模式，把完整诊断留在上下文里供装饰阶段使用
			res := req.ValidateAll()
			sc.Set(metaValidation, res)
			if !res.IsValid() {
				return req.Validate()
			}
			return nil
		},
		ValidateBusiness: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.CreateItemRequest) error {
			if _, err := s.users.GetUserByID(ctx, req.UserID); err != nil {
				return err
			}
			if domain.ViolatesContentPolicy(req.Message) {
				return domain.ErrContentPolicy
			}
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.CreateItemRequest) error {
			now := time.Now()
			item := &domain.Item{
				ID:        "item-" + uuid.New().String(),
				Message:   req.Message,
				UserID:    req.UserID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.items.CreateItem(ctx, item); err != nil {
				return err
			}
			sc.Set(metaItem, item)
			sc.Set(pipeline.MetaEntityID, item.ID)
			sc.Set(pipeline.MetaUserID, item.UserID)
			return nil
		},
		BuildResponse: s.itemResponse,
		Decorate: func(sc *pipeline.ServiceContext, resp pipeline.Response) error {
			s.decorateItem(sc, resp)
			// 预热缓存：新建条目大概率马上被读取
			if item, ok := itemFromContext(sc); ok {
				s.cache.Set(itemCacheKey(item.ID), item)
			}
			return nil
		},
	}
}

// ========== 查询条目 ==========

func (s *ItemService) getOperation() pipeline.Operation[*domain.GetItemRequest] {
	return pipeline.Operation[*domain.GetItemRequest]{
		Name: "items.get",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.GetItemRequest) error {
			return req.Validate()
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.GetItemRequest) error {
			if cached, ok := s.cache.Get(itemCacheKey(req.ItemID)); ok {
				if item, ok := cached.(*domain.Item); ok {
					if s.prom != nil {
						s.prom.CacheHits.Inc()
					}
					sc.Set(metaItem, item)
					sc.Set(pipeline.MetaEntityID, item.ID)
					return nil
				}
			}
			if s.prom != nil {
				s.prom.CacheMisses.Inc()
			}

			item, err := s.items.GetItem(ctx, req.ItemID)
			if err != nil {
				return err
			}
			s.cache.Set(itemCacheKey(item.ID), item)
			sc.Set(metaItem, item)
			sc.Set(pipeline.MetaEntityID, item.ID)
			return nil
		},
		BuildResponse: s.itemResponse,
		Decorate: func(sc *pipeline.ServiceContext, resp pipeline.Response) error {
			s.decorateItem(sc, resp)
			return nil
		},
	}
}

// ========== 条目列表 ==========

func (s *ItemService) listOperation() pipeline.Operation[*domain.ListItemsRequest] {
	return pipeline.Operation[*domain.ListItemsRequest]{
		Name: "items.list",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.ListItemsRequest) error {
			req.Normalize()
			res := req.ValidateAll()
			sc.Set(metaValidation, res)
			if !res.IsValid() {
				return req.Validate()
			}
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.ListItemsRequest) error {
			items, total, err := s.items.ListItems(ctx, req.UserID, req.Offset, req.Limit)
			if err != nil {
				return err
			}
			sc.Set(metaItemList, items)
			sc.Set(metaItemTotal, total)
			sc.Set(pipeline.MetaUserID, req.UserID)
			sc.Set("items.offset", req.Offset)
			sc.Set("items.limit", req.Limit)
			return nil
		},
		BuildResponse: func(sc *pipeline.ServiceContext) pipeline.Response {
			items, _ := sc.Get(metaItemList)
			total, _ := sc.Get(metaItemTotal)
			offset, _ := sc.Get("items.offset")
			limit, _ := sc.Get("items.limit")
			list, _ := items.([]*domain.Item)
			if list == nil {
				list = []*domain.Item{}
			}
			return pipeline.Response{
				"items":  list,
				"total":  total,
				"offset": offset,
				"limit":  limit,
			}
		},
		Decorate: func(sc *pipeline.ServiceContext, resp pipeline.Response) error {
			if list, ok := resp["items"].([]*domain.Item); ok {
				resp["count"] = len(list)
			}
			// 大分页等校验告警与单条目响应同样对客户端可见
			if v, ok := sc.Get(metaValidation); ok {
				if res, ok := v.(*validation.Result); ok && res.HasWarnings() {
					resp["warnings"] = res.Warnings()
				}
			}
			return nil
		},
	}
}

// ========== 更新条目 ==========

func (s *ItemService) updateOperation() pipeline.Operation[*domain.UpdateItemRequest] {
	return pipeline.Operation[*domain.UpdateItemRequest]{
		Name: "items.update",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.UpdateItemRequest) error {
			res := req.ValidateAll()
			sc.Set(metaValidation, res)
			if !res.IsValid() {
				return req.Validate()
			}
			return nil
		},
		ValidateBusiness: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.UpdateItemRequest) error {
			item, err := s.items.GetItem(ctx, req.ItemID)
			if err != nil {
				return err
			}
			if item.UserID != req.UserID {
				return domain.ErrItemForbidden
			}
			if domain.ViolatesContentPolicy(req.Message) {
				return domain.ErrContentPolicy
			}
			sc.Set(metaItem, item)
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.UpdateItemRequest) error {
			item, _ := itemFromContext(sc)
			item.Message = req.Message
			item.UpdatedAt = time.Now()
			if err := s.items.UpdateItem(ctx, item); err != nil {
				return err
			}
			// 旧缓存条目立即失效，下一次读取回源
			s.cache.Delete(itemCacheKey(item.ID))
			sc.Set(pipeline.MetaEntityID, item.ID)
			sc.Set(pipeline.MetaUserID, item.UserID)
			return nil
		},
		BuildResponse: s.itemResponse,
		Decorate: func(sc *pipeline.ServiceContext, resp pipeline.Response) error {
			s.decorateItem(sc, resp)
			return nil
		},
	}
}

// ========== 删除条目 ==========

func (s *ItemService) deleteOperation() pipeline.Operation[*domain.DeleteItemRequest] {
	return pipeline.Operation[*domain.DeleteItemRequest]{
		Name: "items.delete",
		ValidateInput: func(sc *pipeline.ServiceContext, req *domain.DeleteItemRequest) error {
			return req.Validate()
		},
		ValidateBusiness: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.DeleteItemRequest) error {
			item, err := s.items.GetItem(ctx, req.ItemID)
			if err != nil {
				return err
			}
			if item.UserID != req.UserID {
				return domain.ErrItemForbidden
			}
			return nil
		},
		Execute: func(ctx context.Context, sc *pipeline.ServiceContext, req *domain.DeleteItemRequest) error {
			if err := s.items.DeleteItem(ctx, req.ItemID); err != nil {
				return err
			}
			s.cache.Delete(itemCacheKey(req.ItemID))
			sc.Set(pipeline.MetaEntityID, req.ItemID)
			sc.Set(pipeline.MetaUserID, req.UserID)
			return nil
		},
		BuildResponse: func(sc *pipeline.ServiceContext) pipeline.Response {
			return pipeline.Response{
				"deleted": true,
				"id":      sc.GetString(pipeline.MetaEntityID),
			}
		},
	}
}

// ========== 响应构建辅助 ==========

// itemFromContext 从服务上下文取出当前操作涉及的条目。
func itemFromContext(sc *pipeline.ServiceContext) (*domain.Item, bool) {
	v, ok := sc.Get(metaItem)
	if !ok {
		return nil, false
	}
	item, ok := v.(*domain.Item)
	return item, ok
}

// itemResponse 从上下文字段构建单条目响应。
func (s *ItemService) itemResponse(sc *pipeline.ServiceContext) pipeline.Response {
	item, ok := itemFromContext(sc)
	if !ok {
		return pipeline.Response{}
	}
	return pipeline.Response{
		"id":        item.ID,
		"message":   item.Message,
		"userId":    item.UserID,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}

// decorateItem 为单条目响应附加计算字段与校验告警。
func (s *ItemService) decorateItem(sc *pipeline.ServiceContext, resp pipeline.Response) {
	if item, ok := itemFromContext(sc); ok {
		resp["messageLength"] = len(item.Message)
	}
	if v, ok := sc.Get(metaValidation); ok {
		if res, ok := v.(*validation.Result); ok && res.HasWarnings() {
			resp["warnings"] = res.Warnings()
		}
	}
}
