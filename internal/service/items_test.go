package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/cache"
	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/pipeline"
	"github.com/oriys/cirrus/internal/validation"
)

// fakeItemRepo 是内存实现的条目存储。
type fakeItemRepo struct {
	mu      sync.Mutex
	items   map[string]*domain.Item
	writes  int
	reads   int
	failErr error
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string]*domain.Item)}
}

func (r *fakeItemRepo) CreateItem(ctx context.Context, item *domain.Item) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeItemRepo) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *fakeItemRepo) ListItems(ctx context.Context, userID string, offset, limit int) ([]*domain.Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*domain.Item
	for _, item := range r.items {
		if item.UserID == userID {
			cp := *item
			list = append(list, &cp)
		}
	}
	return list, len(list), nil
}

func (r *fakeItemRepo) UpdateItem(ctx context.Context, item *domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return domain.ErrItemNotFound
	}
	r.writes++
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeItemRepo) DeleteItem(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrItemNotFound
	}
	r.writes++
	delete(r.items, id)
	return nil
}

// fakeUserRepo 是内存实现的用户存储。
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, id := range ids {
		r.users[id] = &domain.User{ID: id, Email: id + "@example.com", Role: "user"}
	}
	return r
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrUserExists
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestItemService(items *fakeItemRepo, users *fakeUserRepo, cacheEnabled bool) *ItemService {
	c := cache.New(cache.Config{Enabled: cacheEnabled, TTL: time.Minute})
	return NewItemService(items, users, c, nil, nil, testLogger())
}

func TestItemCreateEndToEnd(t *testing.T) {
	items := newFakeItemRepo()
	svc := newTestItemService(items, newFakeUserRepo("user-123"), false)

	resp, err := svc.Create(context.Background(), &domain.CreateItemRequest{
		Message: "Test item",
		UserID:  "user-123",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if items.writes != 1 {
		t.Errorf("writes = %d, want exactly 1", items.writes)
	}
	if resp["message"] != "Test item" || resp["userId"] != "user-123" {
		t.Errorf("response fields wrong: %v", resp)
	}
	id, _ := resp["id"].(string)
	if !strings.HasPrefix(id, "item-") {
		t.Errorf("id = %q, want item- prefix", id)
	}
	reqID, _ := resp["requestId"].(string)
	if !strings.HasPrefix(reqID, pipeline.RequestIDPrefix) {
		t.Errorf("requestId = %q, want %q prefix", reqID, pipeline.RequestIDPrefix)
	}
	// 装饰阶段附加的计算字段
	if resp["messageLength"] != len("Test item") {
		t.Errorf("messageLength = %v", resp["messageLength"])
	}
}

// 校验失败的请求绝不触达存储写路径
func TestItemCreateRejectionZeroWrites(t *testing.T) {
	tests := []struct {
		name    string
		req     *domain.CreateItemRequest
		wantErr error
	}{
		{"empty message", &domain.CreateItemRequest{UserID: "user-123"}, domain.ErrItemMessageRequired},
		{"oversized message", &domain.CreateItemRequest{Message: strings.Repeat("a", 1001), UserID: "user-123"}, domain.ErrItemMessageTooLong},
		{"unknown user", &domain.CreateItemRequest{Message: "hi", UserID: "ghost"}, domain.ErrUserNotFound},
		{"content policy", &domain.CreateItemRequest{Message: "<script>x</script>", UserID: "user-123"}, domain.ErrContentPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := newFakeItemRepo()
			svc := newTestItemService(items, newFakeUserRepo("user-123"), false)

			_, err := svc.Create(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() = %v, want %v", err, tt.wantErr)
			}
			if items.writes != 0 {
				t.Errorf("writes = %d, want 0", items.writes)
			}
		})
	}
}

func TestItemGetNotFound(t *testing.T) {
	svc := newTestItemService(newFakeItemRepo(), newFakeUserRepo(), false)

	_, err := svc.Get(context.Background(), &domain.GetItemRequest{ItemID: "item-missing"})
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("Get() = %v, want %v", err, domain.ErrItemNotFound)
	}

	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected pipeline error, got %T", err)
	}
	if perr.HTTPStatus() != 404 {
		t.Errorf("HTTPStatus() = %d, want 404", perr.HTTPStatus())
	}
}

// 缓存开启时重复读取命中缓存，不再回源
func TestItemGetServedFromCache(t *testing.T) {
	items := newFakeItemRepo()
	svc := newTestItemService(items, newFakeUserRepo("user-123"), true)

	resp, err := svc.Create(context.Background(), &domain.CreateItemRequest{Message: "cached", UserID: "user-123"})
	if err != nil {
		t.Fatal(err)
	}
	id := resp["id"].(string)
	readsAfterCreate := items.reads

	for i := 0; i < 3; i++ {
		if _, err := svc.Get(context.Background(), &domain.GetItemRequest{ItemID: id}); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}

	if items.reads != readsAfterCreate {
		t.Errorf("repo reads = %d, want %d (all gets should hit cache)", items.reads, readsAfterCreate)
	}
}

func TestItemUpdateOwnership(t *testing.T) {
	items := newFakeItemRepo()
	users := newFakeUserRepo("user-123", "user-456")
	svc := newTestItemService(items, users, false)

	resp, err := svc.Create(context.Background(), &domain.CreateItemRequest{Message: "mine", UserID: "user-123"})
	if err != nil {
		t.Fatal(err)
	}
	id := resp["id"].(string)

	// 他人更新被拒绝
	_, err = svc.Update(context.Background(), &domain.UpdateItemRequest{ItemID: id, Message: "stolen", UserID: "user-456"})
	if !errors.Is(err, domain.ErrItemForbidden) {
		t.Errorf("Update() = %v, want %v", err, domain.ErrItemForbidden)
	}

	// 所有者更新成功
	updated, err := svc.Update(context.Background(), &domain.UpdateItemRequest{ItemID: id, Message: "edited", UserID: "user-123"})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated["message"] != "edited" {
		t.Errorf("message = %v", updated["message"])
	}
}

// 更新后缓存失效，读取返回新内容
func TestItemUpdateInvalidatesCache(t *testing.T) {
	items := newFakeItemRepo()
	svc := newTestItemService(items, newFakeUserRepo("user-123"), true)

	resp, _ := svc.Create(context.Background(), &domain.CreateItemRequest{Message: "v1", UserID: "user-123"})
	id := resp["id"].(string)

	svc.Get(context.Background(), &domain.GetItemRequest{ItemID: id})
	svc.Update(context.Background(), &domain.UpdateItemRequest{ItemID: id, Message: "v2", UserID: "user-123"})

	got, err := svc.Get(context.Background(), &domain.GetItemRequest{ItemID: id})
	if err != nil {
		t.Fatal(err)
	}
	if got["message"] != "v2" {
		t.Errorf("message = %v, want v2 (stale cache served)", got["message"])
	}
}

func TestItemDelete(t *testing.T) {
	items := newFakeItemRepo()
	svc := newTestItemService(items, newFakeUserRepo("user-123", "user-456"), false)

	resp, _ := svc.Create(context.Background(), &domain.CreateItemRequest{Message: "temp", UserID: "user-123"})
	id := resp["id"].(string)

	// 他人删除被拒绝
	if _, err := svc.Delete(context.Background(), &domain.DeleteItemRequest{ItemID: id, UserID: "user-456"}); !errors.Is(err, domain.ErrItemForbidden) {
		t.Errorf("Delete() = %v, want %v", err, domain.ErrItemForbidden)
	}

	deleted, err := svc.Delete(context.Background(), &domain.DeleteItemRequest{ItemID: id, UserID: "user-123"})
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if deleted["deleted"] != true || deleted["id"] != id {
		t.Errorf("delete response = %v", deleted)
	}

	if _, err := svc.Get(context.Background(), &domain.GetItemRequest{ItemID: id}); !errors.Is(err, domain.ErrItemNotFound) {
		t.Error("item still readable after delete")
	}
}

func TestItemList(t *testing.T) {
	items := newFakeItemRepo()
	svc := newTestItemService(items, newFakeUserRepo("user-123"), false)

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(context.Background(), &domain.CreateItemRequest{Message: "entry", UserID: "user-123"}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := svc.List(context.Background(), &domain.ListItemsRequest{UserID: "user-123"})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if resp["total"] != 3 || resp["count"] != 3 {
		t.Errorf("total = %v, count = %v, want 3", resp["total"], resp["count"])
	}
	// 未指定 limit 时使用默认值
	if resp["limit"] != domain.DefaultListLimit {
		t.Errorf("limit = %v, want %d", resp["limit"], domain.DefaultListLimit)
	}
}

// 大分页请求成功返回，且性能告警出现在响应中
func TestItemListLargeLimitWarning(t *testing.T) {
	svc := newTestItemService(newFakeItemRepo(), newFakeUserRepo("user-123"), false)

	resp, err := svc.List(context.Background(), &domain.ListItemsRequest{UserID: "user-123", Limit: 500})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if resp["limit"] != 500 {
		t.Errorf("limit = %v", resp["limit"])
	}

	warnings, ok := resp["warnings"].([]validation.Issue)
	if !ok || len(warnings) == 0 {
		t.Fatalf("warnings = %v, want large limit advisory", resp["warnings"])
	}
	found := false
	for _, w := range warnings {
		if w.Field == "limit" && strings.Contains(w.Message, "large limit") {
			found = true
		}
	}
	if !found {
		t.Errorf("large limit advisory missing from %v", warnings)
	}
}

// 常规分页请求不附带告警字段
func TestItemListNoWarningForNormalLimit(t *testing.T) {
	svc := newTestItemService(newFakeItemRepo(), newFakeUserRepo("user-123"), false)

	resp, err := svc.List(context.Background(), &domain.ListItemsRequest{UserID: "user-123", Limit: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if _, ok := resp["warnings"]; ok {
		t.Errorf("unexpected warnings on normal limit: %v", resp["warnings"])
	}
}
