//go:build !integration

package postgres

import (
	"context"
	"time"

	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
	red "edu-checkout/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerCatalogRepo struct {
	SaveFunc         func(ctx context.Context, tx repository.Tx, item *model.CatalogItem) error
	FindByTargetFunc func(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error)
}

func (m *mockInnerCatalogRepo) Save(ctx context.Context, tx repository.Tx, item *model.CatalogItem) error {
	return m.SaveFunc(ctx, tx, item)
}
func (m *mockInnerCatalogRepo) FindByTarget(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
	return m.FindByTargetFunc(ctx, tx, target)
}

type mockInnerUserRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	EvalFunc   func(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return m.EvalFunc(ctx, script, keys, args...)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
