//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

func TestCatalogRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	item := &model.CatalogItem{ID: "go-101", Kind: model.TargetCourse, Title: "Go 101", Price: decimal.NewFromInt(1500), Currency: "BDT", Active: true}
	itemJSON, _ := json.Marshal(item)

	t.Run("FindByTarget should return from cache on hit", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "catalog:course:go-101" {
					t.Errorf("unexpected cache key %q", key)
				}
				return string(itemJSON), nil
			},
		}
		innerCalled := false
		inner := &mockInnerCatalogRepo{
			FindByTargetFunc: func(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
				innerCalled = true
				return nil, nil
			},
		}

		got, err := NewCatalogRepoCacheDecorator(inner, mockRedis, 0, &logger).FindByTarget(ctx, nil, item.Target())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if got == nil || got.ID != "go-101" || !got.Price.Equal(item.Price) {
			t.Errorf("did not return the cached item: %+v", got)
		}
	})

	t.Run("FindByTarget should fill the cache on miss", func(t *testing.T) {
		var stored string
		var cachedKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				cachedKey = key
				return nil
			},
		}
		inner := &mockInnerCatalogRepo{
			FindByTargetFunc: func(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
				stored = target.ID
				return item, nil
			},
		}
		got, err := NewCatalogRepoCacheDecorator(inner, mockRedis, 0, &logger).FindByTarget(ctx, nil, item.Target())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stored != "go-101" || got.Title != "Go 101" {
			t.Errorf("expected inner lookup, got %+v", got)
		}
		if cachedKey != "catalog:course:go-101" {
			t.Errorf("expected the item to be cached, got key %q", cachedKey)
		}
	})

	t.Run("FindByTarget should bypass the cache inside a transaction", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				t.Error("cache must not be read inside a transaction")
				return "", redis.Nil
			},
		}
		inner := &mockInnerCatalogRepo{
			FindByTargetFunc: func(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
				return item, nil
			},
		}
		if _, err := NewCatalogRepoCacheDecorator(inner, mockRedis, 0, &logger).FindByTarget(ctx, struct{}{}, item.Target()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("FindByTarget should not cache not-found", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
		}
		inner := &mockInnerCatalogRepo{
			FindByTargetFunc: func(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
				return nil, domain.ErrNotFound
			},
		}
		_, err := NewCatalogRepoCacheDecorator(inner, mockRedis, 0, &logger).FindByTarget(ctx, nil, model.CourseTarget("missing"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Save should invalidate the cache", func(t *testing.T) {
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		inner := &mockInnerCatalogRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, item *model.CatalogItem) error { return nil },
		}
		if err := NewCatalogRepoCacheDecorator(inner, mockRedis, 0, &logger).Save(ctx, nil, item); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 1 || deletedKeys[0] != "catalog:course:go-101" {
			t.Fatalf("expected the item key to be deleted, got %v", deletedKeys)
		}
	})
}

func TestUserRepoCacheDecorator_FindByID(t *testing.T) {
	ctx := context.Background()
	u := &model.User{ID: "u-1", Name: "Karim", Email: "karim@example.com"}
	userJSON, _ := json.Marshal(u)

	mockRedis := &mockRedisClient{
		GetFunc: func(ctx context.Context, key string) (string, error) { return string(userJSON), nil },
	}
	inner := &mockInnerUserRepo{
		FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
			t.Error("inner repository should not be called on a cache hit")
			return nil, nil
		},
	}
	got, err := NewUserRepoCacheDecorator(inner, mockRedis, 0).FindByID(ctx, nil, "u-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Email != "karim@example.com" {
		t.Errorf("unexpected user %+v", got)
	}
}
