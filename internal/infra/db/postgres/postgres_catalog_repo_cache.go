package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
	"edu-checkout/internal/infra/metrics"
	red "edu-checkout/internal/infra/redis"
)

var (
	_ repository.CatalogRepository = (*catalogRepoCacheDecorator)(nil)
	_ repository.UserRepository    = (*userRepoCacheDecorator)(nil)
)

type catalogRepoCacheDecorator struct {
	inner repository.CatalogRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewCatalogRepoCacheDecorator(inner repository.CatalogRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.CatalogRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &catalogRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func catalogKey(t model.PurchaseTarget) string {
	return fmt.Sprintf("catalog:%s:%s", t.Kind, t.ID)
}

func (d *catalogRepoCacheDecorator) FindByTarget(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
	// Row-locking reads inside a transaction skip the cache.
	if tx != nil {
		return d.inner.FindByTarget(ctx, tx, target)
	}
	key := catalogKey(target)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var item model.CatalogItem
		if json.Unmarshal([]byte(val), &item) == nil {
			metrics.IncCacheRequest("catalog", "hit")
			return &item, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	}

	metrics.IncCacheRequest("catalog", "miss")
	item, err := d.inner.FindByTarget(ctx, tx, target)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(item); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return item, nil
}

// Save invalidates before writing.
func (d *catalogRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, item *model.CatalogItem) error {
	_ = d.cache.Del(ctx, catalogKey(item.Target()))
	return d.inner.Save(ctx, tx, item)
}

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	_ = d.cache.Del(ctx, "user:id:"+u.ID)
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	key := "user:id:" + id
	if val, err := d.cache.Get(ctx, key); err == nil {
		var u model.User
		if json.Unmarshal([]byte(val), &u) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &u, nil
		}
	}

	metrics.IncCacheRequest("user", "miss")
	u, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(u); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return u, nil
}
