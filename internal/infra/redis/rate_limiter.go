package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter: INCR, with EXPIRE set on the first hit.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

func PaymentInitiationKey(userID string) string {
	return fmt.Sprintf("rate_limit:payment_init:%s", userID)
}

// AllowPaymentInitiation applies the per-user checkout limit.
func (r *RateLimiter) AllowPaymentInitiation(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	return r.Allow(ctx, PaymentInitiationKey(userID), limit, window)
}
