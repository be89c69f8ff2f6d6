package repository

import (
	"context"

	"edu-checkout/internal/domain/model"
)

// -----------------------------
// Coupons
// -----------------------------

type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
	// FindByCode is case-insensitive.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	IncrementUsage(ctx context.Context, tx Tx, id string) error
}
