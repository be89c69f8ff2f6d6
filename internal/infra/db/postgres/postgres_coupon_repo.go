package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct{ pool *pgxpool.Pool }

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (
  id, code, discount_type, discount_value, min_order_amount, max_uses, max_uses_per_user,
  used_count, applies_to, starts_at, ends_at, active, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  code=$2, discount_type=$3, discount_value=$4, min_order_amount=$5, max_uses=$6,
  max_uses_per_user=$7, applies_to=$9, starts_at=$10, ends_at=$11, active=$12, updated_at=$14;`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue.String(), c.MinOrderAmount.String(),
		c.MaxUses, c.MaxUsesPerUser, c.UsedCount, string(c.AppliesTo), c.StartsAt, c.EndsAt,
		c.Active, c.CreatedAt, c.UpdatedAt)
	return mapExecErr(err)
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `
SELECT id, code, discount_type, discount_value::text, min_order_amount::text, max_uses,
       max_uses_per_user, used_count, applies_to, starts_at, ends_at, active, created_at, updated_at
  FROM coupons WHERE LOWER(code) = LOWER($1);`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	var (
		c                  model.Coupon
		dtype, appliesTo   string
		value, minOrderAmt string
	)
	if err := row.Scan(&c.ID, &c.Code, &dtype, &value, &minOrderAmt, &c.MaxUses, &c.MaxUsesPerUser,
		&c.UsedCount, &appliesTo, &c.StartsAt, &c.EndsAt, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	c.DiscountType = model.DiscountType(dtype)
	c.AppliesTo = model.TargetKind(appliesTo)
	if c.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if c.MinOrderAmount, err = decimal.NewFromString(minOrderAmt); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &c, nil
}

func (r *couponRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE coupons SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
