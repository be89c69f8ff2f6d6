package model

import (
	"time"

	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountAmount     DiscountType = "amount"
)

// Coupon is a discount definition. Payments snapshot its code and the computed
// discount, so later edits never alter historical records.
type Coupon struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxUses        int // 0 = unlimited
	MaxUsesPerUser int // 0 = unlimited
	UsedCount      int
	AppliesTo      TargetKind // "" = any target
	StartsAt       *time.Time
	EndsAt         *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CouponEvaluation is the outcome of checking a coupon against one purchase.
type CouponEvaluation struct {
	Applicable bool
	Discount   decimal.Decimal
	Reason     domain.CouponReason
}

func rejected(r domain.CouponReason) CouponEvaluation {
	return CouponEvaluation{Discount: decimal.Zero, Reason: r}
}

// Evaluate is pure: (coupon, amount, target, prior uses by this user, now) -> evaluation.
func (c *Coupon) Evaluate(amount decimal.Decimal, target PurchaseTarget, userUses int, now time.Time) CouponEvaluation {
	switch {
	case !c.Active:
		return rejected(domain.CouponReasonInactive)
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return rejected(domain.CouponReasonNotStarted)
	case c.EndsAt != nil && !now.Before(*c.EndsAt):
		return rejected(domain.CouponReasonExpired)
	case c.MaxUses > 0 && c.UsedCount >= c.MaxUses:
		return rejected(domain.CouponReasonUsageExhausted)
	case c.MaxUsesPerUser > 0 && userUses >= c.MaxUsesPerUser:
		return rejected(domain.CouponReasonUserLimitReached)
	case c.AppliesTo != "" && c.AppliesTo != target.Kind:
		return rejected(domain.CouponReasonWrongTarget)
	case amount.LessThan(c.MinOrderAmount):
		return rejected(domain.CouponReasonBelowMinimum)
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountAmount:
		discount = c.DiscountValue
	default:
		return rejected(domain.CouponReasonInactive)
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(amount) {
		discount = amount
	}
	return CouponEvaluation{Applicable: true, Discount: discount}
}
