package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
)

// Compile-time check
var _ CouponUseCase = (*couponUC)(nil)

// CouponQuote is the server's view of a coupon applied to one purchase.
type CouponQuote struct {
	Code       string
	Applicable bool
	Discount   decimal.Decimal
	Payable    decimal.Decimal
	Reason     domain.CouponReason
	Coupon     *model.Coupon
}

// Err converts a refused quote into a *domain.CouponError, nil otherwise.
func (q *CouponQuote) Err() error {
	if q == nil || q.Applicable {
		return nil
	}
	return &domain.CouponError{Code: q.Code, Reason: q.Reason}
}

type CouponUseCase interface {
	// Quote evaluates code for userID buying target at amount. A refusal is
	// reported in the quote; the error is reserved for lookup failures.
	Quote(ctx context.Context, code, userID string, target model.PurchaseTarget, amount decimal.Decimal) (*CouponQuote, error)
}

type couponUC struct {
	coupons  repository.CouponRepository
	payments repository.PaymentRepository
	log      *zerolog.Logger
	now      func() time.Time
}

func NewCouponUseCase(coupons repository.CouponRepository, payments repository.PaymentRepository, logger *zerolog.Logger) *couponUC {
	return &couponUC{coupons: coupons, payments: payments, log: logger, now: time.Now}
}

func (u *couponUC) Quote(ctx context.Context, code, userID string, target model.PurchaseTarget, amount decimal.Decimal) (*CouponQuote, error) {
	code = strings.TrimSpace(code)
	q := &CouponQuote{Code: code, Discount: decimal.Zero, Payable: amount}

	c, err := u.coupons.FindByCode(ctx, nil, code)
	if errors.Is(err, domain.ErrNotFound) {
		q.Reason = domain.CouponReasonNotFound
		return q, nil
	}
	if err != nil {
		return nil, err
	}

	uses := 0
	if c.MaxUsesPerUser > 0 && isUserID(userID) {
		if uses, err = u.payments.CountCouponUses(ctx, nil, c.ID, userID); err != nil {
			return nil, err
		}
	}

	ev := c.Evaluate(amount, target, uses, u.now())
	q.Coupon = c
	q.Applicable = ev.Applicable
	q.Reason = ev.Reason
	if ev.Applicable {
		q.Discount = ev.Discount
		q.Payable = amount.Sub(ev.Discount)
	}
	u.log.Debug().Str("coupon", c.Code).Bool("applicable", q.Applicable).Str("reason", string(q.Reason)).Msg("coupon quoted")
	return q, nil
}

// isUserID reports whether id can name a user. Unknown ids have no usage.
func isUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
