package repository

import (
	"context"
	"time"

	"edu-checkout/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

// StatusChange carries the columns written together with a status transition.
// Nil fields leave the stored value untouched.
type StatusChange struct {
	TrxID         *string
	PaidAt        *time.Time
	FailureReason *string
	Verified      bool
}

type PaymentRepository interface {
	// Save inserts a new record. A duplicate order id yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Payment, error)
	FindByGatewayPaymentID(ctx context.Context, tx Tx, gatewayPaymentID string) (*model.Payment, error)
	FindByTrxID(ctx context.Context, tx Tx, trxID string) (*model.Payment, error)

	// AttachGateway stores the provider payment id and redirect URL on a pending record.
	// It never overwrites a different, already assigned gateway payment id.
	AttachGateway(ctx context.Context, tx Tx, id, gatewayPaymentID, redirectURL string) error

	// TransitionStatus is a compare-and-swap: it updates the row only while its
	// status still equals from, and reports whether this call won.
	TransitionStatus(ctx context.Context, tx Tx, id string, from, to model.PaymentStatus, change StatusChange) (bool, error)

	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	// CountCouponUses counts successful or refunded payments by userID that used couponID.
	CountCouponUses(ctx context.Context, tx Tx, couponID, userID string) (int, error)
}
