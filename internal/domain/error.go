package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrOperationFailed    = errors.New("operation failed")

	// Payment initiation
	ErrUserNotFound       = errors.New("user not found")
	ErrTargetNotFound     = errors.New("purchase target not found or not purchasable")
	ErrAmountTooLow       = errors.New("amount is below the minimum purchase unit")
	ErrCouponInvalid      = errors.New("coupon is not applicable")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrGatewayAuth        = errors.New("payment gateway authorization failed")
	ErrRateLimited        = errors.New("too many payment attempts")

	// Payment lifecycle
	ErrUnknownPayment    = errors.New("unknown payment")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrInvalidState      = errors.New("payment is not in a valid state for this operation")
	ErrImmutableField    = errors.New("gateway payment id is already set")

	ErrLockNotAcquired = errors.New("lock not acquired")
)

// CouponReason is a machine readable explanation of why a coupon was refused.
type CouponReason string

const (
	CouponReasonNotFound         CouponReason = "not_found"
	CouponReasonInactive         CouponReason = "inactive"
	CouponReasonNotStarted       CouponReason = "not_started"
	CouponReasonExpired          CouponReason = "expired"
	CouponReasonUsageExhausted   CouponReason = "usage_exhausted"
	CouponReasonUserLimitReached CouponReason = "user_limit_reached"
	CouponReasonBelowMinimum     CouponReason = "below_minimum"
	CouponReasonWrongTarget      CouponReason = "wrong_target"
	CouponReasonDiscountMismatch CouponReason = "discount_mismatch"
)

// CouponError carries the specific rejection reason. errors.Is(err, ErrCouponInvalid) holds.
type CouponError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

func (e *CouponError) Unwrap() error { return ErrCouponInvalid }

// GatewayError is a synchronous rejection reported by the payment provider.
// Code and Message are the provider's raw values.
type GatewayError struct {
	Op      string
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: code=%s message=%s", e.Op, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return ErrGatewayRejected }
