package model

import (
	"time"

	"github.com/google/uuid"

	"edu-checkout/internal/domain"
)

// Enrollment is the entitlement granted by a successful payment.
// At most one exists per (user, target).
type Enrollment struct {
	ID        string
	UserID    string
	Target    PurchaseTarget
	PaymentID string
	CreatedAt time.Time
}

func NewEnrollment(userID string, target PurchaseTarget, paymentID string) (*Enrollment, error) {
	if userID == "" || paymentID == "" || !target.GrantsEnrollment() {
		return nil, domain.ErrInvalidArgument
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return &Enrollment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Target:    target,
		PaymentID: paymentID,
		CreatedAt: time.Now(),
	}, nil
}

// NotificationKind labels entries in the per-payment notification log.
type NotificationKind string

const NotificationPaymentConfirmation NotificationKind = "payment_confirmation"
