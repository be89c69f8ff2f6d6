package model

import (
	"time"

	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // record written, payer not yet back from gateway
	PaymentStatusSuccessful PaymentStatus = "successful" // confirmed by gateway execute/query
	PaymentStatusFailed     PaymentStatus = "failed"     // rejected, cancelled or not confirmed
	PaymentStatusRefunded   PaymentStatus = "refunded"   // refunded after success
)

// IsTerminal reports whether no callback may move the record any further.
// successful is terminal for callbacks; only an explicit refund may follow it.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccessful, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusSuccessful, PaymentStatusFailed},
	PaymentStatusSuccessful: {PaymentStatusRefunded},
}

// CanTransition is the single source of the lifecycle rules.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentChannel names the provider that moved the money.
type PaymentChannel string

const PaymentChannelBkash PaymentChannel = "bkash"

const DefaultCurrency = "BDT"

// MinimumAmount is the smallest payable amount, one currency unit.
var MinimumAmount = decimal.NewFromInt(1)

// Payment is the local, durable record of one purchase attempt.
type Payment struct {
	ID      string // UUID row id
	OrderID string // locally generated order id (ULID)
	UserID  string
	Target  PurchaseTarget

	Amount   decimal.Decimal // payable amount after discount
	Currency string
	Channel  PaymentChannel

	GatewayPaymentID *string // assigned by the gateway; immutable once set
	GatewayTrxID     *string // transaction id after execution
	RedirectURL      *string

	Status        PaymentStatus
	FailureReason *string // raw gateway error kept for operators
	Verified      bool    // confirmed server-to-server with the gateway

	// Discount snapshot taken at creation.
	CouponID       *string
	CouponCode     *string
	DiscountAmount decimal.Decimal

	PayerName  string
	PayerEmail string
	PayerPhone string

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

// NewPendingPayment validates the purchase and builds a pending record.
func NewPendingPayment(id, orderID, userID string, target PurchaseTarget, amount decimal.Decimal, now time.Time) (*Payment, error) {
	if id == "" || orderID == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if amount.LessThan(MinimumAmount) {
		return nil, domain.ErrAmountTooLow
	}
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		UserID:         userID,
		Target:         target,
		Amount:         amount,
		Currency:       DefaultCurrency,
		Channel:        PaymentChannelBkash,
		Status:         PaymentStatusPending,
		DiscountAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ApplyDiscount snapshots coupon identity and discount onto the record.
func (p *Payment) ApplyDiscount(couponID, code string, discount decimal.Decimal) {
	id, c := couponID, code
	p.CouponID = &id
	p.CouponCode = &c
	p.DiscountAmount = discount
}

// ListAmount is the price before discount.
func (p *Payment) ListAmount() decimal.Decimal {
	return p.Amount.Add(p.DiscountAmount)
}

// Transition applies a lifecycle change in memory, keeping PaidAt consistent.
func (p *Payment) Transition(to PaymentStatus, at time.Time) error {
	if !CanTransition(p.Status, to) {
		return domain.ErrInvalidTransition
	}
	p.Status = to
	p.UpdatedAt = at
	if to == PaymentStatusSuccessful {
		paid := at
		p.PaidAt = &paid
	}
	return nil
}

// AssignGateway records the provider identifiers; the payment id can be set only once.
func (p *Payment) AssignGateway(paymentID, redirectURL string) error {
	if p.GatewayPaymentID != nil && *p.GatewayPaymentID != paymentID {
		return domain.ErrImmutableField
	}
	pid, u := paymentID, redirectURL
	p.GatewayPaymentID = &pid
	p.RedirectURL = &u
	return nil
}

// GatewayID returns the gateway payment id or "".
func (p *Payment) GatewayID() string {
	if p.GatewayPaymentID == nil {
		return ""
	}
	return *p.GatewayPaymentID
}
