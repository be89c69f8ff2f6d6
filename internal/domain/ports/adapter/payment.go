package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain/model"
)

// Gateway transaction states as reported by execute/query.
const (
	TransactionInitiated = "Initiated"
	TransactionCompleted = "Completed"
	TransactionCancelled = "Cancelled"
	TransactionFailed    = "Failed"
)

// CreatePaymentRequest describes a checkout session to open at the gateway.
type CreatePaymentRequest struct {
	OrderID        string // merchant invoice number
	Amount         decimal.Decimal
	Currency       string
	PayerReference string
	CallbackURL    string
}

type CreatePaymentResult struct {
	PaymentID   string
	RedirectURL string
	Status      string
}

// TransactionResult is the gateway's view of a payment after execute or query.
type TransactionResult struct {
	PaymentID         string
	TrxID             string
	TransactionStatus string
	Amount            decimal.Decimal
	Currency          string
	CompletedAt       time.Time
}

func (r TransactionResult) Completed() bool { return r.TransactionStatus == TransactionCompleted }

type RefundRequest struct {
	PaymentID string
	TrxID     string
	Amount    decimal.Decimal
	Reason    string
	SKU       string
}

// RefundResult captures a minimal, provider-agnostic result of a refund request.
type RefundResult struct {
	RefundTrxID       string
	TransactionStatus string
	Amount            decimal.Decimal
	CompletedAt       time.Time
}

// TokenSource issues gateway bearer tokens.
type TokenSource interface {
	GrantToken(ctx context.Context) (*model.GatewayToken, error)
	RefreshToken(ctx context.Context, refreshToken string) (*model.GatewayToken, error)
}

// PaymentGateway is the hex port for the payment provider. Synchronous
// rejections are *domain.GatewayError; transport failures are plain errors.
type PaymentGateway interface {
	TokenSource
	Name() string

	// CreatePayment opens a checkout session and returns the payer redirect URL.
	CreatePayment(ctx context.Context, token string, req CreatePaymentRequest) (CreatePaymentResult, error)
	// ExecutePayment confirms a payment the payer approved.
	ExecutePayment(ctx context.Context, token, paymentID string) (TransactionResult, error)
	// QueryPayment reads the current state without changing it.
	QueryPayment(ctx context.Context, token, paymentID string) (TransactionResult, error)
	RefundPayment(ctx context.Context, token string, req RefundRequest) (RefundResult, error)
}
