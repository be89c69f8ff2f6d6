package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*LocalGateway)(nil)

// LocalGateway is an in-memory stand-in for bKash used in local runs and
// tests. Every created payment completes on execute unless Decline was
// called for it first.
type LocalGateway struct {
	mu       sync.Mutex
	seq      int64
	baseURL  string
	payments map[string]*localPayment
	tokens   int
}

type localPayment struct {
	orderID  string
	amount   decimal.Decimal
	currency string
	status   string
	trxID    string
	declined bool
}

func NewLocalGateway(baseURL string) *LocalGateway {
	if baseURL == "" {
		baseURL = "http://localhost:8080/local-bkash"
	}
	return &LocalGateway{baseURL: baseURL, payments: make(map[string]*localPayment)}
}

func (g *LocalGateway) Name() string { return "local" }

func (g *LocalGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s%06d", prefix, g.seq)
}

func (g *LocalGateway) GrantToken(ctx context.Context) (*model.GatewayToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens++
	now := time.Now()
	return &model.GatewayToken{
		IDToken:      g.next("tok-"),
		RefreshToken: g.next("rf-"),
		TokenType:    "Bearer",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}, nil
}

func (g *LocalGateway) RefreshToken(ctx context.Context, refreshToken string) (*model.GatewayToken, error) {
	return g.GrantToken(ctx)
}

// Grants reports how many tokens were issued.
func (g *LocalGateway) Grants() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens
}

func (g *LocalGateway) CreatePayment(ctx context.Context, token string, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	if token == "" {
		return adapter.CreatePaymentResult{}, domain.ErrGatewayAuth
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("TR0011L")
	lp := &localPayment{orderID: req.OrderID, amount: req.Amount, currency: req.Currency, status: adapter.TransactionInitiated}
	g.payments[id] = lp
	return adapter.CreatePaymentResult{
		PaymentID:   id,
		RedirectURL: fmt.Sprintf("%s/pay/%s", g.baseURL, id),
		Status:      adapter.TransactionInitiated,
	}, nil
}

// Decline makes the next execute of paymentID fail.
func (g *LocalGateway) Decline(paymentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lp, ok := g.payments[paymentID]; ok {
		lp.declined = true
	}
}

func (g *LocalGateway) ExecutePayment(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lp, ok := g.payments[paymentID]
	if !ok {
		return adapter.TransactionResult{}, &domain.GatewayError{Op: "execute", Code: "2023", Message: "invalid paymentID"}
	}
	if lp.status == adapter.TransactionInitiated {
		if lp.declined {
			lp.status = adapter.TransactionFailed
		} else {
			lp.status = adapter.TransactionCompleted
			lp.trxID = g.next("TRX")
		}
	}
	return g.result(paymentID, lp), nil
}

func (g *LocalGateway) QueryPayment(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lp, ok := g.payments[paymentID]
	if !ok {
		return adapter.TransactionResult{}, &domain.GatewayError{Op: "query", Code: "2023", Message: "invalid paymentID"}
	}
	return g.result(paymentID, lp), nil
}

func (g *LocalGateway) result(paymentID string, lp *localPayment) adapter.TransactionResult {
	return adapter.TransactionResult{
		PaymentID:         paymentID,
		TrxID:             lp.trxID,
		TransactionStatus: lp.status,
		Amount:            lp.amount,
		Currency:          lp.currency,
		CompletedAt:       time.Now(),
	}
}

func (g *LocalGateway) RefundPayment(ctx context.Context, token string, req adapter.RefundRequest) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lp, ok := g.payments[req.PaymentID]
	if !ok || lp.status != adapter.TransactionCompleted {
		return adapter.RefundResult{}, &domain.GatewayError{Op: "refund", Code: "2071", Message: "transaction not refundable"}
	}
	return adapter.RefundResult{
		RefundTrxID:       g.next("RFD"),
		TransactionStatus: adapter.TransactionCompleted,
		Amount:            req.Amount,
		CompletedAt:       time.Now(),
	}, nil
}
