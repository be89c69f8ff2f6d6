package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/config"
	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*BkashGateway)(nil)

const (
	bkashStatusOK   = "0000"
	bkashCheckout   = "0011" // tokenized checkout (URL based) mode
	bkashIntentSale = "sale"

	// Codes bKash returns when the id_token is no longer accepted.
	bkashInvalidToken = "2079"
)

// BkashGateway implements adapter.PaymentGateway against the bKash tokenized
// checkout REST API.
type BkashGateway struct {
	cfg    config.BkashConfig
	client *http.Client
	log    *zerolog.Logger
	now    func() time.Time
}

func NewBkashGateway(cfg config.BkashConfig, logger *zerolog.Logger) (*BkashGateway, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("bkash credentials are incomplete")
	}
	if cfg.GrantURL == "" || cfg.CreateURL == "" || cfg.ExecuteURL == "" {
		return nil, errors.New("bkash endpoints are not configured")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BkashGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    logger,
		now:    time.Now,
	}, nil
}

func (g *BkashGateway) Name() string { return string(model.PaymentChannelBkash) }

// bkashStatus is embedded in every response. Failures use either
// statusCode/statusMessage or errorCode/errorMessage.
type bkashStatus struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

func (s bkashStatus) err(op string) error {
	code, msg := s.StatusCode, s.StatusMessage
	if s.ErrorCode != "" {
		code, msg = s.ErrorCode, s.ErrorMessage
	}
	if code == "" || code == bkashStatusOK {
		return nil
	}
	gwErr := &domain.GatewayError{Op: op, Code: code, Message: msg}
	if code == bkashInvalidToken {
		return fmt.Errorf("%w: %w", domain.ErrGatewayAuth, gwErr)
	}
	return gwErr
}

type tokenResponse struct {
	bkashStatus
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func (g *BkashGateway) GrantToken(ctx context.Context) (*model.GatewayToken, error) {
	body := map[string]string{"app_key": g.cfg.AppKey, "app_secret": g.cfg.AppSecret}
	return g.token(ctx, "grant", g.cfg.GrantURL, body)
}

func (g *BkashGateway) RefreshToken(ctx context.Context, refreshToken string) (*model.GatewayToken, error) {
	if g.cfg.RefreshURL == "" || refreshToken == "" {
		return g.GrantToken(ctx)
	}
	body := map[string]string{"app_key": g.cfg.AppKey, "app_secret": g.cfg.AppSecret, "refresh_token": refreshToken}
	return g.token(ctx, "refresh", g.cfg.RefreshURL, body)
}

func (g *BkashGateway) token(ctx context.Context, op, url string, body any) (*model.GatewayToken, error) {
	headers := map[string]string{"username": g.cfg.Username, "password": g.cfg.Password}
	var out tokenResponse
	if err := g.do(ctx, op, url, headers, body, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayAuth, err)
	}
	if out.IDToken == "" {
		return nil, fmt.Errorf("%w: %s returned no id_token", domain.ErrGatewayAuth, op)
	}
	issued := g.now()
	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &model.GatewayToken{
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		TokenType:    out.TokenType,
		IssuedAt:     issued,
		ExpiresAt:    issued.Add(ttl),
	}, nil
}

func (g *BkashGateway) authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": token, "X-APP-Key": g.cfg.AppKey}
}

type createResponse struct {
	bkashStatus
	PaymentID         string `json:"paymentID"`
	BkashURL          string `json:"bkashURL"`
	TransactionStatus string `json:"transactionStatus"`
}

func (g *BkashGateway) CreatePayment(ctx context.Context, token string, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = g.cfg.CallbackURL
	}
	currency := req.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}
	body := map[string]string{
		"mode":                  bkashCheckout,
		"payerReference":        req.PayerReference,
		"callbackURL":           callback,
		"amount":                req.Amount.StringFixed(2),
		"currency":              currency,
		"intent":                bkashIntentSale,
		"merchantInvoiceNumber": req.OrderID,
	}
	var out createResponse
	if err := g.do(ctx, "create", g.cfg.CreateURL, g.authHeaders(token), body, &out); err != nil {
		return adapter.CreatePaymentResult{}, err
	}
	if out.PaymentID == "" || out.BkashURL == "" {
		return adapter.CreatePaymentResult{}, &domain.GatewayError{Op: "create", Code: "empty_response", Message: "missing paymentID or bkashURL"}
	}
	return adapter.CreatePaymentResult{PaymentID: out.PaymentID, RedirectURL: out.BkashURL, Status: out.TransactionStatus}, nil
}

type transactionResponse struct {
	bkashStatus
	PaymentID          string `json:"paymentID"`
	TrxID              string `json:"trxID"`
	TransactionStatus  string `json:"transactionStatus"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	PaymentExecuteTime string `json:"paymentExecuteTime"`
	// Some responses signal a failed transaction only here.
	VerificationStatus string `json:"verificationStatus"`
}

func (g *BkashGateway) ExecutePayment(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error) {
	var out transactionResponse
	if err := g.do(ctx, "execute", g.cfg.ExecuteURL, g.authHeaders(token), map[string]string{"paymentID": paymentID}, &out); err != nil {
		return adapter.TransactionResult{}, err
	}
	return g.transaction(paymentID, out), nil
}

func (g *BkashGateway) QueryPayment(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error) {
	if g.cfg.QueryURL == "" {
		return adapter.TransactionResult{}, errors.New("bkash query endpoint is not configured")
	}
	var out transactionResponse
	if err := g.do(ctx, "query", g.cfg.QueryURL, g.authHeaders(token), map[string]string{"paymentID": paymentID}, &out); err != nil {
		return adapter.TransactionResult{}, err
	}
	return g.transaction(paymentID, out), nil
}

func (g *BkashGateway) transaction(paymentID string, out transactionResponse) adapter.TransactionResult {
	res := adapter.TransactionResult{
		PaymentID:         out.PaymentID,
		TrxID:             out.TrxID,
		TransactionStatus: out.TransactionStatus,
		Currency:          out.Currency,
		CompletedAt:       parseBkashTime(out.PaymentExecuteTime, g.now()),
	}
	if res.PaymentID == "" {
		res.PaymentID = paymentID
	}
	if amt, err := decimal.NewFromString(out.Amount); err == nil {
		res.Amount = amt
	}
	return res
}

type refundResponse struct {
	bkashStatus
	RefundTrxID       string `json:"refundTrxID"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            string `json:"amount"`
	CompletedTime     string `json:"completedTime"`
}

func (g *BkashGateway) RefundPayment(ctx context.Context, token string, req adapter.RefundRequest) (adapter.RefundResult, error) {
	if g.cfg.RefundURL == "" {
		return adapter.RefundResult{}, errors.New("bkash refund endpoint is not configured")
	}
	body := map[string]string{
		"paymentID": req.PaymentID,
		"trxID":     req.TrxID,
		"amount":    req.Amount.StringFixed(2),
		"sku":       req.SKU,
		"reason":    req.Reason,
	}
	var out refundResponse
	if err := g.do(ctx, "refund", g.cfg.RefundURL, g.authHeaders(token), body, &out); err != nil {
		return adapter.RefundResult{}, err
	}
	res := adapter.RefundResult{
		RefundTrxID:       out.RefundTrxID,
		TransactionStatus: out.TransactionStatus,
		CompletedAt:       parseBkashTime(out.CompletedTime, g.now()),
	}
	if amt, err := decimal.NewFromString(out.Amount); err == nil {
		res.Amount = amt
	}
	return res, nil
}

// statusCarrier lets do() inspect the embedded bkashStatus of any response.
type statusCarrier interface{ status() bkashStatus }

func (s bkashStatus) status() bkashStatus { return s }

// do POSTs body as JSON and decodes the reply into out. Transport problems
// and non-JSON replies are plain errors; a decoded failure status becomes a
// *domain.GatewayError.
func (g *BkashGateway) do(ctx context.Context, op, url string, headers map[string]string, body any, out statusCarrier) (err error) {
	start := time.Now()
	result := "ok"
	defer func() {
		metrics.ObserveGatewayRequest(op, result, time.Since(start).Seconds())
	}()

	b, err := json.Marshal(body)
	if err != nil {
		result = "transport"
		return fmt.Errorf("bkash %s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		result = "transport"
		return fmt.Errorf("bkash %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		result = "transport"
		return fmt.Errorf("bkash %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		result = "transport"
		return fmt.Errorf("bkash %s: read body: %w", op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		result = "rejected"
		return fmt.Errorf("%w: %w", domain.ErrGatewayAuth, &domain.GatewayError{Op: op, Code: fmt.Sprint(resp.StatusCode), Message: snippet(raw)})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		result = "transport"
		return fmt.Errorf("bkash %s: http %d: decode: %w", op, resp.StatusCode, err)
	}
	if gwErr := out.status().err(op); gwErr != nil {
		result = "rejected"
		g.log.Warn().Str("op", op).Err(gwErr).Msg("bkash rejected request")
		return gwErr
	}
	if resp.StatusCode >= 300 {
		result = "transport"
		return fmt.Errorf("bkash %s: http %d: %s", op, resp.StatusCode, snippet(raw))
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// parseBkashTime understands "2023-01-23T15:51:28:776 GMT+0600" as well as RFC3339.
func parseBkashTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if i := strings.LastIndex(s, ":"); i > 0 {
		if sp := strings.Index(s, " GMT"); sp > i {
			// drop the millisecond field bKash separates with a colon
			s = s[:i] + s[sp:]
		}
	}
	if t, err := time.Parse("2006-01-02T15:04:05 GMT-0700", s); err == nil {
		return t
	}
	return fallback
}
