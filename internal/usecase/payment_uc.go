package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/domain/ports/repository"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// InitiateRequest is a purchase intent. Amount is the list price the payer
// saw; ClientDiscount, when sent, must match what the server computes.
type InitiateRequest struct {
	UserID         string
	Target         model.PurchaseTarget
	Amount         decimal.Decimal
	PayerName      string
	PayerEmail     string
	PayerPhone     string
	CouponCode     string
	ClientDiscount *decimal.Decimal
}

type InitiateResult struct {
	OrderID     string
	PaymentID   string
	RedirectURL string
	Amount      decimal.Decimal
}

// LookupQuery selects a payment by exactly one identifier.
type LookupQuery struct {
	OrderID   string
	PaymentID string
	TrxID     string
}

type PaymentUseCase interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// Refund returns the money of a successful payment. The enrollment stays.
	Refund(ctx context.Context, orderID, reason string) (*model.Payment, error)
	Lookup(ctx context.Context, q LookupQuery) (*model.Payment, error)
}

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	AllowPaymentInitiation(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}

type PaymentOptions struct {
	CallbackURL     string
	GatewayTimeout  time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
}

type paymentUC struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	catalog  repository.CatalogRepository
	coupons  CouponUseCase
	gateway  adapter.PaymentGateway
	tokens   TokenProvider
	limiter  RateLimiter
	opts     PaymentOptions
	log      *zerolog.Logger

	now        func() time.Time
	newOrderID func() string
}

// NewPaymentUseCase wires initiation, refund and lookups. limiter may be nil.
func NewPaymentUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	catalog repository.CatalogRepository,
	coupons CouponUseCase,
	gateway adapter.PaymentGateway,
	tokens TokenProvider,
	limiter RateLimiter,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 15 * time.Second
	}
	return &paymentUC{
		payments:   payments,
		users:      users,
		catalog:    catalog,
		coupons:    coupons,
		gateway:    gateway,
		tokens:     tokens,
		limiter:    limiter,
		opts:       opts,
		log:        logger,
		now:        time.Now,
		newOrderID: func() string { return ulid.Make().String() },
	}
}

func (u *paymentUC) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()
	ctx = logging.WithUserID(ctx, req.UserID)

	res, err := u.initiate(ctx, req)
	metrics.IncInitiation(initiationResult(err))
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("target", req.Target.String()).Msg("payment initiation failed")
		return nil, err
	}
	return res, nil
}

func (u *paymentUC) initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidArgument)
	}
	if err := req.Target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: exactly one purchase target is required", domain.ErrInvalidArgument)
	}
	if req.Amount.LessThan(model.MinimumAmount) {
		return nil, domain.ErrAmountTooLow
	}

	// user ids are uuids; anything else names no user
	if _, err := uuid.Parse(req.UserID); err != nil {
		return nil, domain.ErrUserNotFound
	}
	user, err := u.users.FindByID(ctx, nil, req.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if req.Target.GrantsEnrollment() {
		item, err := u.catalog.FindByTarget(ctx, nil, req.Target)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && !item.Purchasable()) {
			return nil, domain.ErrTargetNotFound
		}
		if err != nil {
			return nil, err
		}
		if !item.Price.Equal(req.Amount) {
			return nil, fmt.Errorf("%w: amount %s does not match the price of %s", domain.ErrInvalidArgument, req.Amount, req.Target)
		}
	}

	payable := req.Amount
	var quote *CouponQuote
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		if quote, err = u.coupons.Quote(ctx, code, user.ID, req.Target, req.Amount); err != nil {
			return nil, err
		}
		if err := quote.Err(); err != nil {
			return nil, err
		}
		if req.ClientDiscount != nil && !req.ClientDiscount.Equal(quote.Discount) {
			return nil, &domain.CouponError{Code: code, Reason: domain.CouponReasonDiscountMismatch}
		}
		payable = quote.Payable
	}
	if payable.LessThan(model.MinimumAmount) {
		return nil, domain.ErrAmountTooLow
	}

	if u.limiter != nil && u.opts.RateLimit > 0 {
		ok, err := u.limiter.AllowPaymentInitiation(ctx, user.ID, u.opts.RateLimit, u.opts.RateLimitWindow)
		if err != nil {
			// limiter outage must not block checkout
			logging.With(ctx, u.log).Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	p, err := u.savePending(ctx, req, user, payable, quote)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithOrderID(ctx, p.OrderID)
	log := logging.With(ctx, u.log)

	tok, err := u.tokens.Token(ctx)
	if err != nil {
		u.markFailed(ctx, p, "token: "+err.Error())
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}

	gwCtx, cancel := context.WithTimeout(ctx, u.opts.GatewayTimeout)
	defer cancel()
	created, err := u.gateway.CreatePayment(gwCtx, tok.IDToken, adapter.CreatePaymentRequest{
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PayerReference: p.PayerPhone,
		CallbackURL:    u.opts.CallbackURL,
	})
	if err != nil {
		u.markFailed(ctx, p, err.Error())
		var gwErr *domain.GatewayError
		switch {
		case errors.Is(err, domain.ErrGatewayAuth):
			u.tokens.Invalidate(ctx)
			return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
		case errors.As(err, &gwErr):
			return nil, fmt.Errorf("order %s: %w", p.OrderID, gwErr)
		default:
			return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
		}
	}

	if err := p.AssignGateway(created.PaymentID, created.RedirectURL); err != nil {
		u.markFailed(ctx, p, "assign gateway id: "+err.Error())
		return nil, err
	}
	if err := u.payments.AttachGateway(ctx, nil, p.ID, created.PaymentID, created.RedirectURL); err != nil {
		u.markFailed(ctx, p, "attach gateway id: "+err.Error())
		return nil, fmt.Errorf("attach gateway payment %s: %w", created.PaymentID, err)
	}

	log.Info().Str("payment_id", p.GatewayID()).Str("amount", p.Amount.String()).Msg("payment initiated")
	return &InitiateResult{
		OrderID:     p.OrderID,
		PaymentID:   p.GatewayID(),
		RedirectURL: *p.RedirectURL,
		Amount:      p.Amount,
	}, nil
}

// savePending writes the pending record before any gateway call.
func (u *paymentUC) savePending(ctx context.Context, req InitiateRequest, user *model.User, payable decimal.Decimal, quote *CouponQuote) (*model.Payment, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		p, err := model.NewPendingPayment(uuid.NewString(), u.newOrderID(), user.ID, req.Target, payable, u.now())
		if err != nil {
			return nil, err
		}
		if quote != nil && quote.Coupon != nil {
			p.ApplyDiscount(quote.Coupon.ID, quote.Coupon.Code, quote.Discount)
		}
		p.PayerName = firstNonEmpty(req.PayerName, user.Name)
		p.PayerEmail = firstNonEmpty(req.PayerEmail, user.Email)
		p.PayerPhone = firstNonEmpty(req.PayerPhone, user.Phone)

		err = u.payments.Save(ctx, nil, p)
		if err == nil {
			metrics.IncPayment(string(model.PaymentStatusPending))
			return p, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("generate unique order id: %w", lastErr)
}

// markFailed closes a record the gateway never accepted. It runs detached so
// a disconnecting client cannot leave the record pending.
func (u *paymentUC) markFailed(ctx context.Context, p *model.Payment, reason string) {
	ctx = context.WithoutCancel(ctx)
	ok, err := u.payments.TransitionStatus(ctx, nil, p.ID, model.PaymentStatusPending, model.PaymentStatusFailed,
		repository.StatusChange{FailureReason: &reason})
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("mark payment failed")
		return
	}
	if ok {
		metrics.IncPayment(string(model.PaymentStatusFailed))
		p.Status = model.PaymentStatusFailed
		p.FailureReason = &reason
	}
}

func (u *paymentUC) Refund(ctx context.Context, orderID, reason string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Refund")()
	ctx = logging.WithOrderID(ctx, orderID)
	log := logging.With(ctx, u.log)

	p, err := u.payments.FindByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentStatusSuccessful || p.GatewayTrxID == nil {
		metrics.IncRefund("invalid_state")
		return nil, fmt.Errorf("%w: refund of a %s payment", domain.ErrInvalidState, p.Status)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "refund requested"
	}

	tok, err := u.tokens.Token(ctx)
	if err != nil {
		metrics.IncRefund("error")
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	gwCtx, cancel := context.WithTimeout(ctx, u.opts.GatewayTimeout)
	defer cancel()
	res, err := u.gateway.RefundPayment(gwCtx, tok.IDToken, adapter.RefundRequest{
		PaymentID: p.GatewayID(),
		TrxID:     *p.GatewayTrxID,
		Amount:    p.Amount,
		Reason:    reason,
		SKU:       p.Target.String(),
	})
	if err != nil {
		metrics.IncRefund("error")
		if errors.Is(err, domain.ErrGatewayAuth) {
			u.tokens.Invalidate(ctx)
			return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	ok, err := u.payments.TransitionStatus(context.WithoutCancel(ctx), nil, p.ID, model.PaymentStatusSuccessful, model.PaymentStatusRefunded, repository.StatusChange{})
	if err != nil {
		log.Error().Err(err).Str("refund_trx_id", res.RefundTrxID).Msg("gateway refunded but status update failed")
		return nil, err
	}
	if !ok {
		metrics.IncRefund("conflict")
		return nil, fmt.Errorf("%w: payment changed during refund", domain.ErrInvalidState)
	}
	_ = p.Transition(model.PaymentStatusRefunded, u.now())
	metrics.IncRefund("ok")
	metrics.IncPayment(string(model.PaymentStatusRefunded))
	log.Info().Str("refund_trx_id", res.RefundTrxID).Msg("payment refunded")
	return p, nil
}

func (u *paymentUC) Lookup(ctx context.Context, q LookupQuery) (*model.Payment, error) {
	q.OrderID = strings.TrimSpace(q.OrderID)
	q.PaymentID = strings.TrimSpace(q.PaymentID)
	q.TrxID = strings.TrimSpace(q.TrxID)
	set := 0
	for _, v := range []string{q.OrderID, q.PaymentID, q.TrxID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of orderID, paymentID, trxID", domain.ErrInvalidArgument)
	}
	switch {
	case q.OrderID != "":
		return u.payments.FindByOrderID(ctx, nil, q.OrderID)
	case q.PaymentID != "":
		return u.payments.FindByGatewayPaymentID(ctx, nil, q.PaymentID)
	default:
		return u.payments.FindByTrxID(ctx, nil, q.TrxID)
	}
}

func initiationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrCouponInvalid):
		return "coupon_invalid"
	case errors.Is(err, domain.ErrGatewayRejected):
		return "gateway_rejected"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrAmountTooLow), errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrTargetNotFound):
		return "invalid"
	default:
		return "error"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
