package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/domain/ports/repository"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
)

// Compile-time check
var _ CallbackUseCase = (*callbackUC)(nil)

// Payer-facing statuses the gateway appends to the callback URL.
const (
	CallbackStatusSuccess = "success"
	CallbackStatusFailure = "failure"
	CallbackStatusCancel  = "cancel"
)

type CallbackOutcome string

const (
	OutcomeCompleted        CallbackOutcome = "completed"
	OutcomeFailed           CallbackOutcome = "failed"
	OutcomeAlreadyProcessed CallbackOutcome = "already_processed"
	// OutcomePending means the gateway could not be reached; the record is
	// left for the reconciler.
	OutcomePending CallbackOutcome = "pending"
)

type Callback struct {
	PaymentID string
	Status    string
	TrxID     string
}

type CallbackResult struct {
	Outcome CallbackOutcome
	Payment *model.Payment
}

type CallbackUseCase interface {
	// HandleCallback settles the record named by a gateway callback. Redelivery
	// of the same callback never repeats fulfillment.
	HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error)
	// Reconcile settles a stale pending record by asking the gateway.
	Reconcile(ctx context.Context, p *model.Payment) (*CallbackResult, error)
}

// Fulfiller is the part of fulfillment the callback path triggers.
type Fulfiller interface {
	Fulfill(ctx context.Context, p *model.Payment) (*FulfillmentReport, error)
}

type callbackUC struct {
	payments repository.PaymentRepository
	coupons  repository.CouponRepository
	tm       repository.TransactionManager
	gateway  adapter.PaymentGateway
	tokens   TokenProvider
	fulfill  Fulfiller
	timeout  time.Duration
	log      *zerolog.Logger
	now      func() time.Time
}

func NewCallbackUseCase(
	payments repository.PaymentRepository,
	coupons repository.CouponRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	tokens TokenProvider,
	fulfill Fulfiller,
	gatewayTimeout time.Duration,
	logger *zerolog.Logger,
) *callbackUC {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 15 * time.Second
	}
	return &callbackUC{
		payments: payments,
		coupons:  coupons,
		tm:       tm,
		gateway:  gateway,
		tokens:   tokens,
		fulfill:  fulfill,
		timeout:  gatewayTimeout,
		log:      logger,
		now:      time.Now,
	}
}

func (u *callbackUC) HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	defer logging.TraceDuration(u.log, "CallbackUC.HandleCallback")()
	start := time.Now()
	ctx = logging.WithPaymentID(ctx, cb.PaymentID)

	res, err := u.handle(ctx, cb)
	outcome := "error"
	switch {
	case err == nil:
		outcome = string(res.Outcome)
	case errors.Is(err, domain.ErrUnknownPayment):
		outcome = "unknown"
	}
	metrics.ObserveCallback(outcome, time.Since(start).Seconds())
	return res, err
}

func (u *callbackUC) handle(ctx context.Context, cb Callback) (*CallbackResult, error) {
	log := logging.With(ctx, u.log)
	gid := strings.TrimSpace(cb.PaymentID)
	if gid == "" {
		return nil, fmt.Errorf("%w: paymentID is required", domain.ErrInvalidArgument)
	}
	status := strings.ToLower(strings.TrimSpace(cb.Status))
	switch status {
	case CallbackStatusSuccess, CallbackStatusFailure, CallbackStatusCancel:
	default:
		return nil, fmt.Errorf("%w: unknown callback status %q", domain.ErrInvalidArgument, cb.Status)
	}

	p, err := u.payments.FindByGatewayPaymentID(ctx, nil, gid)
	if errors.Is(err, domain.ErrNotFound) {
		log.Error().Str("status", status).Msg("callback for unknown gateway payment")
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPayment, gid)
	}
	if err != nil {
		return nil, err
	}
	ctx = logging.WithOrderID(ctx, p.OrderID)
	log = logging.With(ctx, u.log)

	if p.Status.IsTerminal() {
		log.Info().Str("status", string(p.Status)).Msg("callback for settled payment ignored")
		return &CallbackResult{Outcome: OutcomeAlreadyProcessed, Payment: p}, nil
	}

	if status == CallbackStatusSuccess {
		// confirm server to server before trusting the redirect
		tx, err := u.confirm(ctx, gid, true)
		if err != nil {
			log.Warn().Err(err).Msg("gateway unreachable, leaving payment pending")
			return &CallbackResult{Outcome: OutcomePending, Payment: p}, nil
		}
		return u.settle(ctx, p, tx)
	}

	// A failure or cancel redirect is checked too: a completed payment must not
	// be failed by a late or forged callback.
	if tx, err := u.confirm(ctx, gid, false); err == nil && tx.Completed() {
		log.Warn().Str("status", status).Msg("gateway reports completion despite failure callback")
		return u.settle(ctx, p, tx)
	}
	return u.fail(ctx, p, "payer returned with status "+status)
}

func (u *callbackUC) Reconcile(ctx context.Context, p *model.Payment) (*CallbackResult, error) {
	ctx = logging.WithOrderID(ctx, p.OrderID)
	if p.Status.IsTerminal() {
		return &CallbackResult{Outcome: OutcomeAlreadyProcessed, Payment: p}, nil
	}
	gid := p.GatewayID()
	if gid == "" {
		return u.fail(ctx, p, "gateway never assigned a payment")
	}
	ctx = logging.WithPaymentID(ctx, gid)

	tx, err := u.confirm(ctx, gid, false)
	if err != nil {
		return &CallbackResult{Outcome: OutcomePending, Payment: p}, err
	}
	if tx.TransactionStatus == adapter.TransactionInitiated {
		// the payer may have approved and lost the redirect; execute settles it
		if executed, err := u.confirm(ctx, gid, true); err == nil {
			tx = executed
		}
	}
	return u.settle(ctx, p, tx)
}

// confirm asks the gateway for the transaction. With execute it first tries to
// execute and falls back to a status query when that fails.
func (u *callbackUC) confirm(ctx context.Context, gid string, execute bool) (adapter.TransactionResult, error) {
	tok, err := u.tokens.Token(ctx)
	if err != nil {
		return adapter.TransactionResult{}, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	gwCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	if execute {
		res, err := u.gateway.ExecutePayment(gwCtx, tok.IDToken, gid)
		if err == nil {
			return res, nil
		}
		logging.With(ctx, u.log).Warn().Err(err).Msg("execute failed, querying status")
		if errors.Is(err, domain.ErrGatewayAuth) {
			u.tokens.Invalidate(ctx)
			if tok, err = u.tokens.Token(ctx); err != nil {
				return adapter.TransactionResult{}, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
			}
		}
	}

	res, err := u.gateway.QueryPayment(gwCtx, tok.IDToken, gid)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayAuth) {
			u.tokens.Invalidate(ctx)
		}
		return adapter.TransactionResult{}, fmt.Errorf("%w: query: %w", domain.ErrGatewayUnavailable, err)
	}
	return res, nil
}

// settle applies the gateway's verdict with a status-guarded write.
func (u *callbackUC) settle(ctx context.Context, p *model.Payment, tx adapter.TransactionResult) (*CallbackResult, error) {
	if !tx.Completed() {
		return u.fail(ctx, p, "gateway transaction status "+tx.TransactionStatus)
	}
	if !tx.Amount.IsZero() && !tx.Amount.Equal(p.Amount) {
		return u.fail(ctx, p, fmt.Sprintf("amount mismatch: gateway %s, expected %s", tx.Amount, p.Amount))
	}

	paidAt := tx.CompletedAt
	if paidAt.IsZero() {
		paidAt = u.now()
	}
	trx := tx.TrxID
	var won bool
	err := u.tm.WithTx(context.WithoutCancel(ctx), pgx.TxOptions{}, func(ctx context.Context, dbtx repository.Tx) error {
		ok, err := u.payments.TransitionStatus(ctx, dbtx, p.ID, model.PaymentStatusPending, model.PaymentStatusSuccessful,
			repository.StatusChange{TrxID: &trx, PaidAt: &paidAt, Verified: true})
		if err != nil || !ok {
			return err
		}
		won = true
		if p.CouponID != nil {
			return u.coupons.IncrementUsage(ctx, dbtx, *p.CouponID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record successful payment: %w", err)
	}
	if !won {
		return u.alreadyProcessed(ctx, p)
	}

	_ = p.Transition(model.PaymentStatusSuccessful, paidAt)
	p.GatewayTrxID = &trx
	p.Verified = true
	metrics.IncPayment(string(model.PaymentStatusSuccessful))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	log := logging.With(ctx, u.log)
	log.Info().Str("trx_id", trx).Str("amount", p.Amount.String()).Msg("payment successful")

	if u.fulfill != nil {
		// redelivery short-circuits on the settled record, so a dropped
		// request must not abort the enrollment
		if _, err := u.fulfill.Fulfill(context.WithoutCancel(ctx), p); err != nil {
			// an operator retry re-runs fulfillment
			log.Error().Err(err).Msg("fulfillment failed")
		}
	}
	return &CallbackResult{Outcome: OutcomeCompleted, Payment: p}, nil
}

func (u *callbackUC) fail(ctx context.Context, p *model.Payment, reason string) (*CallbackResult, error) {
	ok, err := u.payments.TransitionStatus(context.WithoutCancel(ctx), nil, p.ID, model.PaymentStatusPending, model.PaymentStatusFailed,
		repository.StatusChange{FailureReason: &reason})
	if err != nil {
		return nil, fmt.Errorf("record failed payment: %w", err)
	}
	if !ok {
		return u.alreadyProcessed(ctx, p)
	}
	_ = p.Transition(model.PaymentStatusFailed, u.now())
	p.FailureReason = &reason
	metrics.IncPayment(string(model.PaymentStatusFailed))
	logging.With(ctx, u.log).Info().Str("reason", reason).Msg("payment failed")
	return &CallbackResult{Outcome: OutcomeFailed, Payment: p}, nil
}

// alreadyProcessed reports the state that a concurrent writer left behind.
func (u *callbackUC) alreadyProcessed(ctx context.Context, p *model.Payment) (*CallbackResult, error) {
	logging.With(ctx, u.log).Info().Msg("payment settled concurrently")
	current, err := u.payments.FindByID(ctx, nil, p.ID)
	if err != nil {
		current = p
	}
	return &CallbackResult{Outcome: OutcomeAlreadyProcessed, Payment: current}, nil
}
