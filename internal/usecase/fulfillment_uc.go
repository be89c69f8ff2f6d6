package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/domain/ports/repository"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
	"edu-checkout/internal/infra/worker"
)

// Compile-time check
var _ FulfillmentUseCase = (*fulfillmentUC)(nil)

// Dispatcher runs tasks off the request path. *worker.Pool satisfies it.
type Dispatcher interface {
	Submit(name string, task worker.Task) error
}

// Translator renders localized email lines.
type Translator interface {
	T(key string, args ...interface{}) string
}

type FulfillmentReport struct {
	Enrolled       bool // a new enrollment row was written
	AlreadyHad     bool // the enrollment existed before this call
	EmailQueued    bool
	EmailAlreadyOK bool // confirmation was delivered by an earlier run

	// GrantedByPayment is set when an earlier, different payment holds the
	// entitlement. The buyer paid twice and this payment is a refund candidate.
	GrantedByPayment string
}

type FulfillmentUseCase interface {
	Fulfiller
	// FulfillOrder re-runs fulfillment for a successful order, for operators.
	FulfillOrder(ctx context.Context, orderID string) (*FulfillmentReport, error)
}

type fulfillmentUC struct {
	payments      repository.PaymentRepository
	enrollments   repository.EnrollmentRepository
	users         repository.UserRepository
	catalog       repository.CatalogRepository
	notifications repository.NotificationLogRepository
	mailer        adapter.Mailer
	tr            Translator
	dispatch      Dispatcher
	log           *zerolog.Logger
}

// NewFulfillmentUseCase builds the dispatcher. With a nil dispatch the email is
// sent inline.
func NewFulfillmentUseCase(
	payments repository.PaymentRepository,
	enrollments repository.EnrollmentRepository,
	users repository.UserRepository,
	catalog repository.CatalogRepository,
	notifications repository.NotificationLogRepository,
	mailer adapter.Mailer,
	tr Translator,
	dispatch Dispatcher,
	logger *zerolog.Logger,
) *fulfillmentUC {
	return &fulfillmentUC{
		payments:      payments,
		enrollments:   enrollments,
		users:         users,
		catalog:       catalog,
		notifications: notifications,
		mailer:        mailer,
		tr:            tr,
		dispatch:      dispatch,
		log:           logger,
	}
}

func (u *fulfillmentUC) FulfillOrder(ctx context.Context, orderID string) (*FulfillmentReport, error) {
	p, err := u.payments.FindByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	return u.Fulfill(ctx, p)
}

// Fulfill grants the entitlement exactly once and queues the confirmation
// email unless an earlier run already delivered it.
func (u *fulfillmentUC) Fulfill(ctx context.Context, p *model.Payment) (*FulfillmentReport, error) {
	defer logging.TraceDuration(u.log, "FulfillmentUC.Fulfill")()
	if p.Status != model.PaymentStatusSuccessful {
		return nil, fmt.Errorf("%w: fulfill a %s payment", domain.ErrInvalidState, p.Status)
	}
	ctx = logging.WithOrderID(logging.WithUserID(ctx, p.UserID), p.OrderID)
	log := logging.With(ctx, u.log)
	report := &FulfillmentReport{}

	if p.Target.GrantsEnrollment() {
		e, err := model.NewEnrollment(p.UserID, p.Target, p.ID)
		if err != nil {
			return nil, err
		}
		created, err := u.enrollments.Create(ctx, nil, e)
		if err != nil {
			metrics.IncFulfillment("enrollment", "error")
			return nil, fmt.Errorf("create enrollment: %w", err)
		}
		report.Enrolled = created
		report.AlreadyHad = !created
		if created {
			metrics.IncFulfillment("enrollment", "created")
			log.Info().Str("target", p.Target.String()).Msg("enrollment granted")
		} else {
			metrics.IncFulfillment("enrollment", "exists")
			u.noteExistingEnrollment(ctx, p, report)
		}
	}

	sent, err := u.notifications.Exists(ctx, nil, p.ID, model.NotificationPaymentConfirmation)
	if err != nil {
		// access is granted; a missing email is not worth failing over
		log.Warn().Err(err).Msg("notification log unavailable, skipping email")
		return report, nil
	}
	if sent {
		report.EmailAlreadyOK = true
		return report, nil
	}

	cp := *p
	task := func(ctx context.Context) error { return u.sendConfirmation(ctx, &cp) }
	if u.dispatch == nil {
		_ = task(context.WithoutCancel(ctx))
		report.EmailQueued = true
		return report, nil
	}
	if err := u.dispatch.Submit("payment-confirmation:"+p.OrderID, task); err != nil {
		metrics.IncFulfillment("email", "dropped")
		log.Warn().Err(err).Msg("could not queue confirmation email")
		return report, nil
	}
	report.EmailQueued = true
	return report, nil
}

// noteExistingEnrollment records which payment holds an entitlement this
// payment did not create.
func (u *fulfillmentUC) noteExistingEnrollment(ctx context.Context, p *model.Payment, report *FulfillmentReport) {
	existing, err := u.enrollments.FindByUserAndTarget(ctx, nil, p.UserID, p.Target)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("look up existing enrollment")
		return
	}
	if existing.PaymentID != p.ID {
		report.GrantedByPayment = existing.PaymentID
		logging.With(ctx, u.log).Warn().Str("target", p.Target.String()).Str("granted_by", existing.PaymentID).
			Msg("entitlement already held through another payment")
	}
}

// sendConfirmation renders and delivers the email, then records it. Errors are
// logged and counted only.
func (u *fulfillmentUC) sendConfirmation(ctx context.Context, p *model.Payment) error {
	ctx = logging.WithOrderID(ctx, p.OrderID)
	log := logging.With(ctx, u.log)

	msg, err := u.render(ctx, p)
	if err != nil {
		metrics.IncFulfillment("email", "error")
		log.Warn().Err(err).Msg("render confirmation email")
		return err
	}
	if err := u.mailer.Send(ctx, msg); err != nil {
		metrics.IncFulfillment("email", "error")
		log.Warn().Err(err).Str("to", logging.Redact(msg.To, false)).Msg("send confirmation email")
		return err
	}
	if err := u.notifications.Save(ctx, nil, p.ID, p.UserID, model.NotificationPaymentConfirmation); err != nil {
		log.Warn().Err(err).Msg("record confirmation email")
	}
	metrics.IncFulfillment("email", "sent")
	return nil
}

func (u *fulfillmentUC) render(ctx context.Context, p *model.Payment) (adapter.Message, error) {
	name, to := p.PayerName, p.PayerEmail
	if name == "" || to == "" {
		user, err := u.users.FindByID(ctx, nil, p.UserID)
		if err != nil {
			return adapter.Message{}, fmt.Errorf("load purchaser: %w", err)
		}
		name = firstNonEmpty(name, user.Name)
		to = firstNonEmpty(to, user.Email)
	}
	if to == "" {
		return adapter.Message{}, errors.New("purchaser has no email address")
	}

	title := u.tr.T("target_" + string(p.Target.Kind))
	var item *model.CatalogItem
	if p.Target.GrantsEnrollment() {
		it, err := u.catalog.FindByTarget(ctx, nil, p.Target)
		if err == nil {
			item = it
			title = it.Title
		} else if !errors.Is(err, domain.ErrNotFound) {
			return adapter.Message{}, fmt.Errorf("load %s: %w", p.Target, err)
		}
	}

	lines := []string{
		u.tr.T("email_payment_greeting", name),
		u.tr.T("email_payment_body", p.Amount.StringFixed(2), p.Currency, title),
		u.tr.T("email_payment_order", p.OrderID),
	}
	if p.GatewayTrxID != nil {
		lines = append(lines, u.tr.T("email_payment_trx", *p.GatewayTrxID))
	}
	if p.CouponCode != nil && p.DiscountAmount.IsPositive() {
		lines = append(lines, u.tr.T("email_payment_discount", *p.CouponCode, p.DiscountAmount.StringFixed(2), p.Currency))
	}
	switch p.Target.Kind {
	case model.TargetCourse:
		lines = append(lines, u.tr.T("email_payment_access_course"))
	case model.TargetWorkshop:
		when := "-"
		if item != nil && item.StartsAt != nil {
			when = item.StartsAt.Format("2 Jan 2006 15:04 MST")
		}
		lines = append(lines, u.tr.T("email_payment_access_workshop", when))
	case model.TargetBook:
		lines = append(lines, u.tr.T("email_payment_access_book"))
	default:
		lines = append(lines, u.tr.T("email_payment_access_other"))
	}
	lines = append(lines, u.tr.T("email_payment_footer"))

	return adapter.Message{
		To:       to,
		Subject:  u.tr.T("email_payment_subject", title),
		TextBody: strings.Join(lines, "\n\n"),
	}, nil
}
