package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/repository"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
	"edu-checkout/internal/usecase"
)

const reconcilerLockKey = "lock:payment-reconciler"

const outcomeError usecase.CallbackOutcome = "error"

// Reconciler settles one stale record. usecase.CallbackUseCase satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context, p *model.Payment) (*usecase.CallbackResult, error)
}

// Locker is the distributed lock the sweep runs under. *redis.RedisLocker
// satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentReconciler periodically asks the gateway about pending payments whose
// callback never arrived, and settles them the same way the callback would.
type PaymentReconciler struct {
	uc          Reconciler
	payments    repository.PaymentRepository
	locker      Locker
	interval    time.Duration // how often to scan
	staleAfter  time.Duration // how old a pending payment must be to retry
	batch       int
	concurrency int
	log         *zerolog.Logger
	now         func() time.Time
}

// NewPaymentReconciler builds the sweeper. A nil locker lets every instance sweep.
func NewPaymentReconciler(uc Reconciler, payments repository.PaymentRepository, locker Locker, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:          uc,
		payments:    payments,
		locker:      locker,
		interval:    interval,
		staleAfter:  staleAfter,
		batch:       batch,
		concurrency: 4,
		log:         &l,
		now:         time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			if _, err := w.Sweep(ctx); err != nil && !errors.Is(err, domain.ErrLockNotAcquired) {
				w.log.Error().Err(err).Msg("reconcile sweep failed")
			}
		}
	}
}

// SweepResult counts what one pass did.
type SweepResult struct {
	Scanned   int
	Completed int
	Failed    int
	Pending   int
	Errors    int
}

// Sweep runs one pass. Another instance holding the lock yields
// domain.ErrLockNotAcquired.
func (w *PaymentReconciler) Sweep(ctx context.Context) (SweepResult, error) {
	defer logging.TraceDuration(w.log, "PaymentReconciler.Sweep")()
	var res SweepResult

	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcilerLockKey, w.interval)
		if err != nil {
			metrics.IncReconcilerRun("skipped")
			return res, err
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), reconcilerLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("release reconciler lock")
			}
		}()
	}

	cutoff := w.now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, nil, cutoff, w.batch)
	if err != nil {
		metrics.IncReconcilerRun("error")
		return res, err
	}
	res.Scanned = len(pending)
	if len(pending) == 0 {
		metrics.IncReconcilerRun("empty")
		return res, nil
	}

	outcomes := make([]usecase.CallbackOutcome, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, p := range pending {
		i, p := i, p
		g.Go(func() error {
			pctx := logging.WithOrderID(gctx, p.OrderID)
			r, err := w.uc.Reconcile(pctx, p)
			if err != nil {
				logging.With(pctx, w.log).Warn().Err(err).Str("payment_id", p.ID).Msg("reconcile failed")
				outcomes[i] = outcomeError
				return nil
			}
			outcomes[i] = r.Outcome
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case usecase.OutcomeCompleted:
			res.Completed++
		case usecase.OutcomeFailed:
			res.Failed++
		case outcomeError:
			res.Errors++
		default:
			res.Pending++
		}
	}
	metrics.IncReconcilerRun("ok")
	w.log.Info().
		Int("scanned", res.Scanned).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Int("errors", res.Errors).
		Msg("reconcile sweep done")
	return res, nil
}
