package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	red "linkhub-membership/internal/infra/redis"
	"linkhub-membership/internal/usecase"
)

const reconcileLockKey = "lock:membership:reconcile"

// PaymentReconciler periodically asks gateways about unpaid purchases whose
// webhook never arrived. A Redis lease keeps one replica sweeping at a time.
type PaymentReconciler struct {
	uc         usecase.ReconcileUseCase
	locker     red.Locker
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        *zerolog.Logger
	now        func() time.Time
}

func NewPaymentReconciler(uc usecase.ReconcileUseCase, locker red.Locker, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:         uc,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		log:        &l,
		now:        time.Now,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcileLockKey, w.interval)
		if errors.Is(err, red.ErrLockNotAcquired) {
			w.log.Debug().Msg("another replica holds the reconcile lease")
			return
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("reconcile lease failed")
			return
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), reconcileLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("release reconcile lease failed")
			}
		}()
	}

	n, err := w.uc.ReconcileStale(ctx, w.now().Add(-w.staleAfter), w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile sweep failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("reconciled purchases")
	}
}
