package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/infra/metrics"
	"linkhub-membership/internal/usecase"
)

// EventPurger drops stored webhook ids older than the dedupe window.
type EventPurger interface {
	Purge(ctx context.Context, ttl time.Duration) (int64, error)
}

// ExpiryWorker periodically marks lapsed memberships inactive and, when
// webhook dedupe lives in Postgres, purges old event ids.
type ExpiryWorker struct {
	interval  time.Duration
	uc        usecase.MembershipUseCase
	purger    EventPurger
	dedupeTTL time.Duration
	log       *zerolog.Logger
}

// NewExpiryWorker builds the worker. purger may be nil.
func NewExpiryWorker(interval time.Duration, uc usecase.MembershipUseCase, purger EventPurger, dedupeTTL time.Duration, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:  interval,
		uc:        uc,
		purger:    purger,
		dedupeTTL: dedupeTTL,
		log:       &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	n, err := w.uc.ExpireLapsed(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry worker error")
	}
	if n > 0 {
		metrics.IncMembershipsExpired(n)
		w.log.Info().Int("count", n).Msg("lapsed memberships marked inactive")
	}

	if w.purger == nil || w.dedupeTTL <= 0 {
		return
	}
	purged, err := w.purger.Purge(ctx, w.dedupeTTL)
	if err != nil {
		w.log.Warn().Err(err).Msg("purge webhook events failed")
		return
	}
	if purged > 0 {
		w.log.Debug().Int64("count", purged).Msg("purged webhook events")
	}
}
