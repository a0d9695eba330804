package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/metrics"
)

// ReconcileUseCase recovers purchases whose webhook never arrived by asking
// the gateway directly.
type ReconcileUseCase interface {
	// ReconcileStale checks unpaid purchases that have a provider reference
	// and were created before olderThan. It returns how many were applied.
	ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

var _ ReconcileUseCase = (*reconcileUC)(nil)

type reconcileUC struct {
	purchases repository.PurchaseRepository
	gateways  Gateways
	settle    SettlementUseCase
	timeout   time.Duration
	log       *zerolog.Logger
}

func NewReconcileUseCase(purchases repository.PurchaseRepository, gateways Gateways, settle SettlementUseCase, gatewayTimeout time.Duration, logger *zerolog.Logger) ReconcileUseCase {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 15 * time.Second
	}
	return &reconcileUC{purchases: purchases, gateways: gateways, settle: settle, timeout: gatewayTimeout, log: orNop(logger)}
}

func (u *reconcileUC) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	pending, err := u.purchases.ListUnpaidWithRefOlderThan(ctx, repository.NoTX, olderThan, limit)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		gw := u.gateways[p.Provider]
		if gw == nil || p.ProviderRef == "" {
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, u.timeout)
		start := time.Now()
		st, err := gw.FetchStatus(cctx, p.ProviderRef)
		cancel()
		metrics.ObserveGatewayCall(string(p.Provider), "fetch_status", err == nil, time.Since(start))
		if err != nil {
			u.log.Warn().Err(err).Str("purchase_id", p.ID).Str("ref", p.ProviderRef).Msg("fetch gateway status failed")
			continue
		}
		if !st.Paid {
			continue
		}

		upd := repository.PaidUpdate{Provider: p.Provider, ProviderRef: st.Reference, Currency: st.Currency}
		if upd.ProviderRef == "" {
			upd.ProviderRef = p.ProviderRef
		}
		if st.AmountMinor > 0 {
			amt := st.AmountMinor
			upd.FinalAmountMinor = &amt
		}
		res, err := u.settle.Settle(ctx, p.ID, upd)
		if err != nil {
			u.log.Error().Err(err).Str("purchase_id", p.ID).Msg("reconcile settle failed")
			continue
		}
		if res.Applied {
			applied++
			metrics.IncReconciled(string(p.Provider))
			u.log.Info().Str("purchase_id", p.ID).Str("gateway", string(p.Provider)).Msg("reconciled purchase")
		}
	}
	return applied, nil
}
