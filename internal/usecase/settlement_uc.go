package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/metrics"
)

// SettleResult reports what a settlement attempt did. Applied is false when
// another caller already flipped the purchase to paid.
type SettleResult struct {
	Applied    bool
	Purchase   *model.MembershipPurchase
	Membership *model.MembershipSnapshot
}

// SettlementUseCase is the only path from an unpaid purchase to an applied
// membership. Webhooks, the reconciler, manual marking and free checkouts
// all go through it.
type SettlementUseCase interface {
	Settle(ctx context.Context, purchaseID string, upd repository.PaidUpdate) (*SettleResult, error)
}

var _ SettlementUseCase = (*settlementUC)(nil)

type settlementUC struct {
	purchases   repository.PurchaseRepository
	coupons     repository.CouponRepository
	users       repository.UserRepository
	entitlement EntitlementUseCase
	tm          repository.TransactionManager
	notifier    adapter.AdminNotifier
	log         *zerolog.Logger
	now         func() time.Time
}

func NewSettlementUseCase(
	purchases repository.PurchaseRepository,
	coupons repository.CouponRepository,
	users repository.UserRepository,
	entitlement EntitlementUseCase,
	tm repository.TransactionManager,
	notifier adapter.AdminNotifier,
	logger *zerolog.Logger,
) SettlementUseCase {
	return &settlementUC{
		purchases:   purchases,
		coupons:     coupons,
		users:       users,
		entitlement: entitlement,
		tm:          tm,
		notifier:    notifier,
		log:         orNop(logger),
		now:         time.Now,
	}
}

func (s *settlementUC) Settle(ctx context.Context, purchaseID string, upd repository.PaidUpdate) (*SettleResult, error) {
	if purchaseID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := s.now()
	if upd.PaidAt.IsZero() {
		upd.PaidAt = now
	}
	upd.Currency = strings.ToUpper(strings.TrimSpace(upd.Currency))

	res := &SettleResult{}
	err := s.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		p, err := s.purchases.FindByID(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		res.Purchase = p
		if p.Paid {
			return nil
		}

		flipped, err := s.purchases.MarkPaidIfUnpaid(ctx, tx, purchaseID, upd)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		p.Paid = true
		p.PaidAt = &upd.PaidAt
		p.Provider = upd.Provider
		if upd.ProviderRef != "" {
			p.ProviderRef = upd.ProviderRef
		}
		if upd.Currency != "" {
			p.Currency = upd.Currency
		}
		if upd.FinalAmountMinor != nil && *upd.FinalAmountMinor != p.FinalAmountMinor {
			s.log.Warn().
				Str("purchase_id", p.ID).
				Int64("expected", p.FinalAmountMinor).
				Int64("reported", *upd.FinalAmountMinor).
				Msg("provider amount differs from purchase")
			metrics.IncAmountMismatch(string(upd.Provider))
			p.FinalAmountMinor = *upd.FinalAmountMinor
		}

		snap, err := s.entitlement.ApplyPaidPurchase(ctx, tx, p, upd.Provider, now)
		if err != nil {
			return err
		}
		if p.CouponApplied && p.CouponCode != "" {
			if err := s.coupons.IncrementRedemptions(ctx, tx, p.CouponCode); err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				s.log.Warn().Str("purchase_id", p.ID).Str("coupon", p.CouponCode).Msg("coupon vanished before redemption count")
			}
		}
		res.Applied = true
		res.Membership = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		metrics.IncMembershipApplied(string(upd.Provider))
		metrics.AddRevenue(res.Purchase.Currency, res.Purchase.FinalAmountMinor)
		s.notifyPaid(ctx, res.Purchase)
	}
	return res, nil
}

func (s *settlementUC) notifyPaid(ctx context.Context, p *model.MembershipPurchase) {
	if s.notifier == nil {
		return
	}
	who := p.UserID
	if u, err := s.users.FindByID(ctx, repository.NoTX, p.UserID); err == nil && u != nil {
		who = u.Email
	}
	text := fmt.Sprintf("Membership paid\nuser: %s\nplan: %s (%d days)\namount: %s %s\nprovider: %s\npurchase: %s",
		who, p.PlanID, p.DurationDays, FormatMinor(p.FinalAmountMinor), p.Currency, p.Provider, p.ID)
	if p.CouponCode != "" {
		text += "\ncoupon: " + p.CouponCode
	}
	if err := s.notifier.NotifyAdmins(ctx, text); err != nil {
		s.log.Warn().Err(err).Str("purchase_id", p.ID).Msg("admin notification failed")
	}
}
