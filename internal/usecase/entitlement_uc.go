package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/logging"
)

// EntitlementUseCase is the single writer of the membership snapshot.
type EntitlementUseCase interface {
	// ApplyPaidPurchase extends or starts the user's membership from a paid
	// purchase and appends a history line. Callers guarantee it runs at most
	// once per purchase, inside their transaction.
	ApplyPaidPurchase(ctx context.Context, tx repository.Tx, p *model.MembershipPurchase, provider model.Provider, now time.Time) (*model.MembershipSnapshot, error)
}

var _ EntitlementUseCase = (*entitlementUC)(nil)

type entitlementUC struct {
	users   repository.UserRepository
	plans   repository.MembershipPlanRepository
	history repository.MembershipHistoryRepository
	log     *zerolog.Logger
}

func NewEntitlementUseCase(
	users repository.UserRepository,
	plans repository.MembershipPlanRepository,
	history repository.MembershipHistoryRepository,
	logger *zerolog.Logger,
) EntitlementUseCase {
	return &entitlementUC{users: users, plans: plans, history: history, log: orNop(logger)}
}

func (u *entitlementUC) ApplyPaidPurchase(ctx context.Context, tx repository.Tx, p *model.MembershipPurchase, provider model.Provider, now time.Time) (*model.MembershipSnapshot, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.ApplyPaidPurchase")()

	plan, err := u.plans.FindByID(ctx, tx, p.PlanID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if plan == nil {
		// The purchase carries its own duration; a deleted plan only loses the
		// denormalized name.
		u.log.Warn().Str("purchase_id", p.ID).Str("plan_id", p.PlanID).Msg("plan missing while applying purchase")
	}

	user, err := u.users.FindByID(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}

	next := model.NextMembership(user.Membership, p, plan, provider, now)
	if next.DurationDays <= 0 {
		return nil, domain.NewReason(domain.ErrInvalidState, "missing_duration", "purchase has no duration").With("purchaseId", p.ID)
	}

	if err := u.users.UpdateMembership(ctx, tx, user.ID, next); err != nil {
		return nil, err
	}
	if u.history != nil {
		if err := u.history.Append(ctx, tx, model.NewHistoryEntry(user.ID, p, next)); err != nil {
			return nil, err
		}
	}

	u.log.Info().
		Str("user_id", user.ID).
		Str("purchase_id", p.ID).
		Str("plan", next.PlanKey).
		Time("period_end", *next.CurrentPeriodEnd).
		Msg("membership applied")
	return &next, nil
}
