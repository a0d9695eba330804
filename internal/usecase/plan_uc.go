package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

// PlanUseCase manages membership plans.
type PlanUseCase interface {
	// Resolve finds an active plan by slug or id.
	Resolve(ctx context.Context, ref string) (*model.MembershipPlan, error)
	List(ctx context.Context) ([]*model.MembershipPlan, error)
	// Save validates and upserts a plan.
	Save(ctx context.Context, plan *model.MembershipPlan) error
}

var _ PlanUseCase = (*planUC)(nil)

type planUC struct {
	plans repository.MembershipPlanRepository
	log   *zerolog.Logger
}

func NewPlanUseCase(plans repository.MembershipPlanRepository, logger *zerolog.Logger) PlanUseCase {
	return &planUC{plans: plans, log: orNop(logger)}
}

func (u *planUC) Resolve(ctx context.Context, ref string) (*model.MembershipPlan, error) {
	notFound := domain.NewReason(domain.ErrNotFound, "plan_not_found", "Plan not found.").With("plan", ref)
	if ref == "" {
		return nil, notFound
	}

	plan, err := u.plans.FindBySlug(ctx, repository.NoTX, model.NormalizeSlug(ref))
	if errors.Is(err, domain.ErrNotFound) {
		if _, perr := uuid.Parse(ref); perr == nil {
			plan, err = u.plans.FindByID(ctx, repository.NoTX, ref)
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound
		}
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, notFound
	}
	return plan, nil
}

func (u *planUC) List(ctx context.Context) ([]*model.MembershipPlan, error) {
	return u.plans.ListActive(ctx, repository.NoTX)
}

func (u *planUC) Save(ctx context.Context, plan *model.MembershipPlan) error {
	if plan == nil {
		return domain.ErrInvalidArgument
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
		plan.CreatedAt = time.Now()
	}
	plan.Slug = model.NormalizeSlug(plan.Slug)
	if err := plan.Validate(); err != nil {
		return err
	}
	plan.UpdatedAt = time.Now()
	if err := u.plans.Save(ctx, repository.NoTX, plan); err != nil {
		u.log.Error().Err(err).Str("slug", plan.Slug).Msg("save plan failed")
		return err
	}
	return nil
}

func orNop(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return l
}
