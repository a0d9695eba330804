package repository

import (
	"context"

	"linkhub-membership/internal/domain/model"
)

// MembershipPlanRepository is the port for plan persistence.
type MembershipPlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.MembershipPlan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.MembershipPlan, error)
	FindBySlug(ctx context.Context, tx Tx, slug string) (*model.MembershipPlan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.MembershipPlan, error)
}

type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
	// FindActiveByCode matches the normalized code of an active coupon.
	FindActiveByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	// IncrementRedemptions bumps the counter in place.
	IncrementRedemptions(ctx context.Context, tx Tx, code string) error
}
