package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/metrics"
)

// QuoteInput asks for the price of a plan. UserID is optional; without it
// per-user coupon limits are not checked.
type QuoteInput struct {
	PlanRef    string
	Geo        model.Geo
	CouponCode string
	UserID     string
}

// PricingUseCase resolves prices and evaluates coupons. Nothing here writes.
type PricingUseCase interface {
	// ComputeDiscount evaluates a coupon code. Rejected coupons are reported
	// through DiscountResult.Outcome with a zero discount; only storage
	// failures return an error.
	ComputeDiscount(ctx context.Context, code, userID string, region model.Region, baseAmountMinor int64) (model.DiscountResult, error)

	// Quote prices an active plan for the given location and coupon.
	Quote(ctx context.Context, in QuoteInput) (*model.Quote, error)

	// QuotePlan is Quote for an already resolved plan.
	QuotePlan(ctx context.Context, plan *model.MembershipPlan, in QuoteInput) (*model.Quote, error)
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	plans     PlanUseCase
	coupons   repository.CouponRepository
	purchases repository.PurchaseRepository
	log       *zerolog.Logger
	now       func() time.Time
}

// NewPricingUseCase constructs the pricing use case. logger may be nil.
func NewPricingUseCase(
	plans PlanUseCase,
	coupons repository.CouponRepository,
	purchases repository.PurchaseRepository,
	logger *zerolog.Logger,
) PricingUseCase {
	return &pricingUC{
		plans:     plans,
		coupons:   coupons,
		purchases: purchases,
		log:       orNop(logger),
		now:       time.Now,
	}
}

func (p *pricingUC) ComputeDiscount(ctx context.Context, code, userID string, region model.Region, base int64) (model.DiscountResult, error) {
	res, err := p.computeDiscount(ctx, code, userID, region, base)
	if err == nil {
		metrics.IncCouponOutcome(string(res.Outcome))
	}
	return res, err
}

func (p *pricingUC) computeDiscount(ctx context.Context, code, userID string, region model.Region, base int64) (model.DiscountResult, error) {
	code = model.NormalizeCouponCode(code)
	if code == "" {
		return model.NoDiscount(model.CouponNone), nil
	}

	c, err := p.coupons.FindActiveByCode(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.NoDiscount(model.CouponNotFound), nil
		}
		return model.DiscountResult{}, err
	}
	if c == nil || !c.IsActive {
		return model.NoDiscount(model.CouponNotFound), nil
	}

	if o := c.WindowOutcome(p.now()); o != model.CouponApplied {
		return model.NoDiscount(o), nil
	}
	if !c.AllowsRegion(region) {
		return model.NoDiscount(model.CouponRegionMismatch), nil
	}
	if c.PerUserLimit > 0 && userID != "" {
		used, err := p.purchases.CountPaidByUserAndCoupon(ctx, repository.NoTX, userID, c.Code)
		if err != nil {
			return model.DiscountResult{}, err
		}
		if used >= c.PerUserLimit {
			return model.NoDiscount(model.CouponPerUserLimit), nil
		}
	}
	if c.Exhausted() {
		return model.NoDiscount(model.CouponUsageLimit), nil
	}

	return model.DiscountResult{
		DiscountMinor: c.DiscountFor(base),
		Coupon:        c,
		Outcome:       model.CouponApplied,
	}, nil
}

func (p *pricingUC) Quote(ctx context.Context, in QuoteInput) (*model.Quote, error) {
	plan, err := p.plans.Resolve(ctx, in.PlanRef)
	if err != nil {
		return nil, err
	}
	return p.QuotePlan(ctx, plan, in)
}

func (p *pricingUC) QuotePlan(ctx context.Context, plan *model.MembershipPlan, in QuoteInput) (*model.Quote, error) {
	region := in.Geo.Region
	if !region.Valid() {
		region = model.ResolveRegion(in.Geo.CountryCode)
	}

	price, ok := plan.PriceFor(region)
	if !ok {
		return nil, domain.NewReason(domain.ErrInvalidState, "no_price_for_region", "This plan is not available in your region.").
			With("region", region).
			With("availableRegions", plan.ActiveRegions())
	}

	d, err := p.ComputeDiscount(ctx, in.CouponCode, in.UserID, region, price.AmountMinor)
	if err != nil {
		return nil, err
	}

	couponCode := model.NormalizeCouponCode(in.CouponCode)
	if d.Coupon != nil {
		couponCode = d.Coupon.Code
	}

	return &model.Quote{
		Plan:             plan.Summary(),
		Region:           region,
		CountryCode:      in.Geo.CountryCode,
		Currency:         price.Currency,
		BaseAmountMinor:  price.AmountMinor,
		DiscountMinor:    d.DiscountMinor,
		FinalAmountMinor: model.FinalAmount(price.AmountMinor, d.DiscountMinor),
		CouponCode:       couponCode,
		CouponOutcome:    d.Outcome,
	}, nil
}
