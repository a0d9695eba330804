package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"linkhub-membership/internal/domain"
)

type CouponType string

const (
	CouponPercent CouponType = "percent"
	CouponFixed   CouponType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Coupon is a discount code. Value is a percentage for percent coupons and a
// minor-unit amount for fixed ones.
type Coupon struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Type             CouponType      `json:"type"`
	Value            decimal.Decimal `json:"value"`
	MaxDiscountMinor int64           `json:"maxDiscountMinor"`
	Regions          []Region        `json:"regions,omitempty"`
	StartsAt         *time.Time      `json:"startsAt,omitempty"`
	EndsAt           *time.Time      `json:"endsAt,omitempty"`
	UsageLimit       int64           `json:"usageLimit"`
	PerUserLimit     int64           `json:"perUserLimit"`
	IsActive         bool            `json:"isActive"`
	Notes            string          `json:"notes,omitempty"`
	TotalRedemptions int64           `json:"totalRedemptions"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func NormalizeCouponCode(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// NewCoupon validates and constructs an active coupon.
func NewCoupon(code string, typ CouponType, value decimal.Decimal) (*Coupon, error) {
	now := time.Now()
	c := &Coupon{
		ID:        uuid.NewString(),
		Code:      NormalizeCouponCode(code),
		Type:      typ,
		Value:     value,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Coupon) Validate() error {
	c.Code = NormalizeCouponCode(c.Code)
	if c.Code == "" {
		return domain.NewReason(domain.ErrInvalidArgument, "missing_code", "coupon code is required")
	}
	switch c.Type {
	case CouponPercent:
		if c.Value.IsNegative() || c.Value.GreaterThan(hundred) {
			return domain.NewReason(domain.ErrInvalidArgument, "invalid_percent", "percent value must be within 0..100")
		}
	case CouponFixed:
		if c.Value.IsNegative() {
			return domain.NewReason(domain.ErrInvalidArgument, "invalid_amount", "fixed value must not be negative")
		}
	default:
		return domain.NewReason(domain.ErrInvalidArgument, "invalid_type", "coupon type must be percent or fixed").With("type", c.Type)
	}
	for i, r := range c.Regions {
		rr, ok := ParseRegion(string(r))
		if !ok {
			return domain.NewReason(domain.ErrInvalidArgument, "invalid_region", "unknown coupon region").With("region", r)
		}
		c.Regions[i] = rr
	}
	if c.StartsAt != nil && c.EndsAt != nil && c.EndsAt.Before(*c.StartsAt) {
		return domain.NewReason(domain.ErrInvalidArgument, "invalid_window", "endsAt is before startsAt")
	}
	if c.MaxDiscountMinor < 0 || c.UsageLimit < 0 || c.PerUserLimit < 0 {
		return domain.NewReason(domain.ErrInvalidArgument, "negative_limit", "limits must not be negative")
	}
	return nil
}

// WindowOutcome reports whether now falls inside the inclusive validity window.
func (c *Coupon) WindowOutcome(now time.Time) CouponOutcome {
	if c.StartsAt != nil && c.StartsAt.After(now) {
		return CouponNotStarted
	}
	if c.EndsAt != nil && c.EndsAt.Before(now) {
		return CouponExpired
	}
	return CouponApplied
}

func (c *Coupon) AllowsRegion(r Region) bool {
	if len(c.Regions) == 0 {
		return true
	}
	for _, cr := range c.Regions {
		if cr == r {
			return true
		}
	}
	return false
}

func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.TotalRedemptions >= c.UsageLimit
}

// DiscountFor computes the discount on base, rounded half away from zero,
// capped for percent coupons and clamped to [0, base].
func (c *Coupon) DiscountFor(base int64) int64 {
	var d int64
	switch c.Type {
	case CouponPercent:
		d = decimal.NewFromInt(base).Mul(c.Value).Div(hundred).Round(0).IntPart()
		if c.MaxDiscountMinor > 0 && d > c.MaxDiscountMinor {
			d = c.MaxDiscountMinor
		}
	case CouponFixed:
		d = c.Value.Round(0).IntPart()
	}
	return clamp(d, 0, base)
}

// CouponOutcome tags why a coupon did or did not contribute a discount.
type CouponOutcome string

const (
	CouponNone           CouponOutcome = "none"
	CouponApplied        CouponOutcome = "applied"
	CouponNotFound       CouponOutcome = "not_found"
	CouponNotStarted     CouponOutcome = "not_started"
	CouponExpired        CouponOutcome = "expired"
	CouponRegionMismatch CouponOutcome = "region_mismatch"
	CouponPerUserLimit   CouponOutcome = "per_user_limit"
	CouponUsageLimit     CouponOutcome = "usage_limit"
)

// DiscountResult is the outcome of evaluating a coupon code. A rejected
// coupon is a zero discount, never an error.
type DiscountResult struct {
	DiscountMinor int64
	Coupon        *Coupon
	Outcome       CouponOutcome
}

func NoDiscount(o CouponOutcome) DiscountResult { return DiscountResult{Outcome: o} }

func (d DiscountResult) Applied() bool { return d.Outcome == CouponApplied && d.Coupon != nil }

// FinalAmount is base minus discount, clamped to [0, base].
func FinalAmount(base, discount int64) int64 { return clamp(base-discount, 0, base) }

func clamp(v, lo, hi int64) int64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
