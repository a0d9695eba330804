package model

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Provider string

const (
	ProviderManual   Provider = "manual"
	ProviderStripe   Provider = "stripe"
	ProviderRazorpay Provider = "razorpay"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderManual, ProviderStripe, ProviderRazorpay:
		return true
	}
	return false
}

// MembershipPurchase is one checkout attempt. It is written unpaid at
// checkout start and flipped to paid exactly once.
type MembershipPurchase struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	PlanID           string     `json:"planId"`
	Region           Region     `json:"region"`
	Currency         string     `json:"currency"`
	DurationDays     int        `json:"durationDays"`
	BaseAmountMinor  int64      `json:"baseAmountMinor"`
	DiscountMinor    int64      `json:"discountMinor"`
	FinalAmountMinor int64      `json:"finalAmountMinor"`
	CouponCode       string     `json:"couponCode,omitempty"`
	CouponApplied    bool       `json:"couponApplied"`
	ReferrerCode     string     `json:"referrerCode,omitempty"`
	ReferrerUser     string     `json:"referrerUser,omitempty"`
	Paid             bool       `json:"paid"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	Provider         Provider   `json:"provider"`
	ProviderRef      string     `json:"providerRef,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewPurchaseID returns a lexically sortable purchase id.
func NewPurchaseID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// NewPurchase snapshots a quote for a user. The final amount is always derived
// from base and discount.
func NewPurchase(userID string, plan *MembershipPlan, q *Quote, provider Provider) *MembershipPurchase {
	now := time.Now()
	return &MembershipPurchase{
		ID:               NewPurchaseID(),
		UserID:           userID,
		PlanID:           plan.ID,
		Region:           q.Region,
		Currency:         q.Currency,
		DurationDays:     plan.DurationDays,
		BaseAmountMinor:  q.BaseAmountMinor,
		DiscountMinor:    q.DiscountMinor,
		FinalAmountMinor: FinalAmount(q.BaseAmountMinor, q.DiscountMinor),
		CouponCode:       q.CouponCode,
		CouponApplied:    q.CouponOutcome == CouponApplied,
		Provider:         provider,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (p *MembershipPurchase) IsZero() bool { return p == nil || p.ID == "" }

// ReceiptRef is the correlation value sent to gateways that accept a receipt.
func (p *MembershipPurchase) ReceiptRef() string { return ReceiptPrefix + p.ID }

const ReceiptPrefix = "mp_"

// PurchaseIDFromReceipt reverses ReceiptRef.
func PurchaseIDFromReceipt(receipt string) (string, bool) {
	if !strings.HasPrefix(receipt, ReceiptPrefix) || len(receipt) == len(ReceiptPrefix) {
		return "", false
	}
	return strings.TrimPrefix(receipt, ReceiptPrefix), true
}

// PlanSummary is the denormalized plan shown next to a price.
type PlanSummary struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	DisplayName  string `json:"displayName"`
	DurationDays int    `json:"durationDays"`
}

func (p *MembershipPlan) Summary() PlanSummary {
	return PlanSummary{ID: p.ID, Slug: p.Slug, DisplayName: p.DisplayName, DurationDays: p.DurationDays}
}

// Quote is a side-effect free price breakdown.
type Quote struct {
	Plan             PlanSummary   `json:"plan"`
	Region           Region        `json:"region"`
	CountryCode      string        `json:"countryCode,omitempty"`
	Currency         string        `json:"currency"`
	BaseAmountMinor  int64         `json:"baseAmountMinor"`
	DiscountMinor    int64         `json:"discountMinor"`
	FinalAmountMinor int64         `json:"finalAmountMinor"`
	CouponCode       string        `json:"couponCode,omitempty"`
	CouponOutcome    CouponOutcome `json:"couponOutcome"`
}
