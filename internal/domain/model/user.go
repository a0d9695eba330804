package model

import (
	"time"

	"github.com/google/uuid"

	"linkhub-membership/internal/domain"
)

type MembershipStatus string

const (
	MembershipInactive MembershipStatus = "inactive"
	MembershipActive   MembershipStatus = "active"
	MembershipPastDue  MembershipStatus = "past_due"
	MembershipCanceled MembershipStatus = "canceled"
)

// MembershipSnapshot is the user's current entitlement, replaced wholesale on
// every applied purchase.
type MembershipSnapshot struct {
	Plan               string           `json:"plan,omitempty"`
	PlanKey            string           `json:"planKey,omitempty"`
	PlanName           string           `json:"planName,omitempty"`
	Provider           Provider         `json:"provider,omitempty"`
	LastPurchaseID     string           `json:"lastPurchaseId,omitempty"`
	Region             Region           `json:"region,omitempty"`
	Currency           string           `json:"currency,omitempty"`
	BaseAmountMinor    int64            `json:"baseAmountMinor"`
	DiscountMinor      int64            `json:"discountMinor"`
	FinalAmountMinor   int64            `json:"finalAmountMinor"`
	CouponCode         string           `json:"couponCode,omitempty"`
	DurationDays       int              `json:"durationDays"`
	CurrentPeriodStart *time.Time       `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time       `json:"currentPeriodEnd,omitempty"`
	Status             MembershipStatus `json:"status"`
	UpdatedAt          *time.Time       `json:"updatedAt,omitempty"`
}

func (m MembershipSnapshot) IsActive(now time.Time) bool {
	return m.Status == MembershipActive && m.CurrentPeriodEnd != nil && m.CurrentPeriodEnd.After(now)
}

// NextMembership builds the snapshot that results from applying a paid
// purchase. The new period starts at the old period end if that is still in
// the future, otherwise at now.
func NextMembership(prev MembershipSnapshot, p *MembershipPurchase, plan *MembershipPlan, provider Provider, now time.Time) MembershipSnapshot {
	anchor := now
	if prev.CurrentPeriodEnd != nil && prev.CurrentPeriodEnd.After(now) {
		anchor = *prev.CurrentPeriodEnd
	}
	days := p.DurationDays
	if days <= 0 && plan != nil {
		days = plan.DurationDays
	}
	start := now
	end := anchor.Add(time.Duration(days) * 24 * time.Hour)
	updated := now

	next := MembershipSnapshot{
		Plan:               p.PlanID,
		Provider:           provider,
		LastPurchaseID:     p.ID,
		Region:             p.Region,
		Currency:           p.Currency,
		BaseAmountMinor:    p.BaseAmountMinor,
		DiscountMinor:      p.DiscountMinor,
		FinalAmountMinor:   p.FinalAmountMinor,
		CouponCode:         NormalizeCouponCode(p.CouponCode),
		DurationDays:       days,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		Status:             MembershipActive,
		UpdatedAt:          &updated,
	}
	if plan != nil {
		next.PlanKey = plan.Slug
		next.PlanName = plan.DisplayName
	}
	return next
}

// Referral records who brought a user in. It is written at most once.
type Referral struct {
	Code   string
	UserID string
	At     time.Time
}

type User struct {
	ID             string             `json:"id"`
	Email          string             `json:"email"`
	Username       string             `json:"username"`
	ProfileName    string             `json:"profileName,omitempty"`
	Phone          string             `json:"phone,omitempty"`
	Country        string             `json:"country,omitempty"`
	ReferralCode   string             `json:"referralCode,omitempty"`
	ReferredBy     string             `json:"referredBy,omitempty"`
	ReferredByUser string             `json:"referredByUser,omitempty"`
	ReferredAt     *time.Time         `json:"referredAt,omitempty"`
	Membership     MembershipSnapshot `json:"membership"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func NewUser(id, email, username string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" || username == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:         id,
		Email:      email,
		Username:   username,
		Membership: MembershipSnapshot{Status: MembershipInactive},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

func (u *User) HasReferrer() bool { return u.ReferredBy != "" }

// DisplayName prefers the profile name over the username.
func (u *User) DisplayName() string {
	if u.ProfileName != "" {
		return u.ProfileName
	}
	return u.Username
}

// MembershipHistoryEntry is the append-only receipt line written next to
// every snapshot change.
type MembershipHistoryEntry struct {
	UserID           string    `json:"userId"`
	PurchaseID       string    `json:"purchaseId"`
	Provider         Provider  `json:"provider"`
	TransactionID    string    `json:"transactionId,omitempty"`
	Plan             string    `json:"plan"`
	PlanKey          string    `json:"planKey"`
	PlanName         string    `json:"planName"`
	Region           Region    `json:"region"`
	Currency         string    `json:"currency"`
	BaseAmountMinor  int64     `json:"baseAmountMinor"`
	DiscountMinor    int64     `json:"discountMinor"`
	FinalAmountMinor int64     `json:"finalAmountMinor"`
	CouponCode       string    `json:"couponCode,omitempty"`
	DurationDays     int       `json:"durationDays"`
	PeriodStart      time.Time `json:"periodStart"`
	PeriodEnd        time.Time `json:"periodEnd"`
	PurchasedAt      time.Time `json:"purchasedAt"`
}

func NewHistoryEntry(userID string, p *MembershipPurchase, m MembershipSnapshot) *MembershipHistoryEntry {
	e := &MembershipHistoryEntry{
		UserID:           userID,
		PurchaseID:       p.ID,
		Provider:         m.Provider,
		TransactionID:    p.ProviderRef,
		Plan:             m.Plan,
		PlanKey:          m.PlanKey,
		PlanName:         m.PlanName,
		Region:           m.Region,
		Currency:         m.Currency,
		BaseAmountMinor:  m.BaseAmountMinor,
		DiscountMinor:    m.DiscountMinor,
		FinalAmountMinor: m.FinalAmountMinor,
		CouponCode:       m.CouponCode,
		DurationDays:     m.DurationDays,
	}
	if m.CurrentPeriodStart != nil {
		e.PeriodStart = *m.CurrentPeriodStart
	}
	if m.CurrentPeriodEnd != nil {
		e.PeriodEnd = *m.CurrentPeriodEnd
	}
	if p.PaidAt != nil {
		e.PurchasedAt = *p.PaidAt
	} else {
		e.PurchasedAt = e.PeriodStart
	}
	return e
}
