package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkhub-membership/internal/domain"
)

var AllowedDurations = []int{7, 30, 60, 90, 180, 365}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,39}$`)

// PriceEntry is one regional price of a plan. A missing isActive flag counts
// as active.
type PriceEntry struct {
	Region      Region `json:"region"`
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amountMinor"`
	Active      *bool  `json:"isActive,omitempty"`
}

func (e PriceEntry) IsActive() bool { return e.Active == nil || *e.Active }

// MembershipPlan is a purchasable membership tier with a per-region price book.
type MembershipPlan struct {
	ID           string       `json:"id"`
	Slug         string       `json:"slug"`
	DisplayName  string       `json:"displayName"`
	DurationDays int          `json:"durationDays"`
	PriceBook    []PriceEntry `json:"priceBook"`
	Features     []string     `json:"features,omitempty"`
	IsActive     bool         `json:"isActive"`
	Sort         int          `json:"sort"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (p *MembershipPlan) IsZero() bool { return p == nil || p.ID == "" }

// NewMembershipPlan validates and constructs an active plan.
func NewMembershipPlan(id, slug, displayName string, durationDays int, prices []PriceEntry) (*MembershipPlan, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	p := &MembershipPlan{
		ID:           id,
		Slug:         NormalizeSlug(slug),
		DisplayName:  strings.TrimSpace(displayName),
		DurationDays: durationDays,
		PriceBook:    prices,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func NormalizeSlug(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Validate enforces the write-time rules of a plan: allowed durations,
// region/currency policy and at most one active price per region.
func (p *MembershipPlan) Validate() error {
	if !slugPattern.MatchString(p.Slug) {
		return domain.NewReason(domain.ErrInvalidArgument, "invalid_slug", "slug must be 2-40 lowercase letters, digits or dashes")
	}
	if p.DisplayName == "" {
		return domain.NewReason(domain.ErrInvalidArgument, "missing_display_name", "display name is required")
	}
	if !validDuration(p.DurationDays) {
		return domain.NewReason(domain.ErrInvalidArgument, "invalid_duration", "duration is not one of the allowed values").
			With("durationDays", p.DurationDays).
			With("allowed", AllowedDurations)
	}
	seen := make(map[Region]bool, len(p.PriceBook))
	for i := range p.PriceBook {
		e := &p.PriceBook[i]
		e.Region = Region(strings.ToUpper(string(e.Region)))
		e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
		if !e.Region.Valid() {
			return domain.NewReason(domain.ErrInvalidArgument, "invalid_region", "unknown price region").With("region", e.Region)
		}
		if e.Currency != e.Region.Currency() {
			return domain.NewReason(domain.ErrInvalidArgument, "currency_region_mismatch", "currency does not match region").
				With("region", e.Region).
				With("currency", e.Currency).
				With("expected", e.Region.Currency())
		}
		if e.AmountMinor < 0 {
			return domain.NewReason(domain.ErrInvalidArgument, "negative_amount", "amount must not be negative").With("region", e.Region)
		}
		if !e.IsActive() {
			continue
		}
		if seen[e.Region] {
			return domain.NewReason(domain.ErrInvalidArgument, "duplicate_region_price", "more than one active price for region").With("region", e.Region)
		}
		seen[e.Region] = true
	}
	return nil
}

func validDuration(d int) bool {
	for _, a := range AllowedDurations {
		if a == d {
			return true
		}
	}
	return false
}

// PriceFor returns the active price entry for a region.
func (p *MembershipPlan) PriceFor(r Region) (PriceEntry, bool) {
	for _, e := range p.PriceBook {
		if e.Region == r && e.IsActive() {
			return e, true
		}
	}
	return PriceEntry{}, false
}

// ActiveRegions lists the regions the plan can be bought from.
func (p *MembershipPlan) ActiveRegions() []Region {
	var out []Region
	for _, e := range p.PriceBook {
		if e.IsActive() {
			out = append(out, e.Region)
		}
	}
	return out
}
