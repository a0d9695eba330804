package repository

import (
	"context"
	"time"

	"linkhub-membership/internal/domain/model"
)

// PaidUpdate carries what the provider confirmed when a purchase is settled.
// Empty Currency and nil FinalAmountMinor keep the stored values.
type PaidUpdate struct {
	Provider         model.Provider
	ProviderRef      string
	Currency         string
	FinalAmountMinor *int64
	PaidAt           time.Time
}

type PurchaseRepository interface {
	Create(ctx context.Context, tx Tx, p *model.MembershipPurchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.MembershipPurchase, error)
	// FindByProviderRef returns the newest purchase carrying ref for provider.
	FindByProviderRef(ctx context.Context, tx Tx, provider model.Provider, ref string) (*model.MembershipPurchase, error)
	SetProviderRef(ctx context.Context, tx Tx, id string, provider model.Provider, ref string) error
	// MarkPaidIfUnpaid flips paid=false to true in a single statement and
	// reports whether this call performed the transition.
	MarkPaidIfUnpaid(ctx context.Context, tx Tx, id string, upd PaidUpdate) (bool, error)
	CountPaidByUserAndCoupon(ctx context.Context, tx Tx, userID, couponCode string) (int64, error)
	ListUnpaidWithRefOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.MembershipPurchase, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.MembershipPurchase, error)
}
