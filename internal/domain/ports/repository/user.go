package repository

import (
	"context"
	"time"

	"linkhub-membership/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	// FindByID locks the row when called inside a transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByReferralCode(ctx context.Context, tx Tx, code string) (*model.User, error)
	// SetReferralIfUnset writes the referral only when referred_by is empty.
	SetReferralIfUnset(ctx context.Context, tx Tx, userID string, ref model.Referral) (bool, error)
	UpdateMembership(ctx context.Context, tx Tx, userID string, m model.MembershipSnapshot) error
	// ExpireLapsed flips active memberships whose period ended before now.
	ExpireLapsed(ctx context.Context, tx Tx, now time.Time) (int, error)
}

// -----------------------------
// Membership history
// -----------------------------

type MembershipHistoryRepository interface {
	Append(ctx context.Context, tx Tx, e *model.MembershipHistoryEntry) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.MembershipHistoryEntry, error)
}
