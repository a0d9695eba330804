package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

// MembershipView is the user's current snapshot plus recent receipts.
type MembershipView struct {
	Membership model.MembershipSnapshot        `json:"membership"`
	History    []*model.MembershipHistoryEntry `json:"history"`
	Active     bool                            `json:"active"`
}

type MembershipUseCase interface {
	Current(ctx context.Context, userID string) (*MembershipView, error)
	// Purchase returns one of the user's purchases. Purchases owned by
	// someone else are reported as not found.
	Purchase(ctx context.Context, userID, purchaseID string) (*model.MembershipPurchase, error)
	// Purchases lists the user's most recent purchases, newest first.
	Purchases(ctx context.Context, userID string) ([]*model.MembershipPurchase, error)
	// ExpireLapsed marks memberships whose period ended as inactive.
	ExpireLapsed(ctx context.Context) (int, error)
}

var _ MembershipUseCase = (*membershipUC)(nil)

const purchaseListLimit = 20

type membershipUC struct {
	users     repository.UserRepository
	history   repository.MembershipHistoryRepository
	purchases repository.PurchaseRepository
	log       *zerolog.Logger
}

func NewMembershipUseCase(
	users repository.UserRepository,
	history repository.MembershipHistoryRepository,
	purchases repository.PurchaseRepository,
	logger *zerolog.Logger,
) MembershipUseCase {
	return &membershipUC{users: users, history: history, purchases: purchases, log: orNop(logger)}
}

func (u *membershipUC) Current(ctx context.Context, userID string) (*MembershipView, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	hist, err := u.history.ListByUser(ctx, repository.NoTX, userID, 20)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = []*model.MembershipHistoryEntry{}
	}
	return &MembershipView{
		Membership: user.Membership,
		History:    hist,
		Active:     user.Membership.IsActive(time.Now()),
	}, nil
}

func (u *membershipUC) Purchase(ctx context.Context, userID, purchaseID string) (*model.MembershipPurchase, error) {
	notFound := domain.NewReason(domain.ErrNotFound, "purchase_not_found", "Purchase not found.")
	if purchaseID == "" {
		return nil, notFound
	}
	p, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, notFound
	}
	return p, nil
}

func (u *membershipUC) Purchases(ctx context.Context, userID string) ([]*model.MembershipPurchase, error) {
	out, err := u.purchases.ListByUser(ctx, repository.NoTX, userID, purchaseListLimit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*model.MembershipPurchase{}
	}
	return out, nil
}

func (u *membershipUC) ExpireLapsed(ctx context.Context) (int, error) {
	n, err := u.users.ExpireLapsed(ctx, repository.NoTX, time.Now())
	if err != nil {
		u.log.Error().Err(err).Msg("expire lapsed memberships failed")
		return 0, err
	}
	return n, nil
}
