//go:build !integration

package api

import (
	"context"
	"net/http"

	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/usecase"
)

type mockPlanUC struct {
	ListFunc func(ctx context.Context) ([]*model.MembershipPlan, error)
}

func (m *mockPlanUC) Resolve(ctx context.Context, ref string) (*model.MembershipPlan, error) {
	return nil, nil
}

func (m *mockPlanUC) List(ctx context.Context) ([]*model.MembershipPlan, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockPlanUC) Save(ctx context.Context, plan *model.MembershipPlan) error { return nil }

type mockPricingUC struct {
	QuoteFunc func(ctx context.Context, in usecase.QuoteInput) (*model.Quote, error)
}

func (m *mockPricingUC) ComputeDiscount(ctx context.Context, code, userID string, region model.Region, base int64) (model.DiscountResult, error) {
	return model.DiscountResult{}, nil
}

func (m *mockPricingUC) Quote(ctx context.Context, in usecase.QuoteInput) (*model.Quote, error) {
	return m.QuoteFunc(ctx, in)
}

func (m *mockPricingUC) QuotePlan(ctx context.Context, plan *model.MembershipPlan, in usecase.QuoteInput) (*model.Quote, error) {
	return m.QuoteFunc(ctx, in)
}

type mockCheckoutUC struct {
	StartFunc func(ctx context.Context, in usecase.StartCheckoutInput) (*usecase.CheckoutIntent, error)
}

func (m *mockCheckoutUC) Start(ctx context.Context, in usecase.StartCheckoutInput) (*usecase.CheckoutIntent, error) {
	return m.StartFunc(ctx, in)
}

type mockMembershipUC struct {
	CurrentFunc   func(ctx context.Context, userID string) (*usecase.MembershipView, error)
	PurchaseFunc  func(ctx context.Context, userID, purchaseID string) (*model.MembershipPurchase, error)
	PurchasesFunc func(ctx context.Context, userID string) ([]*model.MembershipPurchase, error)
}

func (m *mockMembershipUC) Current(ctx context.Context, userID string) (*usecase.MembershipView, error) {
	return m.CurrentFunc(ctx, userID)
}

func (m *mockMembershipUC) Purchase(ctx context.Context, userID, purchaseID string) (*model.MembershipPurchase, error) {
	return m.PurchaseFunc(ctx, userID, purchaseID)
}

func (m *mockMembershipUC) Purchases(ctx context.Context, userID string) ([]*model.MembershipPurchase, error) {
	return m.PurchasesFunc(ctx, userID)
}

func (m *mockMembershipUC) ExpireLapsed(ctx context.Context) (int, error) { return 0, nil }

type mockWebhookUC struct {
	HandleFunc   func(ctx context.Context, provider model.Provider, payload []byte, headers http.Header) (*usecase.WebhookResult, error)
	MarkPaidFunc func(ctx context.Context, purchaseID string, provider model.Provider, providerRef string) (*usecase.SettleResult, error)
}

func (m *mockWebhookUC) Handle(ctx context.Context, provider model.Provider, payload []byte, headers http.Header) (*usecase.WebhookResult, error) {
	return m.HandleFunc(ctx, provider, payload, headers)
}

func (m *mockWebhookUC) MarkPaidManually(ctx context.Context, purchaseID string, provider model.Provider, providerRef string) (*usecase.SettleResult, error) {
	return m.MarkPaidFunc(ctx, purchaseID, provider, providerRef)
}
