//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/usecase"
)

type webhookFixture struct {
	*checkoutFixture
	dedupe *MockDeduper
	uc     usecase.WebhookUseCase
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	cf := newCheckoutFixture(t)
	f := &webhookFixture{checkoutFixture: cf, dedupe: NewMockDeduper()}
	f.uc = usecase.NewWebhookUseCase(cf.gateways, cf.purchases, f.dedupe, cf.settle, cf.notifier, usecase.WebhookConfig{DedupeTTL: time.Hour}, newTestLogger())
	return f
}

func (f *webhookFixture) emit(ev *model.PaymentEvent) {
	f.stripe.ParseWebhookFunc = func(payload []byte, headers http.Header) (*model.PaymentEvent, error) {
		cp := *ev
		return &cp, nil
	}
}

func TestWebhookUseCase_Handle_AppliesPaidPurchase(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	p := seedPurchase(t, f.checkoutFixture, model.RegionINTL, "", false)
	f.emit(&model.PaymentEvent{
		Provider:    model.ProviderStripe,
		EventID:     "evt_1",
		Type:        "checkout.session.completed",
		Kind:        model.PaymentSucceeded,
		PurchaseID:  p.ID,
		ProviderRef: "cs_1",
		Currency:    "USD",
		AmountMinor: 1199,
	})

	// Act
	res, err := f.uc.Handle(context.Background(), model.ProviderStripe, []byte(`{}`), http.Header{})

	// Assert
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Outcome != usecase.WebhookApplied || res.PurchaseID != p.ID || res.EventID != "evt_1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !f.purchases.Get(p.ID).Paid {
		t.Fatal("purchase not marked paid")
	}
}

func TestWebhookUseCase_Handle_DuplicateDeliveryIsIgnored(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	p := seedPurchase(t, f.checkoutFixture, model.RegionINTL, "", false)
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_dup", Kind: model.PaymentSucceeded, PurchaseID: p.ID})
	if _, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil); err != nil {
		t.Fatalf("first Handle: %v", err)
	}

	// Act
	res, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

	// Assert
	if err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if res.Outcome != usecase.WebhookDuplicate {
		t.Fatalf("outcome = %s, want duplicate", res.Outcome)
	}
	if f.history.Len() != 1 {
		t.Fatalf("history entries = %d, want 1", f.history.Len())
	}
}

func TestWebhookUseCase_Handle_NewEventForPaidPurchase(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	p := seedPurchase(t, f.checkoutFixture, model.RegionINTL, "", false)
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_a", Kind: model.PaymentSucceeded, PurchaseID: p.ID})
	_, _ = f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_b", Kind: model.PaymentSucceeded, PurchaseID: p.ID})

	// Act
	res, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

	// Assert
	if err != nil || res.Outcome != usecase.WebhookAlreadyPaid {
		t.Fatalf("expected already_paid, got %v %+v", err, res)
	}
}

func TestWebhookUseCase_Handle_SignatureFailure(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)

	// Act
	_, err := f.uc.Handle(context.Background(), model.ProviderStripe, []byte(`{}`), http.Header{})

	// Assert
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestWebhookUseCase_Handle_UnconfiguredGateway(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)

	// Act
	_, err := f.uc.Handle(context.Background(), model.ProviderManual, nil, nil)

	// Assert
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if re, ok := domain.AsReason(err); !ok || re.Reason != "gateway_not_configured" {
		t.Fatalf("expected gateway_not_configured reason, got %v", err)
	}
}

func TestWebhookUseCase_Handle_MalformedBodyIsAcknowledged(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_bad", Kind: model.PaymentIgnored, Malformed: true})

	// Act
	res, err := f.uc.Handle(context.Background(), model.ProviderStripe, []byte(`{`), http.Header{})

	// Assert
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Outcome != usecase.WebhookIgnored || res.EventID != "evt_bad" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestWebhookUseCase_Handle_CorrelatesByOrderID(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	p := seedPurchase(t, f.checkoutFixture, model.RegionIN, "", false)
	f.razorpay.ParseWebhookFunc = func(payload []byte, headers http.Header) (*model.PaymentEvent, error) {
		return &model.PaymentEvent{
			Provider:    model.ProviderRazorpay,
			EventID:     "payment.captured:pay_9",
			Type:        "payment.captured",
			Kind:        model.PaymentSucceeded,
			ProviderRef: "pay_9",
			OrderID:     p.ProviderRef,
			Currency:    "INR",
		}, nil
	}

	// Act
	res, err := f.uc.Handle(context.Background(), model.ProviderRazorpay, []byte(`{}`), http.Header{})

	// Assert
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Outcome != usecase.WebhookApplied || res.PurchaseID != p.ID {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := f.purchases.Get(p.ID)
	if !got.Paid || got.ProviderRef != "pay_9" {
		t.Fatalf("purchase not settled by order id: %+v", got)
	}
}

func TestWebhookUseCase_Handle_OrderLookupError(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	boom := errors.New("db down")
	f.purchases.FindByProviderRefFunc = func(ctx context.Context, tx repository.Tx, provider model.Provider, ref string) (*model.MembershipPurchase, error) {
		return nil, boom
	}
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_o", Kind: model.PaymentSucceeded, OrderID: "cs_x"})

	// Act
	_, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

	// Assert
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if len(f.dedupe.Released) != 1 || f.dedupe.Released[0] != "stripe:evt_o" {
		t.Fatalf("dedupe key not released: %v", f.dedupe.Released)
	}
}

func TestWebhookUseCase_Handle_Outcomes(t *testing.T) {
	cases := []struct {
		name string
		ev   model.PaymentEvent
		want usecase.WebhookOutcome
	}{
		{
			name: "ignored event",
			ev:   model.PaymentEvent{EventID: "evt_i", Kind: model.PaymentIgnored, Type: "checkout.session.expired"},
			want: usecase.WebhookIgnored,
		},
		{
			name: "success without purchase id",
			ev:   model.PaymentEvent{EventID: "evt_n", Kind: model.PaymentSucceeded},
			want: usecase.WebhookNoPurchase,
		},
		{
			name: "success with an unknown order id",
			ev:   model.PaymentEvent{EventID: "evt_r", Kind: model.PaymentSucceeded, OrderID: "cs_unknown"},
			want: usecase.WebhookNoPurchase,
		},
		{
			name: "unknown purchase",
			ev:   model.PaymentEvent{EventID: "evt_u", Kind: model.PaymentSucceeded, PurchaseID: "nope"},
			want: usecase.WebhookUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			f := newWebhookFixture(t)
			ev := tc.ev
			ev.Provider = model.ProviderStripe
			f.emit(&ev)

			// Act
			res, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

			// Assert
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.Outcome != tc.want {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tc.want)
			}
		})
	}
}

func TestWebhookUseCase_Handle_FailureNotifiesAdmins(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	f.emit(&model.PaymentEvent{
		Provider:      model.ProviderStripe,
		EventID:       "evt_f",
		Kind:          model.PaymentFailed,
		PurchaseID:    "p1",
		FailureCode:   "card_declined",
		FailureReason: "insufficient funds",
	})

	// Act
	res, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

	// Assert
	if err != nil || res.Outcome != usecase.WebhookFailureLogged {
		t.Fatalf("expected failure_logged, got %v %+v", err, res)
	}
	if f.notifier.Count() != 1 {
		t.Fatalf("admin notifications = %d, want 1", f.notifier.Count())
	}
}

func TestWebhookUseCase_Handle_ReleasesDedupeKeyOnError(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	p := seedPurchase(t, f.checkoutFixture, model.RegionINTL, "", false)
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_r", Kind: model.PaymentSucceeded, PurchaseID: p.ID})
	boom := errors.New("db down")
	f.purchases.MarkPaidIfUnpaidFunc = func(ctx context.Context, tx repository.Tx, id string, upd repository.PaidUpdate) (bool, error) {
		return false, boom
	}

	// Act
	_, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

	// Assert
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(f.dedupe.Released) != 1 || f.dedupe.Released[0] != "stripe:evt_r" {
		t.Fatalf("dedupe key not released: %v", f.dedupe.Released)
	}

	// A redelivery after recovery is processed.
	f.purchases.MarkPaidIfUnpaidFunc = nil
	res, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)
	if err != nil || res.Outcome != usecase.WebhookApplied {
		t.Fatalf("redelivery: %v %+v", err, res)
	}
}

func TestWebhookUseCase_Handle_DedupeStoreError(t *testing.T) {
	// Arrange
	f := newWebhookFixture(t)
	f.emit(&model.PaymentEvent{Provider: model.ProviderStripe, EventID: "evt_x", Kind: model.PaymentSucceeded, PurchaseID: "p"})
	boom := errors.New("redis down")
	f.dedupe.MarkSeenFunc = func(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
		return false, boom
	}

	// Act
	_, err := f.uc.Handle(context.Background(), model.ProviderStripe, nil, nil)

	// Assert
	if !errors.Is(err, boom) {
		t.Fatalf("expected dedupe error, got %v", err)
	}
}

func TestWebhookUseCase_MarkPaidManually(t *testing.T) {
	f := newWebhookFixture(t)
	p := seedPurchase(t, f.checkoutFixture, model.RegionIN, "", false)

	t.Run("invalid provider", func(t *testing.T) {
		_, err := f.uc.MarkPaidManually(context.Background(), p.ID, "paypal", "x")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
	t.Run("unknown purchase", func(t *testing.T) {
		_, err := f.uc.MarkPaidManually(context.Background(), "nope", "", "")
		if re, ok := domain.AsReason(err); !ok || re.Reason != "purchase_not_found" {
			t.Fatalf("expected purchase_not_found, got %v", err)
		}
	})
	t.Run("first mark applies", func(t *testing.T) {
		res, err := f.uc.MarkPaidManually(context.Background(), p.ID, "", "bank-123")
		if err != nil || !res.Applied {
			t.Fatalf("MarkPaidManually: %v %+v", err, res)
		}
		if got := f.purchases.Get(p.ID); got.Provider != model.ProviderManual || got.ProviderRef != "bank-123" {
			t.Fatalf("unexpected purchase: %+v", got)
		}
	})
	t.Run("second mark conflicts", func(t *testing.T) {
		_, err := f.uc.MarkPaidManually(context.Background(), p.ID, model.ProviderRazorpay, "pay_1")
		if !errors.Is(err, domain.ErrAlreadyPaid) {
			t.Fatalf("expected ErrAlreadyPaid, got %v", err)
		}
	})
}

func TestReconcileUseCase_ReconcileStale(t *testing.T) {
	// Arrange
	f := newCheckoutFixture(t)
	paid := seedPurchase(t, f, model.RegionINTL, "", false)
	pending := seedPurchase(t, f, model.RegionIN, "", false)
	broken := seedPurchase(t, f, model.RegionEU, "", false)
	for _, p := range []*model.MembershipPurchase{paid, pending, broken} {
		p.CreatedAt = time.Now().Add(-time.Hour)
		f.purchases.Seed(p)
	}
	f.stripe.FetchStatusFunc = func(ctx context.Context, ref string) (*adapter.RemoteStatus, error) {
		if ref == broken.ProviderRef {
			return nil, errors.New("stripe timeout")
		}
		return &adapter.RemoteStatus{Paid: true, Reference: ref, Currency: "USD", AmountMinor: 1199}, nil
	}
	f.razorpay.FetchStatusFunc = func(ctx context.Context, ref string) (*adapter.RemoteStatus, error) {
		return &adapter.RemoteStatus{Paid: false, Reference: ref}, nil
	}
	uc := usecase.NewReconcileUseCase(f.purchases, f.gateways, f.settle, time.Second, newTestLogger())

	// Act
	n, err := uc.ReconcileStale(context.Background(), time.Now().Add(-15*time.Minute), 50)

	// Assert
	if err != nil {
		t.Fatalf("ReconcileStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if !f.purchases.Get(paid.ID).Paid {
		t.Fatal("stripe purchase should be settled")
	}
	if f.purchases.Get(pending.ID).Paid || f.purchases.Get(broken.ID).Paid {
		t.Fatal("unpaid purchases must stay unpaid")
	}
}

func TestReconcileUseCase_SkipsFreshPurchases(t *testing.T) {
	// Arrange
	f := newCheckoutFixture(t)
	seedPurchase(t, f, model.RegionINTL, "", false)
	calls := 0
	f.stripe.FetchStatusFunc = func(ctx context.Context, ref string) (*adapter.RemoteStatus, error) {
		calls++
		return &adapter.RemoteStatus{Paid: true, Reference: ref}, nil
	}
	uc := usecase.NewReconcileUseCase(f.purchases, f.gateways, f.settle, time.Second, newTestLogger())

	// Act
	n, err := uc.ReconcileStale(context.Background(), time.Now().Add(-15*time.Minute), 50)

	// Assert
	if err != nil || n != 0 || calls != 0 {
		t.Fatalf("expected nothing reconciled, got n=%d calls=%d err=%v", n, calls, err)
	}
}

func TestMembershipUseCase_CurrentAndExpire(t *testing.T) {
	// Arrange
	f := newCheckoutFixture(t)
	p := seedPurchase(t, f, model.RegionEU, "", false)
	if _, err := f.settle.Settle(context.Background(), p.ID, repository.PaidUpdate{Provider: model.ProviderStripe}); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	uc := usecase.NewMembershipUseCase(f.users, f.history, f.purchases, newTestLogger())

	// Act
	view, err := uc.Current(context.Background(), f.user.ID)

	// Assert
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !view.Active || len(view.History) != 1 || view.History[0].PurchaseID != p.ID {
		t.Fatalf("unexpected view: %+v", view)
	}

	// Lapse the period and expire.
	u := f.users.Get(f.user.ID)
	past := time.Now().Add(-time.Minute)
	u.Membership.CurrentPeriodEnd = &past
	_ = f.users.Save(context.Background(), repository.NoTX, u)

	n, err := uc.ExpireLapsed(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ExpireLapsed: n=%d err=%v", n, err)
	}
	if got := f.users.Get(f.user.ID).Membership.Status; got != model.MembershipInactive {
		t.Fatalf("status = %s, want inactive", got)
	}
}

func TestMembershipUseCase_Current_EmptyHistory(t *testing.T) {
	// Arrange
	f := newCheckoutFixture(t)
	uc := usecase.NewMembershipUseCase(f.users, f.history, f.purchases, newTestLogger())

	// Act
	view, err := uc.Current(context.Background(), f.user.ID)

	// Assert
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if view.Active || view.History == nil {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestMembershipUseCase_Purchase_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t)
	p := seedPurchase(t, f, model.RegionEU, "", false)
	other := newTestUser(t, "other@example.test", "other")
	uc := usecase.NewMembershipUseCase(f.users, f.history, f.purchases, newTestLogger())

	t.Run("owner reads the purchase", func(t *testing.T) {
		got, err := uc.Purchase(ctx, f.user.ID, p.ID)
		if err != nil {
			t.Fatalf("Purchase: %v", err)
		}
		if got.ID != p.ID || got.Paid || got.Currency != "EUR" {
			t.Fatalf("unexpected purchase: %+v", got)
		}
	})
	t.Run("another user gets not found", func(t *testing.T) {
		_, err := uc.Purchase(ctx, other.ID, p.ID)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if re, ok := domain.AsReason(err); !ok || re.Reason != "purchase_not_found" {
			t.Fatalf("expected purchase_not_found, got %v", err)
		}
	})
	t.Run("unknown id gets not found", func(t *testing.T) {
		_, err := uc.Purchase(ctx, f.user.ID, "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMembershipUseCase_Purchases_NewestFirst(t *testing.T) {
	// Arrange
	f := newCheckoutFixture(t)
	older := seedPurchase(t, f, model.RegionEU, "", false)
	newer := seedPurchase(t, f, model.RegionINTL, "", false)
	o := f.purchases.Get(older.ID)
	o.CreatedAt = time.Now().Add(-time.Hour)
	f.purchases.Seed(o)
	uc := usecase.NewMembershipUseCase(f.users, f.history, f.purchases, newTestLogger())

	// Act
	list, err := uc.Purchases(context.Background(), f.user.ID)

	// Assert
	if err != nil {
		t.Fatalf("Purchases: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("unexpected order: %+v", list)
	}

	empty, err := uc.Purchases(context.Background(), "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", empty, err)
	}
}
