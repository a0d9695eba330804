package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
)

const testStripeSecret = "whsec_test"

type fakeSessions struct {
	CreateFunc   func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	RetrieveFunc func(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error)
}

func (f *fakeSessions) Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return f.CreateFunc(ctx, params)
}

func (f *fakeSessions) Retrieve(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error) {
	return f.RetrieveFunc(ctx, id, params)
}

func newTestStripe(f *fakeSessions) *StripeGateway {
	return newStripeGateway(f, config.StripeConfig{
		SecretKey:     "sk_test",
		WebhookSecret: testStripeSecret,
		SuccessURL:    "https://app.example.test/membership/success",
		CancelURL:     "https://app.example.test/membership/cancel",
	})
}

func signedStripeHeaders(t *testing.T, body string) http.Header {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func stripeEvent(eventType, paymentStatus string) string {
	return `{"id":"evt_1","object":"event","api_version":"2020-08-27","type":"` + eventType + `",` +
		`"data":{"object":{"id":"cs_test_1","object":"checkout.session","payment_status":"` + paymentStatus + `",` +
		`"currency":"usd","amount_total":1799,"client_reference_id":"p-ref","metadata":{"purchaseId":"p-meta"}}}}`
}

func TestStripeGateway_CreateSession(t *testing.T) {
	t.Run("should send the final amount and correlate by purchase id", func(t *testing.T) {
		// Arrange
		var got *stripe.CheckoutSessionCreateParams
		gw := newTestStripe(&fakeSessions{
			CreateFunc: func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
				got = params
				return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
			},
		})
		p := &model.MembershipPurchase{ID: "p1", Currency: "USD", DurationDays: 30, FinalAmountMinor: 899}

		// Act
		sess, err := gw.CreateSession(context.Background(), adapter.CheckoutRequest{
			Purchase: p, PlanSlug: "pro-monthly", PlanName: "Pro", CustomerEmail: "a@example.test",
		})

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sess.Reference != "cs_1" || sess.RedirectURL == "" || sess.Provider != model.ProviderStripe {
			t.Errorf("unexpected session: %+v", sess)
		}
		li := got.LineItems[0]
		if *li.PriceData.UnitAmount != 899 || *li.PriceData.Currency != "usd" || *li.Quantity != 1 {
			t.Errorf("unexpected line item: amount=%d currency=%s", *li.PriceData.UnitAmount, *li.PriceData.Currency)
		}
		if *li.PriceData.ProductData.Name != "Pro (30 days)" {
			t.Errorf("unexpected product name %q", *li.PriceData.ProductData.Name)
		}
		if got.Metadata["purchaseId"] != "p1" || *got.ClientReferenceID != "p1" {
			t.Errorf("purchase id not attached: %v", got.Metadata)
		}
		if !strings.HasSuffix(*got.SuccessURL, "?purchase=p1&session_id={CHECKOUT_SESSION_ID}") {
			t.Errorf("unexpected success url %q", *got.SuccessURL)
		}
	})

	t.Run("should map stripe errors to gateway errors", func(t *testing.T) {
		// Arrange
		gw := newTestStripe(&fakeSessions{
			CreateFunc: func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
				return nil, &stripe.Error{HTTPStatusCode: 402, Code: stripe.ErrorCodeCardDeclined, Msg: "declined"}
			},
		})

		// Act
		_, err := gw.CreateSession(context.Background(), adapter.CheckoutRequest{
			Purchase: &model.MembershipPurchase{ID: "p1", Currency: "USD", FinalAmountMinor: 100},
		})

		// Assert
		if !errors.Is(err, domain.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}
	})
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	gw := newTestStripe(&fakeSessions{})

	t.Run("should reject a bad signature", func(t *testing.T) {
		h := http.Header{}
		h.Set("Stripe-Signature", "t=1,v1=deadbeef")
		_, err := gw.ParseWebhook([]byte(stripeEvent("checkout.session.completed", "paid")), h)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("should reject a missing signature", func(t *testing.T) {
		_, err := gw.ParseWebhook([]byte(stripeEvent("checkout.session.completed", "paid")), http.Header{})
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	cases := []struct {
		name      string
		eventType string
		status    string
		want      model.PaymentEventKind
	}{
		{"completed and paid", "checkout.session.completed", "paid", model.PaymentSucceeded},
		{"completed but unpaid", "checkout.session.completed", "unpaid", model.PaymentIgnored},
		{"async succeeded", "checkout.session.async_payment_succeeded", "paid", model.PaymentSucceeded},
		{"async failed", "checkout.session.async_payment_failed", "unpaid", model.PaymentFailed},
		{"unrelated event", "customer.created", "paid", model.PaymentIgnored},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := stripeEvent(tc.eventType, tc.status)
			ev, err := gw.ParseWebhook([]byte(body), signedStripeHeaders(t, body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Kind != tc.want {
				t.Fatalf("kind = %s, want %s", ev.Kind, tc.want)
			}
			if ev.EventID != "evt_1" {
				t.Errorf("event id = %q", ev.EventID)
			}
			if tc.want == model.PaymentIgnored && tc.eventType == "customer.created" {
				return
			}
			if ev.PurchaseID != "p-meta" || ev.ProviderRef != "cs_test_1" || ev.Currency != "USD" || ev.AmountMinor != 1799 {
				t.Errorf("unexpected event: %+v", ev)
			}
		})
	}

	t.Run("should fall back to client reference id", func(t *testing.T) {
		body := strings.Replace(stripeEvent("checkout.session.completed", "paid"), `"metadata":{"purchaseId":"p-meta"}`, `"metadata":{}`, 1)
		ev, err := gw.ParseWebhook([]byte(body), signedStripeHeaders(t, body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.PurchaseID != "p-ref" {
			t.Errorf("purchase id = %q, want p-ref", ev.PurchaseID)
		}
	})

	t.Run("should acknowledge a signed session it cannot decode", func(t *testing.T) {
		body := strings.Replace(stripeEvent("checkout.session.completed", "paid"), `"amount_total":1799`, `"amount_total":"lots"`, 1)
		ev, err := gw.ParseWebhook([]byte(body), signedStripeHeaders(t, body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ev.Malformed || ev.Kind != model.PaymentIgnored || ev.EventID != "evt_1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	})
}

func TestStripeGateway_FetchStatus(t *testing.T) {
	gw := newTestStripe(&fakeSessions{
		RetrieveFunc: func(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error) {
			return &stripe.CheckoutSession{
				ID:            id,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				Currency:      stripe.CurrencyUSD,
				AmountTotal:   1799,
			}, nil
		},
	})

	st, err := gw.FetchStatus(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.Paid || st.Currency != "USD" || st.AmountMinor != 1799 || st.Reference != "cs_1" {
		t.Errorf("unexpected status: %+v", st)
	}
}
