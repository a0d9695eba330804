// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

const (
	stripeEventCompleted      = "checkout.session.completed"
	stripeEventAsyncSucceeded = "checkout.session.async_payment_succeeded"
	stripeEventAsyncFailed    = "checkout.session.async_payment_failed"
	stripeEventExpired        = "checkout.session.expired"
)

// checkoutSessions is the subset of the Stripe client the gateway uses.
type checkoutSessions interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	Retrieve(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error)
}

// StripeGateway opens hosted Checkout Sessions and verifies Stripe webhooks.
type StripeGateway struct {
	sessions      checkoutSessions
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeGateway(cfg config.StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("stripe success/cancel urls are required")
	}
	sc := stripe.NewClient(cfg.SecretKey)
	return newStripeGateway(sc.V1CheckoutSessions, cfg), nil
}

func newStripeGateway(sessions checkoutSessions, cfg config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

func (g *StripeGateway) Provider() model.Provider { return model.ProviderStripe }

// successURLFor appends the purchase id and the session placeholder Stripe
// substitutes on redirect.
func (g *StripeGateway) successURLFor(purchaseID string) string {
	sep := "?"
	if strings.Contains(g.successURL, "?") {
		sep = "&"
	}
	return g.successURL + sep + "purchase=" + url.QueryEscape(purchaseID) + "&session_id={CHECKOUT_SESSION_ID}"
}

func (g *StripeGateway) CreateSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	p := req.Purchase
	if p == nil {
		return nil, domain.ErrInvalidArgument
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(p.Currency)),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%s (%d days)", req.PlanName, p.DurationDays)),
				},
				UnitAmount: stripe.Int64(p.FinalAmountMinor),
			},
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(p.ID),
		SuccessURL:        stripe.String(g.successURLFor(p.ID)),
		CancelURL:         stripe.String(g.cancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("purchaseId", p.ID)
	params.AddMetadata("plan", req.PlanSlug)
	params.SetIdempotencyKey("checkout-" + p.ID)

	s, err := g.sessions.Create(ctx, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return &adapter.CheckoutSession{
		Provider:    model.ProviderStripe,
		Reference:   s.ID,
		RedirectURL: s.URL,
		AmountMinor: p.FinalAmountMinor,
		Currency:    p.Currency,
	}, nil
}

func (g *StripeGateway) FetchStatus(ctx context.Context, reference string) (*adapter.RemoteStatus, error) {
	s, err := g.sessions.Retrieve(ctx, reference, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return &adapter.RemoteStatus{
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Reference:   s.ID,
		Currency:    strings.ToUpper(string(s.Currency)),
		AmountMinor: s.AmountTotal,
	}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, headers http.Header) (*model.PaymentEvent, error) {
	sig := headers.Get("Stripe-Signature")
	if sig == "" || g.webhookSecret == "" {
		return nil, domain.NewReason(domain.ErrSignatureInvalid, "missing_signature", "Missing signature/secret")
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, domain.NewReason(domain.ErrSignatureInvalid, "invalid_signature", "Invalid signature").Wrap(err)
	}

	ev := &model.PaymentEvent{
		Provider: model.ProviderStripe,
		EventID:  event.ID,
		Type:     string(event.Type),
		Kind:     model.PaymentIgnored,
	}
	switch ev.Type {
	case stripeEventCompleted, stripeEventAsyncSucceeded, stripeEventAsyncFailed, stripeEventExpired:
	default:
		return ev, nil
	}
	if event.Data == nil {
		return ev, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		ev.Malformed = true
		return ev, nil
	}
	ev.PurchaseID = s.Metadata["purchaseId"]
	if ev.PurchaseID == "" {
		ev.PurchaseID = s.ClientReferenceID
	}
	ev.ProviderRef = s.ID
	ev.OrderID = s.ID
	ev.Currency = strings.ToUpper(string(s.Currency))
	ev.AmountMinor = s.AmountTotal

	switch ev.Type {
	case stripeEventCompleted:
		// Delayed methods complete unpaid and settle through async_payment_succeeded.
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			ev.Kind = model.PaymentSucceeded
		}
	case stripeEventAsyncSucceeded:
		ev.Kind = model.PaymentSucceeded
	case stripeEventAsyncFailed:
		ev.Kind = model.PaymentFailed
		ev.FailureCode = "async_payment_failed"
		ev.FailureReason = string(s.PaymentStatus)
	}
	return ev, nil
}

// wrapStripeError keeps the Stripe error code in the returned chain.
func wrapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%w: stripe %d %s (request %s): %s", domain.ErrGateway, se.HTTPStatusCode, se.Code, se.RequestID, se.Msg)
	}
	return fmt.Errorf("%w: stripe: %v", domain.ErrGateway, err)
}
