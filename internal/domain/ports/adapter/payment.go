package adapter

import (
	"context"
	"net/http"

	"linkhub-membership/internal/domain/model"
)

// CheckoutRequest is what a gateway needs to open a remote session for an
// unpaid purchase.
type CheckoutRequest struct {
	Purchase      *model.MembershipPurchase
	PlanSlug      string
	PlanName      string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
}

// CheckoutSession is the gateway's answer. Reference is the correlation key
// persisted as the purchase providerRef.
type CheckoutSession struct {
	Provider    model.Provider `json:"gateway"`
	Reference   string         `json:"reference"`
	RedirectURL string         `json:"url,omitempty"`
	KeyID       string         `json:"keyId,omitempty"`
	AmountMinor int64          `json:"amount"`
	Currency    string         `json:"currency"`
}

// RemoteStatus is the gateway's current view of a session or order.
type RemoteStatus struct {
	Paid        bool
	Reference   string
	Currency    string
	AmountMinor int64
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Provider() model.Provider

	// CreateSession opens a hosted checkout (Stripe) or an order (Razorpay)
	// priced at the purchase's final amount.
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// ParseWebhook verifies the signature over the raw body and normalizes the
	// event. Verification failures wrap domain.ErrSignatureInvalid.
	ParseWebhook(payload []byte, headers http.Header) (*model.PaymentEvent, error)

	// FetchStatus asks the provider about a reference returned by CreateSession.
	FetchStatus(ctx context.Context, reference string) (*RemoteStatus, error)
}
