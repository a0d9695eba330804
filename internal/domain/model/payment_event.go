package model

// PaymentEventKind is the normalized meaning of a gateway webhook.
type PaymentEventKind string

const (
	PaymentSucceeded PaymentEventKind = "succeeded"
	PaymentFailed    PaymentEventKind = "failed"
	PaymentIgnored   PaymentEventKind = "ignored"
)

// PaymentEvent is a verified webhook reduced to what reconciliation needs.
// AmountMinor is zero when the provider did not report one. Malformed marks a
// correctly signed body whose payload could not be decoded.
type PaymentEvent struct {
	Provider      Provider
	EventID       string
	Type          string
	Kind          PaymentEventKind
	PurchaseID    string
	ProviderRef   string
	OrderID       string
	Currency      string
	AmountMinor   int64
	FailureCode   string
	FailureReason string
	Malformed     bool `json:"-"`
}
