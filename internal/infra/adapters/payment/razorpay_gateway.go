// File: internal/infra/adapters/payment/razorpay_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*RazorpayGateway)(nil)

const (
	razorpayEventOrderPaid       = "order.paid"
	razorpayEventPaymentCaptured = "payment.captured"
	razorpayEventPaymentFailed   = "payment.failed"
)

// razorpayOrders mirrors the Order resource of the Razorpay client.
type razorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway creates INR orders for the client-side checkout widget.
type RazorpayGateway struct {
	orders        razorpayOrders
	keyID         string
	webhookSecret string
}

func NewRazorpayGateway(cfg config.RazorpayConfig) (*RazorpayGateway, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay key id/secret empty")
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return newRazorpayGateway(client.Order, cfg), nil
}

func newRazorpayGateway(orders razorpayOrders, cfg config.RazorpayConfig) *RazorpayGateway {
	return &RazorpayGateway{orders: orders, keyID: cfg.KeyID, webhookSecret: cfg.WebhookSecret}
}

func (g *RazorpayGateway) Provider() model.Provider { return model.ProviderRazorpay }

// call runs a blocking SDK call and gives up when ctx is done. The SDK has no
// context support, so an abandoned call finishes in the background.
func call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := fn()
		ch <- result{body, err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: razorpay: %v", domain.ErrGateway, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: razorpay: %v", domain.ErrGateway, r.err)
		}
		return r.body, nil
	}
}

func (g *RazorpayGateway) CreateSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	p := req.Purchase
	if p == nil {
		return nil, domain.ErrInvalidArgument
	}
	if !strings.EqualFold(p.Currency, "INR") {
		return nil, domain.NewReason(domain.ErrInvalidState, "currency_not_supported", "Razorpay only accepts INR.").
			With("currency", p.Currency)
	}
	data := map[string]interface{}{
		"amount":   p.FinalAmountMinor,
		"currency": "INR",
		"receipt":  p.ReceiptRef(),
		"notes": map[string]interface{}{
			"purchaseId": p.ID,
			"plan":       req.PlanSlug,
		},
	}
	body, err := call(ctx, func() (map[string]interface{}, error) { return g.orders.Create(data, nil) })
	if err != nil {
		return nil, err
	}
	orderID, _ := body["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("%w: razorpay: order without id", domain.ErrGateway)
	}
	amount := p.FinalAmountMinor
	if v, ok := body["amount"].(float64); ok {
		amount = int64(v)
	}
	return &adapter.CheckoutSession{
		Provider:    model.ProviderRazorpay,
		Reference:   orderID,
		KeyID:       g.keyID,
		AmountMinor: amount,
		Currency:    "INR",
	}, nil
}

func (g *RazorpayGateway) FetchStatus(ctx context.Context, reference string) (*adapter.RemoteStatus, error) {
	body, err := call(ctx, func() (map[string]interface{}, error) { return g.orders.Fetch(reference, nil, nil) })
	if err != nil {
		return nil, err
	}
	st := &adapter.RemoteStatus{Reference: reference}
	status, _ := body["status"].(string)
	st.Paid = status == "paid"
	if c, ok := body["currency"].(string); ok {
		st.Currency = strings.ToUpper(c)
	}
	if v, ok := body["amount_paid"].(float64); ok && v > 0 {
		st.AmountMinor = int64(v)
	} else if v, ok := body["amount"].(float64); ok {
		st.AmountMinor = int64(v)
	}
	return st, nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Order *struct {
			Entity razorpayOrderEntity `json:"entity"`
		} `json:"order"`
		Payment *struct {
			Entity razorpayPaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type razorpayOrderEntity struct {
	ID         string          `json:"id"`
	Amount     int64           `json:"amount"`
	AmountPaid int64           `json:"amount_paid"`
	Currency   string          `json:"currency"`
	Receipt    string          `json:"receipt"`
	Status     string          `json:"status"`
	Notes      json.RawMessage `json:"notes"`
}

type razorpayPaymentEntity struct {
	ID               string          `json:"id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	OrderID          string          `json:"order_id"`
	Notes            json.RawMessage `json:"notes"`
	ErrorCode        string          `json:"error_code"`
	ErrorReason      string          `json:"error_reason"`
	ErrorDescription string          `json:"error_description"`
}

// notePurchaseID reads notes.purchaseId. Razorpay sends an empty array
// instead of an object when there are no notes.
func notePurchaseID(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var notes map[string]interface{}
	if err := json.Unmarshal(raw, &notes); err != nil {
		return ""
	}
	s, _ := notes["purchaseId"].(string)
	return s
}

func (g *RazorpayGateway) ParseWebhook(payload []byte, headers http.Header) (*model.PaymentEvent, error) {
	sig := headers.Get("X-Razorpay-Signature")
	if sig == "" || g.webhookSecret == "" {
		return nil, domain.NewReason(domain.ErrSignatureInvalid, "missing_signature", "Missing signature/secret")
	}
	if !utils.VerifyWebhookSignature(string(payload), sig, g.webhookSecret) {
		return nil, domain.NewReason(domain.ErrSignatureInvalid, "invalid_signature", "Invalid signature")
	}

	ev := &model.PaymentEvent{
		Provider: model.ProviderRazorpay,
		EventID:  headers.Get("X-Razorpay-Event-Id"),
		Kind:     model.PaymentIgnored,
	}
	var wh razorpayWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		ev.Malformed = true
		return ev, nil
	}
	ev.Type = wh.Event

	var order *razorpayOrderEntity
	if wh.Payload.Order != nil {
		order = &wh.Payload.Order.Entity
	}
	var pay *razorpayPaymentEntity
	if wh.Payload.Payment != nil {
		pay = &wh.Payload.Payment.Entity
	}

	if order != nil {
		ev.OrderID = order.ID
		ev.Currency = strings.ToUpper(order.Currency)
		ev.AmountMinor = order.AmountPaid
		if ev.AmountMinor == 0 {
			ev.AmountMinor = order.Amount
		}
		if id, ok := model.PurchaseIDFromReceipt(order.Receipt); ok {
			ev.PurchaseID = id
		} else {
			ev.PurchaseID = notePurchaseID(order.Notes)
		}
	}
	if pay != nil {
		if ev.OrderID == "" {
			ev.OrderID = pay.OrderID
		}
		if ev.Currency == "" {
			ev.Currency = strings.ToUpper(pay.Currency)
		}
		if ev.AmountMinor == 0 {
			ev.AmountMinor = pay.Amount
		}
		if ev.PurchaseID == "" {
			ev.PurchaseID = notePurchaseID(pay.Notes)
		}
	}

	if ev.EventID == "" {
		ref := ev.OrderID
		if pay != nil && pay.ID != "" {
			ref = pay.ID
		}
		ev.EventID = wh.Event + ":" + ref
	}

	switch wh.Event {
	case razorpayEventOrderPaid, razorpayEventPaymentCaptured:
		ev.Kind = model.PaymentSucceeded
		ev.ProviderRef = ev.OrderID
		if pay != nil && pay.ID != "" {
			ev.ProviderRef = pay.ID
		}
	case razorpayEventPaymentFailed:
		ev.Kind = model.PaymentFailed
		if pay != nil {
			ev.ProviderRef = pay.ID
			ev.FailureCode = pay.ErrorCode
			ev.FailureReason = pay.ErrorReason
			if ev.FailureReason == "" {
				ev.FailureReason = pay.ErrorDescription
			}
		}
	}
	return ev, nil
}
