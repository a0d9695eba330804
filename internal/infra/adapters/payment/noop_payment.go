package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MemoryGateway)(nil)

// MemoryGateway is an in-memory gateway for tests and local development.
// Webhooks are a JSON PaymentEvent authenticated by a shared secret header.
type MemoryGateway struct {
	provider model.Provider
	secret   string

	mu       sync.Mutex
	seq      int64
	sessions map[string]*memorySession
}

type memorySession struct {
	purchaseID string
	amount     int64
	currency   string
	paid       bool
}

const MemorySignatureHeader = "X-Memory-Signature"

func NewMemoryGateway(provider model.Provider, secret string) *MemoryGateway {
	return &MemoryGateway{
		provider: provider,
		secret:   secret,
		sessions: make(map[string]*memorySession),
	}
}

func (g *MemoryGateway) Provider() model.Provider { return g.provider }

func (g *MemoryGateway) next() string {
	g.seq++
	return fmt.Sprintf("%s_mem_%d", g.provider, g.seq)
}

func (g *MemoryGateway) CreateSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.Purchase == nil {
		return nil, domain.ErrInvalidArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.next()
	g.sessions[ref] = &memorySession{
		purchaseID: req.Purchase.ID,
		amount:     req.Purchase.FinalAmountMinor,
		currency:   req.Purchase.Currency,
	}
	sess := &adapter.CheckoutSession{
		Provider:    g.provider,
		Reference:   ref,
		AmountMinor: req.Purchase.FinalAmountMinor,
		Currency:    req.Purchase.Currency,
	}
	if g.provider == model.ProviderRazorpay {
		sess.KeyID = "rzp_test_memory"
	} else {
		sess.RedirectURL = "https://pay.example.test/" + ref
	}
	return sess, nil
}

// MarkPaid flips a session as if the customer completed payment.
func (g *MemoryGateway) MarkPaid(reference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[reference]
	if ok {
		s.paid = true
	}
	return ok
}

func (g *MemoryGateway) FetchStatus(ctx context.Context, reference string) (*adapter.RemoteStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[reference]
	if !ok {
		return nil, fmt.Errorf("%w: memory: unknown reference %q", domain.ErrGateway, reference)
	}
	return &adapter.RemoteStatus{
		Paid:        s.paid,
		Reference:   reference,
		Currency:    strings.ToUpper(s.currency),
		AmountMinor: s.amount,
	}, nil
}

func (g *MemoryGateway) ParseWebhook(payload []byte, headers http.Header) (*model.PaymentEvent, error) {
	if g.secret == "" || headers.Get(MemorySignatureHeader) != g.secret {
		return nil, domain.NewReason(domain.ErrSignatureInvalid, "invalid_signature", "Invalid signature")
	}
	var ev model.PaymentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return &model.PaymentEvent{Provider: g.provider, Kind: model.PaymentIgnored, Malformed: true}, nil
	}
	ev.Provider = g.provider
	if ev.Kind == "" {
		ev.Kind = model.PaymentIgnored
	}
	return &ev, nil
}
