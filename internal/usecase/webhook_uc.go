package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/logging"
	"linkhub-membership/internal/infra/metrics"
)

// WebhookOutcome is what a verified webhook delivery ended up doing. Every
// outcome is acknowledged to the provider with 200.
type WebhookOutcome string

const (
	WebhookApplied       WebhookOutcome = "applied"
	WebhookDuplicate     WebhookOutcome = "duplicate"
	WebhookIgnored       WebhookOutcome = "ignored"
	WebhookNoPurchase    WebhookOutcome = "no_purchase"
	WebhookUnknown       WebhookOutcome = "purchase_not_found"
	WebhookAlreadyPaid   WebhookOutcome = "already_paid"
	WebhookFailureLogged WebhookOutcome = "failure_logged"
)

type WebhookResult struct {
	Outcome    WebhookOutcome `json:"outcome"`
	EventID    string         `json:"eventId,omitempty"`
	EventType  string         `json:"eventType,omitempty"`
	PurchaseID string         `json:"purchaseId,omitempty"`
}

type WebhookConfig struct {
	DedupeTTL time.Duration
}

type WebhookUseCase interface {
	// Handle verifies, de-duplicates and reconciles one raw webhook delivery.
	// Only verification failures and infrastructure errors are returned.
	Handle(ctx context.Context, provider model.Provider, payload []byte, headers http.Header) (*WebhookResult, error)

	// MarkPaidManually settles a purchase outside any gateway callback.
	MarkPaidManually(ctx context.Context, purchaseID string, provider model.Provider, providerRef string) (*SettleResult, error)
}

var _ WebhookUseCase = (*webhookUC)(nil)

type webhookUC struct {
	gateways  Gateways
	purchases repository.PurchaseRepository
	dedupe    adapter.EventDeduper
	settle    SettlementUseCase
	notifier  adapter.AdminNotifier
	cfg       WebhookConfig
	log       *zerolog.Logger
}

func NewWebhookUseCase(
	gateways Gateways,
	purchases repository.PurchaseRepository,
	dedupe adapter.EventDeduper,
	settle SettlementUseCase,
	notifier adapter.AdminNotifier,
	cfg WebhookConfig,
	logger *zerolog.Logger,
) WebhookUseCase {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 10 * time.Minute
	}
	return &webhookUC{
		gateways:  gateways,
		purchases: purchases,
		dedupe:    dedupe,
		settle:    settle,
		notifier:  notifier,
		cfg:       cfg,
		log:       orNop(logger),
	}
}

func (u *webhookUC) Handle(ctx context.Context, provider model.Provider, payload []byte, headers http.Header) (res *WebhookResult, err error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()
	log := logging.With(ctx, u.log)

	gw := u.gateways[provider]
	if gw == nil {
		return nil, domain.NewReason(domain.ErrSignatureInvalid, "gateway_not_configured", "webhook gateway not configured").
			With("gateway", provider)
	}

	ev, err := gw.ParseWebhook(payload, headers)
	if err != nil {
		metrics.IncWebhook(string(provider), "rejected")
		log.Warn().Err(err).Str("gateway", string(provider)).Msg("webhook rejected")
		return nil, err
	}

	defer func() {
		if res != nil {
			metrics.IncWebhook(string(provider), string(res.Outcome))
		}
	}()

	if ev.Malformed {
		log.Warn().Str("gateway", string(provider)).Str("event_id", ev.EventID).Str("type", ev.Type).Msg("signed webhook body could not be decoded")
		return u.result(ev, WebhookIgnored), nil
	}

	if ev.EventID != "" && u.dedupe != nil {
		first, derr := u.dedupe.MarkSeen(ctx, string(provider), ev.EventID, u.cfg.DedupeTTL)
		if derr != nil {
			return nil, derr
		}
		if !first {
			return u.result(ev, WebhookDuplicate), nil
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := u.dedupe.Release(context.WithoutCancel(ctx), string(provider), ev.EventID); rerr != nil {
				log.Warn().Err(rerr).Str("event_id", ev.EventID).Msg("release dedupe key failed")
			}
		}()
	}

	switch ev.Kind {
	case model.PaymentFailed:
		u.reportFailure(ctx, log, ev)
		return u.result(ev, WebhookFailureLogged), nil
	case model.PaymentSucceeded:
	default:
		return u.result(ev, WebhookIgnored), nil
	}

	if ev.PurchaseID == "" {
		id, lerr := u.purchaseByRef(ctx, provider, ev)
		if lerr != nil {
			return nil, lerr
		}
		ev.PurchaseID = id
	}
	if ev.PurchaseID == "" {
		log.Info().Str("event_id", ev.EventID).Str("type", ev.Type).Msg("webhook without purchase id")
		return u.result(ev, WebhookNoPurchase), nil
	}

	upd := repository.PaidUpdate{Provider: provider, ProviderRef: ev.ProviderRef, Currency: ev.Currency}
	if ev.AmountMinor > 0 {
		amt := ev.AmountMinor
		upd.FinalAmountMinor = &amt
	}
	sr, err := u.settle.Settle(ctx, ev.PurchaseID, upd)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("purchase_id", ev.PurchaseID).Msg("webhook for unknown purchase")
			return u.result(ev, WebhookUnknown), nil
		}
		log.Error().Err(err).Str("purchase_id", ev.PurchaseID).Msg("settle purchase failed")
		return nil, err
	}
	if !sr.Applied {
		return u.result(ev, WebhookAlreadyPaid), nil
	}
	log.Info().Str("purchase_id", ev.PurchaseID).Str("gateway", string(provider)).Msg("purchase applied from webhook")
	return u.result(ev, WebhookApplied), nil
}

// purchaseByRef correlates an event without purchase id through the order or
// payment reference stored on the purchase. Unknown references yield "".
func (u *webhookUC) purchaseByRef(ctx context.Context, provider model.Provider, ev *model.PaymentEvent) (string, error) {
	if u.purchases == nil {
		return "", nil
	}
	for _, ref := range []string{ev.OrderID, ev.ProviderRef} {
		if ref == "" {
			continue
		}
		p, err := u.purchases.FindByProviderRef(ctx, repository.NoTX, provider, ref)
		if err == nil {
			return p.ID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	return "", nil
}

func (u *webhookUC) result(ev *model.PaymentEvent, o WebhookOutcome) *WebhookResult {
	return &WebhookResult{Outcome: o, EventID: ev.EventID, EventType: ev.Type, PurchaseID: ev.PurchaseID}
}

func (u *webhookUC) reportFailure(ctx context.Context, log *zerolog.Logger, ev *model.PaymentEvent) {
	log.Warn().
		Str("gateway", string(ev.Provider)).
		Str("purchase_id", ev.PurchaseID).
		Str("order_id", ev.OrderID).
		Str("error_code", ev.FailureCode).
		Str("error_reason", ev.FailureReason).
		Msg("payment failed")
	if u.notifier == nil {
		return
	}
	text := fmt.Sprintf("Payment failed\ngateway: %s\npurchase: %s\norder: %s\ncode: %s\nreason: %s",
		ev.Provider, ev.PurchaseID, ev.OrderID, ev.FailureCode, ev.FailureReason)
	if err := u.notifier.NotifyAdmins(ctx, text); err != nil {
		log.Warn().Err(err).Msg("admin notification failed")
	}
}

func (u *webhookUC) MarkPaidManually(ctx context.Context, purchaseID string, provider model.Provider, providerRef string) (*SettleResult, error) {
	if provider == "" {
		provider = model.ProviderManual
	}
	if !provider.Valid() {
		return nil, domain.NewReason(domain.ErrInvalidArgument, "invalid_provider", "unknown provider").With("provider", provider)
	}
	sr, err := u.settle.Settle(ctx, purchaseID, repository.PaidUpdate{Provider: provider, ProviderRef: providerRef})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewReason(domain.ErrNotFound, "purchase_not_found", "Purchase not found.")
		}
		return nil, err
	}
	if !sr.Applied {
		return sr, domain.NewReason(domain.ErrAlreadyPaid, "already_paid", "Already paid.")
	}
	logging.With(ctx, u.log).Info().Str("purchase_id", purchaseID).Str("provider", string(provider)).Msg("purchase marked paid manually")
	return sr, nil
}
