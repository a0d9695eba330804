package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/logging"
	"linkhub-membership/internal/infra/metrics"
)

// GatewayNone marks a checkout that needed no remote payment.
const GatewayNone = "none"

type StartCheckoutInput struct {
	UserID     string
	PlanRef    string
	CouponCode string
	// Geo must come from the server side (edge headers), never the body.
	Geo model.Geo
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact,omitempty"`
}

// CheckoutIntent is what the client needs to continue paying.
type CheckoutIntent struct {
	Gateway    string
	Purchase   *model.MembershipPurchase
	Quote      *model.Quote
	Session    *adapter.CheckoutSession
	Customer   Customer
	Membership *model.MembershipSnapshot
}

type CheckoutConfig struct {
	GatewayTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
}

// Gateways indexes the configured payment gateways by provider.
type Gateways map[model.Provider]adapter.PaymentGateway

func NewGateways(gws ...adapter.PaymentGateway) Gateways {
	out := make(Gateways, len(gws))
	for _, g := range gws {
		if g != nil {
			out[g.Provider()] = g
		}
	}
	return out
}

// SelectProvider routes Indian rupee purchases to Razorpay and everything
// else to Stripe.
func SelectProvider(region model.Region, currency string) model.Provider {
	if region == model.RegionIN && currency == "INR" {
		return model.ProviderRazorpay
	}
	return model.ProviderStripe
}

type CheckoutUseCase interface {
	// Start records an unpaid purchase and opens a gateway session for it.
	Start(ctx context.Context, in StartCheckoutInput) (*CheckoutIntent, error)
}

var _ CheckoutUseCase = (*checkoutUC)(nil)

type checkoutUC struct {
	users     repository.UserRepository
	purchases repository.PurchaseRepository
	plans     PlanUseCase
	pricing   PricingUseCase
	settle    SettlementUseCase
	gateways  Gateways
	tm        repository.TransactionManager
	limiter   adapter.RateLimiter
	cfg       CheckoutConfig
	log       *zerolog.Logger
}

func NewCheckoutUseCase(
	users repository.UserRepository,
	purchases repository.PurchaseRepository,
	plans PlanUseCase,
	pricing PricingUseCase,
	settle SettlementUseCase,
	gateways Gateways,
	tm repository.TransactionManager,
	limiter adapter.RateLimiter,
	cfg CheckoutConfig,
	logger *zerolog.Logger,
) CheckoutUseCase {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &checkoutUC{
		users:     users,
		purchases: purchases,
		plans:     plans,
		pricing:   pricing,
		settle:    settle,
		gateways:  gateways,
		tm:        tm,
		limiter:   limiter,
		cfg:       cfg,
		log:       orNop(logger),
	}
}

func (u *checkoutUC) Start(ctx context.Context, in StartCheckoutInput) (*CheckoutIntent, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.Start")()
	log := logging.With(ctx, u.log)

	if err := u.checkRate(ctx, in.UserID); err != nil {
		return nil, err
	}

	user, err := u.users.FindByID(ctx, repository.NoTX, in.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewReason(domain.ErrNotFound, "user_not_found", "User not found.")
		}
		return nil, err
	}

	plan, err := u.plans.Resolve(ctx, in.PlanRef)
	if err != nil {
		return nil, err
	}
	if plan.DurationDays <= 0 {
		return nil, domain.NewReason(domain.ErrInvalidState, "plan_misconfigured", "This plan cannot be purchased right now.").
			With("plan", plan.Slug)
	}

	q, err := u.pricing.QuotePlan(ctx, plan, QuoteInput{Geo: in.Geo, CouponCode: in.CouponCode, UserID: user.ID})
	if err != nil {
		return nil, err
	}

	free := q.FinalAmountMinor == 0
	provider := model.ProviderManual
	var gw adapter.PaymentGateway
	if !free {
		provider = SelectProvider(q.Region, q.Currency)
		gw = u.gateways[provider]
		if gw == nil {
			metrics.IncCheckout(string(provider), "unavailable")
			return nil, domain.NewReason(domain.ErrUnavailable, "gateway_not_configured", "Payments are temporarily unavailable.").
				With("gateway", provider)
		}
	}

	purchase := model.NewPurchase(user.ID, plan, q, provider)
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.attributeReferral(ctx, tx, user, in.CouponCode, q, purchase); err != nil {
			return err
		}
		return u.purchases.Create(ctx, tx, purchase)
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("create purchase failed")
		return nil, err
	}

	intent := &CheckoutIntent{
		Purchase: purchase,
		Quote:    q,
		Customer: Customer{Name: user.DisplayName(), Email: user.Email, Contact: user.Phone},
	}

	if free {
		res, err := u.settle.Settle(ctx, purchase.ID, repository.PaidUpdate{Provider: model.ProviderManual, ProviderRef: "free"})
		if err != nil {
			return nil, err
		}
		intent.Gateway = GatewayNone
		intent.Purchase = res.Purchase
		intent.Membership = res.Membership
		metrics.IncCheckout(GatewayNone, "applied")
		return intent, nil
	}

	sess, err := u.openSession(ctx, gw, adapter.CheckoutRequest{
		Purchase:      purchase,
		PlanSlug:      plan.Slug,
		PlanName:      plan.DisplayName,
		CustomerEmail: user.Email,
		CustomerName:  user.DisplayName(),
		CustomerPhone: user.Phone,
	})
	if err != nil {
		metrics.IncCheckout(string(provider), "gateway_error")
		log.Error().Err(err).Str("purchase_id", purchase.ID).Str("gateway", string(provider)).Msg("gateway session failed")
		if errors.Is(err, domain.ErrUnavailable) {
			return nil, err
		}
		return nil, domain.NewReason(domain.ErrGateway, "gateway_error", "Failed to start payment.").
			With("gateway", provider).
			Wrap(err)
	}

	if err := u.purchases.SetProviderRef(ctx, repository.NoTX, purchase.ID, provider, sess.Reference); err != nil {
		log.Error().Err(err).Str("purchase_id", purchase.ID).Str("ref", sess.Reference).Msg("persist provider ref failed")
		return nil, err
	}
	purchase.ProviderRef = sess.Reference

	intent.Gateway = string(provider)
	intent.Session = sess
	metrics.IncCheckout(string(provider), "started")
	log.Info().
		Str("purchase_id", purchase.ID).
		Str("gateway", string(provider)).
		Str("region", string(q.Region)).
		Int64("final", q.FinalAmountMinor).
		Msg("checkout started")
	return intent, nil
}

func (u *checkoutUC) checkRate(ctx context.Context, userID string) error {
	if u.limiter == nil || u.cfg.RateLimit <= 0 {
		return nil
	}
	ok, err := u.limiter.Allow(ctx, "rate_limit:checkout:"+userID, u.cfg.RateLimit, u.cfg.RateWindow)
	if err != nil {
		u.log.Warn().Err(err).Msg("checkout rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.NewReason(domain.ErrRateLimited, "rate_limited", "Too many checkout attempts, try again shortly.")
	}
	return nil
}

// attributeReferral links the buyer to a referrer the first time a code is
// used. A code that matches another user's referral code wins over a coupon.
func (u *checkoutUC) attributeReferral(ctx context.Context, tx repository.Tx, user *model.User, rawCode string, q *model.Quote, p *model.MembershipPurchase) error {
	code := model.NormalizeCouponCode(rawCode)
	if user.HasReferrer() || code == "" {
		return nil
	}

	ref := model.Referral{At: time.Now()}
	referrer, err := u.users.FindByReferralCode(ctx, tx, code)
	switch {
	case err == nil && referrer != nil && referrer.ID != user.ID:
		ref.Code = code
		ref.UserID = referrer.ID
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return err
	case q.CouponOutcome == model.CouponApplied:
		ref.Code = q.CouponCode
	default:
		return nil
	}

	set, err := u.users.SetReferralIfUnset(ctx, tx, user.ID, ref)
	if err != nil {
		return err
	}
	if !set {
		return nil
	}
	p.ReferrerCode = ref.Code
	p.ReferrerUser = ref.UserID
	return nil
}

func (u *checkoutUC) openSession(ctx context.Context, gw adapter.PaymentGateway, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	sess, err := gw.CreateSession(ctx, req)
	metrics.ObserveGatewayCall(string(gw.Provider()), "create_session", err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Reference == "" {
		return nil, errors.New("gateway returned no reference")
	}
	return sess, nil
}
