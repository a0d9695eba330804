package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/infra/logging"
	"linkhub-membership/internal/usecase"
)

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewReason(domain.ErrInvalidArgument, "invalid_body", "Request body is not valid JSON.").Wrap(err)
	}
	return nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if plans == nil {
		plans = []*model.MembershipPlan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": plans, "geo": geoFrom(r.Context())})
}

type quoteRequest struct {
	PlanSlugOrID string `json:"planSlugOrId"`
	CountryCode  string `json:"countryCode,omitempty"`
	CouponCode   string `json:"couponCode,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.PlanSlugOrID) == "" {
		s.fail(w, r, domain.NewReason(domain.ErrInvalidArgument, "plan_required", "planSlugOrId is required."))
		return
	}
	geo := geoFrom(r.Context())
	if cc := strings.TrimSpace(req.CountryCode); validCountry(cc) {
		geo = model.NewGeo(cc, "body")
	}
	q, err := s.pricing.Quote(r.Context(), usecase.QuoteInput{
		PlanRef:    req.PlanSlugOrID,
		Geo:        geo,
		CouponCode: req.CouponCode,
		UserID:     userFrom(r.Context()),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type checkoutRequest struct {
	PlanSlugOrID string `json:"planSlugOrId"`
	CouponCode   string `json:"couponCode,omitempty"`
}

func (s *Server) handleCheckoutStart(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.PlanSlugOrID) == "" {
		s.fail(w, r, domain.NewReason(domain.ErrInvalidArgument, "plan_required", "planSlugOrId is required."))
		return
	}
	in := usecase.StartCheckoutInput{
		UserID:     userFrom(r.Context()),
		PlanRef:    req.PlanSlugOrID,
		CouponCode: req.CouponCode,
		// location only from the edge, a countryCode in the body is ignored here
		Geo: geoFrom(r.Context()),
	}
	intent, err := s.checkout.Start(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse(intent))
}

// checkoutResponse shapes the intent the way each client-side flow expects:
// Stripe redirects, Razorpay opens its widget, free purchases are done.
func checkoutResponse(in *usecase.CheckoutIntent) map[string]any {
	out := map[string]any{
		"gateway":    in.Gateway,
		"purchaseId": in.Purchase.ID,
		"summary":    in.Quote,
	}
	switch {
	case in.Gateway == usecase.GatewayNone:
		out["paid"] = true
		out["membership"] = in.Membership
	case in.Session == nil:
	case in.Gateway == string(model.ProviderRazorpay):
		out["keyId"] = in.Session.KeyID
		out["orderId"] = in.Session.Reference
		out["amount"] = in.Session.AmountMinor
		out["currency"] = in.Session.Currency
		out["customer"] = in.Customer
	default:
		out["sessionId"] = in.Session.Reference
		out["url"] = in.Session.RedirectURL
	}
	return out
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	view, err := s.membership.Current(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := s.membership.Purchases(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": list})
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithPurchaseID(r.Context(), id)
	p, err := s.membership.Purchase(ctx, userFrom(ctx), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type markPaidRequest struct {
	Provider    string `json:"provider,omitempty"`
	ProviderRef string `json:"providerRef,omitempty"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req markPaidRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := logging.WithPurchaseID(r.Context(), id)
	res, err := s.webhooks.MarkPaidManually(ctx, id, model.Provider(strings.ToLower(req.Provider)), req.ProviderRef)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"purchase":   res.Purchase,
		"membership": res.Membership,
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := model.Provider(chi.URLParam(r, "provider"))
	if provider != model.ProviderStripe && provider != model.ProviderRazorpay {
		s.fail(w, r, domain.NewReason(domain.ErrNotFound, "unknown_gateway", "Unknown webhook."))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxWebhookBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Code: "payload_too_large", Message: "Payload too large."})
			return
		}
		s.fail(w, r, domain.NewReason(domain.ErrInvalidArgument, "unreadable_body", "Cannot read body.").Wrap(err))
		return
	}
	res, err := s.webhooks.Handle(r.Context(), provider, body, r.Header)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": res.Outcome})
}
